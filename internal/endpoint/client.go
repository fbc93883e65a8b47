package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/LimaAnalytica/cleaning-process/internal/fault"
	"github.com/LimaAnalytica/cleaning-process/internal/selection"
)

const (
	// FileField is the multipart field carrying the artifact.
	FileField = "file"

	structuredContentType = "application/json"
	maxErrorBodyBytes     = 1 << 20

	msgTransport = "error connecting to the server"
	msgRemote    = "error processing the file"
	msgMalformed = "the server returned an unreadable reply"
)

// ReplyKind discriminates successful replies.
type ReplyKind int

const (
	// ReplyLocation carries a URL where the processed file can be fetched.
	ReplyLocation ReplyKind = iota + 1
	// ReplyBinary carries the processed file itself.
	ReplyBinary
	// ReplyEmpty is a structured success without a result location.
	ReplyEmpty
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyLocation:
		return "location"
	case ReplyBinary:
		return "binary"
	case ReplyEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Reply is a successful answer from the processing endpoint.
type Reply struct {
	Kind        ReplyKind
	Location    string
	Message     string
	Content     []byte
	ContentType string
}

// StatusError records the failure status the endpoint answered with.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("http %d", e.Code) }

type envelope struct {
	DownloadURL string `json:"download_url"`
	Message     string `json:"message"`
	Error       string `json:"error"`
}

type Options struct {
	URL string
	// Timeout bounds a whole round trip; zero leaves it to the transport.
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Client talks to the processing endpoint.
type Client struct {
	url        string
	httpClient *http.Client
}

func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint url must be http or https, got %q", opts.URL)
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		url: u.String(),
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
	}, nil
}

func (c *Client) URL() string { return c.url }

// Process uploads the artifact and interprets the reply. Failures are
// returned as *fault.Error values.
func (c *Client) Process(ctx context.Context, artifact selection.Artifact) (Reply, error) {
	body, contentType, err := encodeArtifact(artifact)
	if err != nil {
		return Reply{}, fault.Wrap(fault.Transport, msgTransport, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return Reply{}, fault.Wrap(fault.Transport, msgTransport, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Str("url", c.url).Err(err).Msg("processing request failed")
		return Reply{}, fault.Wrap(fault.Transport, msgTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Str("url", c.url).Int("status", resp.StatusCode).Msg("processing endpoint reported failure")
		return Reply{}, remoteFailure(resp)
	}
	if isStructured(resp.Header.Get("Content-Type")) {
		return decodeStructured(resp.Body)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, fault.Wrap(fault.Transport, msgTransport, fmt.Errorf("read reply: %w", err))
	}
	return Reply{Kind: ReplyBinary, Content: content, ContentType: resp.Header.Get("Content-Type")}, nil
}

func encodeArtifact(artifact selection.Artifact) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(FileField, artifact.Name())
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, artifact.Reader()); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func isStructured(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), structuredContentType)
}

func remoteFailure(resp *http.Response) error {
	status := &StatusError{Code: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return fault.Wrap(fault.Remote, msgRemote, status)
	}
	var env envelope
	if json.Unmarshal(raw, &env) == nil && strings.TrimSpace(env.Error) != "" {
		return fault.Wrap(fault.Remote, env.Error, status)
	}
	return fault.Wrap(fault.Remote, msgRemote, status)
}

func decodeStructured(body io.Reader) (Reply, error) {
	var env envelope
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		return Reply{}, fault.Wrap(fault.Malformed, msgMalformed, fmt.Errorf("decode reply: %w", err))
	}
	if env.DownloadURL == "" {
		return Reply{Kind: ReplyEmpty, Message: env.Message}, nil
	}
	if _, err := url.Parse(env.DownloadURL); err != nil {
		return Reply{}, fault.Wrap(fault.Malformed, msgMalformed, fmt.Errorf("parse download_url: %w", err))
	}
	return Reply{Kind: ReplyLocation, Location: env.DownloadURL, Message: env.Message}, nil
}

// IsStatus reports whether err carries the given endpoint failure status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
