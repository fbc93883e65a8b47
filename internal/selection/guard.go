package selection

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/LimaAnalytica/cleaning-process/internal/fault"
)

// AcceptedMediaType is the only declared type a candidate may carry.
const AcceptedMediaType = "text/csv"

var ErrNotAccepted = errors.New("not an accepted tabular format")

// Candidate is a file picked by the user, not yet validated.
type Candidate struct {
	Name      string
	MediaType string
	Content   []byte
}

// Artifact is a candidate that passed the guard. Its content is never
// mutated after acceptance, so a submission may keep reading it while a
// newer artifact replaces it.
type Artifact struct {
	name      string
	mediaType string
	content   []byte
}

func (a Artifact) Name() string      { return a.name }
func (a Artifact) MediaType() string { return a.mediaType }
func (a Artifact) Size() int         { return len(a.content) }

// Reader returns a fresh reader over the artifact bytes.
func (a Artifact) Reader() io.Reader { return bytes.NewReader(a.content) }

// Guard validates candidates against the accepted media type.
type Guard struct {
	accepted string
}

func NewGuard(accepted string) *Guard {
	if accepted == "" {
		accepted = AcceptedMediaType
	}
	return &Guard{accepted: accepted}
}

func (g *Guard) Accepted() string { return g.accepted }

// Select turns a candidate into an Artifact. The declared media type must
// match exactly; no size limit is applied.
func (g *Guard) Select(c Candidate) (Artifact, error) {
	if c.MediaType != g.accepted {
		return Artifact{}, fault.Wrap(fault.Validation,
			fmt.Sprintf("please select a valid CSV file (%q is %s)", c.Name, describeType(c.MediaType)),
			ErrNotAccepted)
	}
	content := make([]byte, len(c.Content))
	copy(content, c.Content)
	return Artifact{name: c.Name, mediaType: c.MediaType, content: content}, nil
}

func describeType(mediaType string) string {
	if mediaType == "" {
		return "of unknown type"
	}
	return "declared as " + mediaType
}

// FromMultipart reads an uploaded form part into a Candidate. A nil header or
// an empty filename means the user cancelled the picker and yields nil.
func FromMultipart(fh *multipart.FileHeader) (*Candidate, error) {
	if fh == nil || fh.Filename == "" {
		return nil, nil
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = f.Close() }()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return &Candidate{
		Name:      fh.Filename,
		MediaType: fh.Header.Get("Content-Type"),
		Content:   content,
	}, nil
}
