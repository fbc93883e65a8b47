package result

import (
	"errors"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DownloadPathPrefix is where in-memory handles are served from.
const DownloadPathPrefix = "/download/"

var ErrReleased = errors.New("result released")

type Kind string

const (
	KindRemoteURL Kind = "remote_url"
	KindInMemory  Kind = "in_memory"
)

// Reference points at a downloadable result.
type Reference interface {
	Kind() Kind
	Href() string
	Release()
}

// RemoteURL is a result hosted by the processing endpoint.
type RemoteURL struct {
	url string
}

func NewRemoteURL(u string) RemoteURL { return RemoteURL{url: u} }

func (r RemoteURL) Kind() Kind     { return KindRemoteURL }
func (r RemoteURL) Href() string   { return r.url }
func (r RemoteURL) Release()       {}
func (r RemoteURL) String() string { return r.url }

// Handle holds a result in memory until it is released.
type Handle struct {
	id          string
	name        string
	contentType string

	mu       sync.RWMutex
	content  []byte
	released bool
}

func NewHandle(content []byte, contentType, name string) *Handle {
	if contentType == "" {
		contentType = mimetype.Detect(content).String()
	}
	return &Handle{
		id:          uuid.NewString(),
		name:        name,
		contentType: contentType,
		content:     content,
	}
}

func (h *Handle) Kind() Kind          { return KindInMemory }
func (h *Handle) ID() string          { return h.id }
func (h *Handle) Name() string        { return h.name }
func (h *Handle) ContentType() string { return h.contentType }
func (h *Handle) Href() string        { return DownloadPathPrefix + h.id }

// Bytes returns the held content, or ErrReleased once the handle was released.
func (h *Handle) Bytes() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.released {
		return nil, ErrReleased
	}
	return h.content, nil
}

func (h *Handle) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.content)
}

// Release drops the content. It is safe to call more than once.
func (h *Handle) Release() {
	h.mu.Lock()
	h.content = nil
	h.released = true
	h.mu.Unlock()
}

func (h *Handle) Released() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.released
}
