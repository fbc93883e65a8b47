package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/LimaAnalytica/cleaning-process/internal/endpoint"
	"github.com/LimaAnalytica/cleaning-process/internal/fault"
	"github.com/LimaAnalytica/cleaning-process/internal/result"
	"github.com/LimaAnalytica/cleaning-process/internal/selection"
)

// Workflow sequences one session's selection, submission and reply handling.
// Only one submission can be outstanding at a time.
type Workflow struct {
	id           string
	guard        *selection.Guard
	processor    Processor
	downloadName string
	observer     Observer
	baseCtx      context.Context
	logger       zerolog.Logger

	mu      sync.Mutex
	state   State
	pending *selection.Artifact
	ref     result.Reference
	fault   *fault.Error
	message string
	// rejection is the most recent refused selection. It never replaces
	// the state or the result.
	rejection *fault.Error
	closed    bool
	// generation is bumped by every submission, reset and teardown so that
	// a reply belonging to an abandoned submission is discarded.
	generation uint64
	cancel     context.CancelFunc
	// settled is closed when the latest submission's worker has returned.
	settled chan struct{}
}

func New(opts Options) *Workflow {
	if opts.Guard == nil {
		opts.Guard = selection.NewGuard("")
	}
	if opts.DownloadName == "" {
		opts.DownloadName = DefaultDownloadName
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	return &Workflow{
		id:           opts.ID,
		guard:        opts.Guard,
		processor:    opts.Processor,
		downloadName: opts.DownloadName,
		observer:     opts.Observer,
		baseCtx:      opts.BaseContext,
		logger:       log.With().Str("session_id", opts.ID).Logger(),
		state:        StateIdle,
		settled:      closedChan(),
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (w *Workflow) ID() string { return w.id }

// Select validates the candidate and makes it the pending artifact. A nil
// candidate (cancelled picker) leaves everything untouched. A rejected
// candidate drops the pending artifact and is reported, but the current
// state and result stay as they were.
func (w *Workflow) Select(c *selection.Candidate) error {
	if c == nil {
		return nil
	}
	artifact, err := w.guard.Select(*c)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err != nil {
		fe := fault.From(err, fault.Validation, "please select a valid CSV file")
		w.pending = nil
		w.rejection = fe
		if w.state == StateReady {
			w.state = StateIdle
		}
		w.logger.Info().Str("name", c.Name).Str("media_type", c.MediaType).Msg("selection rejected")
		return fe
	}

	w.pending = &artifact
	w.rejection = nil
	if w.state != StateInFlight {
		w.clearOutcomeLocked()
		w.state = StateReady
	}
	w.logger.Info().Str("name", artifact.Name()).Int("bytes", artifact.Size()).Msg("artifact selected")
	return nil
}

// Submit dispatches the pending artifact. It returns as soon as the request
// is under way; use Wait or Snapshot to follow it.
func (w *Workflow) Submit() error {
	w.mu.Lock()
	switch {
	case w.closed:
		w.mu.Unlock()
		return ErrClosed
	case w.state == StateInFlight:
		w.mu.Unlock()
		return ErrAlreadyInFlight
	case w.pending == nil:
		w.mu.Unlock()
		return ErrNoInputSelected
	}

	w.clearOutcomeLocked()
	w.state = StateInFlight
	w.generation++
	gen := w.generation
	artifact := *w.pending
	ctx, cancel := context.WithCancel(w.baseCtx)
	w.cancel = cancel
	done := make(chan struct{})
	w.settled = done
	w.mu.Unlock()

	w.logger.Info().Str("name", artifact.Name()).Msg("submission started")
	go w.run(ctx, cancel, gen, artifact, done)
	return nil
}

func (w *Workflow) run(ctx context.Context, cancel context.CancelFunc, gen uint64, artifact selection.Artifact, done chan struct{}) {
	defer close(done)
	defer cancel()

	started := time.Now()
	var out outcome
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Msg("reply interpretation panicked")
			out = outcome{fault: fault.New(fault.Malformed, "unexpected error while reading the reply")}
		}
		w.settle(gen, out, time.Since(started))
	}()
	out = w.dispatch(ctx, artifact)
}

func (w *Workflow) dispatch(ctx context.Context, artifact selection.Artifact) outcome {
	if w.processor == nil {
		return outcome{fault: fault.New(fault.Transport, "no processing endpoint configured")}
	}
	reply, err := w.processor.Process(ctx, artifact)
	if err != nil {
		return outcome{fault: fault.From(err, fault.Transport, "error connecting to the server")}
	}
	switch reply.Kind {
	case endpoint.ReplyLocation:
		return outcome{ref: result.NewRemoteURL(reply.Location), message: reply.Message}
	case endpoint.ReplyBinary:
		return outcome{ref: result.NewHandle(reply.Content, reply.ContentType, w.downloadName), message: reply.Message}
	case endpoint.ReplyEmpty:
		return outcome{message: reply.Message}
	default:
		return outcome{fault: fault.New(fault.Malformed, "the server returned an unreadable reply")}
	}
}

// settle applies the outcome of submission gen, unless it was abandoned.
func (w *Workflow) settle(gen uint64, out outcome, elapsed time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || gen != w.generation {
		if out.ref != nil {
			out.ref.Release()
		}
		w.logger.Debug().Uint64("generation", gen).Msg("discarding reply of abandoned submission")
		return
	}
	w.cancel = nil
	w.rejection = nil
	if out.fault != nil {
		w.state = StateFailed
		w.fault = out.fault
		w.logger.Warn().Str("category", string(out.fault.Category)).Err(out.fault).Msg("submission failed")
	} else {
		w.state = StateSucceeded
		w.ref = out.ref
		w.message = out.message
		evt := w.logger.Info()
		if out.ref != nil {
			evt = evt.Str("result_kind", string(out.ref.Kind()))
		}
		evt.Msg("submission succeeded")
	}
	var category fault.Category
	if out.fault != nil {
		category = out.fault.Category
	}
	w.observer.ObserveSubmission(w.state, category, elapsed)
}

// Snapshot returns the current state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Snapshot{
		State:     w.state,
		Reference: w.ref,
		Fault:     w.fault,
		Rejection: w.rejection,
		Message:   w.message,
	}
	if w.pending != nil {
		s.Pending = true
		s.Artifact = w.pending.Name()
	}
	return s
}

// Handle returns the in-memory result with the given id, if it is current.
func (w *Workflow) Handle(id string) (*result.Handle, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	h, ok := w.ref.(*result.Handle)
	if !ok || h.ID() != id {
		return nil, false
	}
	return h, true
}

// Reset returns the workflow to Idle, abandoning any outstanding submission.
func (w *Workflow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.abandonLocked()
	w.clearOutcomeLocked()
	w.pending = nil
	w.state = StateIdle
}

// Close tears the workflow down: the outstanding request is cancelled, the
// in-memory result released and late replies ignored.
func (w *Workflow) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.abandonLocked()
	w.clearOutcomeLocked()
	w.pending = nil
	w.mu.Unlock()
	w.logger.Debug().Msg("workflow closed")
}

// Closed reports whether Close was called.
func (w *Workflow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Wait blocks until the latest submission's worker has returned or ctx is
// done. Returns true if the workflow went quiet in time.
func (w *Workflow) Wait(ctx context.Context) bool {
	w.mu.Lock()
	settled := w.settled
	w.mu.Unlock()
	select {
	case <-settled:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *Workflow) abandonLocked() {
	w.generation++
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

func (w *Workflow) clearOutcomeLocked() {
	if w.ref != nil {
		w.ref.Release()
		w.ref = nil
	}
	w.fault = nil
	w.rejection = nil
	w.message = ""
}
