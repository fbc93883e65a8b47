package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/LimaAnalytica/cleaning-process/internal/workflow"
)

const (
	defaultTTL           = 30 * time.Minute
	defaultSweepInterval = time.Minute
)

// Factory builds the workflow owned by a new session.
type Factory func(ctx context.Context, id string) *workflow.Workflow

// Gauge tracks the number of live sessions.
type Gauge interface {
	Set(float64)
}

type Options struct {
	Factory       Factory
	TTL           time.Duration
	SweepInterval time.Duration
	Gauge         Gauge
}

type entry struct {
	workflow *workflow.Workflow
	lastSeen time.Time
}

// Manager keeps one workflow per browser session, in memory only.
type Manager struct {
	mu            sync.RWMutex
	sessions      map[string]*entry
	factory       Factory
	ttl           time.Duration
	sweepInterval time.Duration
	gauge         Gauge
	baseCtx       context.Context
	now           func() time.Time
}

func NewManager(opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.Factory == nil {
		opts.Factory = func(ctx context.Context, id string) *workflow.Workflow {
			return workflow.New(workflow.Options{ID: id, BaseContext: ctx})
		}
	}
	return &Manager{
		sessions:      make(map[string]*entry),
		factory:       opts.Factory,
		ttl:           opts.TTL,
		sweepInterval: opts.SweepInterval,
		gauge:         opts.Gauge,
		baseCtx:       context.Background(),
		now:           time.Now,
	}
}

// SetBaseContext sets the context new workflows derive their requests from.
// Intended to be set at process startup and cancelled during shutdown.
func (m *Manager) SetBaseContext(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()
}

// Create starts a new session.
func (m *Manager) Create() (string, *workflow.Workflow) {
	id := uuid.NewString()
	m.mu.Lock()
	wf := m.factory(m.baseCtx, id)
	m.sessions[id] = &entry{workflow: wf, lastSeen: m.now()}
	m.reportLocked()
	m.mu.Unlock()
	log.Info().Str("session_id", id).Msg("session created")
	return id, wf
}

// Get returns the workflow of a live session and marks it as seen.
func (m *Manager) Get(id string) (*workflow.Workflow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = m.now()
	return e.workflow, true
}

// Resolve returns the session for id, creating a new one when id is unknown.
func (m *Manager) Resolve(id string) (string, *workflow.Workflow, bool) {
	if id != "" {
		if wf, ok := m.Get(id); ok {
			return id, wf, false
		}
	}
	newID, wf := m.Create()
	return newID, wf, true
}

// End tears down a session. Returns false if it did not exist.
func (m *Manager) End(id string) bool {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		m.reportLocked()
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	e.workflow.Close()
	log.Info().Str("session_id", id).Msg("session ended")
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep ends sessions idle for longer than the TTL and reports how many.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.ttl)
	m.mu.Lock()
	expired := make([]*entry, 0)
	for id, e := range m.sessions {
		if e.lastSeen.Before(cutoff) {
			expired = append(expired, e)
			delete(m.sessions, id)
		}
	}
	if len(expired) > 0 {
		m.reportLocked()
	}
	m.mu.Unlock()

	for _, e := range expired {
		e.workflow.Close()
	}
	if len(expired) > 0 {
		log.Info().Int("expired", len(expired)).Msg("idle sessions ended")
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// CloseAll ends every session and waits for their outstanding submissions to
// unwind. Returns false if ctx expired first.
func (m *Manager) CloseAll(ctx context.Context) bool {
	m.mu.Lock()
	all := make([]*workflow.Workflow, 0, len(m.sessions))
	for id, e := range m.sessions {
		all = append(all, e.workflow)
		delete(m.sessions, id)
	}
	m.reportLocked()
	m.mu.Unlock()

	for _, wf := range all {
		wf.Close()
	}
	for _, wf := range all {
		if !wf.Wait(ctx) {
			return false
		}
	}
	return true
}

func (m *Manager) reportLocked() {
	if m.gauge != nil {
		m.gauge.Set(float64(len(m.sessions)))
	}
}
