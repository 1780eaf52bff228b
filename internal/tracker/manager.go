package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"solana-buy-tracker/internal/blocksource"
	"solana-buy-tracker/internal/domain"
	"solana-buy-tracker/internal/events"
	"solana-buy-tracker/internal/storage"
)

// Status strings exposed to the request layer.
const (
	StatusStarting  = "starting"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Status is the externally visible session status.
type Status struct {
	State  string `json:"state"`
	Detail string `json:"detail,omitempty"`
}

// Manager owns tracking sessions. Sessions share the endpoint pool, so
// endpoint rotation is coordinated, but every session gets its own block
// source with its own rate-limit and backoff state.
type Manager struct {
	cfg        blocksource.Config
	sessionCfg SessionConfig
	pool       *blocksource.EndpointPool
	archive    storage.AcquisitionStore
	sink       events.Sink
	logger     *log.Logger

	newSource func() (BlockSource, error)

	mu       sync.Mutex
	sessions map[string]*Session
	nextID   atomic.Int64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithArchiveStore sets the store that receives flushed and completed
// session records.
func WithArchiveStore(store storage.AcquisitionStore) ManagerOption {
	return func(m *Manager) {
		m.archive = store
	}
}

// WithEventSink sets the sink receiving pipeline events.
func WithEventSink(sink events.Sink) ManagerOption {
	return func(m *Manager) {
		if sink != nil {
			m.sink = sink
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSessionConfig overrides the default session bounds. The per-session
// target count is still supplied per StartTracking call.
func WithSessionConfig(cfg SessionConfig) ManagerOption {
	return func(m *Manager) {
		m.sessionCfg = cfg
	}
}

// WithSourceFactory overrides how block sources are built, mainly for
// tests.
func WithSourceFactory(factory func() (BlockSource, error)) ManagerOption {
	return func(m *Manager) {
		if factory != nil {
			m.newSource = factory
		}
	}
}

// NewManager creates a session manager over the given endpoint pool.
func NewManager(cfg blocksource.Config, pool *blocksource.EndpointPool, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		cfg:        cfg,
		sessionCfg: DefaultSessionConfig(),
		pool:       pool,
		sink:       events.NopSink{},
		logger:     log.Default(),
		sessions:   make(map[string]*Session),
	}
	m.newSource = func() (BlockSource, error) {
		return blocksource.NewSource(m.cfg, m.pool,
			blocksource.WithLogger(m.logger),
			blocksource.WithEventSink(m.sink),
		)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// StartTracking validates the token, creates a session and starts its
// polling loop. targetCount is the number of records after which the
// live tail completes; zero tracks until stopped. startHeight, when
// non-nil and historical, triggers a backfill first.
func (m *Manager) StartTracking(ctx context.Context, token string, startHeight *int64, targetCount int64) (string, error) {
	if err := ValidateToken(token); err != nil {
		return "", err
	}

	source, err := m.newSource()
	if err != nil {
		return "", fmt.Errorf("create block source: %w", err)
	}

	cfg := m.sessionCfg
	cfg.TargetCount = targetCount

	id := fmt.Sprintf("session-%d", m.nextID.Add(1))
	session := newSession(id, token, startHeight, cfg, source, m.archive, m.sink, m.logger)

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	// The session outlives the request that started it.
	session.start(context.WithoutCancel(ctx))
	m.logger.Printf("[tracker] started %s for token %s (target=%d)", id, token, targetCount)
	return id, nil
}

// session looks up a handle.
func (m *Manager) session(handle string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, handle)
	}
	return s, nil
}

// Progress reports a session's completion summary.
func (m *Manager) Progress(handle string) (Progress, error) {
	s, err := m.session(handle)
	if err != nil {
		return Progress{}, err
	}
	return s.Progress(), nil
}

// Records returns a snapshot of a session's retained records.
func (m *Manager) Records(handle string) ([]domain.AcquisitionRecord, error) {
	s, err := m.session(handle)
	if err != nil {
		return nil, err
	}
	return s.Records(), nil
}

// StopTracking stops a session and waits for its loop to exit.
func (m *Manager) StopTracking(handle string) error {
	s, err := m.session(handle)
	if err != nil {
		return err
	}
	s.Stop()
	return nil
}

// Status maps a session's lifecycle state onto the external status
// surface.
func (m *Manager) Status(handle string) (Status, error) {
	s, err := m.session(handle)
	if err != nil {
		return Status{}, err
	}

	switch s.State() {
	case StateIdle, StateInitializing:
		return Status{State: StatusStarting}, nil
	case StateBackfilling, StateLiveTailing:
		return Status{State: StatusRunning}, nil
	case StateCompleted:
		return Status{State: StatusCompleted}, nil
	case StateErrored:
		st := Status{State: StatusError}
		if err := s.Err(); err != nil {
			st.Detail = err.Error()
		}
		return st, nil
	default:
		return Status{State: StatusError, Detail: "unknown state"}, nil
	}
}

// StopAll stops every session, for process shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}
