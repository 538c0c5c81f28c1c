package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/karshdev/lift-core/internal/config"
	"github.com/karshdev/lift-core/internal/eventstore"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session: not found")

// Manager creates and tracks practice sessions and exposes their timelines.
type Manager struct {
	cfg  config.Config
	deps Deps
	log  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	createdCounter metric.Int64Counter
}

func NewManager(cfg config.Config, deps Deps) (*Manager, error) {
	m := &Manager{
		cfg:      cfg,
		deps:     deps,
		log:      deps.Logger.With(slog.String("component", "session-manager")),
		sessions: make(map[string]*Session),
	}

	meter := otel.Meter("lift.session")
	var err error
	m.createdCounter, err = meter.Int64Counter("lift.sessions.created",
		metric.WithDescription("Total practice sessions created"))
	if err != nil {
		return nil, fmt.Errorf("create session counter: %w", err)
	}
	activeGauge, err := meter.Int64ObservableGauge("lift.sessions.active",
		metric.WithDescription("Sessions in a non-terminal phase"))
	if err != nil {
		return nil, fmt.Errorf("create active gauge: %w", err)
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(activeGauge, m.activeCount())
		return nil
	}, activeGauge)
	if err != nil {
		return nil, fmt.Errorf("register gauge callback: %w", err)
	}

	return m, nil
}

func (m *Manager) activeCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active int64
	for _, s := range m.sessions {
		switch s.Snapshot().Phase {
		case PhaseCompleted, PhaseCancelled, PhaseError, PhasePermissionDenied:
		default:
			active++
		}
	}
	return active
}

// Create opens a new session for the given question, acquiring media with
// the named capture profile (compact or wide).
func (m *Manager) Create(ctx context.Context, question Question, profileName string) (*Session, error) {
	id := uuid.NewString()
	if m.deps.Store != nil {
		if err := m.deps.Store.AppendSession(ctx, id, question.Text); err != nil {
			return nil, fmt.Errorf("persist session: %w", err)
		}
	}

	s := New(ctx, id, question, m.cfg.Media.Profile(profileName), m.cfg.Session, m.deps)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	m.createdCounter.Add(ctx, 1)

	m.log.Info("session created",
		slog.String("session_id", id),
		slog.String("profile", profileName),
		slog.String("phase", string(s.Snapshot().Phase)))
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List snapshots every tracked session.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	snapshots := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		snapshots = append(snapshots, s.Snapshot())
	}
	return snapshots
}

// Events returns the persisted timeline for a session.
func (m *Manager) Events(ctx context.Context, id string, limit int) ([]eventstore.Event, error) {
	if _, err := m.Get(id); err != nil {
		return nil, err
	}
	if m.deps.Store == nil {
		return nil, nil
	}
	return m.deps.Store.ListSessionEvents(ctx, id, limit)
}

// Shutdown cancels every non-terminal session so capture devices are
// released before the runtime exits.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		if err := s.Cancel(ctx); err != nil && !errors.Is(err, ErrInvalidPhase) {
			m.log.Warn("cancel on shutdown failed",
				slog.String("session_id", s.ID()),
				slog.String("error", err.Error()))
		}
	}
}
