package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AlexJFox/FacilityLocator/internal/events"
	"github.com/AlexJFox/FacilityLocator/internal/facility"
	"github.com/AlexJFox/FacilityLocator/internal/observability"
	"github.com/AlexJFox/FacilityLocator/internal/storage"
)

var (
	// ErrBusy means the user already has an active create session.
	ErrBusy = errors.New("already creating a facility")

	// ErrQuota means the author reached the per-guild facility quota.
	ErrQuota = errors.New("facility quota reached")

	// ErrNoEligible means a bulk removal resolved to nothing removable.
	ErrNoEligible = errors.New("no facilities or required access")
)

// ManagerConfig configures a session manager.
type ManagerConfig struct {
	Store   storage.Store
	Bus     *events.Bus
	Logger  *slog.Logger
	Metrics *observability.Metrics

	// SessionTimeout is the editing session deadline (default 3m).
	SessionTimeout time.Duration

	// CreateQuota is the per-author per-guild facility cap (default 5).
	// Administrators are exempt.
	CreateQuota int

	// CreateCooldown gates /create per guild+user (default 20s).
	CreateCooldown time.Duration

	// CommandCooldown gates the remaining facility commands (default 4s).
	CommandCooldown time.Duration
}

// Manager owns the live editing sessions and removal confirmations, the
// "currently creating" user set, cooldowns and the quota check.
type Manager struct {
	store   storage.Store
	bus     *events.Bus
	logger  *slog.Logger
	metrics *observability.Metrics

	timeout         time.Duration
	quota           int
	createCooldown  time.Duration
	commandCooldown time.Duration

	gate *Gate

	mu       sync.Mutex
	creating map[string]struct{}
	sessions map[string]*Session
	removals map[string]*Removal
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 3 * time.Minute
	}
	if cfg.CreateQuota <= 0 {
		cfg.CreateQuota = 5
	}
	if cfg.CreateCooldown <= 0 {
		cfg.CreateCooldown = 20 * time.Second
	}
	if cfg.CommandCooldown <= 0 {
		cfg.CommandCooldown = 4 * time.Second
	}
	return &Manager{
		store:           cfg.Store,
		bus:             cfg.Bus,
		logger:          cfg.Logger.With("component", "sessions"),
		metrics:         cfg.Metrics,
		timeout:         cfg.SessionTimeout,
		quota:           cfg.CreateQuota,
		createCooldown:  cfg.CreateCooldown,
		commandCooldown: cfg.CommandCooldown,
		gate:            NewGate(),
		creating:        make(map[string]struct{}),
		sessions:        make(map[string]*Session),
		removals:        make(map[string]*Removal),
	}
}

// TryCooldown gates command for the guild+user pair. The create command has
// its own, longer window.
func (m *Manager) TryCooldown(guildID, userID, command string) error {
	window := m.commandCooldown
	if command == "create" {
		window = m.createCooldown
	}
	return m.gate.Try(fmt.Sprintf("%s:%s:%s", guildID, userID, command), window)
}

// StartCreate opens a create-mode session for f, enforcing the busy guard
// and the author quota before any UI is rendered.
func (m *Manager) StartCreate(ctx context.Context, actor facility.Actor, f *facility.Facility, disableUI func()) (*Session, error) {
	m.mu.Lock()
	_, busy := m.creating[actor.ID]
	m.mu.Unlock()
	if busy {
		return nil, ErrBusy
	}

	if !actor.Administrator {
		existing, err := m.store.Query(ctx, map[string]any{
			"guild_id": actor.GuildID,
			"author":   actor.ID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to check facility quota: %w", err)
		}
		if len(existing) >= m.quota {
			return nil, ErrQuota
		}
	}

	// Check-and-insert under one lock; the guard has no suspension point.
	m.mu.Lock()
	if _, busy := m.creating[actor.ID]; busy {
		m.mu.Unlock()
		return nil, ErrBusy
	}
	m.creating[actor.ID] = struct{}{}
	m.mu.Unlock()

	s := New(Config{
		Mode:      ModeCreate,
		Author:    actor,
		Facility:  f,
		Store:     m.store,
		Bus:       m.bus,
		Logger:    m.logger,
		Timeout:   m.timeout,
		DisableUI: disableUI,
		OnClose:   m.sessionClosed,
	})
	m.register(s)
	return s, nil
}

// StartModify opens a modify-mode session. Each invocation loads a fresh
// copy of the entity, so no busy guard is needed.
func (m *Manager) StartModify(ctx context.Context, actor facility.Actor, f *facility.Facility, disableUI func()) (*Session, error) {
	s := New(Config{
		Mode:      ModeModify,
		Author:    actor,
		Facility:  f,
		Store:     m.store,
		Bus:       m.bus,
		Logger:    m.logger,
		Timeout:   m.timeout,
		DisableUI: disableUI,
		OnClose:   m.sessionClosed,
	})
	m.register(s)
	return s, nil
}

func (m *Manager) register(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.ActiveSessions.WithLabelValues(string(s.Mode())).Inc()
	}
}

// sessionClosed releases every guard a session held. It runs on every exit
// path: success, store failure, cancel and timeout.
func (m *Manager) sessionClosed(s *Session, outcome Outcome) {
	m.mu.Lock()
	delete(m.sessions, s.ID())
	if s.Mode() == ModeCreate {
		delete(m.creating, s.author.ID)
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveSessions.WithLabelValues(string(s.Mode())).Dec()
		m.metrics.SessionOutcome.WithLabelValues(string(s.Mode()), string(outcome)).Inc()
	}
	m.logger.Info("session closed",
		"session_id", s.ID(),
		"mode", s.Mode(),
		"outcome", outcome,
		"guild_id", s.fac.GuildID)
}

// Session resolves a live editing session by ID.
func (m *Manager) Session(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Removal resolves a live removal confirmation by ID.
func (m *Manager) Removal(id string) (*Removal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.removals[id]
	return r, ok
}

// Run sweeps expired sessions until ctx is done. Expiry takes the session's
// own lock, so it never preempts a handler mid-flight.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	m.mu.Lock()
	candidates := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		candidates = append(candidates, s)
	}
	stale := make([]*Removal, 0)
	for _, r := range m.removals {
		if r.Expired() {
			stale = append(stale, r)
		}
	}
	m.mu.Unlock()

	for _, s := range candidates {
		s.Expire()
	}
	for _, r := range stale {
		m.removalClosed(r)
	}
}
