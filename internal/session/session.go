// Package session implements the interactive editing flows: the per-user
// facility editing session, the bulk removal confirmation, and the manager
// that gates both behind quotas, cooldowns and the single-create guard.
package session

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/AlexJFox/FacilityLocator/internal/events"
	"github.com/AlexJFox/FacilityLocator/internal/facility"
	"github.com/AlexJFox/FacilityLocator/internal/storage"
	"github.com/google/uuid"
)

// Mode selects the session flavor.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeModify Mode = "modify"
)

// State is the session lifecycle state.
type State int

const (
	StateRendering State = iota
	StateValidating
	StateCommitting
	StateClosedSuccess
	StateClosedRejected
	StateClosedTimeout
	StateClosedCancelled
)

// Outcome labels how a session ended, for metrics and the manager hook.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeTimeout   Outcome = "timeout"
)

// Renderer is the UI surface a session draws on. The bot layer implements
// it per interaction; tests implement it with a recorder.
type Renderer interface {
	// Render redraws the session view in place. disabled renders every
	// interactive element inert.
	Render(f *facility.Facility, disabled bool) error

	// Warn reports a validation failure; the session stays open.
	Warn(msg string) error

	// Success reports a committed terminal action.
	Success(msg string) error

	// Fail reports a store failure on the terminal path.
	Fail(msg string) error
}

// Session is the ephemeral editing controller for one facility. Exactly one
// session owns the entity between open and close; only OriginalAuthor's
// events drive it.
type Session struct {
	id      string
	mode    Mode
	author  facility.Actor
	fac     *facility.Facility
	timeout time.Duration

	// deadline slides forward on every owner interaction; only a full
	// timeout of quiet closes the session. Guarded by mu.
	deadline time.Time

	store  storage.Store
	bus    *events.Bus
	logger *slog.Logger

	// disableUI redraws the view disabled when the session expires without
	// an interaction to respond to.
	disableUI func()

	// onClose runs exactly once when the session leaves Rendering for good.
	onClose func(s *Session, outcome Outcome)

	mu    sync.Mutex
	state State
}

// Config assembles a session.
type Config struct {
	Mode      Mode
	Author    facility.Actor
	Facility  *facility.Facility
	Store     storage.Store
	Bus       *events.Bus
	Logger    *slog.Logger
	Timeout   time.Duration
	DisableUI func()
	OnClose   func(s *Session, outcome Outcome)
}

// New builds a session and takes the entity snapshot that Changed compares
// against.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	cfg.Facility.Snapshot()
	return &Session{
		id:        uuid.NewString(),
		mode:      cfg.Mode,
		author:    cfg.Author,
		fac:       cfg.Facility,
		timeout:   cfg.Timeout,
		deadline:  time.Now().Add(cfg.Timeout),
		store:     cfg.Store,
		bus:       cfg.Bus,
		logger:    cfg.Logger.With("component", "session", "mode", cfg.Mode),
		disableUI: cfg.DisableUI,
		onClose:   cfg.OnClose,
	}
}

// ID is the session identity embedded in component custom IDs.
func (s *Session) ID() string { return s.id }

// Mode returns the session flavor.
func (s *Session) Mode() Mode { return s.mode }

// Facility exposes the entity for read-only projection (modal prefill,
// embeds). Mutation stays inside the session handlers.
func (s *Session) Facility() *facility.Facility { return s.fac }

// Deadline is the wall-clock instant the session self-terminates at if no
// further interaction arrives.
func (s *Session) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

// touch extends the deadline after an owner interaction. Callers hold mu.
func (s *Session) touch() {
	s.deadline = time.Now().Add(s.timeout)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// owns reports whether actor may drive this session. A mismatch is an
// authorization rejection, not an error: the event is dropped silently.
func (s *Session) owns(actor facility.Actor) bool {
	return actor.ID == s.author.ID
}

// Owns reports whether actor is the session author. The bot layer uses it
// to gate responses that must be sent before a handler runs, like modals.
func (s *Session) Owns(actor facility.Actor) bool {
	return s.owns(actor)
}

// HandleItemSelect replaces the item service mask from the selection and
// redraws the view.
func (s *Session) HandleItemSelect(actor facility.Actor, values []string, r Renderer) error {
	return s.handleSelect(actor, values, false, r)
}

// HandleVehicleSelect replaces the vehicle service mask from the selection
// and redraws the view.
func (s *Session) HandleVehicleSelect(actor facility.Actor, values []string, r Renderer) error {
	return s.handleSelect(actor, values, true, r)
}

func (s *Session) handleSelect(actor facility.Actor, values []string, vehicle bool, r Renderer) error {
	s.mu.Lock()
	if s.state != StateRendering || !s.owns(actor) {
		s.mu.Unlock()
		return nil
	}
	s.fac.SetServices(values, vehicle)
	s.touch()
	s.mu.Unlock()
	return r.Render(s.fac, false)
}

// HandleInformation applies the description-edit modal and redraws.
func (s *Session) HandleInformation(actor facility.Actor, name, description, maintainer, imageURL string, r Renderer) error {
	s.mu.Lock()
	if s.state != StateRendering || !s.owns(actor) {
		s.mu.Unlock()
		return nil
	}
	if name != "" {
		s.fac.Name = name
	}
	if maintainer != "" {
		s.fac.Maintainer = maintainer
	}
	s.fac.Description = description
	s.fac.ImageURL = imageURL
	s.touch()
	s.mu.Unlock()
	return r.Render(s.fac, false)
}

// HandleConfirm runs the terminal Create/Update action: validate, disable
// the view, commit, report, emit. The first terminal action wins; duplicate
// signals are no-ops.
func (s *Session) HandleConfirm(ctx context.Context, actor facility.Actor, r Renderer) error {
	s.mu.Lock()
	if s.state != StateRendering || !s.owns(actor) {
		s.mu.Unlock()
		return nil
	}

	s.state = StateValidating
	if err := s.fac.Validate(); err != nil {
		s.state = StateRendering
		s.touch()
		s.mu.Unlock()
		return r.Warn("Please select at least one service")
	}
	if s.mode == ModeModify && !s.fac.Changed() {
		s.state = StateRendering
		s.touch()
		s.mu.Unlock()
		return r.Warn("No changes")
	}
	s.state = StateCommitting
	s.mu.Unlock()

	// The view is disabled before the store call suspends; once here no
	// other event can move the session.
	if err := r.Render(s.fac, true); err != nil {
		s.logger.Warn("failed to disable view", "error", err)
	}

	if s.fac.CreationTime == 0 {
		s.fac.CreationTime = time.Now().Unix()
	}

	switch s.mode {
	case ModeCreate:
		id, err := s.store.Add(ctx, s.fac)
		if err != nil {
			return s.reject(ctx, "Failed to create facility", err, r)
		}
		s.fac.ID = id
		s.close(OutcomeSuccess)
		s.bus.Publish(ctx, events.FacilityCreate{Facility: s.fac, Actor: actor})
		return r.Success("Created facility with ID: " + formatID(id))
	default:
		if err := s.store.Update(ctx, s.fac); err != nil {
			return s.reject(ctx, "Failed to modify facility", err, r)
		}
		before := s.fac.Initial()
		s.close(OutcomeSuccess)
		s.bus.Publish(ctx, events.FacilityModify{Before: before, After: s.fac, Actor: actor})
		return r.Success("Modified facility")
	}
}

// reject reports a store failure and closes the session failed-but-clean.
// The entity is discarded; nothing is retried.
func (s *Session) reject(ctx context.Context, msg string, err error, r Renderer) error {
	s.logger.Error("commit failed",
		"error", err,
		"guild_id", s.fac.GuildID,
		"facility_id", s.fac.ID)
	s.close(OutcomeRejected)
	if ferr := r.Fail(msg + ": " + err.Error()); ferr != nil {
		return ferr
	}
	return err
}

// HandleQuit cancels the session: UI disabled, entity discarded, nothing
// further reported.
func (s *Session) HandleQuit(actor facility.Actor, r Renderer) error {
	s.mu.Lock()
	if s.state != StateRendering || !s.owns(actor) {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosedCancelled
	s.mu.Unlock()

	s.finish(OutcomeCancelled)
	return r.Render(s.fac, true)
}

// Expire closes a session whose deadline passed without interaction.
// It only fires from Rendering; a commit in flight runs to completion.
func (s *Session) Expire() bool {
	s.mu.Lock()
	if s.state != StateRendering || time.Now().Before(s.deadline) {
		s.mu.Unlock()
		return false
	}
	s.state = StateClosedTimeout
	s.mu.Unlock()

	if s.disableUI != nil {
		s.disableUI()
	}
	s.finish(OutcomeTimeout)
	return true
}

// close moves to the terminal state for outcome and runs the manager hook.
func (s *Session) close(outcome Outcome) {
	s.mu.Lock()
	switch outcome {
	case OutcomeSuccess:
		s.state = StateClosedSuccess
	default:
		s.state = StateClosedRejected
	}
	s.mu.Unlock()
	s.finish(outcome)
}

func (s *Session) finish(outcome Outcome) {
	if s.onClose != nil {
		s.onClose(s, outcome)
	}
}

func formatID(id int64) string {
	return "`" + strconv.FormatInt(id, 10) + "`"
}
