// Package events carries facility domain events from the session layer to
// the list mirror and logging collaborators.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/AlexJFox/FacilityLocator/internal/facility"
)

// Event is one facility domain event. Each carries enough data for a
// consumer to re-render or log without re-querying the store.
type Event interface {
	// Name is the event name used for logging.
	Name() string

	// GuildID is the guild the event happened in.
	GuildID() string
}

// FacilityCreate is published after a create-mode session commits.
type FacilityCreate struct {
	Facility *facility.Facility
	Actor    facility.Actor
}

func (e FacilityCreate) Name() string    { return "facility_create" }
func (e FacilityCreate) GuildID() string { return e.Facility.GuildID }

// FacilityModify is published after a modify-mode session commits, carrying
// the pre-edit snapshot alongside the committed state.
type FacilityModify struct {
	Before *facility.Facility
	After  *facility.Facility
	Actor  facility.Actor
}

func (e FacilityModify) Name() string    { return "facility_modify" }
func (e FacilityModify) GuildID() string { return e.After.GuildID }

// BulkFacilityDelete is published after a confirmed bulk removal.
type BulkFacilityDelete struct {
	Facilities []*facility.Facility
	Actor      facility.Actor
}

func (e BulkFacilityDelete) Name() string { return "bulk_facility_delete" }
func (e BulkFacilityDelete) GuildID() string {
	if len(e.Facilities) == 0 {
		return ""
	}
	return e.Facilities[0].GuildID
}

// Handler consumes one event. Handlers must not block for long; they run
// inline on the publishing goroutine.
type Handler func(ctx context.Context, ev Event)

// Bus is a synchronous in-process event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *slog.Logger
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger.With("component", "events")}
}

// Subscribe registers a handler for all events.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers ev to every subscriber in registration order.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	b.logger.Debug("publishing event", "event", ev.Name(), "guild_id", ev.GuildID())
	for _, h := range handlers {
		h(ctx, ev)
	}
}
