package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AlexJFox/FacilityLocator/internal/events"
	"github.com/AlexJFox/FacilityLocator/internal/facility"
	"github.com/google/uuid"
)

// RemovalSet is the partition of removal candidates for one actor.
type RemovalSet struct {
	// Eligible are same-guild facilities the actor may remove.
	Eligible []*facility.Facility

	// NotFound counts requested IDs that resolved to no record. Only the
	// ID-based flow populates it; the user-based flow inspects existing
	// rows only and deliberately reports no such category.
	NotFound int

	// Denied counts found facilities the actor may not remove (wrong guild
	// or missing permission).
	Denied int
}

// Partition splits found candidates by guild membership and CanModify.
// requested is the number of identities originally asked for; the
// difference against len(found) becomes NotFound. Administrators bypass the
// permission check but not the guild check.
func Partition(found []*facility.Facility, requested int, actor facility.Actor, facilityRoles []string) RemovalSet {
	set := RemovalSet{NotFound: requested - len(found)}
	if set.NotFound < 0 {
		set.NotFound = 0
	}
	for _, f := range found {
		if f.GuildID != actor.GuildID {
			set.Denied++
			continue
		}
		if !f.CanModify(actor, facilityRoles) {
			set.Denied++
			continue
		}
		set.Eligible = append(set.Eligible, f)
	}
	return set
}

// Removal is the pending confirmation for one bulk removal. Like an editing
// session it is single-owner and deadline-bound, but its only terminal
// action is the confirm button.
type Removal struct {
	id       string
	actor    facility.Actor
	set      RemovalSet
	deadline time.Time

	manager *Manager

	mu   sync.Mutex
	done bool
}

// StartRemoval opens a removal confirmation, or ErrNoEligible when nothing
// survives the partition — in that case no UI is shown at all.
func (m *Manager) StartRemoval(actor facility.Actor, set RemovalSet) (*Removal, error) {
	if len(set.Eligible) == 0 {
		return nil, ErrNoEligible
	}
	r := &Removal{
		id:       uuid.NewString(),
		actor:    actor,
		set:      set,
		deadline: time.Now().Add(m.timeout),
		manager:  m,
	}
	m.mu.Lock()
	m.removals[r.id] = r
	m.mu.Unlock()
	return r, nil
}

// ID is the removal identity embedded in the confirm button's custom ID.
func (r *Removal) ID() string { return r.id }

// Set returns the partition backing this confirmation.
func (r *Removal) Set() RemovalSet { return r.set }

// Owns reports whether actor opened this confirmation.
func (r *Removal) Owns(actor facility.Actor) bool {
	return actor.ID == r.actor.ID
}

// Expired reports whether the confirmation deadline has passed.
func (r *Removal) Expired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.done && time.Now().After(r.deadline)
}

// Confirm deletes every eligible facility in one batch. The first confirm
// wins; later signals are no-ops. A store failure removes nothing as far as
// the caller can tell.
func (r *Removal) Confirm(ctx context.Context, actor facility.Actor, rend Renderer) error {
	r.mu.Lock()
	if r.done || actor.ID != r.actor.ID {
		r.mu.Unlock()
		return nil
	}
	r.done = true
	r.mu.Unlock()
	defer r.manager.removalClosed(r)

	m := r.manager
	if err := m.store.RemoveMany(ctx, r.set.Eligible); err != nil {
		m.logger.Error("bulk removal failed",
			"error", err,
			"guild_id", r.actor.GuildID,
			"count", len(r.set.Eligible))
		if ferr := rend.Fail("Failed to remove facilities: " + err.Error()); ferr != nil {
			return ferr
		}
		return err
	}

	m.bus.Publish(ctx, events.BulkFacilityDelete{Facilities: r.set.Eligible, Actor: actor})
	return rend.Success(fmt.Sprintf("Removed %d %s",
		len(r.set.Eligible), plural("facility", "facilities", len(r.set.Eligible))))
}

func (m *Manager) removalClosed(r *Removal) {
	m.mu.Lock()
	delete(m.removals, r.id)
	m.mu.Unlock()
}

func plural(one, many string, n int) string {
	if n == 1 {
		return one
	}
	return many
}
