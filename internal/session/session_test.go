package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AlexJFox/FacilityLocator/internal/events"
	"github.com/AlexJFox/FacilityLocator/internal/facility"
	"github.com/AlexJFox/FacilityLocator/internal/storage"
)

// memStore is an in-memory storage.Store with failure injection.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*facility.Facility

	addErr    error
	updateErr error
	removeErr error

	addCalls    int
	updateCalls int
	removeCalls int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[int64]*facility.Facility)}
}

func (s *memStore) Add(ctx context.Context, f *facility.Facility) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addCalls++
	if s.addErr != nil {
		return 0, s.addErr
	}
	s.nextID++
	clone := *f
	clone.ID = s.nextID
	s.rows[clone.ID] = &clone
	return clone.ID, nil
}

func (s *memStore) Update(ctx context.Context, f *facility.Facility) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if s.updateErr != nil {
		return s.updateErr
	}
	if _, ok := s.rows[f.ID]; !ok {
		return storage.ErrNotFound
	}
	clone := *f
	s.rows[f.ID] = &clone
	return nil
}

func (s *memStore) RemoveMany(ctx context.Context, facilities []*facility.Facility) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeCalls++
	if s.removeErr != nil {
		return s.removeErr
	}
	for _, f := range facilities {
		delete(s.rows, f.ID)
	}
	return nil
}

func (s *memStore) Query(ctx context.Context, predicates map[string]any) ([]*facility.Facility, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*facility.Facility
	for _, f := range s.rows {
		if guild, ok := predicates["guild_id"]; ok && f.GuildID != guild {
			continue
		}
		if author, ok := predicates["author"]; ok && f.Author != author {
			continue
		}
		if region, ok := predicates["region"]; ok && f.Region != region {
			continue
		}
		clone := *f
		out = append(out, &clone)
	}
	return out, nil
}

func (s *memStore) GetByID(ctx context.Context, id int64) (*facility.Facility, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.rows[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *f
	return &clone, nil
}

func (s *memStore) GetByIDs(ctx context.Context, ids []int64) ([]*facility.Facility, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*facility.Facility
	for _, id := range ids {
		if f, ok := s.rows[id]; ok {
			clone := *f
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *memStore) SetRoles(ctx context.Context, guildID string, roleIDs []string) error {
	return nil
}
func (s *memStore) GetRoles(ctx context.Context, guildID string) ([]string, error) {
	return nil, nil
}
func (s *memStore) SetList(ctx context.Context, cfg storage.ListConfig) error { return nil }
func (s *memStore) GetList(ctx context.Context, guildID string) (storage.ListConfig, error) {
	return storage.ListConfig{}, storage.ErrNotFound
}
func (s *memStore) RemoveList(ctx context.Context, guildID string) error     { return nil }
func (s *memStore) ListGuildsWithList(ctx context.Context) ([]string, error) { return nil, nil }
func (s *memStore) Close() error                                             { return nil }

// recorder implements Renderer and records every call.
type recorder struct {
	renders   int
	disabled  int
	warns     []string
	successes []string
	fails     []string
}

func (r *recorder) Render(f *facility.Facility, disabled bool) error {
	r.renders++
	if disabled {
		r.disabled++
	}
	return nil
}
func (r *recorder) Warn(msg string) error    { r.warns = append(r.warns, msg); return nil }
func (r *recorder) Success(msg string) error { r.successes = append(r.successes, msg); return nil }
func (r *recorder) Fail(msg string) error    { r.fails = append(r.fails, msg); return nil }

func owner() facility.Actor {
	return facility.Actor{ID: "user-1", GuildID: "guild-1"}
}

func newFacility() *facility.Facility {
	return facility.New("Depot", "Deadlands", "f7", "Town Base", "Victa", "user-1", "guild-1", "")
}

type capturedEvents struct {
	mu  sync.Mutex
	all []events.Event
}

func (c *capturedEvents) handler(ctx context.Context, ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all = append(c.all, ev)
}

func (c *capturedEvents) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.all)
}

func newTestManager(store storage.Store) (*Manager, *capturedEvents) {
	captured := &capturedEvents{}
	bus := events.NewBus(nil)
	bus.Subscribe(captured.handler)
	m := NewManager(ManagerConfig{
		Store: store,
		Bus:   bus,
	})
	return m, captured
}

func TestConfirm_RejectsEmptyServices(t *testing.T) {
	store := newMemStore()
	m, captured := newTestManager(store)

	s, err := m.StartCreate(context.Background(), owner(), newFacility(), nil)
	if err != nil {
		t.Fatalf("StartCreate: %v", err)
	}

	r := &recorder{}
	if err := s.HandleConfirm(context.Background(), owner(), r); err != nil {
		t.Fatalf("HandleConfirm: %v", err)
	}

	if len(r.warns) != 1 {
		t.Fatalf("warns = %v, want one warning", r.warns)
	}
	if store.addCalls != 0 {
		t.Error("store was called despite empty service mask")
	}
	if s.State() != StateRendering {
		t.Errorf("state = %v, want Rendering (session stays open)", s.State())
	}
	if captured.count() != 0 {
		t.Error("no event should be emitted")
	}
}

func TestConfirm_Create(t *testing.T) {
	store := newMemStore()
	m, captured := newTestManager(store)

	f := newFacility()
	s, err := m.StartCreate(context.Background(), owner(), f, nil)
	if err != nil {
		t.Fatalf("StartCreate: %v", err)
	}

	r := &recorder{}
	_ = s.HandleItemSelect(owner(), []string{"Fuel"}, r)
	if err := s.HandleConfirm(context.Background(), owner(), r); err != nil {
		t.Fatalf("HandleConfirm: %v", err)
	}

	if s.State() != StateClosedSuccess {
		t.Fatalf("state = %v, want ClosedSuccess", s.State())
	}
	if f.ID == 0 {
		t.Error("facility ID not assigned")
	}
	if f.CreationTime == 0 {
		t.Error("creation time not set")
	}
	if r.disabled == 0 {
		t.Error("view was not disabled before commit")
	}
	if len(r.successes) != 1 {
		t.Errorf("successes = %v", r.successes)
	}
	if captured.count() != 1 {
		t.Fatalf("events = %d, want 1", captured.count())
	}
	if _, ok := captured.all[0].(events.FacilityCreate); !ok {
		t.Errorf("event = %T, want FacilityCreate", captured.all[0])
	}

	// Guard released: a second create may start.
	if _, err := m.StartCreate(context.Background(), owner(), newFacility(), nil); err != nil {
		t.Errorf("guard not released after success: %v", err)
	}
}

func TestConfirm_TerminalActionIdempotent(t *testing.T) {
	store := newMemStore()
	m, captured := newTestManager(store)

	s, _ := m.StartCreate(context.Background(), owner(), newFacility(), nil)
	r := &recorder{}
	_ = s.HandleItemSelect(owner(), []string{"Fuel"}, r)

	if err := s.HandleConfirm(context.Background(), owner(), r); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if err := s.HandleConfirm(context.Background(), owner(), r); err != nil {
		t.Fatalf("duplicate confirm: %v", err)
	}

	if store.addCalls != 1 {
		t.Errorf("addCalls = %d, want 1", store.addCalls)
	}
	if captured.count() != 1 {
		t.Errorf("events = %d, want 1", captured.count())
	}
	if len(r.successes) != 1 {
		t.Errorf("successes = %v, want one", r.successes)
	}
}

func TestConfirm_ModifyNoChanges(t *testing.T) {
	store := newMemStore()
	m, captured := newTestManager(store)

	f := newFacility()
	f.SetServices([]string{"Fuel"}, false)
	f.ID = 1

	s, err := m.StartModify(context.Background(), owner(), f, nil)
	if err != nil {
		t.Fatalf("StartModify: %v", err)
	}

	r := &recorder{}
	if err := s.HandleConfirm(context.Background(), owner(), r); err != nil {
		t.Fatalf("HandleConfirm: %v", err)
	}

	if len(r.warns) != 1 {
		t.Fatalf("warns = %v, want a no-changes warning", r.warns)
	}
	if store.updateCalls != 0 {
		t.Error("store was called despite no changes")
	}
	if s.State() != StateRendering {
		t.Errorf("state = %v, want Rendering", s.State())
	}
	if captured.count() != 0 {
		t.Error("no event should be emitted")
	}
}

func TestConfirm_ModifyCommits(t *testing.T) {
	store := newMemStore()
	m, captured := newTestManager(store)

	seed := newFacility()
	seed.SetServices([]string{"Fuel"}, false)
	id, _ := store.Add(context.Background(), seed)

	f, _ := store.GetByID(context.Background(), id)
	s, _ := m.StartModify(context.Background(), owner(), f, nil)

	r := &recorder{}
	_ = s.HandleVehicleSelect(owner(), []string{"Tanks"}, r)
	if err := s.HandleConfirm(context.Background(), owner(), r); err != nil {
		t.Fatalf("HandleConfirm: %v", err)
	}

	if s.State() != StateClosedSuccess {
		t.Fatalf("state = %v, want ClosedSuccess", s.State())
	}
	if captured.count() != 1 {
		t.Fatalf("events = %d, want 1", captured.count())
	}
	ev, ok := captured.all[0].(events.FacilityModify)
	if !ok {
		t.Fatalf("event = %T, want FacilityModify", captured.all[0])
	}
	if ev.Before == nil || ev.Before.VehicleServices != 0 {
		t.Error("before snapshot should predate the vehicle edit")
	}
	if ev.After.VehicleServices == 0 {
		t.Error("after snapshot missing the vehicle edit")
	}
}

func TestNonOwnerEventsIgnored(t *testing.T) {
	store := newMemStore()
	m, _ := newTestManager(store)

	f := newFacility()
	s, _ := m.StartCreate(context.Background(), owner(), f, nil)

	stranger := facility.Actor{ID: "user-2", GuildID: "guild-1"}
	r := &recorder{}

	_ = s.HandleItemSelect(stranger, []string{"Fuel"}, r)
	if f.ItemServices != 0 {
		t.Error("non-owner select mutated the entity")
	}
	_ = s.HandleInformation(stranger, "", "sneaky", "", "", r)
	if f.Description != "" {
		t.Error("non-owner modal mutated the entity")
	}
	_ = s.HandleConfirm(context.Background(), stranger, r)
	if s.State() != StateRendering {
		t.Error("non-owner confirm moved session state")
	}
	_ = s.HandleQuit(stranger, r)
	if s.State() != StateRendering {
		t.Error("non-owner quit moved session state")
	}
	if r.renders != 0 || len(r.warns)+len(r.successes)+len(r.fails) != 0 {
		t.Error("non-owner events produced output")
	}
}

func TestCreateGuard(t *testing.T) {
	t.Run("second create rejected before UI", func(t *testing.T) {
		store := newMemStore()
		m, _ := newTestManager(store)

		if _, err := m.StartCreate(context.Background(), owner(), newFacility(), nil); err != nil {
			t.Fatalf("first StartCreate: %v", err)
		}
		if _, err := m.StartCreate(context.Background(), owner(), newFacility(), nil); !errors.Is(err, ErrBusy) {
			t.Fatalf("second StartCreate err = %v, want ErrBusy", err)
		}
	})

	t.Run("released on cancel", func(t *testing.T) {
		store := newMemStore()
		m, _ := newTestManager(store)
		s, _ := m.StartCreate(context.Background(), owner(), newFacility(), nil)
		_ = s.HandleQuit(owner(), &recorder{})
		if _, err := m.StartCreate(context.Background(), owner(), newFacility(), nil); err != nil {
			t.Errorf("guard not released after cancel: %v", err)
		}
	})

	t.Run("released on store failure", func(t *testing.T) {
		store := newMemStore()
		store.addErr = errors.New("disk full")
		m, _ := newTestManager(store)
		s, _ := m.StartCreate(context.Background(), owner(), newFacility(), nil)
		r := &recorder{}
		_ = s.HandleItemSelect(owner(), []string{"Fuel"}, r)
		_ = s.HandleConfirm(context.Background(), owner(), r)
		if s.State() != StateClosedRejected {
			t.Fatalf("state = %v, want ClosedRejected", s.State())
		}
		if _, err := m.StartCreate(context.Background(), owner(), newFacility(), nil); err != nil {
			t.Errorf("guard not released after store failure: %v", err)
		}
	})

	t.Run("released on timeout", func(t *testing.T) {
		store := newMemStore()
		m, _ := newTestManager(store)
		s, _ := m.StartCreate(context.Background(), owner(), newFacility(), nil)
		s.deadline = time.Now().Add(-time.Second)
		if !s.Expire() {
			t.Fatal("Expire returned false for a stale session")
		}
		if s.State() != StateClosedTimeout {
			t.Fatalf("state = %v, want ClosedTimeout", s.State())
		}
		if _, err := m.StartCreate(context.Background(), owner(), newFacility(), nil); err != nil {
			t.Errorf("guard not released after timeout: %v", err)
		}
	})
}

func TestCreateQuota(t *testing.T) {
	store := newMemStore()
	m, _ := newTestManager(store)

	for i := 0; i < 5; i++ {
		f := newFacility()
		f.SetServices([]string{"Fuel"}, false)
		if _, err := store.Add(context.Background(), f); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	if _, err := m.StartCreate(context.Background(), owner(), newFacility(), nil); !errors.Is(err, ErrQuota) {
		t.Fatalf("err = %v, want ErrQuota", err)
	}

	admin := owner()
	admin.Administrator = true
	if _, err := m.StartCreate(context.Background(), admin, newFacility(), nil); err != nil {
		t.Errorf("administrator should be exempt from the quota: %v", err)
	}
}

func TestStoreFailureClosesClean(t *testing.T) {
	store := newMemStore()
	store.updateErr = errors.New("database locked")
	m, captured := newTestManager(store)

	f := newFacility()
	f.ID = 3
	f.SetServices([]string{"Fuel"}, false)
	s, _ := m.StartModify(context.Background(), owner(), f, nil)

	r := &recorder{}
	_ = s.HandleVehicleSelect(owner(), []string{"Tanks"}, r)
	err := s.HandleConfirm(context.Background(), owner(), r)
	if err == nil {
		t.Fatal("expected the store error to propagate for logging")
	}

	if s.State() != StateClosedRejected {
		t.Fatalf("state = %v, want ClosedRejected", s.State())
	}
	if len(r.fails) != 1 {
		t.Errorf("fails = %v, want one failure report with detail", r.fails)
	}
	if captured.count() != 0 {
		t.Error("no event on failed commit")
	}

	// Terminal: a retry signal does nothing.
	_ = s.HandleConfirm(context.Background(), owner(), r)
	if store.updateCalls != 1 {
		t.Errorf("updateCalls = %d, want 1", store.updateCalls)
	}
}

func TestExpire_OnlyFromRendering(t *testing.T) {
	store := newMemStore()
	m, _ := newTestManager(store)
	s, _ := m.StartCreate(context.Background(), owner(), newFacility(), nil)

	if s.Expire() {
		t.Error("Expire fired before the deadline")
	}

	r := &recorder{}
	_ = s.HandleItemSelect(owner(), []string{"Fuel"}, r)
	_ = s.HandleConfirm(context.Background(), owner(), r)
	s.deadline = time.Now().Add(-time.Second)
	if s.Expire() {
		t.Error("Expire fired on a closed session")
	}
	if s.State() != StateClosedSuccess {
		t.Errorf("state = %v, want ClosedSuccess", s.State())
	}
}

func TestInteractionRefreshesDeadline(t *testing.T) {
	t.Run("service select", func(t *testing.T) {
		store := newMemStore()
		m, _ := newTestManager(store)
		s, _ := m.StartCreate(context.Background(), owner(), newFacility(), nil)

		s.deadline = time.Now().Add(-time.Second)
		_ = s.HandleItemSelect(owner(), []string{"Fuel"}, &recorder{})

		if s.Expire() {
			t.Fatal("session expired right after an interaction")
		}
		if s.State() != StateRendering {
			t.Errorf("state = %v, want Rendering", s.State())
		}
		if !s.Deadline().After(time.Now()) {
			t.Error("deadline not pushed forward by the interaction")
		}
	})

	t.Run("information modal", func(t *testing.T) {
		store := newMemStore()
		m, _ := newTestManager(store)
		s, _ := m.StartCreate(context.Background(), owner(), newFacility(), nil)

		s.deadline = time.Now().Add(-time.Second)
		_ = s.HandleInformation(owner(), "Depot", "desc", "Victa", "", &recorder{})

		if s.Expire() {
			t.Fatal("session expired right after a modal submit")
		}
	})

	t.Run("rejected confirm keeps the session alive", func(t *testing.T) {
		store := newMemStore()
		m, _ := newTestManager(store)
		s, _ := m.StartCreate(context.Background(), owner(), newFacility(), nil)

		// No services selected, so the confirm is a validation warning
		// that returns to Rendering. It still counts as activity.
		s.deadline = time.Now().Add(-time.Second)
		_ = s.HandleConfirm(context.Background(), owner(), &recorder{})

		if s.Expire() {
			t.Fatal("session expired right after a validation warning")
		}
	})

	t.Run("stranger interactions do not refresh", func(t *testing.T) {
		store := newMemStore()
		m, _ := newTestManager(store)
		s, _ := m.StartCreate(context.Background(), owner(), newFacility(), nil)

		stranger := facility.Actor{ID: "user-2", GuildID: "guild-1"}
		s.deadline = time.Now().Add(-time.Second)
		_ = s.HandleItemSelect(stranger, []string{"Fuel"}, &recorder{})

		if !s.Expire() {
			t.Error("a stranger's event kept the session alive")
		}
	})
}

func TestCooldownGate(t *testing.T) {
	g := NewGate()
	base := time.Unix(1000, 0)
	g.now = func() time.Time { return base }

	if err := g.Try("g:u:create", 20*time.Second); err != nil {
		t.Fatalf("first use: %v", err)
	}
	err := g.Try("g:u:create", 20*time.Second)
	var cd *CooldownError
	if !errors.As(err, &cd) {
		t.Fatalf("err = %v, want CooldownError", err)
	}
	if cd.Remaining <= 0 || cd.Remaining > 20*time.Second {
		t.Errorf("remaining = %v", cd.Remaining)
	}

	// Other keys are independent.
	if err := g.Try("g:u2:create", 20*time.Second); err != nil {
		t.Errorf("other user gated: %v", err)
	}

	base = base.Add(21 * time.Second)
	if err := g.Try("g:u:create", 20*time.Second); err != nil {
		t.Errorf("after window: %v", err)
	}
}
