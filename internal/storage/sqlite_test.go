package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/AlexJFox/FacilityLocator/internal/facility"
	"github.com/DATA-DOG/go-sqlmock"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testFacility(name, author, guildID string) *facility.Facility {
	f := facility.New(name, "Deadlands", "f7", "Town Base", "Victa", author, guildID, "")
	f.SetServices([]string{"Fuel"}, false)
	f.CreationTime = 1700000000
	return f
}

func TestAddGetUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f := testFacility("Depot", "user-1", "g1")
	f.Description = "fuel depot"
	id, err := s.Add(ctx, f)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id == 0 {
		t.Fatal("Add returned zero ID")
	}

	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Name != "Depot" || got.Coordinates != "F7" || got.Description != "fuel depot" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.ItemServices != f.ItemServices {
		t.Errorf("item services = %d, want %d", got.ItemServices, f.ItemServices)
	}

	got.Name = "Depot II"
	got.SetServices([]string{"Tanks"}, true)
	if err := s.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	updated, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID after update: %v", err)
	}
	if updated.Name != "Depot II" || updated.VehicleServices == 0 {
		t.Errorf("update not persisted: %+v", updated)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetByID(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateMissingRow(t *testing.T) {
	s := openTestStore(t)
	f := testFacility("Ghost", "user-1", "g1")
	f.ID = 42
	if err := s.Update(context.Background(), f); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f := testFacility(fmt.Sprintf("Depot %d", i+1), "user-1", "g1")
		if _, err := s.Add(ctx, f); err != nil {
			t.Fatal(err)
		}
	}
	other := testFacility("Elsewhere", "user-2", "g2")
	if _, err := s.Add(ctx, other); err != nil {
		t.Fatal(err)
	}

	t.Run("by guild", func(t *testing.T) {
		got, err := s.Query(ctx, map[string]any{"guild_id": "g1"})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(got) != 3 {
			t.Errorf("len = %d, want 3", len(got))
		}
	})

	t.Run("by guild and author", func(t *testing.T) {
		got, err := s.Query(ctx, map[string]any{"guild_id": "g2", "author": "user-2"})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(got) != 1 || got[0].Name != "Elsewhere" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("no predicates returns all", func(t *testing.T) {
		got, err := s.Query(ctx, nil)
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(got) != 4 {
			t.Errorf("len = %d, want 4", len(got))
		}
	})

	t.Run("unsupported column rejected", func(t *testing.T) {
		if _, err := s.Query(ctx, map[string]any{"description": "x"}); err == nil {
			t.Error("expected error for unlisted column")
		}
	})
}

func TestGetByIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 2; i++ {
		id, err := s.Add(ctx, testFacility(fmt.Sprintf("Depot %d", i+1), "user-1", "g1"))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	got, err := s.GetByIDs(ctx, append(ids, 999))
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2; missing IDs are skipped, not errors", len(got))
	}

	if got, err := s.GetByIDs(ctx, nil); err != nil || got != nil {
		t.Errorf("empty input: got %v, %v", got, err)
	}
}

func TestRemoveMany(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var facilities []*facility.Facility
	for i := 0; i < 3; i++ {
		f := testFacility(fmt.Sprintf("Depot %d", i+1), "user-1", "g1")
		id, err := s.Add(ctx, f)
		if err != nil {
			t.Fatal(err)
		}
		f.ID = id
		facilities = append(facilities, f)
	}

	if err := s.RemoveMany(ctx, facilities[:2]); err != nil {
		t.Fatalf("RemoveMany: %v", err)
	}
	remaining, err := s.Query(ctx, map[string]any{"guild_id": "g1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].ID != facilities[2].ID {
		t.Errorf("remaining = %+v", remaining)
	}

	if err := s.RemoveMany(ctx, nil); err != nil {
		t.Errorf("empty removal: %v", err)
	}
}

func TestRoles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	roles, err := s.GetRoles(ctx, "g1")
	if err != nil || len(roles) != 0 {
		t.Fatalf("fresh guild roles = %v, %v", roles, err)
	}

	if err := s.SetRoles(ctx, "g1", []string{"r2", "r1"}); err != nil {
		t.Fatalf("SetRoles: %v", err)
	}
	roles, err = s.GetRoles(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 2 || roles[0] != "r1" || roles[1] != "r2" {
		t.Errorf("roles = %v", roles)
	}

	// Replacement, not accumulation.
	if err := s.SetRoles(ctx, "g1", []string{"r3"}); err != nil {
		t.Fatal(err)
	}
	roles, _ = s.GetRoles(ctx, "g1")
	if len(roles) != 1 || roles[0] != "r3" {
		t.Errorf("roles after replace = %v", roles)
	}
}

func TestListConfig(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetList(ctx, "g1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	cfg := ListConfig{GuildID: "g1", ChannelID: "c1", MessageIDs: []string{"m1", "m2"}}
	if err := s.SetList(ctx, cfg); err != nil {
		t.Fatalf("SetList: %v", err)
	}
	got, err := s.GetList(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ChannelID != "c1" || len(got.MessageIDs) != 2 {
		t.Errorf("got %+v", got)
	}

	cfg.ChannelID = "c2"
	cfg.MessageIDs = []string{"m3"}
	if err := s.SetList(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetList(ctx, "g1")
	if got.ChannelID != "c2" || len(got.MessageIDs) != 1 {
		t.Errorf("upsert result = %+v", got)
	}

	guilds, err := s.ListGuildsWithList(ctx)
	if err != nil || len(guilds) != 1 || guilds[0] != "g1" {
		t.Errorf("guilds = %v, %v", guilds, err)
	}

	if err := s.RemoveList(ctx, "g1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetList(ctx, "g1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err after remove = %v, want ErrNotFound", err)
	}
}

func TestRemoveManyRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	s := NewWithDB(db, nil)

	boom := errors.New("disk I/O error")
	mock.ExpectBegin()
	prep := mock.ExpectPrepare("DELETE FROM facilities")
	prep.ExpectExec().WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(int64(2)).WillReturnError(boom)
	mock.ExpectRollback()

	facilities := []*facility.Facility{{ID: 1}, {ID: 2}}
	if err := s.RemoveMany(context.Background(), facilities); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestAddPropagatesDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	s := NewWithDB(db, nil)

	boom := errors.New("database is locked")
	mock.ExpectExec("INSERT INTO facilities").WillReturnError(boom)

	if _, err := s.Add(context.Background(), testFacility("Depot", "user-1", "g1")); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
