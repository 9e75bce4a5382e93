package bot

import (
	"testing"
	"time"

	"github.com/AlexJFox/FacilityLocator/internal/facility"
	"github.com/AlexJFox/FacilityLocator/internal/session"
	"github.com/bwmarrin/discordgo"
)

func TestCustomIDRoundTrip(t *testing.T) {
	raw := customID("confirm", "abc-123")
	if raw != "fl:confirm:abc-123" {
		t.Fatalf("customID = %q", raw)
	}
	kind, id, ok := parseCustomID(raw)
	if !ok || kind != "confirm" || id != "abc-123" {
		t.Errorf("parsed = %q, %q, %v", kind, id, ok)
	}
}

func TestParseCustomIDRejectsForeign(t *testing.T) {
	cases := []string{"", "confirm", "other:confirm:x", "fl:confirm"}
	for _, raw := range cases {
		if _, _, ok := parseCustomID(raw); ok {
			t.Errorf("parseCustomID(%q) accepted", raw)
		}
	}
}

func TestParseLocation(t *testing.T) {
	cases := []struct {
		name        string
		input       string
		coords      string
		wantRegion  string
		wantCoords  string
		wantInvalid bool
	}{
		{name: "plain region", input: "Deadlands", wantRegion: "Deadlands"},
		{name: "region with coordinates", input: "Deadlands-F7", wantRegion: "Deadlands", wantCoords: "F7"},
		{name: "explicit coords win", input: "Deadlands-F7", coords: "B3", wantRegion: "Deadlands", wantCoords: "B3"},
		{name: "unknown region", input: "Atlantis", wantInvalid: true},
		{name: "unknown compound", input: "Atlantis-F7", wantInvalid: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			region, coords, err := parseLocation(tc.input, tc.coords)
			if tc.wantInvalid {
				if err == nil {
					t.Fatalf("expected error, got %q/%q", region, coords)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseLocation: %v", err)
			}
			if region != tc.wantRegion || coords != tc.wantCoords {
				t.Errorf("got %q/%q, want %q/%q", region, coords, tc.wantRegion, tc.wantCoords)
			}
		})
	}
}

func TestParseIDList(t *testing.T) {
	t.Run("mixed separators", func(t *testing.T) {
		ids, err := parseIDList("1, 2 3,4")
		if err != nil {
			t.Fatalf("parseIDList: %v", err)
		}
		want := []int64{1, 2, 3, 4}
		if len(ids) != len(want) {
			t.Fatalf("ids = %v", ids)
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Errorf("ids[%d] = %d, want %d", i, ids[i], want[i])
			}
		}
	})

	t.Run("rejects non-numeric", func(t *testing.T) {
		if _, err := parseIDList("1, two"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("rejects empty", func(t *testing.T) {
		if _, err := parseIDList("  ,  "); err == nil {
			t.Error("expected error")
		}
	})
}

func TestSessionView(t *testing.T) {
	f := facility.New("Depot", "Deadlands", "F7", "Town Base", "Victa", "user-1", "g1", "")
	f.SetServices([]string{"Fuel"}, false)

	embed, rows := sessionView("sid", session.ModeCreate, f, false)
	if embed.Title != "Depot" {
		t.Errorf("embed title = %q", embed.Title)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 2 selects + buttons", len(rows))
	}

	buttons := rows[2].(discordgo.ActionsRow).Components
	if len(buttons) != 3 {
		t.Fatalf("buttons = %d", len(buttons))
	}
	confirm := buttons[0].(discordgo.Button)
	if confirm.Label != "Create" || confirm.CustomID != "fl:confirm:sid" {
		t.Errorf("confirm button = %+v", confirm)
	}

	_, modifyRows := sessionView("sid", session.ModeModify, f, true)
	update := modifyRows[2].(discordgo.ActionsRow).Components[0].(discordgo.Button)
	if update.Label != "Update" || !update.Disabled {
		t.Errorf("modify confirm button = %+v", update)
	}

	itemMenu := rows[0].(discordgo.ActionsRow).Components[0].(discordgo.SelectMenu)
	var preselected int
	for _, opt := range itemMenu.Options {
		if opt.Default {
			preselected++
		}
	}
	if preselected != 1 {
		t.Errorf("preselected options = %d, want 1", preselected)
	}
}

func TestPaginator(t *testing.T) {
	p := &paginator{
		authorID: "user-1",
		pages: []*discordgo.MessageEmbed{
			{Title: "page 1"}, {Title: "page 2"}, {Title: "page 3"},
		},
	}
	if p.current().Title != "page 1" {
		t.Errorf("start page = %q", p.current().Title)
	}

	rows := p.rows("pid")
	buttons := rows[0].(discordgo.ActionsRow).Components
	prev := buttons[0].(discordgo.Button)
	next := buttons[1].(discordgo.Button)
	if !prev.Disabled || next.Disabled {
		t.Errorf("edge buttons wrong on first page: prev=%v next=%v", prev.Disabled, next.Disabled)
	}

	p.index = 2
	rows = p.rows("pid")
	buttons = rows[0].(discordgo.ActionsRow).Components
	if buttons[0].(discordgo.Button).Disabled || !buttons[1].(discordgo.Button).Disabled {
		t.Error("edge buttons wrong on last page")
	}
}

func newViewStateBot() *Bot {
	return &Bot{
		setups:   make(map[string]*setupState),
		listSets: make(map[string]*listState),
		pagers:   make(map[string]*paginator),
	}
}

func TestTurnPage(t *testing.T) {
	pages := []*discordgo.MessageEmbed{{Title: "page 1"}, {Title: "page 2"}}
	now := time.Unix(1000, 0)

	t.Run("advances and refreshes deadline", func(t *testing.T) {
		b := newViewStateBot()
		b.pagers["pid"] = &paginator{authorID: "user-1", pages: pages, deadline: now}

		embed, rows, res := b.turnPage("pid", "next", "user-1", now)
		if res != pageOK {
			t.Fatalf("res = %v, want pageOK", res)
		}
		if embed.Title != "page 2" {
			t.Errorf("embed = %q", embed.Title)
		}
		if len(rows) != 1 {
			t.Errorf("rows = %d", len(rows))
		}
		if got := b.pagers["pid"].deadline; !got.After(now) {
			t.Error("turn did not refresh the view deadline")
		}
	})

	t.Run("wrong user leaves the pager alone", func(t *testing.T) {
		b := newViewStateBot()
		b.pagers["pid"] = &paginator{authorID: "user-1", pages: pages}

		if _, _, res := b.turnPage("pid", "next", "user-2", now); res != pageForbidden {
			t.Fatalf("res = %v, want pageForbidden", res)
		}
		if b.pagers["pid"].index != 0 {
			t.Error("stranger click moved the page")
		}
	})

	t.Run("unknown pager", func(t *testing.T) {
		b := newViewStateBot()
		if _, _, res := b.turnPage("nope", "next", "user-1", now); res != pageMissing {
			t.Errorf("res = %v, want pageMissing", res)
		}
	})
}

func TestSweepViews(t *testing.T) {
	now := time.Unix(1000, 0)
	stale := now.Add(-time.Minute)
	live := now.Add(time.Minute)

	b := newViewStateBot()
	b.setups["old"] = &setupState{actorID: "u", deadline: stale}
	b.setups["new"] = &setupState{actorID: "u", deadline: live}
	b.listSets["old"] = &listState{actorID: "u", deadline: stale}
	b.listSets["new"] = &listState{actorID: "u", deadline: live}
	b.pagers["old"] = &paginator{authorID: "u", deadline: stale}
	b.pagers["new"] = &paginator{authorID: "u", deadline: live}

	b.sweepViews(now)

	if _, ok := b.setups["old"]; ok {
		t.Error("stale setup view survived the sweep")
	}
	if _, ok := b.listSets["old"]; ok {
		t.Error("stale list view survived the sweep")
	}
	if _, ok := b.pagers["old"]; ok {
		t.Error("stale pager survived the sweep")
	}
	if len(b.setups) != 1 || len(b.listSets) != 1 || len(b.pagers) != 1 {
		t.Errorf("live views dropped: setups=%d listSets=%d pagers=%d",
			len(b.setups), len(b.listSets), len(b.pagers))
	}
}

func TestRemovalConfirmRow(t *testing.T) {
	rows := removalConfirmRow("rid", false)
	button := rows[0].(discordgo.ActionsRow).Components[0].(discordgo.Button)
	if button.CustomID != "fl:remove:rid" || button.Style != discordgo.DangerButton {
		t.Errorf("button = %+v", button)
	}
}
