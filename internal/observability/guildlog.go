package observability

import (
	"fmt"
	"sync"
	"time"
)

// GuildLog keeps a bounded ring of recent facility-event lines per guild so
// moderators can review activity without access to the process logs.
type GuildLog struct {
	mu       sync.RWMutex
	capacity int
	rings    map[string]*ring
}

type ring struct {
	entries []string
	start   int
	count   int
}

// NewGuildLog creates a guild log holding up to capacity lines per guild.
func NewGuildLog(capacity int) *GuildLog {
	if capacity <= 0 {
		capacity = 50
	}
	return &GuildLog{
		capacity: capacity,
		rings:    make(map[string]*ring),
	}
}

// Record appends a formatted line to the guild's ring, evicting the oldest
// line once the ring is full.
func (g *GuildLog) Record(guildID, format string, args ...any) {
	line := fmt.Sprintf("%s %s", time.Now().UTC().Format("2006-01-02 15:04:05"),
		fmt.Sprintf(format, args...))

	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rings[guildID]
	if !ok {
		r = &ring{entries: make([]string, g.capacity)}
		g.rings[guildID] = r
	}
	if r.count < g.capacity {
		r.entries[(r.start+r.count)%g.capacity] = line
		r.count++
		return
	}
	r.entries[r.start] = line
	r.start = (r.start + 1) % g.capacity
}

// Entries returns the guild's lines, oldest first.
func (g *GuildLog) Entries(guildID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	r, ok := g.rings[guildID]
	if !ok {
		return nil
	}
	out := make([]string, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.entries[(r.start+i)%g.capacity])
	}
	return out
}
