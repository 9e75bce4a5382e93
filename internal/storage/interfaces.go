// Package storage persists facility records and per-guild configuration.
package storage

import (
	"context"
	"errors"

	"github.com/AlexJFox/FacilityLocator/internal/facility"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// ListConfig describes a guild's mirrored facility list: the channel it
// lives in and the message IDs holding the rendered pages.
type ListConfig struct {
	GuildID    string
	ChannelID  string
	MessageIDs []string
}

// Store is the record store consumed by the session layer and the command
// handlers. Query predicates are equality-only, keyed by column name.
type Store interface {
	// Add inserts a new facility and returns its assigned ID.
	Add(ctx context.Context, f *facility.Facility) (int64, error)

	// Update rewrites an existing facility. Fails with ErrNotFound if the
	// identity is absent.
	Update(ctx context.Context, f *facility.Facility) error

	// RemoveMany deletes the given facilities in a single transaction.
	// On error nothing has been removed.
	RemoveMany(ctx context.Context, facilities []*facility.Facility) error

	// Query returns facilities matching all equality predicates.
	Query(ctx context.Context, predicates map[string]any) ([]*facility.Facility, error)

	// GetByID returns one facility, or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*facility.Facility, error)

	// GetByIDs returns the facilities that exist among ids; missing IDs are
	// simply absent from the result.
	GetByIDs(ctx context.Context, ids []int64) ([]*facility.Facility, error)

	// SetRoles replaces the guild's facility-admin role set.
	SetRoles(ctx context.Context, guildID string, roleIDs []string) error

	// GetRoles returns the guild's facility-admin role set.
	GetRoles(ctx context.Context, guildID string) ([]string, error)

	// SetList stores the guild's list-channel configuration.
	SetList(ctx context.Context, cfg ListConfig) error

	// GetList returns the guild's list-channel configuration, or ErrNotFound.
	GetList(ctx context.Context, guildID string) (ListConfig, error)

	// RemoveList clears the guild's list-channel configuration.
	RemoveList(ctx context.Context, guildID string) error

	// ListGuildsWithList returns all guilds that have a configured list.
	ListGuildsWithList(ctx context.Context) ([]string, error)

	// Close releases the underlying resources.
	Close() error
}
