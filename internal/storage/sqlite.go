package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AlexJFox/FacilityLocator/internal/facility"
	"github.com/AlexJFox/FacilityLocator/internal/observability"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// queryColumns is the allowlist of columns an equality predicate may name.
var queryColumns = map[string]bool{
	"id":       true,
	"name":     true,
	"region":   true,
	"marker":   true,
	"author":   true,
	"guild_id": true,
}

// SQLite implements Store on a SQLite database.
type SQLite struct {
	db      *sql.DB
	metrics *observability.Metrics
}

// Open opens (creating if necessary) the database at path and runs the
// schema. Use ":memory:" for an ephemeral database in tests.
func Open(path string, metrics *observability.Metrics) (*SQLite, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; the bot's write volume is tiny.
	db.SetMaxOpenConns(1)

	s := NewWithDB(db, metrics)
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing database handle without running the schema.
// Exists so tests can inject a mocked handle.
func NewWithDB(db *sql.DB, metrics *observability.Metrics) *SQLite {
	return &SQLite{db: db, metrics: metrics}
}

func (s *SQLite) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS facilities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			region TEXT NOT NULL,
			coordinates TEXT NOT NULL DEFAULT '',
			marker TEXT NOT NULL,
			maintainer TEXT NOT NULL,
			author TEXT NOT NULL,
			guild_id TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			item_services INTEGER NOT NULL DEFAULT 0,
			vehicle_services INTEGER NOT NULL DEFAULT 0,
			creation_time INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_facilities_guild ON facilities(guild_id)`,
		`CREATE INDEX IF NOT EXISTS idx_facilities_author ON facilities(guild_id, author)`,
		`CREATE TABLE IF NOT EXISTS roles (
			guild_id TEXT NOT NULL,
			role_id TEXT NOT NULL,
			PRIMARY KEY (guild_id, role_id)
		)`,
		`CREATE TABLE IF NOT EXISTS list (
			guild_id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL,
			messages TEXT NOT NULL DEFAULT '[]'
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run schema: %w", err)
		}
	}
	return nil
}

func (s *SQLite) observe(op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveStoreQuery(op, time.Since(start), err)
}

const facilityColumns = `id, name, description, region, coordinates, marker, maintainer,
	author, guild_id, image_url, item_services, vehicle_services, creation_time`

func scanFacility(row interface{ Scan(...any) error }) (*facility.Facility, error) {
	var f facility.Facility
	err := row.Scan(
		&f.ID, &f.Name, &f.Description, &f.Region, &f.Coordinates, &f.Marker,
		&f.Maintainer, &f.Author, &f.GuildID, &f.ImageURL,
		&f.ItemServices, &f.VehicleServices, &f.CreationTime,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Add inserts f and returns the assigned ID.
func (s *SQLite) Add(ctx context.Context, f *facility.Facility) (id int64, err error) {
	defer func(start time.Time) { s.observe("insert", start, err) }(time.Now())

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO facilities (name, description, region, coordinates, marker,
			maintainer, author, guild_id, image_url, item_services,
			vehicle_services, creation_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Name, f.Description, f.Region, f.Coordinates, f.Marker,
		f.Maintainer, f.Author, f.GuildID, f.ImageURL,
		int64(f.ItemServices), int64(f.VehicleServices), f.CreationTime,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add facility: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new facility id: %w", err)
	}
	return id, nil
}

// Update rewrites the stored row for f.ID.
func (s *SQLite) Update(ctx context.Context, f *facility.Facility) (err error) {
	defer func(start time.Time) { s.observe("update", start, err) }(time.Now())

	res, err := s.db.ExecContext(ctx, `
		UPDATE facilities SET name = ?, description = ?, region = ?,
			coordinates = ?, marker = ?, maintainer = ?, image_url = ?,
			item_services = ?, vehicle_services = ?, creation_time = ?
		WHERE id = ?`,
		f.Name, f.Description, f.Region, f.Coordinates, f.Marker,
		f.Maintainer, f.ImageURL,
		int64(f.ItemServices), int64(f.VehicleServices), f.CreationTime,
		f.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update facility %d: %w", f.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update facility %d: %w", f.ID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveMany deletes all given facilities in one transaction.
func (s *SQLite) RemoveMany(ctx context.Context, facilities []*facility.Facility) (err error) {
	defer func(start time.Time) { s.observe("delete", start, err) }(time.Now())

	if len(facilities) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			_ = rbErr
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM facilities WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, f := range facilities {
		if _, err := stmt.ExecContext(ctx, f.ID); err != nil {
			return fmt.Errorf("failed to remove facility %d: %w", f.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit removal: %w", err)
	}
	return nil
}

// Query returns facilities matching all equality predicates, ordered by ID.
func (s *SQLite) Query(ctx context.Context, predicates map[string]any) (result []*facility.Facility, err error) {
	defer func(start time.Time) { s.observe("select", start, err) }(time.Now())

	query := `SELECT ` + facilityColumns + ` FROM facilities`
	var (
		clauses []string
		args    []any
	)
	// Deterministic clause order keeps query plans and tests stable.
	cols := make([]string, 0, len(predicates))
	for col := range predicates {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		if !queryColumns[col] {
			return nil, fmt.Errorf("unsupported query column %q", col)
		}
		clauses = append(clauses, col+" = ?")
		args = append(args, predicates[col])
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query facilities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan facility: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read facilities: %w", err)
	}
	return result, nil
}

// GetByID returns one facility or ErrNotFound.
func (s *SQLite) GetByID(ctx context.Context, id int64) (f *facility.Facility, err error) {
	defer func(start time.Time) { s.observe("select", start, err) }(time.Now())

	row := s.db.QueryRowContext(ctx,
		`SELECT `+facilityColumns+` FROM facilities WHERE id = ?`, id)
	f, err = scanFacility(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get facility %d: %w", id, err)
	}
	return f, nil
}

// GetByIDs returns the facilities that exist among ids.
func (s *SQLite) GetByIDs(ctx context.Context, ids []int64) (result []*facility.Facility, err error) {
	defer func(start time.Time) { s.observe("select", start, err) }(time.Now())

	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+facilityColumns+` FROM facilities WHERE id IN (`+placeholders+`) ORDER BY id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query facilities by id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan facility: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read facilities: %w", err)
	}
	return result, nil
}

// SetRoles replaces the guild's facility-admin role set.
func (s *SQLite) SetRoles(ctx context.Context, guildID string, roleIDs []string) (err error) {
	defer func(start time.Time) { s.observe("update", start, err) }(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			_ = rbErr
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE guild_id = ?`, guildID); err != nil {
		return fmt.Errorf("failed to clear roles: %w", err)
	}
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO roles (guild_id, role_id) VALUES (?, ?)`, guildID, roleID); err != nil {
			return fmt.Errorf("failed to set role %s: %w", roleID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit roles: %w", err)
	}
	return nil
}

// GetRoles returns the guild's facility-admin role set.
func (s *SQLite) GetRoles(ctx context.Context, guildID string) (roleIDs []string, err error) {
	defer func(start time.Time) { s.observe("select", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx,
		`SELECT role_id FROM roles WHERE guild_id = ? ORDER BY role_id`, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var roleID string
		if err := rows.Scan(&roleID); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roleIDs = append(roleIDs, roleID)
	}
	return roleIDs, rows.Err()
}

// SetList stores the guild's list-channel configuration.
func (s *SQLite) SetList(ctx context.Context, cfg ListConfig) (err error) {
	defer func(start time.Time) { s.observe("update", start, err) }(time.Now())

	messages, err := json.Marshal(cfg.MessageIDs)
	if err != nil {
		return fmt.Errorf("failed to encode message ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO list (guild_id, channel_id, messages) VALUES (?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET channel_id = excluded.channel_id,
			messages = excluded.messages`,
		cfg.GuildID, cfg.ChannelID, string(messages),
	)
	if err != nil {
		return fmt.Errorf("failed to set list config: %w", err)
	}
	return nil
}

// GetList returns the guild's list-channel configuration, or ErrNotFound.
func (s *SQLite) GetList(ctx context.Context, guildID string) (cfg ListConfig, err error) {
	defer func(start time.Time) { s.observe("select", start, err) }(time.Now())

	var messages string
	row := s.db.QueryRowContext(ctx,
		`SELECT channel_id, messages FROM list WHERE guild_id = ?`, guildID)
	err = row.Scan(&cfg.ChannelID, &messages)
	if errors.Is(err, sql.ErrNoRows) {
		return ListConfig{}, ErrNotFound
	}
	if err != nil {
		return ListConfig{}, fmt.Errorf("failed to get list config: %w", err)
	}
	cfg.GuildID = guildID
	if err := json.Unmarshal([]byte(messages), &cfg.MessageIDs); err != nil {
		return ListConfig{}, fmt.Errorf("failed to decode message ids: %w", err)
	}
	return cfg, nil
}

// RemoveList clears the guild's list-channel configuration.
func (s *SQLite) RemoveList(ctx context.Context, guildID string) (err error) {
	defer func(start time.Time) { s.observe("delete", start, err) }(time.Now())

	if _, err := s.db.ExecContext(ctx, `DELETE FROM list WHERE guild_id = ?`, guildID); err != nil {
		return fmt.Errorf("failed to remove list config: %w", err)
	}
	return nil
}

// ListGuildsWithList returns all guilds that have a configured list.
func (s *SQLite) ListGuildsWithList(ctx context.Context) (guilds []string, err error) {
	defer func(start time.Time) { s.observe("select", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT guild_id FROM list ORDER BY guild_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query list guilds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var guildID string
		if err := rows.Scan(&guildID); err != nil {
			return nil, fmt.Errorf("failed to scan guild: %w", err)
		}
		guilds = append(guilds, guildID)
	}
	return guilds, rows.Err()
}

// Close closes the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
