// Package storage persists per-entity control settings (timeshift offset,
// control mode, active scene) so they survive daemon restarts. Scene
// definitions themselves are configuration and are never stored here.
package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// EntitySettings is one entity's persisted control state.
type EntitySettings struct {
	EntityID    string
	Timeshift   int // seconds, already clamped to the 12h ring
	Manual      bool
	ActiveScene string
	UpdatedAt   time.Time
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens the database and initializes the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS entity_settings (
			entity_id TEXT PRIMARY KEY,
			timeshift INTEGER NOT NULL DEFAULT 0,
			manual INTEGER NOT NULL DEFAULT 0,
			active_scene TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create entity_settings table: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves settings for an entity. Absent entities yield zero settings.
func (s *Store) Get(entityID string) (*EntitySettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var settings EntitySettings
	var manual int64
	var updatedAt int64

	err := s.db.QueryRow(`
		SELECT entity_id, timeshift, manual, active_scene, updated_at
		FROM entity_settings
		WHERE entity_id = ?
	`, entityID).Scan(
		&settings.EntityID, &settings.Timeshift, &manual, &settings.ActiveScene, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return &EntitySettings{EntityID: entityID}, nil
	}
	if err != nil {
		return nil, err
	}

	settings.Manual = manual == 1
	settings.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &settings, nil
}

// GetAll returns the settings of every known entity.
func (s *Store) GetAll() ([]*EntitySettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT entity_id, timeshift, manual, active_scene, updated_at
		FROM entity_settings
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*EntitySettings
	for rows.Next() {
		var settings EntitySettings
		var manual int64
		var updatedAt int64

		if err := rows.Scan(
			&settings.EntityID, &settings.Timeshift, &manual, &settings.ActiveScene, &updatedAt,
		); err != nil {
			return nil, err
		}

		settings.Manual = manual == 1
		settings.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		out = append(out, &settings)
	}

	return out, rows.Err()
}

// SetTimeshift stores an entity's timeshift offset in seconds.
func (s *Store) SetTimeshift(entityID string, seconds int) error {
	return s.upsert(entityID, "timeshift", seconds)
}

// SetManual stores an entity's control mode.
func (s *Store) SetManual(entityID string, manual bool) error {
	v := 0
	if manual {
		v = 1
	}
	return s.upsert(entityID, "manual", v)
}

// SetActiveScene stores the scene currently driving an entity ("" for none).
func (s *Store) SetActiveScene(entityID string, scene string) error {
	return s.upsert(entityID, "active_scene", scene)
}

func (s *Store) upsert(entityID, column string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Unix()

	// column names are fixed by the callers above
	query := fmt.Sprintf(`
		INSERT INTO entity_settings (entity_id, %s, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			%s = excluded.%s,
			updated_at = excluded.updated_at
	`, column, column, column)

	_, err := s.db.Exec(query, entityID, value, now)
	return err
}

// Clear removes all stored settings.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM entity_settings`)
	return err
}
