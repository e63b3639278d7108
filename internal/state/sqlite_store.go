package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/spacesync/internal/events"
	"github.com/TheMichaelB/spacesync/internal/models"
)

// SQLiteStore implements SQLite-based state storage.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
	locks  *spaceLocks
}

// NewSQLiteStore creates a SQLite state store.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_state_store"),
		locks:  newSpaceLocks(),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

// initialize creates tables and indexes.
func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS space_states (
        space_id TEXT PRIMARY KEY,
        epoch INTEGER NOT NULL DEFAULT 0,
        updated_at TIMESTAMP,
        last_error TEXT,
        created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS wrapped_deks (
        space_id TEXT NOT NULL,
        record_id TEXT NOT NULL,
        wrapped BLOB NOT NULL,
        PRIMARY KEY (space_id, record_id),
        FOREIGN KEY (space_id) REFERENCES space_states(space_id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_wrapped_deks_space ON wrapped_deks(space_id);

    CREATE TABLE IF NOT EXISTS schema_info (
        version INTEGER PRIMARY KEY
    );

    INSERT OR IGNORE INTO schema_info (version) VALUES (?);
    `

	if _, err := s.db.Exec(schema, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Load retrieves state from database.
func (s *SQLiteStore) Load(spaceID string) (*models.SpaceState, error) {
	s.logger.WithField("space_id", spaceID).Debug("Loading state from SQLite")

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	state := models.NewSpaceState(spaceID)
	var updatedAt sql.NullTime
	var lastError sql.NullString

	err = tx.QueryRow(`
        SELECT epoch, updated_at, last_error
        FROM space_states
        WHERE space_id = ?
    `, spaceID).Scan(&state.Epoch, &updatedAt, &lastError)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query state: %w", err)
	}

	if updatedAt.Valid {
		state.UpdatedAt = updatedAt.Time
	}
	if lastError.Valid {
		state.LastError = lastError.String
	}

	rows, err := tx.Query(`
        SELECT record_id, wrapped
        FROM wrapped_deks
        WHERE space_id = ?
    `, spaceID)
	if err != nil {
		return nil, fmt.Errorf("query wrapped DEKs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var recordID string
		var wrapped []byte
		if err := rows.Scan(&recordID, &wrapped); err != nil {
			return nil, fmt.Errorf("scan wrapped DEK row: %w", err)
		}
		state.WrappedDEKs[recordID] = wrapped
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wrapped DEKs: %w", err)
	}

	return state, nil
}

// Save persists state to database in a single transaction.
func (s *SQLiteStore) Save(spaceID string, state *models.SpaceState) error {
	s.logger.WithFields(map[string]interface{}{
		"space_id": spaceID,
		"epoch":    state.Epoch,
		"records":  state.RecordCount(),
	}).Debug("Saving state to SQLite")

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Upsert main state
	_, err = tx.Exec(`
        INSERT INTO space_states (space_id, epoch, updated_at, last_error)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(space_id) DO UPDATE SET
            epoch = excluded.epoch,
            updated_at = excluded.updated_at,
            last_error = excluded.last_error
    `, spaceID, state.Epoch, state.UpdatedAt, state.LastError)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}

	// Delete removed records
	if _, err := tx.Exec("DELETE FROM wrapped_deks WHERE space_id = ?", spaceID); err != nil {
		return fmt.Errorf("delete old wrapped DEKs: %w", err)
	}

	stmt, err := tx.Prepare(`
        INSERT INTO wrapped_deks (space_id, record_id, wrapped)
        VALUES (?, ?, ?)
    `)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for recordID, wrapped := range state.WrappedDEKs {
		if _, err := stmt.Exec(spaceID, recordID, wrapped); err != nil {
			return fmt.Errorf("insert wrapped DEK %s: %w", recordID, err)
		}
	}

	return tx.Commit()
}

// Reset removes state for a space.
func (s *SQLiteStore) Reset(spaceID string) error {
	s.logger.WithField("space_id", spaceID).Info("Resetting state in SQLite")

	if _, err := s.db.Exec("DELETE FROM space_states WHERE space_id = ?", spaceID); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}

	return nil
}

// List returns all space IDs.
func (s *SQLiteStore) List() ([]string, error) {
	rows, err := s.db.Query("SELECT space_id FROM space_states ORDER BY space_id")
	if err != nil {
		return nil, fmt.Errorf("query spaces: %w", err)
	}
	defer rows.Close()

	var spaceIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan space ID: %w", err)
		}
		spaceIDs = append(spaceIDs, id)
	}

	return spaceIDs, rows.Err()
}

// Lock acquires a lock for a space.
func (s *SQLiteStore) Lock(spaceID string) (UnlockFunc, error) {
	return s.locks.acquire(spaceID, LockTimeout)
}

// Migrate copies every space into target.
func (s *SQLiteStore) Migrate(target Store) error {
	return migrate(s, target, s.logger)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func migrate(source, target Store, logger *events.Logger) error {
	spaceIDs, err := source.List()
	if err != nil {
		return fmt.Errorf("list spaces: %w", err)
	}

	logger.WithField("count", len(spaceIDs)).Info("Migrating states")

	for _, spaceID := range spaceIDs {
		state, err := source.Load(spaceID)
		if err != nil {
			logger.WithError(err).WithField("space_id", spaceID).Error("Failed to load state")
			continue
		}

		if err := target.Save(spaceID, state); err != nil {
			return fmt.Errorf("save space %s: %w", spaceID, err)
		}

		logger.WithField("space_id", spaceID).Debug("Migrated state")
	}

	return nil
}
