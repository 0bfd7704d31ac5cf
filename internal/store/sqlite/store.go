// Package sqlite implements store.Store on an embedded SQLite database
// (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ppiankov/archetype/internal/model"
	"github.com/ppiankov/archetype/internal/store"
	_ "modernc.org/sqlite"
)

// Schema is applied on open; every statement is idempotent
const Schema = `
CREATE TABLE IF NOT EXISTS results (
	entity_id      TEXT PRIMARY KEY,
	primary_type   TEXT NOT NULL,
	secondary_type TEXT,
	confidence     REAL NOT NULL,
	table_version  TEXT NOT NULL,
	run_id         TEXT,
	payload        TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_primary_type ON results(primary_type);
`

const upsertSQL = `
INSERT INTO results (entity_id, primary_type, secondary_type, confidence, table_version, run_id, payload, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(entity_id) DO UPDATE SET
	primary_type = excluded.primary_type,
	secondary_type = excluded.secondary_type,
	confidence = excluded.confidence,
	table_version = excluded.table_version,
	run_id = excluded.run_id,
	payload = excluded.payload,
	updated_at = excluded.updated_at
WHERE excluded.confidence >= results.confidence
`

// Store is a SQLite-backed result store
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dsn and applies the schema.
// ":memory:" is accepted for tests.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: open database")
	}

	// A single connection serialises writers and keeps ":memory:" databases alive
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "sqlite: %s", pragma)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlite: apply schema")
	}

	return &Store{db: db}, nil
}

// Upsert implements store.Store
func (s *Store) Upsert(ctx context.Context, r *model.Result) (bool, error) {
	if err := store.Validate(r); err != nil {
		return false, err
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return false, errors.Wrap(err, "sqlite: marshal result")
	}

	var secondary sql.NullString
	if code, ok := r.Secondary(); ok {
		secondary = sql.NullString{String: code, Valid: true}
	}
	runID := sql.NullString{String: r.RunID, Valid: r.RunID != ""}

	res, err := s.db.ExecContext(ctx, upsertSQL,
		r.EntityID,
		r.Primary(),
		secondary,
		r.Confidence,
		r.TableVersion,
		runID,
		string(payload),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, errors.Wrapf(err, "sqlite: upsert %s", r.EntityID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

// Get implements store.Store
func (s *Store) Get(ctx context.Context, entityID string) (*model.Result, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM results WHERE entity_id = ?", entityID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(store.ErrNotFound, "entity %s", entityID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite: get %s", entityID)
	}

	var r model.Result
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, errors.Wrapf(err, "sqlite: decode %s", entityID)
	}
	return &r, nil
}

// CountByType returns how many stored results have the given primary type
func (s *Store) CountByType(ctx context.Context, code string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM results WHERE primary_type = ?", code).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "sqlite: count by type")
	}
	return n, nil
}

// Close checkpoints the WAL and closes the database
func (s *Store) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
