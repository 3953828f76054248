// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
	"modernc.org/sqlite"

	"github.com/ferrybridge/ferry/internal/record"
)

// SQLite extended result codes for primary key and unique violations.
const (
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	model      TEXT NOT NULL,
	attributes TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS records_model_idx ON records (model);
CREATE TABLE IF NOT EXISTS grants (
	id           TEXT PRIMARY KEY,
	record_id    TEXT NOT NULL REFERENCES records (id) ON DELETE CASCADE,
	agent_type   TEXT NOT NULL,
	agent_name   TEXT NOT NULL,
	access_level TEXT NOT NULL,
	access_to_id TEXT,
	position     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS grants_record_idx ON grants (record_id, position);
`

// SQLiteStore implements record.Store on a single SQLite file, for
// embedded and single-node deployments. The schema is created at open.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database file at path and prepares
// the schema. An empty path defaults to ferry.db in the working directory.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "ferry.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, oops.Code("STORE_OPEN_FAILED").With("path", path).Wrap(err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, oops.Code("STORE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	// SQLite allows one writer at a time; a single pooled connection also
	// keeps in-memory databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, oops.Code("STORE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Get retrieves a record and its grants by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*record.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, model, attributes, created_at, updated_at
		FROM records WHERE id = ?
	`, id)

	rec, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("RECORD_NOT_FOUND").With("id", id).Wrap(record.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RECORD_GET_FAILED").With("id", id).Wrap(err)
	}

	rec.Grants, err = s.recordGrants(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Save upserts a record and replaces its grants in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, rec *record.Record) error {
	saving, err := record.PrepareSave(rec, time.Now().UTC())
	if err != nil {
		return err
	}
	attrs, err := marshalAttributes(saving.Attributes)
	if err != nil {
		return oops.Code("RECORD_SAVE_FAILED").With("id", saving.ID).Wrap(err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return oops.Code("RECORD_SAVE_FAILED").With("id", saving.ID).Wrap(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (id, model, attributes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			model = excluded.model,
			attributes = excluded.attributes,
			updated_at = excluded.updated_at
	`, saving.ID, saving.Model, attrs,
		saving.CreatedAt.Format(time.RFC3339Nano), saving.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return oops.Code("RECORD_SAVE_FAILED").With("id", saving.ID).Wrap(err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM grants WHERE record_id = ?`, saving.ID); err != nil {
		return oops.Code("GRANT_SAVE_FAILED").With("record_id", saving.ID).Wrap(err)
	}
	for i, g := range saving.Grants {
		var accessTo *string
		if g.AccessToID != "" {
			accessTo = &g.AccessToID
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO grants (id, record_id, agent_type, agent_name, access_level, access_to_id, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, g.ID, saving.ID, string(g.AgentType), g.AgentName, string(g.Level), accessTo, i)
		if err != nil {
			if isSQLiteConflict(err) {
				return oops.Code("DUPLICATE_GRANT_ID").
					With("record_id", saving.ID).
					With("grant_id", g.ID).
					Wrap(record.ErrConflict)
			}
			return oops.Code("GRANT_SAVE_FAILED").
				With("record_id", saving.ID).
				With("grant_id", g.ID).
				Wrap(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return oops.Code("RECORD_SAVE_FAILED").With("id", saving.ID).Wrap(err)
	}
	return nil
}

// Delete removes a record and its grants.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return oops.Code("RECORD_DELETE_FAILED").With("id", id).Wrap(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM grants WHERE record_id = ?`, id); err != nil {
		return oops.Code("RECORD_DELETE_FAILED").With("id", id).Wrap(err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return oops.Code("RECORD_DELETE_FAILED").With("id", id).Wrap(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return oops.Code("RECORD_DELETE_FAILED").With("id", id).Wrap(err)
	}
	if affected == 0 {
		return oops.Code("RECORD_NOT_FOUND").With("id", id).Wrap(record.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return oops.Code("RECORD_DELETE_FAILED").With("id", id).Wrap(err)
	}
	return nil
}

// List returns all records of the given model with their grants, ordered by ID.
func (s *SQLiteStore) List(ctx context.Context, model string) ([]*record.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model, attributes, created_at, updated_at
		FROM records WHERE model = ? ORDER BY id
	`, model)
	if err != nil {
		return nil, oops.Code("RECORD_QUERY_FAILED").With("model", model).Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*record.Record
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, oops.Code("RECORD_QUERY_FAILED").With("model", model).Wrap(err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("RECORD_ITERATE_FAILED").With("model", model).Wrap(err)
	}

	for _, rec := range recs {
		rec.Grants, err = s.recordGrants(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
	}
	return recs, nil
}

// Ping reports whether the database file is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return oops.Code("STORE_PING_FAILED").With("path", s.path).Wrap(err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return oops.With("operation", "close database").With("path", s.path).Wrap(err)
	}
	return nil
}

func (s *SQLiteStore) recordGrants(ctx context.Context, recordID string) ([]record.Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_type, agent_name, access_level, access_to_id
		FROM grants WHERE record_id = ? ORDER BY position
	`, recordID)
	if err != nil {
		return nil, oops.Code("GRANT_QUERY_FAILED").With("record_id", recordID).Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	return scanGrants(rows)
}

func scanSQLiteRecord(row rowScanner) (*record.Record, error) {
	var rec record.Record
	var attrs []byte
	var createdAt, updatedAt string
	if err := row.Scan(&rec.ID, &rec.Model, &attrs, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if rec.CreatedAt, err = parseTimeField(createdAt, "created_at"); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTimeField(updatedAt, "updated_at"); err != nil {
		return nil, err
	}
	if err := unmarshalAttributes(attrs, &rec.Attributes); err != nil {
		return nil, err
	}
	return &rec, nil
}

func parseTimeField(value, field string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, oops.With("operation", "parse "+field).With(field, value).Wrap(err)
	}
	return t, nil
}

func isSQLiteConflict(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqliteConstraintPrimaryKey || se.Code() == sqliteConstraintUnique
}

// Compile-time interface check.
var _ record.Store = (*SQLiteStore)(nil)
