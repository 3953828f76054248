// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

// Package store provides SQL-backed record stores and schema migration
// support. PostgresStore and SQLiteStore both satisfy record.Store with the
// same save semantics as record.MemoryStore.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/ferrybridge/ferry/internal/acl"
	"github.com/ferrybridge/ferry/internal/record"
)

// poolIface abstracts *pgxpool.Pool so unit tests can substitute pgxmock.
type poolIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Connect opens a pgx pool and verifies the database is reachable, retrying
// the initial ping with fibonacci backoff so the store survives a database
// that is still starting up.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	backoff := retry.WithMaxRetries(6, retry.NewFibonacci(250*time.Millisecond))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		pool.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").With("operation", "ping database").Wrap(err)
	}
	return pool, nil
}

// PostgresStore implements record.Store using PostgreSQL. Records live in
// the records table with attributes as JSONB; grants live in their own table
// keyed by record, with an explicit position so grant order survives the
// round trip.
type PostgresStore struct {
	pool poolIface
}

// NewPostgresStore creates a store over an established connection pool.
func NewPostgresStore(pool poolIface) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get retrieves a record and its grants by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*record.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, model, attributes, created_at, updated_at
		FROM records WHERE id = $1
	`, id)

	rec, err := scanRecordRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
func (s *PostgresStore) Save(ctx context.Context, rec *record.Record) error {
	saving, err := record.PrepareSave(rec, time.Now().UTC().Truncate(time.Microsecond))
	if err != nil {
		return err
	}
	attrs, err := marshalAttributes(saving.Attributes)
	if err != nil {
		return oops.Code("RECORD_SAVE_FAILED").With("id", saving.ID).Wrap(err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return oops.Code("RECORD_SAVE_FAILED").With("id", saving.ID).Wrap(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// ON CONFLICT leaves created_at alone, so the first save's timestamp
	// survives updates.
	_, err = tx.Exec(ctx, `
		INSERT INTO records (id, model, attributes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			model = EXCLUDED.model,
			attributes = EXCLUDED.attributes,
			updated_at = EXCLUDED.updated_at
	`, saving.ID, saving.Model, attrs, saving.CreatedAt, saving.UpdatedAt)
	if err != nil {
		return oops.Code("RECORD_SAVE_FAILED").With("id", saving.ID).Wrap(err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM grants WHERE record_id = $1`, saving.ID); err != nil {
		return oops.Code("GRANT_SAVE_FAILED").With("record_id", saving.ID).Wrap(err)
	}
	for i, g := range saving.Grants {
		var accessTo *string
		if g.AccessToID != "" {
			accessTo = &g.AccessToID
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO grants (id, record_id, agent_type, agent_name, access_level, access_to_id, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, g.ID, saving.ID, string(g.AgentType), g.AgentName, string(g.Level), accessTo, i)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
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

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("RECORD_SAVE_FAILED").With("id", saving.ID).Wrap(err)
	}
	return nil
}

// Delete removes a record; its grants go with it via ON DELETE CASCADE.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM records WHERE id = $1`, id)
	if err != nil {
		return oops.Code("RECORD_DELETE_FAILED").With("id", id).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("RECORD_NOT_FOUND").With("id", id).Wrap(record.ErrNotFound)
	}
	return nil
}

// List returns all records of the given model with their grants, ordered by ID.
func (s *PostgresStore) List(ctx context.Context, model string) ([]*record.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, model, attributes, created_at, updated_at
		FROM records WHERE model = $1 ORDER BY id
	`, model)
	if err != nil {
		return nil, oops.Code("RECORD_QUERY_FAILED").With("model", model).Wrap(err)
	}
	defer rows.Close()

	var recs []*record.Record
	for rows.Next() {
		rec, err := scanRecordRow(rows)
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

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return oops.Code("STORE_PING_FAILED").Wrap(err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) recordGrants(ctx context.Context, recordID string) ([]record.Grant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, agent_type, agent_name, access_level, access_to_id
		FROM grants WHERE record_id = $1 ORDER BY position
	`, recordID)
	if err != nil {
		return nil, oops.Code("GRANT_QUERY_FAILED").With("record_id", recordID).Wrap(err)
	}
	defer rows.Close()

	return scanGrants(rows)
}

// rowScanner covers pgx and database/sql row types.
type rowScanner interface {
	Scan(dest ...any) error
}

// grantRows covers pgx.Rows and *sql.Rows for grant scanning.
type grantRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRecordRow(row rowScanner) (*record.Record, error) {
	var rec record.Record
	var attrs []byte
	if err := row.Scan(&rec.ID, &rec.Model, &attrs, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalAttributes(attrs, &rec.Attributes); err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanGrants(rows grantRows) ([]record.Grant, error) {
	var grants []record.Grant
	for rows.Next() {
		var g record.Grant
		var agentType, level string
		var accessTo *string
		if err := rows.Scan(&g.ID, &agentType, &g.AgentName, &level, &accessTo); err != nil {
			return nil, oops.Code("GRANT_SCAN_FAILED").Wrap(err)
		}
		g.AgentType = acl.AgentType(agentType)
		g.Level = acl.AccessLevel(level)
		if accessTo != nil {
			g.AccessToID = *accessTo
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("GRANT_ITERATE_FAILED").Wrap(err)
	}
	return grants, nil
}

// marshalAttributes encodes the attribute map for the JSONB column. A nil
// map round-trips as JSON null so open records keep their shape.
func marshalAttributes(attrs map[string][]string) ([]byte, error) {
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, oops.With("operation", "marshal attributes").Wrap(err)
	}
	return b, nil
}

func unmarshalAttributes(data []byte, attrs *map[string][]string) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, attrs); err != nil {
		return oops.With("operation", "unmarshal attributes").Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ record.Store = (*PostgresStore)(nil)
