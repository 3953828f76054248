// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

package record

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/ferrybridge/ferry/internal/resource"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a save collides with existing state, such as
// duplicate grant IDs within one record.
var ErrConflict = errors.New("record conflict")

// Store persists and retrieves records.
type Store interface {
	// Get returns the record with the given ID.
	Get(ctx context.Context, id string) (*Record, error)

	// Save upserts a record and its grants. The record's ID and model must
	// be set. Stores stamp CreatedAt on first save (unless the caller
	// supplied one), stamp UpdatedAt on every save, mint ULIDs for grants
	// without IDs, and clear the New flags. The caller's record is not
	// mutated; re-read to observe store-assigned fields.
	Save(ctx context.Context, rec *Record) error

	// Delete removes a record and its grants.
	Delete(ctx context.Context, id string) error

	// List returns all records of the given model, ordered by ID.
	List(ctx context.Context, model string) ([]*Record, error)

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

// PrepareSave validates rec and returns a deep copy ready for persistence:
// CreatedAt defaulted to now when unset, UpdatedAt stamped with now, ULIDs
// minted for grants without IDs, and New flags cleared. Store implementations
// run saves through this so the stamping contract stays uniform across
// backends; preserving CreatedAt on update remains each backend's job.
func PrepareSave(rec *Record, now time.Time) (*Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, oops.Code("INVALID_RECORD").With("id", rec.ID).Wrap(err)
	}

	clone := rec.Clone()
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now
	clone.New = false

	seen := make(map[string]bool, len(clone.Grants))
	for i := range clone.Grants {
		if clone.Grants[i].ID == "" {
			clone.Grants[i].ID = resource.NewID().String()
		}
		if seen[clone.Grants[i].ID] {
			return nil, oops.Code("DUPLICATE_GRANT_ID").
				With("record_id", clone.ID).
				With("grant_id", clone.Grants[i].ID).
				Wrap(ErrConflict)
		}
		seen[clone.Grants[i].ID] = true
		clone.Grants[i].New = false
	}
	return clone, nil
}

// MemoryStore is a mutex-guarded in-memory Store for tests and embedded use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

// Get returns a deep copy of the stored record.
func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, oops.Code("RECORD_NOT_FOUND").With("id", id).Wrap(ErrNotFound)
	}
	return rec.Clone(), nil
}

// Save upserts a deep copy of rec, stamping persistence metadata on the
// stored copy.
func (s *MemoryStore) Save(_ context.Context, rec *Record) error {
	clone, err := PrepareSave(rec, time.Now().UTC())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[clone.ID]; ok {
		clone.CreatedAt = existing.CreatedAt
	}
	s.records[clone.ID] = clone
	return nil
}

// Delete removes a record and its grants.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return oops.Code("RECORD_NOT_FOUND").With("id", id).Wrap(ErrNotFound)
	}
	delete(s.records, id)
	return nil
}

// List returns deep copies of all records of the given model, ordered by ID.
func (s *MemoryStore) List(_ context.Context, model string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []*Record
	for _, rec := range s.records {
		if rec.Model == model {
			recs = append(recs, rec.Clone())
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)
