// Package store persists results for the external persistence collaborator.
// Every implementation honours the same upsert contract: a result is
// written when no row exists for the entity, or when its confidence is at
// least the stored confidence. Lower-confidence re-runs never overwrite.
package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ppiankov/archetype/internal/model"
)

// ErrNotFound is returned by Get when no result exists for the entity
var ErrNotFound = errors.New("result not found")

// Store persists results keyed by entity id
type Store interface {
	// Upsert writes r under the upsert contract and reports whether it was written
	Upsert(ctx context.Context, r *model.Result) (bool, error)
	Get(ctx context.Context, entityID string) (*model.Result, error)
	Close() error
}

// ShouldReplace reports whether incoming may overwrite existing.
// Equal confidence replaces, so re-running with the same evidence refreshes the row.
func ShouldReplace(existing, incoming *model.Result) bool {
	return existing == nil || incoming.Confidence >= existing.Confidence
}

// Validate rejects results that cannot be keyed
func Validate(r *model.Result) error {
	if r == nil {
		return errors.New("nil result")
	}
	if r.EntityID == "" {
		return errors.Mark(errors.New("result has no entity id"), model.ErrInput)
	}
	return nil
}

// MemoryStore is an in-process Store, used for tests and dry runs
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string][]byte
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string][]byte)}
}

// Upsert implements Store. Results are stored serialised so callers never share state with the store.
func (s *MemoryStore) Upsert(ctx context.Context, r *model.Result) (bool, error) {
	if err := Validate(r); err != nil {
		return false, err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return false, errors.Wrap(err, "marshal result")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.results[r.EntityID]; ok {
		var existing model.Result
		if err := json.Unmarshal(prev, &existing); err != nil {
			return false, errors.Wrap(err, "unmarshal stored result")
		}
		if !ShouldReplace(&existing, r) {
			return false, nil
		}
	}
	s.results[r.EntityID] = data
	return true, nil
}

// Get implements Store
func (s *MemoryStore) Get(ctx context.Context, entityID string) (*model.Result, error) {
	s.mu.RLock()
	data, ok := s.results[entityID]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "entity %s", entityID)
	}

	var r model.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "unmarshal stored result")
	}
	return &r, nil
}

// Len returns the number of stored results
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Close implements Store
func (s *MemoryStore) Close() error {
	return nil
}
