// Package memory provides in-memory store implementations used when no
// database is configured (dev mode) and by the test suite.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/openpredict/marketd/internal/domain"
)

// SettlementStore is an in-memory domain.SettlementStore.
type SettlementStore struct {
	mu          sync.RWMutex
	settlements []domain.Settlement
}

// NewSettlementStore creates an empty in-memory settlement store.
func NewSettlementStore() *SettlementStore {
	return &SettlementStore{}
}

// Insert appends a settlement.
func (s *SettlementStore) Insert(_ context.Context, st domain.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlements = append(s.settlements, st)
	return nil
}

// List returns settlements newest first with pagination and optional time
// filtering.
func (s *SettlementStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []domain.Settlement
	for i := len(s.settlements) - 1; i >= 0; i-- {
		st := s.settlements[i]
		if opts.Since != nil && st.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && st.CreatedAt.After(*opts.Until) {
			continue
		}
		filtered = append(filtered, st)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(filtered) {
			return nil, nil
		}
		filtered = filtered[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(filtered) {
		filtered = filtered[:opts.Limit]
	}
	return filtered, nil
}

// Count returns the number of stored settlements.
func (s *SettlementStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.settlements)), nil
}

// StateStore is an in-memory domain.StateStore.
type StateStore struct {
	mu    sync.RWMutex
	snap  domain.MarketSnapshot
	saved bool
}

// NewStateStore creates an empty in-memory state store.
func NewStateStore() *StateStore {
	return &StateStore{}
}

// Save replaces the stored snapshot.
func (s *StateStore) Save(_ context.Context, snap domain.MarketSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.saved = true
	return nil
}

// Load returns the stored snapshot, or domain.ErrNotFound when none exists.
func (s *StateStore) Load(_ context.Context) (domain.MarketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.saved {
		return domain.MarketSnapshot{}, domain.ErrNotFound
	}
	return s.snap, nil
}

// AuditStore is an in-memory domain.AuditStore.
type AuditStore struct {
	mu      sync.RWMutex
	nextID  int64
	entries []domain.AuditEntry
}

// NewAuditStore creates an empty in-memory audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{nextID: 1}
}

// Log appends an audit entry.
func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        s.nextID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	s.nextID++
	return nil
}

// List returns audit entries newest first with pagination.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.AuditEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, e)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Compile-time interface checks.
var (
	_ domain.SettlementStore = (*SettlementStore)(nil)
	_ domain.StateStore      = (*StateStore)(nil)
	_ domain.AuditStore      = (*AuditStore)(nil)
)
