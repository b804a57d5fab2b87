package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openpredict/marketd/internal/domain"
)

// StateStore implements domain.StateStore using PostgreSQL. The single-row
// market_state table holds the latest snapshot as JSONB.
type StateStore struct {
	pool *pgxpool.Pool
}

// NewStateStore creates a StateStore backed by the given pool.
func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

// Save upserts the market snapshot.
func (s *StateStore) Save(ctx context.Context, snap domain.MarketSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot: %w", err)
	}

	const query = `
		INSERT INTO market_state (id, snapshot, saved_at) VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET snapshot = EXCLUDED.snapshot, saved_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, data); err != nil {
		return fmt.Errorf("postgres: save market state: %w", err)
	}
	return nil
}

// Load returns the latest snapshot, or domain.ErrNotFound when none exists.
func (s *StateStore) Load(ctx context.Context) (domain.MarketSnapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, "SELECT snapshot FROM market_state WHERE id = 1").Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketSnapshot{}, domain.ErrNotFound
		}
		return domain.MarketSnapshot{}, fmt.Errorf("postgres: load market state: %w", err)
	}

	var snap domain.MarketSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("postgres: unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.StateStore = (*StateStore)(nil)
