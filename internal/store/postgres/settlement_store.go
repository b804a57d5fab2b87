package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openpredict/marketd/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a SettlementStore backed by the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Insert records a completed settlement. The outcome vector is stored as a
// JSONB array of decimal strings; costs are NUMERIC so signed 256-bit values
// fit without loss.
func (s *SettlementStore) Insert(ctx context.Context, st domain.Settlement) error {
	amounts, err := json.Marshal(st.OutcomeAmounts)
	if err != nil {
		return fmt.Errorf("postgres: marshal outcome amounts: %w", err)
	}

	const query = `
		INSERT INTO settlements (id, trader, outcome_amounts, gross_cost, fee, net_cost, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = s.pool.Exec(ctx, query,
		st.ID, st.Trader.Hex(), amounts, st.GrossCost, st.Fee, st.NetCost, st.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert settlement %s: %w", st.ID, err)
	}
	return nil
}

// List returns settlements ordered newest first, with pagination and
// optional time filtering.
func (s *SettlementStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	query := `SELECT id, trader, outcome_amounts, gross_cost, fee, net_cost, created_at
		FROM settlements WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements: %w", err)
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		var (
			st          domain.Settlement
			trader      string
			amountsJSON []byte
		)
		if err := rows.Scan(&st.ID, &trader, &amountsJSON, &st.GrossCost, &st.Fee, &st.NetCost, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		st.Trader = common.HexToAddress(trader)
		if err := json.Unmarshal(amountsJSON, &st.OutcomeAmounts); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal outcome amounts: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list settlements rows: %w", err)
	}
	return out, nil
}

// Count returns the total number of recorded settlements.
func (s *SettlementStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM settlements").Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count settlements: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.SettlementStore = (*SettlementStore)(nil)
