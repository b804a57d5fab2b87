package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SettlementStore persists completed trade settlements.
type SettlementStore interface {
	Insert(ctx context.Context, s Settlement) error
	List(ctx context.Context, opts ListOpts) ([]Settlement, error)
	Count(ctx context.Context) (int64, error)
}

// StateStore persists the market's observable state after each successful
// operation so a restarted daemon can resume a funded market.
type StateStore interface {
	Save(ctx context.Context, snap MarketSnapshot) error
	// Load returns ErrNotFound when no snapshot has been saved yet.
	Load(ctx context.Context) (MarketSnapshot, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of state-mutating operations.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
