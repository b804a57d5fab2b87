package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpredict/marketd/internal/domain"
)

func TestSettlementStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewSettlementStore()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Insert(ctx, domain.Settlement{
			ID:        fmt.Sprintf("s-%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	out, err := s.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, out, 5)
	assert.Equal(t, "s-4", out[0].ID)
	assert.Equal(t, "s-0", out[4].ID)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestSettlementStorePagination(t *testing.T) {
	ctx := context.Background()
	s := NewSettlementStore()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Insert(ctx, domain.Settlement{ID: fmt.Sprintf("s-%d", i)}))
	}

	out, err := s.List(ctx, domain.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "s-3", out[0].ID)
	assert.Equal(t, "s-2", out[1].ID)

	out, err = s.List(ctx, domain.ListOpts{Offset: 99})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSettlementStoreTimeFilter(t *testing.T) {
	ctx := context.Background()
	s := NewSettlementStore()

	base := time.Now().UTC()
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Insert(ctx, domain.Settlement{
			ID:        fmt.Sprintf("s-%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	since := base.Add(30 * time.Minute)
	until := base.Add(150 * time.Minute)
	out, err := s.List(ctx, domain.ListOpts{Since: &since, Until: &until})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "s-2", out[0].ID)
	assert.Equal(t, "s-1", out[1].ID)
}

func TestStateStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore()

	_, err := s.Load(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)

	snap := domain.MarketSnapshot{
		Stage:          "funded",
		OutcomeCount:   2,
		FundingAmount:  "1000",
		NetOutcomeSold: []string{"100", "0"},
	}
	require.NoError(t, s.Save(ctx, snap))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	// Save replaces the previous snapshot.
	snap.Stage = "closed"
	require.NoError(t, s.Save(ctx, snap))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "closed", got.Stage)
}

func TestAuditStore(t *testing.T) {
	ctx := context.Background()
	s := NewAuditStore()

	require.NoError(t, s.Log(ctx, "market_funded", map[string]any{"amount": "1000"}))
	require.NoError(t, s.Log(ctx, "market_trade", map[string]any{"fee": "1"}))

	out, err := s.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "market_trade", out[0].Event)
	assert.Equal(t, "market_funded", out[1].Event)
	assert.Greater(t, out[0].ID, out[1].ID)

	out, err = s.List(ctx, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, out, 1)
}
