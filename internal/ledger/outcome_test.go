package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var escrow = common.HexToAddress("0x000000000000000000000000000000000000e5c0")

func newFundedSet(t *testing.T, outcomeCount uint8, buyerFunds int64) (*OutcomeSet, *Token) {
	t.Helper()
	ctx := context.Background()

	collateral := NewToken("collateral")
	set, err := NewOutcomeSet(escrow, collateral, outcomeCount)
	require.NoError(t, err)

	require.NoError(t, collateral.Mint(ctx, alice, big.NewInt(buyerFunds)))
	require.NoError(t, collateral.Approve(ctx, alice, escrow, big.NewInt(buyerFunds)))
	return set, collateral
}

func TestNewOutcomeSetValidation(t *testing.T) {
	_, err := NewOutcomeSet(escrow, nil, 2)
	require.Error(t, err)

	_, err = NewOutcomeSet(escrow, NewToken("collateral"), 0)
	require.Error(t, err)
}

func TestBuyAllOutcomesEscrowsAndMints(t *testing.T) {
	ctx := context.Background()
	set, collateral := newFundedSet(t, 3, 100)

	require.NoError(t, set.BuyAllOutcomes(ctx, alice, big.NewInt(60)))

	assert.Equal(t, "60", balanceString(t, collateral, escrow))
	assert.Equal(t, "40", balanceString(t, collateral, alice))
	for i := uint8(0); i < 3; i++ {
		bal, err := set.OutcomeToken(i).BalanceOf(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, "60", bal.String())
	}
}

func TestSellAllOutcomesBurnsAndReleases(t *testing.T) {
	ctx := context.Background()
	set, collateral := newFundedSet(t, 2, 100)
	require.NoError(t, set.BuyAllOutcomes(ctx, alice, big.NewInt(100)))

	require.NoError(t, set.SellAllOutcomes(ctx, alice, big.NewInt(30)))

	assert.Equal(t, "30", balanceString(t, collateral, alice))
	assert.Equal(t, "70", balanceString(t, collateral, escrow))
	for i := uint8(0); i < 2; i++ {
		bal, err := set.OutcomeToken(i).BalanceOf(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, "70", bal.String())
	}
}

func TestSellAllOutcomesRequiresFullSet(t *testing.T) {
	ctx := context.Background()
	set, collateral := newFundedSet(t, 2, 100)
	require.NoError(t, set.BuyAllOutcomes(ctx, alice, big.NewInt(50)))

	// Give away part of one outcome so the set is incomplete.
	require.NoError(t, set.OutcomeToken(1).Transfer(ctx, alice, bob, big.NewInt(10)))

	err := set.SellAllOutcomes(ctx, alice, big.NewInt(50))
	require.Error(t, err)

	// Nothing was burned or released.
	assert.Equal(t, "50", balanceString(t, collateral, escrow))
	bal, err := set.OutcomeToken(0).BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "50", bal.String())
}

func TestBuyAllOutcomesRequiresAllowance(t *testing.T) {
	ctx := context.Background()
	collateral := NewToken("collateral")
	set, err := NewOutcomeSet(escrow, collateral, 2)
	require.NoError(t, err)
	require.NoError(t, collateral.Mint(ctx, bob, big.NewInt(100)))

	// bob never approved the escrow account.
	require.Error(t, set.BuyAllOutcomes(ctx, bob, big.NewInt(10)))
	assert.Equal(t, "100", balanceString(t, collateral, bob))
}
