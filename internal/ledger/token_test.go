package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x0000000000000000000000000000000000000ca0")
)

func balanceString(t *testing.T, tok *Token, a common.Address) string {
	t.Helper()
	bal, err := tok.BalanceOf(context.Background(), a)
	require.NoError(t, err)
	return bal.String()
}

func TestMintAndBurnTrackSupply(t *testing.T) {
	ctx := context.Background()
	tok := NewToken("test")

	require.NoError(t, tok.Mint(ctx, alice, big.NewInt(100)))
	assert.Equal(t, "100", tok.TotalSupply().String())

	require.NoError(t, tok.Burn(ctx, alice, big.NewInt(40)))
	assert.Equal(t, "60", tok.TotalSupply().String())
	assert.Equal(t, "60", balanceString(t, tok, alice))

	err := tok.Burn(ctx, alice, big.NewInt(61))
	require.Error(t, err)
	assert.Equal(t, "60", tok.TotalSupply().String())
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	tok := NewToken("test")
	require.NoError(t, tok.Mint(ctx, alice, big.NewInt(100)))

	require.NoError(t, tok.Transfer(ctx, alice, bob, big.NewInt(30)))
	assert.Equal(t, "70", balanceString(t, tok, alice))
	assert.Equal(t, "30", balanceString(t, tok, bob))

	// Insufficient balance leaves both sides untouched.
	err := tok.Transfer(ctx, alice, bob, big.NewInt(71))
	require.Error(t, err)
	assert.Equal(t, "70", balanceString(t, tok, alice))
	assert.Equal(t, "30", balanceString(t, tok, bob))
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	ctx := context.Background()
	tok := NewToken("test")
	require.NoError(t, tok.Mint(ctx, alice, big.NewInt(100)))
	require.NoError(t, tok.Approve(ctx, alice, bob, big.NewInt(50)))

	require.NoError(t, tok.TransferFrom(ctx, bob, alice, carol, big.NewInt(30)))
	assert.Equal(t, "70", balanceString(t, tok, alice))
	assert.Equal(t, "30", balanceString(t, tok, carol))

	// 20 of the 50 allowance remains.
	err := tok.TransferFrom(ctx, bob, alice, carol, big.NewInt(21))
	require.Error(t, err)
	require.NoError(t, tok.TransferFrom(ctx, bob, alice, carol, big.NewInt(20)))
}

func TestTransferFromOwnFundsSkipsAllowance(t *testing.T) {
	ctx := context.Background()
	tok := NewToken("test")
	require.NoError(t, tok.Mint(ctx, alice, big.NewInt(10)))

	// Moving one's own funds needs no allowance.
	require.NoError(t, tok.TransferFrom(ctx, alice, alice, bob, big.NewInt(10)))
	assert.Equal(t, "10", balanceString(t, tok, bob))
}

func TestApproveReplacesAllowance(t *testing.T) {
	ctx := context.Background()
	tok := NewToken("test")
	require.NoError(t, tok.Mint(ctx, alice, big.NewInt(100)))

	require.NoError(t, tok.Approve(ctx, alice, bob, big.NewInt(50)))
	require.NoError(t, tok.Approve(ctx, alice, bob, big.NewInt(5)))

	allowed, err := tok.Allowance(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, "5", allowed.String())

	err = tok.TransferFrom(ctx, bob, alice, bob, big.NewInt(6))
	require.Error(t, err)
	require.NoError(t, tok.TransferFrom(ctx, bob, alice, bob, big.NewInt(5)))
}

func TestRejectsInvalidAmounts(t *testing.T) {
	ctx := context.Background()
	tok := NewToken("test")

	require.Error(t, tok.Mint(ctx, alice, nil))
	require.Error(t, tok.Mint(ctx, alice, big.NewInt(-1)))
	require.Error(t, tok.Transfer(ctx, alice, bob, big.NewInt(-1)))
	require.Error(t, tok.Approve(ctx, alice, bob, big.NewInt(-1)))
}
