package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Token is the fungible-asset contract the market core requires of both the
// collateral asset and every outcome claim. Implementations must reject
// transfers that would overdraw a balance or allowance; any error surfaces in
// the core as ErrTransferFailed and aborts the whole operation.
type Token interface {
	// Transfer moves amount from -> to on the owner's own authority.
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	// TransferFrom moves amount from -> to on spender's authority, consuming
	// the allowance from has granted to spender.
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error
	// Approve sets spender's allowance over owner's balance.
	Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error
	// BalanceOf returns the current balance of account.
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	// Allowance returns the amount spender may currently move from owner's
	// balance. The core stages every leg of a settlement against balances
	// and allowances before moving anything.
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
}

// OutcomeLedger is the outcome-issuing ledger ("event" contract): it defines
// the outcome set, holds escrowed collateral, and mints/burns full claim-sets
// against it. The market core only ever buys and sells complete sets; single
// outcomes move via the per-outcome Token handles.
type OutcomeLedger interface {
	// OutcomeCount returns the fixed number of mutually exclusive outcomes.
	OutcomeCount() uint8
	// Address is the ledger's account identity, used as the spender when the
	// market approves collateral for a claim-set purchase.
	Address() common.Address
	// CollateralToken returns the fungible asset backing the outcome set.
	CollateralToken() Token
	// OutcomeToken returns the claim token for outcome index i.
	OutcomeToken(i uint8) Token
	// BuyAllOutcomes pulls amount collateral from buyer (requires allowance)
	// and mints amount units of every outcome claim to buyer.
	BuyAllOutcomes(ctx context.Context, buyer common.Address, amount *big.Int) error
	// SellAllOutcomes burns amount units of every outcome claim held by
	// seller and credits amount collateral back to seller.
	SellAllOutcomes(ctx context.Context, seller common.Address, amount *big.Int) error
}

// PricingOracle prices a requested trade vector against the market's current
// net exposure. Cost returns a signed settlement figure: positive means the
// caller owes collateral, negative means the market owes the caller. The
// oracle may read state but must not mutate it.
type PricingOracle interface {
	Cost(ctx context.Context, netOutcomeSold, trade []*big.Int) (*big.Int, error)
}
