package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/domain"
)

// OutcomeSet is an in-memory outcome-issuing ledger: it escrows collateral
// under its own account and mints/burns full claim-sets (one unit of every
// outcome) against it. One escrowed collateral unit always backs exactly one
// unit of each outstanding claim.
type OutcomeSet struct {
	address    common.Address
	collateral *Token
	claims     []*Token

	// mu serializes buy/sell so a set is minted or burned as a unit.
	mu sync.Mutex
}

// NewOutcomeSet creates an outcome ledger with outcomeCount claim tokens
// backed by the given collateral token. address is the ledger's own escrow
// account on the collateral ledger.
func NewOutcomeSet(address common.Address, collateral *Token, outcomeCount uint8) (*OutcomeSet, error) {
	if collateral == nil {
		return nil, fmt.Errorf("ledger: collateral token is required: %w", domain.ErrInvalidConfig)
	}
	if outcomeCount == 0 {
		return nil, fmt.Errorf("ledger: outcome count must be positive: %w", domain.ErrInvalidConfig)
	}

	claims := make([]*Token, outcomeCount)
	for i := range claims {
		claims[i] = NewToken(fmt.Sprintf("outcome-%d", i))
	}
	return &OutcomeSet{
		address:    address,
		collateral: collateral,
		claims:     claims,
	}, nil
}

// OutcomeCount returns the fixed number of outcomes.
func (o *OutcomeSet) OutcomeCount() uint8 {
	return uint8(len(o.claims))
}

// Address returns the ledger's escrow account.
func (o *OutcomeSet) Address() common.Address {
	return o.address
}

// CollateralToken returns the backing collateral token.
func (o *OutcomeSet) CollateralToken() domain.Token {
	return o.collateral
}

// OutcomeToken returns the claim token for outcome i.
func (o *OutcomeSet) OutcomeToken(i uint8) domain.Token {
	return o.claims[i]
}

// BuyAllOutcomes pulls amount collateral from buyer into escrow (consuming
// the allowance buyer granted to the ledger) and mints amount units of every
// outcome claim to buyer.
func (o *OutcomeSet) BuyAllOutcomes(ctx context.Context, buyer common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return fmt.Errorf("ledger: buy all outcomes: %w", err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.collateral.TransferFrom(ctx, o.address, buyer, o.address, amount); err != nil {
		return fmt.Errorf("ledger: escrow collateral: %w", err)
	}
	// Minting cannot fail for a validated amount, so the set stays whole.
	for _, c := range o.claims {
		if err := c.Mint(ctx, buyer, amount); err != nil {
			return fmt.Errorf("ledger: mint %s: %w", c.Name(), err)
		}
	}
	return nil
}

// SellAllOutcomes burns amount units of every outcome claim held by seller
// and releases amount collateral from escrow back to seller. All claim
// balances are verified before anything is burned.
func (o *OutcomeSet) SellAllOutcomes(ctx context.Context, seller common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return fmt.Errorf("ledger: sell all outcomes: %w", err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, c := range o.claims {
		bal, err := c.BalanceOf(ctx, seller)
		if err != nil {
			return fmt.Errorf("ledger: read %s balance: %w", c.Name(), err)
		}
		if bal.Cmp(amount) < 0 {
			return fmt.Errorf("ledger: sell all outcomes: %s holds %s of %s, need %s",
				seller.Hex(), bal, c.Name(), amount)
		}
	}
	for _, c := range o.claims {
		if err := c.Burn(ctx, seller, amount); err != nil {
			return fmt.Errorf("ledger: burn %s: %w", c.Name(), err)
		}
	}
	if err := o.collateral.Transfer(ctx, o.address, seller, amount); err != nil {
		return fmt.Errorf("ledger: release collateral: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.OutcomeLedger = (*OutcomeSet)(nil)
