// Package ledger provides in-process reference implementations of the
// collateral token and outcome-issuing ledger interfaces. They back the dev
// daemon and the test suite; a production deployment would bind the same
// interfaces to an external asset ledger.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/domain"
)

// Token is an in-memory fungible token with ERC-20 transfer semantics:
// balances, owner->spender allowances, mint and burn. All operations validate
// before mutating, so a rejected movement leaves balances untouched, and
// sum(balances) == totalSupply holds at all times.
type Token struct {
	name string

	mu          sync.Mutex
	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
}

// NewToken creates an empty token ledger with the given display name.
func NewToken(name string) *Token {
	return &Token{
		name:        name,
		totalSupply: new(big.Int),
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Name returns the token's display name.
func (t *Token) Name() string {
	return t.name
}

// Mint credits amount new units to account.
func (t *Token) Mint(_ context.Context, account common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return fmt.Errorf("%s: mint: %w", t.name, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.credit(account, amount)
	t.totalSupply.Add(t.totalSupply, amount)
	return nil
}

// Burn destroys amount units held by account.
func (t *Token) Burn(_ context.Context, account common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return fmt.Errorf("%s: burn: %w", t.name, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.balance(account).Cmp(amount) < 0 {
		return fmt.Errorf("%s: burn %s from %s: insufficient balance %s",
			t.name, amount, account.Hex(), t.balance(account))
	}
	t.debit(account, amount)
	t.totalSupply.Sub(t.totalSupply, amount)
	return nil
}

// Transfer moves amount from -> to on the owner's own authority.
func (t *Token) Transfer(_ context.Context, from, to common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return fmt.Errorf("%s: transfer: %w", t.name, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.balance(from).Cmp(amount) < 0 {
		return fmt.Errorf("%s: transfer %s from %s: insufficient balance %s",
			t.name, amount, from.Hex(), t.balance(from))
	}
	t.debit(from, amount)
	t.credit(to, amount)
	return nil
}

// TransferFrom moves amount from -> to on spender's authority, consuming the
// allowance from has granted to spender. Balance and allowance are both
// checked before either is touched.
func (t *Token) TransferFrom(_ context.Context, spender, from, to common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return fmt.Errorf("%s: transferFrom: %w", t.name, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if spender != from {
		allowed := t.allowance(from, spender)
		if allowed.Cmp(amount) < 0 {
			return fmt.Errorf("%s: transferFrom %s of %s by %s: insufficient allowance %s",
				t.name, amount, from.Hex(), spender.Hex(), allowed)
		}
	}
	if t.balance(from).Cmp(amount) < 0 {
		return fmt.Errorf("%s: transferFrom %s from %s: insufficient balance %s",
			t.name, amount, from.Hex(), t.balance(from))
	}

	if spender != from {
		t.allowance(from, spender).Sub(t.allowance(from, spender), amount)
	}
	t.debit(from, amount)
	t.credit(to, amount)
	return nil
}

// Approve sets spender's allowance over owner's balance, replacing any
// previous value.
func (t *Token) Approve(_ context.Context, owner, spender common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return fmt.Errorf("%s: approve: %w", t.name, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		t.allowances[owner] = m
	}
	m[spender] = new(big.Int).Set(amount)
	return nil
}

// BalanceOf returns a copy of account's current balance.
func (t *Token) BalanceOf(_ context.Context, account common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance(account)), nil
}

// Allowance returns a copy of the amount spender may move from owner.
func (t *Token) Allowance(_ context.Context, owner, spender common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.allowance(owner, spender)), nil
}

// TotalSupply returns a copy of the current total supply.
func (t *Token) TotalSupply() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.totalSupply)
}

func (t *Token) balance(a common.Address) *big.Int {
	if b, ok := t.balances[a]; ok {
		return b
	}
	b := new(big.Int)
	t.balances[a] = b
	return b
}

func (t *Token) allowance(owner, spender common.Address) *big.Int {
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		t.allowances[owner] = m
	}
	a, ok := m[spender]
	if !ok {
		a = new(big.Int)
		m[spender] = a
	}
	return a
}

func (t *Token) debit(a common.Address, amount *big.Int) {
	t.balance(a).Sub(t.balance(a), amount)
}

func (t *Token) credit(a common.Address, amount *big.Int) {
	t.balance(a).Add(t.balance(a), amount)
}

func validAmount(amount *big.Int) error {
	if amount == nil {
		return fmt.Errorf("nil amount")
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative amount %s", amount)
	}
	return nil
}

// Compile-time interface check.
var _ domain.Token = (*Token)(nil)
