// Package market implements the lifecycle state machine and trade-settlement
// engine for a single prediction market: collateral is escrowed against a
// fixed set of mutually exclusive outcome claims, participants trade claims
// against a pricing oracle, and the creator accrues a protocol fee on every
// trade.
//
// The package is pure domain logic. It performs no logging and no I/O beyond
// the collaborator interfaces in internal/domain; orchestration (persistence,
// event fanout, notifications) lives in internal/service.
package market

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/domain"
)

// Config holds the construction parameters for a Market.
type Config struct {
	// Creator is the identity authorized for Fund, Close and WithdrawFees.
	Creator common.Address
	// Account is the market's own account on the collateral and claim
	// ledgers; all escrowed assets are held under this identity.
	Account common.Address
	// Outcomes is the outcome-issuing ledger defining the outcome set.
	Outcomes domain.OutcomeLedger
	// Oracle prices trade vectors against current net exposure.
	Oracle domain.PricingOracle
	// FeeRateNum is the fee rate numerator over domain.FeeRange.
	FeeRateNum int64
}

// Market is the state machine for one prediction-market instance. All public
// operations are serialized by an internal mutex (the single-entry lock) and
// are all-or-nothing: internal state is committed only after every external
// transfer in the operation has succeeded.
type Market struct {
	mu sync.Mutex

	creator    common.Address
	account    common.Address
	createdAt  time.Time
	outcomes   domain.OutcomeLedger
	oracle     domain.PricingOracle
	collateral domain.Token
	feeRateNum int64

	// Mutable state, guarded by mu.
	stage          domain.Stage
	fundingAmount  *big.Int
	netOutcomeSold []*big.Int
}

// TradeReceipt reports the outcome of a completed trade.
type TradeReceipt struct {
	Trader         common.Address
	OutcomeAmounts []*big.Int
	GrossCost      *big.Int
	Fee            *big.Int
	NetCost        *big.Int
}

// New validates cfg and constructs a Market in the Created stage. The outcome
// count is captured from the ledger at this moment and is immutable
// afterwards.
func New(cfg Config) (*Market, error) {
	if cfg.Outcomes == nil {
		return nil, fmt.Errorf("market: outcome ledger is required: %w", domain.ErrInvalidConfig)
	}
	if cfg.Oracle == nil {
		return nil, fmt.Errorf("market: pricing oracle is required: %w", domain.ErrInvalidConfig)
	}
	if cfg.FeeRateNum < 0 || cfg.FeeRateNum >= domain.FeeRange {
		return nil, fmt.Errorf("market: fee rate numerator %d out of [0, %d): %w",
			cfg.FeeRateNum, domain.FeeRange, domain.ErrInvalidConfig)
	}

	n := cfg.Outcomes.OutcomeCount()
	if n == 0 {
		return nil, fmt.Errorf("market: outcome ledger has no outcomes: %w", domain.ErrInvalidConfig)
	}

	inv := make([]*big.Int, n)
	for i := range inv {
		inv[i] = new(big.Int)
	}

	return &Market{
		creator:        cfg.Creator,
		account:        cfg.Account,
		createdAt:      time.Now().UTC(),
		outcomes:       cfg.Outcomes,
		oracle:         cfg.Oracle,
		collateral:     cfg.Outcomes.CollateralToken(),
		feeRateNum:     cfg.FeeRateNum,
		stage:          domain.StageCreated,
		fundingAmount:  new(big.Int),
		netOutcomeSold: inv,
	}, nil
}

// Fund escrows funding collateral pulled from the creator and converts it
// into one full claim-set per unit, held by the market. It moves the market
// from Created to Funded and may be called exactly once.
//
// The caller must have approved the market account for at least funding on
// the collateral token.
func (m *Market) Fund(ctx context.Context, caller common.Address, funding *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireCreator(caller); err != nil {
		return err
	}
	if err := m.requireStage(domain.StageCreated); err != nil {
		return err
	}
	if funding == nil || funding.Sign() < 0 {
		return fmt.Errorf("market: funding amount must be non-negative: %w", domain.ErrInvalidInput)
	}

	if err := m.collateral.TransferFrom(ctx, m.account, caller, m.account, funding); err != nil {
		return fmt.Errorf("market: pull funding collateral: %v: %w", err, domain.ErrTransferFailed)
	}
	if err := m.collateral.Approve(ctx, m.account, m.outcomes.Address(), funding); err != nil {
		return fmt.Errorf("market: approve outcome ledger: %v: %w", err, domain.ErrTransferFailed)
	}
	if err := m.outcomes.BuyAllOutcomes(ctx, m.account, funding); err != nil {
		return fmt.Errorf("market: mint claim sets: %v: %w", err, domain.ErrTransferFailed)
	}

	m.fundingAmount = new(big.Int).Set(funding)
	m.stage = domain.StageFunded
	return nil
}

// Trade settles a signed outcome vector against the market. Positive entries
// buy that outcome from the market, negative entries sell it back.
// collateralLimit caps the net cost when nonzero: the trade fails with
// ErrSlippageExceeded if netCost > collateralLimit. Note that a negative
// limit therefore caps, rather than floors, the caller's refund.
//
// A caller paying collateral must have approved the market account on the
// collateral token; a caller returning claims must have approved the market
// account on each outcome token being sold back.
func (m *Market) Trade(ctx context.Context, caller common.Address, outcomeAmounts []*big.Int, collateralLimit *big.Int) (TradeReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireStage(domain.StageFunded); err != nil {
		return TradeReceipt{}, err
	}

	n := int(m.outcomes.OutcomeCount())
	if len(outcomeAmounts) != n {
		return TradeReceipt{}, fmt.Errorf("market: trade vector has %d entries, market has %d outcomes: %w",
			len(outcomeAmounts), n, domain.ErrInvalidInput)
	}
	amounts := make([]*big.Int, n)
	for i, a := range outcomeAmounts {
		if a == nil {
			return TradeReceipt{}, fmt.Errorf("market: trade vector entry %d is nil: %w", i, domain.ErrInvalidInput)
		}
		amounts[i] = new(big.Int).Set(a)
	}
	if collateralLimit == nil {
		collateralLimit = new(big.Int)
	}

	gross, err := m.oracle.Cost(ctx, m.inventoryCopy(), amounts)
	if err != nil {
		return TradeReceipt{}, fmt.Errorf("market: pricing oracle: %w", err)
	}
	if gross == nil {
		return TradeReceipt{}, fmt.Errorf("market: pricing oracle returned no cost: %w", domain.ErrInvalidInput)
	}

	fee := FeeAmount(gross, m.feeRateNum)
	net := new(big.Int).Add(gross, fee)

	if collateralLimit.Sign() != 0 && net.Cmp(collateralLimit) > 0 {
		return TradeReceipt{}, fmt.Errorf("market: net cost %s exceeds limit %s: %w",
			net, collateralLimit, domain.ErrSlippageExceeded)
	}

	// The ledgers offer no whole-call transaction, so every leg is staged
	// against balances and allowances before any asset moves. A leg that
	// would be rejected fails here, with nothing applied.
	if err := m.stageTrade(ctx, caller, amounts, gross, net); err != nil {
		return TradeReceipt{}, err
	}

	// Caller owes collateral: pull the net cost and convert the gross part
	// into freshly minted claim-sets so the per-outcome pushes below always
	// have sufficient balance. The fee stays behind as market collateral.
	if gross.Sign() > 0 {
		if err := m.collateral.TransferFrom(ctx, m.account, caller, m.account, net); err != nil {
			return TradeReceipt{}, fmt.Errorf("market: pull trade collateral: %v: %w", err, domain.ErrTransferFailed)
		}
		if err := m.collateral.Approve(ctx, m.account, m.outcomes.Address(), gross); err != nil {
			return TradeReceipt{}, fmt.Errorf("market: approve outcome ledger: %v: %w", err, domain.ErrTransferFailed)
		}
		if err := m.outcomes.BuyAllOutcomes(ctx, m.account, gross); err != nil {
			return TradeReceipt{}, fmt.Errorf("market: mint claim sets: %v: %w", err, domain.ErrTransferFailed)
		}
	}

	for i := 0; i < n; i++ {
		a := amounts[i]
		switch a.Sign() {
		case 0:
			// No transfer for a zero entry.
		case -1:
			pull := new(big.Int).Neg(a)
			if err := m.outcomes.OutcomeToken(uint8(i)).TransferFrom(ctx, m.account, caller, m.account, pull); err != nil {
				return TradeReceipt{}, fmt.Errorf("market: pull outcome %d claims: %v: %w", i, err, domain.ErrTransferFailed)
			}
		case 1:
			if err := m.outcomes.OutcomeToken(uint8(i)).Transfer(ctx, m.account, caller, a); err != nil {
				return TradeReceipt{}, fmt.Errorf("market: push outcome %d claims: %v: %w", i, err, domain.ErrTransferFailed)
			}
		}
	}

	// Market owes collateral: burn the surplus claim-sets accumulated from
	// the buybacks above, then pay out whatever the fee did not consume.
	if gross.Sign() < 0 {
		burn := new(big.Int).Neg(gross)
		if err := m.outcomes.SellAllOutcomes(ctx, m.account, burn); err != nil {
			return TradeReceipt{}, fmt.Errorf("market: burn claim sets: %v: %w", err, domain.ErrTransferFailed)
		}
		if net.Sign() < 0 {
			payout := new(big.Int).Neg(net)
			if err := m.collateral.Transfer(ctx, m.account, caller, payout); err != nil {
				return TradeReceipt{}, fmt.Errorf("market: pay trade refund: %v: %w", err, domain.ErrTransferFailed)
			}
		}
	}

	for i := 0; i < n; i++ {
		m.netOutcomeSold[i].Add(m.netOutcomeSold[i], amounts[i])
	}

	return TradeReceipt{
		Trader:         caller,
		OutcomeAmounts: amounts,
		GrossCost:      gross,
		Fee:            fee,
		NetCost:        net,
	}, nil
}

// stageTrade verifies every transfer a settlement will perform before any
// asset moves: the caller's collateral pull, each claim leg, and the set
// burn when the market owes a refund. After staging passes, no leg can fail
// on funds, only on ledger I/O.
func (m *Market) stageTrade(ctx context.Context, caller common.Address, amounts []*big.Int, gross, net *big.Int) error {
	minted := new(big.Int)
	burn := new(big.Int)
	switch gross.Sign() {
	case 1:
		if err := m.stageSpend(ctx, m.collateral, caller, net); err != nil {
			return fmt.Errorf("market: stage collateral pull: %w", err)
		}
		minted.Set(gross)
	case -1:
		burn.Neg(gross)
	}

	for i, a := range amounts {
		tok := m.outcomes.OutcomeToken(uint8(i))

		if a.Sign() < 0 {
			pull := new(big.Int).Neg(a)
			if err := m.stageSpend(ctx, tok, caller, pull); err != nil {
				return fmt.Errorf("market: stage outcome %d pull: %w", i, err)
			}
		}

		bal, err := tok.BalanceOf(ctx, m.account)
		if err != nil {
			return fmt.Errorf("market: stage outcome %d: read market balance: %v: %w", i, err, domain.ErrTransferFailed)
		}
		// After the per-outcome legs the market holds bal + minted - a of
		// this claim; that must cover the push now and the burn afterwards.
		after := new(big.Int).Add(bal, minted)
		after.Sub(after, a)
		if after.Cmp(burn) < 0 {
			return fmt.Errorf("market: stage outcome %d: market claim balance %s cannot cover the trade: %w",
				i, bal, domain.ErrTransferFailed)
		}
	}
	return nil
}

// stageSpend verifies owner holds amount of tok and has granted the market
// account an allowance covering it.
func (m *Market) stageSpend(ctx context.Context, tok domain.Token, owner common.Address, amount *big.Int) error {
	bal, err := tok.BalanceOf(ctx, owner)
	if err != nil {
		return fmt.Errorf("read balance: %v: %w", err, domain.ErrTransferFailed)
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("balance %s short of %s: %w", bal, amount, domain.ErrTransferFailed)
	}
	if owner == m.account {
		return nil
	}
	allowed, err := tok.Allowance(ctx, owner, m.account)
	if err != nil {
		return fmt.Errorf("read allowance: %v: %w", err, domain.ErrTransferFailed)
	}
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("allowance %s short of %s: %w", allowed, amount, domain.ErrTransferFailed)
	}
	return nil
}

// Close sweeps the market's entire remaining claim balances to the creator
// and moves the market from Funded to Closed. It may be called exactly once.
func (m *Market) Close(ctx context.Context, caller common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireCreator(caller); err != nil {
		return err
	}
	if err := m.requireStage(domain.StageFunded); err != nil {
		return err
	}

	// Read every balance before the first transfer so a failing read cannot
	// interrupt a sweep already in progress.
	n := int(m.outcomes.OutcomeCount())
	balances := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		bal, err := m.outcomes.OutcomeToken(uint8(i)).BalanceOf(ctx, m.account)
		if err != nil {
			return fmt.Errorf("market: read outcome %d balance: %v: %w", i, err, domain.ErrTransferFailed)
		}
		balances[i] = bal
	}
	for i := 0; i < n; i++ {
		if balances[i].Sign() == 0 {
			continue
		}
		if err := m.outcomes.OutcomeToken(uint8(i)).Transfer(ctx, m.account, m.creator, balances[i]); err != nil {
			return fmt.Errorf("market: sweep outcome %d claims: %v: %w", i, err, domain.ErrTransferFailed)
		}
	}

	m.stage = domain.StageClosed
	return nil
}

// WithdrawFees sweeps the market's entire collateral balance to the creator
// and returns the swept amount. Outside of an in-flight operation the market
// never holds collateral other than accrued fees, so the whole balance is
// treated as fee. There is no stage precondition; it may be called
// repeatedly.
func (m *Market) WithdrawFees(ctx context.Context, caller common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireCreator(caller); err != nil {
		return nil, err
	}

	bal, err := m.collateral.BalanceOf(ctx, m.account)
	if err != nil {
		return nil, fmt.Errorf("market: read collateral balance: %v: %w", err, domain.ErrTransferFailed)
	}
	if bal.Sign() > 0 {
		if err := m.collateral.Transfer(ctx, m.account, m.creator, bal); err != nil {
			return nil, fmt.Errorf("market: sweep fees: %v: %w", err, domain.ErrTransferFailed)
		}
	}
	return bal, nil
}

// Snapshot returns a copy of the market's observable state.
func (m *Market) Snapshot() domain.MarketSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv := make([]string, len(m.netOutcomeSold))
	for i, v := range m.netOutcomeSold {
		inv[i] = v.String()
	}
	return domain.MarketSnapshot{
		Creator:        m.creator,
		CreatedAt:      m.createdAt,
		Stage:          m.stage.String(),
		OutcomeCount:   m.outcomes.OutcomeCount(),
		FeeRateNum:     m.feeRateNum,
		FundingAmount:  m.fundingAmount.String(),
		NetOutcomeSold: inv,
	}
}

// Restore replaces the market's mutable state with a previously saved
// snapshot. It is intended for boot-time recovery, before the market is
// exposed to callers.
func (m *Market) Restore(snap domain.MarketSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stage, ok := domain.ParseStage(snap.Stage)
	if !ok {
		return fmt.Errorf("market: unknown stage %q in snapshot: %w", snap.Stage, domain.ErrInvalidConfig)
	}
	if snap.OutcomeCount != m.outcomes.OutcomeCount() {
		return fmt.Errorf("market: snapshot has %d outcomes, ledger has %d: %w",
			snap.OutcomeCount, m.outcomes.OutcomeCount(), domain.ErrInvalidConfig)
	}
	funding, ok := new(big.Int).SetString(snap.FundingAmount, 10)
	if !ok {
		return fmt.Errorf("market: bad funding amount %q in snapshot: %w", snap.FundingAmount, domain.ErrInvalidConfig)
	}
	inv, ok := snap.BigInts()
	if !ok || len(inv) != len(m.netOutcomeSold) {
		return fmt.Errorf("market: bad inventory in snapshot: %w", domain.ErrInvalidConfig)
	}

	m.stage = stage
	m.fundingAmount = funding
	m.netOutcomeSold = inv
	if !snap.CreatedAt.IsZero() {
		m.createdAt = snap.CreatedAt
	}
	return nil
}

// HasLedgerBacking reports whether the ledgers hold any assets behind the
// market's current state. A Funded market whose collateral escrow and claim
// balances are all zero was restored over a fresh ledger; its sells and
// close sweeps will fail until the ledger is reseeded.
func (m *Market) HasLedgerBacking(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stage == domain.StageCreated || m.fundingAmount.Sign() == 0 {
		return true, nil
	}

	escrow, err := m.collateral.BalanceOf(ctx, m.outcomes.Address())
	if err != nil {
		return false, fmt.Errorf("market: read escrow balance: %w", err)
	}
	if escrow.Sign() > 0 {
		return true, nil
	}
	for i := uint8(0); i < m.outcomes.OutcomeCount(); i++ {
		bal, err := m.outcomes.OutcomeToken(i).BalanceOf(ctx, m.account)
		if err != nil {
			return false, fmt.Errorf("market: read outcome %d balance: %w", i, err)
		}
		if bal.Sign() > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Creator returns the market creator's identity.
func (m *Market) Creator() common.Address {
	return m.creator
}

// Account returns the market's own ledger account.
func (m *Market) Account() common.Address {
	return m.account
}

func (m *Market) inventoryCopy() []*big.Int {
	out := make([]*big.Int, len(m.netOutcomeSold))
	for i, v := range m.netOutcomeSold {
		out[i] = new(big.Int).Set(v)
	}
	return out
}
