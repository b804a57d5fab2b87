// Package service orchestrates the market core: it serializes operations
// across replicas, persists settlements and state snapshots, fans out events
// on the signal bus, and dispatches operator notifications. The core itself
// stays pure; everything observable lives here.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/market"
)

// lockTTL bounds how long a crashed replica can hold the market lock.
const lockTTL = 30 * time.Second

// lockKey is the distributed-lock key for the single market instance.
const lockKey = "market"

// Notifier is the slice of the notification dispatcher the service needs.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// MarketService exposes the market lifecycle operations with persistence and
// event fanout. The bus, locks, and notifier dependencies are optional; a nil
// value disables that concern.
type MarketService struct {
	core        *market.Market
	settlements domain.SettlementStore
	state       domain.StateStore
	audit       domain.AuditStore
	bus         domain.SignalBus
	locks       domain.LockManager
	notifier    Notifier
	logger      *slog.Logger
}

// NewMarketService creates a MarketService around the given core.
func NewMarketService(
	core *market.Market,
	settlements domain.SettlementStore,
	state domain.StateStore,
	audit domain.AuditStore,
	bus domain.SignalBus,
	locks domain.LockManager,
	notifier Notifier,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		core:        core,
		settlements: settlements,
		state:       state,
		audit:       audit,
		bus:         bus,
		locks:       locks,
		notifier:    notifier,
		logger:      logger.With(slog.String("component", "market_service")),
	}
}

// Restore loads the last persisted market snapshot, if any, into the core.
// Call once at boot, before the service is exposed to callers.
func (s *MarketService) Restore(ctx context.Context) error {
	snap, err := s.state.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("market_service: load snapshot: %w", err)
	}
	if err := s.core.Restore(snap); err != nil {
		return fmt.Errorf("market_service: restore snapshot: %w", err)
	}
	if backed, err := s.core.HasLedgerBacking(ctx); err != nil {
		s.logger.WarnContext(ctx, "market_service: ledger backing check failed",
			slog.String("error", err.Error()),
		)
	} else if !backed {
		s.logger.WarnContext(ctx, "market_service: restored snapshot has no ledger backing; sells and close sweeps will fail until the ledger is reseeded",
			slog.String("stage", snap.Stage),
			slog.String("funding", snap.FundingAmount),
		)
	}
	s.logger.InfoContext(ctx, "market_service: restored market state",
		slog.String("stage", snap.Stage),
		slog.String("funding", snap.FundingAmount),
	)
	return nil
}

// Fund escrows funding collateral from the creator and transitions the
// market to Funded.
func (s *MarketService) Fund(ctx context.Context, caller common.Address, funding *big.Int) error {
	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.core.Fund(ctx, caller, funding); err != nil {
		return fmt.Errorf("market_service: fund: %w", err)
	}

	s.saveState(ctx)
	s.publish(ctx, domain.ChannelFunded, map[string]any{
		"event":   "funded",
		"creator": caller.Hex(),
		"amount":  funding.String(),
	})
	s.auditLog(ctx, "market_funded", map[string]any{
		"creator": caller.Hex(),
		"amount":  funding.String(),
	})
	s.notify(ctx, "funded", "Market funded",
		fmt.Sprintf("Funded with %s collateral by %s", funding, caller.Hex()))

	s.logger.InfoContext(ctx, "market_service: funded",
		slog.String("creator", caller.Hex()),
		slog.String("amount", funding.String()),
	)
	return nil
}

// Trade settles a signed outcome vector for caller and records the
// settlement. It returns the persisted settlement record.
func (s *MarketService) Trade(ctx context.Context, caller common.Address, outcomeAmounts []*big.Int, collateralLimit *big.Int) (domain.Settlement, error) {
	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return domain.Settlement{}, err
	}
	defer unlock()

	receipt, err := s.core.Trade(ctx, caller, outcomeAmounts, collateralLimit)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("market_service: trade: %w", err)
	}

	settlement := domain.Settlement{
		ID:             uuid.New().String(),
		Trader:         receipt.Trader,
		OutcomeAmounts: encodeAmounts(receipt.OutcomeAmounts),
		GrossCost:      receipt.GrossCost.String(),
		Fee:            receipt.Fee.String(),
		NetCost:        receipt.NetCost.String(),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.settlements.Insert(ctx, settlement); err != nil {
		// The trade already settled on the ledgers; losing the history row is
		// recoverable, aborting here would not be.
		s.logger.ErrorContext(ctx, "market_service: persist settlement failed",
			slog.String("settlement_id", settlement.ID),
			slog.String("error", err.Error()),
		)
	}

	s.saveState(ctx)
	s.publish(ctx, domain.ChannelTrade, map[string]any{
		"event":           "trade",
		"settlement_id":   settlement.ID,
		"trader":          settlement.Trader.Hex(),
		"outcome_amounts": settlement.OutcomeAmounts,
		"gross_cost":      settlement.GrossCost,
		"fee":             settlement.Fee,
		"net_cost":        settlement.NetCost,
	})
	s.auditLog(ctx, "market_trade", map[string]any{
		"settlement_id": settlement.ID,
		"trader":        settlement.Trader.Hex(),
		"gross_cost":    settlement.GrossCost,
		"fee":           settlement.Fee,
	})
	s.notify(ctx, "trade", "Trade settled",
		fmt.Sprintf("Trader %s, gross %s, fee %s", settlement.Trader.Hex(), settlement.GrossCost, settlement.Fee))

	s.logger.InfoContext(ctx, "market_service: trade settled",
		slog.String("settlement_id", settlement.ID),
		slog.String("trader", settlement.Trader.Hex()),
		slog.String("gross_cost", settlement.GrossCost),
		slog.String("fee", settlement.Fee),
		slog.String("net_cost", settlement.NetCost),
	)
	return settlement, nil
}

// Close sweeps the market's residual claims back to the creator and
// transitions the market to Closed.
func (s *MarketService) Close(ctx context.Context, caller common.Address) error {
	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.core.Close(ctx, caller); err != nil {
		return fmt.Errorf("market_service: close: %w", err)
	}

	s.saveState(ctx)
	s.publish(ctx, domain.ChannelClosed, map[string]any{"event": "closed"})
	s.auditLog(ctx, "market_closed", map[string]any{"creator": caller.Hex()})
	s.notify(ctx, "closed", "Market closed", "Residual claims swept to creator")

	s.logger.InfoContext(ctx, "market_service: closed")
	return nil
}

// WithdrawFees sweeps the market's collateral balance (accrued fees) to the
// creator and returns the swept amount.
func (s *MarketService) WithdrawFees(ctx context.Context, caller common.Address) (*big.Int, error) {
	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	swept, err := s.core.WithdrawFees(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("market_service: withdraw fees: %w", err)
	}

	s.publish(ctx, domain.ChannelFees, map[string]any{
		"event":  "fees_withdrawn",
		"amount": swept.String(),
	})
	s.auditLog(ctx, "fees_withdrawn", map[string]any{"amount": swept.String()})
	s.notify(ctx, "fees_withdrawn", "Fees withdrawn",
		fmt.Sprintf("Swept %s collateral to creator", swept))

	s.logger.InfoContext(ctx, "market_service: fees withdrawn",
		slog.String("amount", swept.String()),
	)
	return swept, nil
}

// Snapshot returns the market's current observable state.
func (s *MarketService) Snapshot() domain.MarketSnapshot {
	return s.core.Snapshot()
}

// ListSettlements returns settlement history with pagination.
func (s *MarketService) ListSettlements(ctx context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	out, err := s.settlements.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list settlements: %w", err)
	}
	return out, nil
}

// CountSettlements returns the total number of recorded settlements.
func (s *MarketService) CountSettlements(ctx context.Context) (int64, error) {
	n, err := s.settlements.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count settlements: %w", err)
	}
	return n, nil
}

func (s *MarketService) acquireLock(ctx context.Context) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	unlock, err := s.locks.Acquire(ctx, lockKey, lockTTL)
	if err != nil {
		return nil, fmt.Errorf("market_service: acquire lock: %w", err)
	}
	return unlock, nil
}

func (s *MarketService) saveState(ctx context.Context) {
	if err := s.state.Save(ctx, s.core.Snapshot()); err != nil {
		s.logger.ErrorContext(ctx, "market_service: save state failed",
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) publish(ctx context.Context, channel string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	data, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, data); err != nil {
		s.logger.WarnContext(ctx, "market_service: publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
	if channel == domain.ChannelTrade {
		if err := s.bus.StreamAppend(ctx, "settlements", data); err != nil {
			s.logger.WarnContext(ctx, "market_service: stream append failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *MarketService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "market_service: notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func encodeAmounts(amounts []*big.Int) []string {
	out := make([]string, len(amounts))
	for i, a := range amounts {
		out[i] = a.String()
	}
	return out
}
