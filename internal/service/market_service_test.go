package service_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/ledger"
	"github.com/openpredict/marketd/internal/market"
	"github.com/openpredict/marketd/internal/service"
	"github.com/openpredict/marketd/internal/store/memory"
)

var (
	creator    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	marketAcct = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	ledgerAcct = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	trader     = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

// fixedOracle prices every trade at the same cost.
type fixedOracle struct {
	cost int64
}

func (o *fixedOracle) Cost(context.Context, []*big.Int, []*big.Int) (*big.Int, error) {
	return big.NewInt(o.cost), nil
}

// recordingBus captures published payloads per channel.
type recordingBus struct {
	published map[string][][]byte
	streams   map[string][][]byte
}

func newRecordingBus() *recordingBus {
	return &recordingBus{
		published: make(map[string][][]byte),
		streams:   make(map[string][][]byte),
	}
}

func (b *recordingBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *recordingBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

// heldLocks always reports the lock as taken.
type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

// recordingNotifier captures dispatched notifications.
type recordingNotifier struct {
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.events = append(n.events, event)
	return nil
}

type fixture struct {
	collateral  *ledger.Token
	outcomes    *ledger.OutcomeSet
	settlements *memory.SettlementStore
	state       *memory.StateStore
	audit       *memory.AuditStore
	bus         *recordingBus
	notifier    *recordingNotifier
	svc         *service.MarketService
}

func newFixture(t *testing.T, oracleCost int64) *fixture {
	t.Helper()

	collateral := ledger.NewToken("collateral")
	outcomes, err := ledger.NewOutcomeSet(ledgerAcct, collateral, 2)
	require.NoError(t, err)

	core, err := market.New(market.Config{
		Creator:    creator,
		Account:    marketAcct,
		Outcomes:   outcomes,
		Oracle:     &fixedOracle{cost: oracleCost},
		FeeRateNum: 20_000,
	})
	require.NoError(t, err)

	f := &fixture{
		collateral:  collateral,
		outcomes:    outcomes,
		settlements: memory.NewSettlementStore(),
		state:       memory.NewStateStore(),
		audit:       memory.NewAuditStore(),
		bus:         newRecordingBus(),
		notifier:    &recordingNotifier{},
	}
	f.svc = service.NewMarketService(
		core, f.settlements, f.state, f.audit, f.bus, nil, f.notifier,
		slog.New(slog.DiscardHandler),
	)
	return f
}

func (f *fixture) fund(t *testing.T, amount int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.collateral.Mint(ctx, creator, big.NewInt(amount)))
	require.NoError(t, f.collateral.Approve(ctx, creator, marketAcct, big.NewInt(amount)))
	require.NoError(t, f.svc.Fund(ctx, creator, big.NewInt(amount)))
}

func TestFundPersistsAndPublishes(t *testing.T) {
	f := newFixture(t, 0)
	f.fund(t, 1000)
	ctx := context.Background()

	snap, err := f.state.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StageFunded.String(), snap.Stage)
	assert.Equal(t, "1000", snap.FundingAmount)

	require.Len(t, f.bus.published[domain.ChannelFunded], 1)
	var event map[string]any
	require.NoError(t, json.Unmarshal(f.bus.published[domain.ChannelFunded][0], &event))
	assert.Equal(t, "funded", event["event"])
	assert.Equal(t, "1000", event["amount"])

	entries, err := f.audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "market_funded", entries[0].Event)

	assert.Equal(t, []string{"funded"}, f.notifier.events)
}

func TestTradeRecordsSettlement(t *testing.T) {
	f := newFixture(t, 50)
	f.fund(t, 1000)
	ctx := context.Background()

	require.NoError(t, f.collateral.Mint(ctx, trader, big.NewInt(51)))
	require.NoError(t, f.collateral.Approve(ctx, trader, marketAcct, big.NewInt(51)))

	settlement, err := f.svc.Trade(ctx, trader,
		[]*big.Int{big.NewInt(100), big.NewInt(0)}, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, settlement.ID)
	assert.Equal(t, trader, settlement.Trader)
	assert.Equal(t, "50", settlement.GrossCost)
	assert.Equal(t, "1", settlement.Fee)
	assert.Equal(t, "51", settlement.NetCost)
	assert.Equal(t, []string{"100", "0"}, settlement.OutcomeAmounts)

	stored, err := f.svc.ListSettlements(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, settlement.ID, stored[0].ID)

	count, err := f.svc.CountSettlements(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Trade events go to both pub/sub and the durable stream.
	require.Len(t, f.bus.published[domain.ChannelTrade], 1)
	require.Len(t, f.bus.streams["settlements"], 1)
}

func TestTradeErrorsPassThrough(t *testing.T) {
	f := newFixture(t, 50)

	_, err := f.svc.Trade(context.Background(), trader,
		[]*big.Int{big.NewInt(1), big.NewInt(0)}, nil)
	require.ErrorIs(t, err, domain.ErrInvalidStage)

	// Nothing was recorded for the failed trade.
	count, err := f.svc.CountSettlements(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.Empty(t, f.bus.published[domain.ChannelTrade])
}

func TestCloseAndWithdrawPublish(t *testing.T) {
	f := newFixture(t, 50)
	f.fund(t, 1000)
	ctx := context.Background()

	require.NoError(t, f.collateral.Mint(ctx, trader, big.NewInt(51)))
	require.NoError(t, f.collateral.Approve(ctx, trader, marketAcct, big.NewInt(51)))
	_, err := f.svc.Trade(ctx, trader, []*big.Int{big.NewInt(100), big.NewInt(0)}, nil)
	require.NoError(t, err)

	swept, err := f.svc.WithdrawFees(ctx, creator)
	require.NoError(t, err)
	assert.Equal(t, "1", swept.String())
	require.Len(t, f.bus.published[domain.ChannelFees], 1)

	require.NoError(t, f.svc.Close(ctx, creator))
	require.Len(t, f.bus.published[domain.ChannelClosed], 1)
	assert.Equal(t, domain.StageClosed.String(), f.svc.Snapshot().Stage)

	assert.Equal(t, []string{"funded", "trade", "fees_withdrawn", "closed"}, f.notifier.events)
}

func TestRestoreResumesFromSnapshot(t *testing.T) {
	f := newFixture(t, 0)
	f.fund(t, 500)
	ctx := context.Background()

	// A second service over the same state store resumes the funded market.
	core, err := market.New(market.Config{
		Creator:    creator,
		Account:    marketAcct,
		Outcomes:   f.outcomes,
		Oracle:     &fixedOracle{},
		FeeRateNum: 20_000,
	})
	require.NoError(t, err)
	svc := service.NewMarketService(
		core, f.settlements, f.state, f.audit, nil, nil, nil,
		slog.New(slog.DiscardHandler),
	)

	require.NoError(t, svc.Restore(ctx))
	snap := svc.Snapshot()
	assert.Equal(t, domain.StageFunded.String(), snap.Stage)
	assert.Equal(t, "500", snap.FundingAmount)
}

func TestRestoreWithoutSnapshotIsNoop(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.svc.Restore(context.Background()))
	assert.Equal(t, domain.StageCreated.String(), f.svc.Snapshot().Stage)
}

func TestHeldLockBlocksOperations(t *testing.T) {
	collateral := ledger.NewToken("collateral")
	outcomes, err := ledger.NewOutcomeSet(ledgerAcct, collateral, 2)
	require.NoError(t, err)
	core, err := market.New(market.Config{
		Creator:    creator,
		Account:    marketAcct,
		Outcomes:   outcomes,
		Oracle:     &fixedOracle{},
		FeeRateNum: 0,
	})
	require.NoError(t, err)

	svc := service.NewMarketService(
		core, memory.NewSettlementStore(), memory.NewStateStore(), memory.NewAuditStore(),
		nil, heldLocks{}, nil, slog.New(slog.DiscardHandler),
	)

	err = svc.Fund(context.Background(), creator, big.NewInt(10))
	require.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Equal(t, domain.StageCreated.String(), svc.Snapshot().Stage)
}
