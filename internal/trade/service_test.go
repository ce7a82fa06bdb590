package trade

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lv-margintrade/internal/currency"
	"lv-margintrade/internal/gateway"
	"lv-margintrade/internal/instrument"
	"lv-margintrade/internal/margin"
	"lv-margintrade/internal/marketdata"
	"lv-margintrade/internal/types"
	"lv-margintrade/internal/wallet"
)

var usd = currency.Currency{Code: "USD", Precision: 2}

func testInstrument() instrument.Instrument {
	return instrument.Instrument{
		Symbol:                "ACME",
		QuoteAsset:            usd,
		AssetClass:            types.AssetClassIndices,
		StopDistanceAbsolute:  true,
		MinimumStopDistance:   decimal.NewFromInt(1),
		SlippageAbsolute:      true,
		Slippage:              decimal.Zero,
		MinimumMarginAbsolute: true,
		MinimumMargin:         decimal.NewFromInt(1),
		MinTradeSize:          decimal.NewFromInt(1),
		TradeSizeIncrement:    decimal.NewFromInt(1),
		TickSize:              decimal.NewFromInt(1),
		Active:                true,
		Tradable:              true,
		NewPositionsAllowed:   true,
		Shortable:             true,
	}
}

type fixture struct {
	svc     *Service
	store   *MemoryStore
	wallet  *wallet.Memory
	gw      *gateway.Immediate
	quotes  *marketdata.Quotes
	bus     *marketdata.Bus
	catalog *instrument.MemoryCatalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := marketdata.NewBus()
	quotes := marketdata.NewQuotes(bus)
	quotes.Set(marketdata.Quote{
		Symbol: "ACME",
		Bid:    decimal.NewFromInt(100),
		Ask:    decimal.NewFromInt(101),
	})

	store := NewMemoryStore()
	w := wallet.NewMemory()
	gw := gateway.NewImmediate(quotes)
	catalog := instrument.NewMemoryCatalog(testInstrument())
	converter := currency.NewStaticConverter()

	svc := NewService(store, catalog, w, gw, converter,
		StaticProfiles{Currency: usd}, nil, zap.NewNop())
	gw.Bind(svc, svc)

	return &fixture{svc: svc, store: store, wallet: w, gw: gw, quotes: quotes, bus: bus, catalog: catalog}
}

func (f *fixture) deposit(t *testing.T, userID string, amount int64) {
	t.Helper()
	require.NoError(t, f.wallet.Deposit(context.Background(), userID, decimal.NewFromInt(amount), usd))
}

func openParams() OpenParams {
	return OpenParams{
		UserID:           "alice",
		Symbol:           "ACME",
		Rate:             decimal.NewFromInt(100),
		Amount:           decimal.NewFromInt(10),
		Side:             types.SideBuy,
		StopLossDistance: decimal.NewFromInt(5),
	}
}

func TestOpenPosition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, "alice", 1000)

	id, err := f.svc.OpenPosition(ctx, openParams())
	require.NoError(t, err)

	// The immediate gateway confirms synchronously at the requested rate.
	position, err := f.store.GetPosition(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.PositionOpened, position.State)
	assert.True(t, position.OpenRate.Equal(decimal.NewFromInt(100)))
	assert.True(t, position.StopLoss.Equal(decimal.NewFromInt(95)))
	assert.True(t, position.CurrentMargin.Equal(decimal.NewFromInt(50)), "got %s", position.CurrentMargin)

	reserved := f.wallet.ReservedBalance("alice", usd)
	assert.True(t, reserved.Equal(decimal.NewFromInt(50)), "got %s", reserved)
	free, err := f.wallet.GetUsefulBalance(ctx, "alice", usd)
	require.NoError(t, err)
	assert.True(t, free.Equal(decimal.NewFromInt(950)), "got %s", free)

	trades, err := f.store.ListTradesByPosition(ctx, id)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Success)
	assert.Equal(t, types.SideBuy, trades[0].Side)
}

func TestOpenPositionValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, "alice", 1000)

	t.Run("insufficient balance", func(t *testing.T) {
		p := openParams()
		p.Amount = decimal.NewFromInt(1000)
		_, err := f.svc.OpenPosition(ctx, p)
		assert.ErrorIs(t, err, wallet.ErrOverdraft)
	})

	t.Run("amount off the size increment", func(t *testing.T) {
		p := openParams()
		p.Amount = decimal.RequireFromString("1.5")
		_, err := f.svc.OpenPosition(ctx, p)
		assert.ErrorIs(t, err, ErrWrongAmount)
	})

	t.Run("zero rate", func(t *testing.T) {
		p := openParams()
		p.Rate = decimal.Zero
		_, err := f.svc.OpenPosition(ctx, p)
		assert.ErrorIs(t, err, margin.ErrZeroRate)
	})

	t.Run("unknown symbol", func(t *testing.T) {
		p := openParams()
		p.Symbol = "NOPE"
		_, err := f.svc.OpenPosition(ctx, p)
		assert.ErrorIs(t, err, instrument.ErrNotFound)
	})

	t.Run("short on a non-shortable instrument", func(t *testing.T) {
		in := testInstrument()
		in.Shortable = false
		f.catalog.Put(in)
		defer f.catalog.Put(testInstrument())
		p := openParams()
		p.Side = types.SideSell
		_, err := f.svc.OpenPosition(ctx, p)
		assert.ErrorIs(t, err, ErrInstrumentNotTradeable)
	})
}

func TestOpenPositionMinimumStopDistanceFloor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, "alice", 1000)

	in := testInstrument()
	in.MinimumStopDistance = decimal.NewFromInt(3)
	f.catalog.Put(in)

	p := openParams()
	p.StopLossDistance = decimal.NewFromInt(1)
	id, err := f.svc.OpenPosition(ctx, p)
	require.NoError(t, err)

	position, err := f.store.GetPosition(ctx, id)
	require.NoError(t, err)
	assert.True(t, position.StopLoss.Equal(decimal.NewFromInt(97)), "got %s", position.StopLoss)
}

func TestClosePositionFull(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, "alice", 1000)

	id, err := f.svc.OpenPosition(ctx, openParams())
	require.NoError(t, err)

	closeRate := decimal.NewFromInt(110)
	require.NoError(t, f.svc.ClosePosition(ctx, id, decimal.NewFromInt(10), &closeRate, ""))

	position, err := f.store.GetPosition(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.PositionClosed, position.State)
	assert.True(t, position.Amount.IsZero())
	assert.True(t, position.PnL.Equal(decimal.NewFromInt(100)), "got %s", position.PnL)
	require.NotNil(t, position.CloseRate)
	assert.True(t, position.CloseRate.Equal(closeRate))
	assert.NotNil(t, position.CloseDate)

	// Margin fully released, profit credited.
	assert.True(t, f.wallet.ReservedBalance("alice", usd).IsZero())
	free, err := f.wallet.GetUsefulBalance(ctx, "alice", usd)
	require.NoError(t, err)
	assert.True(t, free.Equal(decimal.NewFromInt(1100)), "got %s", free)

	// Fully closed positions no longer accept closes.
	err = f.svc.ClosePosition(ctx, id, decimal.NewFromInt(1), &closeRate, "")
	assert.ErrorIs(t, err, ErrPositionNotOpen)
}

func TestClosePositionAtMarketUsesClosingSide(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, "alice", 1000)

	id, err := f.svc.OpenPosition(ctx, openParams())
	require.NoError(t, err)

	// No rate given: a buy closes at the bid.
	require.NoError(t, f.svc.ClosePosition(ctx, id, decimal.NewFromInt(10), nil, ""))
	position, err := f.store.GetPosition(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, position.CloseRate)
	assert.True(t, position.CloseRate.Equal(decimal.NewFromInt(100)), "got %s", position.CloseRate)
}

func TestClosePositionWrongAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, "alice", 1000)

	id, err := f.svc.OpenPosition(ctx, openParams())
	require.NoError(t, err)

	err = f.svc.ClosePosition(ctx, id, decimal.NewFromInt(11), nil, "")
	assert.ErrorIs(t, err, ErrWrongAmount)
	err = f.svc.ClosePosition(ctx, id, decimal.Zero, nil, "")
	assert.ErrorIs(t, err, ErrWrongAmount)
}

func TestCloseAllPositions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, "alice", 1000)

	first, err := f.svc.OpenPosition(ctx, openParams())
	require.NoError(t, err)
	second, err := f.svc.OpenPosition(ctx, openParams())
	require.NoError(t, err)

	require.NoError(t, f.svc.CloseAllPositions(ctx, "alice"))

	for _, id := range []string{first, second} {
		position, err := f.store.GetPosition(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, types.PositionClosed, position.State)
	}
	assert.True(t, f.wallet.ReservedBalance("alice", usd).IsZero())
}

func TestChangeStopLoss(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, "alice", 1000)

	id, err := f.svc.OpenPosition(ctx, openParams())
	require.NoError(t, err)

	t.Run("widening reserves more", func(t *testing.T) {
		require.NoError(t, f.svc.ChangeStopLoss(ctx, id, decimal.NewFromInt(90)))
		position, err := f.store.GetPosition(ctx, id)
		require.NoError(t, err)
		assert.True(t, position.StopLoss.Equal(decimal.NewFromInt(90)))
		assert.True(t, position.CurrentMargin.Equal(decimal.NewFromInt(100)), "got %s", position.CurrentMargin)
		assert.True(t, f.wallet.ReservedBalance("alice", usd).Equal(decimal.NewFromInt(100)))
	})

	t.Run("tightening releases", func(t *testing.T) {
		require.NoError(t, f.svc.ChangeStopLoss(ctx, id, decimal.NewFromInt(98)))
		position, err := f.store.GetPosition(ctx, id)
		require.NoError(t, err)
		assert.True(t, position.StopLoss.Equal(decimal.NewFromInt(98)))
		// Floored by the minimum margin of 1 per unit.
		assert.True(t, position.CurrentMargin.Equal(decimal.NewFromInt(20)), "got %s", position.CurrentMargin)
		assert.True(t, f.wallet.ReservedBalance("alice", usd).Equal(decimal.NewFromInt(20)))
	})

	t.Run("overdraft keeps the old stop", func(t *testing.T) {
		before, err := f.store.GetPosition(ctx, id)
		require.NoError(t, err)
		err = f.svc.ChangeStopLoss(ctx, id, decimal.NewFromInt(-500))
		assert.ErrorIs(t, err, wallet.ErrOverdraft)
		after, err := f.store.GetPosition(ctx, id)
		require.NoError(t, err)
		assert.True(t, after.StopLoss.Equal(before.StopLoss))
		assert.True(t, after.CurrentMargin.Equal(before.CurrentMargin))
	})
}

func TestRequiredMarginEstimate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cash, err := f.svc.RequiredMargin(ctx, "ACME", types.SideBuy,
		decimal.NewFromInt(100), decimal.NewFromInt(10), decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.True(t, cash.Equal(decimal.NewFromInt(50)), "got %s", cash)

	_, err = f.svc.RequiredMargin(ctx, "ACME", types.SideBuy,
		decimal.Zero, decimal.NewFromInt(10), decimal.NewFromInt(5))
	assert.ErrorIs(t, err, margin.ErrZeroRate)
}

func TestUnrealizedPnL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, "alice", 1000)

	id, err := f.svc.OpenPosition(ctx, openParams())
	require.NoError(t, err)
	position, err := f.store.GetPosition(ctx, id)
	require.NoError(t, err)

	bid := decimal.NewFromInt(104)
	ask := decimal.NewFromInt(105)
	upl := position.UnrealizedPnL(bid, ask)
	assert.True(t, upl.Equal(decimal.NewFromInt(40)), "got %s", upl)
}
