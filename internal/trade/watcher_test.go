package trade

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lv-margintrade/internal/marketdata"
	"lv-margintrade/internal/model"
	"lv-margintrade/internal/types"
)

func quoteAt(bid, ask int64) marketdata.Quote {
	return marketdata.Quote{
		Symbol: "ACME",
		Bid:    decimal.NewFromInt(bid),
		Ask:    decimal.NewFromInt(ask),
	}
}

func TestProtectiveHit(t *testing.T) {
	tp := decimal.NewFromInt(105)
	cases := []struct {
		name         string
		side         types.Side
		state        types.PositionState
		stop         decimal.Decimal
		takeProfit   *decimal.Decimal
		quote        marketdata.Quote
		hit          bool
		isTakeProfit bool
	}{
		{
			name:  "buy stop fires at bid through the stop",
			side:  types.SideBuy,
			state: types.PositionOpened,
			stop:  decimal.NewFromInt(95),
			quote: quoteAt(95, 96),
			hit:   true,
		},
		{
			name:  "buy stop holds above the stop",
			side:  types.SideBuy,
			state: types.PositionOpened,
			stop:  decimal.NewFromInt(95),
			quote: quoteAt(96, 97),
			hit:   false,
		},
		{
			name:         "buy take-profit fires at bid through the target",
			side:         types.SideBuy,
			state:        types.PositionOpened,
			stop:         decimal.NewFromInt(95),
			takeProfit:   &tp,
			quote:        quoteAt(105, 106),
			hit:          true,
			isTakeProfit: true,
		},
		{
			name:  "sell stop fires at ask through the stop",
			side:  types.SideSell,
			state: types.PositionOpened,
			stop:  decimal.NewFromInt(105),
			quote: quoteAt(104, 105),
			hit:   true,
		},
		{
			name:  "sell stop holds below the stop",
			side:  types.SideSell,
			state: types.PositionOpened,
			stop:  decimal.NewFromInt(105),
			quote: quoteAt(103, 104),
			hit:   false,
		},
		{
			name:         "sell take-profit fires at ask through the target",
			side:         types.SideSell,
			state:        types.PositionOpened,
			stop:         decimal.NewFromInt(110),
			takeProfit:   &tp,
			quote:        quoteAt(104, 105),
			hit:          true,
			isTakeProfit: true,
		},
		{
			name:  "closed position never fires",
			side:  types.SideBuy,
			state: types.PositionClosed,
			stop:  decimal.NewFromInt(95),
			quote: quoteAt(90, 91),
			hit:   false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := model.Position{
				Side:       tc.side,
				State:      tc.state,
				StopLoss:   tc.stop,
				TakeProfit: tc.takeProfit,
			}
			hit, isTakeProfit := protectiveHit(p, tc.quote)
			assert.Equal(t, tc.hit, hit)
			assert.Equal(t, tc.isTakeProfit, isTakeProfit)
		})
	}
}

func TestScanClosesOnStopHit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, "alice", 1000)

	id, err := f.svc.OpenPosition(ctx, openParams())
	require.NoError(t, err)

	w := NewStopWatcher(f.svc, f.bus, zap.NewNop())

	// A quote still above the stop changes nothing.
	f.quotes.Set(quoteAt(96, 97))
	w.Scan(ctx, quoteAt(96, 97))
	position, err := f.store.GetPosition(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.PositionOpened, position.State)

	// Bid drops through the stop; the watcher closes at market.
	f.quotes.Set(quoteAt(95, 96))
	w.Scan(ctx, quoteAt(95, 96))

	position, err = f.store.GetPosition(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.PositionClosedStopLoss, position.State)
	assert.True(t, position.PnL.Equal(decimal.NewFromInt(-50)), "got %s", position.PnL)

	free, err := f.wallet.GetUsefulBalance(ctx, "alice", usd)
	require.NoError(t, err)
	assert.True(t, free.Equal(decimal.NewFromInt(950)), "got %s", free)
	assert.True(t, f.wallet.ReservedBalance("alice", usd).IsZero())
}

func TestScanClosesOnTakeProfitHit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, "alice", 1000)

	p := openParams()
	tp := decimal.NewFromInt(5)
	p.TakeProfitDistance = &tp
	id, err := f.svc.OpenPosition(ctx, p)
	require.NoError(t, err)

	w := NewStopWatcher(f.svc, f.bus, zap.NewNop())
	f.quotes.Set(quoteAt(105, 106))
	w.Scan(ctx, quoteAt(105, 106))

	position, err := f.store.GetPosition(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.PositionClosedTakeProfit, position.State)
	assert.True(t, position.PnL.Equal(decimal.NewFromInt(50)), "got %s", position.PnL)
}

func TestScanClaimsPositionOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, "alice", 1000)

	id, err := f.svc.OpenPosition(ctx, openParams())
	require.NoError(t, err)

	w := NewStopWatcher(f.svc, f.bus, zap.NewNop())
	require.True(t, w.claim(id))

	// With the close already in flight a second stop hit is skipped.
	f.quotes.Set(quoteAt(95, 96))
	w.Scan(ctx, quoteAt(95, 96))

	position, err := f.store.GetPosition(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.PositionOpened, position.State)

	// Releasing the mark lets the next quote through.
	w.Release(id)
	w.Scan(ctx, quoteAt(95, 96))
	position, err = f.store.GetPosition(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.PositionClosedStopLoss, position.State)
}
