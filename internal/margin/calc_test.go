package margin

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lv-margintrade/internal/currency"
	"lv-margintrade/internal/instrument"
	"lv-margintrade/internal/types"
)

func tickInstrument() instrument.Instrument {
	return instrument.Instrument{
		Symbol:                "ACME",
		QuoteAsset:            currency.Currency{Code: "USD", Precision: 2},
		AssetClass:            types.AssetClassIndices,
		StopDistanceAbsolute:  true,
		MinimumStopDistance:   decimal.NewFromInt(1),
		SlippageAbsolute:      true,
		Slippage:              decimal.Zero,
		MinimumMarginAbsolute: true,
		MinimumMargin:         decimal.NewFromInt(5),
		TickSize:              decimal.NewFromInt(1),
	}
}

func TestDistanceToRate(t *testing.T) {
	in := tickInstrument()
	rate := decimal.NewFromInt(100)
	dist := decimal.NewFromInt(5)

	// A stop moves against the position, a take-profit with it.
	assert.True(t, DistanceToRate(types.SideBuy, dist, rate, in, false).Equal(decimal.NewFromInt(95)))
	assert.True(t, DistanceToRate(types.SideBuy, decimal.NewFromInt(10), rate, in, true).Equal(decimal.NewFromInt(110)))
	assert.True(t, DistanceToRate(types.SideSell, dist, rate, in, false).Equal(decimal.NewFromInt(105)))
	assert.True(t, DistanceToRate(types.SideSell, decimal.NewFromInt(10), rate, in, true).Equal(decimal.NewFromInt(90)))
}

func TestRateToDistanceRoundTrip(t *testing.T) {
	in := tickInstrument()
	in.TickSize = decimal.RequireFromString("0.25")
	rate := decimal.RequireFromString("101.75")
	dist := decimal.NewFromInt(7)

	for _, side := range []types.Side{types.SideBuy, types.SideSell} {
		for _, tp := range []bool{false, true} {
			converted := DistanceToRate(side, dist, rate, in, tp)
			back := RateToDistance(side, converted, rate, in, tp)
			assert.True(t, back.Equal(dist), "side=%s tp=%v got %s", side, tp, back)
		}
	}
}

func TestStopLossRateAppliesMinimumDistance(t *testing.T) {
	in := tickInstrument()
	in.MinimumStopDistance = decimal.NewFromInt(3)
	rate := decimal.NewFromInt(100)

	// Distance below the minimum is widened to it.
	got := StopLossRate(in, decimal.NewFromInt(1), rate, types.SideBuy)
	assert.True(t, got.Equal(decimal.NewFromInt(97)), "got %s", got)

	// Distance above the minimum passes through.
	got = StopLossRate(in, decimal.NewFromInt(5), rate, types.SideBuy)
	assert.True(t, got.Equal(decimal.NewFromInt(95)), "got %s", got)
}

func TestMinInstrumentDistancePercentage(t *testing.T) {
	in := tickInstrument()
	in.StopDistanceAbsolute = false
	in.MinimumStopDistance = decimal.NewFromInt(2) // 2% of rate in ticks
	in.TickSize = decimal.RequireFromString("0.5")

	got := MinInstrumentDistance(in, decimal.NewFromInt(100))
	assert.True(t, got.Equal(decimal.NewFromInt(4)), "got %s", got)
}

func TestRequiredMargin(t *testing.T) {
	in := tickInstrument()
	rate := decimal.NewFromInt(100)
	amount := decimal.NewFromInt(10)

	t.Run("stop distance equals minimum margin", func(t *testing.T) {
		stop := decimal.NewFromInt(95)
		cash, err := RequiredMargin(types.SideBuy, in, stop, amount, rate)
		require.NoError(t, err)
		assert.True(t, cash.Equal(decimal.NewFromInt(50)), "got %s", cash)
	})

	t.Run("wide stop dominates", func(t *testing.T) {
		stop := decimal.NewFromInt(88)
		cash, err := RequiredMargin(types.SideBuy, in, stop, amount, rate)
		require.NoError(t, err)
		assert.True(t, cash.Equal(decimal.NewFromInt(120)), "got %s", cash)
	})

	t.Run("minimum margin floors a narrow stop", func(t *testing.T) {
		stop := decimal.NewFromInt(99)
		cash, err := RequiredMargin(types.SideBuy, in, stop, amount, rate)
		require.NoError(t, err)
		assert.True(t, cash.Equal(decimal.NewFromInt(50)), "got %s", cash)
	})

	t.Run("slippage adds on top", func(t *testing.T) {
		withSlippage := in
		withSlippage.Slippage = decimal.NewFromInt(2)
		stop := decimal.NewFromInt(95)
		cash, err := RequiredMargin(types.SideBuy, withSlippage, stop, amount, rate)
		require.NoError(t, err)
		assert.True(t, cash.Equal(decimal.NewFromInt(70)), "got %s", cash)
	})

	t.Run("percentage modes", func(t *testing.T) {
		pct := in
		pct.MinimumMarginAbsolute = false
		pct.MinimumMargin = decimal.NewFromInt(8) // 8% of rate = 8
		pct.SlippageAbsolute = false
		pct.Slippage = decimal.NewFromInt(25) // 25% of minimum margin = 2
		stop := decimal.NewFromInt(95)
		cash, err := RequiredMargin(types.SideBuy, pct, stop, amount, rate)
		require.NoError(t, err)
		assert.True(t, cash.Equal(decimal.NewFromInt(100)), "got %s", cash)
	})

	t.Run("quantizes up to quote precision", func(t *testing.T) {
		stop := decimal.RequireFromString("95.999")
		cash, err := RequiredMargin(types.SideBuy, in, stop, decimal.NewFromInt(1), rate)
		require.NoError(t, err)
		// max(4.001, 5) = 5, exact at precision 2
		assert.True(t, cash.Equal(decimal.NewFromInt(5)), "got %s", cash)

		narrow := in
		narrow.MinimumMargin = decimal.Zero
		cash, err = RequiredMargin(types.SideBuy, narrow, stop, decimal.NewFromInt(1), rate)
		require.NoError(t, err)
		assert.True(t, cash.Equal(decimal.RequireFromString("4.01")), "got %s", cash)
	})

	t.Run("zero rate rejected", func(t *testing.T) {
		_, err := RequiredMargin(types.SideBuy, in, decimal.NewFromInt(95), amount, decimal.Zero)
		assert.ErrorIs(t, err, ErrZeroRate)
	})

	t.Run("sell side is symmetric", func(t *testing.T) {
		stop := decimal.NewFromInt(105)
		cash, err := RequiredMargin(types.SideSell, in, stop, amount, rate)
		require.NoError(t, err)
		assert.True(t, cash.Equal(decimal.NewFromInt(50)), "got %s", cash)
	})
}

func TestRequiredMarginMonotonicInStopDistance(t *testing.T) {
	in := tickInstrument()
	rate := decimal.NewFromInt(100)
	amount := decimal.NewFromInt(1)

	prev := decimal.Zero
	for d := 5; d <= 30; d += 5 {
		stop := rate.Sub(decimal.NewFromInt(int64(d)))
		cash, err := RequiredMargin(types.SideBuy, in, stop, amount, rate)
		require.NoError(t, err)
		assert.True(t, cash.GreaterThanOrEqual(prev), "margin shrank at distance %d", d)
		prev = cash
	}
}
