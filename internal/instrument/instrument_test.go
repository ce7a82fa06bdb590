package instrument

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lv-margintrade/internal/types"
)

func activeInstrument() Instrument {
	return Instrument{
		Symbol:              "ACME",
		MinTradeSize:        decimal.NewFromInt(10),
		TradeSizeIncrement:  decimal.NewFromInt(5),
		TickSize:            decimal.RequireFromString("0.01"),
		DisplayTickSize:     decimal.RequireFromString("0.05"),
		Active:              true,
		Tradable:            true,
		NewPositionsAllowed: true,
		Shortable:           true,
	}
}

func TestIsAmountTradable(t *testing.T) {
	in := activeInstrument()

	assert.True(t, in.IsAmountTradable(decimal.NewFromInt(10)))
	assert.True(t, in.IsAmountTradable(decimal.NewFromInt(25)))
	assert.False(t, in.IsAmountTradable(decimal.NewFromInt(5)), "below minimum")
	assert.False(t, in.IsAmountTradable(decimal.NewFromInt(12)), "not on increment")
	assert.False(t, in.IsAmountTradable(decimal.Zero))
	assert.False(t, in.IsAmountTradable(decimal.NewFromInt(-10)))
}

func TestIsPositionOpenable(t *testing.T) {
	now := time.Now()

	in := activeInstrument()
	assert.True(t, in.IsPositionOpenable(types.SideBuy, now))
	assert.True(t, in.IsPositionOpenable(types.SideSell, now))

	in.Shortable = false
	assert.True(t, in.IsPositionOpenable(types.SideBuy, now))
	assert.False(t, in.IsPositionOpenable(types.SideSell, now))

	in = activeInstrument()
	in.NewPositionsAllowed = false
	assert.False(t, in.IsPositionOpenable(types.SideBuy, now))

	in = activeInstrument()
	in.Tradable = false
	assert.False(t, in.IsPositionOpenable(types.SideBuy, now))
}

func TestOpenHours(t *testing.T) {
	in := activeInstrument()
	in.OpenHours = &OpenHours{
		Location: time.UTC,
		Ranges: []OpenRange{
			{Weekday: time.Monday, From: "09:00", To: "17:30"},
		},
	}

	monMorning := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	monNight := time.Date(2026, 8, 24, 20, 0, 0, 0, time.UTC)
	tuesday := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	require.Equal(t, time.Monday, monMorning.Weekday())
	assert.True(t, in.IsAllowedByTime(monMorning))
	assert.False(t, in.IsAllowedByTime(monNight))
	assert.False(t, in.IsAllowedByTime(tuesday))

	in.OpenHours = nil
	assert.True(t, in.IsAllowedByTime(monNight), "no hours means always open")
}

func TestQuantizePrice(t *testing.T) {
	in := activeInstrument()

	down := in.QuantizePriceDown(decimal.RequireFromString("101.37"))
	assert.True(t, down.Equal(decimal.RequireFromString("101.35")), "got %s", down)

	up := in.QuantizePriceUp(decimal.RequireFromString("101.37"))
	assert.True(t, up.Equal(decimal.RequireFromString("101.40")), "got %s", up)

	exact := in.QuantizePriceDown(decimal.RequireFromString("101.35"))
	assert.True(t, exact.Equal(decimal.RequireFromString("101.35")), "got %s", exact)
}

func TestMemoryCatalog(t *testing.T) {
	cat := NewMemoryCatalog(activeInstrument())

	got, err := cat.BySymbol(context.Background(), "ACME")
	require.NoError(t, err)
	assert.Equal(t, "ACME", got.Symbol)

	_, err = cat.BySymbol(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := cat.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
