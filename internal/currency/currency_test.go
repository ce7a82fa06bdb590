package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantize(t *testing.T) {
	usd := Currency{Code: "USD", Precision: 2}

	up := usd.QuantizeUp(decimal.RequireFromString("4.001"))
	assert.True(t, up.Equal(decimal.RequireFromString("4.01")), "got %s", up)

	down := usd.QuantizeDown(decimal.RequireFromString("4.009"))
	assert.True(t, down.Equal(decimal.RequireFromString("4.00")), "got %s", down)

	// Negative PnL rounds toward zero, not toward minus infinity.
	down = usd.QuantizeDown(decimal.RequireFromString("-4.009"))
	assert.True(t, down.Equal(decimal.RequireFromString("-4.00")), "got %s", down)
}

func TestStaticConverter(t *testing.T) {
	usd := Currency{Code: "USD", Precision: 2}
	eur := Currency{Code: "EUR", Precision: 2}
	jpy := Currency{Code: "JPY", Precision: 0}

	c := NewStaticConverter()
	c.SetRate("EUR", "USD", decimal.RequireFromString("1.10"))

	got, err := c.Convert(eur, usd, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(110)), "got %s", got)

	// The inverse direction reuses the same rate.
	got, err = c.Convert(usd, eur, decimal.NewFromInt(110))
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(100)), "got %s", got)

	// Same-currency conversion is the identity, no rate needed.
	got, err = c.Convert(usd, usd, decimal.RequireFromString("12.34"))
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("12.34")))

	_, err = c.Convert(usd, jpy, decimal.NewFromInt(1))
	assert.Error(t, err)
}
