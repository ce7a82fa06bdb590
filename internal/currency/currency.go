package currency

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Currency is the money metadata attached to an instrument's quote asset and
// to a user's base account currency.
type Currency struct {
	Code      string `json:"code"`
	Precision int32  `json:"precision"`
}

// QuantizeUp rounds a cash value away from zero to the currency precision.
// Margin requirements round up so a reservation never understates risk.
func (c Currency) QuantizeUp(v decimal.Decimal) decimal.Decimal {
	return v.RoundUp(c.Precision)
}

// QuantizeDown rounds a cash value toward zero to the currency precision.
// Realized PnL rounds down before it is applied to the wallet.
func (c Currency) QuantizeDown(v decimal.Decimal) decimal.Decimal {
	return v.RoundDown(c.Precision)
}

// Converter turns a value in one currency into another. Used by the
// profitability rollups to express PnL in the user's base currency.
type Converter interface {
	Convert(from, to Currency, value decimal.Decimal) (decimal.Decimal, error)
}

// StaticConverter converts through a fixed rate table keyed by "FROM/TO".
type StaticConverter struct {
	mu    sync.RWMutex
	rates map[string]decimal.Decimal
}

func NewStaticConverter() *StaticConverter {
	return &StaticConverter{rates: make(map[string]decimal.Decimal)}
}

func (c *StaticConverter) SetRate(from, to string, rate decimal.Decimal) {
	c.mu.Lock()
	c.rates[from+"/"+to] = rate
	c.mu.Unlock()
}

func (c *StaticConverter) Convert(from, to Currency, value decimal.Decimal) (decimal.Decimal, error) {
	if from.Code == to.Code {
		return value, nil
	}
	c.mu.RLock()
	rate, ok := c.rates[from.Code+"/"+to.Code]
	c.mu.RUnlock()
	if ok {
		return to.QuantizeDown(value.Mul(rate)), nil
	}
	c.mu.RLock()
	inverse, ok := c.rates[to.Code+"/"+from.Code]
	c.mu.RUnlock()
	if ok && !inverse.IsZero() {
		return to.QuantizeDown(value.Div(inverse)), nil
	}
	return decimal.Zero, fmt.Errorf("no conversion rate for %s/%s", from.Code, to.Code)
}
