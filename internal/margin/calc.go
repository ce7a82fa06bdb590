// Package margin holds the pure rate/distance conversion and margin
// requirement arithmetic. Nothing here touches storage or the wallet.
package margin

import (
	"errors"

	"github.com/shopspring/decimal"

	"lv-margintrade/internal/instrument"
	"lv-margintrade/internal/types"
)

// ErrZeroRate rejects margin math against a zero or negative quoted rate.
var ErrZeroRate = errors.New("zero rate is not valid for margin calculation")

var oneHundred = decimal.NewFromInt(100)

func sideMultiplier(side types.Side, isTakeProfit bool) decimal.Decimal {
	m := decimal.NewFromInt(1)
	if side == types.SideSell {
		m = m.Neg()
	}
	if isTakeProfit {
		m = m.Neg()
	}
	return m
}

// MinInstrumentDistance returns the instrument's minimum stop distance in
// ticks. Percentage-mode instruments scale the configured percentage by the
// current rate.
func MinInstrumentDistance(in instrument.Instrument, rate decimal.Decimal) decimal.Decimal {
	if in.StopDistanceAbsolute {
		return in.MinimumStopDistance
	}
	return in.MinimumStopDistance.Div(oneHundred).Mul(rate).Div(in.TickSize)
}

// DistanceToRate converts a distance in ticks to an absolute rate. A stop
// distance moves against the position, a take-profit distance moves with it.
// Exactly inverted by RateToDistance for the same side/instrument/rate.
func DistanceToRate(side types.Side, distance, rate decimal.Decimal, in instrument.Instrument, isTakeProfit bool) decimal.Decimal {
	return rate.Sub(distance.Mul(in.TickSize).Mul(sideMultiplier(side, isTakeProfit)))
}

// RateToDistance is the inverse of DistanceToRate.
func RateToDistance(side types.Side, distanceRate, openRate decimal.Decimal, in instrument.Instrument, isTakeProfit bool) decimal.Decimal {
	return openRate.Sub(distanceRate).Div(in.TickSize).Div(sideMultiplier(side, isTakeProfit))
}

// StopLossRate converts a requested stop distance to an absolute stop rate,
// silently widening distances narrower than the instrument minimum. The floor
// is a safety net, not a validation error.
func StopLossRate(in instrument.Instrument, stopDistance, rate decimal.Decimal, side types.Side) decimal.Decimal {
	minDistance := MinInstrumentDistance(in, rate)
	if stopDistance.LessThan(minDistance) {
		stopDistance = minDistance
	}
	return DistanceToRate(side, stopDistance, rate, in, false)
}

// RequiredMargin computes the cash that must be reserved to hold amount units
// at the given rate with the given stop. The result is quantized up to the
// quote currency precision and never negative.
func RequiredMargin(side types.Side, in instrument.Instrument, stopLossRate, amount, rate decimal.Decimal) (decimal.Decimal, error) {
	if !rate.IsPositive() {
		return decimal.Zero, ErrZeroRate
	}

	var minimumMargin decimal.Decimal
	if in.MinimumMarginAbsolute {
		minimumMargin = in.MinimumMargin.Mul(in.TickSize)
	} else {
		minimumMargin = in.MinimumMargin.Div(oneHundred).Mul(rate)
	}

	stopDistance := rate.Sub(stopLossRate).Abs()

	var slippage decimal.Decimal
	if in.SlippageAbsolute {
		slippage = in.Slippage.Mul(in.TickSize)
	} else {
		slippage = in.Slippage.Div(oneHundred).Mul(minimumMargin)
	}

	worst := stopDistance
	if minimumMargin.GreaterThan(worst) {
		worst = minimumMargin
	}
	cash := worst.Add(slippage).Mul(amount)
	if !cash.IsPositive() {
		return decimal.Zero, nil
	}
	return in.QuoteAsset.QuantizeUp(cash), nil
}
