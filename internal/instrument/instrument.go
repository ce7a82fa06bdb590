package instrument

import (
	"time"

	"github.com/shopspring/decimal"

	"lv-margintrade/internal/currency"
	"lv-margintrade/internal/types"
)

// Instrument is read-only reference data for a tradable symbol. Distance,
// slippage and minimum-margin values are interpreted as absolute tick counts
// or as percentages depending on the matching *Absolute flag.
type Instrument struct {
	Symbol      string            `json:"symbol"`
	Description string            `json:"description"`
	BaseAsset   string            `json:"base_asset"`
	QuoteAsset  currency.Currency `json:"quote_asset"`
	AssetClass  types.AssetClass  `json:"asset_class"`

	StopDistanceAbsolute  bool            `json:"stop_distance_absolute"`
	MinimumStopDistance   decimal.Decimal `json:"minimum_stop_distance"`
	SlippageAbsolute      bool            `json:"slippage_absolute"`
	Slippage              decimal.Decimal `json:"slippage"`
	MinimumMarginAbsolute bool            `json:"minimum_margin_absolute"`
	MinimumMargin         decimal.Decimal `json:"minimum_margin"`

	MinTradeSize       decimal.Decimal `json:"min_trade_size"`
	TradeSizeIncrement decimal.Decimal `json:"trade_size_increment"`

	TickSize        decimal.Decimal `json:"tick_size"`
	DisplayTickSize decimal.Decimal `json:"display_tick_size"`

	Active              bool `json:"active"`
	Tradable            bool `json:"tradable"`
	NewPositionsAllowed bool `json:"new_positions_allowed"`
	Shortable           bool `json:"shortable"`

	// OpenHours is nil for instruments that trade around the clock.
	OpenHours *OpenHours `json:"-"`
}

// OpenRange is a single weekly trading window in the group's timezone.
type OpenRange struct {
	Weekday time.Weekday
	From    string // "09:00"
	To      string // "17:30"
}

type OpenHours struct {
	Location *time.Location
	Ranges   []OpenRange
}

// Contains reports whether t falls inside one of the trading windows.
func (h *OpenHours) Contains(t time.Time) bool {
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	hhmm := local.Format("15:04")
	for _, r := range h.Ranges {
		if r.Weekday != local.Weekday() {
			continue
		}
		if r.From <= hhmm && hhmm <= r.To {
			return true
		}
	}
	return false
}

// IsAllowedByTime reports whether the instrument's exchange is operational.
func (i Instrument) IsAllowedByTime(now time.Time) bool {
	if i.OpenHours == nil {
		return true
	}
	return i.OpenHours.Contains(now)
}

func (i Instrument) IsAccessibleForAction(now time.Time) bool {
	return i.Active && i.Tradable && i.IsAllowedByTime(now)
}

// IsPositionOpenable checks the full pre-trade tradability predicate for the
// given side.
func (i Instrument) IsPositionOpenable(side types.Side, now time.Time) bool {
	if side == types.SideSell && !i.Shortable {
		return false
	}
	return i.IsAccessibleForAction(now) && i.NewPositionsAllowed
}

// IsAmountTradable reports whether amount is at least the minimum trade size
// and a whole multiple of the size increment.
func (i Instrument) IsAmountTradable(amount decimal.Decimal) bool {
	if amount.LessThan(i.MinTradeSize) || !amount.IsPositive() {
		return false
	}
	if i.TradeSizeIncrement.IsPositive() {
		return amount.Mod(i.TradeSizeIncrement).IsZero()
	}
	return true
}

// QuantizePriceDown snaps a rate down to the display tick grid.
func (i Instrument) QuantizePriceDown(v decimal.Decimal) decimal.Decimal {
	tick := i.displayTick()
	return v.Div(tick).Floor().Mul(tick)
}

// QuantizePriceUp snaps a rate up to the display tick grid.
func (i Instrument) QuantizePriceUp(v decimal.Decimal) decimal.Decimal {
	tick := i.displayTick()
	return v.Div(tick).Ceil().Mul(tick)
}

func (i Instrument) displayTick() decimal.Decimal {
	if i.DisplayTickSize.IsPositive() {
		return i.DisplayTickSize
	}
	if i.TickSize.IsPositive() {
		return i.TickSize
	}
	return decimal.NewFromInt(1)
}
