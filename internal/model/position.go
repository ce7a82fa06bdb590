package model

import (
	"time"

	"github.com/shopspring/decimal"

	"lv-margintrade/internal/types"
)

// Position is a user's leveraged exposure to an instrument. OpeningAmount is
// immutable; Amount only ever decreases as closing fills confirm.
type Position struct {
	ID                string              `json:"id"`
	UserID            string              `json:"user_id"`
	Symbol            string              `json:"symbol"`
	Side              types.Side          `json:"side"`
	OpeningAmount     decimal.Decimal     `json:"opening_amount"`
	Amount            decimal.Decimal     `json:"amount"`
	AskedRate         decimal.Decimal     `json:"asked_rate"`
	OpenRate          decimal.Decimal     `json:"open_rate"`
	CloseRate         *decimal.Decimal    `json:"close_rate,omitempty"`
	StopLoss          decimal.Decimal     `json:"stop_loss"`
	AskedStopDistance decimal.Decimal     `json:"asked_stop_distance"`
	TakeProfit        *decimal.Decimal    `json:"take_profit,omitempty"`
	State             types.PositionState `json:"state"`
	CurrentMargin     decimal.Decimal     `json:"current_margin"`
	PnL               decimal.Decimal     `json:"pnl"`
	OpenDate          time.Time           `json:"open_date"`
	CloseDate         *time.Time          `json:"close_date,omitempty"`
	LastModified      time.Time           `json:"last_modified"`
}

func (p Position) IsOpen() bool {
	return !p.State.IsTerminal()
}

// UnrealizedPnL marks the remaining amount against the closing side of the
// quote: a buy closes at bid, a sell closes at ask.
func (p Position) UnrealizedPnL(bid, ask decimal.Decimal) decimal.Decimal {
	if !p.State.AcceptsClose() {
		return decimal.Zero
	}
	if p.Side == types.SideBuy {
		return bid.Sub(p.OpenRate).Mul(p.Amount)
	}
	return p.OpenRate.Sub(ask).Mul(p.Amount)
}

// Order is a conditional request that opens a Position once its rate trigger
// is met. Once linked to a Position it is immutable.
type Order struct {
	ID                 string           `json:"id"`
	UserID             string           `json:"user_id"`
	Symbol             string           `json:"symbol"`
	Amount             decimal.Decimal  `json:"amount"`
	Side               types.Side       `json:"side"`
	StopLossDistance   decimal.Decimal  `json:"stop_loss_distance"`
	TakeProfitDistance *decimal.Decimal `json:"take_profit_distance,omitempty"`
	ExpectedRate       decimal.Decimal  `json:"expected_rate"`
	PositionID         *string          `json:"position_id,omitempty"`
	State              types.OrderState `json:"state"`
	OpenDate           time.Time        `json:"open_date"`
	LastModified       time.Time        `json:"last_modified"`
}

// Trade is the append-only record of a single fill, successful or not. The
// state fields snapshot the position before and after the fill was applied.
type Trade struct {
	ID            string              `json:"id"`
	UserID        string              `json:"user_id"`
	PositionID    string              `json:"position_id"`
	Symbol        string              `json:"symbol"`
	AskedRate     decimal.Decimal     `json:"asked_rate"`
	Rate          decimal.Decimal     `json:"rate"`
	Amount        decimal.Decimal     `json:"amount"`
	Side          types.Side          `json:"side"`
	Success       bool                `json:"success"`
	PositionState types.PositionState `json:"position_state"`
	HouseTradeID  *string             `json:"house_trade_id,omitempty"`
	Time          time.Time           `json:"time"`
}

// HouseTrade is the venue's own offsetting fill, recorded alongside a hedged
// client trade. Bookkeeping only; it never affects position state.
type HouseTrade struct {
	ID      string          `json:"id"`
	Symbol  string          `json:"symbol"`
	Rate    decimal.Decimal `json:"rate"`
	Amount  decimal.Decimal `json:"amount"`
	Side    types.Side      `json:"side"`
	Success bool            `json:"success"`
	Time    time.Time       `json:"time"`
}

// Profitability is a per-user rollup of realized PnL and closed-position
// counts, keyed by instrument, by asset class, or overall (both keys empty).
type Profitability struct {
	UserID     string           `json:"user_id"`
	Symbol     string           `json:"symbol,omitempty"`
	AssetClass types.AssetClass `json:"asset_class,omitempty"`
	PnL        decimal.Decimal  `json:"pnl"`
	Positions  int64            `json:"positions"`
}
