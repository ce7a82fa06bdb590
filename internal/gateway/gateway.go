// Package gateway abstracts the external liquidity venue. The trade core
// submits trade requests and order watches through the ExecutionGateway
// interface and receives fill confirmations asynchronously through the bound
// FillHandler. Implementations here are the deterministic immediate confirmer
// and the delayed confirmer with failure injection; a production venue
// adapter satisfies the same interface.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"lv-margintrade/internal/marketdata"
	"lv-margintrade/internal/model"
	"lv-margintrade/internal/types"
)

// TradeRequest asks the venue to fill amount units at (or near) the
// requested rate. TicketID is the caller-issued idempotency token echoed back
// on the confirmation; the confirmation handler consumes each ticket once.
type TradeRequest struct {
	TicketID    string
	PositionID  string
	Symbol      string
	Rate        decimal.Decimal
	Amount      decimal.Decimal
	Side        types.Side
	CloseReason types.PositionState // zero value when not a stop/take close
}

// Fill is a venue confirmation for a previously submitted trade request.
type Fill struct {
	TicketID    string
	PositionID  string
	Symbol      string
	Success     bool
	Amount      decimal.Decimal
	Side        types.Side
	AskedRate   decimal.Decimal
	Rate        decimal.Decimal // execution rate; equals AskedRate unless the venue slips
	Hedged      bool
	CloseReason types.PositionState
}

// FillHandler reconciles a confirmation into position state. Implemented by
// the trade service.
type FillHandler interface {
	OnFill(ctx context.Context, fill Fill)
}

// OrderTrigger is notified when a watched order's rate condition is met.
type OrderTrigger interface {
	OnOrderTriggered(ctx context.Context, orderID string)
}

type ExecutionGateway interface {
	// SubmitTrade queues a fill request. It never blocks for the fill; the
	// confirmation arrives later through the bound FillHandler.
	SubmitTrade(ctx context.Context, req TradeRequest) error
	// WatchOrder registers a conditional order for trigger monitoring.
	WatchOrder(ctx context.Context, order model.Order) error
	// UnwatchOrder drops a watch. Best effort: a trigger that already fired
	// cannot be retracted.
	UnwatchOrder(ctx context.Context, orderID string) error
	// CurrentQuote returns the venue's live two-sided price.
	CurrentQuote(ctx context.Context, symbol string) (marketdata.Quote, error)
}

// triggered reports whether a quote satisfies an order's rate condition:
// a buy order fires when the bid reaches the expected rate from below, a
// sell order when the ask reaches it from above.
func triggered(order model.Order, quote marketdata.Quote) bool {
	if order.Side == types.SideBuy {
		return quote.Bid.GreaterThanOrEqual(order.ExpectedRate)
	}
	return quote.Ask.LessThanOrEqual(order.ExpectedRate)
}
