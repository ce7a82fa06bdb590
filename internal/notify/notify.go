// Package notify is the fire-and-forget sink for position and PnL events.
// Delivery failures are logged and swallowed: trading state never rolls back
// because an event could not be published.
package notify

import (
	"github.com/shopspring/decimal"

	"lv-margintrade/internal/marketdata"
	"lv-margintrade/internal/model"
)

type Notifier interface {
	PositionUpdated(position model.Position, trade model.Trade)
	PnLApplied(position model.Position, pnl decimal.Decimal)
}

type Noop struct{}

func (Noop) PositionUpdated(model.Position, model.Trade) {}
func (Noop) PnLApplied(model.Position, decimal.Decimal)  {}

// BusNotifier publishes events on the marketdata bus, where the websocket
// feed picks them up.
type BusNotifier struct {
	bus *marketdata.Bus
}

func NewBusNotifier(bus *marketdata.Bus) *BusNotifier {
	return &BusNotifier{bus: bus}
}

// PositionEvent is published on the bus after a fill settles. The stop
// watcher also consumes it to clear its in-flight marks.
type PositionEvent struct {
	UserID   string         `json:"user_id"`
	Position model.Position `json:"position"`
	Trade    model.Trade    `json:"trade"`
}

type PnLEvent struct {
	UserID     string `json:"user_id"`
	PositionID string `json:"position_id"`
	Symbol     string `json:"symbol"`
	PnL        string `json:"pnl"`
	Positive   bool   `json:"positive"`
}

func (n *BusNotifier) PositionUpdated(position model.Position, trade model.Trade) {
	n.bus.Publish(marketdata.Event{Type: "position", Data: PositionEvent{
		UserID:   position.UserID,
		Position: position,
		Trade:    trade,
	}})
}

func (n *BusNotifier) PnLApplied(position model.Position, pnl decimal.Decimal) {
	n.bus.Publish(marketdata.Event{Type: "pnl", Data: PnLEvent{
		UserID:     position.UserID,
		PositionID: position.ID,
		Symbol:     position.Symbol,
		PnL:        pnl.String(),
		Positive:   !pnl.IsNegative(),
	}})
}
