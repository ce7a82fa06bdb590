package gateway

import (
	"context"
	"errors"
	"sync"

	"lv-margintrade/internal/marketdata"
	"lv-margintrade/internal/model"
)

// Immediate confirms every trade synchronously at the requested rate and
// fires order triggers the moment the condition already holds. It makes the
// whole open/confirm handshake deterministic, which is what the tests and
// local development want.
type Immediate struct {
	quotes  *marketdata.Quotes
	handler FillHandler
	trigger OrderTrigger

	// Hedge marks fills as internally offset by the venue's own book.
	Hedge bool

	mu      sync.Mutex
	watches map[string]model.Order
}

func NewImmediate(quotes *marketdata.Quotes) *Immediate {
	return &Immediate{quotes: quotes, watches: make(map[string]model.Order)}
}

// Bind wires the confirmation consumers. Must be called before any submit.
func (g *Immediate) Bind(handler FillHandler, trigger OrderTrigger) {
	g.handler = handler
	g.trigger = trigger
}

func (g *Immediate) SubmitTrade(ctx context.Context, req TradeRequest) error {
	if g.handler == nil {
		return errors.New("gateway has no fill handler bound")
	}
	g.handler.OnFill(ctx, Fill{
		TicketID:    req.TicketID,
		PositionID:  req.PositionID,
		Symbol:      req.Symbol,
		Success:     true,
		Amount:      req.Amount,
		Side:        req.Side,
		AskedRate:   req.Rate,
		Rate:        req.Rate,
		Hedged:      g.Hedge,
		CloseReason: req.CloseReason,
	})
	return nil
}

// WatchOrder registers the order. Conditions are evaluated on Tick, never at
// registration time, so a failed trigger can safely re-arm its order.
func (g *Immediate) WatchOrder(_ context.Context, order model.Order) error {
	g.mu.Lock()
	g.watches[order.ID] = order
	g.mu.Unlock()
	return nil
}

func (g *Immediate) UnwatchOrder(_ context.Context, orderID string) error {
	g.mu.Lock()
	delete(g.watches, orderID)
	g.mu.Unlock()
	return nil
}

func (g *Immediate) CurrentQuote(_ context.Context, symbol string) (marketdata.Quote, error) {
	return g.quotes.Get(symbol)
}

// Tick re-evaluates pending watches against the latest quotes. Tests call it
// after moving the price.
func (g *Immediate) Tick(ctx context.Context) {
	g.mu.Lock()
	var fired []model.Order
	for id, order := range g.watches {
		quote, err := g.quotes.Get(order.Symbol)
		if err != nil {
			continue
		}
		if triggered(order, quote) {
			fired = append(fired, order)
			delete(g.watches, id)
		}
	}
	g.mu.Unlock()
	for _, order := range fired {
		if g.trigger != nil {
			g.trigger.OnOrderTriggered(ctx, order.ID)
		}
	}
}
