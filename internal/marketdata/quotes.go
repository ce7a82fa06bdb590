package marketdata

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// Quote is the live two-sided price for a symbol. Bid is the rate a client
// sells at, Ask the rate a client buys at.
type Quote struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Low    decimal.Decimal `json:"low"`
	High   decimal.Decimal `json:"high"`
}

var ErrNoQuote = errors.New("no live quote for symbol")

// Quotes holds the latest quote per symbol and republishes updates on the
// bus so gateways and websocket clients observe the same stream.
type Quotes struct {
	mu   sync.RWMutex
	data map[string]Quote
	bus  *Bus
}

func NewQuotes(bus *Bus) *Quotes {
	return &Quotes{data: make(map[string]Quote), bus: bus}
}

func (q *Quotes) Set(quote Quote) {
	if quote.Symbol == "" || !quote.Bid.IsPositive() || !quote.Ask.IsPositive() {
		return
	}
	q.mu.Lock()
	prev, ok := q.data[quote.Symbol]
	if ok {
		if quote.Low.IsZero() || (prev.Low.IsPositive() && prev.Low.LessThan(quote.Low)) {
			quote.Low = prev.Low
		}
		if quote.High.LessThan(prev.High) {
			quote.High = prev.High
		}
	}
	if quote.Low.IsZero() {
		quote.Low = quote.Bid
	}
	if quote.High.IsZero() {
		quote.High = quote.Ask
	}
	q.data[quote.Symbol] = quote
	q.mu.Unlock()
	if q.bus != nil {
		q.bus.Publish(Event{Type: "quote", Data: quote})
	}
}

func (q *Quotes) Get(symbol string) (Quote, error) {
	q.mu.RLock()
	quote, ok := q.data[symbol]
	q.mu.RUnlock()
	if !ok {
		return Quote{}, ErrNoQuote
	}
	return quote, nil
}
