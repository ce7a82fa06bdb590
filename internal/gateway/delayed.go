package gateway

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"lv-margintrade/internal/marketdata"
	"lv-margintrade/internal/model"
)

// Delayed confirms trades asynchronously after a configurable delay and can
// inject simulated venue rejections. Fills are dispatched by a single worker
// in submission order, so confirmations for the same position are never
// reordered. Order watches are re-evaluated on every quote event from the
// bus.
type Delayed struct {
	quotes   *marketdata.Quotes
	bus      *marketdata.Bus
	log      *zap.Logger
	delay    time.Duration
	failRate float64 // 0..1 probability a fill is rejected
	hedge    bool

	handler FillHandler
	trigger OrderTrigger

	mu      sync.Mutex
	watches map[string]model.Order
	rng     *rand.Rand

	queue  chan TradeRequest
	done   chan struct{}
	closed sync.Once
}

type DelayedConfig struct {
	Delay       time.Duration
	FailureRate float64
	Hedge       bool
	Seed        int64
}

func NewDelayed(quotes *marketdata.Quotes, bus *marketdata.Bus, cfg DelayedConfig, log *zap.Logger) *Delayed {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Delayed{
		quotes:   quotes,
		bus:      bus,
		log:      log,
		delay:    cfg.Delay,
		failRate: cfg.FailureRate,
		hedge:    cfg.Hedge,
		watches:  make(map[string]model.Order),
		rng:      rand.New(rand.NewSource(seed)),
		queue:    make(chan TradeRequest, 256),
		done:     make(chan struct{}),
	}
}

func (g *Delayed) Bind(handler FillHandler, trigger OrderTrigger) {
	g.handler = handler
	g.trigger = trigger
}

// Start runs the fill dispatcher and the quote watcher until ctx ends or
// Close is called.
func (g *Delayed) Start(ctx context.Context) {
	go g.dispatch(ctx)
	if g.bus != nil {
		go g.watchQuotes(ctx)
	}
}

func (g *Delayed) Close() {
	g.closed.Do(func() { close(g.done) })
}

func (g *Delayed) SubmitTrade(_ context.Context, req TradeRequest) error {
	if g.handler == nil {
		return errors.New("gateway has no fill handler bound")
	}
	select {
	case g.queue <- req:
		return nil
	case <-g.done:
		return errors.New("gateway is shut down")
	}
}

func (g *Delayed) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-g.done:
			return
		case req := <-g.queue:
			if g.delay > 0 {
				select {
				case <-time.After(g.delay):
				case <-ctx.Done():
					return
				case <-g.done:
					return
				}
			}
			g.mu.Lock()
			success := g.rng.Float64() >= g.failRate
			g.mu.Unlock()
			g.handler.OnFill(ctx, Fill{
				TicketID:    req.TicketID,
				PositionID:  req.PositionID,
				Symbol:      req.Symbol,
				Success:     success,
				Amount:      req.Amount,
				Side:        req.Side,
				AskedRate:   req.Rate,
				Rate:        req.Rate,
				Hedged:      g.hedge,
				CloseReason: req.CloseReason,
			})
		}
	}
}

func (g *Delayed) WatchOrder(_ context.Context, order model.Order) error {
	g.mu.Lock()
	g.watches[order.ID] = order
	g.mu.Unlock()
	return nil
}

func (g *Delayed) UnwatchOrder(_ context.Context, orderID string) error {
	g.mu.Lock()
	delete(g.watches, orderID)
	g.mu.Unlock()
	return nil
}

func (g *Delayed) CurrentQuote(_ context.Context, symbol string) (marketdata.Quote, error) {
	return g.quotes.Get(symbol)
}

func (g *Delayed) watchQuotes(ctx context.Context) {
	events := g.bus.Subscribe()
	defer g.bus.Unsubscribe(events)
	for {
		select {
		case <-ctx.Done():
			return
		case <-g.done:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			quote, isQuote := evt.Data.(marketdata.Quote)
			if !isQuote || evt.Type != "quote" {
				continue
			}
			g.fireTriggers(ctx, quote)
		}
	}
}

func (g *Delayed) fireTriggers(ctx context.Context, quote marketdata.Quote) {
	g.mu.Lock()
	var fired []model.Order
	for id, order := range g.watches {
		if order.Symbol != quote.Symbol {
			continue
		}
		if triggered(order, quote) {
			fired = append(fired, order)
			delete(g.watches, id)
		}
	}
	g.mu.Unlock()
	for _, order := range fired {
		g.log.Info("order trigger fired",
			zap.String("order_id", order.ID),
			zap.String("symbol", order.Symbol),
			zap.String("expected_rate", order.ExpectedRate.String()))
		if g.trigger != nil {
			g.trigger.OnOrderTriggered(ctx, order.ID)
		}
	}
}
