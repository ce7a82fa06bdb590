package trade

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"lv-margintrade/internal/marketdata"
	"lv-margintrade/internal/model"
	"lv-margintrade/internal/notify"
	"lv-margintrade/internal/types"
)

// StopWatcher closes positions whose stop-loss or take-profit level is hit.
// It consumes quote events from the bus and scans the open positions on the
// moving symbol. An in-flight set keeps one quote burst from submitting the
// same protective close twice while the first fill is still pending.
type StopWatcher struct {
	svc *Service
	bus *marketdata.Bus
	log *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{} // position ids with a pending protective close
}

func NewStopWatcher(svc *Service, bus *marketdata.Bus, log *zap.Logger) *StopWatcher {
	return &StopWatcher{
		svc:      svc,
		bus:      bus,
		log:      log,
		inFlight: make(map[string]struct{}),
	}
}

// Run blocks until ctx ends.
func (w *StopWatcher) Run(ctx context.Context) {
	events := w.bus.Subscribe()
	defer w.bus.Unsubscribe(events)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			switch evt.Type {
			case "quote":
				if quote, ok := evt.Data.(marketdata.Quote); ok {
					w.Scan(ctx, quote)
				}
			case "position":
				// A settled fill, successful or not, ends the in-flight
				// protective close for that position.
				if pe, ok := evt.Data.(notify.PositionEvent); ok {
					w.release(pe.Position.ID)
				}
			}
		}
	}
}

// Scan checks every open position on the quote's symbol against its
// protective levels. Exported so tests and the immediate gateway path can
// drive it without the bus.
func (w *StopWatcher) Scan(ctx context.Context, quote marketdata.Quote) {
	positions, err := w.svc.store.ListOpenPositionsBySymbol(ctx, quote.Symbol)
	if err != nil {
		w.log.Error("stop watcher: listing positions failed",
			zap.String("symbol", quote.Symbol), zap.Error(err))
		return
	}
	for _, p := range positions {
		hit, isTakeProfit := protectiveHit(p, quote)
		if !hit {
			continue
		}
		if !w.claim(p.ID) {
			continue
		}
		kind := "stop_loss"
		if isTakeProfit {
			kind = "take_profit"
		}
		w.log.Info("protective level hit",
			zap.String("position_id", p.ID),
			zap.String("symbol", p.Symbol),
			zap.String("kind", kind),
			zap.String("bid", quote.Bid.String()),
			zap.String("ask", quote.Ask.String()))
		if err := w.svc.TriggerProtectiveClose(ctx, p.ID, isTakeProfit); err != nil {
			w.log.Error("protective close failed",
				zap.String("position_id", p.ID), zap.Error(err))
			w.release(p.ID)
		}
	}
}

// Release clears the in-flight mark once the closing fill settled. Wired to
// position notifications by the composition root.
func (w *StopWatcher) Release(positionID string) {
	w.release(positionID)
}

func (w *StopWatcher) claim(positionID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inFlight[positionID]; busy {
		return false
	}
	w.inFlight[positionID] = struct{}{}
	return true
}

func (w *StopWatcher) release(positionID string) {
	w.mu.Lock()
	delete(w.inFlight, positionID)
	w.mu.Unlock()
}

// protectiveHit evaluates the closing side of the quote against the
// position's levels: a buy closes at bid, a sell at ask. The stop fires when
// the closing price moves against the position through the stop rate, the
// take-profit when it moves through the target in the position's favor.
func protectiveHit(p model.Position, quote marketdata.Quote) (hit, isTakeProfit bool) {
	if !p.State.AcceptsClose() {
		return false, false
	}
	if p.Side == types.SideBuy {
		if quote.Bid.LessThanOrEqual(p.StopLoss) {
			return true, false
		}
		if p.TakeProfit != nil && quote.Bid.GreaterThanOrEqual(*p.TakeProfit) {
			return true, true
		}
		return false, false
	}
	if quote.Ask.GreaterThanOrEqual(p.StopLoss) {
		return true, false
	}
	if p.TakeProfit != nil && quote.Ask.LessThanOrEqual(*p.TakeProfit) {
		return true, true
	}
	return false, false
}
