package trade

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lv-margintrade/internal/gateway"
	"lv-margintrade/internal/instrument"
	"lv-margintrade/internal/margin"
	"lv-margintrade/internal/model"
	"lv-margintrade/internal/types"
	"lv-margintrade/internal/wallet"
)

// OnFill reconciles a venue confirmation into position state. It is the only
// place positions leave the pending state or shrink, and the only place
// margin actually moves. Every fill, successful or not, leaves a trade
// record. Duplicate confirmations are dropped by ticket consumption.
func (s *Service) OnFill(ctx context.Context, fill gateway.Fill) {
	unlock := s.locks.lock(fill.PositionID)
	defer unlock()

	fresh, err := s.store.ConsumeTicket(ctx, fill.TicketID)
	if err != nil {
		s.log.Error("fill: ticket check failed",
			zap.String("ticket_id", fill.TicketID),
			zap.String("position_id", fill.PositionID),
			zap.Error(err))
		return
	}
	if !fresh {
		s.log.Warn("fill: duplicate confirmation dropped",
			zap.String("ticket_id", fill.TicketID),
			zap.String("position_id", fill.PositionID))
		return
	}

	position, err := s.store.GetPosition(ctx, fill.PositionID)
	if err != nil {
		s.log.Error("fill: position not found",
			zap.String("position_id", fill.PositionID), zap.Error(err))
		return
	}
	in, err := s.catalog.BySymbol(ctx, position.Symbol)
	if err != nil {
		s.log.Error("fill: instrument not found",
			zap.String("symbol", position.Symbol), zap.Error(err))
		return
	}

	trade := model.Trade{
		UserID:        position.UserID,
		PositionID:    position.ID,
		Symbol:        fill.Symbol,
		AskedRate:     fill.AskedRate,
		Rate:          fill.Rate,
		Amount:        fill.Amount,
		Side:          fill.Side,
		Success:       fill.Success,
		PositionState: position.State,
		Time:          s.now(),
	}
	if fill.Hedged {
		houseID, err := s.store.CreateHouseTrade(ctx, model.HouseTrade{
			Symbol:  fill.Symbol,
			Rate:    fill.Rate,
			Amount:  fill.Amount,
			Side:    fill.Side.Opposite(),
			Success: fill.Success,
			Time:    trade.Time,
		})
		if err != nil {
			s.log.Error("fill: house trade not recorded", zap.Error(err))
		} else {
			trade.HouseTradeID = &houseID
		}
	}
	tradeID, err := s.store.CreateTrade(ctx, trade)
	if err != nil {
		s.log.Error("fill: trade not recorded",
			zap.String("position_id", position.ID), zap.Error(err))
		return
	}
	ref := wallet.Ref{PositionID: position.ID, TradeID: tradeID}

	switch {
	case position.State == types.PositionPending && fill.Side == position.Side:
		s.applyOpeningFill(ctx, &position, in, fill, ref)
	case position.State.AcceptsClose() && fill.Side == position.Side.Opposite():
		s.applyClosingFill(ctx, &position, in, fill, ref)
	default:
		// Nothing to settle, but the record still gets its closing write.
		s.log.Error("fill: confirmation does not match position state",
			zap.String("position_id", position.ID),
			zap.String("state", string(position.State)),
			zap.String("fill_side", string(fill.Side)))
		if err := s.store.FinalizeTrade(ctx, tradeID, position.State); err != nil {
			s.log.Error("fill: trade finalize failed",
				zap.String("trade_id", tradeID), zap.Error(err))
		}
		return
	}

	if err := s.store.UpdatePosition(ctx, position); err != nil {
		s.log.Error("fill: position update failed",
			zap.String("position_id", position.ID), zap.Error(err))
		return
	}
	if err := s.store.FinalizeTrade(ctx, tradeID, position.State); err != nil {
		s.log.Error("fill: trade finalize failed",
			zap.String("trade_id", tradeID), zap.Error(err))
	}
	trade.ID = tradeID
	trade.PositionState = position.State
	s.notifier.PositionUpdated(position, trade)
	s.log.Info("fill applied",
		zap.String("position_id", position.ID),
		zap.String("state", string(position.State)),
		zap.String("rate", fill.Rate.String()),
		zap.Bool("success", fill.Success))
}

// applyOpeningFill settles a pending position: on success the realized rate
// replaces the asked one, the stop is re-anchored to it and the margin the
// realized stop requires is reserved. A reservation overdraft fails the
// position without touching the wallet.
func (s *Service) applyOpeningFill(ctx context.Context, position *model.Position, in instrument.Instrument, fill gateway.Fill, ref wallet.Ref) {
	if !fill.Success {
		position.State = types.PositionOpenFailed
		position.CurrentMargin = decimal.Zero
		return
	}

	position.OpenRate = fill.Rate
	position.StopLoss = margin.StopLossRate(in, position.AskedStopDistance, fill.Rate, position.Side)
	cash, err := margin.RequiredMargin(position.Side, in, position.StopLoss, position.Amount, fill.Rate)
	if err != nil {
		s.log.Error("opening fill: margin calculation failed",
			zap.String("position_id", position.ID), zap.Error(err))
		position.State = types.PositionMarginFailed
		position.CurrentMargin = decimal.Zero
		return
	}
	if err := s.wallet.ReserveMargin(ctx, position.UserID, cash, in.QuoteAsset, ref); err != nil {
		if !errors.Is(err, wallet.ErrOverdraft) {
			s.log.Error("opening fill: margin reservation failed",
				zap.String("position_id", position.ID), zap.Error(err))
		}
		position.State = types.PositionMarginFailed
		position.CurrentMargin = decimal.Zero
		return
	}
	position.State = types.PositionOpened
	position.CurrentMargin = cash
	position.OpenDate = s.now()
}

// applyClosingFill settles a full or partial close. A failed closing fill
// leaves the position exactly as it was; only the trade record remains.
func (s *Service) applyClosingFill(ctx context.Context, position *model.Position, in instrument.Instrument, fill gateway.Fill, ref wallet.Ref) {
	if !fill.Success {
		return
	}
	if fill.Amount.GreaterThan(position.Amount) {
		// Two closes can be in flight at once; whichever settles first
		// shrinks the position, so the other fill arrives covering units no
		// longer held. Only the trade record survives.
		s.log.Error("closing fill: amount exceeds held amount",
			zap.String("position_id", position.ID),
			zap.String("fill_amount", fill.Amount.String()),
			zap.String("held_amount", position.Amount.String()))
		return
	}

	direction := decimal.NewFromInt(1)
	if position.Side == types.SideSell {
		direction = decimal.NewFromInt(-1)
	}
	pnl := fill.Rate.Sub(position.OpenRate).Mul(fill.Amount).Mul(direction)

	remaining := position.Amount.Sub(fill.Amount)
	rate := fill.Rate
	position.CloseRate = &rate
	if remaining.IsPositive() {
		position.State = types.PositionPartiallyClosed
		position.Amount = remaining
		newMargin, err := margin.RequiredMargin(position.Side, in, position.StopLoss, remaining, position.OpenRate)
		if err != nil {
			s.log.Error("closing fill: margin recalculation failed",
				zap.String("position_id", position.ID), zap.Error(err))
			newMargin = position.CurrentMargin
		}
		if position.CurrentMargin.GreaterThan(newMargin) {
			delta := position.CurrentMargin.Sub(newMargin)
			if err := s.wallet.ReleaseMargin(ctx, position.UserID, delta, in.QuoteAsset, ref); err != nil {
				s.log.Error("closing fill: margin release failed",
					zap.String("position_id", position.ID), zap.Error(err))
			} else {
				position.CurrentMargin = newMargin
			}
		}
	} else {
		if fill.CloseReason != "" {
			position.State = fill.CloseReason
		} else {
			position.State = types.PositionClosed
		}
		position.Amount = decimal.Zero
		now := s.now()
		position.CloseDate = &now
		if position.CurrentMargin.IsPositive() {
			if err := s.wallet.ReleaseMargin(ctx, position.UserID, position.CurrentMargin, in.QuoteAsset, ref); err != nil {
				s.log.Error("closing fill: margin release failed",
					zap.String("position_id", position.ID), zap.Error(err))
			} else {
				position.CurrentMargin = decimal.Zero
			}
		}
	}

	s.processPnL(ctx, position, in, pnl, ref)
}
