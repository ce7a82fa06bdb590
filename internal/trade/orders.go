package trade

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lv-margintrade/internal/margin"
	"lv-margintrade/internal/model"
	"lv-margintrade/internal/types"
)

type OrderParams struct {
	UserID             string
	Symbol             string
	Amount             decimal.Decimal
	Side               types.Side
	StopLossDistance   decimal.Decimal
	TakeProfitDistance *decimal.Decimal
	ExpectedRate       decimal.Decimal
}

// PlaceOrder records a conditional order and registers it for trigger
// monitoring. Validation mirrors an open, so a trigger is unlikely to find
// the parameters unusable later.
func (s *Service) PlaceOrder(ctx context.Context, p OrderParams) (string, error) {
	if !p.Side.Valid() {
		return "", ErrWrongAmount
	}
	in, err := s.catalog.BySymbol(ctx, p.Symbol)
	if err != nil {
		return "", err
	}
	if !in.IsAccessibleForAction(s.now()) {
		return "", ErrInstrumentNotTradeable
	}
	if !in.IsAmountTradable(p.Amount) {
		return "", ErrWrongAmount
	}
	if !p.ExpectedRate.IsPositive() {
		return "", margin.ErrZeroRate
	}

	order := model.Order{
		UserID:             p.UserID,
		Symbol:             in.Symbol,
		Amount:             p.Amount,
		Side:               p.Side,
		StopLossDistance:   p.StopLossDistance,
		TakeProfitDistance: p.TakeProfitDistance,
		ExpectedRate:       p.ExpectedRate,
		State:              types.OrderPending,
	}
	orderID, err := s.store.CreateOrder(ctx, order)
	if err != nil {
		return "", err
	}
	order.ID = orderID
	if err := s.gw.WatchOrder(ctx, order); err != nil {
		s.log.Error("order watch registration failed",
			zap.String("order_id", orderID), zap.Error(err))
		return "", err
	}
	s.log.Info("order placed",
		zap.String("order_id", orderID),
		zap.String("user_id", p.UserID),
		zap.String("symbol", in.Symbol),
		zap.String("expected_rate", p.ExpectedRate.String()))
	return orderID, nil
}

// CancelOrder withdraws a pending order. A trigger that fires concurrently
// wins: once the order left the pending state the cancel is rejected.
func (s *Service) CancelOrder(ctx context.Context, orderID string) error {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.State != types.OrderPending {
		return ErrOrderNotPending
	}
	order.State = types.OrderCanceled
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		return err
	}
	if err := s.gw.UnwatchOrder(ctx, orderID); err != nil {
		s.log.Warn("order unwatch failed",
			zap.String("order_id", orderID), zap.Error(err))
	}
	return nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (model.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

func (s *Service) ListOrders(ctx context.Context, userID string) ([]model.Order, error) {
	return s.store.ListOrdersByUser(ctx, userID)
}

// OnOrderTriggered converts a triggered order into a position open. The
// pending state is re-checked here because cancels race against triggers.
// When the open fails the order stays pending and the watch is re-armed, so
// a transient condition (market closed, temporary overdraft) gets another
// chance on a later trigger.
func (s *Service) OnOrderTriggered(ctx context.Context, orderID string) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		s.log.Error("order trigger: order not found",
			zap.String("order_id", orderID), zap.Error(err))
		return
	}
	if order.State != types.OrderPending {
		s.log.Warn("order trigger: order no longer pending",
			zap.String("order_id", orderID),
			zap.String("state", string(order.State)))
		return
	}

	positionID, err := s.openPosition(ctx, OpenParams{
		UserID:             order.UserID,
		Symbol:             order.Symbol,
		Rate:               order.ExpectedRate,
		Amount:             order.Amount,
		Side:               order.Side,
		StopLossDistance:   order.StopLossDistance,
		TakeProfitDistance: order.TakeProfitDistance,
	}, &order)
	if err != nil {
		s.log.Warn("order trigger: open failed, order stays pending",
			zap.String("order_id", orderID), zap.Error(err))
		if watchErr := s.gw.WatchOrder(ctx, order); watchErr != nil {
			s.log.Error("order trigger: watch re-registration failed",
				zap.String("order_id", orderID), zap.Error(watchErr))
		}
		return
	}
	s.log.Info("order executed",
		zap.String("order_id", orderID),
		zap.String("position_id", positionID))
}
