package trade

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lv-margintrade/internal/currency"
	"lv-margintrade/internal/gateway"
	"lv-margintrade/internal/instrument"
	"lv-margintrade/internal/margin"
	"lv-margintrade/internal/marketdata"
	"lv-margintrade/internal/model"
	"lv-margintrade/internal/notify"
	"lv-margintrade/internal/types"
	"lv-margintrade/internal/wallet"
)

// ProfileResolver supplies the base currency a user's profitability rollups
// are expressed in.
type ProfileResolver interface {
	BaseCurrency(ctx context.Context, userID string) (currency.Currency, error)
}

// StaticProfiles resolves every user to the same base currency.
type StaticProfiles struct {
	Currency currency.Currency
}

func (p StaticProfiles) BaseCurrency(context.Context, string) (currency.Currency, error) {
	return p.Currency, nil
}

// Service is the position/order lifecycle engine. All position state
// mutation funnels through it: synchronous open/close/stop-loss requests on
// one side, asynchronous fill confirmations from the execution gateway on
// the other.
type Service struct {
	store     Store
	catalog   instrument.Catalog
	wallet    wallet.Wallet
	gw        gateway.ExecutionGateway
	converter currency.Converter
	profiles  ProfileResolver
	notifier  notify.Notifier
	log       *zap.Logger

	locks positionLocks
	now   func() time.Time
}

func NewService(
	store Store,
	catalog instrument.Catalog,
	w wallet.Wallet,
	gw gateway.ExecutionGateway,
	converter currency.Converter,
	profiles ProfileResolver,
	notifier notify.Notifier,
	log *zap.Logger,
) *Service {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Service{
		store:     store,
		catalog:   catalog,
		wallet:    w,
		gw:        gw,
		converter: converter,
		profiles:  profiles,
		notifier:  notifier,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type OpenParams struct {
	UserID             string
	Symbol             string
	Rate               decimal.Decimal
	Amount             decimal.Decimal
	Side               types.Side
	StopLossDistance   decimal.Decimal
	TakeProfitDistance *decimal.Decimal
}

// OpenPosition validates the request, creates the position in the pending
// state and submits the opening trade. It returns as soon as the trade is
// submitted: the fill arrives asynchronously through OnFill, so the returned
// position may still fail to open.
func (s *Service) OpenPosition(ctx context.Context, p OpenParams) (string, error) {
	return s.openPosition(ctx, p, nil)
}

func (s *Service) openPosition(ctx context.Context, p OpenParams, fromOrder *model.Order) (string, error) {
	if !p.Side.Valid() {
		return "", fmt.Errorf("%w: invalid side %q", ErrWrongAmount, p.Side)
	}
	in, err := s.catalog.BySymbol(ctx, p.Symbol)
	if err != nil {
		return "", err
	}
	if !in.IsPositionOpenable(p.Side, s.now()) {
		return "", ErrInstrumentNotTradeable
	}
	if !in.IsAmountTradable(p.Amount) {
		return "", ErrWrongAmount
	}
	if !p.Rate.IsPositive() {
		return "", margin.ErrZeroRate
	}

	stopLossRate := margin.StopLossRate(in, p.StopLossDistance, p.Rate, p.Side)
	var takeProfitRate *decimal.Decimal
	if p.TakeProfitDistance != nil {
		tp := margin.DistanceToRate(p.Side, *p.TakeProfitDistance, p.Rate, in, true)
		takeProfitRate = &tp
	}
	cash, err := margin.RequiredMargin(p.Side, in, stopLossRate, p.Amount, p.Rate)
	if err != nil {
		return "", err
	}

	// Advisory pre-trade check; the authoritative reservation happens when
	// the opening fill confirms.
	balance, err := s.wallet.GetUsefulBalance(ctx, p.UserID, in.QuoteAsset)
	if err != nil {
		return "", err
	}
	if balance.LessThan(cash) {
		return "", wallet.ErrOverdraft
	}

	position := model.Position{
		UserID:            p.UserID,
		Symbol:            in.Symbol,
		Side:              p.Side,
		OpeningAmount:     p.Amount,
		Amount:            p.Amount,
		AskedRate:         p.Rate,
		OpenRate:          p.Rate, // provisional until the fill confirms
		StopLoss:          stopLossRate,
		AskedStopDistance: p.StopLossDistance,
		TakeProfit:        takeProfitRate,
		State:             types.PositionPending,
		CurrentMargin:     cash,
	}
	positionID, err := s.store.CreatePosition(ctx, position)
	if err != nil {
		return "", err
	}
	position.ID = positionID

	if err := s.submitTrade(ctx, positionID, in.Symbol, p.Rate, p.Amount, p.Side, ""); err != nil {
		// No fill will ever arrive for this position; fail it now.
		position.State = types.PositionOpenFailed
		if uerr := s.store.UpdatePosition(ctx, position); uerr != nil {
			s.log.Error("failed to mark unsubmitted position",
				zap.String("position_id", positionID), zap.Error(uerr))
		}
		return "", err
	}

	if fromOrder != nil {
		fromOrder.PositionID = &positionID
		fromOrder.State = types.OrderExecuted
		if err := s.store.UpdateOrder(ctx, *fromOrder); err != nil {
			s.log.Error("failed to link order to position",
				zap.String("order_id", fromOrder.ID),
				zap.String("position_id", positionID),
				zap.Error(err))
		}
	}
	s.log.Info("position pending",
		zap.String("position_id", positionID),
		zap.String("user_id", p.UserID),
		zap.String("symbol", in.Symbol),
		zap.String("side", string(p.Side)),
		zap.String("amount", p.Amount.String()))
	return positionID, nil
}

// ClosePosition submits an opposite-side trade for amount units. When rate is
// nil the current quote is used: a buy closes at bid, a sell at ask. The
// position does not change state until the closing fill confirms.
func (s *Service) ClosePosition(ctx context.Context, positionID string, amount decimal.Decimal, rate *decimal.Decimal, closeReason types.PositionState) error {
	position, err := s.store.GetPosition(ctx, positionID)
	if err != nil {
		return err
	}
	if !position.State.AcceptsClose() {
		return ErrPositionNotOpen
	}
	if amount.GreaterThan(position.Amount) || !amount.IsPositive() {
		return ErrWrongAmount
	}
	in, err := s.catalog.BySymbol(ctx, position.Symbol)
	if err != nil {
		return err
	}

	var closeRate decimal.Decimal
	if rate != nil {
		closeRate = *rate
	} else {
		quote, err := s.quantizedQuote(ctx, in)
		if err != nil {
			return err
		}
		if position.Side == types.SideBuy {
			closeRate = quote.Bid
		} else {
			closeRate = quote.Ask
		}
	}
	if !closeRate.IsPositive() {
		return margin.ErrZeroRate
	}
	return s.submitTrade(ctx, position.ID, position.Symbol, closeRate, amount, position.Side.Opposite(), closeReason)
}

// CloseAllPositions closes the full remaining amount of every open position
// the user holds. Failures are collected; one position failing to close does
// not stop the rest.
func (s *Service) CloseAllPositions(ctx context.Context, userID string) error {
	positions, err := s.store.ListOpenPositionsByUser(ctx, userID)
	if err != nil {
		return err
	}
	var firstErr error
	for _, p := range positions {
		if err := s.ClosePosition(ctx, p.ID, p.Amount, nil, ""); err != nil {
			s.log.Warn("close-all: position close failed",
				zap.String("position_id", p.ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// TriggerProtectiveClose closes the full remaining amount with the stop-loss
// or take-profit terminal reason. Invoked by the quote watcher.
func (s *Service) TriggerProtectiveClose(ctx context.Context, positionID string, isTakeProfit bool) error {
	position, err := s.store.GetPosition(ctx, positionID)
	if err != nil {
		return err
	}
	reason := types.PositionClosedStopLoss
	if isTakeProfit {
		reason = types.PositionClosedTakeProfit
	}
	return s.ClosePosition(ctx, position.ID, position.Amount, nil, reason)
}

// ChangeStopLoss moves the stop and adjusts the reservation to the margin the
// new stop requires. A reservation increase that overdrafts aborts the whole
// change; the position keeps its previous stop.
func (s *Service) ChangeStopLoss(ctx context.Context, positionID string, newStopLossRate decimal.Decimal) error {
	unlock := s.locks.lock(positionID)
	defer unlock()

	position, err := s.store.GetPosition(ctx, positionID)
	if err != nil {
		return err
	}
	if !position.State.AcceptsClose() {
		return ErrPositionNotOpen
	}
	in, err := s.catalog.BySymbol(ctx, position.Symbol)
	if err != nil {
		return err
	}
	newMargin, err := margin.RequiredMargin(position.Side, in, newStopLossRate, position.Amount, position.OpenRate)
	if err != nil {
		return err
	}

	ref := wallet.Ref{PositionID: position.ID}
	switch {
	case newMargin.GreaterThan(position.CurrentMargin):
		delta := newMargin.Sub(position.CurrentMargin)
		if err := s.wallet.ReserveMargin(ctx, position.UserID, delta, in.QuoteAsset, ref); err != nil {
			return err
		}
		position.StopLoss = newStopLossRate
		position.CurrentMargin = newMargin
		if err := s.store.UpdatePosition(ctx, position); err != nil {
			// Undo the reservation so wallet and position stay consistent.
			if relErr := s.wallet.ReleaseMargin(ctx, position.UserID, delta, in.QuoteAsset, ref); relErr != nil {
				s.log.Error("failed to compensate stop-loss reservation",
					zap.String("position_id", position.ID), zap.Error(relErr))
			}
			return err
		}
	case newMargin.LessThan(position.CurrentMargin):
		delta := position.CurrentMargin.Sub(newMargin)
		position.StopLoss = newStopLossRate
		position.CurrentMargin = newMargin
		if err := s.store.UpdatePosition(ctx, position); err != nil {
			return err
		}
		if err := s.wallet.ReleaseMargin(ctx, position.UserID, delta, in.QuoteAsset, ref); err != nil {
			s.log.Error("failed to release margin after stop-loss change",
				zap.String("position_id", position.ID), zap.Error(err))
			return err
		}
	default:
		position.StopLoss = newStopLossRate
		if err := s.store.UpdatePosition(ctx, position); err != nil {
			return err
		}
	}
	return nil
}

// RequiredMargin is the side-effect-free pre-trade estimate, with the
// minimum-distance floor applied the same way an open would.
func (s *Service) RequiredMargin(ctx context.Context, symbol string, side types.Side, rate, amount, stopLossDistance decimal.Decimal) (decimal.Decimal, error) {
	in, err := s.catalog.BySymbol(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if !rate.IsPositive() {
		return decimal.Zero, margin.ErrZeroRate
	}
	stopLossRate := margin.StopLossRate(in, stopLossDistance, rate, side)
	return margin.RequiredMargin(side, in, stopLossRate, amount, rate)
}

// GetRates returns the live quote quantized down to the instrument's display
// tick. A zero side is rejected.
func (s *Service) GetRates(ctx context.Context, symbol string) (marketdata.Quote, error) {
	in, err := s.catalog.BySymbol(ctx, symbol)
	if err != nil {
		return marketdata.Quote{}, err
	}
	return s.quantizedQuote(ctx, in)
}

func (s *Service) quantizedQuote(ctx context.Context, in instrument.Instrument) (marketdata.Quote, error) {
	quote, err := s.gw.CurrentQuote(ctx, in.Symbol)
	if err != nil {
		return marketdata.Quote{}, err
	}
	if !quote.Bid.IsPositive() || !quote.Ask.IsPositive() {
		return marketdata.Quote{}, margin.ErrZeroRate
	}
	quote.Bid = in.QuantizePriceDown(quote.Bid)
	quote.Ask = in.QuantizePriceDown(quote.Ask)
	quote.Low = in.QuantizePriceDown(quote.Low)
	quote.High = in.QuantizePriceDown(quote.High)
	return quote, nil
}

func (s *Service) submitTrade(ctx context.Context, positionID, symbol string, rate, amount decimal.Decimal, side types.Side, closeReason types.PositionState) error {
	return s.gw.SubmitTrade(ctx, gateway.TradeRequest{
		TicketID:    uuid.NewString(),
		PositionID:  positionID,
		Symbol:      symbol,
		Rate:        rate,
		Amount:      amount,
		Side:        side,
		CloseReason: closeReason,
	})
}

// Listing accessors consumed by the HTTP layer.

func (s *Service) ListPositions(ctx context.Context, userID string) ([]model.Position, error) {
	return s.store.ListPositionsByUser(ctx, userID)
}

func (s *Service) ListOpenPositions(ctx context.Context, userID string) ([]model.Position, error) {
	return s.store.ListOpenPositionsByUser(ctx, userID)
}

func (s *Service) GetPosition(ctx context.Context, id string) (model.Position, error) {
	return s.store.GetPosition(ctx, id)
}

func (s *Service) ListTrades(ctx context.Context, positionID string) ([]model.Trade, error) {
	return s.store.ListTradesByPosition(ctx, positionID)
}

func (s *Service) ListProfitability(ctx context.Context, userID string) ([]model.Profitability, error) {
	return s.store.ListProfitability(ctx, userID)
}
