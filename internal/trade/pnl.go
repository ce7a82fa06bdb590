package trade

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lv-margintrade/internal/instrument"
	"lv-margintrade/internal/model"
	"lv-margintrade/internal/wallet"
)

// processPnL settles realized PnL from a closing fill: the amount is
// quantized down to the quote asset's precision, credited to the wallet,
// accumulated on the position, and, once the position is fully closed,
// rolled into the user's profitability stats in their base currency.
func (s *Service) processPnL(ctx context.Context, position *model.Position, in instrument.Instrument, pnl decimal.Decimal, ref wallet.Ref) {
	pnl = in.QuoteAsset.QuantizeDown(pnl)
	if !pnl.IsZero() {
		if err := s.wallet.ApplyPnL(ctx, position.UserID, pnl, in.QuoteAsset, ref); err != nil {
			s.log.Error("pnl not applied to wallet",
				zap.String("position_id", position.ID),
				zap.String("pnl", pnl.String()),
				zap.Error(err))
			return
		}
	}
	position.PnL = position.PnL.Add(pnl)
	s.notifier.PnLApplied(*position, pnl)

	if position.State.IsClosed() {
		s.rollupProfitability(ctx, *position, in)
	}
}

// rollupProfitability folds a closed position's total PnL into the three
// rollup rows: per instrument, per asset class, and overall. Rollup failures
// are logged; the close itself already settled.
func (s *Service) rollupProfitability(ctx context.Context, position model.Position, in instrument.Instrument) {
	base, err := s.profiles.BaseCurrency(ctx, position.UserID)
	if err != nil {
		s.log.Error("profitability: base currency unresolved",
			zap.String("user_id", position.UserID), zap.Error(err))
		return
	}
	pnl, err := s.converter.Convert(in.QuoteAsset, base, position.PnL)
	if err != nil {
		s.log.Error("profitability: conversion failed",
			zap.String("from", in.QuoteAsset.Code),
			zap.String("to", base.Code),
			zap.Error(err))
		return
	}
	if err := s.store.AddProfitability(ctx, position.UserID, position.Symbol, in.AssetClass, pnl); err != nil {
		s.log.Error("profitability: instrument rollup failed",
			zap.String("user_id", position.UserID), zap.Error(err))
	}
	if err := s.store.AddProfitability(ctx, position.UserID, "", in.AssetClass, pnl); err != nil {
		s.log.Error("profitability: asset class rollup failed",
			zap.String("user_id", position.UserID), zap.Error(err))
	}
	if err := s.store.AddProfitability(ctx, position.UserID, "", "", pnl); err != nil {
		s.log.Error("profitability: overall rollup failed",
			zap.String("user_id", position.UserID), zap.Error(err))
	}
}
