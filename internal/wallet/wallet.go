// Package wallet defines the collateral contract the trade core consumes.
// The core never touches balances directly: margin moves between the
// available and reserved sides of a user's wallet through this interface,
// and realized PnL is applied to the available side.
package wallet

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"lv-margintrade/internal/currency"
)

// ErrOverdraft means the free (unreserved) balance cannot cover a margin
// reservation. It is an expected business outcome, not a fault.
var ErrOverdraft = errors.New("insufficient free balance")

// Ref ties a wallet movement back to the trading objects that caused it.
// TradeID is empty for pre-trade movements that have no fill yet.
type Ref struct {
	PositionID string
	TradeID    string
}

type Wallet interface {
	// GetUsefulBalance returns the free (available, unreserved) balance.
	GetUsefulBalance(ctx context.Context, userID string, cur currency.Currency) (decimal.Decimal, error)
	// ReserveMargin moves amount from available to reserved, or returns
	// ErrOverdraft leaving balances untouched.
	ReserveMargin(ctx context.Context, userID string, amount decimal.Decimal, cur currency.Currency, ref Ref) error
	// ReleaseMargin moves amount from reserved back to available.
	ReleaseMargin(ctx context.Context, userID string, amount decimal.Decimal, cur currency.Currency, ref Ref) error
	// ApplyPnL credits (or debits, for negative amounts) the available balance.
	ApplyPnL(ctx context.Context, userID string, amount decimal.Decimal, cur currency.Currency, ref Ref) error
}
