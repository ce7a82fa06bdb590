package trade

import (
	"context"

	"github.com/shopspring/decimal"

	"lv-margintrade/internal/model"
	"lv-margintrade/internal/types"
)

// Store persists positions, conditional orders, the immutable trade audit
// trail, consumed fill tickets and the profitability rollups. Postgres backs
// production; the in-memory implementation backs tests and the immediate
// confirmer setup.
type Store interface {
	CreatePosition(ctx context.Context, p model.Position) (string, error)
	GetPosition(ctx context.Context, id string) (model.Position, error)
	UpdatePosition(ctx context.Context, p model.Position) error
	ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error)
	ListOpenPositionsByUser(ctx context.Context, userID string) ([]model.Position, error)
	ListOpenPositionsBySymbol(ctx context.Context, symbol string) ([]model.Position, error)

	CreateOrder(ctx context.Context, o model.Order) (string, error)
	GetOrder(ctx context.Context, id string) (model.Order, error)
	UpdateOrder(ctx context.Context, o model.Order) error
	ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error)

	CreateTrade(ctx context.Context, t model.Trade) (string, error)
	FinalizeTrade(ctx context.Context, tradeID string, state types.PositionState) error
	CreateHouseTrade(ctx context.Context, t model.HouseTrade) (string, error)
	ListTradesByPosition(ctx context.Context, positionID string) ([]model.Trade, error)

	// ConsumeTicket marks a fill ticket as processed. It returns false when
	// the ticket was consumed before; the caller must then drop the fill.
	ConsumeTicket(ctx context.Context, ticketID string) (bool, error)

	// AddProfitability increments one rollup row (pnl sum and closed-position
	// counter) identified by the zero-or-set symbol/assetClass pair.
	AddProfitability(ctx context.Context, userID, symbol string, assetClass types.AssetClass, pnl decimal.Decimal) error
	ListProfitability(ctx context.Context, userID string) ([]model.Profitability, error)
}
