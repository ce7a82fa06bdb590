package types

type Side string

type PositionState string

type OrderState string

type AccountKind string

type LedgerEntryType string

type AssetClass string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the side a closing trade is issued on.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

const (
	PositionPending          PositionState = "pending"
	PositionOpened           PositionState = "opened"
	PositionOpenFailed       PositionState = "open_failed"
	PositionMarginFailed     PositionState = "margin_failed"
	PositionPartiallyClosed  PositionState = "partially_closed"
	PositionClosed           PositionState = "closed"
	PositionClosedStopLoss   PositionState = "closed_stop_loss"
	PositionClosedTakeProfit PositionState = "closed_take_profit"
)

// IsClosed reports whether the state is one of the terminal closed variants.
func (s PositionState) IsClosed() bool {
	return s == PositionClosed || s == PositionClosedStopLoss || s == PositionClosedTakeProfit
}

// IsTerminal reports whether no further fills are accepted in this state.
func (s PositionState) IsTerminal() bool {
	return s.IsClosed() || s == PositionOpenFailed || s == PositionMarginFailed
}

// AcceptsClose reports whether the position can still be closed, fully or partially.
func (s PositionState) AcceptsClose() bool {
	return s == PositionOpened || s == PositionPartiallyClosed
}

const (
	OrderPending  OrderState = "pending"
	OrderCanceled OrderState = "canceled"
	OrderExecuted OrderState = "executed"
)

const (
	AccountKindAvailable AccountKind = "available"
	AccountKindReserved  AccountKind = "reserved"
)

const (
	LedgerEntryTypeDeposit  LedgerEntryType = "deposit"
	LedgerEntryTypeWithdraw LedgerEntryType = "withdraw"
	LedgerEntryTypeReserve  LedgerEntryType = "reserve"
	LedgerEntryTypeRelease  LedgerEntryType = "release"
	LedgerEntryTypePnL      LedgerEntryType = "pnl"
)

const (
	AssetClassForex       AssetClass = "forex"
	AssetClassCommodities AssetClass = "commodities"
	AssetClassIndices     AssetClass = "indices"
	AssetClassCrypto      AssetClass = "crypto"
)
