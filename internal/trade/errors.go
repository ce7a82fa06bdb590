package trade

import "errors"

// Business outcomes surfaced to callers as error kinds. The asynchronous
// failure paths (venue rejection, overdraft at confirmation time) are
// absorbed into position state instead, since no caller is left to receive
// them.
var (
	ErrInstrumentNotTradeable = errors.New("instrument is inaccessible for trading")
	ErrWrongAmount            = errors.New("wrong amount provided for operation")
	ErrPositionNotOpen        = errors.New("position does not accept closes")
	ErrOrderNotPending        = errors.New("order is not pending")
	ErrNotFound               = errors.New("not found")
)
