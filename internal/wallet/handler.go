package wallet

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"lv-margintrade/internal/currency"
	"lv-margintrade/internal/httputil"
)

type Balance struct {
	Currency  string          `json:"currency"`
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
}

type BalanceLister interface {
	ListBalances(ctx context.Context, userID string) ([]Balance, error)
}

type Depositor interface {
	Deposit(ctx context.Context, userID string, amount decimal.Decimal, cur currency.Currency) error
}

type Handler struct {
	lister    BalanceLister
	depositor Depositor
}

func NewHandler(lister BalanceLister, depositor Depositor) *Handler {
	return &Handler{lister: lister, depositor: depositor}
}

func (h *Handler) Balances(w http.ResponseWriter, r *http.Request, userID string) {
	balances, err := h.lister.ListBalances(r.Context(), userID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": balances})
}

type depositRequest struct {
	UserID    string `json:"user_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Precision int32  `json:"precision"`
}

// Deposit credits a user's available balance. Internal-token only; there is
// no public deposit flow in this service.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	if req.UserID == "" || req.Currency == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "user_id and currency required"})
		return
	}
	cur := currency.Currency{Code: req.Currency, Precision: req.Precision}
	if err := h.depositor.Deposit(r.Context(), req.UserID, amount, cur); err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"status": "credited"})
}
