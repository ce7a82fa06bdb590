package trade

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"lv-margintrade/internal/httputil"
	"lv-margintrade/internal/instrument"
	"lv-margintrade/internal/margin"
	"lv-margintrade/internal/model"
	"lv-margintrade/internal/types"
	"lv-margintrade/internal/wallet"
)

type Handler struct {
	svc     *Service
	catalog instrument.Catalog
}

func NewHandler(svc *Service, catalog instrument.Catalog) *Handler {
	return &Handler{svc: svc, catalog: catalog}
}

func writeBusinessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInstrumentNotTradeable), errors.Is(err, wallet.ErrOverdraft):
		httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrWrongAmount), errors.Is(err, ErrPositionNotOpen),
		errors.Is(err, ErrOrderNotPending), errors.Is(err, margin.ErrZeroRate):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrNotFound), errors.Is(err, instrument.ErrNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
	}
}

type openPositionRequest struct {
	Symbol             string  `json:"symbol"`
	Rate               string  `json:"rate"`
	Amount             string  `json:"amount"`
	Side               string  `json:"side"`
	StopLossDistance   string  `json:"stop_loss_distance"`
	TakeProfitDistance *string `json:"take_profit_distance,omitempty"`
}

func (h *Handler) OpenPosition(w http.ResponseWriter, r *http.Request, userID string) {
	var req openPositionRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid rate"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	stopDistance, err := decimal.NewFromString(req.StopLossDistance)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid stop_loss_distance"})
		return
	}
	var takeProfitDistance *decimal.Decimal
	if req.TakeProfitDistance != nil {
		tp, err := decimal.NewFromString(*req.TakeProfitDistance)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid take_profit_distance"})
			return
		}
		takeProfitDistance = &tp
	}

	positionID, err := h.svc.OpenPosition(r.Context(), OpenParams{
		UserID:             userID,
		Symbol:             req.Symbol,
		Rate:               rate,
		Amount:             amount,
		Side:               types.Side(req.Side),
		StopLossDistance:   stopDistance,
		TakeProfitDistance: takeProfitDistance,
	})
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"position_id": positionID})
}

type closePositionRequest struct {
	Amount string  `json:"amount"`
	Rate   *string `json:"rate,omitempty"`
}

func (h *Handler) ClosePosition(w http.ResponseWriter, r *http.Request, userID string) {
	positionID := chi.URLParam(r, "id")
	position, err := h.svc.GetPosition(r.Context(), positionID)
	if err != nil || position.UserID != userID {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "position not found"})
		return
	}
	// Empty body means a full close at the market rate.
	var req closePositionRequest
	if err := httputil.ReadJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount := position.Amount
	if req.Amount != "" {
		amount, err = decimal.NewFromString(req.Amount)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
			return
		}
	}
	var rate *decimal.Decimal
	if req.Rate != nil {
		parsed, err := decimal.NewFromString(*req.Rate)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid rate"})
			return
		}
		rate = &parsed
	}
	if err := h.svc.ClosePosition(r.Context(), positionID, amount, rate, ""); err != nil {
		writeBusinessError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"position_id": positionID})
}

func (h *Handler) CloseAllPositions(w http.ResponseWriter, r *http.Request, userID string) {
	if err := h.svc.CloseAllPositions(r.Context(), userID); err != nil {
		writeBusinessError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "closing"})
}

type changeStopLossRequest struct {
	StopLossRate string `json:"stop_loss_rate"`
}

func (h *Handler) ChangeStopLoss(w http.ResponseWriter, r *http.Request, userID string) {
	positionID := chi.URLParam(r, "id")
	position, err := h.svc.GetPosition(r.Context(), positionID)
	if err != nil || position.UserID != userID {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "position not found"})
		return
	}
	var req changeStopLossRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	stopLossRate, err := decimal.NewFromString(req.StopLossRate)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid stop_loss_rate"})
		return
	}
	if err := h.svc.ChangeStopLoss(r.Context(), positionID, stopLossRate); err != nil {
		writeBusinessError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"position_id": positionID})
}

type requiredMarginRequest struct {
	Symbol           string `json:"symbol"`
	Side             string `json:"side"`
	Rate             string `json:"rate"`
	Amount           string `json:"amount"`
	StopLossDistance string `json:"stop_loss_distance"`
}

func (h *Handler) RequiredMargin(w http.ResponseWriter, r *http.Request, _ string) {
	var req requiredMarginRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	rate, err1 := decimal.NewFromString(req.Rate)
	amount, err2 := decimal.NewFromString(req.Amount)
	stopDistance, err3 := decimal.NewFromString(req.StopLossDistance)
	if err1 != nil || err2 != nil || err3 != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid decimal field"})
		return
	}
	cash, err := h.svc.RequiredMargin(r.Context(), req.Symbol, types.Side(req.Side), rate, amount, stopDistance)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"required_margin": cash.String()})
}

type positionView struct {
	model.Position
	UnrealizedPnL *string `json:"unrealized_pnl,omitempty"`
}

func (h *Handler) ListPositions(w http.ResponseWriter, r *http.Request, userID string) {
	positions, err := h.svc.ListPositions(r.Context(), userID)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		view := positionView{Position: p}
		if p.State.AcceptsClose() {
			if quote, err := h.svc.gw.CurrentQuote(r.Context(), p.Symbol); err == nil {
				upl := p.UnrealizedPnL(quote.Bid, quote.Ask).String()
				view.UnrealizedPnL = &upl
			}
		}
		views = append(views, view)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": views})
}

type placeOrderRequest struct {
	Symbol             string  `json:"symbol"`
	Amount             string  `json:"amount"`
	Side               string  `json:"side"`
	StopLossDistance   string  `json:"stop_loss_distance"`
	TakeProfitDistance *string `json:"take_profit_distance,omitempty"`
	ExpectedRate       string  `json:"expected_rate"`
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request, userID string) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err1 := decimal.NewFromString(req.Amount)
	stopDistance, err2 := decimal.NewFromString(req.StopLossDistance)
	expectedRate, err3 := decimal.NewFromString(req.ExpectedRate)
	if err1 != nil || err2 != nil || err3 != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid decimal field"})
		return
	}
	var takeProfitDistance *decimal.Decimal
	if req.TakeProfitDistance != nil {
		tp, err := decimal.NewFromString(*req.TakeProfitDistance)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid take_profit_distance"})
			return
		}
		takeProfitDistance = &tp
	}
	orderID, err := h.svc.PlaceOrder(r.Context(), OrderParams{
		UserID:             userID,
		Symbol:             req.Symbol,
		Amount:             amount,
		Side:               types.Side(req.Side),
		StopLossDistance:   stopDistance,
		TakeProfitDistance: takeProfitDistance,
		ExpectedRate:       expectedRate,
	})
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"order_id": orderID})
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request, userID string) {
	orderID := chi.URLParam(r, "id")
	order, err := h.svc.GetOrder(r.Context(), orderID)
	if err != nil || order.UserID != userID {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "order not found"})
		return
	}
	if err := h.svc.CancelOrder(r.Context(), orderID); err != nil {
		writeBusinessError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"order_id": orderID})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request, userID string) {
	orders, err := h.svc.ListOrders(r.Context(), userID)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": orders})
}

func (h *Handler) ListTrades(w http.ResponseWriter, r *http.Request, userID string) {
	positionID := chi.URLParam(r, "id")
	position, err := h.svc.GetPosition(r.Context(), positionID)
	if err != nil || position.UserID != userID {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "position not found"})
		return
	}
	trades, err := h.svc.ListTrades(r.Context(), positionID)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": trades})
}

func (h *Handler) Profitability(w http.ResponseWriter, r *http.Request, userID string) {
	rows, err := h.svc.ListProfitability(r.Context(), userID)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *Handler) ListInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := h.catalog.List(r.Context())
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": instruments})
}

func (h *Handler) Rates(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	quote, err := h.svc.GetRates(r.Context(), symbol)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, quote)
}
