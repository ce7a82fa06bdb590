package marketdata

import (
	"net/http"

	"github.com/shopspring/decimal"

	"lv-margintrade/internal/httputil"
)

// FeedHandler accepts quote pushes from the upstream price source. Protected
// by the internal token at the router.
type FeedHandler struct {
	quotes *Quotes
}

func NewFeedHandler(quotes *Quotes) *FeedHandler {
	return &FeedHandler{quotes: quotes}
}

type quotePush struct {
	Symbol string `json:"symbol"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
}

func (h *FeedHandler) Push(w http.ResponseWriter, r *http.Request) {
	var req quotePush
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	bid, err1 := decimal.NewFromString(req.Bid)
	ask, err2 := decimal.NewFromString(req.Ask)
	if req.Symbol == "" || err1 != nil || err2 != nil || !bid.IsPositive() || !ask.IsPositive() {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "symbol, bid and ask required"})
		return
	}
	h.quotes.Set(Quote{Symbol: req.Symbol, Bid: bid, Ask: ask})
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
