package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lv-margintrade/internal/auth"
	"lv-margintrade/internal/health"
	"lv-margintrade/internal/httputil"
	"lv-margintrade/internal/marketdata"
	"lv-margintrade/internal/trade"
	"lv-margintrade/internal/wallet"
)

type RouterDeps struct {
	AuthHandler   *auth.Handler
	TradeHandler  *trade.Handler
	WalletHandler *wallet.Handler
	HealthHandler *health.Handler
	FeedHandler   *marketdata.FeedHandler
	AuthService   *auth.Service
	InternalToken string
	RatesWS       http.Handler
}

// withUser adapts handlers that take an explicit userID argument.
func withUser(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserID(r)
		if !ok {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
			return
		}
		fn(w, r, userID)
	}
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS middleware for development
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Use(SecurityHeaders)
	r.Use(RateLimitMiddleware)

	r.Get("/health", d.HealthHandler.Ready)
	r.Get("/health/live", d.HealthHandler.Live)
	r.Get("/health/full", d.HealthHandler.Full)
	r.Get("/metrics", d.HealthHandler.Metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", d.AuthHandler.Register)
			r.Post("/login", d.AuthHandler.Login)
		})

		r.Get("/rates/ws", d.RatesWS.ServeHTTP)
		r.Get("/instruments", d.TradeHandler.ListInstruments)
		r.Get("/instruments/{symbol}/rates", d.TradeHandler.Rates)

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.AuthService))
			r.Get("/me", withUser(d.AuthHandler.Me))
			r.Get("/balances", withUser(d.WalletHandler.Balances))

			r.Get("/positions", withUser(d.TradeHandler.ListPositions))
			r.Post("/positions", withUser(d.TradeHandler.OpenPosition))
			r.Post("/positions/close-all", withUser(d.TradeHandler.CloseAllPositions))
			r.Post("/positions/{id}/close", withUser(d.TradeHandler.ClosePosition))
			r.Post("/positions/{id}/stop-loss", withUser(d.TradeHandler.ChangeStopLoss))
			r.Get("/positions/{id}/trades", withUser(d.TradeHandler.ListTrades))
			r.Post("/margin", withUser(d.TradeHandler.RequiredMargin))

			r.Get("/orders", withUser(d.TradeHandler.ListOrders))
			r.Post("/orders", withUser(d.TradeHandler.PlaceOrder))
			r.Post("/orders/{id}/cancel", withUser(d.TradeHandler.CancelOrder))

			r.Get("/profitability", withUser(d.TradeHandler.Profitability))
		})

		r.Group(func(r chi.Router) {
			r.Use(InternalAuth(d.InternalToken))
			r.Post("/internal/quotes", d.FeedHandler.Push)
			r.Post("/internal/deposits", d.WalletHandler.Deposit)
		})
	})

	return r
}
