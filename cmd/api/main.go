package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"lv-margintrade/internal/auth"
	"lv-margintrade/internal/config"
	"lv-margintrade/internal/currency"
	"lv-margintrade/internal/db"
	"lv-margintrade/internal/gateway"
	"lv-margintrade/internal/health"
	"lv-margintrade/internal/httpserver"
	"lv-margintrade/internal/instrument"
	"lv-margintrade/internal/logging"
	"lv-margintrade/internal/marketdata"
	"lv-margintrade/internal/notify"
	"lv-margintrade/internal/trade"
	"lv-margintrade/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet.
		panic(err)
	}

	log, err := logging.New(cfg.Mode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	bus := marketdata.NewBus()
	quotes := marketdata.NewQuotes(bus)

	catalog := instrument.NewPGCatalog(pool)
	ledger := wallet.NewLedger(pool)
	store := trade.NewPGStore(pool)
	converter := currency.NewStaticConverter()

	baseCurrency := currency.Currency{Code: cfg.BaseCurrency, Precision: cfg.BasePrecision}
	authSvc := auth.NewService(pool, cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL, baseCurrency)

	var gw gateway.ExecutionGateway
	var delayed *gateway.Delayed
	var immediate *gateway.Immediate
	if cfg.GatewayMode == "immediate" {
		immediate = gateway.NewImmediate(quotes)
		gw = immediate
	} else {
		delayed = gateway.NewDelayed(quotes, bus, gateway.DelayedConfig{
			Delay:       cfg.GatewayDelay,
			FailureRate: cfg.GatewayFailureRate,
			Hedge:       cfg.GatewayHedge,
		}, log.Named("gateway"))
		gw = delayed
	}

	svc := trade.NewService(store, catalog, ledger, gw, converter, authSvc, notify.NewBusNotifier(bus), log.Named("trade"))
	if immediate != nil {
		immediate.Bind(svc, svc)
	}
	if delayed != nil {
		delayed.Bind(svc, svc)
		delayed.Start(ctx)
		defer delayed.Close()
	}

	watcher := trade.NewStopWatcher(svc, bus, log.Named("watcher"))
	go watcher.Run(ctx)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:   auth.NewHandler(authSvc),
		TradeHandler:  trade.NewHandler(svc, catalog),
		WalletHandler: wallet.NewHandler(ledger, ledger),
		HealthHandler: health.NewHandler(pool, time.Now(), cfg.GatewayMode, cfg.HTTPAddr, cfg.InternalToken),
		FeedHandler:   marketdata.NewFeedHandler(quotes),
		AuthService:   authSvc,
		InternalToken: cfg.InternalToken,
		RatesWS:       marketdata.NewStreamHandler(bus, cfg.WebSocketOrigin, log.Named("ws")),
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server starting",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("mode", cfg.Mode),
			zap.String("gateway", cfg.GatewayMode))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown incomplete", zap.Error(err))
	}
}
