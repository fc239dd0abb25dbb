package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lv-escrow/internal/auth"
	"lv-escrow/internal/config"
	"lv-escrow/internal/db"
	"lv-escrow/internal/health"
	"lv-escrow/internal/httpserver"
	"lv-escrow/internal/ledger"
	"lv-escrow/internal/logging"
	"lv-escrow/internal/metrics"
	"lv-escrow/internal/outbox"
	"lv-escrow/internal/reconcile"
	"lv-escrow/internal/reputation"
	"lv-escrow/internal/trades"
	"lv-escrow/internal/verify"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.NewLogger(cfg.LogLevel, "lv-escrow", cfg.AppEnv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	tradeStore := trades.NewStore()
	ledgerSvc := ledger.NewService(pool)
	outboxStore := outbox.NewStore(cfg.OutboxMaxAttempts)
	finalizer := trades.NewFinalizer(pool, tradeStore, ledgerSvc, outboxStore, logger, trades.FinalizerConfig{
		FeeBps:       cfg.FeeBps,
		FeeAccountID: cfg.FeeAccountID,
		AcceptedTTL:  cfg.AcceptedTradeTTL,
		EscrowTTL:    cfg.EscrowTradeTTL,
	})
	verifier := verify.NewVerifier(pool, logger)
	emitter := reputation.NewLogEmitter(logger)
	tradeSvc := trades.NewService(pool, tradeStore, finalizer, verifier, emitter, logger, cfg.OpenTradeTTL)
	authSvc := auth.NewService(pool, cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:    auth.NewHandler(authSvc),
		TradeHandler:   trades.NewHandler(tradeSvc),
		LedgerHandler:  ledger.NewHandler(ledgerSvc),
		HealthHandler:  health.NewHandler(pool, time.Now()),
		MetricsHandler: metrics.Handler(registry),
		AuthService:    authSvc,
		InternalToken:  cfg.InternalToken,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	reconciler := reconcile.NewWorker(pool, tradeStore, finalizer, emitter, logger, cfg.ReconcileInterval, cfg.ReconcileBatch)
	go reconciler.Start(ctx)

	deliverer := outbox.NewWorker(pool, outboxStore, outbox.NewLogSink(logger), logger, cfg.OutboxInterval)
	go deliverer.Start(ctx)

	logger.Info("server listening", "addr", cfg.HTTPAddr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
