package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bullpen/internal/api"
	"bullpen/internal/config"
	"bullpen/internal/game"
	"bullpen/internal/store"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		st = pg
		logger.Info("using postgres store")
	} else {
		st = store.NewMemory()
		logger.Info("using in-memory store")
	}
	defer st.Close()

	var advisor *game.Advisor
	if cfg.AdvisorURL != "" {
		advisor = game.NewAdvisor(cfg.AdvisorURL, cfg.AdvisorTimeout)
	}
	gameSvc := game.NewService(st, logger, game.Options{
		SeedMoney:     cfg.SeedMoney,
		InfoCardPrice: cfg.InfoCardPrice,
		Ratios:        cfg.InvestmentRatios,
		Advisor:       advisor,
	})

	go gameSvc.RunTimerTicker(ctx, cfg.TimerTickEvery)

	server := api.New(cfg, logger, gameSvc)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("bullpen api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
