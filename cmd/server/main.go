package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kayteedberserker/oreblogda-sub000/internal/app"
	"github.com/kayteedberserker/oreblogda-sub000/internal/config"
	"github.com/kayteedberserker/oreblogda-sub000/internal/server"
	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("build app", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close", "err", err)
		}
	}()

	if a.Pool != nil {
		applied, err := store.Migrate(ctx, a.Pool)
		if err != nil {
			logger.Error("migrate", "err", err)
			os.Exit(1)
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", "files", applied)
		}
	}

	repaired, err := a.Wars.Reconcile(ctx)
	if err != nil {
		logger.Warn("reconcile war flags", "err", err)
	} else if len(repaired) > 0 {
		logger.Info("war flags repaired", "clans", repaired)
	}

	// Live boards start from a full snapshot and are kept current from here on.
	if err := a.Badges.PublishBoards(ctx); err != nil {
		logger.Warn("publish leaderboards", "err", err)
	}

	a.Dispatcher.Start()

	// Live feed and metrics observe every committed war change.
	metrics := server.NewMetrics()
	hub := server.NewHub(a.Wars, cfg.WSPingInterval, metrics, logger)
	a.Wars.Observe(hub)
	a.Wars.Observe(metrics)

	var db server.Pinger
	if a.Postgres != nil {
		db = a.Postgres
	}
	srv := server.New(cfg, db, a.Redis, hub, metrics, logger)
	srv.SetWarService(a.Wars)
	srv.SetClanService(a.Clans)
	srv.SetPipeline(a.Pipeline)
	srv.SetLedger(a.Ledger)

	go srv.Limiter().Run(ctx)
	go func() {
		if err := a.Scheduler.Run(ctx); err != nil {
			logger.Error("scheduler", "err", err)
		}
	}()

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.HTTPAddr, "store", cfg.StoreBackend)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}
