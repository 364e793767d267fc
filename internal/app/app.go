// Package app assembles the clan economy from configuration.
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kayteedberserker/oreblogda-sub000/internal/badge"
	"github.com/kayteedberserker/oreblogda-sub000/internal/cache"
	"github.com/kayteedberserker/oreblogda-sub000/internal/clan"
	"github.com/kayteedberserker/oreblogda-sub000/internal/config"
	"github.com/kayteedberserker/oreblogda-sub000/internal/engagement"
	"github.com/kayteedberserker/oreblogda-sub000/internal/leaderboard"
	"github.com/kayteedberserker/oreblogda-sub000/internal/ledger"
	"github.com/kayteedberserker/oreblogda-sub000/internal/notify"
	"github.com/kayteedberserker/oreblogda-sub000/internal/scheduler"
	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
	"github.com/kayteedberserker/oreblogda-sub000/internal/war"
)

type App struct {
	Config     *config.Config
	Store      store.Store
	Pool       *pgxpool.Pool
	Postgres   *store.Postgres
	Redis      *redis.Client
	Mongo      *store.MongoDirectory
	Dispatcher *notify.Dispatcher
	Ledger     *ledger.Ledger
	Badges     *badge.Engine
	Boards     *leaderboard.Tracker
	Wars       *war.Service
	Clans      *clan.Service
	Pipeline   *engagement.Pipeline
	Scheduler  *scheduler.Scheduler
	logger     *slog.Logger
}

// Build connects the configured backends and wires every service. Redis and
// Mongo are optional on the memory backend.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := store.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.Pool = pool
		a.Postgres = store.NewPostgres(pool)
		a.Store = a.Postgres
	default:
		a.Store = store.NewMemory()
	}

	rdb, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	switch {
	case err == nil:
		a.Redis = rdb
	case cfg.StoreBackend == config.BackendPostgres:
		_ = a.Close()
		return nil, err
	default:
		logger.Warn("redis unavailable, using in-process like windows", "err", err)
	}

	var dir notify.TokenDirectory = notify.MapDirectory{}
	if cfg.MongoURI != "" {
		mongo, err := store.NewMongoDirectory(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Mongo = mongo
		dir = mongo
	}

	a.Dispatcher = notify.NewDispatcher(a.Store, dir,
		notify.NewExpoSender(cfg.ExpoPushURL, cfg.ExpoAccessToken),
		cfg.NotifyWorkers, cfg.NotifyQueue, logger)

	a.Ledger = ledger.New(a.Store, logger)

	var window badge.LikeWindow = badge.NewMemoryWindow()
	if a.Redis != nil {
		window = badge.NewRedisWindow(a.Redis)
	}
	a.Badges = badge.NewEngine(a.Store, a.Ledger, window, logger)

	warCfg := war.DefaultConfig()
	warCfg.NegotiationTTL = cfg.NegotiationTTL
	warCfg.Retention = cfg.WarRetention
	a.Wars = war.NewService(a.Store, a.Ledger, a.Dispatcher, warCfg, logger)

	a.Clans = clan.NewService(a.Store, a.Badges, logger)
	a.Pipeline = engagement.NewPipeline(a.Ledger, a.Badges, a.Wars, logger)

	if a.Redis != nil {
		boards := leaderboard.NewService(a.Redis)
		a.Boards = leaderboard.NewTracker(boards, a.Store, logger)
		a.Badges.SetPublisher(boards)
		a.Wars.Observe(a.Boards)
		a.Clans.SetBoards(a.Boards)
		a.Pipeline.SetBoards(a.Boards)
	}

	a.Scheduler = scheduler.New(logger)
	scheduler.Register(a.Scheduler, a.Wars, a.Badges, cfg.WarSweepInterval)
	return a, nil
}

// Ping reports on the primary store; the memory store is always up.
func (a *App) Ping(ctx context.Context) error {
	if a.Postgres == nil {
		return nil
	}
	return a.Postgres.Ping(ctx)
}

// Close stops the dispatcher and releases every connection.
func (a *App) Close() error {
	var errs []error
	if a.Dispatcher != nil {
		a.Dispatcher.Stop()
	}
	if a.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.Mongo.Close(ctx))
		cancel()
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return errors.Join(errs...)
}
