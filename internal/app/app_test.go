package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kayteedberserker/oreblogda-sub000/internal/clan"
	"github.com/kayteedberserker/oreblogda-sub000/internal/config"
	"github.com/kayteedberserker/oreblogda-sub000/internal/engagement"
	"github.com/kayteedberserker/oreblogda-sub000/internal/scheduler"
	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
	"github.com/kayteedberserker/oreblogda-sub000/internal/war"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StoreBackend:     config.BackendMemory,
		RedisAddr:        "127.0.0.1:1",
		ExpoPushURL:      "http://127.0.0.1:1/push",
		NotifyWorkers:    1,
		NotifyQueue:      16,
		WarSweepInterval: time.Minute,
		NegotiationTTL:   time.Hour,
		WarRetention:     time.Hour,
	}
}

func TestBuildMemoryWithoutRedis(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := Build(context.Background(), memoryConfig(), logger)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	if a.Redis != nil || a.Postgres != nil || a.Mongo != nil {
		t.Fatal("memory build should not hold external clients")
	}
	if err := a.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if got := len(a.Scheduler.Jobs()); got != 4 {
		t.Fatalf("scheduler jobs = %v", a.Scheduler.Jobs())
	}

	ctx := context.Background()
	for _, tag := range []string{"AAA", "BBB"} {
		if _, err := a.Clans.Create(ctx, clan.Founding{Tag: tag, Name: tag, LeaderID: "lead-" + tag}); err != nil {
			t.Fatalf("create %s: %v", tag, err)
		}
		if err := a.Ledger.Refund(ctx, tag, 100); err != nil {
			t.Fatalf("fund %s: %v", tag, err)
		}
		if _, err := a.Pipeline.Record(ctx, engagement.Event{ClanTag: tag, Category: store.CategoryComment, Points: 100}); err != nil {
			t.Fatalf("record %s: %v", tag, err)
		}
	}
	if _, err := a.Wars.Declare(ctx, war.Declaration{
		Challenger: "AAA", Defender: "BBB", Stake: 50, DurationDays: 1,
		WinCondition: store.WinFull, Metrics: []store.WarType{store.WarTypePoints},
	}); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if _, err := a.Wars.Accept(ctx, "AAA-VS-BBB", "BBB"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := a.Scheduler.RunNow(ctx, scheduler.JobWars); err != nil {
		t.Fatalf("sweep: %v", err)
	}
}
