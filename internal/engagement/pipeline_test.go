package engagement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kayteedberserker/oreblogda-sub000/internal/badge"
	"github.com/kayteedberserker/oreblogda-sub000/internal/ledger"
	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
	"github.com/kayteedberserker/oreblogda-sub000/internal/war"
)

func newPipeline(t *testing.T) (*Pipeline, *war.Service, *store.Memory) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := store.NewMemory()
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	for _, tag := range []string{"AAA", "BBB"} {
		err := mem.CreateClan(ctx, &store.Clan{
			Tag: tag, LeaderID: "lead-" + tag, Members: []string{"a", "b", "c", "d"}, MaxSlots: 20,
			SpendablePoints: 1000, Rank: 1, LastActive: now,
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	l := ledger.New(mem, logger)
	engine := badge.NewEngine(mem, l, badge.NewMemoryWindow(), logger)
	wars := war.NewService(mem, l, nil, war.DefaultConfig(), logger)
	return NewPipeline(l, engine, wars, logger), wars, mem
}

func TestRecordFeedsEveryStage(t *testing.T) {
	ctx := context.Background()
	p, wars, mem := newPipeline(t)

	w, err := wars.Declare(ctx, war.Declaration{
		Challenger: "AAA", Defender: "BBB", Stake: 100, DurationDays: 7,
		WinCondition: store.WinFull, Metrics: []store.WarType{store.WarTypeLikes},
	})
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	if _, err := wars.Accept(ctx, w.WarID, "BBB"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	out, err := p.Record(ctx, Event{PostID: "p1", ClanTag: "bbb", Category: store.CategoryLike, Points: 10})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(out.Badges) != 1 || out.Badges[0] != badge.FiveKage {
		t.Fatalf("badges = %v", out.Badges)
	}

	c, _ := mem.GetClan(ctx, "BBB")
	if c.TotalPoints != 10 || c.Stats.Likes != 1 || !c.HasBadge(badge.FiveKage) {
		t.Fatalf("clan after event: %+v", c)
	}
	got, _ := wars.Get(ctx, w.WarID)
	if got.Progress.DefenderScore != 10 {
		t.Fatalf("progress = %+v", got.Progress)
	}
}

func TestRecordRejectsBadEvents(t *testing.T) {
	p, _, _ := newPipeline(t)
	tests := []Event{
		{ClanTag: "", Category: store.CategoryView, Points: 1},
		{ClanTag: "AAA", Category: "poke", Points: 1},
		{ClanTag: "AAA", Category: store.CategoryShare, Points: -1},
		{ClanTag: "AAA", Category: store.CategoryLike, Points: 1},
	}
	for _, e := range tests {
		if _, err := p.Record(context.Background(), e); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("Record(%+v) = %v", e, err)
		}
	}
	_, err := p.Record(context.Background(), Event{ClanTag: "NOPE", Category: store.CategoryView, Points: 1})
	if !errors.Is(err, store.ErrClanNotFound) {
		t.Fatalf("unknown clan: %v", err)
	}
}
