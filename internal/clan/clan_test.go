package clan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/kayteedberserker/oreblogda-sub000/internal/badge"
	"github.com/kayteedberserker/oreblogda-sub000/internal/ledger"
	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

func newService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := store.NewMemory()
	l := ledger.New(mem, logger)
	return NewService(mem, badge.NewEngine(mem, l, badge.NewMemoryWindow(), logger), logger), mem
}

func TestCreateValidates(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	c, err := s.Create(ctx, Founding{Tag: " ab1 ", Name: "Alpha", LeaderID: "u1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Tag != "AB1" || c.MaxSlots != store.DefaultMaxSlots || !c.RecruitmentOpen {
		t.Fatalf("clan = %+v", c)
	}
	if _, err := s.Create(ctx, Founding{Tag: "AB1", Name: "Again", LeaderID: "u2"}); !errors.Is(err, store.ErrClanExists) {
		t.Fatalf("duplicate tag: %v", err)
	}
	for _, tag := range []string{"A", "TOOLONGTAG", "A-B"} {
		if _, err := s.Create(ctx, Founding{Tag: tag, Name: "x", LeaderID: "u"}); !errors.Is(err, ErrInvalidClan) {
			t.Errorf("tag %q: %v", tag, err)
		}
	}
}

func TestJoinUntilFull(t *testing.T) {
	s, mem := newService(t)
	ctx := context.Background()
	if _, err := s.Create(ctx, Founding{Tag: "AAA", Name: "A", LeaderID: "lead", MaxSlots: 4}); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 4; i++ {
		if err := s.Join(ctx, "aaa", fmt.Sprintf("u%d", i)); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
	}
	if err := s.Join(ctx, "AAA", "late"); !errors.Is(err, ErrRosterFull) {
		t.Fatalf("expected ErrRosterFull, got %v", err)
	}
	c, _ := mem.GetClan(ctx, "AAA")
	if !c.HasBadge(badge.FiveKage) {
		t.Fatalf("five on roster should earn %s: %v", badge.FiveKage, c.Badges)
	}

	if err := s.SetRecruitment(ctx, "AAA", "u0", false); !errors.Is(err, ErrNotLeader) {
		t.Fatalf("member toggled recruitment: %v", err)
	}
	if err := s.Leave(ctx, "AAA", "u3"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := s.SetRecruitment(ctx, "AAA", "lead", false); err != nil {
		t.Fatalf("close recruitment: %v", err)
	}
	if err := s.Join(ctx, "AAA", "late"); !errors.Is(err, ErrRecruitmentClosed) {
		t.Fatalf("expected ErrRecruitmentClosed, got %v", err)
	}
	if err := s.Leave(ctx, "AAA", "lead"); !errors.Is(err, ErrLeaderCannotLeave) {
		t.Fatalf("leader left: %v", err)
	}
}

func TestDisbandBlockedDuringWar(t *testing.T) {
	s, mem := newService(t)
	ctx := context.Background()
	_, _ = s.Create(ctx, Founding{Tag: "AAA", Name: "A", LeaderID: "lead"})
	_ = mem.SetWarFlags(ctx, "AAA", new(string))

	if err := s.Disband(ctx, "AAA", "someone"); !errors.Is(err, ErrNotLeader) {
		t.Fatalf("non-leader disband: %v", err)
	}
	if err := s.Disband(ctx, "AAA", "lead"); !errors.Is(err, ErrCannotDisband) {
		t.Fatalf("expected ErrCannotDisband, got %v", err)
	}
	_ = mem.SetWarFlags(ctx, "AAA", nil)
	if err := s.Disband(ctx, "AAA", "lead"); err != nil {
		t.Fatalf("disband: %v", err)
	}
	if _, err := s.Get(ctx, "AAA"); !errors.Is(err, store.ErrClanNotFound) {
		t.Fatalf("clan still present: %v", err)
	}
}

func TestFollowNeverNegative(t *testing.T) {
	s, mem := newService(t)
	ctx := context.Background()
	_, _ = s.Create(ctx, Founding{Tag: "AAA", Name: "A", LeaderID: "lead"})

	_ = s.Follow(ctx, "AAA", true)
	_ = s.Follow(ctx, "AAA", false)
	_ = s.Follow(ctx, "AAA", false)
	c, _ := mem.GetClan(ctx, "AAA")
	if c.Stats.Followers != 0 {
		t.Fatalf("followers = %d", c.Stats.Followers)
	}
}

type recordingBoards struct {
	synced []string
}

func (b *recordingBoards) Sync(_ context.Context, tags ...string) {
	b.synced = append(b.synced, tags...)
}

func TestFoundingAndDisbandSyncBoards(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	boards := &recordingBoards{}
	s.SetBoards(boards)

	if _, err := s.Create(ctx, Founding{Tag: "AAA", Name: "A", LeaderID: "lead"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Disband(ctx, "AAA", "other"); !errors.Is(err, ErrNotLeader) {
		t.Fatalf("disband by non-leader: %v", err)
	}
	if err := s.Disband(ctx, "AAA", "lead"); err != nil {
		t.Fatalf("disband: %v", err)
	}
	if len(boards.synced) != 2 || boards.synced[0] != "AAA" || boards.synced[1] != "AAA" {
		t.Fatalf("synced = %v, want AAA twice", boards.synced)
	}
}
