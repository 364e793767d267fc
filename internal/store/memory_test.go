package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedClan(t *testing.T, m *Memory, tag string, spendable int64) {
	t.Helper()
	err := m.CreateClan(context.Background(), &Clan{
		Tag: tag, Name: tag, LeaderID: "lead-" + tag, MaxSlots: 3,
		RecruitmentOpen: true, SpendablePoints: spendable, Rank: 1, LastActive: epoch, CreatedAt: epoch,
	})
	if err != nil {
		t.Fatalf("create clan %s: %v", tag, err)
	}
}

func TestWarKeyIsOrderIndependent(t *testing.T) {
	if got := WarKey("bbb", "AAA"); got != "AAA-VS-BBB" {
		t.Fatalf("WarKey = %q", got)
	}
	if WarKey("AAA", "BBB") != WarKey("BBB", "AAA") {
		t.Fatal("WarKey must not depend on argument order")
	}
}

func TestMoveToEscrowRefusesOverdraft(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedClan(t, m, "AAA", 100)

	if err := m.MoveToEscrow(ctx, "AAA", 150); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	c, _ := m.GetClan(ctx, "AAA")
	if c.SpendablePoints != 100 || c.LockedPoints != 0 {
		t.Fatalf("balances changed on failure: %+v", c)
	}
	if err := m.MoveToEscrow(ctx, "ZZZ", 1); !errors.Is(err, ErrClanNotFound) {
		t.Fatalf("expected ErrClanNotFound, got %v", err)
	}
}

func TestConcurrentAwardsAreNotLost(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedClan(t, m, "AAA", 0)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Award(ctx, "AAA", 5, CategoryLike, epoch)
		}()
	}
	wg.Wait()

	c, _ := m.GetClan(ctx, "AAA")
	if c.TotalPoints != 1000 || c.Stats.Likes != 200 {
		t.Fatalf("lost updates: total=%d likes=%d", c.TotalPoints, c.Stats.Likes)
	}
}

func TestCreateWarIsCreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	w := &War{ID: "w1", WarID: "AAA-VS-BBB", Status: StatusPending, CreatedAt: epoch}
	if err := m.CreateWar(ctx, w); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := &War{ID: "w2", WarID: "AAA-VS-BBB", Status: StatusPending, CreatedAt: epoch}
	if err := m.CreateWar(ctx, dup); !errors.Is(err, ErrConflictExists) {
		t.Fatalf("expected ErrConflictExists, got %v", err)
	}

	if err := m.RejectWar(ctx, "w1", 0, epoch, epoch.Add(time.Hour)); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := m.CreateWar(ctx, dup); err != nil {
		t.Fatalf("create after rejection: %v", err)
	}
	latest, err := m.LatestWar(ctx, "AAA-VS-BBB")
	if err != nil || latest.ID != "w1" {
		t.Fatalf("LatestWar = %+v, %v", latest, err)
	}
}

func TestStaleVersionIsRejected(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.CreateWar(ctx, &War{ID: "w1", WarID: "AAA-VS-BBB", Status: StatusPending, CreatedAt: epoch})

	if err := m.UpdateTerms(ctx, "w1", 0, Terms{PrizePool: 10}, "BBB", epoch); err != nil {
		t.Fatalf("first counter: %v", err)
	}
	if err := m.UpdateTerms(ctx, "w1", 0, Terms{PrizePool: 20}, "AAA", epoch); !errors.Is(err, ErrStaleWar) {
		t.Fatalf("expected ErrStaleWar for replayed version, got %v", err)
	}
}

func TestAddScoreOnlyWhileActive(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.CreateWar(ctx, &War{ID: "w1", WarID: "AAA-VS-BBB", Status: StatusPending, CreatedAt: epoch})

	if err := m.AddScore(ctx, "w1", SideChallenger, 5, epoch); !errors.Is(err, ErrStaleWar) {
		t.Fatalf("pending war accepted score: %v", err)
	}
	end := epoch.Add(24 * time.Hour)
	if err := m.ActivateWar(ctx, "w1", 0, Activation{Start: epoch, End: end}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := m.AddScore(ctx, "w1", SideDefender, 7, epoch.Add(time.Hour)); err != nil {
		t.Fatalf("score: %v", err)
	}
	if err := m.AddScore(ctx, "w1", SideDefender, 7, end.Add(time.Second)); !errors.Is(err, ErrStaleWar) {
		t.Fatalf("expired war accepted score: %v", err)
	}
	w, _ := m.GetWar(ctx, "w1")
	if w.Progress.DefenderScore != 7 || w.Progress.ChallengerScore != 0 {
		t.Fatalf("progress = %+v", w.Progress)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedClan(t, m, "AAA", 500)
	seedClan(t, m, "BBB", 100)

	err := m.WithTx(ctx, func(tx Tx) error {
		if err := tx.MoveToEscrow(ctx, "AAA", 300); err != nil {
			return err
		}
		return tx.MoveToEscrow(ctx, "BBB", 300)
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	a, _ := m.GetClan(ctx, "AAA")
	if a.SpendablePoints != 500 || a.LockedPoints != 0 {
		t.Fatalf("partial escrow leaked: %+v", a)
	}
}

func TestMembershipRules(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedClan(t, m, "AAA", 0)

	for _, u := range []string{"u1", "u2", "u3"} {
		if err := m.AddMember(ctx, "AAA", u); err != nil {
			t.Fatalf("add %s: %v", u, err)
		}
	}
	if err := m.AddMember(ctx, "AAA", "u1"); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}
	if err := m.AddMember(ctx, "AAA", "u4"); !errors.Is(err, ErrRosterFull) {
		t.Fatalf("expected ErrRosterFull, got %v", err)
	}
	_ = m.RemoveMember(ctx, "AAA", "u3")
	_ = m.SetRecruitment(ctx, "AAA", false)
	if err := m.AddMember(ctx, "AAA", "u4"); !errors.Is(err, ErrRecruitmentClosed) {
		t.Fatalf("expected ErrRecruitmentClosed, got %v", err)
	}
}

func TestUpdateBadgesHasSetSemantics(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedClan(t, m, "AAA", 0)

	_ = m.UpdateBadges(ctx, "AAA", []string{"A", "B"}, nil)
	_ = m.UpdateBadges(ctx, "AAA", []string{"B", "C"}, []string{"A"})
	c, _ := m.GetClan(ctx, "AAA")
	if len(c.Badges) != 2 || c.Badges[0] != "B" || c.Badges[1] != "C" {
		t.Fatalf("badges = %v", c.Badges)
	}
}

func TestRosterCapCountsMembersOnly(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	err := m.CreateClan(ctx, &Clan{
		Tag: "AAA", Name: "AAA", LeaderID: "lead", MaxSlots: DefaultMaxSlots,
		RecruitmentOpen: true, Rank: 1, LastActive: epoch, CreatedAt: epoch,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < DefaultMaxSlots; i++ {
		if err := m.AddMember(ctx, "AAA", string(rune('a'+i))); err != nil {
			t.Fatalf("member %d: %v", i, err)
		}
	}
	if err := m.AddMember(ctx, "AAA", "late"); !errors.Is(err, ErrRosterFull) {
		t.Fatalf("expected ErrRosterFull, got %v", err)
	}
	c, _ := m.GetClan(ctx, "AAA")
	if len(c.Members) != DefaultMaxSlots || c.OnRoster("late") {
		t.Fatalf("members = %v", c.Members)
	}
}

func TestPenalizeInactiveReportsRemovedPoints(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedClan(t, m, "AAA", 7)
	_ = m.Award(ctx, "AAA", 9, CategoryView, epoch)

	p, err := m.PenalizeInactive(ctx, "AAA", epoch.Add(time.Hour), epoch.Add(2*time.Hour))
	if err != nil || p == nil || p.Total != 5 || p.Spendable != 4 {
		t.Fatalf("penalty = %+v, %v", p, err)
	}
	c, _ := m.GetClan(ctx, "AAA")
	if c.TotalPoints != 4 || c.SpendablePoints != 3 {
		t.Fatalf("after penalty = %d/%d", c.TotalPoints, c.SpendablePoints)
	}
	if p, err := m.PenalizeInactive(ctx, "AAA", epoch.Add(time.Hour), epoch.Add(3*time.Hour)); err != nil || p != nil {
		t.Fatalf("penalized an active clan: %+v, %v", p, err)
	}
}
