package war

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kayteedberserker/oreblogda-sub000/internal/ledger"
	"github.com/kayteedberserker/oreblogda-sub000/internal/notify"
	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

type sentNotice struct {
	tags []string
	msg  notify.Message
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
}

func (r *recordingNotifier) NotifyClans(_ context.Context, tags []string, msg notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotice{tags: tags, msg: msg})
}

func (r *recordingNotifier) last() sentNotice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[len(r.sent)-1]
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	st       store.Store
	ledger   *ledger.Ledger
	svc      *Service
	notifier *recordingNotifier
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, store.NewMemory())
}

func newFixtureOn(t *testing.T, st store.Store) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		st:       st,
		notifier: &recordingNotifier{},
		now:      time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return f.now }
	f.ledger = ledger.New(f.st, logger)
	f.ledger.SetClock(clock)
	f.svc = NewService(f.st, f.ledger, f.notifier, DefaultConfig(), logger)
	f.svc.SetClock(clock)
	return f
}

func (f *fixture) clan(tag string, spendable int64) {
	f.t.Helper()
	err := f.st.CreateClan(f.ctx, &store.Clan{
		Tag: tag, Name: tag, LeaderID: "lead-" + tag, MaxSlots: 20,
		SpendablePoints: spendable, Rank: 1, LastActive: f.now, CreatedAt: f.now,
	})
	if err != nil {
		f.t.Fatalf("create clan %s: %v", tag, err)
	}
}

func (f *fixture) get(tag string) *store.Clan {
	f.t.Helper()
	c, err := f.st.GetClan(f.ctx, tag)
	if err != nil {
		f.t.Fatalf("get clan %s: %v", tag, err)
	}
	return c
}

func (f *fixture) declare(cond store.WinCondition, metrics ...store.WarType) *store.War {
	f.t.Helper()
	if len(metrics) == 0 {
		metrics = []store.WarType{store.WarTypePoints}
	}
	w, err := f.svc.Declare(f.ctx, Declaration{
		Challenger: "AAA", Defender: "BBB", Stake: 500, DurationDays: 3,
		WinCondition: cond, Metrics: metrics,
	})
	if err != nil {
		f.t.Fatalf("declare: %v", err)
	}
	return w
}

// activeWar funds AAA and BBB, then AAA declares on BBB and BBB accepts.
func (f *fixture) activeWar(cond store.WinCondition, metrics ...store.WarType) *store.War {
	f.t.Helper()
	f.clan("AAA", 1000)
	f.clan("BBB", 1000)
	w := f.declare(cond, metrics...)
	active, err := f.svc.Accept(f.ctx, w.WarID, "BBB")
	if err != nil {
		f.t.Fatalf("accept: %v", err)
	}
	return active
}

func (f *fixture) award(tag string, points int64, cat store.Category) {
	f.t.Helper()
	if err := f.ledger.Award(f.ctx, tag, points, cat); err != nil {
		f.t.Fatalf("award: %v", err)
	}
	if err := f.svc.OnEvent(f.ctx, tag, points, cat); err != nil {
		f.t.Fatalf("OnEvent: %v", err)
	}
}

func (f *fixture) war(id string) *store.War {
	f.t.Helper()
	w, err := f.st.GetWar(f.ctx, id)
	if err != nil {
		f.t.Fatalf("get war: %v", err)
	}
	return w
}

func TestAcceptEscrowsBothStakes(t *testing.T) {
	f := newFixture(t)
	w := f.activeWar(store.WinFull)

	if w.Status != store.StatusActive {
		t.Fatalf("status = %s", w.Status)
	}
	if w.WarID != "AAA-VS-BBB" {
		t.Fatalf("warId = %s", w.WarID)
	}
	if want := f.now.Add(72 * time.Hour); w.EndTime == nil || !w.EndTime.Equal(want) {
		t.Fatalf("endTime = %v, want %v", w.EndTime, want)
	}
	for _, tag := range []string{"AAA", "BBB"} {
		c := f.get(tag)
		if c.SpendablePoints != 500 || c.LockedPoints != 500 {
			t.Fatalf("%s balances spendable=%d locked=%d", tag, c.SpendablePoints, c.LockedPoints)
		}
		if !c.IsInWar || c.ActiveWarID == nil || *c.ActiveWarID != w.ID {
			t.Fatalf("%s war flags = %v %v", tag, c.IsInWar, c.ActiveWarID)
		}
	}
	if n := f.notifier.last(); len(n.tags) != 1 || n.tags[0] != "AAA" {
		t.Fatalf("accept notified %v, want the challenger", n.tags)
	}
}

func TestEventScoresChallenger(t *testing.T) {
	f := newFixture(t)
	w := f.activeWar(store.WinFull)

	f.award("AAA", 10, store.CategoryLike)

	got := f.war(w.ID)
	if got.Progress.ChallengerScore != 10 || got.Progress.DefenderScore != 0 {
		t.Fatalf("progress = %+v", got.Progress)
	}
	c := f.get("AAA")
	if c.TotalPoints != 10 || c.Stats.Likes != 1 || c.Stats.WarLikes != 1 {
		t.Fatalf("AAA total=%d likes=%d warLikes=%d", c.TotalPoints, c.Stats.Likes, c.Stats.WarLikes)
	}
}

func TestFullWinnerTakesPot(t *testing.T) {
	f := newFixture(t)
	w := f.activeWar(store.WinFull)
	_ = f.st.AddScore(f.ctx, w.ID, store.SideChallenger, 300, f.now)
	_ = f.st.AddScore(f.ctx, w.ID, store.SideDefender, 100, f.now)

	f.now = f.now.Add(73 * time.Hour)
	res, err := f.svc.Settle(f.ctx, w.ID)
	if err != nil || res == nil {
		t.Fatalf("Settle = %v, %v", res, err)
	}

	a, b := f.get("AAA"), f.get("BBB")
	if a.TotalPoints != 1000 || b.TotalPoints != 0 {
		t.Fatalf("totals AAA=%d BBB=%d", a.TotalPoints, b.TotalPoints)
	}
	if a.LockedPoints != 0 || b.LockedPoints != 0 || a.IsInWar || b.IsInWar {
		t.Fatalf("escrow or flags left behind: %+v %+v", a, b)
	}
	done := f.war(w.ID)
	if done.Status != store.StatusCompleted || done.Winner == nil || *done.Winner != "AAA" {
		t.Fatalf("war = %s winner %v", done.Status, done.Winner)
	}
	if done.FinalSnapshot == nil || done.FinalSnapshot.ChallengerScore != 300 {
		t.Fatalf("final snapshot = %+v", done.FinalSnapshot)
	}
	if want := f.now.Add(30 * 24 * time.Hour); done.ExpiresAt == nil || !done.ExpiresAt.Equal(want) {
		t.Fatalf("expiresAt = %v", done.ExpiresAt)
	}
}

func TestPercentageSplit(t *testing.T) {
	f := newFixture(t)
	w := f.activeWar(store.WinPercentage)
	_ = f.st.AddScore(f.ctx, w.ID, store.SideChallenger, 300, f.now)
	_ = f.st.AddScore(f.ctx, w.ID, store.SideDefender, 100, f.now)

	res, err := f.svc.Settle(f.ctx, w.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if res.Payout.Challenger != 750 || res.Payout.Defender != 250 {
		t.Fatalf("payout = %+v", res.Payout)
	}
	if f.get("AAA").TotalPoints != 750 || f.get("BBB").TotalPoints != 250 {
		t.Fatal("payouts not credited to total points")
	}
}

func TestChallengerCannotAcceptOwnDeclaration(t *testing.T) {
	f := newFixture(t)
	f.clan("AAA", 1000)
	f.clan("BBB", 1000)
	w := f.declare(store.WinFull)

	if _, err := f.svc.Accept(f.ctx, w.WarID, "AAA"); !errors.Is(err, ErrSelfAcceptance) {
		t.Fatalf("expected ErrSelfAcceptance, got %v", err)
	}
	if a := f.get("AAA"); a.SpendablePoints != 1000 || a.LockedPoints != 0 || a.IsInWar {
		t.Fatalf("balances changed: %+v", a)
	}
	if got := f.war(w.ID); got.Status != store.StatusPending {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestTurnTaking(t *testing.T) {
	f := newFixture(t)
	f.clan("AAA", 1000)
	f.clan("BBB", 1000)
	w := f.declare(store.WinFull)

	stake := int64(300)
	if _, err := f.svc.Counter(f.ctx, w.WarID, "BBB", CounterOffer{PrizePool: &stake}); err != nil {
		t.Fatalf("counter: %v", err)
	}
	if _, err := f.svc.Accept(f.ctx, w.WarID, "BBB"); !errors.Is(err, ErrAwaitingOpponent) {
		t.Fatalf("expected ErrAwaitingOpponent, got %v", err)
	}
	if n := f.notifier.last(); n.tags[0] != "AAA" {
		t.Fatalf("counter notified %v", n.tags)
	}

	active, err := f.svc.Accept(f.ctx, w.WarID, "AAA")
	if err != nil {
		t.Fatalf("accept by the other side: %v", err)
	}
	if active.Terms.PrizePool != 300 || f.get("AAA").LockedPoints != 300 {
		t.Fatalf("countered stake not used: %+v", active.Terms)
	}
}

func TestCounterValidation(t *testing.T) {
	f := newFixture(t)
	f.clan("AAA", 1000)
	f.clan("BBB", 1000)
	f.clan("CCC", 1000)
	w := f.declare(store.WinFull)

	if _, err := f.svc.Counter(f.ctx, w.WarID, "CCC", CounterOffer{DurationDays: 5}); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("outsider counter: %v", err)
	}
	if _, err := f.svc.Counter(f.ctx, w.WarID, "BBB", CounterOffer{DurationDays: 4}); !errors.Is(err, ErrInvalidTerms) {
		t.Fatalf("bad duration: %v", err)
	}
	if _, err := f.svc.Counter(f.ctx, "AAA-VS-CCC", "CCC", CounterOffer{DurationDays: 5}); !errors.Is(err, store.ErrWarNotFound) {
		t.Fatalf("unknown war: %v", err)
	}
	got, err := f.svc.Counter(f.ctx, "aaa-vs-bbb", "bbb", CounterOffer{Metrics: []store.WarType{store.WarTypeLikes, store.WarTypeComments}})
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	if got.Status != store.StatusNegotiating || got.LastUpdatedByTag != "BBB" || got.Terms.WarType != store.WarTypeAll {
		t.Fatalf("after counter: %+v", got)
	}
}

func TestDeclareRejections(t *testing.T) {
	f := newFixture(t)
	f.clan("AAA", 1000)
	f.clan("BBB", 100)

	tests := []struct {
		name string
		d    Declaration
		want error
	}{
		{"self", Declaration{Challenger: "AAA", Defender: "aaa", Stake: 1, DurationDays: 1, WinCondition: store.WinFull, Metrics: []store.WarType{store.WarTypePoints}}, ErrInvalidTerms},
		{"missing clan", Declaration{Challenger: "AAA", Defender: "ZZZ", Stake: 1, DurationDays: 1, WinCondition: store.WinFull, Metrics: []store.WarType{store.WarTypePoints}}, store.ErrClanNotFound},
		{"poor defender", Declaration{Challenger: "AAA", Defender: "BBB", Stake: 500, DurationDays: 1, WinCondition: store.WinFull, Metrics: []store.WarType{store.WarTypePoints}}, store.ErrInsufficientFunds},
		{"no metrics", Declaration{Challenger: "AAA", Defender: "BBB", Stake: 1, DurationDays: 1, WinCondition: store.WinFull}, ErrInvalidTerms},
		{"bad condition", Declaration{Challenger: "AAA", Defender: "BBB", Stake: 1, DurationDays: 1, WinCondition: "MOST", Metrics: []store.WarType{store.WarTypePoints}}, ErrInvalidTerms},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Declare(f.ctx, tt.d); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDeclareConflict(t *testing.T) {
	f := newFixture(t)
	f.clan("AAA", 1000)
	f.clan("BBB", 1000)
	f.declare(store.WinFull)

	_, err := f.svc.Declare(f.ctx, Declaration{
		Challenger: "BBB", Defender: "AAA", Stake: 10, DurationDays: 1,
		WinCondition: store.WinFull, Metrics: []store.WarType{store.WarTypeLikes},
	})
	if !errors.Is(err, store.ErrConflictExists) {
		t.Fatalf("expected ErrConflictExists, got %v", err)
	}
}

func TestConcurrentDeclarationsCreateOneWar(t *testing.T) {
	f := newFixture(t)
	f.clan("AAA", 1000)
	f.clan("BBB", 1000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Declare(f.ctx, Declaration{
				Challenger: "AAA", Defender: "BBB", Stake: 10, DurationDays: 1,
				WinCondition: store.WinFull, Metrics: []store.WarType{store.WarTypePoints},
			})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else if !errors.Is(err, store.ErrConflictExists) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if created != 1 {
		t.Fatalf("created %d wars", created)
	}
}

func TestDecline(t *testing.T) {
	f := newFixture(t)
	f.clan("AAA", 1000)
	f.clan("BBB", 1000)
	w := f.declare(store.WinFull)

	got, err := f.svc.Decline(f.ctx, w.WarID)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if got.Status != store.StatusRejected || got.ExpiresAt == nil || !got.ExpiresAt.Equal(f.now.Add(30*24*time.Hour)) {
		t.Fatalf("after decline: %+v", got)
	}
	if n := f.notifier.last(); n.tags[0] != "AAA" {
		t.Fatalf("decline notified %v", n.tags)
	}
	if _, err := f.svc.Decline(f.ctx, w.WarID); !errors.Is(err, store.ErrWarNotFound) {
		t.Fatalf("second decline: %v", err)
	}
	if _, err := f.svc.Accept(f.ctx, w.WarID, "BBB"); !errors.Is(err, store.ErrWarNotFound) {
		t.Fatalf("accept after decline: %v", err)
	}
	// The pair is free again.
	f.declare(store.WinFull)
}

func TestAcceptRequiresFunds(t *testing.T) {
	f := newFixture(t)
	f.clan("AAA", 1000)
	f.clan("BBB", 1000)
	w := f.declare(store.WinFull)
	if err := f.ledger.Spend(f.ctx, "AAA", 600); err != nil {
		t.Fatalf("spend: %v", err)
	}

	if _, err := f.svc.Accept(f.ctx, w.WarID, "BBB"); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	for _, tag := range []string{"AAA", "BBB"} {
		if c := f.get(tag); c.LockedPoints != 0 || c.IsInWar {
			t.Fatalf("%s partially escrowed: %+v", tag, c)
		}
	}
}

func TestSingleActiveWarPerClan(t *testing.T) {
	f := newFixture(t)
	f.clan("AAA", 1000)
	f.clan("BBB", 1000)
	f.clan("CCC", 1000)

	d := func(def string) *store.War {
		w, err := f.svc.Declare(f.ctx, Declaration{
			Challenger: "AAA", Defender: def, Stake: 100, DurationDays: 1,
			WinCondition: store.WinFull, Metrics: []store.WarType{store.WarTypePoints},
		})
		if err != nil {
			t.Fatalf("declare on %s: %v", def, err)
		}
		return w
	}
	w1, w2 := d("BBB"), d("CCC")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, acc := range []struct{ id, tag string }{{w1.WarID, "BBB"}, {w2.WarID, "CCC"}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Accept(f.ctx, acc.id, acc.tag)
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, store.ErrAlreadyAtWar):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d wars activated for AAA", ok)
	}
	if a := f.get("AAA"); a.LockedPoints != 100 {
		t.Fatalf("AAA locked = %d", a.LockedPoints)
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	f := newFixture(t)
	w := f.activeWar(store.WinFull)
	_ = f.st.AddScore(f.ctx, w.ID, store.SideDefender, 40, f.now)

	if _, err := f.svc.Settle(f.ctx, w.ID); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	a1, b1 := f.get("AAA"), f.get("BBB")
	res, err := f.svc.Settle(f.ctx, w.ID)
	if err != nil || res != nil {
		t.Fatalf("second settle = %v, %v", res, err)
	}
	a2, b2 := f.get("AAA"), f.get("BBB")
	if a1.TotalPoints != a2.TotalPoints || b1.TotalPoints != b2.TotalPoints || b2.TotalPoints != 1000 {
		t.Fatalf("second settle changed balances: %d/%d -> %d/%d", a1.TotalPoints, b1.TotalPoints, a2.TotalPoints, b2.TotalPoints)
	}
}

func TestConcurrentSettlePaysOnce(t *testing.T) {
	f := newFixture(t)
	w := f.activeWar(store.WinFull)
	_ = f.st.AddScore(f.ctx, w.ID, store.SideChallenger, 1, f.now)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Settle(f.ctx, w.ID); err != nil {
				t.Errorf("settle: %v", err)
			}
		}()
	}
	wg.Wait()
	if a := f.get("AAA"); a.TotalPoints != 1000 {
		t.Fatalf("AAA total = %d, want a single payout of 1000", a.TotalPoints)
	}
}

func TestStakeConservation(t *testing.T) {
	for _, cond := range []store.WinCondition{store.WinFull, store.WinPercentage} {
		for _, scores := range [][2]int64{{0, 0}, {7, 7}, {10, 3}, {1, 999}} {
			f := newFixture(t)
			w := f.activeWar(cond)
			_ = f.st.AddScore(f.ctx, w.ID, store.SideChallenger, scores[0], f.now)
			_ = f.st.AddScore(f.ctx, w.ID, store.SideDefender, scores[1], f.now)

			if _, err := f.svc.Settle(f.ctx, w.ID); err != nil {
				t.Fatalf("%s %v: settle: %v", cond, scores, err)
			}
			a, b := f.get("AAA"), f.get("BBB")
			if a.LockedPoints != 0 || b.LockedPoints != 0 {
				t.Fatalf("%s %v: escrow left", cond, scores)
			}
			if sum := a.TotalPoints + b.TotalPoints; sum != 1000 {
				t.Fatalf("%s %v: payouts sum to %d", cond, scores, sum)
			}
			if scores[0] == scores[1] && (a.TotalPoints != 500 || b.TotalPoints != 500) {
				t.Fatalf("%s %v: draw not refunded: %d/%d", cond, scores, a.TotalPoints, b.TotalPoints)
			}
		}
	}
}

func TestPassiveSettlement(t *testing.T) {
	f := newFixture(t)
	w := f.activeWar(store.WinFull)
	f.award("BBB", 25, store.CategoryComment)

	f.now = f.now.Add(72*time.Hour + time.Minute)
	f.award("AAA", 100, store.CategoryLike)

	done := f.war(w.ID)
	if done.Status != store.StatusCompleted || *done.Winner != "BBB" {
		t.Fatalf("war = %s winner %v", done.Status, done.Winner)
	}
	if done.FinalSnapshot.ChallengerScore != 0 {
		t.Fatalf("late event counted: %+v", done.FinalSnapshot)
	}
	if a := f.get("AAA"); a.IsInWar || a.TotalPoints != 100 {
		t.Fatalf("AAA after passive settlement: inWar=%v total=%d", a.IsInWar, a.TotalPoints)
	}

	// Further events are plain awards.
	f.award("AAA", 5, store.CategoryLike)
	if got := f.war(w.ID); got.Progress.ChallengerScore != 0 {
		t.Fatalf("completed war scored: %+v", got.Progress)
	}
}

func TestWarTypeFilters(t *testing.T) {
	f := newFixture(t)
	w := f.activeWar(store.WinFull, store.WarTypeLikes)

	f.award("AAA", 10, store.CategoryComment)
	f.award("AAA", 4, store.CategoryLike)
	f.award("BBB", 9, store.CategoryShare)

	got := f.war(w.ID)
	if got.Progress.ChallengerScore != 4 || got.Progress.DefenderScore != 0 {
		t.Fatalf("progress = %+v", got.Progress)
	}
}

func TestCounts(t *testing.T) {
	tests := []struct {
		t    store.WarType
		cat  store.Category
		want bool
	}{
		{store.WarTypeAll, store.CategoryView, true},
		{store.WarTypePoints, store.CategoryShare, true},
		{store.WarTypeLikes, store.CategoryLike, true},
		{store.WarTypeLikes, store.CategoryComment, false},
		{store.WarTypeComments, store.CategoryComment, true},
		{store.WarTypeComments, store.CategoryView, false},
	}
	for _, tt := range tests {
		if got := Counts(tt.t, tt.cat); got != tt.want {
			t.Errorf("Counts(%s, %s) = %v", tt.t, tt.cat, got)
		}
	}
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	w := f.activeWar(store.WinFull)

	if n, err := f.svc.SweepExpired(f.ctx); err != nil || n != 0 {
		t.Fatalf("early sweep = %d, %v", n, err)
	}
	f.now = f.now.Add(4 * 24 * time.Hour)
	if n, err := f.svc.SweepExpired(f.ctx); err != nil || n != 1 {
		t.Fatalf("sweep = %d, %v", n, err)
	}
	if got := f.war(w.ID); got.Status != store.StatusCompleted || *got.Winner != store.Draw {
		t.Fatalf("war = %s winner %v", got.Status, got.Winner)
	}
	if n, _ := f.svc.SweepExpired(f.ctx); n != 0 {
		t.Fatalf("second sweep settled %d", n)
	}
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t)
	f.clan("AAA", 1000)
	f.clan("BBB", 1000)
	w := f.declare(store.WinFull)

	f.now = f.now.Add(6 * 24 * time.Hour)
	if n, _ := f.svc.ExpireStale(f.ctx); n != 0 {
		t.Fatalf("expired %d fresh wars", n)
	}
	f.now = f.now.Add(2 * 24 * time.Hour)
	if n, err := f.svc.ExpireStale(f.ctx); err != nil || n != 1 {
		t.Fatalf("ExpireStale = %d, %v", n, err)
	}
	if got := f.war(w.ID); got.Status != store.StatusRejected {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	w := f.activeWar(store.WinFull)
	f.clan("CCC", 0)

	bogus := "ghost"
	_ = f.st.SetWarFlags(f.ctx, "CCC", &bogus)
	_ = f.st.SetWarFlags(f.ctx, "AAA", nil)

	fixed, err := f.svc.Reconcile(f.ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(fixed) != 2 {
		t.Fatalf("fixed = %v", fixed)
	}
	if a := f.get("AAA"); !a.IsInWar || *a.ActiveWarID != w.ID {
		t.Fatalf("AAA not restored: %+v", a)
	}
	if c := f.get("CCC"); c.IsInWar || c.ActiveWarID != nil {
		t.Fatalf("CCC not cleared: %+v", c)
	}
}

func TestCanTransition(t *testing.T) {
	if !CanTransition(store.StatusNegotiating, store.StatusNegotiating) {
		t.Fatal("counter-offers must be able to repeat")
	}
	if CanTransition(store.StatusCompleted, store.StatusActive) || CanTransition(store.StatusRejected, store.StatusNegotiating) {
		t.Fatal("terminal states must not transition")
	}
	if CanTransition(store.StatusActive, store.StatusRejected) {
		t.Fatal("an active war cannot be declined")
	}
}
