// Command warsim drives many concurrent clan wars through the full lifecycle
// against the in-memory store and checks that no points are created or lost.
// Stakes leave spendable points through escrow and come back as payouts to
// total points, so the checked sum is spendable + locked + total.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kayteedberserker/oreblogda-sub000/internal/badge"
	"github.com/kayteedberserker/oreblogda-sub000/internal/clan"
	"github.com/kayteedberserker/oreblogda-sub000/internal/engagement"
	"github.com/kayteedberserker/oreblogda-sub000/internal/ledger"
	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
	"github.com/kayteedberserker/oreblogda-sub000/internal/war"
)

const (
	totalClans  = 60
	totalRounds = 20_000
	maxEvents   = 40
)

// Temperament is how a clan behaves at the negotiation table.
type Temperament int

const (
	Hawk Temperament = iota
	Haggler
	Dove
)

func (t Temperament) String() string {
	return [...]string{"Hawk", "Haggler", "Dove"}[t]
}

type simClan struct {
	tag         string
	temperament Temperament
}

type tally struct {
	declared, accepted, declined, countered, settled atomic.Int64
	conflicts, atWar, broke, stale                   atomic.Int64
	awarded                                          atomic.Int64
	wins                                             [3]atomic.Int64
	draws                                            atomic.Int64
}

type sim struct {
	clans    []simClan
	byTag    map[string]simClan
	mem      *store.Memory
	ledger   *ledger.Ledger
	wars     *war.Service
	clanSvc  *clan.Service
	pipeline *engagement.Pipeline
	t        tally
}

func main() {
	start := time.Now()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mem := store.NewMemory()
	l := ledger.New(mem, logger)
	badges := badge.NewEngine(mem, l, badge.NewMemoryWindow(), logger)
	wars := war.NewService(mem, l, nil, war.DefaultConfig(), logger)
	s := &sim{
		mem:      mem,
		ledger:   l,
		wars:     wars,
		clanSvc:  clan.NewService(mem, badges, logger),
		pipeline: engagement.NewPipeline(l, badges, wars, logger),
		byTag:    make(map[string]simClan),
	}

	rng := rand.New(rand.NewSource(42))
	if err := s.seed(ctx, rng); err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		os.Exit(1)
	}
	before, err := s.balances(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "balances:", err)
		os.Exit(1)
	}

	workers := runtime.GOMAXPROCS(0)
	var progress atomic.Int64
	var wg sync.WaitGroup
	chunk := totalRounds / workers
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, (w+1)*chunk
		if w == workers-1 {
			hi = totalRounds
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			local := rand.New(rand.NewSource(int64(lo)*7919 + 1))
			for i := lo; i < hi; i++ {
				s.round(ctx, local)
				if n := progress.Add(1); n%(totalRounds/10) == 0 {
					fmt.Printf("  ... %d/%d rounds (%.0f%%)\n", n, totalRounds, float64(n)/float64(totalRounds)*100)
				}
			}
		}(lo, hi)
	}
	wg.Wait()

	// Anything still ACTIVE is settled so every stake is back in play.
	if _, err := s.settleRemaining(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "final settle:", err)
		os.Exit(1)
	}
	after, err := s.balances(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "balances:", err)
		os.Exit(1)
	}

	ok := s.report(before, after, time.Since(start), workers)
	if !ok {
		os.Exit(1)
	}
}

func (s *sim) seed(ctx context.Context, rng *rand.Rand) error {
	for i := 0; i < totalClans; i++ {
		tag := fmt.Sprintf("C%03d", i)
		c := simClan{tag: tag, temperament: Temperament(i % 3)}
		if _, err := s.clanSvc.Create(ctx, clan.Founding{Tag: tag, Name: "Clan " + tag, LeaderID: "lead-" + tag}); err != nil {
			return err
		}
		pts := int64(500 + rng.Intn(5000))
		if err := s.ledger.Refund(ctx, tag, pts); err != nil {
			return err
		}
		if _, err := s.pipeline.Record(ctx, engagement.Event{ClanTag: tag, Category: store.CategoryPost, Points: pts}); err != nil {
			return err
		}
		s.clans = append(s.clans, c)
		s.byTag[tag] = c
	}
	return nil
}

type balance struct {
	spendable, locked, total int64
	inWar                    int
}

func (b balance) sum() int64 { return b.spendable + b.locked + b.total }

func (s *sim) balances(ctx context.Context) (balance, error) {
	clans, err := s.mem.ListClans(ctx)
	if err != nil {
		return balance{}, err
	}
	var b balance
	for _, c := range clans {
		b.spendable += c.SpendablePoints
		b.locked += c.LockedPoints
		b.total += c.TotalPoints
		if c.IsInWar {
			b.inWar++
		}
	}
	return b, nil
}

func (s *sim) count(err error) {
	switch {
	case errors.Is(err, store.ErrConflictExists):
		s.t.conflicts.Add(1)
	case errors.Is(err, store.ErrAlreadyAtWar):
		s.t.atWar.Add(1)
	case errors.Is(err, store.ErrInsufficientFunds):
		s.t.broke.Add(1)
	case errors.Is(err, store.ErrStaleWar), errors.Is(err, store.ErrWarNotFound),
		errors.Is(err, war.ErrAwaitingOpponent):
		s.t.stale.Add(1)
	}
}

var (
	durations  = war.AllowedDurations
	conditions = []store.WinCondition{store.WinFull, store.WinPercentage}
	metricSets = [][]store.WarType{
		{store.WarTypePoints}, {store.WarTypeLikes}, {store.WarTypeComments},
		{store.WarTypeLikes, store.WarTypeComments},
	}
	categories = []store.Category{store.CategoryLike, store.CategoryComment, store.CategoryShare, store.CategoryView}
)

// round runs one declaration through negotiation, scoring and settlement.
// Collisions with other workers are expected and only tallied.
func (s *sim) round(ctx context.Context, rng *rand.Rand) {
	a := s.clans[rng.Intn(len(s.clans))]
	d := s.clans[rng.Intn(len(s.clans))]
	if a.tag == d.tag {
		return
	}
	stake := int64(50 + rng.Intn(400))
	if a.temperament == Hawk {
		stake *= 2
	}
	w, err := s.wars.Declare(ctx, war.Declaration{
		Challenger:   a.tag,
		Defender:     d.tag,
		Stake:        stake,
		DurationDays: durations[rng.Intn(len(durations))],
		WinCondition: conditions[rng.Intn(len(conditions))],
		Metrics:      metricSets[rng.Intn(len(metricSets))],
	})
	if err != nil {
		s.count(err)
		return
	}
	s.t.declared.Add(1)

	// Negotiate: Haggler counters, Dove may decline.
	turn, other := d, a
negotiate:
	for step := 0; step < 4; step++ {
		switch {
		case turn.temperament == Dove && rng.Float64() < 0.3:
			if _, err := s.wars.Decline(ctx, w.WarID); err != nil {
				s.count(err)
			} else {
				s.t.declined.Add(1)
			}
			return
		case turn.temperament == Haggler && rng.Float64() < 0.6:
			pool := stake / 2
			if _, err := s.wars.Counter(ctx, w.WarID, turn.tag, war.CounterOffer{PrizePool: &pool}); err != nil {
				s.count(err)
				return
			}
			s.t.countered.Add(1)
			stake = pool
			turn, other = other, turn
			continue
		}
		break negotiate
	}

	if _, err := s.wars.Accept(ctx, w.WarID, turn.tag); err != nil {
		s.count(err)
		if !errors.Is(err, store.ErrStaleWar) {
			_, _ = s.wars.Decline(ctx, w.WarID)
		}
		return
	}
	s.t.accepted.Add(1)

	for i := rng.Intn(maxEvents); i > 0; i-- {
		tag := a.tag
		if rng.Intn(2) == 0 {
			tag = d.tag
		}
		pts := int64(1 + rng.Intn(20))
		e := engagement.Event{
			ClanTag:  tag,
			Category: categories[rng.Intn(len(categories))],
			Points:   pts,
			PostID:   fmt.Sprintf("post-%d", rng.Intn(1000)),
		}
		if _, err := s.pipeline.Record(ctx, e); err == nil {
			s.t.awarded.Add(pts)
		}
	}

	live, err := s.wars.Get(ctx, w.WarID)
	if err != nil {
		return
	}
	res, err := s.wars.Settle(ctx, live.ID)
	if err != nil || res == nil {
		return
	}
	s.t.settled.Add(1)
	switch res.Payout.Winner {
	case store.Draw:
		s.t.draws.Add(1)
	default:
		s.t.wins[s.byTag[res.Payout.Winner].temperament].Add(1)
	}
}

func (s *sim) settleRemaining(ctx context.Context) (int, error) {
	settled := 0
	for _, c := range s.clans {
		wars, err := s.wars.History(ctx, c.tag, 100)
		if err != nil {
			return settled, err
		}
		for _, w := range wars {
			if w.Status != store.StatusActive {
				continue
			}
			res, err := s.wars.Settle(ctx, w.ID)
			if err != nil {
				return settled, err
			}
			if res != nil {
				settled++
				s.t.settled.Add(1)
			}
		}
	}
	return settled, nil
}

func (s *sim) report(before, after balance, elapsed time.Duration, workers int) bool {
	fmt.Println()
	fmt.Println("  CLAN WAR SIMULATION")
	fmt.Printf("  Clans: %d  |  Rounds: %d  |  Workers: %d  |  Elapsed: %v\n",
		totalClans, totalRounds, workers, elapsed.Round(time.Millisecond))
	fmt.Println()
	fmt.Printf("  Declared:   %d\n", s.t.declared.Load())
	fmt.Printf("  Countered:  %d\n", s.t.countered.Load())
	fmt.Printf("  Declined:   %d\n", s.t.declined.Load())
	fmt.Printf("  Accepted:   %d\n", s.t.accepted.Load())
	fmt.Printf("  Settled:    %d  (draws %d)\n", s.t.settled.Load(), s.t.draws.Load())
	fmt.Printf("  Rejected:   conflict %d  |  at war %d  |  no funds %d  |  raced %d\n",
		s.t.conflicts.Load(), s.t.atWar.Load(), s.t.broke.Load(), s.t.stale.Load())
	fmt.Println()

	type row struct {
		name string
		wins int64
	}
	rows := make([]row, 0, 3)
	for t := Hawk; t <= Dove; t++ {
		rows = append(rows, row{t.String(), s.t.wins[t].Load()})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].wins > rows[j].wins })
	for _, r := range rows {
		fmt.Printf("  %-8s wins %d\n", r.name, r.wins)
	}
	fmt.Println()

	want := before.sum() + s.t.awarded.Load()
	got := after.sum()
	ok := got == want && after.locked == 0 && after.inWar == 0
	fmt.Printf("  Points before %d + awarded %d = %d  |  after %d  |  locked %d  |  clans at war %d\n",
		before.sum(), s.t.awarded.Load(), want, got, after.locked, after.inWar)
	fmt.Printf("  Spendable %d -> %d  |  total %d -> %d\n",
		before.spendable, after.spendable, before.total, after.total)
	if ok {
		fmt.Println("  CONSERVATION OK")
	} else {
		fmt.Println("  CONSERVATION FAILED")
	}
	return ok
}
