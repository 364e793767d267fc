package badge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kayteedberserker/oreblogda-sub000/internal/leaderboard"
	"github.com/kayteedberserker/oreblogda-sub000/internal/ledger"
	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

// InactivityWindow is how long a clan may go without engagement before the
// daily pass halves its points.
const InactivityWindow = 7 * 24 * time.Hour

// Publisher receives leaderboards recomputed after the daily and weekly passes.
type Publisher interface {
	Publish(ctx context.Context, key leaderboard.SortKey, entries []leaderboard.Entry) error
}

type Engine struct {
	store  store.Store
	clans  store.Clans
	ledger *ledger.Ledger
	window LikeWindow
	board  Publisher
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(st store.Store, l *ledger.Ledger, window LikeWindow, logger *slog.Logger) *Engine {
	return &Engine{
		store:  st,
		clans:  st,
		ledger: l,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// SetPublisher makes the daily and weekly passes publish fresh boards.
func (e *Engine) SetPublisher(p Publisher) {
	e.board = p
}

func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Refresh evaluates milestone badges for one clan and persists any new ones.
func (e *Engine) Refresh(ctx context.Context, tag string) (Delta, error) {
	c, err := e.clans.GetClan(ctx, tag)
	if err != nil {
		return Delta{}, err
	}
	d := Evaluate(c)
	if d.Empty() {
		return d, nil
	}
	if err := e.clans.UpdateBadges(ctx, tag, d.Add, d.Remove); err != nil {
		return Delta{}, fmt.Errorf("update badges %s: %w", tag, err)
	}
	e.logger.Info("badges awarded", "clan", tag, "badges", d.Add)
	return d, nil
}

// RecordLike feeds a like into the post's trailing window and grants One-Shot
// to clanTag once the window reaches OneShotLikes.
func (e *Engine) RecordLike(ctx context.Context, postID, clanTag string) (bool, error) {
	count, err := e.window.Add(ctx, postID, e.now())
	if err != nil {
		return false, err
	}
	if count < OneShotLikes {
		return false, nil
	}
	c, err := e.clans.GetClan(ctx, clanTag)
	if err != nil {
		return false, err
	}
	if c.HasBadge(OneShot) {
		return false, nil
	}
	if err := e.clans.UpdateBadges(ctx, clanTag, []string{OneShot}, nil); err != nil {
		return false, err
	}
	e.logger.Info("one-shot awarded", "clan", clanTag, "post", postID, "likes", count)
	return true, nil
}

// DailyPass applies the inactivity penalty to every idle clan and returns how
// many were penalized. Each clan's penalty commits on its own.
func (e *Engine) DailyPass(ctx context.Context) (int, error) {
	clans, err := e.clans.ListClans(ctx)
	if err != nil {
		return 0, err
	}
	penalized := 0
	defer func() {
		if penalized > 0 {
			e.republish(ctx)
		}
	}()
	for _, c := range clans {
		p, err := e.ledger.PenalizeInactive(ctx, c.Tag, InactivityWindow)
		if err != nil {
			return penalized, fmt.Errorf("penalize %s: %w", c.Tag, err)
		}
		if p != nil {
			penalized++
			e.logger.Info("inactivity penalty applied", "clan", c.Tag, "total", p.Total, "spendable", p.Spendable)
		}
	}
	return penalized, nil
}

// WeeklyPass computes Weekly over the current clans and persists every
// outcome in one transaction, so a failed pass leaves no clan decayed and can
// be rerun. Points earned while the pass runs are kept for the next week.
func (e *Engine) WeeklyPass(ctx context.Context) ([]WeeklyOutcome, error) {
	var outcomes []WeeklyOutcome
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		clans, err := tx.ListClans(ctx)
		if err != nil {
			return err
		}
		outcomes = Weekly(clans)
		for _, o := range outcomes {
			if err := tx.ApplyWeekly(ctx, o.Tag, o.Update); err != nil {
				return fmt.Errorf("weekly %s: %w", o.Tag, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("weekly pass complete", "clans", len(outcomes))
	e.republish(ctx)
	return outcomes, nil
}

func (e *Engine) republish(ctx context.Context) {
	if e.board == nil {
		return
	}
	if err := e.PublishBoards(ctx); err != nil {
		e.logger.Warn("publish leaderboards failed", "err", err)
	}
}

// PublishBoards recomputes and publishes the live leaderboards.
func (e *Engine) PublishBoards(ctx context.Context) error {
	if e.board == nil {
		return nil
	}
	clans, err := e.clans.ListClans(ctx)
	if err != nil {
		return err
	}
	for _, key := range leaderboard.Live {
		if err := e.board.Publish(ctx, key, leaderboard.RankClans(clans, key)); err != nil {
			return fmt.Errorf("publish %s: %w", key, err)
		}
	}
	return nil
}
