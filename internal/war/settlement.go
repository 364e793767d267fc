package war

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kayteedberserker/oreblogda-sub000/internal/notify"
	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

// Settlement is the result of settling one war.
type Settlement struct {
	War    *store.War `json:"war"`
	Payout Payout     `json:"payout"`
}

// Settle completes an ACTIVE war: winner, escrow release with payouts, war
// flags cleared and the record closed, all in one transaction. Settling a war
// that is no longer ACTIVE is a no-op and returns nil.
func (s *Service) Settle(ctx context.Context, id string) (*Settlement, error) {
	now := s.now()
	var settled *store.War
	var payout Payout

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		w, err := tx.LockWar(ctx, id)
		if err != nil {
			return err
		}
		if w.Status != store.StatusActive {
			return nil
		}
		payout = ComputePayout(w)
		stake := w.Terms.PrizePool

		l := s.ledger.With(tx)
		releases := []struct {
			tag    string
			amount int64
		}{
			{w.ChallengerTag, payout.Challenger},
			{w.DefenderTag, payout.Defender},
		}
		if releases[1].tag < releases[0].tag {
			releases[0], releases[1] = releases[1], releases[0]
		}
		for _, r := range releases {
			if err := l.ReleaseEscrow(ctx, r.tag, stake, r.amount, w.ID); err != nil {
				return fmt.Errorf("release %s: %w", r.tag, err)
			}
			if err := tx.LeaveWar(ctx, r.tag, w.ID); err != nil {
				return fmt.Errorf("leave %s: %w", r.tag, err)
			}
		}

		err = tx.CompleteWar(ctx, w.ID, w.Version, store.Completion{
			Winner:    payout.Winner,
			Snapshot:  w.Progress,
			At:        now,
			ExpiresAt: now.Add(s.cfg.Retention),
		})
		if err != nil {
			return err
		}
		settled = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	if settled == nil {
		return nil, nil
	}

	s.logger.Info("war settled",
		"war", settled.WarID,
		"id", settled.ID,
		"winner", payout.Winner,
		"challenger_score", settled.Progress.ChallengerScore,
		"defender_score", settled.Progress.DefenderScore,
		"challenger_payout", payout.Challenger,
		"defender_payout", payout.Defender,
	)
	for _, tag := range []string{settled.ChallengerTag, settled.DefenderTag} {
		s.notify(ctx, resultMessage(settled, payout, tag), tag)
	}
	return &Settlement{War: s.reload(ctx, settled.ID), Payout: payout}, nil
}

func resultMessage(w *store.War, p Payout, tag string) notify.Message {
	msg := notify.Message{
		Data:     map[string]string{"type": "war_ended", "warId": w.WarID, "winner": p.Winner},
		GroupKey: w.WarID,
	}
	received := p.Challenger
	if tag == w.DefenderTag {
		received = p.Defender
	}
	switch p.Winner {
	case store.Draw:
		msg.Title = "War ended in a draw"
		msg.Body = fmt.Sprintf("Your %d point stake has been returned.", w.Terms.PrizePool)
	case tag:
		msg.Title = "Victory!"
		msg.Body = fmt.Sprintf("Your clan won the war against %s and earned %d points.", w.Opponent(tag), received)
	default:
		msg.Title = "Defeat"
		msg.Body = fmt.Sprintf("%s won the war. Your clan received %d points.", p.Winner, received)
	}
	return msg
}

// SweepExpired settles every ACTIVE war past its end time and returns how
// many it settled. One failing war does not stop the others.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	wars, err := s.store.ListExpiredActive(ctx, s.now())
	if err != nil {
		return 0, err
	}

	var settled atomic.Int64
	var failures atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.cfg.SweepWorkers)
	for _, w := range wars {
		g.Go(func() error {
			res, err := s.Settle(ctx, w.ID)
			if err != nil {
				failures.Add(1)
				s.logger.Error("settle failed", "war", w.WarID, "id", w.ID, "err", err)
				return nil
			}
			if res != nil {
				settled.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := failures.Load(); n > 0 {
		return int(settled.Load()), fmt.Errorf("sweep: %d of %d wars failed to settle", n, len(wars))
	}
	return int(settled.Load()), nil
}

// ExpireStale declines negotiations nobody has touched within NegotiationTTL.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	if s.cfg.NegotiationTTL <= 0 {
		return 0, nil
	}
	now := s.now()
	wars, err := s.store.ListStale(ctx, now.Add(-s.cfg.NegotiationTTL))
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, w := range wars {
		err := s.store.RejectWar(ctx, w.ID, w.Version, now, now.Add(s.cfg.Retention))
		if isStale(err) {
			continue
		}
		if err != nil {
			return expired, fmt.Errorf("expire %s: %w", w.WarID, err)
		}
		expired++
		s.logger.Info("stale negotiation expired", "war", w.WarID, "id", w.ID)
		s.notify(ctx, notify.Message{
			Title:    "War offer expired",
			Body:     fmt.Sprintf("The war between %s and %s expired without an answer.", w.ChallengerTag, w.DefenderTag),
			Data:     map[string]string{"type": "war_expired", "warId": w.WarID},
			GroupKey: w.WarID,
		}, w.ChallengerTag, w.DefenderTag)
		s.reload(ctx, w.ID)
	}
	return expired, nil
}

// Reconcile rebuilds every clan's isInWar/activeWarId from the ACTIVE wars
// and returns the tags it corrected.
func (s *Service) Reconcile(ctx context.Context) ([]string, error) {
	active, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]string, 2*len(active))
	for _, w := range active {
		want[w.ChallengerTag] = w.ID
		want[w.DefenderTag] = w.ID
	}

	clans, err := s.store.ListClans(ctx)
	if err != nil {
		return nil, err
	}
	var fixed []string
	for _, c := range clans {
		id, shouldFight := want[c.Tag]
		current := ""
		if c.ActiveWarID != nil {
			current = *c.ActiveWarID
		}
		if c.IsInWar == shouldFight && current == id {
			continue
		}
		var target *string
		if shouldFight {
			target = &id
		}
		if err := s.store.SetWarFlags(ctx, c.Tag, target); err != nil {
			if errors.Is(err, store.ErrClanNotFound) {
				continue
			}
			return fixed, fmt.Errorf("reconcile %s: %w", c.Tag, err)
		}
		s.logger.Warn("war flags reconciled", "clan", c.Tag, "was", current, "now", id)
		fixed = append(fixed, c.Tag)
	}
	return fixed, nil
}
