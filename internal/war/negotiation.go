package war

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/kayteedberserker/oreblogda-sub000/internal/notify"
	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

var transitions = map[store.WarStatus][]store.WarStatus{
	store.StatusPending:     {store.StatusNegotiating, store.StatusActive, store.StatusRejected},
	store.StatusNegotiating: {store.StatusNegotiating, store.StatusActive, store.StatusRejected},
	store.StatusActive:      {store.StatusCompleted},
}

// CanTransition reports whether a war may move from one status to another.
func CanTransition(from, to store.WarStatus) bool {
	return slices.Contains(transitions[from], to)
}

// checkTurn applies the turn-taking rules for acceptor on w.
func checkTurn(w *store.War, acceptor string) error {
	if _, ok := w.SideOf(acceptor); !ok {
		return ErrNotParticipant
	}
	switch w.Status {
	case store.StatusPending:
		if acceptor == w.ChallengerTag {
			return ErrSelfAcceptance
		}
	case store.StatusNegotiating:
		if acceptor == w.LastUpdatedByTag {
			return ErrAwaitingOpponent
		}
	default:
		return store.ErrWarNotFound
	}
	return nil
}

// Accept activates a negotiable war: both stakes move into escrow, both clans
// are marked at war and the clock starts. Everything happens in one
// transaction with the war row locked, so a stale accept sees the current
// status and fails.
func (s *Service) Accept(ctx context.Context, warID, tag string) (*store.War, error) {
	tag = store.NormalizeTag(tag)
	warID = NormalizeWarID(warID)
	now := s.now()

	var accepted *store.War
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		live, err := tx.LiveWar(ctx, warID)
		if err != nil {
			return err
		}
		w, err := tx.LockWar(ctx, live.ID)
		if err != nil {
			return err
		}
		if !CanTransition(w.Status, store.StatusActive) {
			return store.ErrWarNotFound
		}
		if err := checkTurn(w, tag); err != nil {
			return err
		}

		stake := w.Terms.PrizePool
		tags := []string{w.ChallengerTag, w.DefenderTag}
		slices.Sort(tags)
		snapshots := make(map[string]store.StatSnapshot, 2)
		for _, t := range tags {
			c, err := tx.GetClan(ctx, t)
			if err != nil {
				return err
			}
			if c.IsInWar {
				return fmt.Errorf("%s: %w", t, store.ErrAlreadyAtWar)
			}
			if c.SpendablePoints < stake {
				return fmt.Errorf("%s: %w", t, store.ErrInsufficientFunds)
			}
			snapshots[t] = store.StatSnapshot{Points: c.TotalPoints, Likes: c.Stats.Likes, Comments: c.Stats.Comments}
		}

		l := s.ledger.With(tx)
		for _, t := range tags {
			if err := l.MoveToEscrow(ctx, t, stake, w.ID); err != nil {
				return fmt.Errorf("%s: %w", t, err)
			}
			if err := tx.EnterWar(ctx, t, w.ID); err != nil {
				return fmt.Errorf("%s: %w", t, err)
			}
		}

		err = tx.ActivateWar(ctx, w.ID, w.Version, store.Activation{
			Start: now,
			End:   now.Add(time.Duration(w.Terms.DurationDays) * 24 * time.Hour),
			Initial: store.InitialStats{
				Challenger: snapshots[w.ChallengerTag],
				Defender:   snapshots[w.DefenderTag],
			},
		})
		if err != nil {
			return err
		}
		accepted = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("war accepted", "war", accepted.WarID, "id", accepted.ID, "by", tag, "stake", accepted.Terms.PrizePool)
	s.notify(ctx, notify.Message{
		Title:    "War is on!",
		Body:     fmt.Sprintf("%s accepted. The war runs for %d days.", tag, accepted.Terms.DurationDays),
		Data:     map[string]string{"type": "war_started", "warId": accepted.WarID},
		GroupKey: accepted.WarID,
	}, accepted.Opponent(tag))
	return s.reload(ctx, accepted.ID), nil
}
