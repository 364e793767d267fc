package war

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/kayteedberserker/oreblogda-sub000/internal/notify"
	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

type Declaration struct {
	Challenger   string             `json:"challengerTag"`
	Defender     string             `json:"targetTag"`
	Stake        int64              `json:"prizePool"`
	DurationDays int                `json:"durationDays"`
	WinCondition store.WinCondition `json:"winCondition"`
	Metrics      []store.WarType    `json:"metrics"`
}

// WarTypeFor collapses the requested metrics: one metric is the war type,
// several mean ALL.
func WarTypeFor(metrics []store.WarType) (store.WarType, error) {
	if len(metrics) == 0 {
		return "", fmt.Errorf("%w: no metrics", ErrInvalidTerms)
	}
	for _, m := range metrics {
		if !m.Valid() {
			return "", fmt.Errorf("%w: unknown metric %q", ErrInvalidTerms, m)
		}
	}
	if len(metrics) > 1 {
		return store.WarTypeAll, nil
	}
	return metrics[0], nil
}

func validateTerms(t store.Terms) error {
	switch {
	case t.PrizePool < 0:
		return fmt.Errorf("%w: negative prize pool", ErrInvalidTerms)
	case !slices.Contains(AllowedDurations, t.DurationDays):
		return fmt.Errorf("%w: duration must be one of %v days", ErrInvalidTerms, AllowedDurations)
	case !t.WinCondition.Valid():
		return fmt.Errorf("%w: win condition %q", ErrInvalidTerms, t.WinCondition)
	case !t.WarType.Valid():
		return fmt.Errorf("%w: war type %q", ErrInvalidTerms, t.WarType)
	}
	return nil
}

// NormalizeWarID upper-cases a pair key from a request path.
func NormalizeWarID(warID string) string {
	return strings.ToUpper(strings.TrimSpace(warID))
}

// Declare opens a PENDING war from challenger to defender. Only one
// non-terminal war may exist per clan pair.
func (s *Service) Declare(ctx context.Context, d Declaration) (*store.War, error) {
	challenger, defender := store.NormalizeTag(d.Challenger), store.NormalizeTag(d.Defender)
	if challenger == "" || defender == "" || challenger == defender {
		return nil, fmt.Errorf("%w: a clan cannot declare war on itself", ErrInvalidTerms)
	}
	warType, err := WarTypeFor(d.Metrics)
	if err != nil {
		return nil, err
	}
	terms := store.Terms{
		PrizePool:    d.Stake,
		DurationDays: d.DurationDays,
		WinCondition: d.WinCondition,
		WarType:      warType,
	}
	if err := validateTerms(terms); err != nil {
		return nil, err
	}

	for _, tag := range []string{challenger, defender} {
		c, err := s.store.GetClan(ctx, tag)
		if err != nil {
			return nil, err
		}
		if c.IsInWar {
			return nil, fmt.Errorf("%s: %w", tag, store.ErrAlreadyAtWar)
		}
		if c.SpendablePoints < terms.PrizePool {
			return nil, fmt.Errorf("%s: %w", tag, store.ErrInsufficientFunds)
		}
	}

	now := s.now()
	w := &store.War{
		ID:               uuid.NewString(),
		WarID:            store.WarKey(challenger, defender),
		ChallengerTag:    challenger,
		DefenderTag:      defender,
		Status:           store.StatusPending,
		Terms:            terms,
		LastUpdatedByTag: challenger,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateWar(ctx, w); err != nil {
		return nil, err
	}
	s.logger.Info("war declared", "war", w.WarID, "id", w.ID, "stake", terms.PrizePool, "type", terms.WarType)

	s.notify(ctx, notify.Message{
		Title:    "War declared!",
		Body:     fmt.Sprintf("%s has declared war on your clan for %d points.", challenger, terms.PrizePool),
		Data:     map[string]string{"type": "war_declared", "warId": w.WarID},
		GroupKey: w.WarID,
	}, defender)
	s.publish(w)
	return w, nil
}

// CounterOffer is the terms a clan proposes back. Empty fields keep the
// current value.
type CounterOffer struct {
	PrizePool    *int64             `json:"prizePool,omitempty"`
	DurationDays int                `json:"durationDays,omitempty"`
	WinCondition store.WinCondition `json:"winCondition,omitempty"`
	Metrics      []store.WarType    `json:"metrics,omitempty"`
}

func (o CounterOffer) apply(t store.Terms) (store.Terms, error) {
	if o.PrizePool != nil {
		t.PrizePool = *o.PrizePool
	}
	if o.DurationDays != 0 {
		t.DurationDays = o.DurationDays
	}
	if o.WinCondition != "" {
		t.WinCondition = o.WinCondition
	}
	if len(o.Metrics) > 0 {
		wt, err := WarTypeFor(o.Metrics)
		if err != nil {
			return t, err
		}
		t.WarType = wt
	}
	return t, validateTerms(t)
}

// Counter replaces the open terms of a negotiable war and hands the turn to
// the other clan.
func (s *Service) Counter(ctx context.Context, warID, sender string, offer CounterOffer) (*store.War, error) {
	sender = store.NormalizeTag(sender)
	w, err := s.negotiable(ctx, warID)
	if err != nil {
		return nil, err
	}
	if _, ok := w.SideOf(sender); !ok {
		return nil, ErrNotParticipant
	}
	terms, err := offer.apply(w.Terms)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateTerms(ctx, w.ID, w.Version, terms, sender, s.now()); err != nil {
		return nil, err
	}
	opponent := w.Opponent(sender)
	s.logger.Info("war counter-offer", "war", w.WarID, "from", sender, "stake", terms.PrizePool)

	s.notify(ctx, notify.Message{
		Title:    "New war terms",
		Body:     fmt.Sprintf("%s sent a counter-offer: %d points over %d days.", sender, terms.PrizePool, terms.DurationDays),
		Data:     map[string]string{"type": "war_counter", "warId": w.WarID},
		GroupKey: w.WarID,
	}, opponent)
	return s.reload(ctx, w.ID), nil
}

// Decline rejects a negotiable war and starts its retention timer.
func (s *Service) Decline(ctx context.Context, warID string) (*store.War, error) {
	w, err := s.negotiable(ctx, warID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.store.RejectWar(ctx, w.ID, w.Version, now, now.Add(s.cfg.Retention)); err != nil {
		return nil, err
	}
	s.logger.Info("war declined", "war", w.WarID)

	s.notify(ctx, notify.Message{
		Title:    "War declined",
		Body:     fmt.Sprintf("%s declined your war declaration.", w.DefenderTag),
		Data:     map[string]string{"type": "war_declined", "warId": w.WarID},
		GroupKey: w.WarID,
	}, w.ChallengerTag)
	return s.reload(ctx, w.ID), nil
}

// Get returns the newest war for a pair key.
func (s *Service) Get(ctx context.Context, warID string) (*store.War, error) {
	return s.store.LatestWar(ctx, NormalizeWarID(warID))
}

func (s *Service) History(ctx context.Context, tag string, limit int) ([]store.War, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ClanHistory(ctx, store.NormalizeTag(tag), limit)
}

// negotiable returns the live war for a pair key, or ErrWarNotFound when there
// is none still open for negotiation.
func (s *Service) negotiable(ctx context.Context, warID string) (*store.War, error) {
	w, err := s.store.LiveWar(ctx, NormalizeWarID(warID))
	if err != nil {
		return nil, err
	}
	if !w.Status.Negotiable() {
		return nil, store.ErrWarNotFound
	}
	return w, nil
}

func isStale(err error) bool {
	return errors.Is(err, store.ErrStaleWar)
}
