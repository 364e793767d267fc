package war

import (
	"context"
	"errors"

	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

// Counts reports whether an engagement of category cat scores in a war of type t.
func Counts(t store.WarType, cat store.Category) bool {
	switch t {
	case store.WarTypeAll, store.WarTypePoints:
		return true
	case store.WarTypeLikes:
		return cat == store.CategoryLike
	case store.WarTypeComments:
		return cat == store.CategoryComment
	}
	return false
}

// OnEvent routes an already-awarded engagement into the clan's active war.
// A war past its end time is settled instead and the event does not count.
func (s *Service) OnEvent(ctx context.Context, tag string, points int64, cat store.Category) error {
	c, err := s.store.GetClan(ctx, store.NormalizeTag(tag))
	if err != nil {
		return err
	}
	if !c.IsInWar || c.ActiveWarID == nil {
		return nil
	}
	w, err := s.store.GetWar(ctx, *c.ActiveWarID)
	if errors.Is(err, store.ErrWarNotFound) {
		s.logger.Warn("clan points at a missing war", "clan", c.Tag, "war", *c.ActiveWarID)
		return nil
	}
	if err != nil {
		return err
	}
	if w.Status != store.StatusActive {
		return nil
	}

	now := s.now()
	if w.Expired(now) {
		_, err := s.Settle(ctx, w.ID)
		return err
	}
	side, ok := w.SideOf(c.Tag)
	if !ok || !Counts(w.Terms.WarType, cat) {
		return nil
	}

	err = s.store.AddScore(ctx, w.ID, side, points, now)
	if isStale(err) {
		// Settled or expired between the read and the increment.
		return nil
	}
	if err != nil {
		return err
	}
	if cat == store.CategoryLike || cat == store.CategoryComment {
		if err := s.store.IncrementWarStat(ctx, c.Tag, cat); err != nil {
			s.logger.Warn("war stat increment failed", "clan", c.Tag, "err", err)
		}
	}
	if len(s.observers) > 0 {
		s.reload(ctx, w.ID)
	}
	return nil
}
