package leaderboard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

// ClanReader loads the clan state a board entry is built from.
type ClanReader interface {
	GetClan(ctx context.Context, tag string) (*store.Clan, error)
}

// Tracker keeps the live boards in step with clan scores. Board writes are
// best effort: a failure is logged and repaired by the next publish.
type Tracker struct {
	boards  *Service
	clans   ClanReader
	logger  *slog.Logger
	timeout time.Duration
}

func NewTracker(boards *Service, clans ClanReader, logger *slog.Logger) *Tracker {
	return &Tracker{boards: boards, clans: clans, logger: logger, timeout: 2 * time.Second}
}

// Sync rewrites the board entries of tags from the store. Clans that no
// longer exist are removed.
func (t *Tracker) Sync(ctx context.Context, tags ...string) {
	for _, tag := range tags {
		c, err := t.clans.GetClan(ctx, tag)
		switch {
		case errors.Is(err, store.ErrClanNotFound):
			err = t.boards.Remove(ctx, tag)
		case err == nil:
			err = t.boards.Update(ctx, c)
		}
		if err != nil {
			t.logger.Warn("leaderboard sync failed", "clan", tag, "err", err)
		}
	}
}

// WarUpdated resyncs both sides of a settled war.
func (t *Tracker) WarUpdated(w *store.War) {
	if w == nil || w.Status != store.StatusCompleted {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	t.Sync(ctx, w.ChallengerTag, w.DefenderTag)
}
