// Package engagement turns post interactions into clan points, badge checks
// and war progress.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kayteedberserker/oreblogda-sub000/internal/badge"
	"github.com/kayteedberserker/oreblogda-sub000/internal/ledger"
	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
	"github.com/kayteedberserker/oreblogda-sub000/internal/war"
)

var ErrInvalidEvent = errors.New("invalid interaction")

// Event is one scored interaction on a clan-tagged post. Points are computed
// by the caller.
type Event struct {
	PostID   string         `json:"postId"`
	ClanTag  string         `json:"clanTag"`
	Category store.Category `json:"category"`
	Points   int64          `json:"points"`
}

func (e Event) validate() error {
	switch {
	case store.NormalizeTag(e.ClanTag) == "":
		return fmt.Errorf("%w: missing clan tag", ErrInvalidEvent)
	case !e.Category.Valid():
		return fmt.Errorf("%w: category %q", ErrInvalidEvent, e.Category)
	case e.Points < 0:
		return fmt.Errorf("%w: negative points", ErrInvalidEvent)
	case e.Category == store.CategoryLike && e.PostID == "":
		return fmt.Errorf("%w: like without post id", ErrInvalidEvent)
	}
	return nil
}

// Outcome summarizes what an event changed beyond the award itself.
type Outcome struct {
	Badges  []string `json:"badges,omitempty"`
	OneShot bool     `json:"oneShot"`
}

// BoardSync refreshes the live leaderboard entries of clans.
type BoardSync interface {
	Sync(ctx context.Context, tags ...string)
}

type Pipeline struct {
	ledger *ledger.Ledger
	badges *badge.Engine
	wars   *war.Service
	boards BoardSync
	logger *slog.Logger
}

func NewPipeline(l *ledger.Ledger, badges *badge.Engine, wars *war.Service, logger *slog.Logger) *Pipeline {
	return &Pipeline{ledger: l, badges: badges, wars: wars, logger: logger}
}

// SetBoards keeps live leaderboards current with every award.
func (p *Pipeline) SetBoards(b BoardSync) {
	p.boards = b
}

// Record awards the event to the clan, then runs badge checks and war
// progress. Only the award can fail the call; later steps are logged.
func (p *Pipeline) Record(ctx context.Context, e Event) (Outcome, error) {
	var out Outcome
	if err := e.validate(); err != nil {
		return out, err
	}
	tag := store.NormalizeTag(e.ClanTag)

	if err := p.ledger.Award(ctx, tag, e.Points, e.Category); err != nil {
		return out, err
	}
	if p.boards != nil {
		p.boards.Sync(ctx, tag)
	}

	if d, err := p.badges.Refresh(ctx, tag); err != nil {
		p.logger.Warn("badge refresh failed", "clan", tag, "err", err)
	} else {
		out.Badges = d.Add
	}

	if e.Category == store.CategoryLike {
		awarded, err := p.badges.RecordLike(ctx, e.PostID, tag)
		if err != nil {
			p.logger.Warn("one-shot check failed", "clan", tag, "post", e.PostID, "err", err)
		}
		out.OneShot = awarded
	}

	if err := p.wars.OnEvent(ctx, tag, e.Points, e.Category); err != nil {
		p.logger.Error("war progress failed", "clan", tag, "err", err)
	}
	return out, nil
}
