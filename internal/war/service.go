// Package war runs the clan war lifecycle: declaration and counter-offers,
// acceptance with stake escrow, live scoring from engagement events, and
// settlement of expired wars.
package war

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kayteedberserker/oreblogda-sub000/internal/ledger"
	"github.com/kayteedberserker/oreblogda-sub000/internal/notify"
	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

var (
	ErrSelfAcceptance   = errors.New("challenger cannot accept its own declaration")
	ErrAwaitingOpponent = errors.New("waiting for the other clan to respond")
	ErrNotParticipant   = errors.New("clan is not part of this war")
	ErrInvalidTerms     = errors.New("invalid war terms")
)

// AllowedDurations are the war lengths, in days, a declaration may ask for.
var AllowedDurations = []int{1, 3, 5, 7}

// Notifier delivers roster notifications without blocking.
type Notifier interface {
	NotifyClans(ctx context.Context, tags []string, msg notify.Message)
}

// Observer is told about every committed change to a war.
type Observer interface {
	WarUpdated(w *store.War)
}

type Config struct {
	// Retention is how long REJECTED and COMPLETED wars are kept.
	Retention time.Duration
	// NegotiationTTL declines PENDING/NEGOTIATING wars untouched this long.
	// Zero disables stale expiry.
	NegotiationTTL time.Duration
	// SweepWorkers bounds concurrent settlements in SweepExpired.
	SweepWorkers int
}

func DefaultConfig() Config {
	return Config{
		Retention:      30 * 24 * time.Hour,
		NegotiationTTL: 7 * 24 * time.Hour,
		SweepWorkers:   4,
	}
}

type Service struct {
	store     store.Store
	ledger    *ledger.Ledger
	notifier  Notifier
	observers []Observer
	logger    *slog.Logger
	now       func() time.Time
	cfg       Config
}

func NewService(st store.Store, l *ledger.Ledger, n Notifier, cfg Config, logger *slog.Logger) *Service {
	if cfg.SweepWorkers < 1 {
		cfg.SweepWorkers = 1
	}
	return &Service{
		store:    st,
		ledger:   l,
		notifier: n,
		logger:   logger,
		now:      time.Now,
		cfg:      cfg,
	}
}

// Observe registers o for war updates. Not safe to call once traffic flows.
func (s *Service) Observe(o Observer) {
	s.observers = append(s.observers, o)
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) notify(ctx context.Context, msg notify.Message, tags ...string) {
	if s.notifier == nil || len(tags) == 0 {
		return
	}
	s.notifier.NotifyClans(ctx, tags, msg)
}

func (s *Service) publish(w *store.War) {
	for _, o := range s.observers {
		o.WarUpdated(w)
	}
}

// reload reads a war after commit for observers; failures only skip the update.
func (s *Service) reload(ctx context.Context, id string) *store.War {
	w, err := s.store.GetWar(ctx, id)
	if err != nil {
		s.logger.Warn("reload war failed", "war", id, "err", err)
		return nil
	}
	s.publish(w)
	return w
}
