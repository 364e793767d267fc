// Package ledger owns clan balances: awards, war escrow, and the coin-shop
// debit/credit pair. Every mutation is one conditional statement in the store.
// Balance-moving operations commit together with their journal entries.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

var ErrInvalidAmount = errors.New("amount must be positive")

type Ledger struct {
	store   store.Store // nil once bound to a transaction
	clans   store.Clans
	journal store.Journal
	logger  *slog.Logger
	now     func() time.Time
}

func New(st store.Store, logger *slog.Logger) *Ledger {
	return &Ledger{store: st, clans: st, journal: st, logger: logger, now: time.Now}
}

// With returns a ledger bound to tx, sharing logger and clock.
func (l *Ledger) With(tx store.Tx) *Ledger {
	return &Ledger{clans: tx, journal: tx, logger: l.logger, now: l.now}
}

// atomically runs fn against a ledger bound to a transaction. A ledger that is
// already bound runs fn directly inside the caller's transaction.
func (l *Ledger) atomically(ctx context.Context, fn func(*Ledger) error) error {
	if l.store == nil {
		return fn(l)
	}
	return l.store.WithTx(ctx, func(tx store.Tx) error {
		return fn(l.With(tx))
	})
}

// SetClock replaces the time source.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Award credits points to total and weekly points and bumps the stat counter
// for cat. Awards are not journaled; the stat counters are their record.
func (l *Ledger) Award(ctx context.Context, tag string, points int64, cat store.Category) error {
	if !cat.Valid() {
		return fmt.Errorf("award %s: unknown category %q", tag, cat)
	}
	if points < 0 {
		return ErrInvalidAmount
	}
	return l.clans.Award(ctx, tag, points, cat, l.now())
}

// MoveToEscrow locks amount of spendable points for a war stake.
func (l *Ledger) MoveToEscrow(ctx context.Context, tag string, amount int64, warID string) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	return l.atomically(ctx, func(tl *Ledger) error {
		if err := tl.clans.MoveToEscrow(ctx, tag, amount); err != nil {
			return err
		}
		return tl.record(ctx, tag, store.EntryEscrow, -amount, &warID)
	})
}

// ReleaseEscrow unlocks a settled stake and credits payout to total points.
func (l *Ledger) ReleaseEscrow(ctx context.Context, tag string, stake, payout int64, warID string) error {
	if stake < 0 || payout < 0 {
		return ErrInvalidAmount
	}
	return l.atomically(ctx, func(tl *Ledger) error {
		if err := tl.clans.ReleaseEscrow(ctx, tag, stake, payout); err != nil {
			return err
		}
		if err := tl.record(ctx, tag, store.EntryRelease, -stake, &warID); err != nil {
			return err
		}
		return tl.record(ctx, tag, store.EntryPayout, payout, &warID)
	})
}

func (l *Ledger) Spend(ctx context.Context, tag string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return l.atomically(ctx, func(tl *Ledger) error {
		if err := tl.clans.AdjustSpendable(ctx, tag, -amount); err != nil {
			return err
		}
		return tl.record(ctx, tag, store.EntrySpend, -amount, nil)
	})
}

func (l *Ledger) Refund(ctx context.Context, tag string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return l.atomically(ctx, func(tl *Ledger) error {
		if err := tl.clans.AdjustSpendable(ctx, tag, amount); err != nil {
			return err
		}
		return tl.record(ctx, tag, store.EntryRefund, amount, nil)
	})
}

// PenalizeInactive halves total and spendable points of a clan idle for at
// least idle and returns the points removed, or nil if the clan was active.
// The halving and its journal entries commit together.
func (l *Ledger) PenalizeInactive(ctx context.Context, tag string, idle time.Duration) (*store.Penalty, error) {
	now := l.now()
	var out *store.Penalty
	err := l.atomically(ctx, func(tl *Ledger) error {
		p, err := tl.clans.PenalizeInactive(ctx, tag, now.Add(-idle), now)
		if err != nil || p == nil {
			return err
		}
		if err := tl.record(ctx, tag, store.EntryPenalty, -p.Total, nil); err != nil {
			return err
		}
		if err := tl.record(ctx, tag, store.EntryForfeit, -p.Spendable, nil); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) History(ctx context.Context, tag string, limit int) ([]store.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return l.journal.History(ctx, tag, limit)
}

func (l *Ledger) record(ctx context.Context, tag string, typ store.EntryType, amount int64, warID *string) error {
	err := l.journal.Record(ctx, store.LedgerEntry{
		ID:        uuid.NewString(),
		ClanTag:   tag,
		Type:      typ,
		Amount:    amount,
		WarID:     warID,
		CreatedAt: l.now(),
	})
	if err != nil {
		return fmt.Errorf("journal %s %s: %w", typ, tag, err)
	}
	return nil
}
