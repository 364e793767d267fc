// Package store persists clans, wars and the clan ledger journal.
//
// Every balance or war mutation is a single conditional statement, so callers
// never read-modify-write contended counters. Multi-row changes (war
// activation, settlement) run through WithTx.
package store

import (
	"context"
	"time"
)

// Clans is the clan roster and balance surface.
type Clans interface {
	CreateClan(ctx context.Context, c *Clan) error
	GetClan(ctx context.Context, tag string) (*Clan, error)
	ListClans(ctx context.Context) ([]Clan, error)
	DeleteClan(ctx context.Context, tag string) error

	Award(ctx context.Context, tag string, points int64, cat Category, now time.Time) error
	MoveToEscrow(ctx context.Context, tag string, amount int64) error
	ReleaseEscrow(ctx context.Context, tag string, stake, payout int64) error
	AdjustSpendable(ctx context.Context, tag string, delta int64) error
	AdjustFollowers(ctx context.Context, tag string, delta int64) error

	EnterWar(ctx context.Context, tag, warID string) error
	LeaveWar(ctx context.Context, tag, warID string) error
	SetWarFlags(ctx context.Context, tag string, warID *string) error
	IncrementWarStat(ctx context.Context, tag string, cat Category) error

	AddMember(ctx context.Context, tag, userID string) error
	RemoveMember(ctx context.Context, tag, userID string) error
	SetRecruitment(ctx context.Context, tag string, open bool) error

	UpdateBadges(ctx context.Context, tag string, add, remove []string) error
	PenalizeInactive(ctx context.Context, tag string, cutoff, now time.Time) (*Penalty, error)
	ApplyWeekly(ctx context.Context, tag string, u WeeklyUpdate) error
}

// Wars stores war records. Transitions are guarded by the record version.
type Wars interface {
	CreateWar(ctx context.Context, w *War) error
	GetWar(ctx context.Context, id string) (*War, error)
	LockWar(ctx context.Context, id string) (*War, error)
	LiveWar(ctx context.Context, warID string) (*War, error)
	LatestWar(ctx context.Context, warID string) (*War, error)

	UpdateTerms(ctx context.Context, id string, version int, terms Terms, sender string, now time.Time) error
	ActivateWar(ctx context.Context, id string, version int, a Activation) error
	RejectWar(ctx context.Context, id string, version int, now, expiresAt time.Time) error
	CompleteWar(ctx context.Context, id string, version int, c Completion) error
	AddScore(ctx context.Context, id string, side Side, points int64, now time.Time) error

	ListExpiredActive(ctx context.Context, now time.Time) ([]War, error)
	ListActive(ctx context.Context) ([]War, error)
	ListStale(ctx context.Context, cutoff time.Time) ([]War, error)
	ClanHistory(ctx context.Context, tag string, limit int) ([]War, error)
}

// Journal records ledger entries.
type Journal interface {
	Record(ctx context.Context, e LedgerEntry) error
	History(ctx context.Context, clanTag string, limit int) ([]LedgerEntry, error)
}

// Tx is the view handed to a WithTx callback.
type Tx interface {
	Clans
	Wars
	Journal
}

// Store is the full persistence surface.
type Store interface {
	Tx
	// WithTx runs fn atomically. Any error from fn rolls everything back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)
