package store

import (
	"context"
	"time"
)

func (m *Memory) CreateClan(ctx context.Context, c *Clan) error {
	return m.do(func(tx *memTx) error { return tx.CreateClan(ctx, c) })
}

func (m *Memory) GetClan(ctx context.Context, tag string) (*Clan, error) {
	var out *Clan
	err := m.do(func(tx *memTx) error {
		var err error
		out, err = tx.GetClan(ctx, tag)
		return err
	})
	return out, err
}

func (m *Memory) ListClans(ctx context.Context) ([]Clan, error) {
	var out []Clan
	err := m.do(func(tx *memTx) error {
		var err error
		out, err = tx.ListClans(ctx)
		return err
	})
	return out, err
}

func (m *Memory) DeleteClan(ctx context.Context, tag string) error {
	return m.do(func(tx *memTx) error { return tx.DeleteClan(ctx, tag) })
}

func (m *Memory) Award(ctx context.Context, tag string, points int64, cat Category, now time.Time) error {
	return m.do(func(tx *memTx) error { return tx.Award(ctx, tag, points, cat, now) })
}

func (m *Memory) MoveToEscrow(ctx context.Context, tag string, amount int64) error {
	return m.do(func(tx *memTx) error { return tx.MoveToEscrow(ctx, tag, amount) })
}

func (m *Memory) ReleaseEscrow(ctx context.Context, tag string, stake, payout int64) error {
	return m.do(func(tx *memTx) error { return tx.ReleaseEscrow(ctx, tag, stake, payout) })
}

func (m *Memory) AdjustSpendable(ctx context.Context, tag string, delta int64) error {
	return m.do(func(tx *memTx) error { return tx.AdjustSpendable(ctx, tag, delta) })
}

func (m *Memory) AdjustFollowers(ctx context.Context, tag string, delta int64) error {
	return m.do(func(tx *memTx) error { return tx.AdjustFollowers(ctx, tag, delta) })
}

func (m *Memory) EnterWar(ctx context.Context, tag, warID string) error {
	return m.do(func(tx *memTx) error { return tx.EnterWar(ctx, tag, warID) })
}

func (m *Memory) LeaveWar(ctx context.Context, tag, warID string) error {
	return m.do(func(tx *memTx) error { return tx.LeaveWar(ctx, tag, warID) })
}

func (m *Memory) SetWarFlags(ctx context.Context, tag string, warID *string) error {
	return m.do(func(tx *memTx) error { return tx.SetWarFlags(ctx, tag, warID) })
}

func (m *Memory) IncrementWarStat(ctx context.Context, tag string, cat Category) error {
	return m.do(func(tx *memTx) error { return tx.IncrementWarStat(ctx, tag, cat) })
}

func (m *Memory) AddMember(ctx context.Context, tag, userID string) error {
	return m.do(func(tx *memTx) error { return tx.AddMember(ctx, tag, userID) })
}

func (m *Memory) RemoveMember(ctx context.Context, tag, userID string) error {
	return m.do(func(tx *memTx) error { return tx.RemoveMember(ctx, tag, userID) })
}

func (m *Memory) SetRecruitment(ctx context.Context, tag string, open bool) error {
	return m.do(func(tx *memTx) error { return tx.SetRecruitment(ctx, tag, open) })
}

func (m *Memory) UpdateBadges(ctx context.Context, tag string, add, remove []string) error {
	return m.do(func(tx *memTx) error { return tx.UpdateBadges(ctx, tag, add, remove) })
}

func (m *Memory) PenalizeInactive(ctx context.Context, tag string, cutoff, now time.Time) (*Penalty, error) {
	var out *Penalty
	err := m.do(func(tx *memTx) error {
		var err error
		out, err = tx.PenalizeInactive(ctx, tag, cutoff, now)
		return err
	})
	return out, err
}

func (m *Memory) ApplyWeekly(ctx context.Context, tag string, u WeeklyUpdate) error {
	return m.do(func(tx *memTx) error { return tx.ApplyWeekly(ctx, tag, u) })
}

func (m *Memory) CreateWar(ctx context.Context, w *War) error {
	return m.do(func(tx *memTx) error { return tx.CreateWar(ctx, w) })
}

func (m *Memory) GetWar(ctx context.Context, id string) (*War, error) {
	var out *War
	err := m.do(func(tx *memTx) error {
		var err error
		out, err = tx.GetWar(ctx, id)
		return err
	})
	return out, err
}

func (m *Memory) LockWar(ctx context.Context, id string) (*War, error) {
	var out *War
	err := m.do(func(tx *memTx) error {
		var err error
		out, err = tx.LockWar(ctx, id)
		return err
	})
	return out, err
}

func (m *Memory) LiveWar(ctx context.Context, warID string) (*War, error) {
	var out *War
	err := m.do(func(tx *memTx) error {
		var err error
		out, err = tx.LiveWar(ctx, warID)
		return err
	})
	return out, err
}

func (m *Memory) LatestWar(ctx context.Context, warID string) (*War, error) {
	var out *War
	err := m.do(func(tx *memTx) error {
		var err error
		out, err = tx.LatestWar(ctx, warID)
		return err
	})
	return out, err
}

func (m *Memory) UpdateTerms(ctx context.Context, id string, version int, terms Terms, sender string, now time.Time) error {
	return m.do(func(tx *memTx) error { return tx.UpdateTerms(ctx, id, version, terms, sender, now) })
}

func (m *Memory) ActivateWar(ctx context.Context, id string, version int, a Activation) error {
	return m.do(func(tx *memTx) error { return tx.ActivateWar(ctx, id, version, a) })
}

func (m *Memory) RejectWar(ctx context.Context, id string, version int, now, expiresAt time.Time) error {
	return m.do(func(tx *memTx) error { return tx.RejectWar(ctx, id, version, now, expiresAt) })
}

func (m *Memory) CompleteWar(ctx context.Context, id string, version int, c Completion) error {
	return m.do(func(tx *memTx) error { return tx.CompleteWar(ctx, id, version, c) })
}

func (m *Memory) AddScore(ctx context.Context, id string, side Side, points int64, now time.Time) error {
	return m.do(func(tx *memTx) error { return tx.AddScore(ctx, id, side, points, now) })
}

func (m *Memory) ListExpiredActive(ctx context.Context, now time.Time) ([]War, error) {
	var out []War
	err := m.do(func(tx *memTx) error {
		var err error
		out, err = tx.ListExpiredActive(ctx, now)
		return err
	})
	return out, err
}

func (m *Memory) ListActive(ctx context.Context) ([]War, error) {
	var out []War
	err := m.do(func(tx *memTx) error {
		var err error
		out, err = tx.ListActive(ctx)
		return err
	})
	return out, err
}

func (m *Memory) ListStale(ctx context.Context, cutoff time.Time) ([]War, error) {
	var out []War
	err := m.do(func(tx *memTx) error {
		var err error
		out, err = tx.ListStale(ctx, cutoff)
		return err
	})
	return out, err
}

func (m *Memory) ClanHistory(ctx context.Context, tag string, limit int) ([]War, error) {
	var out []War
	err := m.do(func(tx *memTx) error {
		var err error
		out, err = tx.ClanHistory(ctx, tag, limit)
		return err
	})
	return out, err
}

func (m *Memory) Record(ctx context.Context, e LedgerEntry) error {
	return m.do(func(tx *memTx) error { return tx.Record(ctx, e) })
}

func (m *Memory) History(ctx context.Context, clanTag string, limit int) ([]LedgerEntry, error) {
	var out []LedgerEntry
	err := m.do(func(tx *memTx) error {
		var err error
		out, err = tx.History(ctx, clanTag, limit)
		return err
	})
	return out, err
}
