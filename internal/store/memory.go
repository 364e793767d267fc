package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store with the same conditional-update semantics as
// Postgres. A single mutex serializes every operation; WithTx holds it for the
// whole callback and works on a copy that replaces the live state on success.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

type memState struct {
	clans   map[string]*Clan
	wars    map[string]*War
	entries []LedgerEntry
}

func newMemState() *memState {
	return &memState{
		clans: make(map[string]*Clan),
		wars:  make(map[string]*War),
	}
}

func (s *memState) clone() *memState {
	out := &memState{
		clans:   make(map[string]*Clan, len(s.clans)),
		wars:    make(map[string]*War, len(s.wars)),
		// The journal is append-only; a capped slice forces the tx's appends to copy.
		entries: s.entries[:len(s.entries):len(s.entries)],
	}
	for k, c := range s.clans {
		out.clans[k] = cloneClan(c)
	}
	for k, w := range s.wars {
		out.wars[k] = cloneWar(w)
	}
	return out
}

func cloneClan(c *Clan) *Clan {
	cp := *c
	cp.Members = slices.Clone(c.Members)
	cp.Badges = slices.Clone(c.Badges)
	cp.WeeklyPointHistory = slices.Clone(c.WeeklyPointHistory)
	if c.ViceLeaderID != nil {
		v := *c.ViceLeaderID
		cp.ViceLeaderID = &v
	}
	if c.ActiveWarID != nil {
		v := *c.ActiveWarID
		cp.ActiveWarID = &v
	}
	return &cp
}

func cloneWar(w *War) *War {
	cp := *w
	if w.StartTime != nil {
		t := *w.StartTime
		cp.StartTime = &t
	}
	if w.EndTime != nil {
		t := *w.EndTime
		cp.EndTime = &t
	}
	if w.ExpiresAt != nil {
		t := *w.ExpiresAt
		cp.ExpiresAt = &t
	}
	if w.InitialStats != nil {
		v := *w.InitialStats
		cp.InitialStats = &v
	}
	if w.FinalSnapshot != nil {
		v := *w.FinalSnapshot
		cp.FinalSnapshot = &v
	}
	if w.Winner != nil {
		v := *w.Winner
		cp.Winner = &v
	}
	return &cp
}

// memTx runs operations against a state without locking; the caller holds the mutex.
type memTx struct {
	s *memState
}

func (m *Memory) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Memory) do(fn func(tx *memTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memTx{s: m.state})
}

// --- clans ---

func (t *memTx) clan(tag string) (*Clan, error) {
	c, ok := t.s.clans[tag]
	if !ok {
		return nil, ErrClanNotFound
	}
	return c, nil
}

func (t *memTx) CreateClan(_ context.Context, c *Clan) error {
	if _, ok := t.s.clans[c.Tag]; ok {
		return ErrClanExists
	}
	cp := cloneClan(c)
	if cp.Members == nil {
		cp.Members = []string{}
	}
	if cp.Badges == nil {
		cp.Badges = []string{}
	}
	t.s.clans[c.Tag] = cp
	return nil
}

func (t *memTx) GetClan(_ context.Context, tag string) (*Clan, error) {
	c, err := t.clan(tag)
	if err != nil {
		return nil, err
	}
	return cloneClan(c), nil
}

func (t *memTx) ListClans(_ context.Context) ([]Clan, error) {
	out := make([]Clan, 0, len(t.s.clans))
	for _, c := range t.s.clans {
		out = append(out, *cloneClan(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out, nil
}

func (t *memTx) DeleteClan(_ context.Context, tag string) error {
	c, err := t.clan(tag)
	if err != nil {
		return err
	}
	if c.IsInWar {
		return ErrAlreadyAtWar
	}
	delete(t.s.clans, tag)
	return nil
}

func (t *memTx) Award(_ context.Context, tag string, points int64, cat Category, now time.Time) error {
	c, err := t.clan(tag)
	if err != nil {
		return err
	}
	likes, comments, shares, views, posts := statDeltas(cat)
	c.TotalPoints += points
	c.CurrentWeeklyPoints += points
	c.Stats.Likes += likes
	c.Stats.Comments += comments
	c.Stats.WeeklyComments += comments
	c.Stats.Shares += shares
	c.Stats.Views += views
	c.Stats.TotalPosts += posts
	c.LastActive = now
	return nil
}

func (t *memTx) MoveToEscrow(_ context.Context, tag string, amount int64) error {
	c, err := t.clan(tag)
	if err != nil {
		return err
	}
	if c.SpendablePoints < amount {
		return ErrInsufficientFunds
	}
	c.SpendablePoints -= amount
	c.LockedPoints += amount
	return nil
}

func (t *memTx) ReleaseEscrow(_ context.Context, tag string, stake, payout int64) error {
	c, err := t.clan(tag)
	if err != nil {
		return err
	}
	if c.LockedPoints < stake {
		return ErrInsufficientEscrow
	}
	c.LockedPoints -= stake
	c.TotalPoints += payout
	return nil
}

func (t *memTx) AdjustSpendable(_ context.Context, tag string, delta int64) error {
	c, err := t.clan(tag)
	if err != nil {
		return err
	}
	if c.SpendablePoints+delta < 0 {
		return ErrInsufficientFunds
	}
	c.SpendablePoints += delta
	return nil
}

func (t *memTx) AdjustFollowers(_ context.Context, tag string, delta int64) error {
	c, err := t.clan(tag)
	if err != nil {
		return err
	}
	c.Stats.Followers = max(c.Stats.Followers+delta, 0)
	return nil
}

func (t *memTx) EnterWar(_ context.Context, tag, warID string) error {
	c, err := t.clan(tag)
	if err != nil {
		return err
	}
	if c.IsInWar {
		return ErrAlreadyAtWar
	}
	c.IsInWar = true
	c.ActiveWarID = &warID
	c.Stats.WarLikes = 0
	c.Stats.WarComments = 0
	return nil
}

func (t *memTx) LeaveWar(_ context.Context, tag, warID string) error {
	c, ok := t.s.clans[tag]
	if !ok || c.ActiveWarID == nil || *c.ActiveWarID != warID {
		return nil
	}
	c.IsInWar = false
	c.ActiveWarID = nil
	return nil
}

func (t *memTx) SetWarFlags(_ context.Context, tag string, warID *string) error {
	c, err := t.clan(tag)
	if err != nil {
		return err
	}
	c.IsInWar = warID != nil
	if warID != nil {
		v := *warID
		c.ActiveWarID = &v
	} else {
		c.ActiveWarID = nil
	}
	return nil
}

func (t *memTx) IncrementWarStat(_ context.Context, tag string, cat Category) error {
	c, err := t.clan(tag)
	if err != nil {
		return err
	}
	switch cat {
	case CategoryLike:
		c.Stats.WarLikes++
	case CategoryComment:
		c.Stats.WarComments++
	}
	return nil
}

func (t *memTx) AddMember(_ context.Context, tag, userID string) error {
	c, err := t.clan(tag)
	if err != nil {
		return err
	}
	if c.OnRoster(userID) || !c.RecruitmentOpen || len(c.Members) >= c.MaxSlots {
		return membershipRejection(c, userID)
	}
	c.Members = append(c.Members, userID)
	return nil
}

func (t *memTx) RemoveMember(_ context.Context, tag, userID string) error {
	c, err := t.clan(tag)
	if err != nil {
		return err
	}
	isVice := c.ViceLeaderID != nil && *c.ViceLeaderID == userID
	i := slices.Index(c.Members, userID)
	if i < 0 && !isVice {
		return ErrNotMember
	}
	if i >= 0 {
		c.Members = slices.Delete(c.Members, i, i+1)
	}
	if isVice {
		c.ViceLeaderID = nil
	}
	return nil
}

func (t *memTx) SetRecruitment(_ context.Context, tag string, open bool) error {
	c, err := t.clan(tag)
	if err != nil {
		return err
	}
	c.RecruitmentOpen = open
	return nil
}

func mergeBadges(current, add, remove []string) []string {
	out := make([]string, 0, len(current)+len(add))
	for _, b := range slices.Concat(current, add) {
		if slices.Contains(remove, b) || slices.Contains(out, b) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func (t *memTx) UpdateBadges(_ context.Context, tag string, add, remove []string) error {
	c, err := t.clan(tag)
	if err != nil {
		return err
	}
	c.Badges = mergeBadges(c.Badges, add, remove)
	return nil
}

func (t *memTx) PenalizeInactive(_ context.Context, tag string, cutoff, now time.Time) (*Penalty, error) {
	c, err := t.clan(tag)
	if err != nil {
		return nil, err
	}
	if c.LastActive.After(cutoff) {
		return nil, nil
	}
	p := &Penalty{Total: c.TotalPoints - c.TotalPoints/2, Spendable: c.SpendablePoints - c.SpendablePoints/2}
	c.TotalPoints /= 2
	c.SpendablePoints /= 2
	c.LastActive = now
	return p, nil
}

func (t *memTx) ApplyWeekly(_ context.Context, tag string, u WeeklyUpdate) error {
	c, err := t.clan(tag)
	if err != nil {
		return err
	}
	c.CurrentWeeklyPoints -= u.ClosedWeekPoints
	c.Stats.WeeklyComments -= u.ClosedWeekComments
	c.WeeklyPointHistory = slices.Clone(u.History)
	c.TotalPoints = c.TotalPoints * u.DecayPercent / 100
	c.Rank = u.Rank
	c.ConsecutiveWeeksNoDerank = u.Streak
	c.Badges = mergeBadges(c.Badges, u.AddBadges, u.RemoveBadges)
	return nil
}

// --- wars ---

func (t *memTx) war(id string) (*War, error) {
	w, ok := t.s.wars[id]
	if !ok {
		return nil, ErrWarNotFound
	}
	return w, nil
}

func (t *memTx) CreateWar(_ context.Context, w *War) error {
	for _, existing := range t.s.wars {
		if existing.WarID == w.WarID && !existing.Status.Terminal() {
			return ErrConflictExists
		}
	}
	t.s.wars[w.ID] = cloneWar(w)
	t.s.wars[w.ID].UpdatedAt = w.CreatedAt
	return nil
}

func (t *memTx) GetWar(_ context.Context, id string) (*War, error) {
	w, err := t.war(id)
	if err != nil {
		return nil, err
	}
	return cloneWar(w), nil
}

func (t *memTx) LockWar(ctx context.Context, id string) (*War, error) {
	return t.GetWar(ctx, id)
}

func (t *memTx) LiveWar(_ context.Context, warID string) (*War, error) {
	for _, w := range t.s.wars {
		if w.WarID == warID && !w.Status.Terminal() {
			return cloneWar(w), nil
		}
	}
	return nil, ErrWarNotFound
}

func (t *memTx) LatestWar(_ context.Context, warID string) (*War, error) {
	var latest *War
	for _, w := range t.s.wars {
		if w.WarID != warID {
			continue
		}
		if latest == nil || w.CreatedAt.After(latest.CreatedAt) {
			latest = w
		}
	}
	if latest == nil {
		return nil, ErrWarNotFound
	}
	return cloneWar(latest), nil
}

// guarded returns the war only if it still has the expected version and one of
// the allowed statuses.
func (t *memTx) guarded(id string, version int, allowed ...WarStatus) (*War, error) {
	w, ok := t.s.wars[id]
	if !ok || w.Version != version || !slices.Contains(allowed, w.Status) {
		return nil, ErrStaleWar
	}
	return w, nil
}

func (t *memTx) UpdateTerms(_ context.Context, id string, version int, terms Terms, sender string, now time.Time) error {
	w, err := t.guarded(id, version, StatusPending, StatusNegotiating)
	if err != nil {
		return err
	}
	w.Terms = terms
	w.Status = StatusNegotiating
	w.LastUpdatedByTag = sender
	w.Version++
	w.UpdatedAt = now
	return nil
}

func (t *memTx) ActivateWar(_ context.Context, id string, version int, a Activation) error {
	w, err := t.guarded(id, version, StatusPending, StatusNegotiating)
	if err != nil {
		return err
	}
	start, end, initial := a.Start, a.End, a.Initial
	w.Status = StatusActive
	w.StartTime = &start
	w.EndTime = &end
	w.InitialStats = &initial
	w.Progress = Progress{}
	w.Version++
	w.UpdatedAt = start
	return nil
}

func (t *memTx) RejectWar(_ context.Context, id string, version int, now, expiresAt time.Time) error {
	w, err := t.guarded(id, version, StatusPending, StatusNegotiating)
	if err != nil {
		return err
	}
	w.Status = StatusRejected
	w.ExpiresAt = &expiresAt
	w.Version++
	w.UpdatedAt = now
	return nil
}

func (t *memTx) CompleteWar(_ context.Context, id string, version int, c Completion) error {
	w, err := t.guarded(id, version, StatusActive)
	if err != nil {
		return err
	}
	winner, snapshot, expires := c.Winner, c.Snapshot, c.ExpiresAt
	w.Status = StatusCompleted
	w.Winner = &winner
	w.FinalSnapshot = &snapshot
	w.ExpiresAt = &expires
	w.Version++
	w.UpdatedAt = c.At
	return nil
}

func (t *memTx) AddScore(_ context.Context, id string, side Side, points int64, now time.Time) error {
	w, ok := t.s.wars[id]
	if !ok || w.Status != StatusActive || w.EndTime == nil || now.After(*w.EndTime) {
		return ErrStaleWar
	}
	if side == SideChallenger {
		w.Progress.ChallengerScore += points
	} else {
		w.Progress.DefenderScore += points
	}
	return nil
}

func (t *memTx) listWars(keep func(*War) bool, less func(a, b *War) bool) []War {
	var out []War
	for _, w := range t.s.wars {
		if keep(w) {
			out = append(out, *cloneWar(w))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(&out[i], &out[j]) })
	return out
}

func (t *memTx) ListExpiredActive(_ context.Context, now time.Time) ([]War, error) {
	return t.listWars(
		func(w *War) bool { return w.Status == StatusActive && w.EndTime != nil && w.EndTime.Before(now) },
		func(a, b *War) bool { return a.EndTime.Before(*b.EndTime) },
	), nil
}

func (t *memTx) ListActive(_ context.Context) ([]War, error) {
	return t.listWars(
		func(w *War) bool { return w.Status == StatusActive },
		func(a, b *War) bool { return a.WarID < b.WarID },
	), nil
}

func (t *memTx) ListStale(_ context.Context, cutoff time.Time) ([]War, error) {
	return t.listWars(
		func(w *War) bool { return w.Status.Negotiable() && w.UpdatedAt.Before(cutoff) },
		func(a, b *War) bool { return a.UpdatedAt.Before(b.UpdatedAt) },
	), nil
}

func (t *memTx) ClanHistory(_ context.Context, tag string, limit int) ([]War, error) {
	out := t.listWars(
		func(w *War) bool { return w.ChallengerTag == tag || w.DefenderTag == tag },
		func(a, b *War) bool { return a.CreatedAt.After(b.CreatedAt) },
	)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- journal ---

func (t *memTx) Record(_ context.Context, e LedgerEntry) error {
	t.s.entries = append(t.s.entries, e)
	return nil
}

func (t *memTx) History(_ context.Context, clanTag string, limit int) ([]LedgerEntry, error) {
	var out []LedgerEntry
	for i := len(t.s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if t.s.entries[i].ClanTag == clanTag {
			out = append(out, t.s.entries[i])
		}
	}
	return out, nil
}
