package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Category names the engagement that produced an award.
type Category string

const (
	CategoryLike    Category = "like"
	CategoryComment Category = "comment"
	CategoryShare   Category = "share"
	CategoryView    Category = "view"
	CategoryPost    Category = "post"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryLike, CategoryComment, CategoryShare, CategoryView, CategoryPost:
		return true
	}
	return false
}

type ClanStats struct {
	Views          int64 `json:"views"`
	Likes          int64 `json:"likes"`
	Shares         int64 `json:"shares"`
	Comments       int64 `json:"comments"`
	TotalPosts     int64 `json:"totalPosts"`
	Followers      int64 `json:"followers"`
	WeeklyComments int64 `json:"weeklyComments"`
	WarLikes       int64 `json:"warLikes"`
	WarComments    int64 `json:"warComments"`
}

// DefaultMaxSlots is the member capacity of a clan founded without one. The
// leader and vice leader do not take a slot.
const DefaultMaxSlots = 13

type Clan struct {
	Tag             string   `json:"tag"`
	Name            string   `json:"name"`
	LeaderID        string   `json:"leader"`
	ViceLeaderID    *string  `json:"viceLeader,omitempty"`
	Members         []string `json:"members"`
	MaxSlots        int      `json:"maxSlots"`
	RecruitmentOpen bool     `json:"recruitmentOpen"`

	TotalPoints         int64   `json:"totalPoints"`
	SpendablePoints     int64   `json:"spendablePoints"`
	LockedPoints        int64   `json:"lockedPoints"`
	CurrentWeeklyPoints int64   `json:"currentWeeklyPoints"`
	WeeklyPointHistory  []int64 `json:"weeklyPointHistory"`

	Stats                    ClanStats `json:"stats"`
	Badges                   []string  `json:"badges"`
	Rank                     int       `json:"rank"`
	ConsecutiveWeeksNoDerank int       `json:"consecutiveWeeksNoDerank"`

	IsInWar     bool    `json:"isInWar"`
	ActiveWarID *string `json:"activeWarId,omitempty"`

	LastActive time.Time `json:"lastActive"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NormalizeTag upper-cases and trims a clan tag.
func NormalizeTag(tag string) string {
	return strings.ToUpper(strings.TrimSpace(tag))
}

// Roster returns leader, vice leader and members without duplicates.
func (c *Clan) Roster() []string {
	out := make([]string, 0, len(c.Members)+2)
	seen := make(map[string]struct{}, len(c.Members)+2)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	add(c.LeaderID)
	if c.ViceLeaderID != nil {
		add(*c.ViceLeaderID)
	}
	for _, m := range c.Members {
		add(m)
	}
	return out
}

func (c *Clan) HasBadge(badge string) bool {
	return slices.Contains(c.Badges, badge)
}

func (c *Clan) OnRoster(userID string) bool {
	if c.LeaderID == userID || (c.ViceLeaderID != nil && *c.ViceLeaderID == userID) {
		return true
	}
	return slices.Contains(c.Members, userID)
}

// WeeklyUpdate is the persisted outcome of a weekly pass for one clan.
// ClosedWeekPoints and ClosedWeekComments are subtracted rather than zeroed so
// awards landing during the pass carry over into the new week.
type WeeklyUpdate struct {
	ClosedWeekPoints   int64
	ClosedWeekComments int64
	History            []int64
	DecayPercent       int64
	Rank               int
	Streak             int
	AddBadges          []string
	RemoveBadges       []string
}

// Penalty is what the inactivity penalty took from a clan.
type Penalty struct {
	Total     int64 `json:"total"`
	Spendable int64 `json:"spendable"`
}

// statDeltas maps a category onto the counter columns it bumps:
// likes, comments, shares, views, total_posts.
func statDeltas(cat Category) (likes, comments, shares, views, posts int64) {
	switch cat {
	case CategoryLike:
		likes = 1
	case CategoryComment:
		comments = 1
	case CategoryShare:
		shares = 1
	case CategoryView:
		views = 1
	case CategoryPost:
		posts = 1
	}
	return
}

const clanColumns = `tag, name, leader_id, vice_leader_id, members, max_slots, recruitment_open,
	total_points, spendable_points, locked_points, current_weekly_points, weekly_point_history,
	views, likes, shares, comments, total_posts, followers, weekly_comments, war_likes, war_comments,
	badges, rank, consecutive_weeks_no_derank, is_in_war, active_war_id, last_active, created_at`

// badgeSetExpr merges $add into badges and drops $remove, keeping first-seen order.
const badgeSetExpr = `ARRAY(
	SELECT t.b FROM unnest(badges || %s::text[]) WITH ORDINALITY AS t(b, n)
	WHERE NOT (t.b = ANY(%s::text[]))
	GROUP BY t.b ORDER BY min(t.n))`

type ClanStore struct {
	db querier
}

func NewClanStore(db querier) *ClanStore {
	return &ClanStore{db: db}
}

func scanClan(row pgx.Row) (*Clan, error) {
	c := &Clan{}
	err := row.Scan(
		&c.Tag, &c.Name, &c.LeaderID, &c.ViceLeaderID, &c.Members, &c.MaxSlots, &c.RecruitmentOpen,
		&c.TotalPoints, &c.SpendablePoints, &c.LockedPoints, &c.CurrentWeeklyPoints, &c.WeeklyPointHistory,
		&c.Stats.Views, &c.Stats.Likes, &c.Stats.Shares, &c.Stats.Comments, &c.Stats.TotalPosts,
		&c.Stats.Followers, &c.Stats.WeeklyComments, &c.Stats.WarLikes, &c.Stats.WarComments,
		&c.Badges, &c.Rank, &c.ConsecutiveWeeksNoDerank, &c.IsInWar, &c.ActiveWarID, &c.LastActive, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrClanNotFound
	}
	return c, err
}

func (s *ClanStore) CreateClan(ctx context.Context, c *Clan) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO clans (tag, name, leader_id, vice_leader_id, members, max_slots, recruitment_open,
		                   total_points, spendable_points, rank, last_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, c.Tag, c.Name, c.LeaderID, c.ViceLeaderID, nonNilStrings(c.Members), c.MaxSlots, c.RecruitmentOpen,
		c.TotalPoints, c.SpendablePoints, c.Rank, c.LastActive, c.CreatedAt)
	if isUniqueViolation(err) {
		return ErrClanExists
	}
	return err
}

func (s *ClanStore) GetClan(ctx context.Context, tag string) (*Clan, error) {
	return scanClan(s.db.QueryRow(ctx, `SELECT `+clanColumns+` FROM clans WHERE tag = $1`, tag))
}

func (s *ClanStore) ListClans(ctx context.Context) ([]Clan, error) {
	rows, err := s.db.Query(ctx, `SELECT `+clanColumns+` FROM clans ORDER BY tag`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Clan
	for rows.Next() {
		c, err := scanClan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *ClanStore) DeleteClan(ctx context.Context, tag string) error {
	return s.execOne(ctx, tag, ErrAlreadyAtWar, `DELETE FROM clans WHERE tag = $1 AND NOT is_in_war`, tag)
}

func (s *ClanStore) Award(ctx context.Context, tag string, points int64, cat Category, now time.Time) error {
	likes, comments, shares, views, posts := statDeltas(cat)
	ct, err := s.db.Exec(ctx, `
		UPDATE clans
		SET total_points = total_points + $2,
		    current_weekly_points = current_weekly_points + $2,
		    likes = likes + $3,
		    comments = comments + $4,
		    weekly_comments = weekly_comments + $4,
		    shares = shares + $5,
		    views = views + $6,
		    total_posts = total_posts + $7,
		    last_active = $8
		WHERE tag = $1
	`, tag, points, likes, comments, shares, views, posts, now)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrClanNotFound
	}
	return nil
}

func (s *ClanStore) MoveToEscrow(ctx context.Context, tag string, amount int64) error {
	return s.execOne(ctx, tag, ErrInsufficientFunds, `
		UPDATE clans
		SET spendable_points = spendable_points - $2,
		    locked_points = locked_points + $2
		WHERE tag = $1 AND spendable_points >= $2
	`, tag, amount)
}

func (s *ClanStore) ReleaseEscrow(ctx context.Context, tag string, stake, payout int64) error {
	return s.execOne(ctx, tag, ErrInsufficientEscrow, `
		UPDATE clans
		SET locked_points = locked_points - $2,
		    total_points = total_points + $3
		WHERE tag = $1 AND locked_points >= $2
	`, tag, stake, payout)
}

// AdjustSpendable applies delta to spendable points, refusing to go below zero.
func (s *ClanStore) AdjustSpendable(ctx context.Context, tag string, delta int64) error {
	return s.execOne(ctx, tag, ErrInsufficientFunds, `
		UPDATE clans SET spendable_points = spendable_points + $2
		WHERE tag = $1 AND spendable_points + $2 >= 0
	`, tag, delta)
}

func (s *ClanStore) AdjustFollowers(ctx context.Context, tag string, delta int64) error {
	return s.execOne(ctx, tag, ErrClanNotFound, `
		UPDATE clans SET followers = GREATEST(followers + $2, 0) WHERE tag = $1
	`, tag, delta)
}

// EnterWar marks the clan as fighting warID. War counters restart from zero.
func (s *ClanStore) EnterWar(ctx context.Context, tag, warID string) error {
	return s.execOne(ctx, tag, ErrAlreadyAtWar, `
		UPDATE clans
		SET is_in_war = TRUE, active_war_id = $2, war_likes = 0, war_comments = 0
		WHERE tag = $1 AND NOT is_in_war
	`, tag, warID)
}

// LeaveWar clears the war flags only if they still point at warID.
func (s *ClanStore) LeaveWar(ctx context.Context, tag, warID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE clans SET is_in_war = FALSE, active_war_id = NULL
		WHERE tag = $1 AND active_war_id = $2
	`, tag, warID)
	return err
}

// SetWarFlags overwrites the denormalized war flags. Used by reconciliation only.
func (s *ClanStore) SetWarFlags(ctx context.Context, tag string, warID *string) error {
	return s.execOne(ctx, tag, ErrClanNotFound, `
		UPDATE clans SET is_in_war = $2, active_war_id = $3 WHERE tag = $1
	`, tag, warID != nil, warID)
}

func (s *ClanStore) IncrementWarStat(ctx context.Context, tag string, cat Category) error {
	var col string
	switch cat {
	case CategoryLike:
		col = "war_likes"
	case CategoryComment:
		col = "war_comments"
	default:
		return nil
	}
	return s.execOne(ctx, tag, ErrClanNotFound,
		`UPDATE clans SET `+col+` = `+col+` + 1 WHERE tag = $1`, tag)
}

func (s *ClanStore) AddMember(ctx context.Context, tag, userID string) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE clans SET members = array_append(members, $2)
		WHERE tag = $1
		  AND recruitment_open
		  AND cardinality(members) < max_slots
		  AND NOT ($2 = ANY(members))
		  AND leader_id <> $2
		  AND vice_leader_id IS DISTINCT FROM $2
	`, tag, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	c, err := s.GetClan(ctx, tag)
	if err != nil {
		return err
	}
	return membershipRejection(c, userID)
}

func (s *ClanStore) RemoveMember(ctx context.Context, tag, userID string) error {
	return s.execOne(ctx, tag, ErrNotMember, `
		UPDATE clans
		SET members = array_remove(members, $2),
		    vice_leader_id = CASE WHEN vice_leader_id = $2 THEN NULL ELSE vice_leader_id END
		WHERE tag = $1 AND ($2 = ANY(members) OR vice_leader_id = $2)
	`, tag, userID)
}

func (s *ClanStore) SetRecruitment(ctx context.Context, tag string, open bool) error {
	return s.execOne(ctx, tag, ErrClanNotFound,
		`UPDATE clans SET recruitment_open = $2 WHERE tag = $1`, tag, open)
}

func (s *ClanStore) UpdateBadges(ctx context.Context, tag string, add, remove []string) error {
	return s.execOne(ctx, tag, ErrClanNotFound,
		`UPDATE clans SET badges = `+sprintfBadges("$2", "$3")+` WHERE tag = $1`,
		tag, nonNilStrings(add), nonNilStrings(remove))
}

// PenalizeInactive halves total and spendable points if the clan has been idle
// since cutoff and returns the points removed. It returns nil when the clan
// was active.
func (s *ClanStore) PenalizeInactive(ctx context.Context, tag string, cutoff, now time.Time) (*Penalty, error) {
	var p Penalty
	err := s.db.QueryRow(ctx, `
		WITH old AS (
			SELECT tag, total_points, spendable_points FROM clans
			WHERE tag = $1 AND last_active <= $2
			FOR UPDATE
		)
		UPDATE clans c
		SET total_points = old.total_points / 2,
		    spendable_points = old.spendable_points / 2,
		    last_active = $3
		FROM old
		WHERE c.tag = old.tag
		RETURNING old.total_points - c.total_points, old.spendable_points - c.spendable_points
	`, tag, cutoff, now).Scan(&p.Total, &p.Spendable)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *ClanStore) ApplyWeekly(ctx context.Context, tag string, u WeeklyUpdate) error {
	return s.execOne(ctx, tag, ErrClanNotFound, `
		UPDATE clans
		SET current_weekly_points = current_weekly_points - $2,
		    weekly_comments = weekly_comments - $3,
		    weekly_point_history = $4,
		    total_points = total_points * $5 / 100,
		    rank = $6,
		    consecutive_weeks_no_derank = $7,
		    badges = `+sprintfBadges("$8", "$9")+`
		WHERE tag = $1
	`, tag, u.ClosedWeekPoints, u.ClosedWeekComments, nonNilInts(u.History), u.DecayPercent,
		u.Rank, u.Streak, nonNilStrings(u.AddBadges), nonNilStrings(u.RemoveBadges))
}

// execOne runs a single-row conditional update. When nothing matched it
// tells a missing clan apart from a failed predicate.
func (s *ClanStore) execOne(ctx context.Context, tag string, predicateErr error, sql string, args ...any) error {
	ct, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clans WHERE tag = $1)`, tag).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrClanNotFound
	}
	return predicateErr
}

func sprintfBadges(add, remove string) string {
	return fmt.Sprintf(badgeSetExpr, add, remove)
}

func membershipRejection(c *Clan, userID string) error {
	switch {
	case c.OnRoster(userID):
		return ErrAlreadyMember
	case !c.RecruitmentOpen:
		return ErrRecruitmentClosed
	default:
		return ErrRosterFull
	}
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilInts(v []int64) []int64 {
	if v == nil {
		return []int64{}
	}
	return v
}
