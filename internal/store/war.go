package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

type WarStatus string

const (
	StatusPending     WarStatus = "PENDING"
	StatusNegotiating WarStatus = "NEGOTIATING"
	StatusActive      WarStatus = "ACTIVE"
	StatusCompleted   WarStatus = "COMPLETED"
	StatusRejected    WarStatus = "REJECTED"
)

// Terminal reports whether no further transition can leave this status.
func (s WarStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Negotiable reports whether terms may still change.
func (s WarStatus) Negotiable() bool {
	return s == StatusPending || s == StatusNegotiating
}

type WarType string

const (
	WarTypePoints   WarType = "POINTS"
	WarTypeLikes    WarType = "LIKES"
	WarTypeComments WarType = "COMMENTS"
	WarTypeAll      WarType = "ALL"
)

func (t WarType) Valid() bool {
	switch t {
	case WarTypePoints, WarTypeLikes, WarTypeComments, WarTypeAll:
		return true
	}
	return false
}

type WinCondition string

const (
	WinFull       WinCondition = "FULL"
	WinPercentage WinCondition = "PERCENTAGE"
)

func (w WinCondition) Valid() bool {
	return w == WinFull || w == WinPercentage
}

// Draw is the winner sentinel for a tied war.
const Draw = "DRAW"

type Side int

const (
	SideChallenger Side = iota
	SideDefender
)

func (s Side) String() string {
	if s == SideChallenger {
		return "challenger"
	}
	return "defender"
}

// WarKey derives the pair identity: both tags sorted and joined with -VS-.
func WarKey(a, b string) string {
	tags := []string{NormalizeTag(a), NormalizeTag(b)}
	sort.Strings(tags)
	return tags[0] + "-VS-" + tags[1]
}

type Terms struct {
	PrizePool    int64        `json:"prizePool"`
	DurationDays int          `json:"durationDays"`
	WinCondition WinCondition `json:"winCondition"`
	WarType      WarType      `json:"warType"`
}

type Progress struct {
	ChallengerScore int64 `json:"challengerScore"`
	DefenderScore   int64 `json:"defenderScore"`
}

type StatSnapshot struct {
	Points   int64 `json:"points"`
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
}

type InitialStats struct {
	Challenger StatSnapshot `json:"challenger"`
	Defender   StatSnapshot `json:"defender"`
}

type War struct {
	ID               string        `json:"id"`
	WarID            string        `json:"warId"`
	ChallengerTag    string        `json:"challengerTag"`
	DefenderTag      string        `json:"defenderTag"`
	Status           WarStatus     `json:"status"`
	Terms            Terms         `json:"terms"`
	LastUpdatedByTag string        `json:"lastUpdatedByTag"`
	StartTime        *time.Time    `json:"startTime,omitempty"`
	EndTime          *time.Time    `json:"endTime,omitempty"`
	InitialStats     *InitialStats `json:"initialStats,omitempty"`
	Progress         Progress      `json:"currentProgress"`
	Winner           *string       `json:"winner,omitempty"`
	FinalSnapshot    *Progress     `json:"finalSnapshot,omitempty"`
	ExpiresAt        *time.Time    `json:"expiresAt,omitempty"`
	Version          int           `json:"version"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// SideOf returns which side tag fights on.
func (w *War) SideOf(tag string) (Side, bool) {
	switch tag {
	case w.ChallengerTag:
		return SideChallenger, true
	case w.DefenderTag:
		return SideDefender, true
	}
	return 0, false
}

// Opponent returns the other participant, or "" if tag is not in the war.
func (w *War) Opponent(tag string) string {
	switch tag {
	case w.ChallengerTag:
		return w.DefenderTag
	case w.DefenderTag:
		return w.ChallengerTag
	}
	return ""
}

// Expired reports whether an active war has run past its end time.
func (w *War) Expired(now time.Time) bool {
	return w.Status == StatusActive && w.EndTime != nil && now.After(*w.EndTime)
}

// Activation carries everything written when a war goes ACTIVE.
type Activation struct {
	Start   time.Time
	End     time.Time
	Initial InitialStats
}

// Completion carries everything written when a war settles.
type Completion struct {
	Winner    string
	Snapshot  Progress
	At        time.Time
	ExpiresAt time.Time
}

const warColumns = `id, war_id, challenger_tag, defender_tag, status,
	prize_pool, duration_days, win_condition, war_type, last_updated_by_tag,
	start_time, end_time, initial_stats, challenger_score, defender_score,
	winner, final_snapshot, expires_at, version, created_at, updated_at`

type WarStore struct {
	db querier
}

func NewWarStore(db querier) *WarStore {
	return &WarStore{db: db}
}

func scanWar(row pgx.Row) (*War, error) {
	w := &War{}
	var initial, final []byte
	err := row.Scan(
		&w.ID, &w.WarID, &w.ChallengerTag, &w.DefenderTag, &w.Status,
		&w.Terms.PrizePool, &w.Terms.DurationDays, &w.Terms.WinCondition, &w.Terms.WarType, &w.LastUpdatedByTag,
		&w.StartTime, &w.EndTime, &initial, &w.Progress.ChallengerScore, &w.Progress.DefenderScore,
		&w.Winner, &final, &w.ExpiresAt, &w.Version, &w.CreatedAt, &w.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWarNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(initial) > 0 {
		w.InitialStats = &InitialStats{}
		if err := json.Unmarshal(initial, w.InitialStats); err != nil {
			return nil, fmt.Errorf("decode initial stats: %w", err)
		}
	}
	if len(final) > 0 {
		w.FinalSnapshot = &Progress{}
		if err := json.Unmarshal(final, w.FinalSnapshot); err != nil {
			return nil, fmt.Errorf("decode final snapshot: %w", err)
		}
	}
	return w, nil
}

func (s *WarStore) queryWars(ctx context.Context, sql string, args ...any) ([]War, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []War
	for rows.Next() {
		w, err := scanWar(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// CreateWar inserts a PENDING war. The partial unique index on live wars makes
// this create-if-absent per pair.
func (s *WarStore) CreateWar(ctx context.Context, w *War) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO wars (id, war_id, challenger_tag, defender_tag, status,
		                  prize_pool, duration_days, win_condition, war_type, last_updated_by_tag,
		                  version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`, w.ID, w.WarID, w.ChallengerTag, w.DefenderTag, w.Status,
		w.Terms.PrizePool, w.Terms.DurationDays, w.Terms.WinCondition, w.Terms.WarType, w.LastUpdatedByTag,
		w.Version, w.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflictExists
	}
	return err
}

func (s *WarStore) GetWar(ctx context.Context, id string) (*War, error) {
	return scanWar(s.db.QueryRow(ctx, `SELECT `+warColumns+` FROM wars WHERE id = $1`, id))
}

// LockWar reads a war and holds its row lock until the transaction ends.
func (s *WarStore) LockWar(ctx context.Context, id string) (*War, error) {
	return scanWar(s.db.QueryRow(ctx, `SELECT `+warColumns+` FROM wars WHERE id = $1 FOR UPDATE`, id))
}

// LiveWar returns the non-terminal war for a pair key.
func (s *WarStore) LiveWar(ctx context.Context, warID string) (*War, error) {
	return scanWar(s.db.QueryRow(ctx, `
		SELECT `+warColumns+` FROM wars
		WHERE war_id = $1 AND status IN ('PENDING', 'NEGOTIATING', 'ACTIVE')
	`, warID))
}

// LatestWar returns the most recently created war for a pair key, whatever its status.
func (s *WarStore) LatestWar(ctx context.Context, warID string) (*War, error) {
	return scanWar(s.db.QueryRow(ctx, `
		SELECT `+warColumns+` FROM wars WHERE war_id = $1 ORDER BY created_at DESC LIMIT 1
	`, warID))
}

func (s *WarStore) UpdateTerms(ctx context.Context, id string, version int, terms Terms, sender string, now time.Time) error {
	return s.transition(ctx, `
		UPDATE wars
		SET prize_pool = $3, duration_days = $4, win_condition = $5, war_type = $6,
		    status = 'NEGOTIATING', last_updated_by_tag = $7,
		    version = version + 1, updated_at = $8
		WHERE id = $1 AND version = $2 AND status IN ('PENDING', 'NEGOTIATING')
	`, id, version, terms.PrizePool, terms.DurationDays, terms.WinCondition, terms.WarType, sender, now)
}

func (s *WarStore) ActivateWar(ctx context.Context, id string, version int, a Activation) error {
	initial, err := json.Marshal(a.Initial)
	if err != nil {
		return err
	}
	return s.transition(ctx, `
		UPDATE wars
		SET status = 'ACTIVE', start_time = $3, end_time = $4, initial_stats = $5,
		    challenger_score = 0, defender_score = 0,
		    version = version + 1, updated_at = $3
		WHERE id = $1 AND version = $2 AND status IN ('PENDING', 'NEGOTIATING')
	`, id, version, a.Start, a.End, string(initial))
}

func (s *WarStore) RejectWar(ctx context.Context, id string, version int, now, expiresAt time.Time) error {
	return s.transition(ctx, `
		UPDATE wars
		SET status = 'REJECTED', expires_at = $4, version = version + 1, updated_at = $3
		WHERE id = $1 AND version = $2 AND status IN ('PENDING', 'NEGOTIATING')
	`, id, version, now, expiresAt)
}

func (s *WarStore) CompleteWar(ctx context.Context, id string, version int, c Completion) error {
	snapshot, err := json.Marshal(c.Snapshot)
	if err != nil {
		return err
	}
	return s.transition(ctx, `
		UPDATE wars
		SET status = 'COMPLETED', winner = $3, final_snapshot = $4, expires_at = $6,
		    version = version + 1, updated_at = $5
		WHERE id = $1 AND version = $2 AND status = 'ACTIVE'
	`, id, version, c.Winner, string(snapshot), c.At, c.ExpiresAt)
}

// AddScore increments one side's running score while the war is active and unexpired.
func (s *WarStore) AddScore(ctx context.Context, id string, side Side, points int64, now time.Time) error {
	col := "challenger_score"
	if side == SideDefender {
		col = "defender_score"
	}
	ct, err := s.db.Exec(ctx, `
		UPDATE wars SET `+col+` = `+col+` + $2
		WHERE id = $1 AND status = 'ACTIVE' AND end_time >= $3
	`, id, points, now)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrStaleWar
	}
	return nil
}

func (s *WarStore) ListExpiredActive(ctx context.Context, now time.Time) ([]War, error) {
	return s.queryWars(ctx, `
		SELECT `+warColumns+` FROM wars WHERE status = 'ACTIVE' AND end_time < $1 ORDER BY end_time
	`, now)
}

func (s *WarStore) ListActive(ctx context.Context) ([]War, error) {
	return s.queryWars(ctx, `SELECT `+warColumns+` FROM wars WHERE status = 'ACTIVE' ORDER BY war_id`)
}

// ListStale returns negotiable wars untouched since cutoff.
func (s *WarStore) ListStale(ctx context.Context, cutoff time.Time) ([]War, error) {
	return s.queryWars(ctx, `
		SELECT `+warColumns+` FROM wars
		WHERE status IN ('PENDING', 'NEGOTIATING') AND updated_at < $1
		ORDER BY updated_at
	`, cutoff)
}

func (s *WarStore) ClanHistory(ctx context.Context, tag string, limit int) ([]War, error) {
	return s.queryWars(ctx, `
		SELECT `+warColumns+` FROM wars
		WHERE challenger_tag = $1 OR defender_tag = $1
		ORDER BY created_at DESC LIMIT $2
	`, tag, limit)
}

func (s *WarStore) transition(ctx context.Context, sql string, args ...any) error {
	ct, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrStaleWar
	}
	return nil
}
