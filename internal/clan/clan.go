// Package clan manages clan founding and membership.
package clan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/kayteedberserker/oreblogda-sub000/internal/badge"
	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

var (
	ErrRosterFull        = store.ErrRosterFull
	ErrRecruitmentClosed = store.ErrRecruitmentClosed
	ErrAlreadyMember     = store.ErrAlreadyMember
	ErrCannotDisband     = errors.New("clan cannot disband while at war")
	ErrNotLeader         = errors.New("only the leader or vice leader may do this")
	ErrLeaderCannotLeave = errors.New("leader must disband instead of leaving")
	ErrInvalidClan       = errors.New("invalid clan")
)

var tagPattern = regexp.MustCompile(`^[A-Z0-9]{2,6}$`)

// BoardSync refreshes the live leaderboard entries of clans.
type BoardSync interface {
	Sync(ctx context.Context, tags ...string)
}

type Service struct {
	clans  store.Clans
	badges *badge.Engine
	boards BoardSync
	logger *slog.Logger
	now    func() time.Time
}

func NewService(clans store.Clans, badges *badge.Engine, logger *slog.Logger) *Service {
	return &Service{clans: clans, badges: badges, logger: logger, now: time.Now}
}

// SetBoards adds founded clans to and drops disbanded clans from the live
// leaderboards.
func (s *Service) SetBoards(b BoardSync) {
	s.boards = b
}

type Founding struct {
	Tag      string `json:"tag"`
	Name     string `json:"name"`
	LeaderID string `json:"leaderId"`
	MaxSlots int    `json:"maxSlots"`
}

func (s *Service) Create(ctx context.Context, f Founding) (*store.Clan, error) {
	tag := store.NormalizeTag(f.Tag)
	if !tagPattern.MatchString(tag) {
		return nil, fmt.Errorf("%w: tag must be 2-6 letters or digits", ErrInvalidClan)
	}
	if f.Name == "" || f.LeaderID == "" {
		return nil, fmt.Errorf("%w: name and leader are required", ErrInvalidClan)
	}
	if f.MaxSlots <= 0 {
		f.MaxSlots = store.DefaultMaxSlots
	}

	now := s.now()
	c := &store.Clan{
		Tag:             tag,
		Name:            f.Name,
		LeaderID:        f.LeaderID,
		Members:         []string{},
		MaxSlots:        f.MaxSlots,
		RecruitmentOpen: true,
		Badges:          []string{},
		Rank:            1,
		LastActive:      now,
		CreatedAt:       now,
	}
	if err := s.clans.CreateClan(ctx, c); err != nil {
		return nil, fmt.Errorf("create clan: %w", err)
	}
	s.logger.Info("clan founded", "clan", tag, "leader", f.LeaderID)
	s.syncBoards(ctx, tag)
	return c, nil
}

func (s *Service) Join(ctx context.Context, tag, userID string) error {
	tag = store.NormalizeTag(tag)
	if err := s.clans.AddMember(ctx, tag, userID); err != nil {
		return err
	}
	s.refresh(ctx, tag)
	return nil
}

func (s *Service) Leave(ctx context.Context, tag, userID string) error {
	tag = store.NormalizeTag(tag)
	c, err := s.clans.GetClan(ctx, tag)
	if err != nil {
		return err
	}
	if c.LeaderID == userID {
		return ErrLeaderCannotLeave
	}
	return s.clans.RemoveMember(ctx, tag, userID)
}

func (s *Service) SetRecruitment(ctx context.Context, tag, actorID string, open bool) error {
	tag = store.NormalizeTag(tag)
	if err := s.requireOfficer(ctx, tag, actorID); err != nil {
		return err
	}
	return s.clans.SetRecruitment(ctx, tag, open)
}

// Disband deletes a clan. A clan at war cannot disband.
func (s *Service) Disband(ctx context.Context, tag, actorID string) error {
	tag = store.NormalizeTag(tag)
	c, err := s.clans.GetClan(ctx, tag)
	if err != nil {
		return err
	}
	if c.LeaderID != actorID {
		return ErrNotLeader
	}
	if c.IsInWar {
		return ErrCannotDisband
	}
	if err := s.clans.DeleteClan(ctx, tag); err != nil {
		if errors.Is(err, store.ErrAlreadyAtWar) {
			return ErrCannotDisband
		}
		return err
	}
	s.logger.Info("clan disbanded", "clan", tag)
	s.syncBoards(ctx, tag)
	return nil
}

// Follow adjusts the follower count by +1 or -1 and re-checks badges.
func (s *Service) Follow(ctx context.Context, tag string, follow bool) error {
	tag = store.NormalizeTag(tag)
	delta := int64(1)
	if !follow {
		delta = -1
	}
	if err := s.clans.AdjustFollowers(ctx, tag, delta); err != nil {
		return err
	}
	if follow {
		s.refresh(ctx, tag)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, tag string) (*store.Clan, error) {
	return s.clans.GetClan(ctx, store.NormalizeTag(tag))
}

func (s *Service) List(ctx context.Context) ([]store.Clan, error) {
	return s.clans.ListClans(ctx)
}

func (s *Service) requireOfficer(ctx context.Context, tag, actorID string) error {
	c, err := s.clans.GetClan(ctx, tag)
	if err != nil {
		return err
	}
	if c.LeaderID == actorID || (c.ViceLeaderID != nil && *c.ViceLeaderID == actorID) {
		return nil
	}
	return ErrNotLeader
}

func (s *Service) refresh(ctx context.Context, tag string) {
	if s.badges == nil {
		return
	}
	if _, err := s.badges.Refresh(ctx, tag); err != nil {
		s.logger.Warn("badge refresh failed", "clan", tag, "err", err)
	}
}

func (s *Service) syncBoards(ctx context.Context, tag string) {
	if s.boards != nil {
		s.boards.Sync(ctx, tag)
	}
}
