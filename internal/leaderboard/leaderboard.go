package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/kayteedberserker/oreblogda-sub000/internal/cache"
	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

// SortKey selects the clan field a board is ordered by.
type SortKey string

const (
	ByTotalPoints  SortKey = "totalPoints"
	ByWeeklyPoints SortKey = "weeklyPoints"
	ByLikes        SortKey = "likes"
	ByFollowers    SortKey = "followers"
	ByComments     SortKey = "weeklyComments"
)

func (k SortKey) Valid() bool {
	switch k {
	case ByTotalPoints, ByWeeklyPoints, ByLikes, ByFollowers, ByComments:
		return true
	}
	return false
}

func (k SortKey) value(c *store.Clan) int64 {
	switch k {
	case ByWeeklyPoints:
		return c.CurrentWeeklyPoints
	case ByLikes:
		return c.Stats.Likes
	case ByFollowers:
		return c.Stats.Followers
	case ByComments:
		return c.Stats.WeeklyComments
	default:
		return c.TotalPoints
	}
}

type Entry struct {
	Tag    string `json:"tag"`
	Name   string `json:"name"`
	Score  int64  `json:"score"`
	LBRank int    `json:"lbRank"`
	Rank   int    `json:"rank"`
}

// RankClans orders clans by key, highest first. Ties break on tag so the
// result is stable for the same snapshot. LBRank is 1-based.
func RankClans(clans []store.Clan, key SortKey) []Entry {
	out := make([]Entry, 0, len(clans))
	for i := range clans {
		c := &clans[i]
		out = append(out, Entry{Tag: c.Tag, Name: c.Name, Score: key.value(c), Rank: c.Rank})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Tag < out[j].Tag
	})
	for i := range out {
		out[i].LBRank = i + 1
	}
	return out
}

// Live is the set of boards kept current in redis as scores change. Other
// sort keys are always ranked from a clan snapshot.
var Live = []SortKey{ByTotalPoints, ByWeeklyPoints}

type meta struct {
	Name string `json:"name"`
	Rank int    `json:"rank"`
}

// Service publishes computed boards to redis sorted sets for cheap reads.
type Service struct {
	rdb *redis.Client
}

func NewService(rdb *redis.Client) *Service {
	return &Service{rdb: rdb}
}

func boardKey(key SortKey) string {
	return fmt.Sprintf(cache.KeyClanBoard, key)
}

// Publish replaces the board for key with entries.
func (s *Service) Publish(ctx context.Context, key SortKey, entries []Entry) error {
	redisKey := boardKey(key)
	members := make([]redis.Z, 0, len(entries))
	fields := make([]any, 0, 2*len(entries))
	for _, e := range entries {
		members = append(members, redis.Z{Score: float64(e.Score), Member: e.Tag})
		raw, err := json.Marshal(meta{Name: e.Name, Rank: e.Rank})
		if err != nil {
			return err
		}
		fields = append(fields, e.Tag, raw)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, redisKey)
	if len(members) > 0 {
		pipe.ZAdd(ctx, redisKey, members...)
		pipe.HSet(ctx, cache.KeyClanMeta, fields...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Update writes a clan's current scores to every live board that has been
// published. Unpublished boards are left empty so reads fall back to a
// snapshot instead of serving a partial board.
func (s *Service) Update(ctx context.Context, c *store.Clan) error {
	exists := make([]*redis.IntCmd, len(Live))
	pipe := s.rdb.Pipeline()
	for i, key := range Live {
		exists[i] = pipe.Exists(ctx, boardKey(key))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	raw, err := json.Marshal(meta{Name: c.Name, Rank: c.Rank})
	if err != nil {
		return err
	}
	tx := s.rdb.TxPipeline()
	published := 0
	for i, key := range Live {
		if exists[i].Val() == 0 {
			continue
		}
		tx.ZAdd(ctx, boardKey(key), redis.Z{Score: float64(key.value(c)), Member: c.Tag})
		published++
	}
	if published == 0 {
		return nil
	}
	tx.HSet(ctx, cache.KeyClanMeta, c.Tag, raw)
	_, err = tx.Exec(ctx)
	return err
}

// Remove drops a clan from every live board.
func (s *Service) Remove(ctx context.Context, tag string) error {
	pipe := s.rdb.TxPipeline()
	for _, key := range Live {
		pipe.ZRem(ctx, boardKey(key), tag)
	}
	pipe.HDel(ctx, cache.KeyClanMeta, tag)
	_, err := pipe.Exec(ctx)
	return err
}

// Top returns the first count clans of a published board.
func (s *Service) Top(ctx context.Context, key SortKey, count int64) ([]Entry, error) {
	results, err := s.rdb.ZRevRangeWithScores(ctx, boardKey(key), 0, count-1).Result()
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	tags := make([]string, 0, len(results))
	for _, z := range results {
		tag, _ := z.Member.(string)
		tags = append(tags, tag)
	}
	metas, err := s.rdb.HMGet(ctx, cache.KeyClanMeta, tags...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(results))
	for i, z := range results {
		e := Entry{Tag: tags[i], Score: int64(z.Score), LBRank: i + 1}
		if raw, ok := metas[i].(string); ok {
			e.fill(raw)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Position returns a clan's 1-based position on a published board, or nil
// when the clan is not on it.
func (s *Service) Position(ctx context.Context, key SortKey, tag string) (*Entry, error) {
	redisKey := boardKey(key)

	rank, err := s.rdb.ZRevRank(ctx, redisKey, tag).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	score, err := s.rdb.ZScore(ctx, redisKey, tag).Result()
	if err != nil {
		return nil, err
	}

	e := &Entry{Tag: tag, Score: int64(score), LBRank: int(rank) + 1}
	raw, err := s.rdb.HGet(ctx, cache.KeyClanMeta, tag).Result()
	switch {
	case err == nil:
		e.fill(raw)
	case err != redis.Nil:
		return nil, err
	}
	return e, nil
}

func (e *Entry) fill(raw string) {
	var m meta
	if json.Unmarshal([]byte(raw), &m) == nil {
		e.Name = m.Name
		e.Rank = m.Rank
	}
}
