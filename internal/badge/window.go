package badge

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kayteedberserker/oreblogda-sub000/internal/cache"
)

const (
	OneShotWindow = time.Hour
	OneShotLikes  = 500
)

// LikeWindow counts likes per post over the trailing OneShotWindow.
type LikeWindow interface {
	// Add records one like at `at` and returns the like count in the window
	// ending at `at`.
	Add(ctx context.Context, postID string, at time.Time) (int64, error)
}

// RedisWindow keeps one sorted set per post scored by like time.
type RedisWindow struct {
	rdb *redis.Client
}

func NewRedisWindow(rdb *redis.Client) *RedisWindow {
	return &RedisWindow{rdb: rdb}
}

func (w *RedisWindow) Add(ctx context.Context, postID string, at time.Time) (int64, error) {
	key := fmt.Sprintf(cache.KeyPostLikes, postID)
	cutoff := at.Add(-OneShotWindow).UnixMilli()

	var card *redis.IntCmd
	_, err := w.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: uuid.NewString()})
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
		card = pipe.ZCard(ctx, key)
		pipe.Expire(ctx, key, OneShotWindow)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("like window %s: %w", postID, err)
	}
	return card.Val(), nil
}

// MemoryWindow is an in-process LikeWindow.
type MemoryWindow struct {
	mu    sync.Mutex
	posts map[string][]time.Time
}

func NewMemoryWindow() *MemoryWindow {
	return &MemoryWindow{posts: make(map[string][]time.Time)}
}

func (w *MemoryWindow) Add(_ context.Context, postID string, at time.Time) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := at.Add(-OneShotWindow)
	kept := w.posts[postID][:0]
	for _, t := range w.posts[postID] {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, at)
	w.posts[postID] = kept
	return int64(len(kept)), nil
}
