package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

func NewRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

const (
	// KeyClanBoard is a sorted set of clan tags per sort key (totalPoints, weeklyPoints, ...).
	KeyClanBoard = "leaderboard:clans:%s"
	// KeyClanMeta is a hash of clan tag to the JSON name and rank shown beside board scores.
	KeyClanMeta = "leaderboard:clans:meta"
	// KeyPostLikes is the trailing like window of one post.
	KeyPostLikes = "post:%s:likes:window"
)
