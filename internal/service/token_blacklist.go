package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prperemyshlev/blog-auth-service/pkg/database"
)

const blacklistKeyPrefix = "blacklist:token:"

// RedisBlacklist keeps revoked tokens in Redis until they would have expired anyway
type RedisBlacklist struct {
	redis *database.Redis
}

var _ TokenBlacklist = (*RedisBlacklist)(nil)

// NewRedisBlacklist creates a new token blacklist
func NewRedisBlacklist(redis *database.Redis) *RedisBlacklist {
	return &RedisBlacklist{redis: redis}
}

// Add revokes token for ttl
func (b *RedisBlacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := b.redis.Client.Set(ctx, blacklistKey(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to add token to blacklist: %w", err)
	}
	return nil
}

// Contains reports whether token was revoked
func (b *RedisBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	exists, err := b.redis.Client.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return exists > 0, nil
}

// blacklistKey stores the token hash rather than the token itself
func blacklistKey(token string) string {
	return blacklistKeyPrefix + hashToken(token)
}
