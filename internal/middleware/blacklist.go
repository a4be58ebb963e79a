package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTokenBlacklist stores revoked access tokens until they would have expired.
type RedisTokenBlacklist struct {
	client *redis.Client
}

func NewRedisTokenBlacklist(client *redis.Client) *RedisTokenBlacklist {
	return &RedisTokenBlacklist{client: client}
}

// Blacklist revokes a token for expiration.
func (b *RedisTokenBlacklist) Blacklist(ctx context.Context, token string, expiration time.Duration) error {
	return b.client.Set(ctx, blacklistKey(token), "revoked", expiration).Err()
}

func (b *RedisTokenBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	exists, err := b.client.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// Keys hold a digest, never the bearer token itself.
func blacklistKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "blacklist:" + hex.EncodeToString(sum[:])
}
