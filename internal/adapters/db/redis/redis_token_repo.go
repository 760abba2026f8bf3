package redis

import (
	"context"
	"github.com/redis/go-redis/v9"
	"time"
)

const accessPrefix = "revoked:access:"

// RedisTokenRepo keeps a deny-list of access-token ids until they would expire anyway.
type RedisTokenRepo struct {
	client *redis.Client
}

func NewRedisTokenRepo(client *redis.Client) *RedisTokenRepo {
	return &RedisTokenRepo{
		client: client,
	}
}

func (r *RedisTokenRepo) RevokeAccess(ctx context.Context, jti string, exp time.Time) error {
	ttl := time.Until(exp)
	if ttl <= 0 {
		// already unusable
		return nil
	}
	return r.client.Set(ctx, accessPrefix+jti, 1, ttl).Err()
}

func (r *RedisTokenRepo) IsAccessRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, accessPrefix+jti).Result()
	if err != nil {
		// fail closed
		return true, err
	}
	return n > 0, nil
}

func (r *RedisTokenRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
