package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"signet/internal/compliance/models"
	id "signet/pkg/domain"
)

const (
	redisPrefix = "signet:compliance:"
	// generationTTL only has to outlive one evaluation; it bounds how long an
	// idle user's counter lingers.
	generationTTL = 24 * time.Hour
)

// setIfCurrent writes a verdict only while the user's generation still
// matches, and never shortens the index TTL below an entry it lists.
//
// KEYS: generation, result, index. ARGV: expected generation, payload, ttl ms.
var setIfCurrent = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or '0'
if gen ~= ARGV[1] then
  return 0
end
local ttl = tonumber(ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'PX', ttl)
redis.call('SADD', KEYS[3], KEYS[2])
if redis.call('PTTL', KEYS[3]) < ttl then
  redis.call('PEXPIRE', KEYS[3], ttl)
end
return 1
`)

// RedisCache shares verdicts between replicas. Each user has an index set of
// their cached keys so Invalidate does not need to scan, and a generation
// counter that Invalidate increments.
type RedisCache struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, logger: logger}
}

func redisResultKey(userID id.UserID, target models.Target) string {
	return redisPrefix + userID.String() + ":" + target.String()
}

func redisIndexKey(userID id.UserID) string {
	return redisPrefix + "index:" + userID.String()
}

func redisGenerationKey(userID id.UserID) string {
	return redisPrefix + "gen:" + userID.String()
}

func (c *RedisCache) Get(ctx context.Context, userID id.UserID, target models.Target) (*models.Result, bool) {
	raw, err := c.client.Get(ctx, redisResultKey(userID, target)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.WarnContext(ctx, "compliance cache read failed", "error", err)
		return nil, false
	}
	var result models.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.WarnContext(ctx, "compliance cache entry corrupt", "error", err)
		return nil, false
	}
	return &result, true
}

func (c *RedisCache) Generation(ctx context.Context, userID id.UserID) (uint64, bool) {
	gen, err := c.client.Get(ctx, redisGenerationKey(userID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		c.logger.WarnContext(ctx, "compliance cache generation read failed", "error", err)
		return 0, false
	}
	return gen, true
}

func (c *RedisCache) Set(ctx context.Context, userID id.UserID, gen uint64, result *models.Result, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	keys := []string{
		redisGenerationKey(userID),
		redisResultKey(userID, result.Target),
		redisIndexKey(userID),
	}
	err = setIfCurrent.Run(ctx, c.client, keys, strconv.FormatUint(gen, 10), raw, ttl.Milliseconds()).Err()
	if err != nil {
		c.logger.WarnContext(ctx, "compliance cache write failed", "error", err)
	}
}

// Invalidate advances the generation before deleting, so a Set racing with
// it either lands first and is deleted or sees the new generation and skips.
func (c *RedisCache) Invalidate(ctx context.Context, userID id.UserID) {
	genKey := redisGenerationKey(userID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		return nil
	})
	if err != nil {
		c.logger.WarnContext(ctx, "compliance cache invalidation failed", "error", err)
		return
	}

	index := redisIndexKey(userID)
	keys, err := c.client.SMembers(ctx, index).Result()
	if err != nil {
		c.logger.WarnContext(ctx, "compliance cache invalidation failed", "error", err)
		return
	}
	if err := c.client.Del(ctx, append(keys, index)...).Err(); err != nil {
		c.logger.WarnContext(ctx, "compliance cache invalidation failed", "error", err)
	}
}
