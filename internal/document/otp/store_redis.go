package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "signet/pkg/domain"
	"signet/pkg/platform/sentinel"
)

const redisKeyPrefix = "signet:otp:"

// RedisStore keeps challenges as JSON strings that Redis expires on its own.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(docID id.DocumentID) string {
	return redisKeyPrefix + docID.String()
}

func (s *RedisStore) Put(ctx context.Context, c Challenge) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode otp challenge: %w", err)
	}
	ttl := time.Until(c.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := s.client.Set(ctx, redisKey(c.DocumentID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("store otp challenge: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, docID id.DocumentID) (*Challenge, error) {
	raw, err := s.client.Get(ctx, redisKey(docID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load otp challenge: %w", err)
	}
	var c Challenge
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode otp challenge: %w", err)
	}
	return &c, nil
}

func (s *RedisStore) Delete(ctx context.Context, docID id.DocumentID) error {
	if err := s.client.Del(ctx, redisKey(docID)).Err(); err != nil {
		return fmt.Errorf("delete otp challenge: %w", err)
	}
	return nil
}
