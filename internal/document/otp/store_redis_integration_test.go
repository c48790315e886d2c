//go:build integration

package otp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "signet/pkg/domain"
	"signet/pkg/platform/sentinel"
	"signet/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestRoundTripAndDelete() {
	ctx := context.Background()
	docID := id.NewDocumentID()
	expires := time.Now().Add(time.Minute).UTC().Truncate(time.Second)

	s.Require().NoError(s.store.Put(ctx, Challenge{DocumentID: docID, CodeHash: "h", ExpiresAt: expires}))
	got, err := s.store.Get(ctx, docID)
	s.Require().NoError(err)
	s.Equal("h", got.CodeHash)
	s.True(expires.Equal(got.ExpiresAt))

	ttl, err := s.redis.Client.TTL(ctx, redisKey(docID)).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))

	s.Require().NoError(s.store.Delete(ctx, docID))
	_, err = s.store.Get(ctx, docID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
