package evaluator

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"signet/internal/compliance/models"
	docmodels "signet/internal/document/models"
	id "signet/pkg/domain"
)

// Cache holds recent verdicts. Implementations must treat failures as
// misses; a cache never fails an evaluation.
//
// Each user has a generation that Invalidate advances. Callers read it before
// looking at the store and pass it to Set, which drops the write when the
// generation has moved on: a verdict computed before a signature never lands
// after that signature's invalidation.
type Cache interface {
	Get(ctx context.Context, userID id.UserID, target models.Target) (*models.Result, bool)
	// Generation reports false when the counter cannot be read; the caller
	// must then skip Set.
	Generation(ctx context.Context, userID id.UserID) (uint64, bool)
	Set(ctx context.Context, userID id.UserID, gen uint64, result *models.Result, ttl time.Duration)
	Invalidate(ctx context.Context, userID id.UserID)
}

type memoryEntry struct {
	result    *models.Result
	expiresAt time.Time
}

// MemoryCache is a bounded LRU keyed by user and target. mu orders Set
// against Invalidate; the LRU itself is safe for concurrent use.
type MemoryCache struct {
	mu          sync.Mutex
	lru         *lru.Cache
	generations map[id.UserID]uint64
	now         func() time.Time
}

func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{lru: c, generations: make(map[id.UserID]uint64), now: time.Now}, nil
}

func cacheKey(userID id.UserID, target models.Target) string {
	return userID.String() + "|" + target.String()
}

func (c *MemoryCache) Get(_ context.Context, userID id.UserID, target models.Target) (*models.Result, bool) {
	key := cacheKey(userID, target)
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	entry := v.(memoryEntry)
	if !c.now().Before(entry.expiresAt) {
		c.lru.Remove(key)
		return nil, false
	}
	return cloneResult(entry.result), true
}

func (c *MemoryCache) Generation(_ context.Context, userID id.UserID) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[userID], true
}

func (c *MemoryCache) Set(_ context.Context, userID id.UserID, gen uint64, result *models.Result, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[userID] != gen {
		return
	}
	c.lru.Add(cacheKey(userID, result.Target), memoryEntry{
		result:    cloneResult(result),
		expiresAt: c.now().Add(ttl),
	})
}

// Invalidate drops every cached target for userID and advances its
// generation.
func (c *MemoryCache) Invalidate(_ context.Context, userID id.UserID) {
	prefix := userID.String() + "|"
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[userID]++
	for _, k := range c.lru.Keys() {
		if key, ok := k.(string); ok && strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

func cloneResult(r *models.Result) *models.Result {
	out := *r
	out.RequiredDocumentTypes = append([]docmodels.DocumentType{}, r.RequiredDocumentTypes...)
	out.CompliantDocumentTypes = append([]docmodels.DocumentType{}, r.CompliantDocumentTypes...)
	out.MissingDocumentTypes = append([]docmodels.DocumentType{}, r.MissingDocumentTypes...)
	return &out
}
