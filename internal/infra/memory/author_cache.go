package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"message-quizzer/internal/domain"

	"golang.org/x/sync/singleflight"
)

// AuthorLoader lists the authors of a community from a backing store.
type AuthorLoader interface {
	CommunityAuthors(ctx context.Context, communityID string) ([]domain.Author, error)
}

// AuthorCache caches community author lists with TTL to avoid repeated DB hits.
// Display names may be up to one TTL stale.
type AuthorCache struct {
	loader AuthorLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedAuthors
}

type cachedAuthors struct {
	authors   []domain.Author
	expiresAt time.Time
}

func NewAuthorCache(loader AuthorLoader, ttl time.Duration) *AuthorCache {
	return &AuthorCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedAuthors),
	}
}

func (c *AuthorCache) CommunityAuthors(ctx context.Context, communityID string) ([]domain.Author, error) {
	if authors, ok := c.lookup(communityID); ok {
		return authors, nil
	}

	result, err, _ := c.sf.Do(communityID, func() (interface{}, error) {
		if authors, ok := c.lookup(communityID); ok {
			return authors, nil
		}

		authors, err := c.loader.CommunityAuthors(ctx, communityID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[communityID] = cachedAuthors{
			authors:   authors,
			expiresAt: c.clock().Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return authors, nil
	})
	if err != nil {
		return nil, err
	}
	return copyAuthors(result.([]domain.Author)), nil
}

// Invalidate drops the cached list of a community.
func (c *AuthorCache) Invalidate(communityID string) {
	c.mu.Lock()
	delete(c.cache, communityID)
	c.mu.Unlock()
}

func (c *AuthorCache) lookup(communityID string) ([]domain.Author, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.cache[communityID]; ok && entry.expiresAt.After(now) {
		return copyAuthors(entry.authors), true
	}
	return nil, false
}

func (c *AuthorCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func copyAuthors(in []domain.Author) []domain.Author {
	out := make([]domain.Author, len(in))
	copy(out, in)
	return out
}
