package redis

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"message-quizzer/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// AuthorLoader lists the authors of a community from a backing store.
type AuthorLoader interface {
	CommunityAuthors(ctx context.Context, communityID string) ([]domain.Author, error)
}

// AuthorCache caches community authors in Redis (hash per community) and
// falls back to a loader on cache miss.
// Authors are stored as: HSET quizzer:authors:{communityID} {authorID} {displayName}
type AuthorCache struct {
	client *redis.Client
	loader AuthorLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewAuthorCache(client *redis.Client, loader AuthorLoader, ttl time.Duration) *AuthorCache {
	return &AuthorCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *AuthorCache) CommunityAuthors(ctx context.Context, communityID string) ([]domain.Author, error) {
	key := c.key(communityID)

	names, err := c.client.HGetAll(ctx, key).Result()
	if err == nil && len(names) > 0 {
		return authorsFromHash(communityID, names), nil
	}

	result, err, _ := c.sf.Do(communityID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		names, err := c.client.HGetAll(ctx, key).Result()
		if err == nil && len(names) > 0 {
			return authorsFromHash(communityID, names), nil
		}

		authors, err := c.loader.CommunityAuthors(ctx, communityID)
		if err != nil {
			return nil, err
		}
		if len(authors) == 0 {
			return authors, nil
		}

		pipe := c.client.Pipeline()
		for _, a := range authors {
			pipe.HSet(ctx, key, a.ID, a.DisplayName)
		}
		if ttl := c.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return authors, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Author), nil
}

// Invalidate drops the cached hash of a community.
func (c *AuthorCache) Invalidate(ctx context.Context, communityID string) error {
	return c.client.Del(ctx, c.key(communityID)).Err()
}

func (c *AuthorCache) key(communityID string) string {
	return "quizzer:authors:" + communityID
}

func authorsFromHash(communityID string, names map[string]string) []domain.Author {
	authors := make([]domain.Author, 0, len(names))
	for id, name := range names {
		authors = append(authors, domain.Author{ID: id, CommunityID: communityID, DisplayName: name})
	}
	// hash iteration order is random; keep results stable for callers
	sort.Slice(authors, func(i, j int) bool { return authors[i].ID < authors[j].ID })
	return authors
}

func (c *AuthorCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
