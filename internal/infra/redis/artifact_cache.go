package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"studybuddy-client/internal/app"
	"studybuddy-client/internal/domain"
)

// ArtifactCache caches the generated collections in Redis and falls back to
// the wrapped source on a miss. Each collection is one JSON string:
//
//	SET study:artifacts:{collection} <json> EX ttl
type ArtifactCache struct {
	client *redis.Client
	source app.ArtifactSource
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewArtifactCache(client *redis.Client, source app.ArtifactSource, ttl time.Duration) *ArtifactCache {
	return &ArtifactCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ArtifactCache) FetchFlashcards(ctx context.Context) ([]domain.FlashCard, error) {
	return cached(ctx, c, "flashcards", c.source.FetchFlashcards)
}

func (c *ArtifactCache) FetchQuizzes(ctx context.Context) ([]domain.RawQuiz, error) {
	return cached(ctx, c, "quizzes", c.source.FetchQuizzes)
}

func (c *ArtifactCache) FetchPlan(ctx context.Context) ([]domain.RawPlanItem, error) {
	return cached(ctx, c, "plan", c.source.FetchPlan)
}

// Invalidate removes all cached collections.
func (c *ArtifactCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, key("flashcards"), key("quizzes"), key("plan")).Err(); err != nil {
		return fmt.Errorf("invalidate artifacts: %w", err)
	}
	return nil
}

func cached[T any](ctx context.Context, c *ArtifactCache, collection string, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := readCache[T](ctx, c.client, collection); ok {
		return v, nil
	}

	result, err, _ := c.sf.Do(collection, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if v, ok := readCache[T](ctx, c.client, collection); ok {
			return v, nil
		}

		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		// best-effort write; a cache failure never fails the read
		if payload, err := json.Marshal(value); err == nil {
			_ = c.client.Set(ctx, key(collection), payload, c.ttlWithJitter()).Err()
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

func readCache[T any](ctx context.Context, client *redis.Client, collection string) (T, bool) {
	var v T
	payload, err := client.Get(ctx, key(collection)).Bytes()
	if err != nil {
		return v, false
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, false
	}
	return v, true
}

func key(collection string) string {
	return "study:artifacts:" + collection
}

func (c *ArtifactCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
