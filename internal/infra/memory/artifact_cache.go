package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"studybuddy-client/internal/app"
	"studybuddy-client/internal/domain"
)

const (
	flashcardsKey = "flashcards"
	quizzesKey    = "quizzes"
	planKey       = "plan"
)

// ArtifactCache caches the generated collections with TTL to avoid refetching
// on every view. Concurrent misses for the same collection share one fetch.
type ArtifactCache struct {
	source app.ArtifactSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedEntry
}

type cachedEntry struct {
	value     any
	expiresAt time.Time
}

func NewArtifactCache(source app.ArtifactSource, ttl time.Duration) *ArtifactCache {
	return &ArtifactCache{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedEntry),
	}
}

func (c *ArtifactCache) FetchFlashcards(ctx context.Context) ([]domain.FlashCard, error) {
	return cached(ctx, c, flashcardsKey, c.source.FetchFlashcards)
}

func (c *ArtifactCache) FetchQuizzes(ctx context.Context) ([]domain.RawQuiz, error) {
	return cached(ctx, c, quizzesKey, c.source.FetchQuizzes)
}

func (c *ArtifactCache) FetchPlan(ctx context.Context) ([]domain.RawPlanItem, error) {
	return cached(ctx, c, planKey, c.source.FetchPlan)
}

// Invalidate drops every cached collection, e.g. after new documents were ingested.
func (c *ArtifactCache) Invalidate(context.Context) error {
	c.mu.Lock()
	c.cache = make(map[string]cachedEntry)
	c.mu.Unlock()
	return nil
}

func (c *ArtifactCache) lookup(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[key]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return nil, false
	}
	return entry.value, true
}

func cached[T any](ctx context.Context, c *ArtifactCache, key string, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := c.lookup(key); ok {
		return v.(T), nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[key] = cachedEntry{
			value:     value,
			expiresAt: c.clock().Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

func (c *ArtifactCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticSource serves fixed collections (useful for tests/demos).
type StaticSource struct {
	mu         sync.RWMutex
	Flashcards []domain.FlashCard
	Quizzes    []domain.RawQuiz
	Plan       []domain.RawPlanItem
}

// AddQuizzes appends quizzes while other goroutines may be fetching.
func (s *StaticSource) AddQuizzes(quizzes ...domain.RawQuiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Quizzes = append(s.Quizzes, quizzes...)
}

func (s *StaticSource) AddFlashcards(cards ...domain.FlashCard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Flashcards = append(s.Flashcards, cards...)
}

func (s *StaticSource) AddPlanItems(items ...domain.RawPlanItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Plan = append(s.Plan, items...)
}

func (s *StaticSource) FetchFlashcards(context.Context) ([]domain.FlashCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.FlashCard(nil), s.Flashcards...), nil
}

func (s *StaticSource) FetchQuizzes(context.Context) ([]domain.RawQuiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.RawQuiz(nil), s.Quizzes...), nil
}

func (s *StaticSource) FetchPlan(context.Context) ([]domain.RawPlanItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.RawPlanItem(nil), s.Plan...), nil
}
