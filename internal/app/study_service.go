package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"studybuddy-client/internal/domain"
	"studybuddy-client/internal/logger"
)

// ArtifactSource returns the full current generated collections (never deltas).
type ArtifactSource interface {
	FetchFlashcards(ctx context.Context) ([]domain.FlashCard, error)
	FetchQuizzes(ctx context.Context) ([]domain.RawQuiz, error)
	FetchPlan(ctx context.Context) ([]domain.RawPlanItem, error)
}

// Invalidator is implemented by caching sources that can drop what they hold.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// ReviewSessionRepository keeps live review sessions by id (in-memory, Redis, etc).
type ReviewSessionRepository interface {
	Save(session *ReviewSession)
	Get(id string) (*ReviewSession, bool)
	Delete(id string)
	All() []*ReviewSession
}

// StudyService holds the learner's generated collections and hands out the
// stateful views over them. Collections are replaced wholesale, never edited.
type StudyService struct {
	source   ArtifactSource
	sessions ReviewSessionRepository
	ticker   Ticker
	log      *logger.Logger
	now      func() time.Time

	mu         sync.RWMutex
	flashcards []domain.FlashCard
	quizzes    []domain.QuizItem
	plan       []domain.PlanItem
	loadedAt   time.Time
}

func NewStudyService(source ArtifactSource, sessions ReviewSessionRepository, ticker Ticker, log *logger.Logger) *StudyService {
	if log == nil {
		log = logger.Nop()
	}
	return &StudyService{source: source, sessions: sessions, ticker: ticker, log: log, now: time.Now}
}

// Reload fetches all three collections concurrently and swaps them in
// together. On any error the previous collections are left untouched.
// Live review sessions are moved onto the new quizzes.
func (s *StudyService) Reload(ctx context.Context) error {
	cards, rawQuiz, rawPlan, err := s.fetchAll(ctx)
	if err != nil {
		s.log.Warn("reload failed", "error", err)
		return err
	}
	quizzes := MergeQuizzes(nil, s.normalizeQuizzes(rawQuiz))
	plan := NormalizePlan(rawPlan)

	s.mu.Lock()
	s.flashcards = cards
	s.quizzes = quizzes
	s.plan = plan
	s.loadedAt = s.now()
	s.pushLocked(quizzes)
	s.mu.Unlock()

	s.log.Info("artifacts loaded", "flashcards", len(cards), "quizzes", len(quizzes), "plan", len(plan))
	return nil
}

// Refresh drops any cached copy and reads every collection again. Flashcards
// and the plan are replaced, quizzes are merged into the ones already held so
// reviews keep their order. Returns how many quizzes were added.
func (s *StudyService) Refresh(ctx context.Context) (int, error) {
	s.invalidate(ctx)
	cards, rawQuiz, rawPlan, err := s.fetchAll(ctx)
	if err != nil {
		s.log.Warn("refresh failed", "error", err)
		return 0, err
	}
	incoming := s.normalizeQuizzes(rawQuiz)
	plan := NormalizePlan(rawPlan)

	s.mu.Lock()
	before := len(s.quizzes)
	merged := MergeQuizzes(s.quizzes, incoming)
	added := len(merged) - before
	s.flashcards = cards
	s.quizzes = merged
	s.plan = plan
	s.loadedAt = s.now()
	if added > 0 {
		s.pushLocked(merged)
	}
	s.mu.Unlock()

	s.log.Info("artifacts refreshed", "added", added, "quizzes", len(merged), "flashcards", len(cards), "plan", len(plan))
	return added, nil
}

// CheckForNewQuizzes fetches quizzes again and appends the ones not already
// held. Live review sessions see the merged collection. Returns how many were added.
func (s *StudyService) CheckForNewQuizzes(ctx context.Context) (int, error) {
	s.invalidate(ctx)
	raw, err := s.source.FetchQuizzes(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch quizzes: %w", err)
	}
	incoming := s.normalizeQuizzes(raw)

	s.mu.Lock()
	before := len(s.quizzes)
	merged := MergeQuizzes(s.quizzes, incoming)
	s.quizzes = merged
	added := len(merged) - before
	if added > 0 {
		s.pushLocked(merged)
	}
	s.mu.Unlock()

	s.log.Info("checked for new quizzes", "added", added, "total", len(merged))
	return added, nil
}

func (s *StudyService) fetchAll(ctx context.Context) (cards []domain.FlashCard, quizzes []domain.RawQuiz, plan []domain.RawPlanItem, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cards, err = s.source.FetchFlashcards(gctx)
		if err != nil {
			return fmt.Errorf("fetch flashcards: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		quizzes, err = s.source.FetchQuizzes(gctx)
		if err != nil {
			return fmt.Errorf("fetch quizzes: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		plan, err = s.source.FetchPlan(gctx)
		if err != nil {
			return fmt.Errorf("fetch plan: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return cards, quizzes, plan, nil
}

func (s *StudyService) invalidate(ctx context.Context) {
	if inv, ok := s.source.(Invalidator); ok {
		if err := inv.Invalidate(ctx); err != nil {
			s.log.Warn("cache invalidate failed", "error", err)
		}
	}
}

// pushLocked moves every live session onto quizzes. Holding s.mu keeps two
// concurrent refreshes from landing in sessions out of order.
func (s *StudyService) pushLocked(quizzes []domain.QuizItem) {
	for _, session := range s.sessions.All() {
		session.ReplaceItems(quizzes)
	}
}

// Ingest runs the orchestrator's queued batch and, on success, reloads the
// collections from a fresh source read.
func (s *StudyService) Ingest(ctx context.Context, o *Orchestrator) (IngestionStatus, error) {
	status, err := o.Run(ctx)
	if err != nil {
		return status, err
	}
	s.invalidate(ctx)
	if err := s.Reload(ctx); err != nil {
		return status, fmt.Errorf("reload after ingest: %w", err)
	}
	return status, nil
}

func (s *StudyService) Flashcards() []domain.FlashCard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flashcards
}

func (s *StudyService) Quizzes() []domain.QuizItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quizzes
}

func (s *StudyService) Plan() []domain.PlanItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan
}

// LoadedAt returns when the collections were last replaced.
func (s *StudyService) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// StartReview opens a review session over the current quizzes.
func (s *StudyService) StartReview() *ReviewSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session := NewReviewSession(uuid.NewString(), s.quizzes, s.ticker)
	s.sessions.Save(session)
	return session
}

func (s *StudyService) Review(id string) (*ReviewSession, error) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// EndReview stops the session's timer and forgets it. It reports whether
// the session existed.
func (s *StudyService) EndReview(id string) bool {
	session, ok := s.sessions.Get(id)
	if !ok {
		return false
	}
	session.Close()
	s.sessions.Delete(id)
	return true
}

// ReapIdle ends review sessions that nobody is subscribed to and that have
// not been used for maxIdle. Returns how many were ended.
func (s *StudyService) ReapIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)
	ended := 0
	for _, session := range s.sessions.All() {
		since, attached := session.IdleSince()
		if attached || since.After(cutoff) {
			continue
		}
		if s.EndReview(session.ID()) {
			ended++
		}
	}
	if ended > 0 {
		s.log.Info("idle review sessions ended", "count", ended)
	}
	return ended
}

// ReapEvery runs ReapIdle on the service ticker until the returned stop is called.
func (s *StudyService) ReapEvery(interval, maxIdle time.Duration) (stop func()) {
	if s.ticker == nil {
		return func() {}
	}
	return s.ticker.Every(interval, func() { s.ReapIdle(maxIdle) })
}

func (s *StudyService) Deck() *FlashcardDeck {
	return NewFlashcardDeck(s.Flashcards())
}

// Planner lays the current plan out around anchor.
func (s *StudyService) Planner(anchor time.Time) *PlanScheduler {
	return NewPlanScheduler(s.Plan(), anchor)
}

func (s *StudyService) normalizeQuizzes(raw []domain.RawQuiz) []domain.QuizItem {
	items, issues := NormalizeQuizzes(raw)
	for _, issue := range issues {
		s.log.Warn("quiz data quality", "issue", string(issue.Issue), "question", issue.Question)
	}
	return items
}
