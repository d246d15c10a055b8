package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"studybuddy-client/internal/app"
)

// SessionStore is a Redis-aware implementation of app.ReviewSessionRepository.
// Sessions live in a local map so their timers and subscribers stay in
// process; Redis only carries a liveness marker per session.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.ReviewSession
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.ReviewSession),
	}
}

func (s *SessionStore) Save(session *app.ReviewSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(session.ID()), "1", s.ttl).Err()
}

// Get returns a live session and refreshes its liveness marker.
func (s *SessionStore) Get(id string) (*app.ReviewSession, bool) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok && s.ttl > 0 {
		_ = s.client.Expire(context.Background(), s.key(id), s.ttl).Err()
	}
	return session, ok
}

func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	_ = s.client.Del(context.Background(), s.key(id)).Err()
}

func (s *SessionStore) All() []*app.ReviewSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.ReviewSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

func (s *SessionStore) key(id string) string {
	return "study:review:" + id
}
