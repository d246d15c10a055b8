package memory

import (
	"sync"

	"studybuddy-client/internal/app"
)

// SessionStore is an in-memory implementation of app.ReviewSessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.ReviewSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.ReviewSession),
	}
}

func (s *SessionStore) Save(session *app.ReviewSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = session
}

func (s *SessionStore) Get(id string) (*app.ReviewSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
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
