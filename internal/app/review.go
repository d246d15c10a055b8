package app

import (
	"fmt"
	"sync"
	"time"

	"studybuddy-client/internal/domain"
)

// Ticker runs fn every interval until the returned stop function is called.
type Ticker interface {
	Every(interval time.Duration, fn func()) (stop func())
}

// Correctness is derived from a QuestionState and its QuizItem on demand; it is never stored.
type Correctness string

const (
	Unanswered Correctness = "unanswered"
	Pending    Correctness = "pending"
	Correct    Correctness = "correct"
	Incorrect  Correctness = "incorrect"
	Unknown    Correctness = "unknown" // revealed, but no correct answer is known
)

// Evaluate computes the correctness of state for item.
func Evaluate(item domain.QuizItem, state domain.QuestionState) Correctness {
	switch {
	case state.SelectedOption == "":
		return Unanswered
	case !state.Revealed:
		return Pending
	case !item.HasCorrectAnswer():
		return Unknown
	case state.SelectedOption == item.CorrectAnswer:
		return Correct
	default:
		return Incorrect
	}
}

// ReviewSnapshot is a read-only view of a review session for the presentation layer.
type ReviewSnapshot struct {
	SessionID      string               `json:"sessionId"`
	Empty          bool                 `json:"empty"`
	Index          int                  `json:"index"`
	Total          int                  `json:"total"`
	Item           *domain.QuizItem     `json:"item,omitempty"`
	State          domain.QuestionState `json:"state"`
	Correctness    Correctness          `json:"correctness"`
	Progress       float64              `json:"progress"`
	ElapsedSeconds int                  `json:"elapsedSeconds"`
	Elapsed        string               `json:"elapsed"`
}

// ReviewSession tracks navigation and answer state over a quiz collection.
// State is kept per index, so revisiting a question shows its prior selection.
type ReviewSession struct {
	id          string
	mu          sync.RWMutex
	items       []domain.QuizItem
	current     int
	states      map[int]domain.QuestionState
	elapsed     int
	stopTick    func()
	closed      bool
	touched     time.Time
	subscribers map[chan ReviewSnapshot]struct{}
}

// NewReviewSession starts a session over items. A nil ticker disables the elapsed timer.
func NewReviewSession(id string, items []domain.QuizItem, ticker Ticker) *ReviewSession {
	s := &ReviewSession{
		id:          id,
		items:       append([]domain.QuizItem(nil), items...),
		states:      make(map[int]domain.QuestionState),
		subscribers: make(map[chan ReviewSnapshot]struct{}),
		touched:     time.Now(),
	}
	if ticker != nil {
		s.stopTick = ticker.Every(time.Second, s.tick)
	}
	return s
}

func (s *ReviewSession) ID() string { return s.id }

func (s *ReviewSession) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Index returns the current question index.
func (s *ReviewSession) Index() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Current returns the current question and its state. ok is false for an empty session.
func (s *ReviewSession) Current() (item domain.QuizItem, state domain.QuestionState, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		return domain.QuizItem{}, domain.QuestionState{}, false
	}
	return s.items[s.current], s.states[s.current], true
}

// StateAt returns the recorded state for index, if any.
func (s *ReviewSession) StateAt(index int) (domain.QuestionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[index]
	return st, ok
}

// CorrectnessAt recomputes correctness for index.
func (s *ReviewSession) CorrectnessAt(index int) Correctness {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.items) {
		return Unanswered
	}
	return Evaluate(s.items[index], s.states[index])
}

// SelectOption records option for the current question until it is submitted.
func (s *ReviewSession) SelectOption(option string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return domain.ErrEmptyQuiz
	}
	st := s.states[s.current]
	if st.Revealed {
		return domain.ErrAlreadyRevealed
	}
	if !s.items[s.current].HasOption(option) {
		return domain.ErrOptionNotFound
	}
	st.SelectedOption = option
	s.states[s.current] = st
	s.touched = time.Now()
	s.broadcastLocked()
	return nil
}

// Submit reveals the current question. Submitting an already revealed question is a no-op.
func (s *ReviewSession) Submit() (Correctness, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return Unanswered, domain.ErrEmptyQuiz
	}
	st, ok := s.states[s.current]
	if !ok || st.SelectedOption == "" {
		return Unanswered, domain.ErrNothingSelected
	}
	if !st.Revealed {
		st.Revealed = true
		s.states[s.current] = st
		s.touched = time.Now()
		s.broadcastLocked()
	}
	return Evaluate(s.items[s.current], st), nil
}

// Next moves forward one question, stopping at the last.
func (s *ReviewSession) Next() int { return s.move(1) }

// Previous moves back one question, stopping at the first.
func (s *ReviewSession) Previous() int { return s.move(-1) }

func (s *ReviewSession) move(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return 0
	}
	next := s.current + delta
	if next < 0 {
		next = 0
	}
	if next > len(s.items)-1 {
		next = len(s.items) - 1
	}
	if next != s.current {
		s.current = next
		s.touched = time.Now()
		s.broadcastLocked()
	}
	return s.current
}

// Progress is the fraction of questions before the current one that have any recorded state.
func (s *ReviewSession) Progress() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progressLocked()
}

func (s *ReviewSession) progressLocked() float64 {
	if len(s.items) == 0 {
		return 0
	}
	n := 0
	for idx := range s.states {
		if idx < s.current {
			n++
		}
	}
	return float64(n) / float64(len(s.items))
}

// Elapsed returns the time the session has been open.
func (s *ReviewSession) Elapsed() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.elapsed) * time.Second
}

// ReplaceItems swaps in a new collection, typically the output of MergeQuizzes.
// State survives for indices whose question text is unchanged.
func (s *ReviewSession) ReplaceItems(items []domain.QuizItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := append([]domain.QuizItem(nil), items...)
	states := make(map[int]domain.QuestionState, len(s.states))
	for idx, st := range s.states {
		if idx < len(next) && idx < len(s.items) && next[idx].Question == s.items[idx].Question {
			states[idx] = st
		}
	}
	s.items = next
	s.states = states
	if s.current > len(next)-1 {
		s.current = max(len(next)-1, 0)
	}
	s.broadcastLocked()
}

func (s *ReviewSession) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.elapsed++
	s.broadcastLocked()
}

// Snapshot returns the current view of the session.
func (s *ReviewSession) Snapshot() ReviewSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel of snapshots, starting with the current one.
// The caller must invoke the returned cancel function to avoid leaks.
// For a closed session the channel holds the last snapshot and is closed.
func (s *ReviewSession) Subscribe() (<-chan ReviewSnapshot, func()) {
	ch := make(chan ReviewSnapshot, 8)

	s.mu.Lock()
	defer s.mu.Unlock()
	ch <- s.snapshotLocked()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	s.touched = time.Now()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
			s.touched = time.Now()
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// IdleSince reports when the session was last used and whether anyone is
// subscribed to it right now.
func (s *ReviewSession) IdleSince() (since time.Time, attached bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.touched, len(s.subscribers) > 0
}

// Close stops the elapsed timer and releases subscribers.
func (s *ReviewSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stop := s.stopTick
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.mu.Unlock()

	// stop may wait for a running tick, which needs the lock.
	if stop != nil {
		stop()
	}
}

func (s *ReviewSession) broadcastLocked() {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the oldest snapshot so a slow reader never blocks review actions.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (s *ReviewSession) snapshotLocked() ReviewSnapshot {
	snap := ReviewSnapshot{
		SessionID:      s.id,
		Empty:          len(s.items) == 0,
		Index:          s.current,
		Total:          len(s.items),
		Correctness:    Unanswered,
		Progress:       s.progressLocked(),
		ElapsedSeconds: s.elapsed,
		Elapsed:        FormatElapsed(time.Duration(s.elapsed) * time.Second),
	}
	if len(s.items) > 0 {
		item := s.items[s.current]
		snap.Item = &item
		snap.State = s.states[s.current]
		snap.Correctness = Evaluate(item, snap.State)
	}
	return snap
}

// FormatElapsed renders d as m:ss.
func FormatElapsed(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
