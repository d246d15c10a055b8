package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"studybuddy-client/internal/domain"
	"studybuddy-client/internal/logger"
)

// ChatErrorAnswer is recorded as the answer of a turn whose ask failed.
const ChatErrorAnswer = "❌ Error contacting server. Please try again."

// ChatAnswer is the assistant's reply to one question.
type ChatAnswer struct {
	Text    string
	Sources []string
}

// Assistant answers a question given the prior successful turns, oldest first.
type Assistant interface {
	Ask(ctx context.Context, question string, history []domain.ChatTurn) (ChatAnswer, error)
}

// ChatSession is an append-only conversation with at most one ask outstanding.
type ChatSession struct {
	assistant Assistant
	inflight  *semaphore.Weighted
	log       *logger.Logger
	now       func() time.Time

	mu    sync.RWMutex
	turns []domain.ChatTurn
}

func NewChatSession(assistant Assistant, log *logger.Logger) *ChatSession {
	if log == nil {
		log = logger.Nop()
	}
	return &ChatSession{
		assistant: assistant,
		inflight:  semaphore.NewWeighted(1),
		log:       log,
		now:       time.Now,
	}
}

// Ask sends question with the conversation so far and records the reply.
// A second Ask while one is outstanding is refused with ErrAskInFlight.
// When the assistant fails, a turn carrying ChatErrorAnswer is still recorded
// and the error is returned alongside it.
func (c *ChatSession) Ask(ctx context.Context, question string) (domain.ChatTurn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.ChatTurn{}, domain.ErrEmptyQuestion
	}
	if !c.inflight.TryAcquire(1) {
		return domain.ChatTurn{}, domain.ErrAskInFlight
	}
	defer c.inflight.Release(1)

	turn := domain.ChatTurn{Question: question, AskedAt: c.now()}
	answer, err := c.assistant.Ask(ctx, question, c.History())
	if err != nil {
		turn.Answer = ChatErrorAnswer
		turn.Failed = true
		c.log.Warn("chat ask failed", "error", err)
	} else {
		turn.Answer = answer.Text
		turn.Sources = answer.Sources
	}

	c.mu.Lock()
	c.turns = append(c.turns, turn)
	c.mu.Unlock()
	return turn, err
}

// Turns returns every recorded turn, failed ones included.
func (c *ChatSession) Turns() []domain.ChatTurn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.ChatTurn(nil), c.turns...)
}

// History returns the successful turns sent as context with the next ask.
func (c *ChatSession) History() []domain.ChatTurn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.ChatTurn, 0, len(c.turns))
	for _, t := range c.turns {
		if !t.Failed {
			out = append(out, t)
		}
	}
	return out
}
