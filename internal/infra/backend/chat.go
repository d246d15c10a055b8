package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"studybuddy-client/internal/app"
	"studybuddy-client/internal/domain"
)

type chatRequest struct {
	Question    string      `json:"question"`
	ChatHistory [][2]string `json:"chat_history"`
}

type chatResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Ask posts the question with prior turns as [question, answer] pairs.
func (c *Client) Ask(ctx context.Context, question string, history []domain.ChatTurn) (app.ChatAnswer, error) {
	req := chatRequest{Question: question, ChatHistory: make([][2]string, 0, len(history))}
	for _, turn := range history {
		req.ChatHistory = append(req.ChatHistory, [2]string{turn.Question, turn.Answer})
	}

	resp, err := c.short.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("/chat")
	if err := checkResponse("chat", resp, err); err != nil {
		return app.ChatAnswer{}, err
	}

	var out chatResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return app.ChatAnswer{}, domain.NewTransportError("chat", resp.StatusCode(), fmt.Errorf("decode: %w", err))
	}
	return app.ChatAnswer{Text: out.Answer, Sources: out.Sources}, nil
}
