// Package openai answers study questions directly through the OpenAI chat API.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"studybuddy-client/internal/app"
	"studybuddy-client/internal/domain"
)

const systemPrompt = `You are a helpful study assistant. Your goal is to provide clear, concise, and comprehensive answers based on the provided context.

When answering, please follow these guidelines:
1.  **Direct Answer:** Start with a direct answer to the user's question. Do not repeat the question.
2.  **Explanation:** If the topic is complex, provide a brief explanation.
3.  **Example:** If applicable, include a simple example to illustrate the concept.
4.  **Be Concise:** Do not repeat yourself or provide redundant information.

If you don't know the answer from the context, simply state that the information is not available in the provided materials.`

// ContextFunc supplies study material to ground an answer in. It may return "".
type ContextFunc func(question string) string

// Assistant implements app.Assistant on chat completions, replaying prior
// turns as user/assistant messages.
type Assistant struct {
	client  *openai.Client
	model   string
	context ContextFunc
}

func NewAssistant(apiKey, model string, material ContextFunc) *Assistant {
	return NewAssistantWithConfig(openai.DefaultConfig(apiKey), model, material)
}

// NewAssistantWithConfig allows pointing the client at another base URL.
func NewAssistantWithConfig(cfg openai.ClientConfig, model string, material ContextFunc) *Assistant {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Assistant{client: openai.NewClientWithConfig(cfg), model: model, context: material}
}

func (a *Assistant) Ask(ctx context.Context, question string, history []domain.ChatTurn) (app.ChatAnswer, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2*len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	for _, turn := range history {
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: turn.Question},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: turn.Answer},
		)
	}

	var material string
	if a.context != nil {
		material = a.context(question)
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: fmt.Sprintf("Based on the following context, please answer the question.\n\nContext:\n---\n%s\n---\n\nQuestion: %s", material, question),
	})

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: messages,
	})
	if err != nil {
		status := 0
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.HTTPStatusCode
		}
		return app.ChatAnswer{}, domain.NewTransportError("chat completion", status, err)
	}
	if len(resp.Choices) == 0 {
		return app.ChatAnswer{}, domain.NewTransportError("chat completion", 0, errors.New("no choices returned"))
	}
	return app.ChatAnswer{Text: resp.Choices[0].Message.Content}, nil
}
