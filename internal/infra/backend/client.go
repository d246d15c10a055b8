// Package backend talks to the study material generation service over HTTP.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"studybuddy-client/internal/domain"
	"studybuddy-client/internal/logger"
)

// Options configures the client. Zero durations fall back to 5 and 10 minutes.
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	LongTimeout    time.Duration // uploads and generation
	GenerateMethod string
}

// Client implements the app collaborator contracts (Uploader, Generator,
// ArtifactSource, Assistant) against the backend routes.
type Client struct {
	short          *resty.Client
	long           *resty.Client
	generateMethod string
	log            *logger.Logger
}

func New(opts Options, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.LongTimeout <= 0 {
		opts.LongTimeout = 10 * time.Minute
	}
	if opts.GenerateMethod == "" {
		opts.GenerateMethod = resty.MethodGet
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	return &Client{
		short:          newResty(base, opts.Timeout, log),
		long:           newResty(base, opts.LongTimeout, log),
		generateMethod: strings.ToUpper(opts.GenerateMethod),
		log:            log.With("component", "backend"),
	}
}

func newResty(base string, timeout time.Duration, log *logger.Logger) *resty.Client {
	return resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetLogger(log.SugaredLogger)
}

// Health reports whether the backend answers its health route.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.short.R().SetContext(ctx).Get("/health")
	return checkResponse("health", resp, err)
}

func (c *Client) FetchFlashcards(ctx context.Context) ([]domain.FlashCard, error) {
	var cards []domain.FlashCard
	if err := c.getJSON(ctx, "/flashcards", &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

func (c *Client) FetchQuizzes(ctx context.Context) ([]domain.RawQuiz, error) {
	var quizzes []domain.RawQuiz
	if err := c.getJSON(ctx, "/quizzes", &quizzes); err != nil {
		return nil, err
	}
	return quizzes, nil
}

func (c *Client) FetchPlan(ctx context.Context) ([]domain.RawPlanItem, error) {
	var plan []domain.RawPlanItem
	if err := c.getJSON(ctx, "/planner", &plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	op := "fetch " + strings.TrimPrefix(path, "/")
	resp, err := c.short.R().SetContext(ctx).Get(path)
	if err := checkResponse(op, resp, err); err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body(), dst); err != nil {
		return domain.NewTransportError(op, resp.StatusCode(), fmt.Errorf("decode: %w", err))
	}
	return nil
}

// checkResponse turns a resty outcome into a TransportError when the call
// failed or the status is not 2xx.
func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return domain.NewTransportError(op, 0, err)
	}
	if resp.IsError() {
		return domain.NewTransportError(op, resp.StatusCode(), errors.New(detail(resp.Body())))
	}
	return nil
}

// detail extracts FastAPI's {"detail": ...} message, or the trimmed body.
func detail(body []byte) string {
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != nil {
		return fmt.Sprint(payload.Detail)
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = "empty response"
	}
	return msg
}
