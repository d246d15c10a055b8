package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"studybuddy-client/internal/app"
	"studybuddy-client/internal/domain"
)

// Generate starts /generate_all. A text/event-stream response is consumed
// event by event; any other 2xx response is treated as the blocking variant
// and yields a single completion event.
func (c *Client) Generate(ctx context.Context) (app.GenerationStream, error) {
	resp, err := c.long.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream").
		Execute(c.generateMethod, "/generate_all")
	if err != nil {
		return nil, domain.NewTransportError("generate", 0, err)
	}
	body := resp.RawBody()
	if resp.IsError() {
		defer body.Close()
		payload, _ := io.ReadAll(io.LimitReader(body, 4096))
		return nil, domain.NewTransportError("generate", resp.StatusCode(), errors.New(detail(payload)))
	}

	if strings.HasPrefix(resp.Header().Get("Content-Type"), "text/event-stream") {
		return newEventStream(body), nil
	}

	defer body.Close()
	payload, err := io.ReadAll(body)
	if err != nil {
		return nil, domain.NewTransportError("generate", resp.StatusCode(), err)
	}
	c.log.Debug("generation returned without a stream")
	return &staticStream{events: []domain.GenerationEvent{blockingResult(payload)}}, nil
}

// blockingResult maps a non-streamed response body onto a terminal event.
func blockingResult(payload []byte) domain.GenerationEvent {
	var ev domain.GenerationEvent
	if err := json.Unmarshal(payload, &ev); err == nil && ev.Failed() {
		return ev
	}
	msg := ev.Message
	if msg == "" {
		msg = "Complete!"
	}
	return domain.GenerationEvent{Message: msg, Progress: 100}
}

type streamResult struct {
	ev  domain.GenerationEvent
	err error
}

// eventStream decodes SSE data lines on a background goroutine so Next can
// give up on ctx without waiting for the next byte from the server.
type eventStream struct {
	body   io.ReadCloser
	events chan streamResult
	done   chan struct{}
	once   sync.Once
}

func newEventStream(body io.ReadCloser) *eventStream {
	s := &eventStream{
		body:   body,
		events: make(chan streamResult),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *eventStream) run() {
	defer close(s.events)
	err := readSSE(s.body, func(data string) error {
		var ev domain.GenerationEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("decode event %q: %w", data, err)
		}
		select {
		case s.events <- streamResult{ev: ev}:
			return nil
		case <-s.done:
			return io.EOF
		}
	})
	if err != nil && !errors.Is(err, io.EOF) {
		select {
		case s.events <- streamResult{err: domain.NewTransportError("generate", 0, err)}:
		case <-s.done:
		}
	}
}

func (s *eventStream) Next(ctx context.Context) (domain.GenerationEvent, error) {
	select {
	case <-ctx.Done():
		return domain.GenerationEvent{}, ctx.Err()
	case r, ok := <-s.events:
		if !ok {
			return domain.GenerationEvent{}, io.EOF
		}
		return r.ev, r.err
	}
}

func (s *eventStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.body.Close()
	})
	return err
}

// readSSE calls onData with the joined data lines of every event in r.
func readSSE(r io.Reader, onData func(data string) error) error {
	br := bufio.NewReader(r)
	var dataLines []string

	flush := func() error {
		if len(dataLines) == 0 {
			return nil
		}
		data := strings.Join(dataLines, "\n")
		dataLines = nil
		return onData(data)
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := err != nil
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if ferr := flush(); ferr != nil {
				return ferr
			}
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}

		if eof {
			return flush()
		}
	}
}

// staticStream replays a fixed list of events.
type staticStream struct {
	events []domain.GenerationEvent
	next   int
}

func (s *staticStream) Next(ctx context.Context) (domain.GenerationEvent, error) {
	if err := ctx.Err(); err != nil {
		return domain.GenerationEvent{}, err
	}
	if s.next >= len(s.events) {
		return domain.GenerationEvent{}, io.EOF
	}
	ev := s.events[s.next]
	s.next++
	return ev, nil
}

func (s *staticStream) Close() error { return nil }
