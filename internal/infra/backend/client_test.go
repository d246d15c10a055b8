package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"studybuddy-client/internal/domain"
)

func TestFetchQuizzesDecodesBothOptionShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quizzes" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"question": "What is 2 + 2?", "options": "A) 3 B) 4 C) 5", "answer": "B"},
			{"question": "Capital of France?", "options": ["Paris", "Rome"], "correct_answer": "Paris"}
		]`)
	}))
	defer srv.Close()

	quizzes, err := newTestClient(srv).FetchQuizzes(context.Background())
	if err != nil {
		t.Fatalf("fetch quizzes: %v", err)
	}
	if len(quizzes) != 2 {
		t.Fatalf("expected 2 quizzes, got %d", len(quizzes))
	}
	if text, ok := quizzes[0].Options.Text(); !ok || text != "A) 3 B) 4 C) 5" || quizzes[0].Answer != "B" {
		t.Fatalf("unexpected first quiz %+v", quizzes[0])
	}
	if list, ok := quizzes[1].Options.List(); !ok || len(list) != 2 || quizzes[1].CorrectAnswer != "Paris" {
		t.Fatalf("unexpected second quiz %+v", quizzes[1])
	}
}

func TestFetchPlanAndFlashcards(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/planner":
			_, _ = io.WriteString(w, `[{"topic": "Cells", "revise_on": "2026-10-15", "status": "done"}]`)
		case "/flashcards":
			_, _ = io.WriteString(w, `[{"question": "ATP?", "answer": "Energy"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	client := newTestClient(srv)

	plan, err := client.FetchPlan(context.Background())
	if err != nil || len(plan) != 1 || plan[0].Status != "done" || plan[0].ReviseOn != "2026-10-15" {
		t.Fatalf("unexpected plan %+v (%v)", plan, err)
	}
	cards, err := client.FetchFlashcards(context.Background())
	if err != nil || len(cards) != 1 || cards[0].Answer != "Energy" {
		t.Fatalf("unexpected flashcards %+v (%v)", cards, err)
	}
}

func TestNon2xxBecomesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail": "Plan not found."}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchPlan(context.Background())
	var te *domain.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if te.Status != http.StatusNotFound || !strings.Contains(te.Error(), "Plan not found.") {
		t.Fatalf("unexpected error %v", te)
	}
}

func TestUploadSendsMultipartFileAndReportsProgress(t *testing.T) {
	var (
		gotName string
		gotBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload_pdf" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		gotName, gotBody = hdr.Filename, string(data)
		_, _ = io.WriteString(w, `{"status": "ok"}`)
	}))
	defer srv.Close()

	var (
		mu   sync.Mutex
		last float64
	)
	file := domain.UploadFile{Name: "notes.pdf", Data: []byte("%PDF-1.4 lecture notes")}
	err := newTestClient(srv).Upload(context.Background(), file, func(f float64) {
		mu.Lock()
		last = f
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if gotName != "notes.pdf" || gotBody != "%PDF-1.4 lecture notes" {
		t.Fatalf("server got %q %q", gotName, gotBody)
	}
	mu.Lock()
	defer mu.Unlock()
	if last != 1 {
		t.Fatalf("expected progress to reach 1, got %v", last)
	}
}

func TestGenerateStreamsEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range []string{
			`{"message": "Generating flashcards...", "progress": 10}`,
			`{"message": "Generating quizzes...", "progress": 50}`,
			`{"message": "Complete!", "progress": 100}`,
		} {
			fmt.Fprintf(w, "data: %s\n\n", ev)
			w.(http.Flusher).Flush()
		}
	}))
	defer srv.Close()

	stream, err := newTestClient(srv).Generate(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	defer stream.Close()

	var got []domain.GenerationEvent
	for {
		ev, err := stream.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		got = append(got, ev)
	}
	if len(got) != 3 || got[0].Progress != 10 || !got[2].Complete() {
		t.Fatalf("unexpected events %+v", got)
	}
}

func TestGenerateErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"error\": \"No materials uploaded.\"}\n\n")
	}))
	defer srv.Close()

	stream, err := newTestClient(srv).Generate(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	defer stream.Close()
	ev, err := stream.Next(context.Background())
	if err != nil || !ev.Failed() || ev.Error != "No materials uploaded." {
		t.Fatalf("expected error event, got %+v (%v)", ev, err)
	}
}

func TestGenerateBlockingFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status": "ok"}`)
	}))
	defer srv.Close()

	stream, err := newTestClient(srv).Generate(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	ev, err := stream.Next(context.Background())
	if err != nil || !ev.Complete() {
		t.Fatalf("expected single completion event, got %+v (%v)", ev, err)
	}
	if _, err := stream.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestGenerateNextHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	stream, err := newTestClient(srv).Generate(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := stream.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestAskSendsHistoryPairs(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"answer": "Y is another letter.", "sources": ["chunk 1"]}`)
	}))
	defer srv.Close()

	history := []domain.ChatTurn{{Question: "What is X?", Answer: "X is a letter."}}
	answer, err := newTestClient(srv).Ask(context.Background(), "What is Y?", history)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if answer.Text != "Y is another letter." || len(answer.Sources) != 1 {
		t.Fatalf("unexpected answer %+v", answer)
	}
	if got.Question != "What is Y?" || len(got.ChatHistory) != 1 || got.ChatHistory[0] != [2]string{"What is X?", "X is a letter."} {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestReadSSEFlushesTrailingEvent(t *testing.T) {
	var got []string
	err := readSSE(strings.NewReader(": ping\ndata: {\"a\":1}\n\ndata: line1\ndata: line2"), func(data string) error {
		got = append(got, data)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0] != `{"a":1}` || got[1] != "line1\nline2" {
		t.Fatalf("unexpected events %q", got)
	}
}

func newTestClient(srv *httptest.Server) *Client {
	return New(Options{BaseURL: srv.URL, Timeout: 5 * time.Second, LongTimeout: 5 * time.Second}, nil)
}
