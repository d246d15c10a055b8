package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"studybuddy-client/internal/app"
	"studybuddy-client/internal/domain"
	"studybuddy-client/internal/infra/memory"
	"studybuddy-client/internal/infra/schedule"
)

func TestEndReviewStopsItsTimer(t *testing.T) {
	ticker := schedule.NewTicker(nil)
	defer ticker.Stop()
	server, _ := newTestEnv(t, ticker, nil)
	defer server.Close()

	ids := []string{startReview(t, server), startReview(t, server), startReview(t, server)}
	if got := ticker.Jobs(); got != 3 {
		t.Fatalf("expected 3 session timers, got %d", got)
	}
	for _, id := range ids {
		if status := deleteReview(t, server, id); status != http.StatusNoContent {
			t.Fatalf("expected 204 ending %s, got %d", id, status)
		}
	}
	if got := ticker.Jobs(); got != 0 {
		t.Fatalf("expected timers removed, got %d", got)
	}
	if status := deleteReview(t, server, ids[0]); status != http.StatusNotFound {
		t.Fatalf("expected 404 for an ended session, got %d", status)
	}
}

func TestDetachedReviewsAreReaped(t *testing.T) {
	ticker := schedule.NewTicker(nil)
	defer ticker.Stop()
	server, env := newTestEnv(t, ticker, nil)
	defer server.Close()

	orphan := startReview(t, server)
	attached := startReview(t, server)
	conn := dial(t, server, attached)
	defer conn.Close()
	readNext(conn, t, "state")

	if ended := env.service.ReapIdle(0); ended != 1 {
		t.Fatalf("expected one detached session ended, got %d", ended)
	}
	if got := ticker.Jobs(); got != 1 {
		t.Fatalf("expected one timer left, got %d", got)
	}
	if _, err := env.service.Review(orphan); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected %s gone, got %v", orphan, err)
	}
	if _, err := env.service.Review(attached); err != nil {
		t.Fatalf("attached session must survive: %v", err)
	}
}

func TestEndingAttachedReviewClosesSocket(t *testing.T) {
	server, _ := newTestServer(t)
	defer server.Close()

	id := startReview(t, server)
	conn := dial(t, server, id)
	defer conn.Close()
	readNext(conn, t, "state")

	if status := deleteReview(t, server, id); status != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", status)
	}
	_, ended := readNext(conn, t, "ended")
	if ended["sessionId"] != id {
		t.Fatalf("unexpected ended payload %v", ended)
	}
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err == nil {
		t.Fatalf("expected connection closed, got %v", msg)
	}
}

func TestWebSocketRefreshReloadsPlanAndFlashcards(t *testing.T) {
	server, source := newTestServer(t)
	defer server.Close()

	conn := dial(t, server, "")
	defer conn.Close()
	readNext(conn, t, "state")

	source.AddPlanItems(domain.RawPlanItem{Topic: "Enzymes", Status: "pending"})
	source.AddFlashcards(domain.FlashCard{Question: "DNA?", Answer: "Genetic material"})
	write(t, conn, "refresh", nil)

	_, result := readNext(conn, t, "refresh")
	if result["added"].(float64) != 0 || result["plan"].(float64) != 3 || result["flashcards"].(float64) != 2 {
		t.Fatalf("unexpected refresh result %v", result)
	}
	_, deck := readNext(conn, t, "deck")
	if deck["total"].(float64) != 2 {
		t.Fatalf("expected the deck rebuilt with 2 cards, got %v", deck)
	}

	plan := getPlan(t, server)
	if plan.Stats.Total != 3 {
		t.Fatalf("expected plan total 3 after refresh, got %+v", plan.Stats)
	}
	resp, err := http.Get(server.URL + "/api/flashcards")
	if err != nil {
		t.Fatalf("get flashcards: %v", err)
	}
	var cards flashcardsResponse
	_ = json.NewDecoder(resp.Body).Decode(&cards)
	resp.Body.Close()
	if len(cards.Cards) != 2 {
		t.Fatalf("expected 2 flashcards, got %d", len(cards.Cards))
	}
}

func TestRESTIngestRunsBatchAndReloads(t *testing.T) {
	uploader := &recordingUploader{}
	generator := &sourceGenerator{}
	ingest := app.NewOrchestrator(uploader, generator, []string{".pdf"}, nil)
	server, env := newTestEnv(t, nil, ingest)
	defer server.Close()
	generator.source = env.source

	conn := dial(t, server, "")
	defer conn.Close()
	readNext(conn, t, "state")

	resp := postFiles(t, server, "biology.pdf")
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	sawDone, sawReload := false, false
	for !sawDone || !sawReload {
		typ, payload := readNext(conn, t, "")
		switch typ {
		case "ingest":
			if payload["phase"] == string(domain.PhaseFailed) {
				t.Fatalf("ingest failed: %v", payload)
			}
			sawDone = sawDone || payload["phase"] == string(domain.PhaseDone)
		case "state":
			sawReload = sawReload || payload["total"].(float64) == 3
		}
	}
	env.api.Wait()

	if names := uploader.names(); len(names) != 1 || names[0] != "biology.pdf" {
		t.Fatalf("unexpected uploads %v", names)
	}
	if plan := getPlan(t, server); plan.Stats.Total != 3 {
		t.Fatalf("expected plan reloaded after ingest, got %+v", plan.Stats)
	}
	statusResp, err := http.Get(server.URL + "/api/ingest")
	if err != nil {
		t.Fatalf("get ingest: %v", err)
	}
	var status app.IngestionStatus
	_ = json.NewDecoder(statusResp.Body).Decode(&status)
	statusResp.Body.Close()
	if status.Phase != domain.PhaseDone || status.Text != "Complete!" {
		t.Fatalf("unexpected ingest status %+v", status)
	}
}

func TestRESTIngestRejectsBadUploads(t *testing.T) {
	ingest := app.NewOrchestrator(&recordingUploader{}, &sourceGenerator{}, []string{".pdf"}, nil)
	server, _ := newTestEnv(t, nil, ingest)
	defer server.Close()

	resp := postFiles(t, server, "notes.txt")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported file, got %d", resp.StatusCode)
	}
	resp = postFiles(t, server)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without files, got %d", resp.StatusCode)
	}
	if queued := ingest.Queued(); len(queued) != 0 {
		t.Fatalf("nothing should be queued, got %v", queued)
	}
}

func startReview(t *testing.T, server *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(server.URL+"/api/reviews", "application/json", nil)
	if err != nil {
		t.Fatalf("start review: %v", err)
	}
	defer resp.Body.Close()
	var created map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&created)
	if created["sessionId"] == "" {
		t.Fatalf("expected session id")
	}
	return created["sessionId"]
}

func deleteReview(t *testing.T, server *httptest.Server, id string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/reviews/"+id, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("end review: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func getPlan(t *testing.T, server *httptest.Server) planResponse {
	t.Helper()
	resp, err := http.Get(server.URL + "/api/plan")
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	defer resp.Body.Close()
	var plan planResponse
	_ = json.NewDecoder(resp.Body).Decode(&plan)
	return plan
}

func postFiles(t *testing.T, server *httptest.Server, names ...string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range names {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		_, _ = fw.Write([]byte("%PDF-1.4 " + name))
	}
	_ = mw.Close()
	resp, err := http.Post(server.URL+"/api/ingest", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("post ingest: %v", err)
	}
	return resp
}

type recordingUploader struct {
	mu       sync.Mutex
	uploaded []string
}

func (u *recordingUploader) Upload(_ context.Context, file domain.UploadFile, onProgress func(float64)) error {
	onProgress(1)
	u.mu.Lock()
	u.uploaded = append(u.uploaded, file.Name)
	u.mu.Unlock()
	return nil
}

func (u *recordingUploader) names() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.uploaded...)
}

// sourceGenerator adds one quiz and one plan entry to the source, the way the
// backend publishes new material when generation runs.
type sourceGenerator struct {
	source *memory.StaticSource
}

func (g *sourceGenerator) Generate(context.Context) (app.GenerationStream, error) {
	g.source.AddQuizzes(domain.RawQuiz{
		Question:      "What do ribosomes make?",
		Options:       domain.StructuredOptions([]string{"proteins", "lipids"}),
		CorrectAnswer: "proteins",
	})
	g.source.AddPlanItems(domain.RawPlanItem{Topic: "Ribosomes", Status: "pending"})
	return &completeStream{}, nil
}

type completeStream struct {
	sent bool
}

func (s *completeStream) Next(context.Context) (domain.GenerationEvent, error) {
	if s.sent {
		return domain.GenerationEvent{}, io.EOF
	}
	s.sent = true
	return domain.GenerationEvent{Message: "Complete!", Progress: 100}, nil
}

func (s *completeStream) Close() error { return nil }
