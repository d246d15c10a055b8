package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/cors"

	"studybuddy-client/internal/app"
	"studybuddy-client/internal/domain"
	"studybuddy-client/internal/logger"
)

// maxIngestBytes caps one multipart ingest request.
const maxIngestBytes = 64 << 20

// API serves the REST views next to the websocket. Ingestion batches started
// over HTTP run in the background under ctx.
type API struct {
	ctx     context.Context
	service *app.StudyService
	chat    *app.ChatSession
	ingest  *app.Orchestrator
	log     *logger.Logger
	now     func() time.Time

	mu        sync.Mutex
	ingesting bool
	runs      sync.WaitGroup
}

func NewAPI(ctx context.Context, service *app.StudyService, chat *app.ChatSession, ingest *app.Orchestrator, log *logger.Logger) *API {
	if log == nil {
		log = logger.Nop()
	}
	return &API{ctx: ctx, service: service, chat: chat, ingest: ingest, log: log, now: time.Now}
}

type planResponse struct {
	Week     app.Week              `json:"week"`
	Stats    app.PlanStats         `json:"stats"`
	Upcoming []app.UpcomingSession `json:"upcoming"`
}

// NewRouter wires the REST routes and the websocket under one CORS policy.
func NewRouter(api *API, ws *WSHandler, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/plan", api.GetPlan)
	mux.HandleFunc("GET /api/plan.ics", api.DownloadPlan)
	mux.HandleFunc("GET /api/flashcards", api.GetFlashcards)
	mux.HandleFunc("GET /api/chat", api.GetChat)
	mux.HandleFunc("POST /api/reviews", api.StartReview)
	mux.HandleFunc("DELETE /api/reviews/{id}", api.EndReview)
	mux.HandleFunc("GET /api/ingest", api.GetIngest)
	mux.HandleFunc("POST /api/ingest", api.Ingest)
	mux.HandleFunc("/ws", ws.ServeWS)

	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Accept", "Origin"},
		MaxAge:         86400,
	}).Handler(mux)
}

// GetPlan returns the week at ?week=N (0 is the current week) with stats.
func (a *API) GetPlan(w http.ResponseWriter, r *http.Request) {
	offset := 0
	if raw := r.URL.Query().Get("week"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "week must be an integer", http.StatusBadRequest)
			return
		}
		offset = n
	}
	planner := a.service.Planner(a.now())
	planner.SetWeek(offset)
	writeJSON(w, planResponse{Week: planner.Week(), Stats: planner.Stats(), Upcoming: planner.Upcoming()})
}

func (a *API) DownloadPlan(w http.ResponseWriter, r *http.Request) {
	if len(a.service.Plan()) == 0 {
		http.Error(w, "Plan not found.", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/calendar")
	w.Header().Set("Content-Disposition", "attachment; filename=plan.ics")
	now := a.now()
	if err := a.service.Planner(now).ExportICS(w, now); err != nil {
		a.log.Warn("write plan ics", "error", err)
	}
}

type flashcardsResponse struct {
	Cards    []domain.FlashCard `json:"cards"`
	LoadedAt time.Time          `json:"loadedAt"`
}

func (a *API) GetFlashcards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, flashcardsResponse{Cards: a.service.Flashcards(), LoadedAt: a.service.LoadedAt()})
}

func (a *API) GetChat(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.chat.Turns())
}

// StartReview creates a review session a websocket can later attach to.
func (a *API) StartReview(w http.ResponseWriter, r *http.Request) {
	session := a.service.StartReview()
	writeJSONStatus(w, http.StatusCreated, map[string]string{"sessionId": session.ID()})
}

// EndReview stops a review session's timer and forgets it.
func (a *API) EndReview(w http.ResponseWriter, r *http.Request) {
	if !a.service.EndReview(r.PathValue("id")) {
		http.Error(w, domain.ErrSessionNotFound.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) GetIngest(w http.ResponseWriter, r *http.Request) {
	if a.ingest == nil {
		http.Error(w, "ingestion is not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, a.ingest.Status())
}

// Ingest queues the documents posted as multipart "file" fields and runs the
// batch in the background. Progress reaches websocket clients as "ingest"
// messages; the collections are reloaded once generation completes.
func (a *API) Ingest(w http.ResponseWriter, r *http.Request) {
	if a.ingest == nil {
		http.Error(w, "ingestion is not configured", http.StatusServiceUnavailable)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBytes)
	if err := r.ParseMultipartForm(maxIngestBytes); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		http.Error(w, domain.ErrNoFiles.Error(), http.StatusBadRequest)
		return
	}
	files := make([]domain.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			http.Error(w, "invalid multipart body", http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			http.Error(w, fmt.Sprintf("read %s", fh.Filename), http.StatusBadRequest)
			return
		}
		files = append(files, domain.UploadFile{Name: fh.Filename, Data: data})
	}

	a.mu.Lock()
	err := a.ingest.Queue(files...)
	start := err == nil && !a.ingesting
	if start {
		a.ingesting = true
		a.runs.Add(1)
	}
	a.mu.Unlock()
	switch {
	case errors.Is(err, domain.ErrBatchInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if start {
		go a.runIngest()
	}
	writeJSONStatus(w, http.StatusAccepted, a.ingest.Status())
}

// runIngest drains the queue. Files queued while a run is being set up join
// the next pass instead of starting a second runner.
func (a *API) runIngest() {
	defer a.runs.Done()
	for {
		if _, err := a.service.Ingest(a.ctx, a.ingest); err != nil {
			a.log.Warn("ingest failed", "error", err)
		}
		a.mu.Lock()
		if len(a.ingest.Queued()) == 0 || a.ctx.Err() != nil {
			a.ingesting = false
			a.mu.Unlock()
			return
		}
		a.mu.Unlock()
	}
}

// Wait blocks until background ingestion has stopped.
func (a *API) Wait() {
	a.runs.Wait()
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
