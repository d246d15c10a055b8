package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"studybuddy-client/internal/app"
	"studybuddy-client/internal/domain"
	"studybuddy-client/internal/logger"
)

type WSHandler struct {
	service  *app.StudyService
	chat     *app.ChatSession
	ingest   *app.Orchestrator
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler builds the websocket endpoint. ingest may be nil, in which
// case no "ingest" messages are sent.
func NewWSHandler(service *app.StudyService, chat *app.ChatSession, ingest *app.Orchestrator, log *logger.Logger) *WSHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WSHandler{
		service: service,
		chat:    chat,
		ingest:  ingest,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	Option string `json:"option"`
}

type askPayload struct {
	Question string `json:"question"`
}

type refreshResult struct {
	Added      int `json:"added"`
	Total      int `json:"total"`
	Flashcards int `json:"flashcards"`
	Plan       int `json:"plan"`
}

type endedPayload struct {
	SessionID string `json:"sessionId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

func newError(err error) outboundMessage[any] {
	kind := "internal"
	switch {
	case domain.IsValidation(err):
		kind = "validation"
	case domain.IsTransport(err):
		kind = "transport"
	}
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error(), Kind: kind}}
}

// ServeWS upgrades to a websocket bound to one review session and a
// flashcard deck. With ?sessionId= it attaches to an existing session;
// otherwise it starts a new one that ends when the connection closes.
// The connection is closed when its session is ended elsewhere.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	var (
		session *app.ReviewSession
		owned   bool
	)
	if id := r.URL.Query().Get("sessionId"); id != "" {
		s, err := h.service.Review(id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		session = s
	} else {
		session = h.service.StartReview()
		owned = true
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		if owned {
			h.service.EndReview(session.ID())
		}
		return
	}
	defer conn.Close()
	if owned {
		defer h.service.EndReview(session.ID())
	}

	log := h.log.With("session", session.ID())
	deck := h.service.Deck()
	updates, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})
	var asks sync.WaitGroup

	// single writer; gorilla connections allow one concurrent writer.
	// After a write error it keeps draining so senders never block.
	go func() {
		defer close(writerDone)
		failed := false
		for msg := range send {
			if failed {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write error", "error", err)
				failed = true
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					// ended via the REST api; unblock the read loop
					h.trySend(send, closeSignals, outboundMessage[any]{Type: "ended", Payload: endedPayload{SessionID: session.ID()}})
					_ = conn.SetReadDeadline(time.Now())
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	ingestDone := make(chan struct{})
	if h.ingest != nil {
		statuses, cancelIngest := h.ingest.Subscribe()
		defer cancelIngest()
		go func() {
			defer close(ingestDone)
			first := true
			for {
				select {
				case status := <-statuses:
					// an idle orchestrator has nothing to report on connect
					if first && status.Phase == domain.PhaseIdle && len(status.Jobs) == 0 {
						first = false
						continue
					}
					first = false
					h.trySend(send, closeSignals, outboundMessage[any]{Type: "ingest", Payload: status})
				case <-closeSignals:
					return
				}
			}
		}()
	} else {
		close(ingestDone)
	}

	ctx, stop := context.WithCancel(r.Context())
	defer stop()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "select":
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- newError(errors.New("invalid select payload"))
				continue
			}
			if err := session.SelectOption(payload.Option); err != nil {
				send <- newError(err)
			}
		case "submit":
			if _, err := session.Submit(); err != nil {
				send <- newError(err)
			}
		case "next":
			session.Next()
		case "previous":
			session.Previous()
		case "ask":
			var payload askPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- newError(errors.New("invalid ask payload"))
				continue
			}
			asks.Add(1)
			go func() {
				defer asks.Done()
				turn, err := h.chat.Ask(ctx, payload.Question)
				if err != nil && !domain.IsTransport(err) {
					h.trySend(send, closeSignals, newError(err))
					return
				}
				h.trySend(send, closeSignals, outboundMessage[any]{Type: "chat", Payload: turn})
			}()
		case "flip":
			send <- outboundMessage[any]{Type: "deck", Payload: deck.Flip()}
		case "nextCard":
			send <- outboundMessage[any]{Type: "deck", Payload: deck.Next()}
		case "previousCard":
			send <- outboundMessage[any]{Type: "deck", Payload: deck.Previous()}
		case "deck":
			send <- outboundMessage[any]{Type: "deck", Payload: deck.View()}
		case "refresh":
			added, err := h.service.Refresh(ctx)
			if err != nil {
				send <- newError(err)
				continue
			}
			deck = h.service.Deck()
			view := deck.View()
			send <- outboundMessage[any]{Type: "refresh", Payload: refreshResult{
				Added:      added,
				Total:      session.Len(),
				Flashcards: view.Total,
				Plan:       len(h.service.Plan()),
			}}
			send <- outboundMessage[any]{Type: "deck", Payload: view}
		default:
			send <- newError(errors.New("unsupported message type"))
		}
	}

	stop()
	close(closeSignals)
	<-updatesDone
	<-ingestDone
	asks.Wait()
	close(send)
	<-writerDone
}

func (h *WSHandler) trySend(send chan<- outboundMessage[any], closed <-chan struct{}, msg outboundMessage[any]) {
	select {
	case send <- msg:
	case <-closed:
	}
}
