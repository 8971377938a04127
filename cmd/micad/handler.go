package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"

	mica "github.com/avelline/mica"
	"github.com/avelline/mica/observer"
)

const maxRequestBodyBytes = 1 << 20 // 1MB

type server struct {
	engine *mica.Engine
	store  mica.Store
	inst   *observer.Instruments
	logger *slog.Logger
}

func newServer(engine *mica.Engine, store mica.Store, inst *observer.Instruments, logger *slog.Logger) *server {
	return &server{engine: engine, store: store, inst: inst, logger: logger}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ideas", s.handleCreateIdea)
	mux.HandleFunc("GET /ideas", s.handleListIdeas)
	mux.HandleFunc("POST /ideas/{id}/exchange", s.handleExchange)
	mux.HandleFunc("POST /ideas/{id}/abort", s.handleAbort)
	mux.HandleFunc("POST /ideas/{id}/errors", s.handleRuntimeError)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// createIdeaRequest is the parsed body of POST /ideas.
type createIdeaRequest struct {
	Title string `json:"title"`
}

func (s *server) handleCreateIdea(w http.ResponseWriter, r *http.Request) {
	var req createIdeaRequest
	if err := readBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	idea, err := s.store.CreateIdea(r.Context(), req.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, idea)
}

func (s *server) handleListIdeas(w http.ResponseWriter, r *http.Request) {
	ideas, err := s.store.ListIdeas(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ideas)
}

// exchangeRequest is the parsed body of POST /ideas/{id}/exchange.
type exchangeRequest struct {
	Message string `json:"message"`
}

func (s *server) handleExchange(w http.ResponseWriter, r *http.Request) {
	ideaID := r.PathValue("id")

	var req exchangeRequest
	if err := readBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	events, err := s.engine.StartExchange(r.Context(), ideaID, req.Message)
	switch {
	case errors.Is(err, mica.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown idea: "+ideaID)
		return
	case errors.Is(err, mica.ErrRunActive):
		writeError(w, http.StatusConflict, "exchange already active; abort it first")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := mica.ServeSSE(w, s.observeExchange(ideaID, events)); err != nil {
		s.logger.Warn("sse stream failed", "idea", ideaID, "error", err)
	}
}

// observeExchange forwards the stream while recording exchange metrics.
// Pass-through when the observer is disabled.
func (s *server) observeExchange(ideaID string, events <-chan mica.StreamEvent) <-chan mica.StreamEvent {
	if s.inst == nil {
		return events
	}
	out := make(chan mica.StreamEvent)
	start := time.Now()
	go func() {
		defer close(out)
		status := "error"
		for ev := range events {
			switch ev.Type {
			case mica.EventDone:
				status = "done"
			case mica.EventAborted:
				status = "aborted"
			}
			out <- ev
		}
		ctx := context.Background()
		attrs := metric.WithAttributes(
			observer.AttrIdeaID.String(ideaID),
			observer.AttrExchangeStatus.String(status),
		)
		s.inst.ExchangeCount.Add(ctx, 1, attrs)
		s.inst.ExchangeDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	}()
	return out
}

func (s *server) handleAbort(w http.ResponseWriter, r *http.Request) {
	aborted := s.engine.AbortExchange(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]bool{"aborted": aborted})
}

// runtimeErrorRequest is the parsed body of POST /ideas/{id}/errors,
// reported by the preview running agent-authored code.
type runtimeErrorRequest struct {
	Message string          `json:"message"`
	Source  *mica.SourceRef `json:"source,omitempty"`
}

func (s *server) handleRuntimeError(w http.ResponseWriter, r *http.Request) {
	ideaID := r.PathValue("id")

	var req runtimeErrorRequest
	if err := readBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	s.engine.Feed().Report(ideaID, req.Message, req.Source)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func readBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		return errors.New("failed to read request body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.New("invalid JSON: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
