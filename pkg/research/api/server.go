// Package api exposes the research engine over HTTP. Step events stream to
// clients as server-sent events; run control is plain JSON.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/randalmurphal/stateflow/pkg/research"
	"github.com/randalmurphal/stateflow/pkg/stateflow"
)

// Server handles HTTP requests against a research engine.
type Server struct {
	engine *research.Engine
	logger *slog.Logger
	router *mux.Router
}

// NewServer creates an API server over the given engine.
func NewServer(engine *research.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine: engine,
		logger: logger,
		router: mux.NewRouter(),
	}

	s.router.HandleFunc("/runs", s.startRun).Methods(http.MethodPost)
	s.router.HandleFunc("/runs/{threadID}", s.getRun).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{threadID}/resume", s.resumeRun).Methods(http.MethodPost)
	s.router.HandleFunc("/events", s.firehose).Methods(http.MethodGet)

	return s
}

// Handler returns the HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.router)
}

// StartRunRequest is the body of POST /runs.
type StartRunRequest struct {
	Query       string `json:"query"`
	SessionName string `json:"session_name,omitempty"`
}

// ResumeRunRequest is the body of POST /runs/{threadID}/resume.
type ResumeRunRequest struct {
	Approved bool `json:"approved"`
}

// startRun handles POST /runs: starts a run and streams its step events as
// SSE. The thread ID is sent in the X-Thread-ID header and as the first SSE
// event, so clients can resume after a suspension.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}

	threadID, events, err := s.engine.StartRun(r.Context(), req.Query, req.SessionName)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("X-Thread-ID", threadID)
	flusher, ok := beginSSE(w)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sendSSE(w, flusher, "run", map[string]string{"thread_id": threadID})
	s.streamEvents(w, flusher, r, events)
}

// resumeRun handles POST /runs/{threadID}/resume.
func (s *Server) resumeRun(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["threadID"]

	var req ResumeRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	events, err := s.engine.ResumeRun(r.Context(), threadID, req.Approved)
	if err != nil {
		switch {
		case errors.Is(err, stateflow.ErrNoSuchThread):
			respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, stateflow.ErrNotSuspended):
			respondError(w, http.StatusConflict, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	flusher, ok := beginSSE(w)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	s.streamEvents(w, flusher, r, events)
}

// getRun handles GET /runs/{threadID}: returns the latest checkpointed state.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["threadID"]

	doc, err := s.engine.State(threadID)
	if err != nil {
		if errors.Is(err, stateflow.ErrNoSuchThread) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, doc)
}

// firehose handles GET /events: a best-effort SSE tap of step events across
// all threads. Per-run ordering is only guaranteed on the run's own stream.
func (s *Server) firehose(w http.ResponseWriter, r *http.Request) {
	sub := s.engine.Subscribe()
	if sub == nil {
		respondError(w, http.StatusServiceUnavailable, "engine is shut down")
		return
	}
	defer sub.Unsubscribe()

	flusher, ok := beginSSE(w)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		select {
		case ev, open := <-sub.C():
			if !open {
				return
			}
			sendSSE(w, flusher, "step", ev)
		case <-r.Context().Done():
			return
		}
	}
}

// streamEvents forwards a run's event channel to the client until the run
// ends or the client disconnects. Abandoning the stream does not cancel the
// run; it continues to its next checkpoint-durable stopping point.
func (s *Server) streamEvents(w http.ResponseWriter, flusher http.Flusher, r *http.Request, events <-chan research.StepEvent) {
	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			sendSSE(w, flusher, "step", ev)
		case <-r.Context().Done():
			s.logger.Debug("client disconnected from event stream")
			go drain(events)
			return
		}
	}
}

// drain consumes remaining events so the run's synchronous sink never blocks
// on a departed client.
func drain(events <-chan research.StepEvent) {
	for range events {
	}
}

func beginSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
	flusher.Flush()
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
