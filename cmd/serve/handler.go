package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/event"
	"github.com/spetersoncode/longform/generator"
	"github.com/spetersoncode/longform/pipeline"
	"github.com/spetersoncode/longform/task"
)

// Server exposes blog generation and content transformation over HTTP.
type Server struct {
	generator    *generator.Generator
	pipeline     *pipeline.Service
	tasks        *task.Manager
	pollInterval time.Duration
	corsOrigin   string
	metrics      http.Handler
	logger       *slog.Logger
}

// Routes returns the server's handler with CORS applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/transform", s.handleTransform)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleTask)
	mux.HandleFunc("GET /api/tasks/{id}/events", s.handleTaskEvents)
	mux.HandleFunc("POST /api/tasks/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/blog", s.handleBlog)
	mux.HandleFunc("GET /health", healthHandler)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return corsMiddleware(s.corsOrigin, mux)
}

// handleTransform starts a transformation task and returns its id. Progress
// is read from /api/tasks/{id}/events.
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("invalid request body", "error", err)
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}

	id := s.tasks.Create()
	s.pipeline.Start(r.Context(), id, req)
	s.logger.Info("transform started", "task_id", id, "content_length", len(req.Content), "page_count", req.PageCount)

	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id, "status": string(task.StatusPending)})
}

// handleTask returns a snapshot of a task.
func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	p, ok := s.tasks.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleCancel cancels a running task.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, ok := s.tasks.Get(id)
	if !ok {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	if !s.tasks.Cancel(id) {
		http.Error(w, fmt.Sprintf("task is %s", p.Status), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task_id": id, "cancelled": true})
}

// handleTaskEvents streams a task's events as SSE until the task ends or
// the client goes away.
func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	log := s.logger.With("task_id", id)

	events, err := s.tasks.Listen(r.Context(), id, s.pollInterval)
	if errors.Is(err, task.ErrTaskNotFound) {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error("listen failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	flusher, ok := startSSE(w)
	if !ok {
		log.Error("streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var count int
	for e := range events {
		data, err := e.JSONData()
		if err != nil {
			log.Error("failed to serialize event", "error", err, "event", e.Name)
			continue
		}
		if err := writeSSE(w, flusher, string(e.Name), data); err != nil {
			log.Warn("client went away", "error", err, "events_sent", count)
			return
		}
		count++
	}
	log.Debug("task stream closed", "events_sent", count)
}

// handleBlog generates an article and streams the workflow events as SSE.
// The stream ends with a result event carrying the summary, or an error
// event when the run aborted.
func (s *Server) handleBlog(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req generator.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("invalid request body", "error", err)
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	runID, events, err := s.generator.GenerateStream(r.Context(), req)
	if err != nil {
		s.logger.Warn("blog request rejected", "error", err)
		writeError(w, err)
		return
	}
	log := s.logger.With("run_id", runID)
	log.Info("blog request started", "topic", req.Topic)

	flusher, ok := startSSE(w)
	if !ok {
		log.Error("streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var last event.Event
	var count int
	for e := range events {
		last = e
		if e.Type == event.RunEnd {
			// The summary below carries the document.
			e.State = nil
		}
		data, err := json.Marshal(e)
		if err != nil {
			log.Error("failed to serialize event", "error", err, "event_type", e.Type)
			continue
		}
		if err := writeSSE(w, flusher, string(e.Type), data); err != nil {
			log.Warn("client went away", "error", err, "events_sent", count)
			return
		}
		count++
	}

	if last.Type != event.RunEnd || last.State == nil {
		msg := "run ended without a result"
		if last.Error != nil {
			msg = last.Error.Error()
		}
		data, _ := json.Marshal(map[string]string{"run_id": runID, "error": msg})
		writeSSE(w, flusher, "error", data)
		log.Error("blog request failed", "duration_ms", time.Since(start).Milliseconds(), "error", msg)
		return
	}

	out := generator.Summarize(runID, last.State)
	data, err := json.Marshal(out)
	if err != nil {
		log.Error("failed to serialize result", "error", err)
		return
	}
	writeSSE(w, flusher, "result", data)
	log.Info("blog request completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"events_sent", count,
		"success", out.Success,
	)
}

func startSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher, true
}

// writeSSE writes one event in SSE format: event: NAME\ndata: {json}\n\n
func writeSSE(w http.ResponseWriter, flusher http.Flusher, name string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	flusher.Flush()
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps user-input errors to their status code and everything
// else to 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if longform.IsUserInput(err) {
		status = http.StatusBadRequest
		if code := longform.StatusCodeOf(err); code != 0 {
			status = code
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// corsMiddleware adds CORS headers for cross-origin frontend requests.
func corsMiddleware(origin string, next http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// healthHandler returns a simple health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
