// Package orchestrator exposes the small control-plane HTTP server that
// launches the scraping and enhancement pipelines as child processes and
// streams their output to the caller over Server-Sent Events.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"articleforge/internal/runner"
)

// PipelineRunner spawns a pipeline subprocess and streams its events.
type PipelineRunner interface {
	Run(ctx context.Context, args ...string) (<-chan runner.Event, error)
}

// Server is the orchestration HTTP server.
type Server struct {
	router chi.Router
	runner PipelineRunner
	logger *zap.Logger
}

// New constructs the server and mounts its routes.
func New(r PipelineRunner, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router: chi.NewRouter(),
		runner: r,
		logger: logger,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(chimw.Recoverer)
	s.router.Get("/health", s.health)
	s.router.Post("/run-scraper", s.runScraper)
	s.router.Post("/run-automation", s.runAutomation)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

// runScraper handles POST /run-scraper. The response is an SSE stream of the
// scrape pipeline's output.
func (s *Server) runScraper(w http.ResponseWriter, r *http.Request) {
	s.streamPipeline(w, r, "scrape")
}

// automationRequest optionally narrows the enhancement run to specific
// article ids.
type automationRequest struct {
	ArticleIDs []int64 `json:"articleIds"`
}

// runAutomation handles POST /run-automation. An optional JSON body with
// articleIds restricts which originals get enhanced.
func (s *Server) runAutomation(w http.ResponseWriter, r *http.Request) {
	args := []string{"enhance"}
	if r.Body != nil && r.ContentLength != 0 {
		var req automationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
			return
		}
		if len(req.ArticleIDs) > 0 {
			args = append(args, "--ids", joinIDs(req.ArticleIDs))
		}
	}
	s.streamPipeline(w, r, args...)
}

// streamPipeline spawns the pipeline and relays every runner event as one
// SSE frame, flushing after each so the client sees output live. The stream
// ends after the complete event.
func (s *Server) streamPipeline(w http.ResponseWriter, r *http.Request, args ...string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, err := s.runner.Run(r.Context(), args...)
	if err != nil {
		s.logger.Error("failed to launch pipeline", zap.Strings("args", args), zap.Error(err))
		http.Error(w, `{"error":"failed to launch pipeline"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.Info("pipeline stream opened", zap.Strings("args", args))
	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("failed to encode event", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			// Client went away; keep draining so the child can finish.
			s.logger.Warn("client disconnected mid-stream", zap.Error(err))
			for range events {
			}
			return
		}
		flusher.Flush()
	}
	s.logger.Info("pipeline stream closed", zap.Strings("args", args))
}

func joinIDs(ids []int64) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%d", id)
	}
	return out
}
