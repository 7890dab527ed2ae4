package api

import (
	"encoding/json"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/trialscope/trialscope/internal/answer"
	"github.com/trialscope/trialscope/internal/common"
	"github.com/trialscope/trialscope/internal/corpus"
	"github.com/trialscope/trialscope/internal/ingest"
	"github.com/trialscope/trialscope/internal/prompt"
	"github.com/trialscope/trialscope/internal/retriever"
	"github.com/trialscope/trialscope/internal/vector"
)

// Server wires the ingestion pipeline and question answering behind HTTP.
type Server struct {
	router    chi.Router
	pipeline  *ingest.Pipeline
	store     *corpus.Store
	index     *vector.Index
	retriever *retriever.Retriever
	builder   *prompt.Builder
	generator *answer.Generator
}

// NewServer constructs the HTTP surface over the assembled components.
func NewServer(pipeline *ingest.Pipeline, store *corpus.Store, index *vector.Index, ret *retriever.Retriever, builder *prompt.Builder, generator *answer.Generator) *Server {
	srv := &Server{
		router:    chi.NewRouter(),
		pipeline:  pipeline,
		store:     store,
		index:     index,
		retriever: ret,
		builder:   builder,
		generator: generator,
	}
	srv.routes()
	return srv
}

// Handler exposes the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	logger := common.Logger()
	logger.Info("api: configuring routes")
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start), "remote", r.RemoteAddr)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router.Post("/v1/ingest", s.handleIngest)
	s.router.Post("/v1/ask", s.handleAsk)
	s.router.Get("/v1/search", s.handleSearch)
	s.router.Get("/v1/stats", s.handleStats)
	s.router.Get("/v1/logs", s.handleLogs)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
