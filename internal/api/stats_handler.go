package api

import (
	"net/http"

	"github.com/trialscope/trialscope/internal/common"
	"github.com/trialscope/trialscope/internal/trial"
)

type statsResponse struct {
	trial.Stats
	IndexedChunks int `json:"indexed_chunks"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Stats:         trial.AggregateStats(docs),
		IndexedChunks: s.index.Len(),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": common.LogEntries()})
}
