package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/trialscope/trialscope/internal/query"
	"github.com/trialscope/trialscope/internal/vector"
)

type searchResponse struct {
	Intent  query.Intent          `json:"intent"`
	Results []vector.SearchResult `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("q parameter required"))
		return
	}
	k, _ := strconv.Atoi(r.URL.Query().Get("k"))
	intent := query.Analyze(q)
	results, err := s.retriever.RetrieveWithLimits(r.Context(), intent, k, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if results == nil {
		results = []vector.SearchResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Intent: intent, Results: results})
}
