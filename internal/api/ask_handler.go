package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/trialscope/trialscope/internal/answer"
	"github.com/trialscope/trialscope/internal/prompt"
	"github.com/trialscope/trialscope/internal/query"
)

type askRequest struct {
	Question    string `json:"question"`
	K           int    `json:"k,omitempty"`
	MaxPerTrial int    `json:"max_per_trial,omitempty"`
}

type askResponse struct {
	Answer    string            `json:"answer"`
	Citations []prompt.Citation `json:"citations"`
	Intent    query.Intent      `json:"intent"`
	Provider  string            `json:"provider"`
}

type askFailure struct {
	Error     string            `json:"error"`
	Citations []prompt.Citation `json:"citations,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode ask request: %w", err))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("question required"))
		return
	}

	intent := query.Analyze(req.Question)
	results, err := s.retriever.RetrieveWithLimits(r.Context(), intent, req.K, req.MaxPerTrial)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	assembled := s.builder.Build(intent, results)
	result, err := s.generator.Generate(r.Context(), assembled)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, answer.ErrGenerationTimeout) {
			status = http.StatusGatewayTimeout
		}
		// Failed generations still surface the retrieved citations.
		writeJSON(w, status, askFailure{Error: err.Error(), Citations: assembled.Citations})
		return
	}
	writeJSON(w, http.StatusOK, askResponse{
		Answer:    result.Answer,
		Citations: result.Citations,
		Intent:    intent,
		Provider:  s.generator.ProviderName(),
	})
}
