package trial

import "strings"

// Stats summarizes the distribution of the normalized corpus.
type Stats struct {
	Total       int            `json:"total"`
	ByStatus    map[string]int `json:"by_status"`
	ByStudyType map[string]int `json:"by_study_type"`
	ByPhase     map[string]int `json:"by_phase"`
}

// AggregateStats counts documents grouped by status, study type and phase.
// It is a pure function of its input; callers pass the corpus as of now so
// the result always reflects the latest ingested state.
func AggregateStats(docs []TrialDocument) Stats {
	stats := Stats{
		Total:       len(docs),
		ByStatus:    make(map[string]int),
		ByStudyType: make(map[string]int),
		ByPhase:     make(map[string]int),
	}
	for _, doc := range docs {
		stats.ByStatus[bucket(doc.Status)]++
		stats.ByStudyType[bucket(doc.StudyType)]++
		stats.ByPhase[bucket(doc.Phase)]++
	}
	return stats
}

func bucket(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "UNKNOWN"
	}
	return value
}
