package trial

import "testing"

func TestAggregateStats(t *testing.T) {
	docs := []TrialDocument{
		{NCTID: "NCT00000001", Status: "RECRUITING", StudyType: "INTERVENTIONAL", Phase: "PHASE3"},
		{NCTID: "NCT00000002", Status: "RECRUITING", StudyType: "OBSERVATIONAL"},
		{NCTID: "NCT00000003", Status: "COMPLETED", StudyType: "INTERVENTIONAL", Phase: "PHASE2"},
	}
	stats := AggregateStats(docs)
	if stats.Total != 3 {
		t.Fatalf("total = %d, want 3", stats.Total)
	}
	if stats.ByStatus["RECRUITING"] != 2 || stats.ByStatus["COMPLETED"] != 1 {
		t.Fatalf("status counts wrong: %v", stats.ByStatus)
	}
	if stats.ByStudyType["INTERVENTIONAL"] != 2 || stats.ByStudyType["OBSERVATIONAL"] != 1 {
		t.Fatalf("study type counts wrong: %v", stats.ByStudyType)
	}
	if stats.ByPhase["PHASE3"] != 1 || stats.ByPhase["UNKNOWN"] != 1 {
		t.Fatalf("phase counts wrong: %v", stats.ByPhase)
	}
}

func TestAggregateStatsEmptyCorpus(t *testing.T) {
	stats := AggregateStats(nil)
	if stats.Total != 0 || len(stats.ByStatus) != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}
