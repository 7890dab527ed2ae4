package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/trialscope/trialscope/internal/answer"
	"github.com/trialscope/trialscope/internal/corpus"
	"github.com/trialscope/trialscope/internal/ingest"
	"github.com/trialscope/trialscope/internal/llm/providers"
	"github.com/trialscope/trialscope/internal/prompt"
	"github.com/trialscope/trialscope/internal/registry"
	"github.com/trialscope/trialscope/internal/retriever"
	"github.com/trialscope/trialscope/internal/trial"
	"github.com/trialscope/trialscope/internal/vector"
)

type fixtureFetcher struct {
	studies []trial.RawStudy
}

func (f *fixtureFetcher) FetchStudies(context.Context, registry.FetchParams) ([]trial.RawStudy, error) {
	return f.studies, nil
}

func fixtureStudy(t *testing.T, nctID, title, status, summary string) trial.RawStudy {
	t.Helper()
	payload := fmt.Sprintf(`{
          "protocolSection": {
            "identificationModule": {"nctId": %q, "briefTitle": %q},
            "statusModule": {"overallStatus": %q},
            "designModule": {"studyType": "INTERVENTIONAL", "phases": ["PHASE3"]},
            "descriptionModule": {"briefSummary": %q}
          }
        }`, nctID, title, status, summary)
	var raw trial.RawStudy
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("decode fixture study: %v", err)
	}
	return raw
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	provider := providers.NewLocalProvider()

	store, err := corpus.Open(corpus.Config{Path: filepath.Join(dir, "catalog.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	index, err := vector.Open(vector.Config{Path: filepath.Join(dir, "index.db")}, provider)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { index.Close() })

	fetcher := &fixtureFetcher{studies: []trial.RawStudy{
		fixtureStudy(t, "NCT00000001", "Metformin Study", "RECRUITING", "Metformin for type 2 diabetes glucose control"),
		fixtureStudy(t, "NCT00000002", "Asthma Study", "COMPLETED", "Inhaled corticosteroids for severe asthma"),
	}}
	pipeline := ingest.New(fetcher, store, index, 0, 0)
	ret := retriever.New(index, provider, retriever.Config{MinScore: -1})
	builder := prompt.NewBuilder(0)
	generator := answer.New(provider, answer.Config{MaxRetries: 1, AttemptTimeout: time.Second, Backoff: time.Millisecond})

	server := httptest.NewServer(NewServer(pipeline, store, index, ret, builder, generator).Handler())
	t.Cleanup(server.Close)
	return server
}

func ingestFixtures(t *testing.T, server *httptest.Server) {
	t.Helper()
	resp, err := http.Post(server.URL+"/v1/ingest", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("ingest request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ingest status = %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
}

func TestIngestEndpoint(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Post(server.URL+"/v1/ingest", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var summary ingest.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Ingested != 2 || summary.Chunks == 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestIngestRejectsBadBody(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Post(server.URL+"/v1/ingest", "application/json", strings.NewReader(`{not json`))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSearchEndpoint(t *testing.T) {
	server := newTestServer(t)
	ingestFixtures(t, server)

	resp, err := http.Get(server.URL + "/v1/search?q=" + "metformin+diabetes+glucose")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Results) == 0 {
		t.Fatal("expected search results")
	}
	if payload.Results[0].Chunk.TrialID != "NCT00000001" {
		t.Fatalf("expected the diabetes trial first, got %s", payload.Results[0].Chunk.TrialID)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/v1/search")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAskEndpoint(t *testing.T) {
	server := newTestServer(t)
	ingestFixtures(t, server)

	body := `{"question": "What trials study metformin for diabetes?"}`
	resp, err := http.Post(server.URL+"/v1/ask", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload askResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Answer == "" {
		t.Fatal("expected a non-empty answer")
	}
	if len(payload.Citations) == 0 {
		t.Fatal("expected citations")
	}
	for _, citation := range payload.Citations {
		if citation.TrialID == "" || citation.ChunkID == "" {
			t.Fatalf("incomplete citation %+v", citation)
		}
	}
}

func TestAskRequiresQuestion(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Post(server.URL+"/v1/ask", "application/json", strings.NewReader(`{"question": "  "}`))
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	server := newTestServer(t)
	ingestFixtures(t, server)

	resp, err := http.Get(server.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload struct {
		Total         int            `json:"total"`
		ByStatus      map[string]int `json:"by_status"`
		IndexedChunks int            `json:"indexed_chunks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Total != 2 {
		t.Fatalf("total = %d, want 2", payload.Total)
	}
	if payload.ByStatus["RECRUITING"] != 1 || payload.ByStatus["COMPLETED"] != 1 {
		t.Fatalf("status counts wrong: %v", payload.ByStatus)
	}
	if payload.IndexedChunks == 0 {
		t.Fatal("expected indexed chunks")
	}
}

func TestLogsEndpoint(t *testing.T) {
	server := newTestServer(t)
	ingestFixtures(t, server)

	resp, err := http.Get(server.URL + "/v1/logs")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload struct {
		Entries []map[string]interface{} `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Entries) == 0 {
		t.Fatal("expected captured log entries")
	}
}
