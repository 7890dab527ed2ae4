package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/trialscope/trialscope/internal/answer"
	"github.com/trialscope/trialscope/internal/api"
	"github.com/trialscope/trialscope/internal/common"
	"github.com/trialscope/trialscope/internal/corpus"
	"github.com/trialscope/trialscope/internal/ingest"
	"github.com/trialscope/trialscope/internal/llm"
	"github.com/trialscope/trialscope/internal/prompt"
	"github.com/trialscope/trialscope/internal/registry"
	"github.com/trialscope/trialscope/internal/retriever"
	"github.com/trialscope/trialscope/internal/trial"
	"github.com/trialscope/trialscope/internal/vector"
)

func main() {
	logger := common.Logger()

	if err := godotenv.Load(); err != nil {
		logger.Warn("trialscope: .env file not loaded", "error", err)
	} else {
		logger.Info("trialscope: environment loaded from .env")
	}

	addr := flag.String("addr", ":8082", "listen address")
	indexPath := flag.String("index", "", "path to the vector index database (overrides TRIALSCOPE_INDEX_PATH)")
	catalogPath := flag.String("catalog", "", "path to the trial catalog database (overrides TRIALSCOPE_CATALOG_PATH)")
	maxTokens := flag.Int("chunk-tokens", trial.DefaultMaxTokens, "maximum tokens per chunk")
	overlapTokens := flag.Int("chunk-overlap", trial.DefaultOverlapTokens, "overlapping tokens between adjacent chunks")
	promptBudget := flag.Int("prompt-budget", prompt.DefaultBudget, "context budget in runes for assembled prompts")
	flag.Parse()

	logger.Info("trialscope: startup initiated", "addr", *addr)

	provider := llm.NewProvider()
	logger.Info("trialscope: provider ready", "provider", provider.Name())

	indexCfg := vector.LoadConfig().Merge(vector.Config{Path: *indexPath})
	index, err := vector.Open(indexCfg, provider)
	if err != nil {
		logger.Error("trialscope: index open failed", "error", err)
		fmt.Fprintln(os.Stderr, "index error:", err)
		os.Exit(1)
	}
	defer index.Close()

	catalogCfg := corpus.LoadConfig().Merge(corpus.Config{Path: *catalogPath})
	store, err := corpus.Open(catalogCfg)
	if err != nil {
		logger.Error("trialscope: catalog open failed", "error", err)
		fmt.Fprintln(os.Stderr, "catalog error:", err)
		os.Exit(1)
	}
	defer store.Close()

	client := registry.NewClient(registry.LoadConfig())
	pipeline := ingest.New(client, store, index, *maxTokens, *overlapTokens)
	ret := retriever.New(index, provider, retriever.LoadConfig())
	builder := prompt.NewBuilder(*promptBudget)
	generator := answer.New(provider, answer.LoadConfig())

	server := api.NewServer(pipeline, store, index, ret, builder, generator)
	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("trialscope: listening", "addr", *addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("trialscope: server stopped", "error", err)
		fmt.Fprintln(os.Stderr, "server error:", err)
		os.Exit(1)
	}
}
