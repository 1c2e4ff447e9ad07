// Command thoth wires Thoth's components together and runs the PDF
// watcher and query-answering HTTP surface. It holds no logic of its
// own beyond construction and graceful shutdown; every operation lives
// in an internal/ package.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"thoth/internal/citegraph"
	"thoth/internal/config"
	"thoth/internal/coordination"
	"thoth/internal/discovery"
	"thoth/internal/filter"
	"thoth/internal/gateway"
	"thoth/internal/ingest"
	"thoth/internal/llm"
	"thoth/internal/llm/anthropic"
	"thoth/internal/llm/google"
	"thoth/internal/llm/openai"
	"thoth/internal/logging"
	"thoth/internal/observability"
	"thoth/internal/persistence/databases"
	"thoth/internal/queries"
	"thoth/internal/rag/embedder"
	"thoth/internal/rag/retrieve"
	"thoth/internal/rag/service"
	"thoth/internal/retrieval"
	"thoth/internal/schema"
	"thoth/internal/tracker"
	"thoth/internal/version"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("thoth")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)
	logging.Log.WithField("version", version.Version).Info("starting thoth")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdown, err := observability.InitOTel(ctx, cfg.Obs)
	if err != nil {
		logging.Log.WithError(err).Warn("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	mgr, err := databases.NewManager(ctx, cfg.Databases)
	if err != nil {
		return fmt.Errorf("init databases: %w", err)
	}
	defer mgr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer func() {
		if err := rdb.Close(); err != nil {
			logging.Log.WithError(err).Warn("error closing redis client")
		}
	}()

	gw := gateway.New(cfg.Gateway, gatewayServices(), rdb)

	// The LLM provider and the embedding client both issue raw HTTP requests
	// via SDK/hand-rolled clients rather than gw.Get/gw.Post, so they take a
	// gw.HTTPClient instead, so every outbound LLM and embedding call passes
	// through the same rate limiter/breaker/retry stack as the research-API
	// lookups; HTTPClient does not use the response cache.
	llmHTTPClient := observability.NewHTTPClient(gw.HTTPClient("llm", 60*time.Second))
	provider, model, err := newProvider(cfg.LLMClient, llmHTTPClient)
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}

	graphPool, err := databases.OpenPool(ctx, cfg.Databases.Graph.DSN)
	if err != nil {
		return fmt.Errorf("open citation graph pool: %w", err)
	}
	defer graphPool.Close()

	graph, err := citegraph.New(ctx, graphPool, mgr.Graph)
	if err != nil {
		return fmt.Errorf("init citation graph: %w", err)
	}

	trk, err := tracker.New(cfg.Tracker)
	if err != nil {
		return fmt.Errorf("init tracker: %w", err)
	}

	doc := schema.LoadFromConfig(cfg.Schema)

	emb := embedder.NewClient(cfg.Embedding, cfg.Databases.Vector.Dimensions, gw.HTTPClient("embedding", 30*time.Second))
	svc := service.New(mgr, service.WithEmbedder(emb))

	enhancer := ingest.NewEnhancer(gw, cfg.Ingest)
	archiver, err := ingest.NewArchiver(ctx, cfg.Ingest)
	if err != nil {
		return fmt.Errorf("init archiver: %w", err)
	}

	pipeline := &ingest.Pipeline{
		Tracker:  trk,
		Graph:    graph,
		Index:    svc,
		Enhancer: enhancer,
		Archiver: archiver,
		Provider: provider,
		Model:    model,
		Schema:   doc,
	}

	store, err := queries.New(cfg.Filter.QueriesDir)
	if err != nil {
		return fmt.Errorf("init query store: %w", err)
	}
	evaluator := filter.NewLLMEvaluator(provider, model)
	decisionLog := filter.NewFileDecisionLog(cfg.Filter.DecisionLogPath)
	articleFilter := filter.New(store, evaluator, decisionLog, cfg.Filter.QuickScoreThreshold)

	scraper := discovery.NewScholarScraper(cfg.Discovery)

	mirror := coordination.NewKafkaMirror(cfg.Coordination.Kafka)
	coordStore, err := coordination.NewStore(cfg.Coordination.BlockFilePath, mirror)
	if err != nil {
		return fmt.Errorf("init coordination store: %w", err)
	}
	pipeline.Coordinator = coordStore

	answerer := retrieval.New(svc, provider, cfg.Retrieval)

	errCh := make(chan error, 2)
	go func() {
		logging.Log.WithField("dir", cfg.Tracker.WatchDir).Info("watching for PDFs")
		errCh <- pipeline.Watch(ctx, cfg.Tracker)
	}()

	if scraper != nil {
		go runDiscoveryLoop(ctx, scraper, articleFilter, store)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(w, r, answerer)
	})

	srv := &http.Server{Addr: ":8090", Handler: mux}
	go func() {
		logging.Log.Info("thoth listening on :8090")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logging.Log.WithError(err).Error("component failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// newProvider selects the configured LLM backend and the step model used
// for the ingestion and retrieval pipelines' default calls.
func newProvider(cfg config.LLMConfig, httpClient *http.Client) (llm.Provider, string, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.New(cfg.Anthropic, httpClient), cfg.Anthropic.Model, nil
	case "google":
		client, err := google.New(cfg.Google, httpClient)
		if err != nil {
			return nil, "", err
		}
		return client, cfg.Google.Model, nil
	default:
		return openai.New(cfg.OpenAI, httpClient), cfg.OpenAI.Model, nil
	}
}

// gatewayServices maps the external research APIs the ingestion
// enhancement fan-out (§4.2 step 5 / internal/ingest/enhance.go) calls
// through the gateway to their base URLs.
func gatewayServices() map[string]string {
	return map[string]string{
		"semanticscholar": "https://api.semanticscholar.org",
		"opencitations":   "https://opencitations.net",
		"arxiv":           "https://export.arxiv.org",
		"scholarly":       "https://serpapi.com",
		"pdflocator":      "https://api.unpaywall.org",
	}
}

func runDiscoveryLoop(ctx context.Context, scraper *discovery.ScholarScraper, f *filter.Filter, store *queries.Store) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		questions := researchQuestions(store)
		if matched, err := discovery.Discover(ctx, scraper, f, questions); err != nil {
			logging.Log.WithError(err).Warn("discovery sweep failed")
		} else {
			logging.Log.WithField("matched", len(matched)).Info("discovery sweep complete")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func researchQuestions(store *queries.Store) map[string]string {
	out := make(map[string]string)
	qs, err := store.List()
	if err != nil {
		logging.Log.WithError(err).Warn("list queries failed")
		return out
	}
	for _, q := range qs {
		out[q.Name] = q.ResearchQuestion
	}
	return out
}

func handleQuery(w http.ResponseWriter, r *http.Request, p *retrieval.Pipeline) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	answer := p.Answer(ctx, req.Query, retrieve.RetrieveOptions{K: 8, FtK: 20, VecK: 20, Alpha: 0.5, UseRRF: true})
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(answer)
}
