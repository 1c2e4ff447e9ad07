package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables, after loading a
// .env file from the working directory when one exists. godotenv.Overload
// lets .env values replace variables already set in the environment.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.Workdir = strings.TrimSpace(os.Getenv("WORKDIR"))
	cfg.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))
	cfg.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if v := strings.TrimSpace(os.Getenv("LOG_PAYLOADS")); v != "" {
		cfg.LogPayloads = truthy(v)
	}

	cfg.LLMClient.Provider = strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	cfg.LLMClient.OpenAI.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.LLMClient.OpenAI.Model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	cfg.LLMClient.OpenAI.BaseURL = firstNonEmpty(os.Getenv("OPENAI_BASE_URL"), os.Getenv("OPENAI_API_BASE_URL"))
	cfg.LLMClient.Anthropic.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	cfg.LLMClient.Anthropic.Model = strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL"))
	cfg.LLMClient.Anthropic.BaseURL = strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))
	cfg.LLMClient.Google.APIKey = strings.TrimSpace(os.Getenv("GOOGLE_LLM_API_KEY"))
	cfg.LLMClient.Google.Model = strings.TrimSpace(os.Getenv("GOOGLE_LLM_MODEL"))
	cfg.LLMClient.Google.BaseURL = strings.TrimSpace(os.Getenv("GOOGLE_LLM_BASE_URL"))
	cfg.LLMClient.StepModel = parseStepModel(os.Getenv("LLM_STEP_MODEL"))

	cfg.Embedding.BaseURL = strings.TrimSpace(os.Getenv("EMBED_BASE_URL"))
	cfg.Embedding.Model = strings.TrimSpace(os.Getenv("EMBED_MODEL"))
	cfg.Embedding.APIKey = strings.TrimSpace(os.Getenv("EMBED_API_KEY"))
	cfg.Embedding.APIHeader = strings.TrimSpace(os.Getenv("EMBED_API_HEADER"))
	cfg.Embedding.Path = strings.TrimSpace(os.Getenv("EMBED_PATH"))
	if v := strings.TrimSpace(os.Getenv("EMBED_API_HEADERS")); v != "" {
		headers := make(map[string]string)
		if err := json.Unmarshal([]byte(v), &headers); err != nil {
			headers = make(map[string]string)
			for _, part := range strings.Split(v, ",") {
				if i := strings.IndexAny(part, ":="); i > 0 {
					headers[strings.TrimSpace(part[:i])] = strings.TrimSpace(part[i+1:])
				}
			}
		}
		cfg.Embedding.Headers = headers
	}
	if v := strings.TrimSpace(os.Getenv("EMBED_TIMEOUT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.Timeout = n
		}
	}

	cfg.Databases.DefaultDSN = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("DB_URL"), os.Getenv("POSTGRES_DSN"))
	cfg.Databases.Search.Backend = strings.TrimSpace(os.Getenv("SEARCH_BACKEND"))
	cfg.Databases.Search.DSN = strings.TrimSpace(os.Getenv("SEARCH_DSN"))
	cfg.Databases.Search.Index = strings.TrimSpace(os.Getenv("SEARCH_INDEX"))
	cfg.Databases.Vector.Backend = strings.TrimSpace(os.Getenv("VECTOR_BACKEND"))
	cfg.Databases.Vector.DSN = strings.TrimSpace(os.Getenv("VECTOR_DSN"))
	cfg.Databases.Vector.Index = strings.TrimSpace(os.Getenv("VECTOR_INDEX"))
	cfg.Databases.Vector.Metric = strings.TrimSpace(os.Getenv("VECTOR_METRIC"))
	if v := strings.TrimSpace(os.Getenv("VECTOR_DIMENSIONS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Databases.Vector.Dimensions = n
		}
	}
	cfg.Databases.Graph.Backend = strings.TrimSpace(os.Getenv("GRAPH_BACKEND"))
	cfg.Databases.Graph.DSN = strings.TrimSpace(os.Getenv("GRAPH_DSN"))

	cfg.Qdrant.URL = strings.TrimSpace(os.Getenv("QDRANT_URL"))
	cfg.Qdrant.APIKey = strings.TrimSpace(os.Getenv("QDRANT_API_KEY"))
	cfg.Qdrant.Collection = firstNonEmpty(os.Getenv("QDRANT_COLLECTION"), "thoth_chunks")
	if v := strings.TrimSpace(os.Getenv("QDRANT_DIMENSIONS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Qdrant.Dimensions = n
		}
	}

	cfg.Redis.Addr = firstNonEmpty(os.Getenv("REDIS_ADDR"), "localhost:6379")
	cfg.Redis.Password = strings.TrimSpace(os.Getenv("REDIS_PASSWORD"))
	if v := strings.TrimSpace(os.Getenv("REDIS_DB")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("GATEWAY_RATE_LIMIT_RPS")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Gateway.RateLimit.RequestsPerSecond = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_RATE_LIMIT_BURST")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.RateLimit.Burst = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_CACHE_TTL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Cache.TTLSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_CACHE_MAX_ENTRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Cache.MaxEntries = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_RETRY_MAX_ATTEMPTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Retry.MaxAttempts = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_RETRY_INITIAL_BACKOFF_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Retry.InitialBackoffMS = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_RETRY_MAX_BACKOFF_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Retry.MaxBackoffMS = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_BREAKER_FAILURE_THRESHOLD")); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Gateway.Breaker.FailureThreshold = uint32(n)
		}
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_BREAKER_OPEN_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Breaker.OpenSeconds = n
		}
	}

	cfg.Tracker.WatchDir = strings.TrimSpace(os.Getenv("TRACKER_WATCH_DIR"))
	cfg.Tracker.LedgerPath = strings.TrimSpace(os.Getenv("TRACKER_LEDGER_PATH"))
	if v := strings.TrimSpace(os.Getenv("TRACKER_DEBOUNCE_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tracker.DebounceMS = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("INGEST_MAX_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.MaxWorkers = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("INGEST_ARCHIVE_TO_S3")); v != "" {
		cfg.Ingest.ArchiveToS3 = truthy(v)
	}
	cfg.Ingest.S3.Bucket = strings.TrimSpace(os.Getenv("INGEST_S3_BUCKET"))
	cfg.Ingest.S3.Region = firstNonEmpty(os.Getenv("INGEST_S3_REGION"), "us-east-1")
	cfg.Ingest.S3.Prefix = firstNonEmpty(os.Getenv("INGEST_S3_PREFIX"), "thoth")

	cfg.Coordination.BlockFilePath = strings.TrimSpace(os.Getenv("COORDINATION_BLOCK_FILE"))
	cfg.Coordination.Kafka.Brokers = firstNonEmpty(os.Getenv("KAFKA_BROKERS"), os.Getenv("KAFKA_BOOTSTRAP_SERVERS"))
	cfg.Coordination.Kafka.Topic = firstNonEmpty(os.Getenv("KAFKA_COORDINATION_TOPIC"), "thoth.coordination")

	cfg.Schema.PresetsDir = strings.TrimSpace(os.Getenv("SCHEMA_PRESETS_DIR"))
	cfg.Schema.DefaultPreset = firstNonEmpty(os.Getenv("SCHEMA_DEFAULT_PRESET"), "default")

	if v := strings.TrimSpace(os.Getenv("RETRIEVAL_RRF_K")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.RRFK = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("RETRIEVAL_TOP_N")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.TopN = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("RETRIEVAL_HALLUCINATION_STRICT")); v != "" {
		cfg.Retrieval.HallucinationStrict = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv("RETRIEVAL_MIN_CONFIDENCE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retrieval.MinConfidence = f
		}
	}
	cfg.Retrieval.Model = strings.TrimSpace(os.Getenv("RETRIEVAL_MODEL"))
	if v := strings.TrimSpace(os.Getenv("RETRIEVAL_CRAG_UPPER")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retrieval.CRAGUpper = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("RETRIEVAL_CRAG_LOWER")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retrieval.CRAGLower = f
		}
	}

	if v := strings.TrimSpace(os.Getenv("DISCOVERY_ENABLED")); v != "" {
		cfg.Discovery.Enabled = truthy(v)
	}
	cfg.Discovery.ChromeRemoteURL = strings.TrimSpace(os.Getenv("DISCOVERY_CHROME_REMOTE_URL"))
	if v := strings.TrimSpace(os.Getenv("DISCOVERY_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Discovery.TimeoutSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DISCOVERY_MAX_RESULTS_PER_QUERY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Discovery.MaxResultsPerQuery = n
		}
	}

	cfg.Filter.QueriesDir = strings.TrimSpace(os.Getenv("FILTER_QUERIES_DIR"))
	cfg.Filter.DecisionLogPath = strings.TrimSpace(os.Getenv("FILTER_DECISION_LOG"))
	if v := strings.TrimSpace(os.Getenv("FILTER_QUICK_SCORE_THRESHOLD")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Filter.QuickScoreThreshold = f
		}
	}

	cfg.Obs.ServiceName = strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME"))
	cfg.Obs.ServiceVersion = strings.TrimSpace(os.Getenv("SERVICE_VERSION"))
	cfg.Obs.Environment = strings.TrimSpace(os.Getenv("ENVIRONMENT"))
	cfg.Obs.OTLP = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))

	applyDefaults(&cfg)

	if cfg.LLMClient.Provider == "" {
		cfg.LLMClient.Provider = "openai"
	}
	switch cfg.LLMClient.Provider {
	case "openai", "anthropic", "google":
	default:
		return Config{}, fmt.Errorf("llm provider must be one of openai, anthropic, or google (got %q)", cfg.LLMClient.Provider)
	}
	if cfg.LLMClient.Provider == "openai" && cfg.LLMClient.OpenAI.APIKey == "" {
		return Config{}, errors.New("OPENAI_API_KEY is required when LLM_PROVIDER=openai (set in .env or environment)")
	}
	if cfg.LLMClient.Provider == "anthropic" && cfg.LLMClient.Anthropic.APIKey == "" {
		return Config{}, errors.New("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
	}
	if cfg.LLMClient.Provider == "google" && cfg.LLMClient.Google.APIKey == "" {
		return Config{}, errors.New("GOOGLE_LLM_API_KEY is required when LLM_PROVIDER=google")
	}

	if cfg.Workdir == "" {
		return Config{}, errors.New("WORKDIR is required (set in .env or environment)")
	}
	absWD, err := filepath.Abs(cfg.Workdir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve WORKDIR: %w", err)
	}
	info, err := os.Stat(absWD)
	if err != nil {
		return Config{}, fmt.Errorf("stat WORKDIR: %w", err)
	}
	if !info.IsDir() {
		return Config{}, fmt.Errorf("WORKDIR must be a directory: %s", absWD)
	}
	cfg.Workdir = absWD

	if cfg.Tracker.WatchDir == "" {
		cfg.Tracker.WatchDir = filepath.Join(absWD, "incoming")
	}
	if cfg.Tracker.LedgerPath == "" {
		cfg.Tracker.LedgerPath = filepath.Join(absWD, "tracker.json")
	}
	if cfg.Coordination.BlockFilePath == "" {
		cfg.Coordination.BlockFilePath = filepath.Join(absWD, "coordination.txt")
	}
	if cfg.Schema.PresetsDir == "" {
		cfg.Schema.PresetsDir = filepath.Join(absWD, "schemas")
	}
	if cfg.Filter.QueriesDir == "" {
		cfg.Filter.QueriesDir = filepath.Join(absWD, "queries")
	}
	if cfg.Filter.DecisionLogPath == "" {
		cfg.Filter.DecisionLogPath = filepath.Join(absWD, "decisions.jsonl")
	}
	if cfg.Filter.QuickScoreThreshold <= 0 {
		cfg.Filter.QuickScoreThreshold = 0.3
	}
	if cfg.Discovery.TimeoutSeconds <= 0 {
		cfg.Discovery.TimeoutSeconds = 30
	}
	if cfg.Discovery.MaxResultsPerQuery <= 0 {
		cfg.Discovery.MaxResultsPerQuery = 10
	}

	return cfg, nil
}

// applyDefaults fills in zero-valued fields that are awkward to express as
// Go zero values (distinguishing "unset" from "explicitly zero").
func applyDefaults(cfg *Config) {
	if cfg.LLMClient.OpenAI.Model == "" {
		cfg.LLMClient.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.LLMClient.Anthropic.Model == "" {
		cfg.LLMClient.Anthropic.Model = "claude-sonnet-4-20250514"
	}
	if cfg.LLMClient.Google.Model == "" {
		cfg.LLMClient.Google.Model = "gemini-2.0-flash"
	}

	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.APIHeader == "" {
		cfg.Embedding.APIHeader = "Authorization"
	}
	if cfg.Embedding.Path == "" {
		cfg.Embedding.Path = "/v1/embeddings"
	}
	if cfg.Embedding.Timeout <= 0 {
		cfg.Embedding.Timeout = 30
	}

	if cfg.Databases.Search.Backend == "" {
		cfg.Databases.Search.Backend = backendOrMemory(cfg.Databases.DefaultDSN)
	}
	if cfg.Databases.Vector.Backend == "" {
		cfg.Databases.Vector.Backend = backendOrMemory(cfg.Databases.DefaultDSN)
	}
	if cfg.Databases.Graph.Backend == "" {
		cfg.Databases.Graph.Backend = backendOrMemory(cfg.Databases.DefaultDSN)
	}
	if cfg.Databases.Vector.Dimensions <= 0 {
		cfg.Databases.Vector.Dimensions = 1536
	}
	if cfg.Databases.Vector.Metric == "" {
		cfg.Databases.Vector.Metric = "cosine"
	}

	if cfg.Gateway.RateLimit.RequestsPerSecond <= 0 {
		cfg.Gateway.RateLimit.RequestsPerSecond = 2
	}
	if cfg.Gateway.RateLimit.Burst <= 0 {
		cfg.Gateway.RateLimit.Burst = 5
	}
	if cfg.Gateway.Cache.TTLSeconds <= 0 {
		cfg.Gateway.Cache.TTLSeconds = 3600
	}
	if cfg.Gateway.Cache.MaxEntries <= 0 {
		cfg.Gateway.Cache.MaxEntries = 10000
	}
	if cfg.Gateway.Retry.MaxAttempts <= 0 {
		cfg.Gateway.Retry.MaxAttempts = 5
	}
	if cfg.Gateway.Retry.InitialBackoffMS <= 0 {
		cfg.Gateway.Retry.InitialBackoffMS = 250
	}
	if cfg.Gateway.Retry.MaxBackoffMS <= 0 {
		cfg.Gateway.Retry.MaxBackoffMS = 30000
	}
	if cfg.Gateway.Breaker.FailureThreshold == 0 {
		cfg.Gateway.Breaker.FailureThreshold = 5
	}
	if cfg.Gateway.Breaker.OpenSeconds <= 0 {
		cfg.Gateway.Breaker.OpenSeconds = 60
	}

	if cfg.Tracker.DebounceMS <= 0 {
		cfg.Tracker.DebounceMS = 500
	}
	if cfg.Ingest.MaxWorkers <= 0 {
		cfg.Ingest.MaxWorkers = 3
	}

	if cfg.Retrieval.RRFK <= 0 {
		cfg.Retrieval.RRFK = 60
	}
	if cfg.Retrieval.TopN <= 0 {
		cfg.Retrieval.TopN = 10
	}
	if cfg.Retrieval.MinConfidence <= 0 {
		cfg.Retrieval.MinConfidence = 0.5
	}
	if cfg.Retrieval.Model == "" {
		cfg.Retrieval.Model = cfg.LLMClient.OpenAI.Model
	}

	if cfg.Obs.ServiceName == "" {
		cfg.Obs.ServiceName = "thoth"
	}
	if cfg.Obs.Environment == "" {
		cfg.Obs.Environment = "dev"
	}
}

func backendOrMemory(defaultDSN string) string {
	if defaultDSN != "" {
		return "auto"
	}
	return "memory"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func truthy(v string) bool {
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

// parseStepModel parses LLM_STEP_MODEL as comma-separated step:model pairs,
// e.g. "grade:gpt-4o-mini,answer:gpt-4o".
func parseStepModel(v string) map[string]string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return out
}
