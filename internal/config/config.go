// thoth/internal/config/config.go

package config

// DatabaseConfig groups the three pluggable storage backends behind
// internal/persistence/databases.Manager (§6.1), plus an optional shared
// DSN used as a fallback when a specific backend's DSN is unset.
type DatabaseConfig struct {
	DefaultDSN string `yaml:"default_dsn"`
	Search     SearchConfig
	Vector     VectorConfig
	Graph      GraphConfig
}

// DBConfig is the name internal/persistence/databases.NewManager expects.
type DBConfig = DatabaseConfig

// SearchConfig configures the full-text search backend (tsvector/pg_trgm
// over Postgres, or the in-memory fallback used in tests).
type SearchConfig struct {
	Backend string `yaml:"backend"` // memory | auto | postgres | none
	DSN     string `yaml:"dsn"`
	Index   string `yaml:"index"`
}

// VectorConfig configures the dense vector backend that databases.NewManager
// builds: pgvector, the in-memory store, or none.
type VectorConfig struct {
	Backend    string `yaml:"backend"` // memory | auto | postgres | none
	DSN        string `yaml:"dsn"`
	Index      string `yaml:"index"`
	Dimensions int    `yaml:"dimensions"`
	Metric     string `yaml:"metric"` // cosine | l2 | ip
}

// GraphConfig configures the citation graph's backing store.
type GraphConfig struct {
	Backend string `yaml:"backend"` // memory | auto | postgres | none
	DSN     string `yaml:"dsn"`
}

// QdrantConfig holds the QDRANT_* connection settings for an external Qdrant
// instance. databases.NewManager does not build a Qdrant store from them.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
	Dimensions int    `yaml:"dimensions"`
}

// RedisConfig points at the Redis instance backing the gateway's response
// cache (§4.5). The rate limiter's token buckets are kept in process.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ProviderConfig is the shared shape for an LLM or embedding HTTP provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// OpenAIConfig configures the OpenAI (or OpenAI-compatible, e.g. local
// mlx_lm.server) chat completions client.
type OpenAIConfig struct {
	APIKey      string         `yaml:"api_key"`
	Model       string         `yaml:"model"`
	BaseURL     string         `yaml:"base_url"`
	API         string         `yaml:"api"` // "completions" | "responses"
	ExtraParams map[string]any `yaml:"extra_params"`
	LogPayloads bool           `yaml:"log_payloads"`
}

// AnthropicPromptCacheConfig controls Anthropic prompt-cache breakpoint
// placement on tool defs, system prompt, and message history.
type AnthropicPromptCacheConfig struct {
	Enabled       bool `yaml:"enabled"`
	CacheSystem   bool `yaml:"cache_system"`
	CacheTools    bool `yaml:"cache_tools"`
	CacheMessages bool `yaml:"cache_messages"`
}

// AnthropicConfig configures the Anthropic Messages API client.
type AnthropicConfig struct {
	APIKey      string                     `yaml:"api_key"`
	Model       string                     `yaml:"model"`
	BaseURL     string                     `yaml:"base_url"`
	PromptCache AnthropicPromptCacheConfig `yaml:"prompt_cache"`
	ExtraParams map[string]any             `yaml:"extra_params"`
}

// GoogleConfig configures the Gemini client.
type GoogleConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout"` // seconds
}

// LLMConfig selects and configures the active LLM provider(s). Thoth calls
// out to an LLM at several independent pipeline steps (citation extraction,
// query routing, grading, answer generation, hallucination checking).
// StepModel holds per-step model names parsed from LLM_STEP_MODEL; no
// step reads it, so every step uses the same model.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // openai | anthropic | google
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Google    GoogleConfig
	StepModel map[string]string `yaml:"step_model"`
}

// EmbeddingConfig configures the embedding HTTP endpoint used by the
// chunk embedder (§4.4 step: dense retrieval).
type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	APIHeader string `yaml:"api_header"`
	Headers   map[string]string
	Path      string `yaml:"path"`
	Timeout   int    `yaml:"timeout"` // seconds
}

// GatewayConfig configures the external-API gateway's resilience policies
// (§4.5): token-bucket rate limiting, TTL response cache, retry with
// jittered backoff, and the circuit breaker.
type GatewayConfig struct {
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Retry     RetryConfig
	Breaker   BreakerConfig
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
	MaxEntries int `yaml:"max_entries"`
}

type RetryConfig struct {
	MaxAttempts       int `yaml:"max_attempts"`
	InitialBackoffMS  int `yaml:"initial_backoff_ms"`
	MaxBackoffMS      int `yaml:"max_backoff_ms"`
}

type BreakerConfig struct {
	FailureThreshold uint32 `yaml:"failure_threshold"`
	OpenSeconds      int    `yaml:"open_seconds"`
}

// TrackerConfig configures the PDF tracker (§4.1): the directory watched
// for new/changed files and the ledger used to decide fingerprint status.
type TrackerConfig struct {
	WatchDir    string `yaml:"watch_dir"`
	LedgerPath  string `yaml:"ledger_path"`
	DebounceMS  int    `yaml:"debounce_ms"`
}

// IngestConfig configures the ingestion pipeline's concurrency and optional
// archival of source PDFs to object storage.
type IngestConfig struct {
	MaxWorkers  int  `yaml:"max_workers"`
	ArchiveToS3 bool `yaml:"archive_to_s3"`
	S3          S3Config
}

type S3Config struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	Prefix string `yaml:"prefix"`
}

// CoordinationConfig configures the text-block coordination substrate
// (§4.7): the local block file and its Kafka mirror.
type CoordinationConfig struct {
	BlockFilePath string `yaml:"block_file_path"`
	Kafka         KafkaConfig
}

type KafkaConfig struct {
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
}

// SchemaConfig locates the analysis schema presets (§6.3).
type SchemaConfig struct {
	PresetsDir    string `yaml:"presets_dir"`
	DefaultPreset string `yaml:"default_preset"`
}

// DiscoveryConfig controls the optional Google Scholar scraper backend
// (§6.2) that feeds candidate articles into the filter.
type DiscoveryConfig struct {
	Enabled            bool   `yaml:"enabled"`
	ChromeRemoteURL    string `yaml:"chrome_remote_url"` // empty: launch a local headless instance
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
	MaxResultsPerQuery int    `yaml:"max_results_per_query"`
}

// FilterConfig locates the query store and decision log, and tunes the
// quick-score escalation threshold (§4.6).
type FilterConfig struct {
	QueriesDir          string  `yaml:"queries_dir"`
	DecisionLogPath     string  `yaml:"decision_log_path"`
	QuickScoreThreshold float64 `yaml:"quick_score_threshold"`
}

// RetrievalConfig tunes the hybrid retrieval engine (§4.4).
type RetrievalConfig struct {
	RRFK                int     `yaml:"rrf_k"`
	TopN                int     `yaml:"top_n"`
	HallucinationStrict bool    `yaml:"hallucination_strict"`
	MinConfidence       float64 `yaml:"min_confidence"`
	// Model is the LLM used for classify/decompose/grade/CRAG/answer/
	// hallucination-check calls in the agentic pipeline (internal/retrieval).
	Model string `yaml:"model"`
	// CRAGUpper/CRAGLower are the §4.4 step 5 confidence thresholds;
	// zero means "use the 0.7/0.4 defaults".
	CRAGUpper float64 `yaml:"crag_upper"`
	CRAGLower float64 `yaml:"crag_lower"`
}

// ObsConfig configures OpenTelemetry export for the RAG path's structured
// logging and tracing.
type ObsConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
	OTLP           string `yaml:"otlp_endpoint"`
}

// Config is the fully-resolved runtime configuration for Thoth. It is
// assembled once at startup by Load and passed down by constructor
// injection; nothing in the rest of the module reads the environment
// directly.
type Config struct {
	Workdir     string
	LogPath     string
	LogLevel    string
	LogPayloads bool

	LLMClient LLMConfig
	Embedding EmbeddingConfig

	Databases DatabaseConfig
	Qdrant    QdrantConfig
	Redis     RedisConfig

	Gateway      GatewayConfig
	Tracker      TrackerConfig
	Ingest       IngestConfig
	Coordination CoordinationConfig
	Schema       SchemaConfig
	Filter       FilterConfig
	Discovery    DiscoveryConfig
	Retrieval    RetrievalConfig
	Obs          ObsConfig
}
