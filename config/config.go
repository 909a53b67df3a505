package config

import (
	"time"
)

type AppConfig struct {
	APIPort     string `env:"PORT" envDefault:"12222"`
	APIKey      string `env:"API_KEY"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	// CredentialsDir holds one JSON credential file per credential ref.
	CredentialsDir string `env:"CREDENTIALS_DIR" envDefault:"./credentials"`
	PodName        string `env:"POD_NAME"`
	PodNamespace   string `env:"POD_NAMESPACE" envDefault:"default"`
	// LeaderElection runs the scheduler on one replica only. Requires in-cluster credentials.
	LeaderElection bool `env:"CRON_LEADER_ELECTION" envDefault:"false"`
}

// DatabaseConfig is optional: without a host, settings fall back to SettingsDefaults and activity is
// only published.
type DatabaseConfig struct {
	Host            string `env:"BEACON_POSTGRES_HOST"`
	Port            string `env:"BEACON_POSTGRES_PORT" envDefault:"5432"`
	User            string `env:"BEACON_POSTGRES_USER"`
	DBName          string `env:"BEACON_POSTGRES_DB_NAME" envDefault:"beacon"`
	Password        string `env:"BEACON_POSTGRES_PASSWORD"`
	MaxConn         int    `env:"BEACON_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"BEACON_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"BEACON_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"BEACON_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"BEACON_POSTGRES_SSL_MODE" envDefault:"require"`
}

func (c *DatabaseConfig) Enabled() bool {
	return c != nil && c.Host != ""
}

// RedisConfig selects the cache backend. An empty URL uses the in-memory backend.
type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

type CacheConfig struct {
	Namespace             string        `env:"CACHE_NAMESPACE" envDefault:"beacon"`
	MissEvictionThreshold int           `env:"CACHE_MISS_EVICTION_THRESHOLD" envDefault:"3"`
	IndexTTL              time.Duration `env:"CACHE_INDEX_TTL" envDefault:"720h"`
	OperationTimeout      time.Duration `env:"CACHE_OPERATION_TIMEOUT" envDefault:"3s"`
}

type QuotaConfig struct {
	Window        time.Duration `env:"QUOTA_WINDOW" envDefault:"100s"`
	WindowCeiling int           `env:"QUOTA_WINDOW_CEILING" envDefault:"15000"`
	DailyCeiling  int           `env:"QUOTA_DAILY_CEILING" envDefault:"1000000"`
	// Units charged per list page and per fetched message.
	ListCost    int `env:"QUOTA_COST_LIST" envDefault:"5"`
	MessageCost int `env:"QUOTA_COST_MESSAGE" envDefault:"5"`
}

type WorkerConfig struct {
	// Mode is "process" or "inprocess".
	Mode          string        `env:"WORKER_MODE" envDefault:"process"`
	Binary        string        `env:"WORKER_BINARY"`
	Timeout       time.Duration `env:"WORKER_TIMEOUT" envDefault:"60s"`
	GracePeriod   time.Duration `env:"WORKER_GRACE_PERIOD" envDefault:"2s"`
	KillTimeout   time.Duration `env:"WORKER_KILL_TIMEOUT" envDefault:"3s"`
	StderrLimit   int           `env:"WORKER_STDERR_LIMIT" envDefault:"65536"`
	MaxConcurrent int           `env:"WORKER_MAX_CONCURRENT" envDefault:"4"`
	SpawnRate     float64       `env:"WORKER_SPAWN_RATE" envDefault:"10"`
	SpawnBurst    int           `env:"WORKER_SPAWN_BURST" envDefault:"4"`
}

type FetchConfig struct {
	BatchSize     int           `env:"FETCH_BATCH_SIZE" envDefault:"20"`
	ListPageSize  int           `env:"FETCH_LIST_PAGE_SIZE" envDefault:"100"`
	MaxRetries    int           `env:"FETCH_MAX_RETRIES" envDefault:"3"`
	BackoffBase   time.Duration `env:"FETCH_BACKOFF_BASE" envDefault:"500ms"`
	BackoffMax    time.Duration `env:"FETCH_BACKOFF_MAX" envDefault:"30s"`
	MaxQuotaWaits int           `env:"FETCH_MAX_QUOTA_WAITS" envDefault:"10"`
	// MaxQuotaWait caps a single quota wait; longer RetryAfter values fail the fetch.
	MaxQuotaWait time.Duration `env:"FETCH_MAX_QUOTA_WAIT" envDefault:"2m"`
}

type LinguisticConfig struct {
	Mode          string        `env:"LINGUISTIC_MODE" envDefault:"inprocess"`
	MaxTextRunes  int           `env:"LINGUISTIC_MAX_TEXT_RUNES" envDefault:"10000"`
	MaxKeywords   int           `env:"LINGUISTIC_MAX_KEYWORDS" envDefault:"10"`
	WorkerTimeout time.Duration `env:"LINGUISTIC_WORKER_TIMEOUT" envDefault:"30s"`
}

type SemanticConfig struct {
	ChunkSize            int           `env:"SEMANTIC_CHUNK_SIZE" envDefault:"5"`
	Concurrency          int           `env:"SEMANTIC_CONCURRENCY" envDefault:"3"`
	MaxTokens            int           `env:"SEMANTIC_MAX_TOKENS" envDefault:"1500"`
	CallTimeout          time.Duration `env:"SEMANTIC_CALL_TIMEOUT" envDefault:"60s"`
	ModelFast            string        `env:"SEMANTIC_MODEL_FAST" envDefault:"claude-3-5-haiku-latest"`
	ModelAccurate        string        `env:"SEMANTIC_MODEL_ACCURATE" envDefault:"claude-sonnet-4-5"`
	PromptPricePer1K     float64       `env:"SEMANTIC_PROMPT_PRICE_PER_1K" envDefault:"0.0008"`
	CompletionPricePer1K float64       `env:"SEMANTIC_COMPLETION_PRICE_PER_1K" envDefault:"0.004"`
	MaxMessageRunes      int           `env:"SEMANTIC_MAX_MESSAGE_RUNES" envDefault:"4000"`
}

type LLMConfig struct {
	// Provider is "anthropic", "openai" or "gateway".
	Provider         string `env:"LLM_PROVIDER" envDefault:"anthropic"`
	AnthropicAPIKey  string `env:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL string `env:"ANTHROPIC_BASE_URL"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL"`
	GatewayURL       string `env:"LLM_GATEWAY_URL"`
	GatewayAPIKey    string `env:"LLM_GATEWAY_API_KEY"`
	MaxRetries       int    `env:"LLM_MAX_RETRIES" envDefault:"0"`
}

// SettingsDefaults apply to users without a settings row.
type SettingsDefaults struct {
	AIEnabled         bool     `env:"SETTINGS_DEFAULT_AI_ENABLED" envDefault:"true"`
	ModelType         string   `env:"SETTINGS_DEFAULT_MODEL_TYPE" envDefault:"fast"`
	ContextLength     int      `env:"SETTINGS_DEFAULT_CONTEXT_LENGTH" envDefault:"2000"`
	SummaryLength     int      `env:"SETTINGS_DEFAULT_SUMMARY_LENGTH" envDefault:"200"`
	CustomCategories  []string `env:"SETTINGS_DEFAULT_CUSTOM_CATEGORIES" envSeparator:","`
	PriorityThreshold int      `env:"SETTINGS_DEFAULT_PRIORITY_THRESHOLD" envDefault:"50"`
	CacheDurationDays int      `env:"SETTINGS_DEFAULT_CACHE_DURATION_DAYS" envDefault:"7"`
	Timezone          string   `env:"SETTINGS_DEFAULT_TIMEZONE" envDefault:"UTC"`
}

type PipelineConfig struct {
	DefaultDaysBack   int           `env:"PIPELINE_DEFAULT_DAYS_BACK" envDefault:"3"`
	MaxDaysBack       int           `env:"PIPELINE_MAX_DAYS_BACK" envDefault:"30"`
	DefaultMaxResults int           `env:"PIPELINE_DEFAULT_MAX_RESULTS" envDefault:"50"`
	MaxResultsLimit   int           `env:"PIPELINE_MAX_RESULTS_LIMIT" envDefault:"500"`
	EventBuffer       int           `env:"PIPELINE_EVENT_BUFFER" envDefault:"4"`
	TerminalTimeout   time.Duration `env:"PIPELINE_TERMINAL_EVENT_TIMEOUT" envDefault:"5s"`
	EventSendTimeout  time.Duration `env:"PIPELINE_EVENT_SEND_TIMEOUT" envDefault:"30s"`
	ActivityTimeout   time.Duration `env:"PIPELINE_ACTIVITY_TIMEOUT" envDefault:"10s"`
}

type R2StorageConfig struct {
	AccountID        string `env:"CLOUDFLARE_R2_ACCOUNT_ID"`
	AccessKeyID      string `env:"CLOUDFLARE_R2_ACCESS_KEY_ID"`
	AccessKeySecret  string `env:"CLOUDFLARE_R2_ACCESS_KEY_SECRET"`
	AWSRegion        string `env:"AWS_REGION"`
	QuarantineBucket string `env:"BUCKET_NAME_QUARANTINE" envDefault:"beacon-quarantine"`
	QuarantineEnable bool   `env:"QUARANTINE_ENABLED" envDefault:"false"`
	// Objects older than this are removed by the quarantine retention job.
	QuarantineRetentionDays int `env:"QUARANTINE_RETENTION_DAYS" envDefault:"14"`
}

type ActivityConfig struct {
	Exchange      string `env:"ACTIVITY_EXCHANGE" envDefault:"beacon"`
	RoutingKey    string `env:"ACTIVITY_ROUTING_KEY" envDefault:"pipeline.completed"`
	RetentionDays int    `env:"ACTIVITY_LOG_RETENTION_DAYS" envDefault:"30"`
}
