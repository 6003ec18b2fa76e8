package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidConfig   = errors.New("invalid configuration")
)

type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"akar-rag-backend"`
	ServerPort  int    `envconfig:"SERVER_PORT" default:"8000"`

	// Providers
	GeminiAPIKey           string  `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel         string  `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	ChatModel              string  `envconfig:"CHAT_MODEL" default:"gemini-2.0-flash"`
	EmbedBatchSize         int     `envconfig:"EMBED_BATCH_SIZE" default:"100"`
	UpstreamTimeoutSeconds int     `envconfig:"UPSTREAM_TIMEOUT_SECONDS" default:"30"`
	GenerationTemperature  float32 `envconfig:"GENERATION_TEMPERATURE" default:"0.1"`
	GenerationMaxTokens    int32   `envconfig:"GENERATION_MAX_TOKENS" default:"400"`

	// Retrieval
	TopK                      int     `envconfig:"TOP_K" default:"6"`
	ChunkSize                 int     `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap              int     `envconfig:"CHUNK_OVERLAP" default:"175"`
	ConfidenceHighThreshold   float32 `envconfig:"CONFIDENCE_HIGH_THRESHOLD" default:"0.75"`
	ConfidenceMediumThreshold float32 `envconfig:"CONFIDENCE_MEDIUM_THRESHOLD" default:"0.55"`
	MaxSources                int     `envconfig:"MAX_SOURCES" default:"3"`
	SnippetLength             int     `envconfig:"SNIPPET_LENGTH" default:"200"`
	MaxQuestionLength         int     `envconfig:"MAX_QUESTION_LENGTH" default:"512"`

	// Admission control
	RateLimitWindowSeconds int  `envconfig:"RATE_LIMIT_WINDOW_SECONDS" default:"60"`
	RateLimitMaxRequests   int  `envconfig:"RATE_LIMIT_MAX_REQUESTS" default:"30"`
	TrustProxyHeaders      bool `envconfig:"TRUST_PROXY_HEADERS" default:"false"`

	// Storage
	StorageDir    string `envconfig:"STORAGE_DIR" default:"storage"`
	DocumentPath  string `envconfig:"DOCUMENT_PATH" default:"data/Akar website Consolidated.pdf"`
	PDFToTextPath string `envconfig:"PDFTOTEXT_PATH" default:"pdftotext"`
	QueryLogPath  string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`

	// Ingest run history. An empty DB_HOST keeps runs in memory.
	DBHost        string `envconfig:"DB_HOST"`
	DBPort        int    `envconfig:"DB_PORT" default:"5432"`
	DBUser        string `envconfig:"DB_USER" default:"akar"`
	DBPass        string `envconfig:"DB_PASS"`
	DBName        string `envconfig:"DB_NAME" default:"akar"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Index generation events. An empty NSQD_HOST disables them.
	NSQDHost   string `envconfig:"NSQD_HOST"`
	NSQLookupd string `envconfig:"NSQ_LOOKUPD"`
	NSQChannel string `envconfig:"NSQ_CHANNEL"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Ignore errors, env vars might be set in the shell
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrInvalidConfig)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)", ErrInvalidConfig)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: TOP_K must be positive", ErrInvalidConfig)
	}
	if c.ConfidenceMediumThreshold <= 0 || c.ConfidenceHighThreshold > 1 ||
		c.ConfidenceMediumThreshold > c.ConfidenceHighThreshold {
		return fmt.Errorf("%w: confidence thresholds must satisfy 0 < medium <= high <= 1", ErrInvalidConfig)
	}
	if c.MaxSources <= 0 {
		return fmt.Errorf("%w: MAX_SOURCES must be positive", ErrInvalidConfig)
	}
	if c.MaxQuestionLength <= 0 {
		return fmt.Errorf("%w: MAX_QUESTION_LENGTH must be positive", ErrInvalidConfig)
	}
	if c.RateLimitWindowSeconds <= 0 || c.RateLimitMaxRequests <= 0 {
		return fmt.Errorf("%w: rate limit window and max requests must be positive", ErrInvalidConfig)
	}
	if c.UpstreamTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: UPSTREAM_TIMEOUT_SECONDS must be positive", ErrInvalidConfig)
	}
	if c.StorageDir == "" {
		return fmt.Errorf("%w: STORAGE_DIR", ErrMissingRequired)
	}
	if c.DBHost != "" {
		if c.DBUser == "" {
			return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
		}
		if c.DBName == "" {
			return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
		}
	}
	return nil
}

func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSeconds) * time.Second
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// DSN returns the lib/pq connection string for the run history database.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}
