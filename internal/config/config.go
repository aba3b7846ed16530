// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.murachan/config.yaml or ./config.yaml)
//  3. Default values
//
// Security: secrets (API key, database password) are masked in MarshalJSON
// and String; never log the raw struct fields.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates GEMINI_API_KEY is not set.
	ErrMissingAPIKey = errors.New("missing Gemini API key")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidDimension indicates the embedding dimension is out of range.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidChunking indicates the chunk size/overlap combination is unusable.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidWeights indicates a rerank weight is negative or all are zero.
	ErrInvalidWeights = errors.New("invalid rerank weights")

	// ErrInvalidTopK indicates the retrieval top-K configuration is inconsistent.
	ErrInvalidTopK = errors.New("invalid top-k configuration")

	// ErrInvalidBlobDir indicates the knowledge directory is not set.
	ErrInvalidBlobDir = errors.New("invalid knowledge directory")
)

// maxDimension is the widest embedding the schema supports; the Gemini
// embedding model tops out at 3072.
const maxDimension = 3072

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Gemini credentials and models
	GeminiAPIKey   string `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE: masked in MarshalJSON
	EmbedderModel  string `mapstructure:"embedder_model" json:"embedder_model"`
	RerankerModel  string `mapstructure:"reranker_model" json:"reranker_model"`
	Dimension      int    `mapstructure:"dimension" json:"dimension"`
	EmbedBatchSize int    `mapstructure:"embed_batch_size" json:"embed_batch_size"`
	EmbedRPM       int    `mapstructure:"embed_rpm" json:"embed_rpm"`

	// Knowledge bucket (local directory)
	KnowledgeDir string `mapstructure:"knowledge_dir" json:"knowledge_dir"`
	WatchBucket  bool   `mapstructure:"watch_bucket" json:"watch_bucket"`

	// Chunking
	ChunkSize      int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap   int `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	MinChunkLength int `mapstructure:"min_chunk_length" json:"min_chunk_length"`

	// Retrieval
	SearchTopK     int     `mapstructure:"search_top_k" json:"search_top_k"`
	RerankTopK     int     `mapstructure:"rerank_top_k" json:"rerank_top_k"`
	WeightSemantic float64 `mapstructure:"weight_semantic" json:"weight_semantic"`
	WeightVector   float64 `mapstructure:"weight_vector" json:"weight_vector"`
	WeightPosition float64 `mapstructure:"weight_position" json:"weight_position"`

	// Index maintenance
	SweepPageSize   int `mapstructure:"sweep_page_size" json:"sweep_page_size"`
	UpsertBatchSize int `mapstructure:"upsert_batch_size" json:"upsert_batch_size"`

	// Storage
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server (serve mode)
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".murachan"))
	}
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults plus env cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("embedder_model", "gemini-embedding-001")
	v.SetDefault("reranker_model", "gemini-2.5-flash")
	v.SetDefault("dimension", 768)
	v.SetDefault("embed_batch_size", 100)
	v.SetDefault("embed_rpm", 120)

	v.SetDefault("knowledge_dir", "knowledge")
	v.SetDefault("watch_bucket", true)

	v.SetDefault("chunk_size", 800)
	v.SetDefault("chunk_overlap", 80)
	v.SetDefault("min_chunk_length", 100)

	v.SetDefault("search_top_k", 10)
	v.SetDefault("rerank_top_k", 3)
	v.SetDefault("weight_semantic", 0.5)
	v.SetDefault("weight_vector", 0.3)
	v.SetDefault("weight_position", 0.2)

	v.SetDefault("sweep_page_size", 50)
	v.SetDefault("upsert_batch_size", 100)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "murachan")
	v.SetDefault("postgres_password", "murachan_dev_password")
	v.SetDefault("postgres_db_name", "murachan")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("listen_addr", ":8787")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds environment overrides explicitly. Hardcoded keys
// cannot fail to bind; a panic here is a bug, not a runtime error.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("gemini_api_key", "GEMINI_API_KEY")
	mustBind("knowledge_dir", "MURACHAN_KNOWLEDGE_DIR")
	mustBind("listen_addr", "MURACHAN_LISTEN_ADDR")
	mustBind("log_level", "MURACHAN_LOG_LEVEL")
	mustBind("log_json", "MURACHAN_LOG_JSON")

	mustBind("postgres_host", "MURACHAN_POSTGRES_HOST")
	mustBind("postgres_port", "MURACHAN_POSTGRES_PORT")
	mustBind("postgres_user", "MURACHAN_POSTGRES_USER")
	mustBind("postgres_password", "MURACHAN_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "MURACHAN_POSTGRES_DB")
	mustBind("postgres_ssl_mode", "MURACHAN_POSTGRES_SSL_MODE")
}

// Validate fail-fast checks the configuration. Configuration errors abort
// startup; they are never retried.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingAPIKey)
	}
	if c.KnowledgeDir == "" {
		return ErrInvalidBlobDir
	}
	if c.Dimension <= 0 || c.Dimension > maxDimension {
		return fmt.Errorf("%w: %d (want 1-%d)", ErrInvalidDimension, c.Dimension, maxDimension)
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: size %d, overlap %d", ErrInvalidChunking, c.ChunkSize, c.ChunkOverlap)
	}
	if c.MinChunkLength < 0 || c.MinChunkLength > c.ChunkSize {
		return fmt.Errorf("%w: min chunk length %d exceeds chunk size %d",
			ErrInvalidChunking, c.MinChunkLength, c.ChunkSize)
	}
	if c.SearchTopK <= 0 || c.RerankTopK <= 0 || c.RerankTopK > c.SearchTopK {
		return fmt.Errorf("%w: search %d, rerank %d", ErrInvalidTopK, c.SearchTopK, c.RerankTopK)
	}
	if c.WeightSemantic < 0 || c.WeightVector < 0 || c.WeightPosition < 0 {
		return fmt.Errorf("%w: weights must be non-negative", ErrInvalidWeights)
	}
	if c.WeightSemantic+c.WeightVector+c.WeightPosition == 0 {
		return fmt.Errorf("%w: at least one weight must be positive", ErrInvalidWeights)
	}
	if c.PostgresHost == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return ErrInvalidPostgresDBName
	}
	return nil
}

// DSN returns the PostgreSQL connection string for pgx.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   c.PostgresHost + ":" + strconv.Itoa(c.PostgresPort),
		Path:   "/" + c.PostgresDBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debug
// utility. This defends against accidental logging, nothing more.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking. When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.GeminiAPIKey = maskSecret(a.GeminiAPIKey)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
