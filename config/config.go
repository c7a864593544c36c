// Package config provides configuration management for Engramd.
package config

import (
	"fmt"
	"math"
	"time"
)

// Config is the global configuration for Engramd.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the HTTP server configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Embedding is the embedding provider configuration.
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	// Memory is the memory store configuration.
	Memory MemoryConfig `mapstructure:"memory"`

	// Pattern is the pattern detector configuration.
	Pattern PatternConfig `mapstructure:"pattern"`

	// Context is the context injection configuration.
	Context ContextConfig `mapstructure:"context"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"oneof=development staging production"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// HTTP is the HTTP server configuration.
	HTTP HTTPConfig `mapstructure:"http"`

	// CORS is the CORS configuration.
	CORS CORSConfig `mapstructure:"cors"`

	// WebSocket is the websocket event stream configuration.
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

// HTTPConfig holds HTTP-specific settings.
type HTTPConfig struct {
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RequestTimeout is the per-request deadline enforced by middleware.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	// Enabled enables CORS support.
	Enabled bool `mapstructure:"enabled"`

	// AllowedOrigins is the list of allowed origins.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AllowedMethods is the list of allowed HTTP methods.
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// AllowedHeaders is the list of allowed headers.
	AllowedHeaders []string `mapstructure:"allowed_headers"`

	// ExposedHeaders is the list of headers exposed to the client.
	ExposedHeaders []string `mapstructure:"exposed_headers"`

	// AllowCredentials indicates whether credentials are allowed.
	AllowCredentials bool `mapstructure:"allow_credentials"`

	// MaxAge is the maximum age of CORS preflight cache in seconds.
	MaxAge int `mapstructure:"max_age"`
}

// WebSocketConfig holds websocket event stream settings.
type WebSocketConfig struct {
	// Enabled enables the /ws/events endpoint.
	Enabled bool `mapstructure:"enabled"`

	// MaxConnections caps concurrent websocket clients.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// PingInterval is the server ping cadence.
	PingInterval time.Duration `mapstructure:"ping_interval"`

	// PongTimeout is how long to wait for a pong before dropping the client.
	PongTimeout time.Duration `mapstructure:"pong_timeout"`

	// AllowedOrigins restricts upgrade requests by Origin header.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is the embedding backend (openai, mock).
	Provider string `mapstructure:"provider" validate:"oneof=openai mock"`

	// APIKey is the provider API key. Usually set via ENGRAMD_EMBEDDING_APIKEY.
	APIKey string `mapstructure:"apikey"`

	// BaseURL overrides the provider endpoint (optional, for proxies).
	BaseURL string `mapstructure:"base_url"`

	// Model is the embedding model name.
	Model string `mapstructure:"model"`

	// Dimension is the embedding vector dimension. Fixed per deployment.
	Dimension int `mapstructure:"dimension" validate:"min=1"`

	// MaxTextChars rejects oversized inputs before any provider call.
	MaxTextChars int `mapstructure:"max_text_chars" validate:"min=1"`

	// Timeout is the per-call deadline for provider requests.
	Timeout time.Duration `mapstructure:"timeout"`

	// Retry is the retry policy for transient provider failures.
	Retry RetryConfig `mapstructure:"retry"`

	// Rate limits outbound provider calls.
	Rate RateConfig `mapstructure:"rate"`

	// Cache is the embedding result cache.
	Cache EmbeddingCacheConfig `mapstructure:"cache"`
}

// RetryConfig holds retry policy settings.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `mapstructure:"max_attempts" validate:"min=1"`

	// BaseDelay is the initial backoff delay, doubled each attempt.
	BaseDelay time.Duration `mapstructure:"base_delay"`
}

// RateConfig holds rate limiter settings.
type RateConfig struct {
	// RPS is the sustained requests-per-second allowance.
	RPS float64 `mapstructure:"rps" validate:"min=0"`

	// Burst is the maximum burst size.
	Burst int `mapstructure:"burst" validate:"min=0"`
}

// EmbeddingCacheConfig holds embedding cache settings.
type EmbeddingCacheConfig struct {
	// Enabled enables the embedding cache.
	Enabled bool `mapstructure:"enabled"`

	// TTL is how long cached vectors stay valid.
	TTL time.Duration `mapstructure:"ttl"`

	// MaxEntries bounds the number of cached vectors.
	MaxEntries int64 `mapstructure:"max_entries" validate:"min=0"`
}

// MemoryConfig holds memory store settings.
type MemoryConfig struct {
	// Cache is the in-process cache tier.
	Cache CacheConfig `mapstructure:"cache"`

	// Durable is the persistent tier.
	Durable DurableConfig `mapstructure:"durable"`

	// Queue is the asynchronous durable write queue.
	Queue QueueConfig `mapstructure:"queue"`

	// Search holds retrieval settings.
	Search SearchConfig `mapstructure:"search"`

	// Ranking holds the multi-factor ranking weights.
	Ranking RankingConfig `mapstructure:"ranking"`

	// BackfillInterval is the cadence of the embedding backfill loop.
	BackfillInterval time.Duration `mapstructure:"backfill_interval"`
}

// CacheConfig holds cache tier settings.
type CacheConfig struct {
	// Backend is the cache implementation (memory, redis).
	Backend string `mapstructure:"backend" validate:"oneof=memory redis"`

	// Size is the maximum number of cached memories (memory backend).
	Size int `mapstructure:"size" validate:"min=1"`

	// TTL is how long a cached memory stays resident.
	TTL time.Duration `mapstructure:"ttl"`

	// Redis holds redis backend settings.
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db"`
}

// DurableConfig holds BadgerDB settings for the durable tier.
type DurableConfig struct {
	// Path is the database directory path.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the maximum size of value log files in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size"`

	// NumVersionsToKeep is the number of versions to keep per key.
	NumVersionsToKeep int `mapstructure:"num_versions_to_keep"`
}

// QueueConfig holds durable write queue settings.
type QueueConfig struct {
	// Size is the bounded queue depth.
	Size int `mapstructure:"size" validate:"min=1"`

	// Workers is the number of drain workers.
	Workers int `mapstructure:"workers" validate:"min=1"`

	// RetryAttempts is how many times a failed durable write is retried.
	RetryAttempts int `mapstructure:"retry_attempts" validate:"min=0"`

	// RetryDelay is the initial retry backoff, doubled each attempt.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// SearchConfig holds retrieval settings.
type SearchConfig struct {
	// DurableTimeout bounds the durable tier's leg of a search fan-out.
	DurableTimeout time.Duration `mapstructure:"durable_timeout"`

	// SimilarityThreshold drops candidates below this cosine similarity.
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" validate:"min=0,max=1"`

	// DefaultLimit caps results when the request does not set a limit.
	DefaultLimit int `mapstructure:"default_limit" validate:"min=1"`

	// MaxLimit caps any requested limit.
	MaxLimit int `mapstructure:"max_limit" validate:"min=1"`
}

// RankingConfig holds the multi-factor ranking weights.
// The five weights must sum to 1.0; this is validated at startup.
type RankingConfig struct {
	// SimilarityWeight scores semantic closeness to the query.
	SimilarityWeight float64 `mapstructure:"similarity_weight" validate:"min=0,max=1"`

	// RecencyWeight scores exponential decay on time since last access.
	RecencyWeight float64 `mapstructure:"recency_weight" validate:"min=0,max=1"`

	// FrequencyWeight scores saturating access-count growth.
	FrequencyWeight float64 `mapstructure:"frequency_weight" validate:"min=0,max=1"`

	// ImportanceWeight scores the caller-assigned importance.
	ImportanceWeight float64 `mapstructure:"importance_weight" validate:"min=0,max=1"`

	// PatternWeight scores association with successful patterns.
	PatternWeight float64 `mapstructure:"pattern_weight" validate:"min=0,max=1"`

	// RecencyHalfLife is the decay half-life for the recency factor.
	RecencyHalfLife time.Duration `mapstructure:"recency_half_life"`
}

// WeightSum returns the sum of the five ranking weights.
func (r RankingConfig) WeightSum() float64 {
	return r.SimilarityWeight + r.RecencyWeight + r.FrequencyWeight +
		r.ImportanceWeight + r.PatternWeight
}

// PatternConfig holds pattern detector settings.
type PatternConfig struct {
	// Enabled enables pattern detection.
	Enabled bool `mapstructure:"enabled"`

	// DetectionThreshold is the cosine similarity at which two triggers
	// count as the same pattern.
	DetectionThreshold float64 `mapstructure:"detection_threshold" validate:"min=0,max=1"`

	// MinOccurrences promotes a pattern to candidate at this count.
	MinOccurrences int `mapstructure:"min_occurrences" validate:"min=1"`

	// OccurrenceWindow is the rolling window occurrences must fall within.
	OccurrenceWindow time.Duration `mapstructure:"occurrence_window"`

	// MinUsages gates auto-apply on a minimum number of applications.
	MinUsages int `mapstructure:"min_usages" validate:"min=1"`

	// SuccessThreshold gates auto-apply on the rolling success rate.
	SuccessThreshold float64 `mapstructure:"success_threshold" validate:"min=0,max=1"`

	// CleanupInterval is the cadence of the occurrence window cleanup loop.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// ContextConfig holds context injection settings.
type ContextConfig struct {
	// Budget is the total character budget for an injected context block.
	Budget int `mapstructure:"budget" validate:"min=1"`

	// PerMemoryBudget caps the characters contributed by a single memory.
	// Zero means split the total budget evenly.
	PerMemoryBudget int `mapstructure:"per_memory_budget" validate:"min=0"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the metrics server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the span exporter. Only "otlp" is supported.
	Exporter string `mapstructure:"exporter"`

	// Endpoint is the OTLP collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Timeout bounds each export call.
	Timeout time.Duration `mapstructure:"timeout"`

	// Headers are sent with every export request.
	Headers map[string]string `mapstructure:"headers"`

	// Sampler selects the sampling strategy: always_on, always_off, or
	// ratio (the default, driven by SampleRate).
	Sampler string `mapstructure:"sampler"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if sum := c.Memory.Ranking.WeightSum(); math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("config validation failed: ranking weights sum to %g, want 1.0", sum)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s}",
		c.App.Name, c.Server.Port, c.App.Environment)
}
