package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "engramd",
			Version:     "dev",
			Environment: "development",
			Debug:       false,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			HTTP: HTTPConfig{
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    30 * time.Second,
				IdleTimeout:     120 * time.Second,
				ShutdownTimeout: 15 * time.Second,
				RequestTimeout:  30 * time.Second,
				MaxHeaderBytes:  1 << 20, // 1MB
			},
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
				MaxAge:         300,
			},
			WebSocket: WebSocketConfig{
				Enabled:        true,
				MaxConnections: 256,
				PingInterval:   30 * time.Second,
				PongTimeout:    10 * time.Second,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Embedding: EmbeddingConfig{
			Provider:     "openai",
			Model:        "text-embedding-3-small",
			Dimension:    1536,
			MaxTextChars: 8192,
			Timeout:      10 * time.Second,
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   100 * time.Millisecond,
			},
			Rate: RateConfig{
				RPS:   10,
				Burst: 20,
			},
			Cache: EmbeddingCacheConfig{
				Enabled:    true,
				TTL:        1 * time.Hour,
				MaxEntries: 10000,
			},
		},
		Memory: MemoryConfig{
			Cache: CacheConfig{
				Backend: "memory",
				Size:    1000,
				TTL:     30 * time.Minute,
				Redis: RedisConfig{
					Address:  "localhost:6379",
					Password: "",
					DB:       0,
				},
			},
			Durable: DurableConfig{
				Path:              "./data/memories",
				SyncWrites:        true,
				ValueLogFileSize:  1073741824, // 1GB
				NumVersionsToKeep: 1,
			},
			Queue: QueueConfig{
				Size:          10000,
				Workers:       4,
				RetryAttempts: 3,
				RetryDelay:    100 * time.Millisecond,
			},
			Search: SearchConfig{
				DurableTimeout:      500 * time.Millisecond,
				SimilarityThreshold: 0.7,
				DefaultLimit:        10,
				MaxLimit:            100,
			},
			Ranking: RankingConfig{
				SimilarityWeight: 0.4,
				RecencyWeight:    0.2,
				FrequencyWeight:  0.2,
				ImportanceWeight: 0.1,
				PatternWeight:    0.1,
				RecencyHalfLife:  72 * time.Hour,
			},
			BackfillInterval: 5 * time.Minute,
		},
		Pattern: PatternConfig{
			Enabled:            true,
			DetectionThreshold: 0.80,
			MinOccurrences:     3,
			OccurrenceWindow:   7 * 24 * time.Hour,
			MinUsages:          5,
			SuccessThreshold:   0.9,
			CleanupInterval:    1 * time.Hour,
		},
		Context: ContextConfig{
			Budget:          2000,
			PerMemoryBudget: 0,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9091,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlp",
			Endpoint:   "localhost:4317",
			Timeout:    10 * time.Second,
			Sampler:    "ratio",
			SampleRate: 0.1,
		},
	}
}
