package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/engramd/engramd/config"
	"github.com/engramd/engramd/pkg/api"
	"github.com/engramd/engramd/pkg/api/events"
	"github.com/engramd/engramd/pkg/api/handlers"
	"github.com/engramd/engramd/pkg/contextual"
	"github.com/engramd/engramd/pkg/embedding"
	"github.com/engramd/engramd/pkg/logger"
	"github.com/engramd/engramd/pkg/memory"
	"github.com/engramd/engramd/pkg/metrics"
	"github.com/engramd/engramd/pkg/pattern"
	"github.com/engramd/engramd/pkg/telemetry/tracing"
	"github.com/engramd/engramd/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	appName    = flag.String("app-name", "", "Override app name")
	serverPort = flag.Int("port", 0, "Override server port")
	logLevel   = flag.String("log-level", "", "Override log level")
	debugMode  = flag.Bool("debug", false, "Enable debug mode")
)

func main() {
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}
	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath, buildOverrides())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug || *debugMode {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)

	log.Info("Starting engramd",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Tracing
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Version)
	if err != nil {
		log.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error("Error shutting down tracing", "error", err)
		}
	}()

	// Metrics
	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Enabled = cfg.Metrics.Enabled
	metricsCfg.Port = cfg.Metrics.Port
	metricsCfg.Path = cfg.Metrics.Path
	metricsManager := metrics.NewManager(metricsCfg)
	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	// Embedding provider
	provider, closeProvider, err := buildProvider(cfg, log, metricsManager)
	if err != nil {
		log.Error("Failed to create embedding provider", "error", err)
		os.Exit(1)
	}
	defer closeProvider()

	// Durable tier
	durable, err := memory.NewDurableStore(cfg.Memory.Durable, log)
	if err != nil {
		log.Error("Failed to open durable store", "error", err, "path", cfg.Memory.Durable.Path)
		os.Exit(1)
	}
	defer func() {
		if err := durable.Close(); err != nil {
			log.Error("Error closing durable store", "error", err)
		}
	}()
	log.Info("Opened durable store", "path", cfg.Memory.Durable.Path)

	// Cache tier
	cache, closeCache := buildCache(cfg, log)
	defer closeCache()

	queue := memory.NewWriteQueue(durable,
		cfg.Memory.Queue.Size,
		cfg.Memory.Queue.Workers,
		cfg.Memory.Queue.RetryAttempts,
		cfg.Memory.Queue.RetryDelay,
		log,
	)

	broadcaster := events.NewBroadcaster()
	defer broadcaster.Close()

	// Pattern detector
	var detector *pattern.Detector
	var patternScore memory.PatternScoreFunc
	if cfg.Pattern.Enabled {
		detector = pattern.NewDetector(cfg.Pattern, pattern.NewStore(durable.DB()), log)
		detector.OnTransition(func(p *pattern.Pattern, from, to pattern.State) {
			metricsManager.RecordPatternTransition(string(from), string(to))
			broadcaster.BroadcastPatternTransition(p.ID, string(from), string(to), p.SuccessRate, len(p.Occurrences))
		})
		if err := detector.Start(ctx); err != nil {
			log.Error("Failed to start pattern detector", "error", err)
			os.Exit(1)
		}
		defer detector.Stop()
		patternScore = detector.ScoreMemory
		log.Info("Pattern detector running",
			"detection_threshold", cfg.Pattern.DetectionThreshold,
			"min_occurrences", cfg.Pattern.MinOccurrences,
		)
	}

	// Memory service
	svc := memory.NewService(memory.ServiceOptions{
		Provider:         provider,
		Cache:            cache,
		Durable:          durable,
		Queue:            queue,
		Ranker:           memory.NewRanker(cfg.Memory.Ranking, patternScore),
		Search:           cfg.Memory.Search,
		Logger:           log,
		BackfillInterval: cfg.Memory.BackfillInterval,
		OnSaved: func(m *memory.Memory) {
			broadcaster.BroadcastMemorySaved(m.ID, string(m.Type), m.OwnerID, m.LowConfidence, m.CreatedAt)
		},
	})
	svc.Start()
	defer svc.Stop()

	metricsManager.RegisterQueueDepth(func() float64 {
		return float64(svc.QueueDepth())
	})
	metricsManager.RegisterCacheStats(
		func() float64 { hits, _ := svc.CacheStats(); return float64(hits) },
		func() float64 { _, misses := svc.CacheStats(); return float64(misses) },
	)

	injector := contextual.NewInjector(cfg.Context)

	// HTTP handlers
	apiHandlers := &api.Handlers{
		Memory:  handlers.NewMemoryHandler(svc, log, metricsManager),
		Context: handlers.NewContextHandler(svc, detector, injector, provider, log),
		Health:  handlers.NewHealthHandler(svc, durable, detector, version.Version),
		Metrics: metricsManager,
	}
	if detector != nil {
		apiHandlers.Pattern = handlers.NewPatternHandler(detector, provider, log, metricsManager)
	}
	if cfg.Server.WebSocket.Enabled {
		wsHandler := handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{
			AllowedOrigins: cfg.Server.WebSocket.AllowedOrigins,
			MaxConnections: cfg.Server.WebSocket.MaxConnections,
			PingInterval:   cfg.Server.WebSocket.PingInterval,
			PongTimeout:    cfg.Server.WebSocket.PongTimeout,
		})
		defer wsHandler.Close()
		go forwardEvents(broadcaster, wsHandler)
		apiHandlers.WebSocket = wsHandler
	}

	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
		if err := httpServer.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	// Hot-reload the log level on config file changes.
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, config.NewLoader())
		if err != nil {
			log.Warn("Config watcher unavailable", "error", err)
		} else {
			watcher.OnChange(func(updated *config.Config) {
				log.Info("Configuration reloaded", "log_level", updated.Log.Level)
				logger.SetLevel(logger.ParseLevel(updated.Log.Level))
			})
			go func() {
				if err := watcher.Watch(ctx); err != nil {
					log.Warn("Config watcher stopped", "error", err)
				}
			}()
			defer watcher.Stop()
		}
	}

	log.Info("engramd is running",
		"http_port", cfg.Server.Port,
		"metrics_port", cfg.Metrics.Port,
		"embedding_provider", cfg.Embedding.Provider,
	)

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErrChan:
		log.Error("HTTP server error", "error", err)
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}

	// Deferred cleanup drains the write queue before the store closes.
	log.Info("engramd stopped gracefully")
}

// buildProvider creates the configured embedding provider, optionally
// wrapped in the vector cache.
func buildProvider(cfg *config.Config, log logger.Logger, m *metrics.Manager) (embedding.Provider, func(), error) {
	var inner embedding.Provider
	switch cfg.Embedding.Provider {
	case "openai":
		p, err := embedding.NewOpenAIProvider(cfg.Embedding, log)
		if err != nil {
			return nil, nil, err
		}
		inner = p
	case "mock":
		inner = embedding.NewMockProvider(cfg.Embedding.Dimension)
		log.Warn("Using mock embedding provider")
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}

	if !cfg.Embedding.Cache.Enabled {
		return inner, func() {}, nil
	}

	cached, err := embedding.NewCachedProvider(inner, cfg.Embedding.Cache.MaxEntries, cfg.Embedding.Cache.TTL)
	if err != nil {
		return nil, nil, err
	}
	m.RegisterEmbeddingCacheStats(
		func() float64 { hits, _ := cached.Stats(); return float64(hits) },
		func() float64 { _, misses := cached.Stats(); return float64(misses) },
	)
	return cached, cached.Close, nil
}

// buildCache creates the configured cache tier.
func buildCache(cfg *config.Config, log logger.Logger) (memory.Cache, func()) {
	if cfg.Memory.Cache.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Memory.Cache.Redis.Address,
			Password: cfg.Memory.Cache.Redis.Password,
			DB:       cfg.Memory.Cache.Redis.DB,
		})
		log.Info("Using redis cache tier", "address", cfg.Memory.Cache.Redis.Address)
		c := memory.NewRedisCache(client, cfg.Memory.Cache.TTL, log)
		return c, func() { _ = client.Close() }
	}

	c := memory.NewLRUCache(cfg.Memory.Cache.Size, cfg.Memory.Cache.TTL)
	return c, c.Stop
}

// forwardEvents bridges broadcaster events onto websocket clients.
func forwardEvents(b *events.Broadcaster, ws *handlers.WebSocketHandler) {
	ch := b.Subscribe(64)
	for ev := range ch {
		_ = ws.Broadcast(handlers.EventMessage{
			Type:      ev.Type,
			Timestamp: ev.Timestamp,
			Payload:   ev.Payload,
		})
	}
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *appName != "" {
		overrides["app.name"] = *appName
	}
	if *serverPort != 0 {
		overrides["server.port"] = *serverPort
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *debugMode {
		overrides["app.debug"] = true
	}

	return overrides
}

func printVersion() {
	fmt.Printf("engramd - Semantic Memory Service\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("engramd - Semantic memory service with pattern detection and context injection\n\n")
	fmt.Printf("Usage: engramd [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  engramd                                   # Run with default config\n")
	fmt.Printf("  engramd -config config.yaml               # Use specific config file\n")
	fmt.Printf("  engramd -port 9090 -log-level debug       # Override specific options\n")
	fmt.Printf("  engramd -version                          # Print version info\n")
}
