package main

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/engramd/engramd/config"
	"github.com/engramd/engramd/pkg/api"
	"github.com/engramd/engramd/pkg/api/handlers"
	"github.com/engramd/engramd/pkg/contextual"
	"github.com/engramd/engramd/pkg/embedding"
	"github.com/engramd/engramd/pkg/logger"
	"github.com/engramd/engramd/pkg/memory"
)

func TestServerStartup(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.App.Name = "test"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 18090 // Use different port for testing
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimension = 32
	cfg.Memory.Durable.Path = t.TempDir()
	cfg.Metrics.Enabled = false
	cfg.Tracing.Enabled = false
	cfg.Pattern.Enabled = false

	log := logger.New(&logger.Config{
		Level:  logger.ErrorLevel,
		Format: "json",
		Output: "stderr",
	})

	provider := embedding.NewMockProvider(cfg.Embedding.Dimension)

	durable, err := memory.NewDurableStore(cfg.Memory.Durable, log)
	if err != nil {
		t.Fatalf("Failed to open durable store: %v", err)
	}
	defer durable.Close()

	cache := memory.NewLRUCache(cfg.Memory.Cache.Size, cfg.Memory.Cache.TTL)
	defer cache.Stop()

	queue := memory.NewWriteQueue(durable,
		cfg.Memory.Queue.Size,
		cfg.Memory.Queue.Workers,
		cfg.Memory.Queue.RetryAttempts,
		cfg.Memory.Queue.RetryDelay,
		log,
	)

	svc := memory.NewService(memory.ServiceOptions{
		Provider: provider,
		Cache:    cache,
		Durable:  durable,
		Queue:    queue,
		Ranker:   memory.NewRanker(cfg.Memory.Ranking, nil),
		Search:   cfg.Memory.Search,
		Logger:   log,
	})
	svc.Start()
	defer svc.Stop()

	injector := contextual.NewInjector(cfg.Context)

	apiHandlers := &api.Handlers{
		Memory:  handlers.NewMemoryHandler(svc, log, nil),
		Context: handlers.NewContextHandler(svc, nil, injector, provider, log),
		Health:  handlers.NewHealthHandler(svc, durable, nil, "test"),
	}

	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	// Wait for server to start
	time.Sleep(100 * time.Millisecond)

	select {
	case err := <-serverErrChan:
		t.Fatalf("Server failed to start: %v", err)
	default:
	}

	for _, path := range []string{"/health", "/ready", "/status"} {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d%s", cfg.Server.Port, path))
		if err != nil {
			t.Fatalf("Failed to call %s: %v", path, err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s returned status %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Failed to shutdown server: %v", err)
	}
}

func TestBuildOverrides(t *testing.T) {
	origAppName := *appName
	origPort := *serverPort
	origLogLevel := *logLevel
	origDebug := *debugMode
	t.Cleanup(func() {
		*appName = origAppName
		*serverPort = origPort
		*logLevel = origLogLevel
		*debugMode = origDebug
	})

	*appName = "override-app"
	*serverPort = 9191
	*logLevel = "debug"
	*debugMode = true

	overrides := buildOverrides()

	if overrides["app.name"] != "override-app" {
		t.Errorf("expected app.name override, got %v", overrides["app.name"])
	}
	if overrides["server.port"] != 9191 {
		t.Errorf("expected server.port override, got %v", overrides["server.port"])
	}
	if overrides["log.level"] != "debug" {
		t.Errorf("expected log.level override, got %v", overrides["log.level"])
	}
	if overrides["app.debug"] != true {
		t.Errorf("expected app.debug override, got %v", overrides["app.debug"])
	}

	*appName = ""
	*serverPort = 0
	*logLevel = ""
	*debugMode = false

	if len(buildOverrides()) != 0 {
		t.Errorf("expected empty overrides, got %v", buildOverrides())
	}
}
