// Command serve runs the longform HTTP server.
//
// Routes:
//
//	POST /api/transform           start a transformation task, returns {task_id}
//	GET  /api/tasks/{id}          task snapshot
//	GET  /api/tasks/{id}/events   task events as SSE
//	POST /api/tasks/{id}/cancel   cancel a running task
//	POST /api/blog                generate an article, streaming workflow events as SSE
//	GET  /metrics                 Prometheus metrics
//	GET  /health                  health check
//
// Configuration comes from the YAML file named by LONGFORM_CONFIG (optional)
// and the environment:
//
//	LONGFORM_PROVIDER        - Chat provider: anthropic, openai, or google (default: anthropic)
//	LONGFORM_MODEL           - Chat model override
//	LONGFORM_IMAGE_PROVIDER  - Image provider: openai or google (optional)
//	LONGFORM_PORT            - Server port (default: 8000)
//	LONGFORM_OUTPUT_DIR      - Write finished articles here (optional)
//	LONGFORM_CHECKPOINT_DIR  - Persist step checkpoints here (optional)
//	LONGFORM_LOG_LEVEL       - debug, info, warn, or error (default: info)
//	ZAI_SEARCH_API_KEY       - Enables web research
//	ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY
//
// Usage:
//
//	LONGFORM_PROVIDER=anthropic go run ./cmd/serve
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spetersoncode/longform/client"
	"github.com/spetersoncode/longform/config"
	"github.com/spetersoncode/longform/internal/app"
	"github.com/spetersoncode/longform/task"
)

func main() {
	cfg, err := config.Load(os.Getenv("LONGFORM_CONFIG"))
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	clientEvents := make(chan client.Event, 100)
	go newProviderMetrics(reg).observe(clientEvents, cfg.Provider, logger)

	a, err := app.New(cfg, logger, app.WithClientEvents(clientEvents), app.WithUniqueRunIDs())
	if err != nil {
		logger.Error("failed to create generator", "error", err)
		os.Exit(1)
	}

	tasks := task.New(
		task.WithCleanupDelay(cfg.Server.CleanupDelay),
		task.WithMetrics(task.NewMetrics(reg)),
		task.WithLogger(logger),
	)
	defer tasks.Close()

	srv := &Server{
		generator:    a.Generator,
		pipeline:     a.Pipeline(tasks),
		tasks:        tasks,
		pollInterval: cfg.Server.PollInterval,
		corsOrigin:   cfg.Server.CORSOrigin,
		metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		logger:       logger,
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE needs no write timeout
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	logger.Info("longform server starting",
		"port", cfg.Server.Port,
		"provider", cfg.Provider,
		"image_provider", cfg.ImageProvider,
		"research", cfg.Search.APIKey != "",
	)

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
