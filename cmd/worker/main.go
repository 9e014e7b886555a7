package main

import (
	"log/slog"
	"os"

	"github.com/foxseedlab/kikitori/external/awsclient"
	configloader "github.com/foxseedlab/kikitori/external/config"
	generatorimpl "github.com/foxseedlab/kikitori/external/generator"
	queueimpl "github.com/foxseedlab/kikitori/external/queue"
	repositoryimpl "github.com/foxseedlab/kikitori/external/repository"
	webhookimpl "github.com/foxseedlab/kikitori/external/webhook"
	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/queue"
	"github.com/foxseedlab/kikitori/internal/summary"
	"github.com/hibiken/asynq"
	"github.com/samber/do/v2"
)

const workerConcurrency = 10

func main() {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	injector := setupDI(cfg)
	svc, err := do.Invoke[*summary.Service](injector)
	if err != nil {
		slog.Error("failed to resolve summary service", "error", err)
		os.Exit(1)
	}

	srv := asynq.NewServer(
		queueimpl.RedisClientOpt(cfg),
		asynq.Config{
			Concurrency: workerConcurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	registry := queueimpl.NewHandlersRegistry()
	registry.Register(queue.TypeSessionSummarize, queueimpl.NewSummarizeWorker(svc))

	slog.Info("starting worker", "concurrency", workerConcurrency)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	awsclient.RegisterDI(injector)
	repositoryimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	generatorimpl.RegisterDI(injector)
	summary.RegisterDI(injector)

	return injector
}
