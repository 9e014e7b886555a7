package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/foxseedlab/kikitori/external/api"
	audioimpl "github.com/foxseedlab/kikitori/external/audio"
	"github.com/foxseedlab/kikitori/external/awsclient"
	configloader "github.com/foxseedlab/kikitori/external/config"
	"github.com/foxseedlab/kikitori/external/discord"
	documentimpl "github.com/foxseedlab/kikitori/external/document"
	generatorimpl "github.com/foxseedlab/kikitori/external/generator"
	queueimpl "github.com/foxseedlab/kikitori/external/queue"
	"github.com/foxseedlab/kikitori/external/redisclient"
	repositoryimpl "github.com/foxseedlab/kikitori/external/repository"
	sentimentimpl "github.com/foxseedlab/kikitori/external/sentiment"
	transcriberimpl "github.com/foxseedlab/kikitori/external/transcriber"
	webhookimpl "github.com/foxseedlab/kikitori/external/webhook"
	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/session"
	"github.com/foxseedlab/kikitori/internal/voicebot"
	"github.com/samber/do/v2"
)

const (
	discordConnectTimeout = 20 * time.Second
	shutdownTimeout       = 30 * time.Second
)

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "transcriber", cfg.TranscriberBackend, "generator", cfg.GeneratorBackend)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if cfg.DiscordEnabled() {
		slog.Info("startup: launching discord bot")
		wg.Add(1)
		go func() {
			defer wg.Done()
			runBot(ctx, injector)
		}()
	}

	runServer(ctx, cfg, injector)
	stop()
	wg.Wait()
	slog.Info("backend stopped")
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	awsclient.RegisterDI(injector)
	redisclient.RegisterDI(injector)
	repositoryimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	sentimentimpl.RegisterDI(injector)
	documentimpl.RegisterDI(injector)
	generatorimpl.RegisterDI(injector)
	queueimpl.RegisterDI(injector)
	session.RegisterDI(injector)
	voicebot.RegisterDI(injector)
	api.RegisterDI(injector)

	return injector
}

// runServer serves the HTTP API until ctx is cancelled or the listener fails.
func runServer(ctx context.Context, cfg *config.Config, injector do.Injector) {
	router, err := do.Invoke[*api.Router](injector)
	if err != nil {
		slog.Error("failed to resolve api router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.Setup(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting api server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down api server")
	case err := <-errCh:
		slog.Error("api server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("api server forced shutdown", "error", err)
	}
}

func runBot(ctx context.Context, injector do.Injector) {
	bot, err := do.Invoke[*voicebot.Bot](injector)
	if err != nil {
		slog.Error("failed to resolve discord bot", "error", err)
		return
	}
	if err := bot.Run(ctx, discordConnectTimeout); err != nil {
		slog.Error("discord bot stopped", "error", err)
	}
}
