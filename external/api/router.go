package api

import (
	"context"
	"net/http"
	"time"

	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/document"
	"github.com/foxseedlab/kikitori/internal/queue"
	"github.com/foxseedlab/kikitori/internal/repository"
	"github.com/foxseedlab/kikitori/internal/sentiment"
	"github.com/foxseedlab/kikitori/internal/session"
	"github.com/foxseedlab/kikitori/internal/summary"
	"github.com/foxseedlab/kikitori/internal/transcriber"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type TextExtractor interface {
	ExtractText(ctx context.Context, ref document.ObjectRef) (string, error)
}

type SessionRunner interface {
	Run(ctx context.Context, req session.StartRequest, audio <-chan transcriber.AudioChunk, hooks session.Hooks) error
}

// PingFunc reports whether a backing store is reachable.
type PingFunc func(ctx context.Context) error

type Deps struct {
	Repository repository.Repository
	RedisPing  PingFunc
	Documents  TextExtractor
	Classifier sentiment.Classifier
	Generator  summary.Generator
	Enqueuer   queue.Enqueuer
	Sessions   SessionRunner
}

type Router struct {
	mux  *chi.Mux
	cfg  *config.Config
	deps Deps
}

func NewRouter(cfg *config.Config, deps Deps) *Router {
	return &Router{mux: chi.NewRouter(), cfg: cfg, deps: deps}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logging)
	r.Use(chimiddleware.Recoverer)

	health := &HealthHandler{repo: rt.deps.Repository, redisPing: rt.deps.RedisPing}
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	r.Route("/api/v1", func(r chi.Router) {
		if rt.cfg.APIJWTSecret != "" {
			r.Use(NewJWTMiddleware(rt.cfg.APIJWTSecret).Authenticate)
		}

		docH := &DocumentHandler{extractor: rt.deps.Documents}
		r.Post("/documents/text", docH.ExtractText)

		sentH := &SentimentHandler{
			classifier:   rt.deps.Classifier,
			policy:       sentiment.AlertPolicy{Threshold: rt.cfg.SentimentAlertThreshold},
			languageCode: rt.cfg.SentimentLanguageCode,
		}
		r.Post("/sentiment", sentH.Classify)

		compH := &CompletionHandler{
			generator: rt.deps.Generator,
			modelID:   rt.cfg.BedrockModelID,
			opts: summary.InferenceOptions{
				MaxTokens:   rt.cfg.SummaryMaxTokens,
				Temperature: rt.cfg.SummaryTemperature,
			},
		}
		r.Post("/completions", compH.Complete)

		sessH := &SessionHandler{repo: rt.deps.Repository, enqueuer: rt.deps.Enqueuer}
		r.Get("/sessions/{id}", sessH.Get)
		r.Post("/sessions/{id}/summary", sessH.Summarize)

		streamH := &StreamHandler{
			runner: rt.deps.Sessions,
			defaults: transcriber.SessionConfig{
				LanguageCode:  rt.cfg.TranscribeLanguageCode,
				MediaEncoding: transcriber.MediaEncoding(rt.cfg.TranscribeMediaEncoding),
				SampleRateHz:  rt.cfg.TranscribeSampleRateHz,
			},
			writeTimeout: streamWriteTimeout,
		}
		r.Get("/transcriptions/stream", streamH.Stream)
	})

	return r
}

const streamWriteTimeout = 10 * time.Second
