package api

import (
	"context"

	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/document"
	"github.com/foxseedlab/kikitori/internal/queue"
	"github.com/foxseedlab/kikitori/internal/repository"
	"github.com/foxseedlab/kikitori/internal/sentiment"
	"github.com/foxseedlab/kikitori/internal/session"
	"github.com/foxseedlab/kikitori/internal/summary"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Router, error) {
		cfg := do.MustInvoke[*config.Config](i)
		rdb := do.MustInvoke[*redis.Client](i)
		return NewRouter(cfg, Deps{
			Repository: do.MustInvoke[repository.Repository](i),
			RedisPing: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
			Documents:  do.MustInvoke[*document.Service](i),
			Classifier: do.MustInvoke[sentiment.Classifier](i),
			Generator:  do.MustInvoke[summary.Generator](i),
			Enqueuer:   do.MustInvoke[queue.Enqueuer](i),
			Sessions:   do.MustInvoke[*session.Manager](i),
		}), nil
	})
}
