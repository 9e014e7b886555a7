package queue

import (
	"github.com/foxseedlab/kikitori/external/redisclient"
	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/queue"
	"github.com/hibiken/asynq"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*asynq.Client, error) {
		c := do.MustInvoke[*config.Config](i)
		return asynq.NewClient(RedisClientOpt(c)), nil
	})
	do.Provide(injector, func(i do.Injector) (queue.Enqueuer, error) {
		return NewAsynqEnqueuer(do.MustInvoke[*asynq.Client](i)), nil
	})
}

func RedisClientOpt(c *config.Config) asynq.RedisClientOpt {
	opts := redisclient.Options(c)
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}
