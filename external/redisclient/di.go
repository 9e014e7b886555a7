package redisclient

import (
	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*redis.Client, error) {
		c := do.MustInvoke[*config.Config](i)
		return redis.NewClient(Options(c)), nil
	})
}

func Options(c *config.Config) *redis.Options {
	return &redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}
