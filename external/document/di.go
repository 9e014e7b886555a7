package document

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/document"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*document.Service, error) {
		c := do.MustInvoke[*config.Config](i)
		awsCfg := do.MustInvoke[aws.Config](i)
		detector := NewTextractDetector(textract.NewFromConfig(awsCfg))

		var cache document.TextCache
		if c.OCRCacheTTLMin > 0 {
			cache = NewRedisTextCache(do.MustInvoke[*redis.Client](i), c.OCRCacheTTL())
		}
		return document.NewService(detector, cache), nil
	})
}
