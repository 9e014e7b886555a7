package awsclient

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (aws.Config, error) {
		c := do.MustInvoke[*config.Config](i)
		return LoadConfig(context.Background(), c.AWSRegion)
	})
}
