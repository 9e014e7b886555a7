package generator

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/summary"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (summary.Generator, error) {
		c := do.MustInvoke[*config.Config](i)
		awsCfg := do.MustInvoke[aws.Config](i)
		switch c.GeneratorBackend {
		case config.GeneratorBackendInvoke:
			return NewBedrockInvokeGenerator(bedrockruntime.NewFromConfig(awsCfg)), nil
		case config.GeneratorBackendAnthropic:
			return NewAnthropicBedrockGenerator(awsCfg), nil
		default:
			return nil, fmt.Errorf("unknown generator backend %q", c.GeneratorBackend)
		}
	})
}
