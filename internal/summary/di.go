package summary

import (
	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/repository"
	"github.com/foxseedlab/kikitori/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Service, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewService(
			do.MustInvoke[repository.Repository](i),
			do.MustInvoke[Generator](i),
			do.MustInvoke[webhook.Sender](i),
			c.BedrockModelID,
			InferenceOptions{MaxTokens: c.SummaryMaxTokens, Temperature: c.SummaryTemperature},
		), nil
	})
}
