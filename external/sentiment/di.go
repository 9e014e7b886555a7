package sentiment

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/sentiment"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (sentiment.Classifier, error) {
		awsCfg := do.MustInvoke[aws.Config](i)
		return NewComprehendClassifier(comprehend.NewFromConfig(awsCfg)), nil
	})
	do.Provide(injector, func(i do.Injector) (*sentiment.Monitor, error) {
		c := do.MustInvoke[*config.Config](i)
		classifier := do.MustInvoke[sentiment.Classifier](i)
		return sentiment.NewMonitor(classifier, sentiment.AlertPolicy{Threshold: c.SentimentAlertThreshold}, c.SentimentLanguageCode), nil
	})
}
