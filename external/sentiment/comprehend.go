package sentiment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
	"github.com/foxseedlab/kikitori/external/awsclient"
	"github.com/foxseedlab/kikitori/internal/sentiment"
	"github.com/foxseedlab/kikitori/internal/serviceerr"
)

const (
	comprehendServiceName = "comprehend"
	// DetectSentiment rejects documents above 5000 UTF-8 bytes.
	maxTextBytes = 5000
)

type detectSentimentAPI interface {
	DetectSentiment(ctx context.Context, params *comprehend.DetectSentimentInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectSentimentOutput, error)
}

type ComprehendClassifier struct {
	api detectSentimentAPI
}

func NewComprehendClassifier(api detectSentimentAPI) sentiment.Classifier {
	return &ComprehendClassifier{api: api}
}

func (c *ComprehendClassifier) Classify(ctx context.Context, text, languageCode string) (sentiment.Result, error) {
	if strings.TrimSpace(text) == "" {
		return sentiment.Result{}, serviceerr.Decode(comprehendServiceName, "DetectSentiment", errors.New("text is blank"))
	}
	out, err := c.api.DetectSentiment(ctx, &comprehend.DetectSentimentInput{
		Text:         aws.String(truncateUTF8(text, maxTextBytes)),
		LanguageCode: types.LanguageCode(languageCode),
	})
	if err != nil {
		return sentiment.Result{}, awsclient.Classify(comprehendServiceName, "DetectSentiment", err)
	}
	return decodeSentiment(out)
}

func decodeSentiment(out *comprehend.DetectSentimentOutput) (sentiment.Result, error) {
	label := sentiment.Label(out.Sentiment)
	if !label.Valid() {
		return sentiment.Result{}, serviceerr.Decode(comprehendServiceName, "DetectSentiment", fmt.Errorf("unknown sentiment %q", out.Sentiment))
	}
	if out.SentimentScore == nil {
		return sentiment.Result{}, serviceerr.Decode(comprehendServiceName, "DetectSentiment", errors.New("missing sentiment score"))
	}
	s := out.SentimentScore
	return sentiment.Result{
		Label: label,
		Scores: sentiment.Scores{
			Positive: float64(aws.ToFloat32(s.Positive)),
			Negative: float64(aws.ToFloat32(s.Negative)),
			Neutral:  float64(aws.ToFloat32(s.Neutral)),
			Mixed:    float64(aws.ToFloat32(s.Mixed)),
		},
	}, nil
}

func truncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
