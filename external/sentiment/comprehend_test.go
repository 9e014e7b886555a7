package sentiment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
	"github.com/aws/smithy-go"
	"github.com/foxseedlab/kikitori/internal/sentiment"
	"github.com/foxseedlab/kikitori/internal/serviceerr"
)

type fakeComprehend struct {
	out   *comprehend.DetectSentimentOutput
	err   error
	input *comprehend.DetectSentimentInput
}

func (f *fakeComprehend) DetectSentiment(_ context.Context, params *comprehend.DetectSentimentInput, _ ...func(*comprehend.Options)) (*comprehend.DetectSentimentOutput, error) {
	f.input = params
	return f.out, f.err
}

func TestComprehendClassifier_Classify(t *testing.T) {
	api := &fakeComprehend{out: &comprehend.DetectSentimentOutput{
		Sentiment: types.SentimentTypeNegative,
		SentimentScore: &types.SentimentScore{
			Positive: aws.Float32(0.01),
			Negative: aws.Float32(0.95),
			Neutral:  aws.Float32(0.03),
			Mixed:    aws.Float32(0.01),
		},
	}}

	result, err := NewComprehendClassifier(api).Classify(context.Background(), "I am furious", "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Label != sentiment.LabelNegative || result.Scores.Negative < 0.949 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if api.input.LanguageCode != types.LanguageCodeEn || aws.ToString(api.input.Text) != "I am furious" {
		t.Fatalf("unexpected request: %+v", api.input)
	}
	if !(sentiment.AlertPolicy{Threshold: 0.9}).IsAlertable(result) {
		t.Fatal("expected the result to be alertable")
	}
}

func TestComprehendClassifier_BlankTextIsDecodeError(t *testing.T) {
	api := &fakeComprehend{}
	_, err := NewComprehendClassifier(api).Classify(context.Background(), "   ", "en")
	if !errors.Is(err, serviceerr.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if api.input != nil {
		t.Fatal("expected no service call for blank text")
	}
}

func TestComprehendClassifier_ServiceErrorIsRemote(t *testing.T) {
	api := &fakeComprehend{err: &smithy.GenericAPIError{Code: "TextSizeLimitExceededException", Message: "too long"}}
	_, err := NewComprehendClassifier(api).Classify(context.Background(), "hello", "en")
	if !errors.Is(err, serviceerr.ErrRemoteService) {
		t.Fatalf("expected remote service error, got %v", err)
	}
}

func TestDecodeSentiment_MissingScoreIsDecodeError(t *testing.T) {
	_, err := decodeSentiment(&comprehend.DetectSentimentOutput{Sentiment: types.SentimentTypePositive})
	if !errors.Is(err, serviceerr.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	_, err = decodeSentiment(&comprehend.DetectSentimentOutput{Sentiment: "ANGRY", SentimentScore: &types.SentimentScore{}})
	if !errors.Is(err, serviceerr.ErrDecode) {
		t.Fatalf("expected decode error for unknown label, got %v", err)
	}
}

func TestTruncateUTF8(t *testing.T) {
	if got := truncateUTF8("short", 10); got != "short" {
		t.Fatalf("unexpected result: %q", got)
	}
	long := strings.Repeat("あ", 2000) // 3 bytes per rune
	got := truncateUTF8(long, maxTextBytes)
	if len(got) > maxTextBytes || !utf8.ValidString(got) {
		t.Fatalf("expected valid utf-8 within %d bytes, got %d bytes", maxTextBytes, len(got))
	}
	if len(got) != 4998 {
		t.Fatalf("expected cut on the last full rune, got %d bytes", len(got))
	}
}
