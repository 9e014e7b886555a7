package awsclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/smithy-go"
	"github.com/foxseedlab/kikitori/internal/serviceerr"
)

func LoadConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// Classify maps an SDK error onto the serviceerr taxonomy. Context cancellation is returned
// unchanged so callers can tell it apart from service failures.
func Classify(service, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if _, ok := serviceerr.KindOf(err); ok {
		return err
	}
	var deserializeErr *smithy.DeserializationError
	if errors.As(err, &deserializeErr) {
		return serviceerr.Decode(service, op, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return serviceerr.RemoteService(service, op, err)
	}
	return serviceerr.Transport(service, op, err)
}
