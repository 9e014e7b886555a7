package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/foxseedlab/kikitori/internal/serviceerr"
	"github.com/foxseedlab/kikitori/internal/summary"
)

const anthropicServiceName = "anthropic_bedrock"

type AnthropicGenerator struct {
	client anthropic.Client
}

// NewAnthropicBedrockGenerator routes the Anthropic SDK through Bedrock with the shared AWS config.
func NewAnthropicBedrockGenerator(awsCfg aws.Config) summary.Generator {
	return NewAnthropicGenerator(anthropic.NewClient(bedrock.WithConfig(awsCfg)))
}

func NewAnthropicGenerator(client anthropic.Client) summary.Generator {
	return &AnthropicGenerator{client: client}
}

func (g *AnthropicGenerator) Generate(ctx context.Context, req summary.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("invalid generation request: %w", err)
	}

	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case summary.RoleUser:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case summary.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.ModelID),
		MaxTokens:   int64(req.Options.MaxTokens),
		Messages:    msgs,
		Temperature: anthropic.Float(req.Options.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		slog.Error("anthropic bedrock generate failed", "error", err, "model_id", req.ModelID)
		return "", classifyAnthropic(err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", serviceerr.Decode(anthropicServiceName, "Messages.New", errors.New("response has no text content"))
	}
	return b.String(), nil
}

func classifyAnthropic(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return serviceerr.RemoteService(anthropicServiceName, "Messages.New", err)
	}
	return serviceerr.Transport(anthropicServiceName, "Messages.New", err)
}
