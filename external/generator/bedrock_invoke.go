package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/foxseedlab/kikitori/external/awsclient"
	"github.com/foxseedlab/kikitori/internal/serviceerr"
	"github.com/foxseedlab/kikitori/internal/summary"
)

const (
	bedrockServiceName      = "bedrock"
	bedrockAnthropicVersion = "bedrock-2023-05-31"
)

type invokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockInvokeGenerator calls InvokeModel with the Anthropic messages body format.
type BedrockInvokeGenerator struct {
	api invokeModelAPI
}

func NewBedrockInvokeGenerator(api invokeModelAPI) summary.Generator {
	return &BedrockInvokeGenerator{api: api}
}

type messagesBody struct {
	AnthropicVersion string         `json:"anthropic_version"`
	MaxTokens        int            `json:"max_tokens"`
	Temperature      float64        `json:"temperature"`
	System           string         `json:"system,omitempty"`
	Messages         []messagesTurn `json:"messages"`
}

type messagesTurn struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

func (g *BedrockInvokeGenerator) Generate(ctx context.Context, req summary.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("invalid generation request: %w", err)
	}
	body, err := json.Marshal(encodeMessagesBody(req))
	if err != nil {
		return "", fmt.Errorf("marshal invoke body: %w", err)
	}

	out, err := g.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.ModelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		err = awsclient.Classify(bedrockServiceName, "InvokeModel", err)
		slog.Error("bedrock invoke failed", "error", err, "model_id", req.ModelID)
		return "", err
	}
	return decodeMessagesResponse(out.Body)
}

func encodeMessagesBody(req summary.Request) messagesBody {
	turns := make([]messagesTurn, 0, len(req.Messages))
	for _, m := range req.Messages {
		turns = append(turns, messagesTurn{
			Role:    string(m.Role),
			Content: []contentBlock{{Type: "text", Text: m.Content}},
		})
	}
	return messagesBody{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        req.Options.MaxTokens,
		Temperature:      req.Options.Temperature,
		System:           req.System,
		Messages:         turns,
	}
}

func decodeMessagesResponse(raw []byte) (string, error) {
	var resp messagesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", serviceerr.Decode(bedrockServiceName, "InvokeModel", err)
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", serviceerr.Decode(bedrockServiceName, "InvokeModel", errors.New("response has no text content"))
	}
	return b.String(), nil
}
