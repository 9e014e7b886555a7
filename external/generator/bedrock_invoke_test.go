package generator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/foxseedlab/kikitori/internal/serviceerr"
	"github.com/foxseedlab/kikitori/internal/summary"
)

type fakeInvokeModel struct {
	body  []byte
	err   error
	input *bedrockruntime.InvokeModelInput
}

func (f *fakeInvokeModel) InvokeModel(_ context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

var testRequest = summary.Request{
	ModelID:  "anthropic.claude-3-haiku-20240307-v1:0",
	System:   "be brief",
	Messages: []summary.Message{{Role: summary.RoleUser, Content: "hello"}},
	Options:  summary.InferenceOptions{MaxTokens: 128, Temperature: 0.2},
}

func TestBedrockInvokeGenerator_Generate(t *testing.T) {
	api := &fakeInvokeModel{body: []byte(`{"content":[{"type":"text","text":"Hi "},{"type":"tool_use"},{"type":"text","text":"there"}],"stop_reason":"end_turn"}`)}

	text, err := NewBedrockInvokeGenerator(api).Generate(context.Background(), testRequest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Hi there" {
		t.Fatalf("unexpected text: %q", text)
	}
	if aws.ToString(api.input.ModelId) != testRequest.ModelID {
		t.Fatalf("unexpected model id: %s", aws.ToString(api.input.ModelId))
	}

	var sent map[string]any
	if err := json.Unmarshal(api.input.Body, &sent); err != nil {
		t.Fatalf("request body is not json: %v", err)
	}
	if sent["anthropic_version"] != "bedrock-2023-05-31" || sent["system"] != "be brief" {
		t.Fatalf("unexpected request body: %s", api.input.Body)
	}
	if sent["max_tokens"].(float64) != 128 || sent["temperature"].(float64) != 0.2 {
		t.Fatalf("unexpected inference options: %s", api.input.Body)
	}
}

func TestBedrockInvokeGenerator_DecodeErrors(t *testing.T) {
	for name, body := range map[string]string{
		"invalid json": `{"content":`,
		"no text":      `{"content":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewBedrockInvokeGenerator(&fakeInvokeModel{body: []byte(body)}).Generate(context.Background(), testRequest)
			if !errors.Is(err, serviceerr.ErrDecode) {
				t.Fatalf("expected decode error, got %v", err)
			}
		})
	}
}

func TestBedrockInvokeGenerator_RemoteError(t *testing.T) {
	api := &fakeInvokeModel{err: &smithy.GenericAPIError{Code: "ValidationException", Message: "bad model"}}
	_, err := NewBedrockInvokeGenerator(api).Generate(context.Background(), testRequest)
	if !errors.Is(err, serviceerr.ErrRemoteService) {
		t.Fatalf("expected remote service error, got %v", err)
	}
}

func TestBedrockInvokeGenerator_InvalidRequestSkipsCall(t *testing.T) {
	api := &fakeInvokeModel{}
	bad := testRequest
	bad.Messages = nil
	if _, err := NewBedrockInvokeGenerator(api).Generate(context.Background(), bad); err == nil {
		t.Fatal("expected validation error")
	}
	if api.input != nil {
		t.Fatal("expected no service call for an invalid request")
	}
}
