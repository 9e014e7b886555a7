package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/foxseedlab/kikitori/internal/serviceerr"
)

func newTestAnthropicClient(url string) anthropic.Client {
	return anthropic.NewClient(
		option.WithBaseURL(url),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
}

func TestAnthropicGenerator_Generate(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude","content":[{"type":"text","text":"Summary."}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer server.Close()

	text, err := NewAnthropicGenerator(newTestAnthropicClient(server.URL)).Generate(context.Background(), testRequest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Summary." {
		t.Fatalf("unexpected text: %q", text)
	}
	if got["model"] != testRequest.ModelID || got["max_tokens"].(float64) != 128 {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestAnthropicGenerator_APIErrorIsRemote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer server.Close()

	_, err := NewAnthropicGenerator(newTestAnthropicClient(server.URL)).Generate(context.Background(), testRequest)
	if !errors.Is(err, serviceerr.ErrRemoteService) {
		t.Fatalf("expected remote service error, got %v", err)
	}
}

func TestAnthropicGenerator_LogsFailures(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"overloaded"}}`))
	}))
	defer server.Close()

	if _, err := NewAnthropicGenerator(newTestAnthropicClient(server.URL)).Generate(context.Background(), testRequest); err == nil {
		t.Fatal("expected error")
	}
	out := logs.String()
	if !strings.Contains(out, `"level":"ERROR"`) || !strings.Contains(out, `"model_id":"`+testRequest.ModelID+`"`) {
		t.Fatalf("expected error log with model id, got %s", out)
	}
}
