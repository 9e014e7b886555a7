package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type InferenceOptions struct {
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type Request struct {
	ModelID  string
	System   string
	Messages []Message
	Options  InferenceOptions
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.ModelID) == "" {
		return errors.New("model id is required")
	}
	if len(r.Messages) == 0 {
		return errors.New("at least one message is required")
	}
	for i, m := range r.Messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("message %d: content is empty", i)
		}
	}
	if r.Messages[0].Role != RoleUser {
		return errors.New("the first message must come from the user")
	}
	if r.Options.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", r.Options.MaxTokens)
	}
	if r.Options.Temperature < 0 || r.Options.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %v", r.Options.Temperature)
	}
	return nil
}

// Generator returns a single completion for the request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

const transcriptSystemPrompt = "You summarize meeting transcripts. Reply with a short paragraph followed by a bullet list of decisions and action items."

func BuildTranscriptRequest(modelID string, opts InferenceOptions, lines []string) Request {
	var b strings.Builder
	b.WriteString("Summarize the following transcript.\n\n<transcript>\n")
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("</transcript>")
	return Request{
		ModelID:  modelID,
		System:   transcriptSystemPrompt,
		Messages: []Message{{Role: RoleUser, Content: b.String()}},
		Options:  opts,
	}
}
