package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/foxseedlab/kikitori/internal/repository"
	"github.com/foxseedlab/kikitori/internal/webhook"
)

type Service struct {
	repo      repository.Repository
	generator Generator
	webhook   webhook.Sender
	modelID   string
	opts      InferenceOptions
}

func NewService(repo repository.Repository, generator Generator, wh webhook.Sender, modelID string, opts InferenceOptions) *Service {
	return &Service{repo: repo, generator: generator, webhook: wh, modelID: modelID, opts: opts}
}

// SummarizeSession generates and stores a summary of the session's transcript. Generator errors are
// returned so the caller can retry.
func (s *Service) SummarizeSession(ctx context.Context, sessionID string) error {
	segments, err := s.repo.ListSegmentsBySessionID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("list segments for %s: %w", sessionID, err)
	}
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		if strings.TrimSpace(seg.Content) == "" {
			continue
		}
		lines = append(lines, seg.Content)
	}
	if len(lines) == 0 {
		slog.Info("skipping summary for empty transcript", "session_id", sessionID)
		return nil
	}

	text, err := s.generator.Generate(ctx, BuildTranscriptRequest(s.modelID, s.opts, lines))
	if err != nil {
		slog.Error("summary generation failed", "error", err, "session_id", sessionID, "model_id", s.modelID)
		return fmt.Errorf("generate summary for %s: %w", sessionID, err)
	}

	if err := s.repo.SaveSummary(ctx, repository.SaveSummaryInput{
		SessionID: sessionID,
		ModelID:   s.modelID,
		Summary:   text,
	}); err != nil {
		return fmt.Errorf("save summary for %s: %w", sessionID, err)
	}
	slog.Info("session summarized", "session_id", sessionID, "model_id", s.modelID, "segments", len(lines))

	if err := s.webhook.Deliver(ctx, webhook.EventSummaryCompleted, webhook.SummaryPayload{
		SchemaVersion: webhook.SchemaVersion,
		SessionID:     sessionID,
		ModelID:       s.modelID,
		Summary:       text,
	}); err != nil {
		slog.Error("failed to deliver summary webhook", "error", err, "session_id", sessionID)
	}
	return nil
}
