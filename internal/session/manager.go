package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/queue"
	"github.com/foxseedlab/kikitori/internal/repository"
	"github.com/foxseedlab/kikitori/internal/sentiment"
	"github.com/foxseedlab/kikitori/internal/transcriber"
	"github.com/foxseedlab/kikitori/internal/webhook"
)

const (
	StopReasonInputClosed = "input_closed"
	StopReasonCanceled    = "canceled"
	StopReasonMaxDuration = "max_duration"
	StopReasonStreamError = "stream_error"
)

type StartRequest struct {
	Source    repository.SessionSource
	GuildID   string
	ChannelID string
	Config    transcriber.SessionConfig
}

// Hooks are called synchronously from Run. Either may be nil.
type Hooks struct {
	OnStart      func(s *repository.Session)
	OnTranscript func(seg repository.TranscriptSegment)
}

type Manager struct {
	cfg         *config.Config
	repo        repository.Repository
	transcriber transcriber.Transcriber
	monitor     *sentiment.Monitor
	webhook     webhook.Sender
	enqueuer    queue.Enqueuer
	loc         *time.Location
	now         func() time.Time
}

// NewManager builds a Manager. monitor and enqueuer are optional.
func NewManager(cfg *config.Config, repo repository.Repository, stt transcriber.Transcriber, monitor *sentiment.Monitor, wh webhook.Sender, enqueuer queue.Enqueuer) *Manager {
	loc, err := time.LoadLocation(cfg.TranscriptTimezone)
	if err != nil {
		slog.Warn("failed to load transcript timezone; using UTC", "error", err, "timezone", cfg.TranscriptTimezone)
		loc = time.UTC
	}
	return &Manager{
		cfg:         cfg,
		repo:        repo,
		transcriber: stt,
		monitor:     monitor,
		webhook:     wh,
		enqueuer:    enqueuer,
		loc:         loc,
		now:         time.Now,
	}
}

// Run records one transcription session from audio until the input closes, ctx is cancelled,
// the maximum duration elapses or the stream fails. The session row is always completed and the
// returned error is the *transcriber.StreamError that ended the stream, if any.
func (m *Manager) Run(ctx context.Context, req StartRequest, audio <-chan transcriber.AudioChunk, hooks Hooks) error {
	if err := req.Config.Validate(); err != nil {
		return fmt.Errorf("invalid session config: %w", err)
	}
	created, err := m.repo.CreateSession(ctx, repository.CreateSessionInput{
		Source:       req.Source,
		GuildID:      req.GuildID,
		ChannelID:    req.ChannelID,
		LanguageCode: req.Config.LanguageCode,
		SampleRateHz: req.Config.SampleRateHz,
		StartedAt:    m.now(),
	})
	if err != nil {
		slog.Error("failed to create session in repository", "error", err, "source", req.Source, "channel_id", req.ChannelID)
		return fmt.Errorf("create session: %w", err)
	}
	slog.Info("created session", "session_id", created.ID, "source", req.Source, "language_code", req.Config.LanguageCode, "sample_rate_hz", req.Config.SampleRateHz)
	if hooks.OnStart != nil {
		hooks.OnStart(created)
	}

	runCtx, cancel := context.WithTimeout(ctx, m.cfg.MaxTranscribeDuration())
	defer cancel()

	var (
		nextIndex int
		streamErr error
	)
	for tr, err := range transcriber.Consume(runCtx, m.transcriber, req.Config, audio) {
		if err != nil {
			streamErr = err
			break
		}
		if strings.TrimSpace(tr.Text) == "" {
			continue
		}
		idx := nextIndex
		nextIndex++
		m.handleFinal(runCtx, created, idx, tr, hooks)
	}

	reason := StopReasonInputClosed
	switch {
	case streamErr != nil:
		reason = StopReasonStreamError
		slog.Error("transcriber stream error", "error", streamErr, "session_id", created.ID)
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		reason = StopReasonMaxDuration
	case ctx.Err() != nil:
		reason = StopReasonCanceled
	}
	m.finalize(context.WithoutCancel(ctx), created, reason, streamErr)
	return streamErr
}

func (m *Manager) handleFinal(ctx context.Context, s *repository.Session, idx int, tr transcriber.Transcript, hooks Hooks) {
	seg := repository.TranscriptSegment{
		SessionID:    s.ID,
		SegmentIndex: idx,
		Content:      tr.Text,
		ResultID:     tr.ResultID,
		Confidence:   tr.Confidence,
		StartMs:      tr.StartTime.Milliseconds(),
		EndMs:        tr.EndTime.Milliseconds(),
		SpokenAt:     m.now(),
	}
	if err := m.repo.InsertSegment(ctx, repository.InsertSegmentInput{
		SessionID:    seg.SessionID,
		SegmentIndex: seg.SegmentIndex,
		Content:      seg.Content,
		ResultID:     seg.ResultID,
		Confidence:   seg.Confidence,
		StartMs:      seg.StartMs,
		EndMs:        seg.EndMs,
		SpokenAt:     seg.SpokenAt,
	}); err != nil {
		slog.Error("failed to insert segment", "error", err, "session_id", s.ID, "segment_index", idx)
		return
	}
	if hooks.OnTranscript != nil {
		hooks.OnTranscript(seg)
	}
	m.checkSentiment(ctx, s, seg)
}

func (m *Manager) checkSentiment(ctx context.Context, s *repository.Session, seg repository.TranscriptSegment) {
	if m.monitor == nil {
		return
	}
	result, alert, ok := m.monitor.Evaluate(ctx, seg.Content)
	if !ok || !alert {
		return
	}
	slog.Info("negative sentiment detected", "session_id", s.ID, "segment_index", seg.SegmentIndex, "negative_score", result.Scores.Negative)
	if err := m.repo.InsertSentimentAlert(ctx, repository.InsertSentimentAlertInput{
		SessionID:     s.ID,
		SegmentIndex:  seg.SegmentIndex,
		Label:         string(result.Label),
		NegativeScore: result.Scores.Negative,
	}); err != nil {
		slog.Error("failed to insert sentiment alert", "error", err, "session_id", s.ID)
	}
	if err := m.webhook.Deliver(ctx, webhook.EventSentimentAlert, webhook.SentimentAlertPayload{
		SchemaVersion: webhook.SchemaVersion,
		SessionID:     s.ID,
		SegmentIndex:  seg.SegmentIndex,
		Text:          seg.Content,
		Label:         string(result.Label),
		Scores:        result.Scores.Map(),
	}); err != nil {
		slog.Error("failed to deliver sentiment alert webhook", "error", err, "session_id", s.ID)
	}
}

func (m *Manager) finalize(ctx context.Context, s *repository.Session, reason string, streamErr error) {
	endedAt := m.now()
	status := repository.SessionStatusCompleted
	stopReason := reason
	if streamErr != nil {
		status = repository.SessionStatusFailed
		stopReason = reason + ": " + streamErr.Error()
	}
	if err := m.repo.CompleteSession(ctx, repository.CompleteSessionInput{
		SessionID:  s.ID,
		Status:     status,
		StopReason: stopReason,
		EndedAt:    endedAt,
	}); err != nil {
		slog.Error("failed to complete session", "error", err, "session_id", s.ID)
	}
	s.Status = status
	s.StopReason = stopReason
	s.EndedAt = &endedAt
	slog.Info("session finished", "session_id", s.ID, "status", status, "reason", reason)

	segments, err := m.repo.ListSegmentsBySessionID(ctx, s.ID)
	if err != nil {
		slog.Error("failed to list transcript segments", "error", err, "session_id", s.ID)
		return
	}
	payload := BuildTranscriptPayload(s, m.cfg.TranscriptTimezone, m.loc, segments)
	if err := m.webhook.Deliver(ctx, webhook.EventTranscriptCompleted, payload); err != nil {
		slog.Error("failed to deliver transcript webhook", "error", err, "session_id", s.ID)
	}
	if len(segments) == 0 || m.enqueuer == nil {
		return
	}
	if err := m.enqueuer.EnqueueSummarize(ctx, s.ID); err != nil {
		slog.Error("failed to enqueue summary", "error", err, "session_id", s.ID)
	}
}

// Location is the timezone transcripts are rendered in.
func (m *Manager) Location() *time.Location {
	return m.loc
}
