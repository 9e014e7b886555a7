package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/foxseedlab/kikitori/internal/repository"
	"github.com/google/uuid"
)

// MemoryRepository keeps everything in process memory. It backs the transcribe CLI, which runs
// without a database.
type MemoryRepository struct {
	mu        sync.Mutex
	sessions  map[string]repository.Session
	segments  map[string][]repository.TranscriptSegment
	alerts    []repository.SentimentAlert
	summaries map[string]repository.SessionSummary
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions:  make(map[string]repository.Session),
		segments:  make(map[string][]repository.TranscriptSegment),
		summaries: make(map[string]repository.SessionSummary),
	}
}

func (r *MemoryRepository) Ping(_ context.Context) error { return nil }

func (r *MemoryRepository) CreateSession(_ context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := repository.Session{
		ID:           uuid.NewString(),
		Source:       input.Source,
		GuildID:      input.GuildID,
		ChannelID:    input.ChannelID,
		LanguageCode: input.LanguageCode,
		SampleRateHz: input.SampleRateHz,
		Status:       repository.SessionStatusRunning,
		StartedAt:    input.StartedAt,
	}
	r.sessions[s.ID] = s
	return &s, nil
}

func (r *MemoryRepository) CompleteSession(_ context.Context, input repository.CompleteSessionInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[input.SessionID]
	if !ok {
		return nil
	}
	endedAt := input.EndedAt
	s.Status = input.Status
	s.StopReason = input.StopReason
	s.EndedAt = &endedAt
	r.sessions[input.SessionID] = s
	return nil
}

func (r *MemoryRepository) GetSession(_ context.Context, sessionID string) (*repository.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *MemoryRepository) GetRunningSessionByChannel(_ context.Context, guildID, channelID string) (*repository.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.GuildID == guildID && s.ChannelID == channelID && s.Status == repository.SessionStatusRunning {
			return &s, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) InsertSegment(_ context.Context, input repository.InsertSegmentInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segments[input.SessionID] = append(r.segments[input.SessionID], repository.TranscriptSegment{
		ID:           uuid.NewString(),
		SessionID:    input.SessionID,
		SegmentIndex: input.SegmentIndex,
		Content:      input.Content,
		ResultID:     input.ResultID,
		Confidence:   input.Confidence,
		StartMs:      input.StartMs,
		EndMs:        input.EndMs,
		SpokenAt:     input.SpokenAt,
		CreatedAt:    time.Now(),
	})
	return nil
}

func (r *MemoryRepository) ListSegmentsBySessionID(_ context.Context, sessionID string) ([]repository.TranscriptSegment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := slices.Clone(r.segments[sessionID])
	slices.SortFunc(list, func(a, b repository.TranscriptSegment) int { return a.SegmentIndex - b.SegmentIndex })
	return list, nil
}

func (r *MemoryRepository) InsertSentimentAlert(_ context.Context, input repository.InsertSentimentAlertInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, repository.SentimentAlert{
		ID:            uuid.NewString(),
		SessionID:     input.SessionID,
		SegmentIndex:  input.SegmentIndex,
		Label:         input.Label,
		NegativeScore: input.NegativeScore,
		CreatedAt:     time.Now(),
	})
	return nil
}

func (r *MemoryRepository) SentimentAlerts() []repository.SentimentAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.alerts)
}

func (r *MemoryRepository) SaveSummary(_ context.Context, input repository.SaveSummaryInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries[input.SessionID] = repository.SessionSummary{
		SessionID: input.SessionID,
		ModelID:   input.ModelID,
		Summary:   input.Summary,
		CreatedAt: time.Now(),
	}
	return nil
}

func (r *MemoryRepository) GetSummary(_ context.Context, sessionID string) (*repository.SessionSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.summaries[sessionID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}
