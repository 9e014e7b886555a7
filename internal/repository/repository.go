package repository

import (
	"context"
	"time"
)

type CreateSessionInput struct {
	Source       SessionSource
	GuildID      string
	ChannelID    string
	LanguageCode string
	SampleRateHz int
	StartedAt    time.Time
}

type CompleteSessionInput struct {
	SessionID  string
	Status     SessionStatus
	StopReason string
	EndedAt    time.Time
}

type InsertSegmentInput struct {
	SessionID    string
	SegmentIndex int
	Content      string
	ResultID     string
	Confidence   *float64
	StartMs      int64
	EndMs        int64
	SpokenAt     time.Time
}

type InsertSentimentAlertInput struct {
	SessionID     string
	SegmentIndex  int
	Label         string
	NegativeScore float64
}

type SaveSummaryInput struct {
	SessionID string
	ModelID   string
	Summary   string
}

// Lookups return (nil, nil) when the row does not exist.
type SessionRepository interface {
	CreateSession(ctx context.Context, input CreateSessionInput) (*Session, error)
	CompleteSession(ctx context.Context, input CompleteSessionInput) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	GetRunningSessionByChannel(ctx context.Context, guildID, channelID string) (*Session, error)
}

type TranscriptRepository interface {
	InsertSegment(ctx context.Context, input InsertSegmentInput) error
	ListSegmentsBySessionID(ctx context.Context, sessionID string) ([]TranscriptSegment, error)
}

type AnalysisRepository interface {
	InsertSentimentAlert(ctx context.Context, input InsertSentimentAlertInput) error
	SaveSummary(ctx context.Context, input SaveSummaryInput) error
	GetSummary(ctx context.Context, sessionID string) (*SessionSummary, error)
}

type Repository interface {
	SessionRepository
	TranscriptRepository
	AnalysisRepository
	Ping(ctx context.Context) error
}
