package repository

import "time"

type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

type SessionSource string

const (
	SessionSourceDiscord   SessionSource = "discord"
	SessionSourceWebSocket SessionSource = "websocket"
	SessionSourceCLI       SessionSource = "cli"
)

type Session struct {
	ID           string
	Source       SessionSource
	GuildID      string
	ChannelID    string
	LanguageCode string
	SampleRateHz int
	Status       SessionStatus
	StopReason   string
	StartedAt    time.Time
	EndedAt      *time.Time
}

type TranscriptSegment struct {
	ID           string
	SessionID    string
	SegmentIndex int
	Content      string
	ResultID     string
	Confidence   *float64
	StartMs      int64
	EndMs        int64
	SpokenAt     time.Time
	CreatedAt    time.Time
}

type SentimentAlert struct {
	ID            string
	SessionID     string
	SegmentIndex  int
	Label         string
	NegativeScore float64
	CreatedAt     time.Time
}

type SessionSummary struct {
	SessionID string
	ModelID   string
	Summary   string
	CreatedAt time.Time
}
