package webhook

import "context"

type Event string

const (
	EventTranscriptCompleted Event = "transcript.completed"
	EventSentimentAlert      Event = "sentiment.alert"
	EventSummaryCompleted    Event = "summary.completed"
)

const SchemaVersion = "2026-10-01"

// Sender delivers an event payload to the configured endpoint. Implementations treat an
// unconfigured endpoint as a no-op.
type Sender interface {
	Deliver(ctx context.Context, event Event, payload any) error
}

type TranscriptPayload struct {
	SchemaVersion   string           `json:"schema_version"`
	SessionID       string           `json:"session_id"`
	Source          string           `json:"source"`
	GuildID         string           `json:"guild_id,omitempty"`
	ChannelID       string           `json:"channel_id,omitempty"`
	LanguageCode    string           `json:"language_code"`
	Status          string           `json:"status"`
	StopReason      string           `json:"stop_reason"`
	StartAt         string           `json:"start_at"`
	EndAt           string           `json:"end_at"`
	Timezone        string           `json:"timezone"`
	DurationSeconds int64            `json:"duration_seconds"`
	SegmentCount    int              `json:"segment_count"`
	Segments        []SegmentPayload `json:"transcript_segments"`
	Transcript      string           `json:"transcript"`
}

type SegmentPayload struct {
	Index      int      `json:"index"`
	StartAt    string   `json:"start_at"`
	EndAt      string   `json:"end_at"`
	Confidence *float64 `json:"confidence,omitempty"`
	Transcript string   `json:"transcript"`
}

type SentimentAlertPayload struct {
	SchemaVersion string             `json:"schema_version"`
	SessionID     string             `json:"session_id"`
	SegmentIndex  int                `json:"segment_index"`
	Text          string             `json:"text"`
	Label         string             `json:"label"`
	Scores        map[string]float64 `json:"scores"`
}

type SummaryPayload struct {
	SchemaVersion string `json:"schema_version"`
	SessionID     string `json:"session_id"`
	ModelID       string `json:"model_id"`
	Summary       string `json:"summary"`
}
