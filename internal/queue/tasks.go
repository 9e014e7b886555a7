package queue

import "context"

const TypeSessionSummarize = "session:summarize"

type SummarizePayload struct {
	SessionID string `json:"session_id"`
}

type Enqueuer interface {
	EnqueueSummarize(ctx context.Context, sessionID string) error
}

type Summarizer interface {
	SummarizeSession(ctx context.Context, sessionID string) error
}
