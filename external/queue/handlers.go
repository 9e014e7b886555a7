package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/foxseedlab/kikitori/internal/queue"
	"github.com/hibiken/asynq"
)

type HandlersRegistry struct {
	mux *asynq.ServeMux
}

func NewHandlersRegistry() *HandlersRegistry {
	return &HandlersRegistry{mux: asynq.NewServeMux()}
}

func (r *HandlersRegistry) Register(taskType string, handler asynq.Handler) {
	r.mux.Handle(taskType, handler)
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}

type SummarizeWorker struct {
	summarizer queue.Summarizer
}

func NewSummarizeWorker(s queue.Summarizer) *SummarizeWorker {
	return &SummarizeWorker{summarizer: s}
}

func (w *SummarizeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.SummarizePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if strings.TrimSpace(payload.SessionID) == "" {
		return fmt.Errorf("payload has no session_id: %w", asynq.SkipRetry)
	}
	slog.Info("summarizing session", "session_id", payload.SessionID)
	return w.summarizer.SummarizeSession(ctx, payload.SessionID)
}
