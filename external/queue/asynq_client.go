package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/kikitori/internal/queue"
	"github.com/hibiken/asynq"
)

const (
	summarizeMaxRetry = 3
	summarizeTimeout  = 5 * time.Minute
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type AsynqEnqueuer struct {
	client taskEnqueuer
}

func NewAsynqEnqueuer(client taskEnqueuer) queue.Enqueuer {
	return &AsynqEnqueuer{client: client}
}

func (e *AsynqEnqueuer) EnqueueSummarize(ctx context.Context, sessionID string) error {
	task, err := NewSummarizeTask(sessionID)
	if err != nil {
		return err
	}
	info, err := e.client.EnqueueContext(ctx, task, asynq.MaxRetry(summarizeMaxRetry), asynq.Timeout(summarizeTimeout))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", queue.TypeSessionSummarize, err)
	}
	slog.Info("summary task enqueued", "session_id", sessionID, "task_id", info.ID, "queue", info.Queue)
	return nil
}

func NewSummarizeTask(sessionID string) (*asynq.Task, error) {
	data, err := json.Marshal(queue.SummarizePayload{SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(queue.TypeSessionSummarize, data), nil
}
