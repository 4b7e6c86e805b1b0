// Package asynqsink enqueues committed domain events as asynq tasks so
// background workers can react to them.
package asynqsink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/hongminglow/all-in-iam/internal/events"
)

// TaskPrefix is prepended to the event name to form the task type.
const TaskPrefix = "domain_event:"

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Sink struct {
	client Enqueuer
	queue  string
	logger *slog.Logger
}

func New(client Enqueuer, queue string, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if queue == "" {
		queue = "default"
	}
	return &Sink{client: client, queue: queue, logger: logger}
}

// TaskType returns the asynq task type for an event name.
func TaskType(eventName string) string {
	return TaskPrefix + eventName
}

// Publish enqueues one task per event. The event id doubles as the task id
// so a retried publish does not enqueue duplicates.
func (s *Sink) Publish(ctx context.Context, evts []events.Event) error {
	for _, evt := range evts {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", evt.Name, err)
		}
		task := asynq.NewTask(TaskType(evt.Name), payload)
		info, err := s.client.EnqueueContext(ctx, task, asynq.Queue(s.queue), asynq.TaskID(evt.ID))
		if err != nil {
			return fmt.Errorf("enqueue event %s: %w", evt.Name, err)
		}
		s.logger.DebugContext(ctx, "event enqueued",
			slog.String("task_id", info.ID),
			slog.String("queue", info.Queue),
			slog.String("event", evt.Name),
		)
	}
	return nil
}
