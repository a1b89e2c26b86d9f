package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

// DefaultQueue is the asynq queue checkout events are enqueued on.
const DefaultQueue = "checkout_events"

// Enqueuer is the part of *asynq.Client the publisher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqPublisher enqueues each event as a task whose type is the topic.
type AsynqPublisher struct {
	Client   Enqueuer
	Queue    string
	MaxRetry int
}

func (AsynqPublisher) Name() string { return "asynq" }

func (p AsynqPublisher) Publish(ctx context.Context, ev Event) error {
	if p.Client == nil {
		return errors.New("asynq client not configured")
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	queue := p.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	retry := p.MaxRetry
	if retry <= 0 {
		retry = 5
	}
	_, err = p.Client.EnqueueContext(ctx, asynq.NewTask(ev.Topic, body),
		asynq.Queue(queue),
		asynq.MaxRetry(retry),
		asynq.TaskID(ev.ID),
	)
	return err
}
