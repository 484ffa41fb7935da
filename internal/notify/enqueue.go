package notify

import (
	"context"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/kafka"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/queue"
)

// Enqueuer publishes typed messages onto the jobs topic. Ingest hands page
// work over through it instead of dispatching inline, so page sends survive
// process restarts and share the jobs consumer's retry machinery.
type Enqueuer struct {
	Producer *kafka.Producer
	Topic    string
}

func NewEnqueuer(producer *kafka.Producer, topic string) *Enqueuer {
	return &Enqueuer{
		Producer: producer,
		Topic:    topic,
	}
}

func (e *Enqueuer) EnqueuePage(_ context.Context, job queue.PageJob) error {
	return e.enqueue(job, job.Channel)
}

func (e *Enqueuer) enqueue(msg queue.Message, key string) error {
	payload, err := queue.Encode(msg)
	if err != nil {
		return err
	}

	_, _, err = e.Producer.SendMessage(e.Topic, []byte(key), payload)

	return err
}
