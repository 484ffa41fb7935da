package app

import (
	"context"
	"errors"
	"fmt"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	prometheusRelay "git.mci.dev/mse/sre/phoenix/golang/relay/internal/prometheus"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/queue"
	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var ErrUnroutableTopic = errors.New("no handler for topic")

// RadioEventHandler receives object-store notifications.
func (app *Relay) RadioEventHandler(ctx context.Context, msg *sarama.ConsumerMessage) {
	err := app.WorkerPool.Submit(func() {
		app.processRadioEvent(ctx, msg)
	})
	if err != nil {
		logging.Logger.Error("failed to submit event to ants pool", zap.String("error", err.Error()))
	}
}

func (app *Relay) processRadioEvent(ctx context.Context, msg *sarama.ConsumerMessage) {
	timer := prometheus.NewTimer(
		prometheusRelay.ProcessMessageDuration.WithLabelValues("radio-events"),
	)
	defer timer.ObserveDuration()

	defer app.handlePanic("radio-events")

	err := app.IngestService.HandleEvent(ctx, msg.Value)
	if err != nil {
		logging.Logger.Error("failed to process radio event",
			zap.String("error", err.Error()),
			zap.ByteString("event_key", msg.Key),
		)

		_ = app.DeadLetterService.MarkEvent(
			ctx,
			config.Conf.KafkaRadioEventsTopic,
			eventKey(msg),
			msg.Value,
			err.Error(),
		)
	}
}

// JobHandler receives jobs-queue messages: page dispatch, transcription
// results, and the ad-hoc messaging actions.
func (app *Relay) JobHandler(ctx context.Context, msg *sarama.ConsumerMessage) {
	err := app.WorkerPool.Submit(func() {
		app.processJob(ctx, msg)
	})
	if err != nil {
		logging.Logger.Error("failed to submit job to ants pool", zap.String("error", err.Error()))
	}
}

func (app *Relay) processJob(ctx context.Context, msg *sarama.ConsumerMessage) {
	timer := prometheus.NewTimer(
		prometheusRelay.ProcessMessageDuration.WithLabelValues("jobs"),
	)
	defer timer.ObserveDuration()

	defer app.handlePanic("jobs")

	err := app.handleJobPayload(ctx, msg.Value)
	if err != nil {
		if errors.Is(err, queue.ErrUnknownAction) {
			// Another producer's action; retrying cannot make it ours.
			logging.Logger.Warn("Skipping job with unknown action",
				zap.ByteString("event_key", msg.Key),
				zap.String("error", err.Error()),
			)

			return
		}

		logging.Logger.Error("failed to process job",
			zap.String("error", err.Error()),
			zap.ByteString("event_key", msg.Key),
		)

		_ = app.DeadLetterService.MarkEvent(
			ctx,
			config.Conf.KafkaJobsTopic,
			eventKey(msg),
			msg.Value,
			err.Error(),
		)
	}
}

func (app *Relay) handleJobPayload(ctx context.Context, payload []byte) error {
	decoded, err := queue.Decode(payload)
	if err != nil {
		return err
	}

	switch job := decoded.(type) {
	case queue.PageJob:
		return app.NotifyService.SendPage(ctx, job)
	case queue.TranscribeResult:
		return app.TranscribeConsumer.Handle(ctx, job)
	case queue.TwilioText:
		return app.NotifyService.SendText(ctx, job)
	case queue.ActivateUser:
		return app.NotifyService.ActivateUser(ctx, job)
	case queue.AuthCode:
		return app.NotifyService.SendAuthCode(ctx, job)
	case queue.SiteStatus:
		return app.NotifyService.SendSiteStatus(ctx, job)
	default:
		return fmt.Errorf("%w: %q", queue.ErrUnknownAction, decoded.Action())
	}
}

// reprocessEvent replays a dead-lettered event through the handler that
// originally consumed it.
func (app *Relay) reprocessEvent(ctx context.Context, topic string, payload []byte) error {
	switch topic {
	case config.Conf.KafkaRadioEventsTopic:
		return app.IngestService.HandleEvent(ctx, payload)
	case config.Conf.KafkaJobsTopic:
		return app.handleJobPayload(ctx, payload)
	default:
		return fmt.Errorf("%w: %q", ErrUnroutableTopic, topic)
	}
}

func eventKey(msg *sarama.ConsumerMessage) string {
	if len(msg.Key) > 0 {
		return string(msg.Key)
	}

	return uuid.New().String()
}

func (app *Relay) handlePanic(topic string) {
	if r := recover(); r != nil {
		logging.Logger.Error("panic in message worker",
			zap.String("topic", topic),
			zap.Any("recover", r),
		)
	}
}
