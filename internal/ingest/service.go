// Package ingest turns object-store notifications into call records and
// drives each new recording through duplicate resolution, transcription
// kickoff, and page dispatch.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/dedupe"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	prometheusRelay "git.mci.dev/mse/sre/phoenix/golang/relay/internal/prometheus"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/queue"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/runall"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

var (
	ErrFollowupFailed = errors.New("post-resolution follow-up failed")
	ErrMissingChannel = errors.New("object event missing channel metadata")
)

// Store is the slice of the call repository ingest needs.
type Store interface {
	Insert(ctx context.Context, record *call.CallRecord) error
	DeleteByObjectKey(ctx context.Context, objectKey string) (bool, error)
}

// ChannelSource resolves channel configuration; backed by the TTL directory.
type ChannelSource interface {
	Get(ctx context.Context, id string) (*call.Channel, error)
}

// TranscribeSubmitter kicks off speech-to-text for a canonical recording.
type TranscribeSubmitter interface {
	Submit(ctx context.Context, record *call.CallRecord, pageEligible bool) error
}

// PageEnqueuer hands a won page claim to the jobs queue for dispatch.
type PageEnqueuer interface {
	EnqueuePage(ctx context.Context, job queue.PageJob) error
}

type Service struct {
	Store       Store
	Channels    ChannelSource
	Resolver    *dedupe.Resolver
	Transcriber TranscribeSubmitter
	Pages       PageEnqueuer
}

func NewService(
	store Store,
	channels ChannelSource,
	resolver *dedupe.Resolver,
	transcriber TranscribeSubmitter,
	pages PageEnqueuer,
) *Service {
	return &Service{
		Store:       store,
		Channels:    channels,
		Resolver:    resolver,
		Transcriber: transcriber,
		Pages:       pages,
	}
}

// HandleEvent processes one object-store notification end to end.
func (s *Service) HandleEvent(ctx context.Context, payload []byte) error {
	var event ObjectEvent

	err := json.Unmarshal(payload, &event)
	if err != nil {
		logging.Logger.Error("Failed to unmarshal object event",
			zap.String("error", err.Error()),
		)

		return err
	}

	switch event.EventType {
	case EventTypeCreated:
		return s.handleCreated(ctx, &event)
	case EventTypeRemoved:
		return s.handleRemoved(ctx, &event)
	default:
		logging.Logger.Warn("Skipping object event with unknown type",
			zap.String("event_type", event.EventType),
			zap.String("object_key", event.ObjectKey),
		)

		return nil
	}
}

func (s *Service) handleCreated(ctx context.Context, event *ObjectEvent) error {
	// Without a channel the record has no identity. The error routes the
	// event to the dead-letter table, where the bounded retries exhaust and
	// park it for operator inspection.
	if event.Metadata.Channel == "" {
		logging.Logger.Error("Create event without channel metadata",
			zap.String("object_key", event.ObjectKey),
			zap.String("bucket", event.Bucket),
		)

		return fmt.Errorf("%w: %s", ErrMissingChannel, event.ObjectKey)
	}

	record := event.record(time.Now())

	err := s.Store.Insert(ctx, record)
	if err != nil {
		return err
	}

	prometheusRelay.CallsIngested.Inc()

	if latency := event.uploadLatencySeconds(); latency >= 0 {
		prometheusRelay.UploadLatency.Observe(latency)
	}

	channel, err := s.Channels.Get(ctx, record.Channel)
	if err != nil {
		return err
	}

	outcome, err := s.Resolver.Resolve(ctx, record, channel)
	if err != nil {
		return err
	}

	if !outcome.Kept {
		return nil
	}

	return s.followUp(ctx, channel, record, outcome)
}

// followUp fans out the canonical record's consequences. Transcription kickoff
// and page enqueue are independent; both run, and the event fails (and gets
// retried) only if one of them does. Each side tolerates re-runs: the page
// claim is already persisted and job submission is idempotent on job name
// collisions downstream.
func (s *Service) followUp(
	ctx context.Context,
	channel *call.Channel,
	record *call.CallRecord,
	outcome *dedupe.Outcome,
) error {
	tasks := make(map[string]runall.Task, 2)

	if outcome.NeedTranscription {
		pageEligible := channel.PageWanted(record)

		tasks["transcribe"] = func(ctx context.Context) error {
			return s.Transcriber.Submit(ctx, outcome.Canonical, pageEligible)
		}
	}

	if outcome.NeedPage {
		job := queue.PageJob{
			Channel:         outcome.Canonical.Channel,
			ObjectKey:       outcome.Canonical.ObjectKey,
			DurationSeconds: outcome.Canonical.DurationSeconds,
		}

		tasks["page"] = func(ctx context.Context) error {
			return s.Pages.EnqueuePage(ctx, job)
		}
	}

	if len(tasks) == 0 {
		return nil
	}

	allOk, failures := runall.Run(ctx, tasks)
	if !allOk {
		for name, err := range failures {
			logging.Logger.Error("Follow-up task failed",
				zap.String("task", name),
				zap.String("channel", record.Channel),
				zap.String("object_key", outcome.Canonical.ObjectKey),
				zap.String("error", err.Error()),
			)
		}

		return fmt.Errorf("%w: %d of %d tasks failed",
			ErrFollowupFailed, len(failures), len(tasks))
	}

	return nil
}

func (s *Service) handleRemoved(ctx context.Context, event *ObjectEvent) error {
	deleted, err := s.Store.DeleteByObjectKey(ctx, event.ObjectKey)
	if err != nil {
		return err
	}

	if !deleted {
		// Normal when duplicate resolution already removed the record.
		logging.Logger.Info("Remove event matched no record",
			zap.String("object_key", event.ObjectKey),
		)
	}

	return nil
}
