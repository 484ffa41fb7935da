package transcribe

import (
	"context"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	prometheusRelay "git.mci.dev/mse/sre/phoenix/golang/relay/internal/prometheus"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/queue"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/redirect"
	"go.uber.org/zap"
)

// RecordStore is the slice of the call repository the result consumer needs.
type RecordStore interface {
	GetByObjectKey(ctx context.Context, objectKey string) (*call.CallRecord, error)
	WindowByInsertedAt(ctx context.Context, channel string, from, to int64) ([]call.CallRecord, error)
	UpdateTranscript(ctx context.Context, record *call.CallRecord, transcript string) error
	ClaimPage(ctx context.Context, record *call.CallRecord) (bool, error)
}

// RedirectGetter resolves superseded object keys to their replacements.
type RedirectGetter interface {
	Get(ctx context.Context, oldKey string) (string, error)
}

// TranscriptGetter pulls transcript text from a result URI.
type TranscriptGetter interface {
	Fetch(ctx context.Context, uri string) (string, error)
}

// Pager dispatches the outbound message once a transcript is attached.
type Pager interface {
	SendPage(ctx context.Context, job queue.PageJob) error
	SendTranscript(ctx context.Context, record *call.CallRecord) error
}

// Consumer handles transcription results coming back on the jobs queue.
type Consumer struct {
	Store       RecordStore
	Redirects   RedirectGetter
	Transcripts TranscriptGetter
	Pages       Pager
}

func NewConsumer(
	store RecordStore,
	redirects RedirectGetter,
	transcripts TranscriptGetter,
	pages Pager,
) *Consumer {
	return &Consumer{
		Store:       store,
		Redirects:   redirects,
		Transcripts: transcripts,
		Pages:       pages,
	}
}

// Handle processes one transcription result. The referenced record may have
// been deduplicated away since submission; redirects bridge the gap. A result
// whose record is gone entirely is logged and dropped, not retried.
func (c *Consumer) Handle(ctx context.Context, msg queue.TranscribeResult) error {
	channel, submittedAt, err := ParseJobName(msg.JobName)
	if err != nil {
		// A name we did not mint cannot be retried into validity.
		logging.Logger.Error("Dropping transcription result with malformed job name",
			zap.String("job_name", msg.JobName),
		)

		return err
	}

	var record *call.CallRecord

	if objectKey := msg.Tags[TagObjectKey]; objectKey != "" {
		record, err = c.resolveRecord(ctx, objectKey)
	} else {
		// Legacy jobs carry no tags; the job name alone still pins down the
		// channel and submission time.
		record, err = c.recoverByJobName(ctx, channel, submittedAt)
	}

	if err != nil {
		return err
	}

	if record == nil {
		logging.Logger.Info("Transcription result matched no surviving record",
			zap.String("job_name", msg.JobName),
		)

		return nil
	}

	transcript, err := c.Transcripts.Fetch(ctx, msg.TranscriptUri)
	if err != nil {
		return err
	}

	err = c.Store.UpdateTranscript(ctx, record, transcript)
	if err != nil {
		return err
	}

	pageEligible := msg.Tags[TagPageEligible] == "y"
	if pageEligible {
		prometheusRelay.PageToTranscriptLatency.Observe(time.Since(submittedAt).Seconds())
	}

	return c.dispatch(ctx, record, pageEligible)
}

// resolveRecord follows the redirect chain from the submitted key to whatever
// record survived deduplication. Chains are bounded; a cycle or an expired
// redirect resolves to no record.
func (c *Consumer) resolveRecord(ctx context.Context, objectKey string) (*call.CallRecord, error) {
	key := objectKey

	for hop := 0; hop <= redirect.MaxHops; hop++ {
		record, err := c.Store.GetByObjectKey(ctx, key)
		if err != nil {
			return nil, err
		}

		if record != nil {
			return record, nil
		}

		next, err := c.Redirects.Get(ctx, key)
		if err != nil {
			return nil, err
		}

		if next == "" {
			return nil, nil
		}

		key = next
	}

	logging.Logger.Warn("Redirect chain exhausted without a surviving record",
		zap.String("object_key", objectKey),
	)

	return nil, nil
}

// recoveryWindow bounds the inserted_at search around the submission time
// when a result carries no object key. Submission follows insertion within
// seconds; duplicates of the same transmission land inside the same window.
const recoveryWindow = time.Minute

// recoverByJobName finds the record a tagless result belongs to from the
// channel and submission time encoded in the job name. The surviving record
// on the channel closest to the submission time wins; no candidate means the
// transmission is gone and the result is dropped.
func (c *Consumer) recoverByJobName(
	ctx context.Context,
	channel string,
	submittedAt time.Time,
) (*call.CallRecord, error) {
	anchor := submittedAt.UnixMilli()
	window := recoveryWindow.Milliseconds()

	candidates, err := c.Store.WindowByInsertedAt(ctx, channel, anchor-window, anchor+window)
	if err != nil {
		return nil, err
	}

	var closest *call.CallRecord

	for i := range candidates {
		candidate := &candidates[i]

		if closest == nil || distance(candidate.InsertedAt, anchor) < distance(closest.InsertedAt, anchor) {
			closest = candidate
		}
	}

	return closest, nil
}

func distance(a, b int64) int64 {
	if a > b {
		return a - b
	}

	return b - a
}

// dispatch sends the page if one is still owed, otherwise a transcript-only
// message. The conditional claim keeps this race-free against the ingest-time
// page path.
func (c *Consumer) dispatch(ctx context.Context, record *call.CallRecord, pageEligible bool) error {
	if pageEligible && !record.HasPageSent() {
		claimed, err := c.Store.ClaimPage(ctx, record)
		if err != nil {
			return err
		}

		if claimed {
			return c.Pages.SendPage(ctx, queue.PageJob{
				Channel:         record.Channel,
				ObjectKey:       record.ObjectKey,
				DurationSeconds: record.DurationSeconds,
			})
		}
	}

	return c.Pages.SendTranscript(ctx, record)
}
