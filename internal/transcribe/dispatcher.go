// Package transcribe submits canonical recordings to the speech-to-text
// service and consumes its results. Submission is asynchronous: the service
// pulls the audio through a presigned link, runs the job under a name of our
// choosing, and posts the result back onto the jobs queue.
package transcribe

import (
	"bytes"
	"context"
	"mime/multipart"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	"github.com/avast/retry-go"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Job tag keys. Tags ride along with the job and come back verbatim on the
// result, so the consumer can route without any local submission state.
const (
	TagChannel      = "Channel"
	TagObjectKey    = "ObjectKey"
	TagPageEligible = "PageEligible"
	TagCostCenter   = "CostCenter"
)

// Linker produces the download link the speech-to-text service pulls the
// audio from.
type Linker interface {
	PresignedGetURL(ctx context.Context, objectKey string) (string, error)
}

type Dispatcher struct {
	Client         *openai.Client
	Links          Linker
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewDispatcher(links Linker) *Dispatcher {
	opts := []option.RequestOption{
		option.WithBaseURL(config.Conf.STTBaseUrl),
		option.WithRequestTimeout(time.Duration(config.Conf.STTTimeout) * time.Second),
	}

	client := openai.NewClient(opts...)

	return &Dispatcher{
		Client:         &client,
		Links:          links,
		CircuitBreaker: newSTTCircuitBreaker(),
	}
}

func newSTTCircuitBreaker() *gobreaker.CircuitBreaker[any] {
	settings := gobreaker.Settings{
		Name:     "STTClient",
		Interval: time.Duration(config.Conf.STTIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.STTConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Info("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.STTService)
			}
		},
	}

	return gobreaker.NewCircuitBreaker[any](settings)
}

// Submit kicks off a transcription job for a canonical recording and returns
// once the service has accepted it. The result arrives later on the jobs
// queue; the response body here is only an acknowledgment.
func (d *Dispatcher) Submit(ctx context.Context, record *call.CallRecord, pageEligible bool) error {
	jobName := BuildJobName(record.Channel, time.Now())

	fileURL, err := d.Links.PresignedGetURL(ctx, record.ObjectKey)
	if err != nil {
		return err
	}

	tags := map[string]string{
		TagChannel:      record.Channel,
		TagObjectKey:    record.ObjectKey,
		TagPageEligible: flag(pageEligible),
		TagCostCenter:   config.Conf.STTCostCenter,
	}

	logging.Logger.Info("Submitting transcription job",
		zap.String("job_name", jobName),
		zap.String("object_key", record.ObjectKey),
		zap.Bool("page_eligible", pageEligible),
	)

	_, err = d.CircuitBreaker.Execute(func() (any, error) {
		return nil, d.doSubmit(ctx, jobName, fileURL, tags)
	})

	return err
}

func (d *Dispatcher) doSubmit(
	ctx context.Context,
	jobName, fileURL string,
	tags map[string]string,
) error {
	if ctx.Err() != nil {
		logging.Logger.Warn("[doSubmit] Context already canceled before starting request",
			zap.String("job_name", jobName),
			zap.Error(ctx.Err()),
		)

		return ctx.Err()
	}

	err := retry.Do(
		func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			body, contentType, err := createSubmitBody(fileURL, tags)
			if err != nil {
				return err
			}

			opts := []option.RequestOption{
				option.WithHeader("x-request-id", jobName),
				option.WithRequestBody(contentType, body),
			}

			_, err = d.Client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{}, opts...)
			if err != nil {
				logging.Logger.Error("Transcription submit failed",
					zap.String("job_name", jobName),
					zap.String("error", err.Error()),
				)

				return err
			}

			return nil
		},
		retry.Attempts(config.Conf.STTRetryMaxAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(time.Duration(config.Conf.STTRetryMinBackoff)*time.Second),
		retry.MaxDelay(time.Duration(config.Conf.STTRetryMaxBackoff)*time.Second),
	)
	if err != nil {
		logging.Logger.Error("Transcription submit failed after all retry attempts",
			zap.String("job_name", jobName),
			zap.String("error", err.Error()),
		)

		return err
	}

	logging.Logger.Info("Transcription job accepted",
		zap.String("job_name", jobName),
	)

	return nil
}

func createSubmitBody(fileURL string, tags map[string]string) ([]byte, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	err := writer.WriteField("file_url", fileURL)
	if err != nil {
		return nil, "", err
	}

	err = writer.WriteField("model", config.Conf.STTModel)
	if err != nil {
		return nil, "", err
	}

	for key, value := range tags {
		err = writer.WriteField("tag_"+key, value)
		if err != nil {
			return nil, "", err
		}
	}

	contentType := writer.FormDataContentType()
	_ = writer.Close()

	return body.Bytes(), contentType, nil
}

func flag(v bool) string {
	if v {
		return "y"
	}

	return "n"
}
