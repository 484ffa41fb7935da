package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	"github.com/avast/retry-go"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

var ErrTranscriptFetch = errors.New("transcript fetch failed")

const maxTranscriptBytes = 1 << 20

// transcriptDocument is the result payload the speech-to-text service stores
// at the transcript URI.
type transcriptDocument struct {
	Text string `json:"text"`
}

// Fetcher pulls finished transcripts from the URI carried on result messages.
type Fetcher struct {
	Client *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		Client: &http.Client{
			Timeout: time.Duration(config.Conf.STTTimeout) * time.Second,
		},
	}
}

func (f *Fetcher) Fetch(ctx context.Context, uri string) (string, error) {
	var text string

	err := retry.Do(
		func() error {
			fetched, err := f.doFetch(ctx, uri)
			if err != nil {
				return err
			}

			text = fetched

			return nil
		},
		retry.Attempts(config.Conf.STTRetryMaxAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(time.Duration(config.Conf.STTRetryMinBackoff)*time.Second),
		retry.MaxDelay(time.Duration(config.Conf.STTRetryMaxBackoff)*time.Second),
	)
	if err != nil {
		logging.Logger.Error("Transcript fetch failed after all retry attempts",
			zap.String("uri", uri),
			zap.String("error", err.Error()),
		)

		return "", err
	}

	return text, nil
}

func (f *Fetcher) doFetch(ctx context.Context, uri string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", err
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrTranscriptFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTranscriptBytes))
	if err != nil {
		return "", err
	}

	var doc transcriptDocument

	err = json.Unmarshal(body, &doc)
	if err != nil {
		return "", err
	}

	return doc.Text, nil
}
