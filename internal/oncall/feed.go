// Package oncall resolves who is on duty for a channel at a point in time.
// The roster is decoration on outbound pages: every failure here degrades to
// an empty roster, never to a failed page.
package oncall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/secrets"
	"github.com/avast/retry-go"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var ErrShiftFeedStatus = errors.New("shift feed returned non-OK status")

const maxFeedBytes = 4 << 20

// Shift is one scheduled duty interval. Schedule is the duty-group name the
// channel configuration refers to.
type Shift struct {
	PersonID    string    `json:"personId"`
	DisplayName string    `json:"displayName"`
	Schedule    string    `json:"schedule"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Feed is the upstream scheduling system.
type Feed interface {
	Shifts(ctx context.Context) ([]Shift, error)
}

type HTTPFeed struct {
	Client         *http.Client
	Secrets        secrets.Source
	CircuitBreaker *gobreaker.CircuitBreaker[any]
	BaseURL        string
}

func NewHTTPFeed(src secrets.Source) *HTTPFeed {
	return &HTTPFeed{
		Client: &http.Client{
			Timeout: time.Duration(config.Conf.ShiftFeedTimeout) * time.Second,
		},
		Secrets:        src,
		CircuitBreaker: newShiftFeedCircuitBreaker(),
		BaseURL:        config.Conf.ShiftFeedBaseUrl,
	}
}

func newShiftFeedCircuitBreaker() *gobreaker.CircuitBreaker[any] {
	settings := gobreaker.Settings{
		Name:     "ShiftFeed",
		Interval: time.Duration(config.Conf.ShiftIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.ShiftConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Warn("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.ShiftFeedService)
			}
		},
	}

	return gobreaker.NewCircuitBreaker[any](settings)
}

// Shifts fetches the full current schedule window from the feed.
func (f *HTTPFeed) Shifts(ctx context.Context) ([]Shift, error) {
	result, err := f.CircuitBreaker.Execute(func() (any, error) {
		return f.doFetch(ctx)
	})
	if err != nil {
		return nil, err
	}

	shifts, _ := result.([]Shift)

	return shifts, nil
}

func (f *HTTPFeed) doFetch(ctx context.Context) ([]Shift, error) {
	apiKey, err := f.Secrets.ShiftFeedAPIKey(ctx)
	if err != nil {
		return nil, err
	}

	endpoint, err := url.JoinPath(f.BaseURL, "shifts")
	if err != nil {
		return nil, err
	}

	var shifts []Shift

	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}

			req.Header.Set("Authorization", "Bearer "+apiKey)
			req.Header.Set("Accept", "application/json")

			resp, err := f.Client.Do(req)
			if err != nil {
				logging.Logger.Error("Shift feed request failed",
					zap.String("error", err.Error()),
				)

				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("%w: %d", ErrShiftFeedStatus, resp.StatusCode)
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
			if err != nil {
				return err
			}

			return json.Unmarshal(body, &shifts)
		},
		retry.Attempts(config.Conf.ShiftFeedRetryMaxAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(time.Duration(config.Conf.ShiftFeedRetryMinBackoff)*time.Second),
		retry.MaxDelay(time.Duration(config.Conf.ShiftFeedRetryMaxBackoff)*time.Second),
	)
	if err != nil {
		return nil, err
	}

	return shifts, nil
}
