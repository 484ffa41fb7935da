package notify

import (
	"context"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/secrets"
	"github.com/sony/gobreaker/v2"
	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// Gateway sends one text message; tests substitute a fake.
type Gateway interface {
	Send(ctx context.Context, to, from, body string) error
}

type TwilioGateway struct {
	Client         *twilio.RestClient
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewTwilioGateway(ctx context.Context, src secrets.Source) (*TwilioGateway, error) {
	creds, err := src.Twilio(ctx)
	if err != nil {
		return nil, err
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: creds.AccountSID,
		Password: creds.AuthToken,
	})

	return &TwilioGateway{
		Client:         client,
		CircuitBreaker: newTwilioCircuitBreaker(),
	}, nil
}

func newTwilioCircuitBreaker() *gobreaker.CircuitBreaker[any] {
	settings := gobreaker.Settings{
		Name:     "twilio",
		Interval: time.Duration(config.Conf.TwilioIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.TwilioConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Warn("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.TwilioService)
			}
		},
	}

	return gobreaker.NewCircuitBreaker[any](settings)
}

func (g *TwilioGateway) Send(_ context.Context, to, from, body string) error {
	params := &api.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(body)

	_, err := g.CircuitBreaker.Execute(func() (any, error) {
		resp, err := g.Client.Api.CreateMessage(params)
		if err != nil {
			logging.Logger.Error("Twilio send failed",
				zap.String("to", to),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		if resp.Sid != nil {
			logging.Logger.Debug("Twilio message accepted",
				zap.String("sid", *resp.Sid),
			)
		}

		return nil, nil
	})

	return err
}
