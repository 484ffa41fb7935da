// Package secrets provides the shared external credentials behind a
// lazily-initialized accessor. Components receive a Source at construction
// time so tests substitute a fake instead of relying on process-global state.
package secrets

import (
	"context"
	"sync"

	"github.com/spf13/viper"
)

type TwilioCredentials struct {
	AccountSID string
	AuthToken  string
}

type Source interface {
	Twilio(ctx context.Context) (TwilioCredentials, error)
	ShiftFeedAPIKey(ctx context.Context) (string, error)
}

// EnvSource resolves secrets from the environment exactly once, on first use.
type EnvSource struct {
	once sync.Once

	twilio      TwilioCredentials
	shiftAPIKey string
}

func NewEnvSource() *EnvSource {
	return &EnvSource{}
}

func (s *EnvSource) load() {
	s.twilio = TwilioCredentials{
		AccountSID: viper.GetString("TWILIO_ACCOUNT_SID"),
		AuthToken:  viper.GetString("TWILIO_AUTH_TOKEN"),
	}
	s.shiftAPIKey = viper.GetString("SHIFT_FEED_API_KEY")
}

func (s *EnvSource) Twilio(_ context.Context) (TwilioCredentials, error) {
	s.once.Do(s.load)

	return s.twilio, nil
}

func (s *EnvSource) ShiftFeedAPIKey(_ context.Context) (string, error) {
	s.once.Do(s.load)

	return s.shiftAPIKey, nil
}

// StaticSource is the test double: fixed values, no environment access.
type StaticSource struct {
	TwilioCreds TwilioCredentials
	ShiftAPIKey string
}

func (s *StaticSource) Twilio(_ context.Context) (TwilioCredentials, error) {
	return s.TwilioCreds, nil
}

func (s *StaticSource) ShiftFeedAPIKey(_ context.Context) (string, error) {
	return s.ShiftAPIKey, nil
}
