// Package queue defines the job-queue wire format. Every message carries an
// "action" discriminator; Decode turns the raw payload into exactly one typed
// variant at the queue boundary, so handlers dispatch on concrete types
// instead of string-keyed branching.
package queue

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

const (
	ActionPage             = "page"
	ActionTranscribeResult = "transcribe-result"
	ActionTwilioText       = "twilio-text"
	ActionActivateUser     = "activate-user"
	ActionAuthCode         = "auth-code"
	ActionSiteStatus       = "site-status"
)

var ErrUnknownAction = errors.New("unknown queue action")

// Message is the closed set of job-queue payloads.
type Message interface {
	Action() string
}

type PageJob struct {
	Channel         string  `json:"channel"`
	ObjectKey       string  `json:"objectKey"`
	DurationSeconds float64 `json:"durationSeconds"`
	IsTest          bool    `json:"isTest"`
}

func (PageJob) Action() string { return ActionPage }

type TranscribeResult struct {
	JobName       string            `json:"jobName"`
	Tags          map[string]string `json:"tags"`
	TranscriptUri string            `json:"transcriptUri"`
}

func (TranscribeResult) Action() string { return ActionTranscribeResult }

type TwilioText struct {
	ToNumber   string `json:"toNumber"`
	FromNumber string `json:"fromNumber"`
	Body       string `json:"body"`
}

func (TwilioText) Action() string { return ActionTwilioText }

type ActivateUser struct {
	Phone      string `json:"phone"`
	Department string `json:"department"`
}

func (ActivateUser) Action() string { return ActionActivateUser }

type AuthCode struct {
	Phone string `json:"phone"`
}

func (AuthCode) Action() string { return ActionAuthCode }

type SiteStatus struct {
	TowerID string `json:"towerId"`
	Status  string `json:"status"`
	Detail  string `json:"detail"`
}

func (SiteStatus) Action() string { return ActionSiteStatus }

type envelope struct {
	Action string `json:"action"`
}

// Decode parses one queue payload into its typed variant. A missing or
// unrecognized action is a decode error; the dead-letter path deals with it.
func Decode(payload []byte) (Message, error) {
	var env envelope

	err := json.Unmarshal(payload, &env)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue envelope: %w", err)
	}

	switch env.Action {
	case ActionPage:
		var msg PageJob
		return decodeAs(payload, &msg)
	case ActionTranscribeResult:
		var msg TranscribeResult
		return decodeAs(payload, &msg)
	case ActionTwilioText:
		var msg TwilioText
		return decodeAs(payload, &msg)
	case ActionActivateUser:
		var msg ActivateUser
		return decodeAs(payload, &msg)
	case ActionAuthCode:
		var msg AuthCode
		return decodeAs(payload, &msg)
	case ActionSiteStatus:
		var msg SiteStatus
		return decodeAs(payload, &msg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, env.Action)
	}
}

// Encode wraps a typed variant back into its wire form.
func Encode(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	// Splice the action discriminator into the object.
	var fields map[string]any

	err = json.Unmarshal(body, &fields)
	if err != nil {
		return nil, err
	}

	fields["action"] = msg.Action()

	return json.Marshal(fields)
}

func decodeAs[T Message](payload []byte, msg *T) (Message, error) {
	err := json.Unmarshal(payload, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s message: %w", (*msg).Action(), err)
	}

	return *msg, nil
}
