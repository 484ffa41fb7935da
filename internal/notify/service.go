// Package notify owns outbound messaging: audience selection, per-recipient
// body composition, sender-number selection, and delivery through the
// messaging gateway. One logical message is persisted once; per-recipient
// delivery is best-effort.
package notify

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/oncall"
	prometheusRelay "git.mci.dev/mse/sre/phoenix/golang/relay/internal/prometheus"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/queue"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/runall"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type MessageStore interface {
	Create(ctx context.Context, message *Message) error
}

type RecipientSource interface {
	ListActive(ctx context.Context) ([]Recipient, error)
	Activate(ctx context.Context, phone string) (bool, error)
}

type RecordSource interface {
	GetByObjectKey(ctx context.Context, objectKey string) (*call.CallRecord, error)
}

type ChannelSource interface {
	Get(ctx context.Context, id string) (*call.Channel, error)
}

type RosterSource interface {
	Resolve(ctx context.Context, channel *call.Channel, at time.Time) *oncall.Roster
}

type Linker interface {
	PresignedGetURL(ctx context.Context, objectKey string) (string, error)
}

type Service struct {
	Messages   MessageStore
	Recipients RecipientSource
	Records    RecordSource
	Channels   ChannelSource
	Rosters    RosterSource
	Numbers    *NumberCache
	Gateway    Gateway
	Links      Linker
}

func NewService(
	messages MessageStore,
	recipients RecipientSource,
	records RecordSource,
	channels ChannelSource,
	rosters RosterSource,
	numbers *NumberCache,
	gateway Gateway,
	links Linker,
) *Service {
	return &Service{
		Messages:   messages,
		Recipients: recipients,
		Records:    records,
		Channels:   channels,
		Rosters:    rosters,
		Numbers:    numbers,
		Gateway:    gateway,
		Links:      links,
	}
}

// SendPage dispatches the page for a won claim. The page-once decision was
// already made by whoever enqueued the job; failure here is retried by the
// queue without re-claiming.
func (s *Service) SendPage(ctx context.Context, job queue.PageJob) error {
	channel, err := s.Channels.Get(ctx, job.Channel)
	if err != nil {
		return err
	}

	var (
		recipients []Recipient
		link       string
		roster     *oncall.Roster
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		var err error
		recipients, err = s.Recipients.ListActive(groupCtx)

		return err
	})

	group.Go(func() error {
		var err error

		link, err = s.Links.PresignedGetURL(groupCtx, job.ObjectKey)
		if err != nil {
			// A page without an audio link still beats no page.
			logging.Logger.Warn("Paging without recording link",
				zap.String("object_key", job.ObjectKey),
				zap.String("error", err.Error()),
			)

			link = ""
		}

		return nil
	})

	group.Go(func() error {
		roster = s.Rosters.Resolve(groupCtx, channel, time.Now())

		return nil
	})

	err = group.Wait()
	if err != nil {
		return err
	}

	transcript := ""

	record, err := s.Records.GetByObjectKey(ctx, job.ObjectKey)
	if err != nil {
		// A page without the transcript still beats no page.
		logging.Logger.Warn("Paging without transcript lookup",
			zap.String("object_key", job.ObjectKey),
			zap.String("error", err.Error()),
		)
	} else if record != nil {
		transcript = record.TranscriptText()
	}

	content := &Content{
		Kind:         MessageTypePage,
		ChannelLabel: channelLabel(channel, job.Channel),
		At:           time.Now(),
		Transcript:   transcript,
		Roster:       roster,
		RecordingURL: link,
		IsTest:       job.IsTest,
	}

	audience := FilterRecipients(recipients, job.Channel, "", job.IsTest)

	return s.dispatch(ctx, content, audience, job.Channel, job.ObjectKey)
}

// SendTranscript delivers a transcript for a transmission that was already
// paged (or never page-eligible), to recipients who opted into transcripts.
func (s *Service) SendTranscript(ctx context.Context, record *call.CallRecord) error {
	channel, err := s.Channels.Get(ctx, record.Channel)
	if err != nil {
		return err
	}

	recipients, err := s.Recipients.ListActive(ctx)
	if err != nil {
		return err
	}

	audience := FilterRecipients(recipients, record.Channel, "", false)

	wanting := make([]Recipient, 0, len(audience))
	for _, recipient := range audience {
		if recipient.WantsTranscript {
			wanting = append(wanting, recipient)
		}
	}

	if len(wanting) == 0 {
		return nil
	}

	content := &Content{
		Kind:         MessageTypeTranscript,
		ChannelLabel: channelLabel(channel, record.Channel),
		At:           time.Now(),
		Transcript:   record.TranscriptText(),
	}

	return s.dispatch(ctx, content, wanting, record.Channel, record.ObjectKey)
}

// SendText delivers a single ad-hoc text exactly as queued.
func (s *Service) SendText(ctx context.Context, msg queue.TwilioText) error {
	from := msg.FromNumber
	if from == "" {
		from = s.Numbers.FromNumberFor(ctx, &Recipient{})
	}

	message, err := newMessage(MessageTypeText, msg.Body, 1, "", "", false)
	if err != nil {
		return err
	}

	err = s.Messages.Create(ctx, message)
	if err != nil {
		return err
	}

	s.deliver(ctx, message.MessageID, msg.ToNumber, from, msg.Body)
	prometheusRelay.MessagesDispatched.WithLabelValues(MessageTypeText).Inc()

	return nil
}

// ActivateUser flips a pre-provisioned account to active and welcomes it.
func (s *Service) ActivateUser(ctx context.Context, msg queue.ActivateUser) error {
	activated, err := s.Recipients.Activate(ctx, msg.Phone)
	if err != nil {
		return err
	}

	if !activated {
		logging.Logger.Warn("Activation matched no recipient",
			zap.String("phone", msg.Phone),
		)

		return nil
	}

	body := "Your paging account is now active."
	if msg.Department != "" {
		body = fmt.Sprintf("Your paging account for %s is now active.", msg.Department)
	}

	message, err := newMessage(MessageTypeWelcome, body, 1, "", "", false)
	if err != nil {
		return err
	}

	err = s.Messages.Create(ctx, message)
	if err != nil {
		return err
	}

	s.deliver(ctx, message.MessageID, msg.Phone, s.Numbers.FromNumberFor(ctx, &Recipient{}), body)
	prometheusRelay.MessagesDispatched.WithLabelValues(MessageTypeWelcome).Inc()

	return nil
}

// SendAuthCode issues a one-time login code. The code itself is never
// persisted; the message row only records that one was issued.
func (s *Service) SendAuthCode(ctx context.Context, msg queue.AuthCode) error {
	code, err := generateAuthCode()
	if err != nil {
		return err
	}

	message, err := newMessage(MessageTypeAuthCode, "login code issued", 1, "", "", false)
	if err != nil {
		return err
	}

	err = s.Messages.Create(ctx, message)
	if err != nil {
		return err
	}

	body := "Your login code is " + code
	s.deliver(ctx, message.MessageID, msg.Phone, s.Numbers.FromNumberFor(ctx, &Recipient{}), body)
	prometheusRelay.MessagesDispatched.WithLabelValues(MessageTypeAuthCode).Inc()

	return nil
}

// SendSiteStatus announces a tower outage or recovery account-wide.
func (s *Service) SendSiteStatus(ctx context.Context, msg queue.SiteStatus) error {
	recipients, err := s.Recipients.ListActive(ctx)
	if err != nil {
		return err
	}

	body := fmt.Sprintf("Tower %s is %s", msg.TowerID, msg.Status)
	if msg.Detail != "" {
		body += ": " + msg.Detail
	}

	content := &Content{
		Kind:         MessageTypeAnnouncement,
		ChannelLabel: body,
		At:           time.Now(),
	}

	audience := FilterRecipients(recipients, "", "", false)

	return s.dispatch(ctx, content, audience, "", "")
}

// dispatch persists the logical message and fans delivery out to every
// recipient concurrently. Only the persist step can fail the operation;
// individual sends are logged and dropped, re-sending a page to everyone
// because one phone bounced would be worse than one missed text.
func (s *Service) dispatch(
	ctx context.Context,
	content *Content,
	audience []Recipient,
	relatedChannel, relatedObjectKey string,
) error {
	baseBody := ComposeBody(content, &Recipient{WantsTranscript: true})

	message, err := newMessage(
		content.Kind, baseBody, len(audience), relatedChannel, relatedObjectKey, content.IsTest,
	)
	if err != nil {
		return err
	}

	err = s.Messages.Create(ctx, message)
	if err != nil {
		return err
	}

	tasks := make(map[string]runall.Task, len(audience))

	for i := range audience {
		recipient := audience[i]

		tasks[recipient.Phone] = func(ctx context.Context) error {
			body := ComposeBody(content, &recipient)
			from := s.Numbers.FromNumberFor(ctx, &recipient)

			return s.Gateway.Send(ctx, recipient.Phone, from, body)
		}
	}

	_, failures := runall.Run(ctx, tasks)
	for phone, err := range failures {
		logging.Logger.Error("Delivery to recipient failed",
			zap.String("message_id", message.MessageID),
			zap.String("phone", phone),
			zap.String("error", err.Error()),
		)
	}

	prometheusRelay.MessagesDispatched.WithLabelValues(content.Kind).Inc()

	logging.Logger.Info("Message dispatched",
		zap.String("message_id", message.MessageID),
		zap.String("type", content.Kind),
		zap.Int("recipients", len(audience)),
		zap.Int("failed", len(failures)),
	)

	return nil
}

func (s *Service) deliver(ctx context.Context, messageID, to, from, body string) {
	err := s.Gateway.Send(ctx, to, from, body)
	if err != nil {
		logging.Logger.Error("Delivery to recipient failed",
			zap.String("message_id", messageID),
			zap.String("phone", to),
			zap.String("error", err.Error()),
		)
	}
}

func newMessage(
	kind, body string,
	recipientCount int,
	relatedChannel, relatedObjectKey string,
	isTest bool,
) (*Message, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	return &Message{
		MessageID:        id.String(),
		Type:             kind,
		Body:             body,
		RecipientCount:   recipientCount,
		RelatedChannel:   relatedChannel,
		RelatedObjectKey: relatedObjectKey,
		IsTest:           isTest,
	}, nil
}

func channelLabel(channel *call.Channel, fallback string) string {
	if channel == nil || channel.Label == "" {
		return fallback
	}

	return channel.Label
}

func generateAuthCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%06d", n.Int64()), nil
}
