package notify

import (
	"fmt"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/oncall"
)

const bodyTimeLayout = "Jan 2 15:04:05 MST"

// Content is everything a message body is built from, independent of who
// receives it.
type Content struct {
	Kind         string
	ChannelLabel string
	At           time.Time
	Transcript   string
	Roster       *oncall.Roster
	RecordingURL string
	IsTest       bool
}

// ComposeBody renders the message text for one recipient. The body varies per
// recipient: the on-call banner appears only for people who are themselves on
// duty, and transcript and roster sections honor the recipient's preferences.
func ComposeBody(content *Content, recipient *Recipient) string {
	lines := make([]string, 0, 6)

	lines = append(lines, headline(content))

	if recipient.WantsOnCall && content.Roster != nil && content.Roster.OnDuty[recipient.PersonID] {
		lines = append(lines, "YOU ARE ON CALL")
	}

	if content.Transcript != "" && wantsTranscript(content, recipient) {
		lines = append(lines, "Transcript: "+content.Transcript)
	}

	if recipient.WantsOnCall && !content.Roster.Empty() {
		lines = append(lines, "On call: "+formatRoster(content.Roster))
	}

	if content.RecordingURL != "" {
		lines = append(lines, "Audio: "+content.RecordingURL)
	}

	return strings.Join(lines, "\n")
}

func headline(content *Content) string {
	head := ""

	switch content.Kind {
	case MessageTypePage:
		head = "PAGE"
	case MessageTypeTranscript:
		head = "TRANSCRIPT"
	case MessageTypeAnnouncement:
		head = "NOTICE"
	default:
		head = strings.ToUpper(content.Kind)
	}

	if content.IsTest {
		head = "TEST " + head
	}

	return fmt.Sprintf("%s: %s at %s", head, content.ChannelLabel, content.At.Format(bodyTimeLayout))
}

func wantsTranscript(content *Content, recipient *Recipient) bool {
	if content.Kind == MessageTypeTranscript {
		return true
	}

	return recipient.WantsTranscript
}

func formatRoster(roster *oncall.Roster) string {
	parts := make([]string, 0, len(roster.Groups))

	for _, group := range roster.Groups {
		names := make([]string, 0, len(group.Members))
		for _, member := range group.Members {
			names = append(names, member.DisplayName)
		}

		parts = append(parts, group.Name+": "+strings.Join(names, ", "))
	}

	return strings.Join(parts, "; ")
}
