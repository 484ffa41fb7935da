package notify

import (
	"strings"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/oncall"
	"github.com/stretchr/testify/require"
)

var composeAt = time.Date(2026, 8, 20, 15, 4, 5, 0, time.UTC)

func pageContent() *Content {
	return &Content{
		Kind:         MessageTypePage,
		ChannelLabel: "County Fire",
		At:           composeAt,
		Transcript:   "engine 5 respond to box 1422",
		Roster: &oncall.Roster{
			Groups: []oncall.Group{
				{Name: "rescue", Members: []oncall.Person{
					{ID: "p1", DisplayName: "Avery"},
					{ID: "p2", DisplayName: "Casey"},
				}},
			},
			OnDuty: map[string]bool{"p1": true, "p2": true},
		},
		RecordingURL: "https://store.example/clip.wav",
	}
}

func TestComposeBodyFullPage(t *testing.T) {
	recipient := &Recipient{PersonID: "p1", WantsTranscript: true, WantsOnCall: true}

	body := ComposeBody(pageContent(), recipient)
	lines := strings.Split(body, "\n")

	require.Equal(t, "PAGE: County Fire at Aug 20 15:04:05 UTC", lines[0])
	require.Contains(t, lines, "YOU ARE ON CALL")
	require.Contains(t, lines, "Transcript: engine 5 respond to box 1422")
	require.Contains(t, lines, "On call: rescue: Avery, Casey")
	require.Contains(t, lines, "Audio: https://store.example/clip.wav")
}

func TestComposeBodyOffDutyRecipientGetsNoBanner(t *testing.T) {
	recipient := &Recipient{PersonID: "p9", WantsTranscript: true, WantsOnCall: true}

	body := ComposeBody(pageContent(), recipient)

	require.NotContains(t, body, "YOU ARE ON CALL")
	require.Contains(t, body, "On call: rescue: Avery, Casey")
}

func TestComposeBodyHonorsPreferences(t *testing.T) {
	recipient := &Recipient{PersonID: "p1"}

	body := ComposeBody(pageContent(), recipient)

	require.NotContains(t, body, "Transcript:")
	require.NotContains(t, body, "On call:")
	require.NotContains(t, body, "YOU ARE ON CALL")
	require.Contains(t, body, "Audio: https://store.example/clip.wav")
}

func TestComposeBodyTestPrefix(t *testing.T) {
	content := pageContent()
	content.IsTest = true

	body := ComposeBody(content, &Recipient{})

	require.True(t, strings.HasPrefix(body, "TEST PAGE: "))
}

func TestComposeBodyTranscriptKindAlwaysIncludesText(t *testing.T) {
	content := &Content{
		Kind:         MessageTypeTranscript,
		ChannelLabel: "County Fire",
		At:           composeAt,
		Transcript:   "engine 5 respond to box 1422",
	}

	body := ComposeBody(content, &Recipient{WantsTranscript: false})

	require.Contains(t, body, "Transcript: engine 5 respond to box 1422")
}
