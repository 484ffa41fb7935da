package notify

import (
	"testing"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/config"
	"github.com/stretchr/testify/require"
)

func recipientFixture() []Recipient {
	return []Recipient{
		{DisplayName: "Avery", Phone: "+15550001", Channels: []string{"8330"}, Active: true},
		{DisplayName: "Casey", Phone: "+15550002", Channels: []string{"all"}, Active: true},
		{DisplayName: "Drew", Phone: "+15550003", Channels: []string{"9001"}, Active: true},
		{DisplayName: "Inactive", Phone: "+15550004", Channels: []string{"8330"}, Active: false},
		{DisplayName: "Tester", Phone: "+15550005", Channels: []string{"8330"}, Active: true, IsTest: true},
	}
}

func phones(recipients []Recipient) []string {
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		out = append(out, r.Phone)
	}

	return out
}

func TestFilterRecipientsChannelSubscription(t *testing.T) {
	got := FilterRecipients(recipientFixture(), "8330", "", false)

	require.Equal(t, []string{"+15550001", "+15550002"}, phones(got),
		"subscribers and all-channel accounts, no inactive, no test accounts")
}

func TestFilterRecipientsTestPartition(t *testing.T) {
	config.Conf.TestRecipientPhone = "+15559999"

	t.Cleanup(func() { config.Conf.TestRecipientPhone = "" })

	got := FilterRecipients(recipientFixture(), "8330", "", true)

	require.Equal(t, []string{"+15550005", "+15559999"}, phones(got),
		"test pages reach only test accounts plus the designated test phone")
}

func TestFilterRecipientsExcludesSender(t *testing.T) {
	got := FilterRecipients(recipientFixture(), "8330", "+15550001", false)

	require.Equal(t, []string{"+15550002"}, phones(got))
}

func TestFilterRecipientsAccountWide(t *testing.T) {
	got := FilterRecipients(recipientFixture(), "", "", false)

	require.Equal(t, []string{"+15550001", "+15550002", "+15550003"}, phones(got))
}
