package transcribe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJobNameRoundTrip(t *testing.T) {
	at := time.UnixMilli(1724830000123)

	name := BuildJobName("8330", at)
	require.Equal(t, "8330-1724830000123", name)

	channel, parsed, err := ParseJobName(name)
	require.NoError(t, err)
	require.Equal(t, "8330", channel)
	require.Equal(t, at.UnixMilli(), parsed.UnixMilli())
}

func TestJobNameChannelWithDashes(t *testing.T) {
	at := time.UnixMilli(1724830000123)

	channel, parsed, err := ParseJobName(BuildJobName("county-fire-2", at))
	require.NoError(t, err)
	require.Equal(t, "county-fire-2", channel)
	require.Equal(t, at.UnixMilli(), parsed.UnixMilli())
}

func TestParseJobNameMalformed(t *testing.T) {
	cases := []string{
		"",
		"8330",
		"-1724830000123",
		"8330-",
		"8330-notmillis",
	}

	for _, name := range cases {
		_, _, err := ParseJobName(name)
		require.ErrorIs(t, err, ErrMalformedJobName, "name %q", name)
	}
}
