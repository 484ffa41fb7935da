package transcribe

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrMalformedJobName = errors.New("malformed transcription job name")

// BuildJobName derives the transcription job identifier from the channel and
// submission time: "{channel}-{epochMillis}". The suffix keeps names unique
// per submission; the prefix survives round-trips through the speech-to-text
// service so the result consumer can recover the channel.
func BuildJobName(channel string, at time.Time) string {
	return fmt.Sprintf("%s-%d", channel, at.UnixMilli())
}

// ParseJobName splits a job name back into channel and submission time.
// Channels may themselves contain dashes, so the split is on the last one.
func ParseJobName(name string) (string, time.Time, error) {
	idx := strings.LastIndexByte(name, '-')
	if idx <= 0 || idx == len(name)-1 {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrMalformedJobName, name)
	}

	millis, err := strconv.ParseInt(name[idx+1:], 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrMalformedJobName, name)
	}

	return name[:idx], time.UnixMilli(millis), nil
}
