package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeDispatchesOnAction(t *testing.T) {
	payload := []byte(`{"action":"page","channel":"8330","objectKey":"tower-a","durationSeconds":12.5}`)

	msg, err := Decode(payload)
	require.NoError(t, err)

	job, ok := msg.(PageJob)
	require.True(t, ok)
	require.Equal(t, "8330", job.Channel)
	require.Equal(t, "tower-a", job.ObjectKey)
	require.InDelta(t, 12.5, job.DurationSeconds, 0.001)
	require.False(t, job.IsTest)
}

func TestDecodeTranscribeResult(t *testing.T) {
	payload := []byte(`{
		"action": "transcribe-result",
		"jobName": "8330-1724830000123",
		"tags": {"ObjectKey": "tower-a", "PageEligible": "y"},
		"transcriptUri": "https://stt.example/r.json"
	}`)

	msg, err := Decode(payload)
	require.NoError(t, err)

	result, ok := msg.(TranscribeResult)
	require.True(t, ok)
	require.Equal(t, "8330-1724830000123", result.JobName)
	require.Equal(t, "tower-a", result.Tags["ObjectKey"])
}

func TestDecodeUnknownAction(t *testing.T) {
	_, err := Decode([]byte(`{"action":"launch-missiles"}`))
	require.ErrorIs(t, err, ErrUnknownAction)

	_, err = Decode([]byte(`{"channel":"8330"}`))
	require.ErrorIs(t, err, ErrUnknownAction, "missing action is unknown too")
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	require.Error(t, err)
}

func TestEncodeSplicesAction(t *testing.T) {
	payload, err := Encode(PageJob{Channel: "8330", ObjectKey: "tower-a"})
	require.NoError(t, err)

	decoded, err := Decode(payload)
	require.NoError(t, err)

	job, ok := decoded.(PageJob)
	require.True(t, ok)
	require.Equal(t, "8330", job.Channel)
}

func TestEncodeAllVariantsRoundTrip(t *testing.T) {
	variants := []Message{
		PageJob{Channel: "8330", ObjectKey: "k", IsTest: true},
		TranscribeResult{JobName: "8330-1", Tags: map[string]string{"a": "b"}},
		TwilioText{ToNumber: "+15550001", Body: "hi"},
		ActivateUser{Phone: "+15550002", Department: "rescue"},
		AuthCode{Phone: "+15550003"},
		SiteStatus{TowerID: "t1", Status: "down", Detail: "power"},
	}

	for _, variant := range variants {
		payload, err := Encode(variant)
		require.NoError(t, err)

		decoded, err := Decode(payload)
		require.NoError(t, err)
		require.Equal(t, variant.Action(), decoded.Action())
	}
}
