package ingest

import (
	"context"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/dedupe"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/queue"
	"github.com/stretchr/testify/require"
)

func TestEventRecordParsesMetadata(t *testing.T) {
	event := &ObjectEvent{
		EventType: EventTypeCreated,
		ObjectKey: "2026/08/20/8330-1.wav",
		Metadata: EventMetadata{
			StartTime:       "1724830000.25",
			EndTime:         "1724830012.75",
			DurationSeconds: "12.5",
			TowerID:         "tower-7",
			Channel:         "8330",
			Emergency:       "0",
			ToneFlag:        "true",
		},
	}

	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	record := event.record(now)

	require.Equal(t, "8330", record.Channel)
	require.Equal(t, now.UnixMilli(), record.InsertedAt)
	require.InDelta(t, 1724830000.25, record.StartTime, 0.001)
	require.InDelta(t, 12.5, record.DurationSeconds, 0.001)
	require.Equal(t, "tower-7", record.TowerID)
	require.False(t, record.Emergency)
	require.True(t, record.PageTone)
}

func TestEventRecordToleratesBadMetadata(t *testing.T) {
	event := &ObjectEvent{
		ObjectKey: "clip.wav",
		Metadata: EventMetadata{
			StartTime:       "not-a-number",
			DurationSeconds: "",
			Emergency:       "maybe",
			Channel:         "8330",
		},
	}

	record := event.record(time.Now())

	require.Zero(t, record.StartTime)
	require.Zero(t, record.DurationSeconds)
	require.False(t, record.Emergency)
	require.Equal(t, "8330", record.Channel)
}

func TestUploadLatency(t *testing.T) {
	event := &ObjectEvent{
		EventTime: "2026-08-20T12:00:30Z",
		Metadata:  EventMetadata{EndTime: "1787227200"}, // 2026-08-20T12:00:00Z
	}

	require.InDelta(t, 30, event.uploadLatencySeconds(), 0.001)

	noEventTime := &ObjectEvent{Metadata: EventMetadata{EndTime: "1787227200"}}
	require.Negative(t, noEventTime.uploadLatencySeconds())
}

type stubStore struct {
	inserted []call.CallRecord
	deleted  []string
}

func (s *stubStore) Insert(_ context.Context, record *call.CallRecord) error {
	s.inserted = append(s.inserted, *record)
	return nil
}

func (s *stubStore) DeleteByObjectKey(_ context.Context, objectKey string) (bool, error) {
	s.deleted = append(s.deleted, objectKey)
	return false, nil
}

type stubChannels struct {
	channel *call.Channel
}

func (s *stubChannels) Get(context.Context, string) (*call.Channel, error) {
	return s.channel, nil
}

type stubSubmitter struct {
	submitted []string
}

func (s *stubSubmitter) Submit(_ context.Context, record *call.CallRecord, _ bool) error {
	s.submitted = append(s.submitted, record.ObjectKey)
	return nil
}

type stubEnqueuer struct {
	jobs []queue.PageJob
}

func (s *stubEnqueuer) EnqueuePage(_ context.Context, job queue.PageJob) error {
	s.jobs = append(s.jobs, job)
	return nil
}

type nopResolverStore struct{}

func (nopResolverStore) WindowByStart(context.Context, string, float64, float64) ([]call.CallRecord, error) {
	return nil, nil
}
func (nopResolverStore) Delete(context.Context, *call.CallRecord) error { return nil }
func (nopResolverStore) UpdateTranscript(context.Context, *call.CallRecord, string) error {
	return nil
}
func (nopResolverStore) ClaimPage(context.Context, *call.CallRecord) (bool, error) {
	return true, nil
}
func (nopResolverStore) MarkPageSent(context.Context, *call.CallRecord) error { return nil }

type nopBlobs struct{}

func (nopBlobs) Remove(context.Context, string) error { return nil }

type nopRedirects struct{}

func (nopRedirects) Put(context.Context, string, string) error { return nil }

func newTestService(store *stubStore, channel *call.Channel, submitter *stubSubmitter, enqueuer *stubEnqueuer) *Service {
	resolver := dedupe.NewResolver(nopResolverStore{}, nopBlobs{}, nopRedirects{}, 60, 1)

	return NewService(store, &stubChannels{channel: channel}, resolver, submitter, enqueuer)
}

func TestHandleEventCreatedKicksOffPageAndTranscription(t *testing.T) {
	store := &stubStore{}
	submitter := &stubSubmitter{}
	enqueuer := &stubEnqueuer{}
	channel := &call.Channel{ID: "8330", PageOnTone: true, Transcribe: true}

	service := newTestService(store, channel, submitter, enqueuer)

	payload := []byte(`{
		"eventType": "created",
		"objectKey": "clip.wav",
		"metadata": {"channel": "8330", "startTime": "100", "endTime": "112", "durationSeconds": "12", "toneFlag": "1"}
	}`)

	err := service.HandleEvent(context.Background(), payload)
	require.NoError(t, err)

	require.Len(t, store.inserted, 1)
	require.Equal(t, []string{"clip.wav"}, submitter.submitted)
	require.Len(t, enqueuer.jobs, 1)
	require.Equal(t, "8330", enqueuer.jobs[0].Channel)
}

func TestHandleEventMissingChannelIsSurfaced(t *testing.T) {
	store := &stubStore{}
	service := newTestService(store, nil, &stubSubmitter{}, &stubEnqueuer{})

	payload := []byte(`{"eventType": "created", "objectKey": "clip.wav", "metadata": {}}`)

	err := service.HandleEvent(context.Background(), payload)
	require.ErrorIs(t, err, ErrMissingChannel,
		"malformed events go to the dead-letter table, never silently away")
	require.Empty(t, store.inserted)
}

func TestHandleEventRemoved(t *testing.T) {
	store := &stubStore{}
	service := newTestService(store, nil, &stubSubmitter{}, &stubEnqueuer{})

	payload := []byte(`{"eventType": "removed", "objectKey": "clip.wav"}`)

	err := service.HandleEvent(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, []string{"clip.wav"}, store.deleted)
}

func TestHandleEventUnknownTypeIsSkipped(t *testing.T) {
	store := &stubStore{}
	service := newTestService(store, nil, &stubSubmitter{}, &stubEnqueuer{})

	err := service.HandleEvent(context.Background(), []byte(`{"eventType": "healthcheck"}`))
	require.NoError(t, err)
	require.Empty(t, store.inserted)
	require.Empty(t, store.deleted)
}

func TestHandleEventMalformedPayload(t *testing.T) {
	service := newTestService(&stubStore{}, nil, &stubSubmitter{}, &stubEnqueuer{})

	err := service.HandleEvent(context.Background(), []byte(`not json`))
	require.Error(t, err)
}
