package transcribe

import (
	"context"
	"testing"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/queue"
	"github.com/stretchr/testify/require"
)

type fakeRecordStore struct {
	records     map[string]*call.CallRecord
	transcripts map[string]string
}

func newFakeRecordStore(records ...*call.CallRecord) *fakeRecordStore {
	s := &fakeRecordStore{
		records:     make(map[string]*call.CallRecord),
		transcripts: make(map[string]string),
	}

	for _, record := range records {
		s.records[record.ObjectKey] = record
	}

	return s
}

func (s *fakeRecordStore) GetByObjectKey(_ context.Context, objectKey string) (*call.CallRecord, error) {
	return s.records[objectKey], nil
}

func (s *fakeRecordStore) WindowByInsertedAt(_ context.Context, channel string, from, to int64) ([]call.CallRecord, error) {
	var records []call.CallRecord

	for _, record := range s.records {
		if record.Channel == channel && record.InsertedAt >= from && record.InsertedAt <= to {
			records = append(records, *record)
		}
	}

	return records, nil
}

func (s *fakeRecordStore) UpdateTranscript(_ context.Context, record *call.CallRecord, transcript string) error {
	s.transcripts[record.ObjectKey] = transcript
	record.Transcript = &transcript

	return nil
}

func (s *fakeRecordStore) ClaimPage(_ context.Context, record *call.CallRecord) (bool, error) {
	if record.HasPageSent() {
		return false, nil
	}

	sent := true
	record.PageSent = &sent

	return true, nil
}

type fakeRedirectGetter map[string]string

func (f fakeRedirectGetter) Get(_ context.Context, oldKey string) (string, error) {
	return f[oldKey], nil
}

type fakeTranscriptGetter struct {
	text    string
	fetches int
}

func (f *fakeTranscriptGetter) Fetch(context.Context, string) (string, error) {
	f.fetches++
	return f.text, nil
}

type fakePager struct {
	pages       []queue.PageJob
	transcripts []string
}

func (p *fakePager) SendPage(_ context.Context, job queue.PageJob) error {
	p.pages = append(p.pages, job)
	return nil
}

func (p *fakePager) SendTranscript(_ context.Context, record *call.CallRecord) error {
	p.transcripts = append(p.transcripts, record.ObjectKey)
	return nil
}

func resultMessage(objectKey, pageEligible string) queue.TranscribeResult {
	return queue.TranscribeResult{
		JobName: "8330-1724830000123",
		Tags: map[string]string{
			TagChannel:      "8330",
			TagObjectKey:    objectKey,
			TagPageEligible: pageEligible,
		},
		TranscriptUri: "https://stt.example/results/8330-1724830000123.json",
	}
}

func TestHandleAttachesTranscriptAndPages(t *testing.T) {
	record := &call.CallRecord{Channel: "8330", InsertedAt: 1, ObjectKey: "tower-a"}
	store := newFakeRecordStore(record)
	pager := &fakePager{}

	consumer := NewConsumer(store, fakeRedirectGetter{}, &fakeTranscriptGetter{text: "box 1422"}, pager)

	err := consumer.Handle(context.Background(), resultMessage("tower-a", "y"))
	require.NoError(t, err)

	require.Equal(t, "box 1422", store.transcripts["tower-a"])
	require.Len(t, pager.pages, 1)
	require.Equal(t, "tower-a", pager.pages[0].ObjectKey)
	require.Empty(t, pager.transcripts)
}

func TestHandleFollowsRedirectChain(t *testing.T) {
	canonical := &call.CallRecord{Channel: "8330", InsertedAt: 3, ObjectKey: "tower-c"}
	store := newFakeRecordStore(canonical)
	pager := &fakePager{}
	redirects := fakeRedirectGetter{"tower-a": "tower-b", "tower-b": "tower-c"}

	consumer := NewConsumer(store, redirects, &fakeTranscriptGetter{text: "box 1422"}, pager)

	err := consumer.Handle(context.Background(), resultMessage("tower-a", "n"))
	require.NoError(t, err)

	require.Equal(t, "box 1422", store.transcripts["tower-c"])
	require.Equal(t, []string{"tower-c"}, pager.transcripts)
}

func TestHandleBoundsRedirectCycles(t *testing.T) {
	store := newFakeRecordStore()
	pager := &fakePager{}
	fetcher := &fakeTranscriptGetter{text: "unused"}
	redirects := fakeRedirectGetter{"tower-a": "tower-b", "tower-b": "tower-a"}

	consumer := NewConsumer(store, redirects, fetcher, pager)

	err := consumer.Handle(context.Background(), resultMessage("tower-a", "y"))
	require.NoError(t, err, "dead results are dropped, not retried")

	require.Zero(t, fetcher.fetches)
	require.Empty(t, pager.pages)
	require.Empty(t, pager.transcripts)
}

func TestHandleAlreadyPagedSendsTranscriptOnly(t *testing.T) {
	sent := true
	record := &call.CallRecord{Channel: "8330", InsertedAt: 1, ObjectKey: "tower-a", PageSent: &sent}
	store := newFakeRecordStore(record)
	pager := &fakePager{}

	consumer := NewConsumer(store, fakeRedirectGetter{}, &fakeTranscriptGetter{text: "box 1422"}, pager)

	err := consumer.Handle(context.Background(), resultMessage("tower-a", "y"))
	require.NoError(t, err)

	require.Empty(t, pager.pages)
	require.Equal(t, []string{"tower-a"}, pager.transcripts)
}

func TestHandleTaglessResultRecoversViaJobName(t *testing.T) {
	near := &call.CallRecord{Channel: "8330", InsertedAt: 1724830000000, ObjectKey: "tower-a"}
	far := &call.CallRecord{Channel: "8330", InsertedAt: 1724830045000, ObjectKey: "tower-b"}
	store := newFakeRecordStore(near, far)
	pager := &fakePager{}

	consumer := NewConsumer(store, fakeRedirectGetter{}, &fakeTranscriptGetter{text: "box 1422"}, pager)

	msg := resultMessage("", "")
	msg.Tags = nil

	err := consumer.Handle(context.Background(), msg)
	require.NoError(t, err)

	require.Equal(t, "box 1422", store.transcripts["tower-a"],
		"the record nearest the submission time gets the transcript")
	require.NotContains(t, store.transcripts, "tower-b")
	require.Empty(t, pager.pages, "tagless results are never page-eligible")
	require.Equal(t, []string{"tower-a"}, pager.transcripts)
}

func TestHandleTaglessResultWithoutMatchIsDropped(t *testing.T) {
	store := newFakeRecordStore(&call.CallRecord{Channel: "9001", InsertedAt: 1724830000000, ObjectKey: "other"})
	pager := &fakePager{}
	fetcher := &fakeTranscriptGetter{text: "unused"}

	consumer := NewConsumer(store, fakeRedirectGetter{}, fetcher, pager)

	msg := resultMessage("", "")
	msg.Tags = nil

	err := consumer.Handle(context.Background(), msg)
	require.NoError(t, err, "a transmission that is gone cannot be retried back")

	require.Zero(t, fetcher.fetches)
	require.Empty(t, pager.transcripts)
}

func TestHandleMalformedJobName(t *testing.T) {
	store := newFakeRecordStore()
	pager := &fakePager{}
	fetcher := &fakeTranscriptGetter{}

	consumer := NewConsumer(store, fakeRedirectGetter{}, fetcher, pager)

	msg := resultMessage("tower-a", "y")
	msg.JobName = "garbage"

	err := consumer.Handle(context.Background(), msg)
	require.ErrorIs(t, err, ErrMalformedJobName)
	require.Zero(t, fetcher.fetches)
}
