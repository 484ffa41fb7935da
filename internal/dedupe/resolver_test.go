package dedupe

import (
	"context"
	"errors"
	"sync"
	"testing"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/call"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu          sync.Mutex
	records     map[string]*call.CallRecord
	windowCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*call.CallRecord)}
}

func (s *fakeStore) insert(record call.CallRecord) *call.CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := record
	s.records[record.ObjectKey] = &stored

	return &stored
}

func (s *fakeStore) WindowByStart(_ context.Context, channel string, from, to float64) ([]call.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.windowCalls++

	var out []call.CallRecord

	for _, record := range s.records {
		if record.Channel == channel && record.StartTime >= from && record.StartTime <= to {
			out = append(out, *record)
		}
	}

	return out, nil
}

func (s *fakeStore) Delete(_ context.Context, record *call.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, record.ObjectKey)

	return nil
}

func (s *fakeStore) UpdateTranscript(_ context.Context, record *call.CallRecord, transcript string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.records[record.ObjectKey]; ok {
		stored.Transcript = &transcript
	}

	record.Transcript = &transcript

	return nil
}

func (s *fakeStore) ClaimPage(_ context.Context, record *call.CallRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.records[record.ObjectKey]
	if !ok || (stored.PageSent != nil && *stored.PageSent) {
		return false, nil
	}

	sent := true
	stored.PageSent = &sent
	record.PageSent = &sent

	return true, nil
}

func (s *fakeStore) MarkPageSent(_ context.Context, record *call.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sent := true
	if stored, ok := s.records[record.ObjectKey]; ok {
		stored.PageSent = &sent
	}

	record.PageSent = &sent

	return nil
}

type fakeBlobs struct {
	mu      sync.Mutex
	removed []string
	err     error
}

func (b *fakeBlobs) Remove(_ context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return b.err
	}

	b.removed = append(b.removed, objectKey)

	return nil
}

type fakeRedirects struct {
	mu      sync.Mutex
	entries map[string]string
}

func (r *fakeRedirects) Put(_ context.Context, oldKey, newKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries == nil {
		r.entries = make(map[string]string)
	}

	r.entries[oldKey] = newKey

	return nil
}

func newTestResolver(store *fakeStore, blobs *fakeBlobs, redirects *fakeRedirects) *Resolver {
	return NewResolver(store, blobs, redirects, 60, 1)
}

func multiReceiverChannel() *call.Channel {
	return &call.Channel{
		ID:            "8330",
		MultiReceiver: true,
		PageOnTone:    true,
		Transcribe:    true,
	}
}

func testRecord(objectKey string, insertedAt int64, start, end float64) call.CallRecord {
	return call.CallRecord{
		Channel:         "8330",
		InsertedAt:      insertedAt,
		ObjectKey:       objectKey,
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: end - start,
		PageTone:        true,
	}
}

// arrive simulates one ingest: insert, then resolve.
func arrive(
	t *testing.T,
	resolver *Resolver,
	store *fakeStore,
	channel *call.Channel,
	record call.CallRecord,
) *Outcome {
	t.Helper()

	stored := store.insert(record)

	outcome, err := resolver.Resolve(context.Background(), stored, channel)
	require.NoError(t, err)

	return outcome
}

func TestResolveKeepsLongestRegardlessOfArrivalOrder(t *testing.T) {
	base := []call.CallRecord{
		testRecord("tower-a", 0, 100, 110),
		testRecord("tower-b", 0, 100.5, 109),
		testRecord("tower-c", 0, 100, 112),
	}

	permutations := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}

	for _, order := range permutations {
		store := newFakeStore()
		resolver := newTestResolver(store, &fakeBlobs{}, &fakeRedirects{})
		channel := multiReceiverChannel()

		pages := 0

		for i, idx := range order {
			record := base[idx]
			record.InsertedAt = int64(i + 1)

			outcome := arrive(t, resolver, store, channel, record)
			if outcome.NeedPage {
				pages++
			}
		}

		require.Len(t, store.records, 1, "order %v", order)

		for _, survivor := range store.records {
			require.Equal(t, "tower-c", survivor.ObjectKey, "order %v", order)
			require.InDelta(t, 12, survivor.DurationSeconds, 0.001)
		}

		require.Equal(t, 1, pages, "exactly one page per transmission, order %v", order)
	}
}

func TestResolveEqualDurationLatestInsertWins(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store, &fakeBlobs{}, &fakeRedirects{})
	channel := multiReceiverChannel()

	arrive(t, resolver, store, channel, testRecord("tower-a", 1, 100, 110))
	arrive(t, resolver, store, channel, testRecord("tower-b", 2, 100, 110))

	require.Len(t, store.records, 1)
	_, ok := store.records["tower-b"]
	require.True(t, ok, "most recently inserted record should win the tie")
}

func TestResolveSupersededArrivalStopsPipeline(t *testing.T) {
	store := newFakeStore()
	redirects := &fakeRedirects{}
	resolver := newTestResolver(store, &fakeBlobs{}, redirects)
	channel := multiReceiverChannel()

	first := arrive(t, resolver, store, channel, testRecord("tower-long", 1, 100, 112))
	require.True(t, first.Kept)
	require.True(t, first.NeedPage)

	second := arrive(t, resolver, store, channel, testRecord("tower-short", 2, 100, 108))
	require.False(t, second.Kept)
	require.False(t, second.NeedPage)
	require.False(t, second.NeedTranscription)
	require.Equal(t, "tower-long", second.Canonical.ObjectKey)

	require.Equal(t, "tower-long", redirects.entries["tower-short"])
	_, stillThere := store.records["tower-short"]
	require.False(t, stillThere)
}

func TestResolvePropagatesLongestLoserTranscript(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store, &fakeBlobs{}, &fakeRedirects{})
	channel := multiReceiverChannel()

	short := testRecord("tower-a", 1, 100, 109)
	shortText := "engine 5"
	short.Transcript = &shortText
	store.insert(short)

	long := testRecord("tower-b", 2, 100, 110)
	longText := "engine 5 respond to box 1422"
	long.Transcript = &longText
	store.insert(long)

	outcome := arrive(t, resolver, store, channel, testRecord("tower-c", 3, 100, 112))

	require.True(t, outcome.Kept)
	require.Equal(t, longText, outcome.Canonical.TranscriptText())
	require.False(t, outcome.NeedTranscription, "inherited transcript should suppress resubmission")
}

func TestResolveInheritsPageFromLoser(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store, &fakeBlobs{}, &fakeRedirects{})
	channel := multiReceiverChannel()

	paged := testRecord("tower-a", 1, 100, 110)
	sent := true
	paged.PageSent = &sent
	store.insert(paged)

	outcome := arrive(t, resolver, store, channel, testRecord("tower-b", 2, 100, 112))

	require.True(t, outcome.Kept)
	require.False(t, outcome.NeedPage, "inherited page must not trigger a second one")
	require.True(t, outcome.Canonical.HasPageSent())
}

func TestResolveSingleReceiverSkipsWindowQuery(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store, &fakeBlobs{}, &fakeRedirects{})
	channel := &call.Channel{ID: "9001", MultiReceiver: false, PageOnTone: true, Transcribe: true}

	record := testRecord("tower-solo", 1, 100, 110)
	record.Channel = "9001"

	outcome := arrive(t, resolver, store, channel, record)

	require.True(t, outcome.Kept)
	require.True(t, outcome.NeedPage)
	require.True(t, outcome.NeedTranscription)
	require.Zero(t, store.windowCalls)
}

func TestResolveUnknownChannelNeverPages(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store, &fakeBlobs{}, &fakeRedirects{})

	outcome := arrive(t, resolver, store, nil, testRecord("tower-a", 1, 100, 110))

	require.True(t, outcome.Kept)
	require.False(t, outcome.NeedPage)
	require.False(t, outcome.NeedTranscription)
}

func TestResolveDisposalFailureFailsEvent(t *testing.T) {
	store := newFakeStore()
	blobs := &fakeBlobs{err: errors.New("storage offline")}
	resolver := newTestResolver(store, blobs, &fakeRedirects{})
	channel := multiReceiverChannel()

	store.insert(testRecord("tower-a", 1, 100, 110))
	stored := store.insert(testRecord("tower-b", 2, 100, 112))

	_, err := resolver.Resolve(context.Background(), stored, channel)
	require.ErrorIs(t, err, ErrLoserDisposal)
}

func TestOverlaps(t *testing.T) {
	anchor := testRecord("a", 1, 100, 110)

	inside := testRecord("b", 2, 105, 108)
	require.True(t, Overlaps(&anchor, &inside, 1))

	covering := testRecord("c", 3, 95, 115)
	require.True(t, Overlaps(&anchor, &covering, 1))

	adjacent := testRecord("d", 4, 110.5, 114)
	require.True(t, Overlaps(&anchor, &adjacent, 1), "within the pad counts as overlap")

	disjoint := testRecord("e", 5, 130, 140)
	require.False(t, Overlaps(&anchor, &disjoint, 1))
}
