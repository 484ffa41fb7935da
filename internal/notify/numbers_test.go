package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/config"
	"github.com/stretchr/testify/require"
)

type fakeNumberLister struct {
	numbers []PageNumber
	err     error
	calls   int
}

func (f *fakeNumberLister) List(context.Context) ([]PageNumber, error) {
	f.calls++
	return f.numbers, f.err
}

func withDefaultNumber(t *testing.T, number string) {
	t.Helper()

	previous := config.Conf.PageFromNumber
	config.Conf.PageFromNumber = number

	t.Cleanup(func() { config.Conf.PageFromNumber = previous })
}

func TestFromNumberForPreferredGroup(t *testing.T) {
	withDefaultNumber(t, "+15550000")

	lister := &fakeNumberLister{numbers: []PageNumber{
		{Group: "rescue", Number: "+15551111"},
		{Group: "engine", Number: "+15552222"},
	}}
	cache := NewNumberCache(lister, time.Minute)

	preferred := "engine"
	recipient := &Recipient{
		DutyGroups:     []string{"rescue", "engine"},
		PreferredGroup: &preferred,
	}

	require.Equal(t, "+15552222", cache.FromNumberFor(context.Background(), recipient))
}

func TestFromNumberForSoleDutyGroup(t *testing.T) {
	withDefaultNumber(t, "+15550000")

	lister := &fakeNumberLister{numbers: []PageNumber{{Group: "rescue", Number: "+15551111"}}}
	cache := NewNumberCache(lister, time.Minute)

	recipient := &Recipient{DutyGroups: []string{"rescue"}}

	require.Equal(t, "+15551111", cache.FromNumberFor(context.Background(), recipient))
}

func TestFromNumberForAmbiguousGroupsFallsBack(t *testing.T) {
	withDefaultNumber(t, "+15550000")

	lister := &fakeNumberLister{numbers: []PageNumber{{Group: "rescue", Number: "+15551111"}}}
	cache := NewNumberCache(lister, time.Minute)

	recipient := &Recipient{DutyGroups: []string{"rescue", "engine"}}

	require.Equal(t, "+15550000", cache.FromNumberFor(context.Background(), recipient))
	require.Zero(t, lister.calls, "no group to look up, no fetch")
}

func TestFromNumberForUnknownGroupFallsBack(t *testing.T) {
	withDefaultNumber(t, "+15550000")

	lister := &fakeNumberLister{}
	cache := NewNumberCache(lister, time.Minute)

	recipient := &Recipient{DutyGroups: []string{"hazmat"}}

	require.Equal(t, "+15550000", cache.FromNumberFor(context.Background(), recipient))
}

func TestFromNumberForListerFailureFallsBack(t *testing.T) {
	withDefaultNumber(t, "+15550000")

	lister := &fakeNumberLister{err: errors.New("db down")}
	cache := NewNumberCache(lister, time.Minute)

	recipient := &Recipient{DutyGroups: []string{"rescue"}}

	require.Equal(t, "+15550000", cache.FromNumberFor(context.Background(), recipient))
}

func TestNumberCacheRespectsTTL(t *testing.T) {
	withDefaultNumber(t, "+15550000")

	lister := &fakeNumberLister{numbers: []PageNumber{{Group: "rescue", Number: "+15551111"}}}
	cache := NewNumberCache(lister, time.Minute)

	recipient := &Recipient{DutyGroups: []string{"rescue"}}

	cache.FromNumberFor(context.Background(), recipient)
	cache.FromNumberFor(context.Background(), recipient)

	require.Equal(t, 1, lister.calls)
}
