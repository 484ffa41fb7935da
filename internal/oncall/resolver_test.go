package oncall

import (
	"context"
	"errors"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/call"
	"github.com/stretchr/testify/require"
)

type fakeFeed struct {
	shifts []Shift
	err    error
	calls  int
}

func (f *fakeFeed) Shifts(context.Context) ([]Shift, error) {
	f.calls++
	return f.shifts, f.err
}

var rosterAt = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func shift(person, name, schedule string, startOffset, endOffset time.Duration) Shift {
	return Shift{
		PersonID:    person,
		DisplayName: name,
		Schedule:    schedule,
		Start:       rosterAt.Add(startOffset),
		End:         rosterAt.Add(endOffset),
	}
}

func TestResolveGroupsAndSortsDeterministically(t *testing.T) {
	feed := &fakeFeed{shifts: []Shift{
		shift("p3", "Riley", "rescue", -time.Hour, time.Hour),
		shift("p1", "Avery", "rescue", -time.Hour, time.Hour),
		shift("p2", "Casey", "engine", -time.Hour, time.Hour),
		shift("p4", "Drew", "dispatch", -time.Hour, time.Hour),
	}}

	resolver := NewResolver(feed)
	channel := &call.Channel{ID: "8330", DutyGroups: []string{"rescue", "engine"}}

	roster := resolver.Resolve(context.Background(), channel, rosterAt)

	require.Len(t, roster.Groups, 2)
	require.Equal(t, "engine", roster.Groups[0].Name)
	require.Equal(t, "rescue", roster.Groups[1].Name)
	require.Equal(t, []Person{{ID: "p1", DisplayName: "Avery"}, {ID: "p3", DisplayName: "Riley"}},
		roster.Groups[1].Members)

	require.True(t, roster.OnDuty["p1"])
	require.True(t, roster.OnDuty["p2"])
	require.False(t, roster.OnDuty["p4"], "dispatch is not one of the channel's duty groups")
}

func TestResolveExcludesOutOfWindowShifts(t *testing.T) {
	feed := &fakeFeed{shifts: []Shift{
		shift("p1", "Avery", "rescue", -2*time.Hour, -time.Hour),
		shift("p2", "Casey", "rescue", time.Hour, 2*time.Hour),
		shift("p3", "Riley", "rescue", -time.Hour, 0),
	}}

	resolver := NewResolver(feed)
	channel := &call.Channel{ID: "8330", DutyGroups: []string{"rescue"}}

	roster := resolver.Resolve(context.Background(), channel, rosterAt)

	require.True(t, roster.Empty(), "shift end is exclusive")
}

func TestResolveFeedFailureDegradesToEmptyRoster(t *testing.T) {
	feed := &fakeFeed{err: errors.New("feed down")}
	resolver := NewResolver(feed)
	channel := &call.Channel{ID: "8330", DutyGroups: []string{"rescue"}}

	roster := resolver.Resolve(context.Background(), channel, rosterAt)

	require.NotNil(t, roster)
	require.True(t, roster.Empty())
}

func TestResolveNoDutyGroupsSkipsFeed(t *testing.T) {
	feed := &fakeFeed{}
	resolver := NewResolver(feed)

	roster := resolver.Resolve(context.Background(), &call.Channel{ID: "8330"}, rosterAt)

	require.True(t, roster.Empty())
	require.Zero(t, feed.calls)
}

func TestCacheServesSnapshotWithinTTL(t *testing.T) {
	feed := &fakeFeed{shifts: []Shift{shift("p1", "Avery", "rescue", -time.Hour, time.Hour)}}
	cache := NewCache(feed, time.Minute)

	_, err := cache.Shifts(context.Background())
	require.NoError(t, err)

	_, err = cache.Shifts(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, feed.calls)
}

func TestCacheServesStaleSnapshotWhenFeedFails(t *testing.T) {
	feed := &fakeFeed{shifts: []Shift{shift("p1", "Avery", "rescue", -time.Hour, time.Hour)}}
	cache := NewCache(feed, -time.Second)

	first, err := cache.Shifts(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	feed.err = errors.New("feed down")

	second, err := cache.Shifts(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
}
