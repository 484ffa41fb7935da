package oncall

import (
	"context"
	"sort"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	"go.uber.org/zap"
)

type Person struct {
	ID          string
	DisplayName string
}

// Group is one duty group's on-duty members, sorted by display name.
type Group struct {
	Name    string
	Members []Person
}

// Roster is the on-duty picture for one channel at one instant. Groups are
// sorted by name so the same schedule always renders the same text. OnDuty
// indexes every on-duty person id for the per-recipient banner check.
type Roster struct {
	Groups []Group
	OnDuty map[string]bool
}

func (r *Roster) Empty() bool {
	return r == nil || len(r.Groups) == 0
}

type Resolver struct {
	Feed Feed
}

func NewResolver(feed Feed) *Resolver {
	return &Resolver{Feed: feed}
}

// Resolve builds the roster for a channel at the given time. It never fails:
// a down or unparseable feed yields an empty roster and the page goes out
// without on-call decoration.
func (r *Resolver) Resolve(ctx context.Context, channel *call.Channel, at time.Time) *Roster {
	if channel == nil || len(channel.DutyGroups) == 0 {
		return &Roster{OnDuty: map[string]bool{}}
	}

	shifts, err := r.Feed.Shifts(ctx)
	if err != nil {
		logging.Logger.Warn("Shift feed unavailable, paging without on-call roster",
			zap.String("channel", channel.ID),
			zap.String("error", err.Error()),
		)

		return &Roster{OnDuty: map[string]bool{}}
	}

	wanted := make(map[string]bool, len(channel.DutyGroups))
	for _, group := range channel.DutyGroups {
		wanted[group] = true
	}

	members := make(map[string][]Person)
	onDuty := make(map[string]bool)
	seen := make(map[string]bool)

	for _, shift := range shifts {
		if !wanted[shift.Schedule] {
			continue
		}

		if at.Before(shift.Start) || !at.Before(shift.End) {
			continue
		}

		// The same person can hold overlapping shifts on one schedule.
		dupKey := shift.Schedule + "\x00" + shift.PersonID
		if seen[dupKey] {
			continue
		}

		seen[dupKey] = true
		onDuty[shift.PersonID] = true
		members[shift.Schedule] = append(members[shift.Schedule], Person{
			ID:          shift.PersonID,
			DisplayName: shift.DisplayName,
		})
	}

	groups := make([]Group, 0, len(members))

	for name, people := range members {
		sort.Slice(people, func(i, j int) bool {
			return people[i].DisplayName < people[j].DisplayName
		})

		groups = append(groups, Group{Name: name, Members: people})
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Name < groups[j].Name
	})

	return &Roster{Groups: groups, OnDuty: onDuty}
}
