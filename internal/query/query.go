// Package query holds the read-side of the scheduler: overlap searches,
// conflict detection and reminder windows. Every function is a pure
// function of its arguments and works on a snapshot slice taken from the
// catalog; results keep the snapshot's order.
package query

import (
	"sort"
	"strings"
	"time"

	"eventsched/internal/model"
)

// SearchByDate returns events whose [start date, end date] contains date.
// Multi-day events that only span the date match as well.
func SearchByDate(events []model.Event, date model.Date) []model.Event {
	return filter(events, func(e model.Event) bool {
		return !model.DateOf(e.Start).After(date) && !model.DateOf(e.End).Before(date)
	})
}

// SearchByDateRange returns events whose calendar-date span overlaps
// [from, to], inclusive on both ends.
func SearchByDateRange(events []model.Event, from, to model.Date) []model.Event {
	return filter(events, func(e model.Event) bool {
		return !model.DateOf(e.Start).After(to) && !model.DateOf(e.End).Before(from)
	})
}

// SearchByTitle is a case-insensitive substring match on the title.
func SearchByTitle(events []model.Event, keyword string) []model.Event {
	needle := strings.ToLower(keyword)
	return filter(events, func(e model.Event) bool {
		return strings.Contains(strings.ToLower(e.Title), needle)
	})
}

// CheckConflicts returns events whose time range strictly overlaps
// [start, end). Ranges that only touch at a boundary do not conflict.
func CheckConflicts(events []model.Event, start, end time.Time) []model.Event {
	return filter(events, func(e model.Event) bool {
		return start.Before(e.End) && end.After(e.Start)
	})
}

// Upcoming returns events starting in (now, now+within].
func Upcoming(events []model.Event, now time.Time, within time.Duration) []model.Event {
	limit := now.Add(within)
	return filter(events, func(e model.Event) bool {
		return e.Start.After(now) && !e.Start.After(limit)
	})
}

// Today returns the events overlapping now's calendar date.
func Today(events []model.Event, now time.Time) []model.Event {
	return SearchByDate(events, model.DateOf(now))
}

// Next returns the earliest event starting strictly after now. Ties keep
// the first one in snapshot order.
func Next(events []model.Event, now time.Time) (model.Event, bool) {
	var (
		next  model.Event
		found bool
	)
	for _, e := range events {
		if !e.Start.After(now) {
			continue
		}
		if !found || e.Start.Before(next.Start) {
			next, found = e, true
		}
	}
	return next, found
}

// SortByStart returns a copy of events ordered by start time, then id.
func SortByStart(events []model.Event) []model.Event {
	out := make([]model.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func filter(events []model.Event, keep func(model.Event) bool) []model.Event {
	out := make([]model.Event, 0)
	for _, e := range events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
