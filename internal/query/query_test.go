package query

import (
	"testing"
	"time"

	"eventsched/internal/model"
)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func ids(events []model.Event) []int {
	out := make([]int, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

func sameIDs(t *testing.T, got []model.Event, want ...int) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("got ids %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("got ids %v, want %v", g, want)
		}
	}
}

func TestCheckConflictsBoundary(t *testing.T) {
	events := []model.Event{
		{ID: 1, Title: "A", Start: at(2025, 1, 1, 10, 0), End: at(2025, 1, 1, 11, 0)},
	}

	sameIDs(t, CheckConflicts(events, at(2025, 1, 1, 11, 0), at(2025, 1, 1, 12, 0)))
	sameIDs(t, CheckConflicts(events, at(2025, 1, 1, 9, 0), at(2025, 1, 1, 10, 0)))
	sameIDs(t, CheckConflicts(events, at(2025, 1, 1, 10, 30), at(2025, 1, 1, 10, 45)), 1)
	sameIDs(t, CheckConflicts(events, at(2025, 1, 1, 9, 0), at(2025, 1, 1, 12, 0)), 1)
}

func TestSearchByDateMultiDay(t *testing.T) {
	events := []model.Event{
		{ID: 1, Title: "overnight", Start: at(2025, 1, 1, 22, 0), End: at(2025, 1, 2, 2, 0)},
		{ID: 2, Title: "conference", Start: at(2025, 1, 1, 9, 0), End: at(2025, 1, 3, 17, 0)},
		{ID: 3, Title: "lunch", Start: at(2025, 1, 4, 12, 0), End: at(2025, 1, 4, 13, 0)},
	}

	sameIDs(t, SearchByDate(events, model.NewDate(2025, 1, 2)), 1, 2)
	sameIDs(t, SearchByDate(events, model.NewDate(2025, 1, 3)), 2)
	sameIDs(t, SearchByDate(events, model.NewDate(2025, 1, 5)))
}

func TestSearchByDateRange(t *testing.T) {
	events := []model.Event{
		{ID: 1, Start: at(2025, 1, 1, 9, 0), End: at(2025, 1, 1, 10, 0)},
		{ID: 2, Start: at(2025, 1, 5, 9, 0), End: at(2025, 1, 7, 10, 0)},
		{ID: 3, Start: at(2025, 1, 10, 9, 0), End: at(2025, 1, 10, 10, 0)},
	}

	tests := []struct {
		name     string
		from, to model.Date
		want     []int
	}{
		{"inclusive start", model.NewDate(2025, 1, 1), model.NewDate(2025, 1, 1), []int{1}},
		{"touches span end", model.NewDate(2025, 1, 7), model.NewDate(2025, 1, 9), []int{2}},
		{"inside span", model.NewDate(2025, 1, 6), model.NewDate(2025, 1, 6), []int{2}},
		{"everything", model.NewDate(2024, 12, 31), model.NewDate(2025, 1, 31), []int{1, 2, 3}},
		{"gap", model.NewDate(2025, 1, 8), model.NewDate(2025, 1, 9), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sameIDs(t, SearchByDateRange(events, tt.from, tt.to), tt.want...)
		})
	}
}

func TestSearchByTitle(t *testing.T) {
	events := []model.Event{
		{ID: 1, Title: "Team Standup"},
		{ID: 2, Title: "1:1 with Sam"},
		{ID: 3, Title: "standup retro"},
	}
	sameIDs(t, SearchByTitle(events, "STANDUP"), 1, 3)
	sameIDs(t, SearchByTitle(events, "dentist"))
}

func TestEmptySnapshot(t *testing.T) {
	if got := SearchByDate(nil, model.NewDate(2025, 1, 1)); got == nil || len(got) != 0 {
		t.Errorf("SearchByDate(nil) = %#v, want empty slice", got)
	}
	if got := CheckConflicts(nil, at(2025, 1, 1, 0, 0), at(2025, 1, 2, 0, 0)); len(got) != 0 {
		t.Errorf("CheckConflicts(nil) = %v", got)
	}
	if _, ok := Next(nil, time.Now()); ok {
		t.Error("Next(nil) reported an event")
	}
}

func TestUpcomingAndNext(t *testing.T) {
	now := at(2025, 1, 1, 9, 0)
	events := []model.Event{
		{ID: 1, Start: at(2025, 1, 1, 9, 0), End: at(2025, 1, 1, 10, 0)},
		{ID: 2, Start: at(2025, 1, 1, 9, 15), End: at(2025, 1, 1, 10, 0)},
		{ID: 3, Start: at(2025, 1, 1, 9, 5), End: at(2025, 1, 1, 10, 0)},
		{ID: 4, Start: at(2025, 1, 1, 11, 0), End: at(2025, 1, 1, 12, 0)},
	}

	sameIDs(t, Upcoming(events, now, 15*time.Minute), 2, 3)

	next, ok := Next(events, now)
	if !ok || next.ID != 3 {
		t.Fatalf("Next = %+v (%v), want id 3", next, ok)
	}

	sameIDs(t, Today(events, now), 1, 2, 3, 4)
	sameIDs(t, SortByStart(events), 1, 3, 2, 4)
}
