package recur

import (
	"errors"
	"testing"
	"time"

	"eventsched/internal/model"
)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func anchor(start, end time.Time) model.Event {
	return model.Event{ID: 1, Title: "standup", Start: start, End: end}
}

func TestExpandDailyByCount(t *testing.T) {
	a := anchor(at(2025, 1, 1, 9, 0), at(2025, 1, 1, 9, 30))

	res, err := Expand(a, model.MustParseInterval("1d"), 3, nil, 0)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(res.Occurrences) != 3 {
		t.Fatalf("got %d occurrences, want 3", len(res.Occurrences))
	}
	for k, occ := range res.Occurrences {
		wantStart := at(2025, 1, 1+k, 9, 0)
		if !occ.Start.Equal(wantStart) {
			t.Errorf("occurrence %d start = %v, want %v", k, occ.Start, wantStart)
		}
		if occ.End.Sub(occ.Start) != 30*time.Minute {
			t.Errorf("occurrence %d duration = %v", k, occ.End.Sub(occ.Start))
		}
	}
	if res.Truncated {
		t.Error("unexpected truncation")
	}
}

func TestExpandWeekly(t *testing.T) {
	a := anchor(at(2025, 3, 3, 18, 0), at(2025, 3, 3, 19, 0))

	res, err := Expand(a, model.MustParseInterval("2w"), 3, nil, 0)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []time.Time{at(2025, 3, 3, 18, 0), at(2025, 3, 17, 18, 0), at(2025, 3, 31, 18, 0)}
	if len(res.Occurrences) != len(want) {
		t.Fatalf("got %d occurrences, want %d", len(res.Occurrences), len(want))
	}
	for i, w := range want {
		if !res.Occurrences[i].Start.Equal(w) {
			t.Errorf("occurrence %d start = %v, want %v", i, res.Occurrences[i].Start, w)
		}
	}
}

func TestExpandMonthlyClampsWithoutDrift(t *testing.T) {
	a := anchor(at(2025, 1, 31, 8, 0), at(2025, 1, 31, 9, 0))

	res, err := Expand(a, model.MustParseInterval("1m"), 4, nil, 0)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []time.Time{
		at(2025, 1, 31, 8, 0),
		at(2025, 2, 28, 8, 0),
		at(2025, 3, 31, 8, 0),
		at(2025, 4, 30, 8, 0),
	}
	if len(res.Occurrences) != len(want) {
		t.Fatalf("got %d occurrences, want %d", len(res.Occurrences), len(want))
	}
	for i, w := range want {
		occ := res.Occurrences[i]
		if !occ.Start.Equal(w) {
			t.Errorf("occurrence %d start = %v, want %v", i, occ.Start, w)
		}
		if !occ.End.Equal(w.Add(time.Hour)) {
			t.Errorf("occurrence %d end = %v, want %v", i, occ.End, w.Add(time.Hour))
		}
	}
}

func TestExpandMonthlyLeapYear(t *testing.T) {
	a := anchor(at(2024, 1, 30, 8, 0), at(2024, 1, 30, 9, 0))

	res, err := Expand(a, model.MustParseInterval("1m"), 3, nil, 0)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got := res.Occurrences[1].Start; !got.Equal(at(2024, 2, 29, 8, 0)) {
		t.Errorf("February occurrence = %v, want 2024-02-29 08:00", got)
	}
	if got := res.Occurrences[2].Start; !got.Equal(at(2024, 3, 30, 8, 0)) {
		t.Errorf("March occurrence = %v, want 2024-03-30 08:00", got)
	}
}

func TestExpandMonthlyKeepsSpanWhenClampingCollapses(t *testing.T) {
	// Spans midnight: start on the 30th, end on the 31st.
	a := anchor(at(2025, 1, 30, 22, 0), at(2025, 1, 31, 2, 0))

	res, err := Expand(a, model.MustParseInterval("1m"), 2, nil, 0)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	occ := res.Occurrences[1]
	if !occ.Start.Equal(at(2025, 2, 28, 22, 0)) {
		t.Errorf("start = %v", occ.Start)
	}
	// Clamped end (28 Feb 02:00) would precede the start, so the anchor's
	// four hour span is kept.
	if !occ.End.Equal(at(2025, 3, 1, 2, 0)) {
		t.Errorf("end = %v", occ.End)
	}
}

func TestExpandByEndDateInclusive(t *testing.T) {
	a := anchor(at(2025, 1, 1, 9, 0), at(2025, 1, 1, 10, 0))
	end := model.NewDate(2025, 1, 15)

	res, err := Expand(a, model.MustParseInterval("1w"), 0, &end, 0)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	// 1st, 8th and 15th; the 22nd starts after the end date.
	if len(res.Occurrences) != 3 {
		t.Fatalf("got %d occurrences, want 3", len(res.Occurrences))
	}
	if last := res.Occurrences[2].Start; model.DateOf(last) != end {
		t.Errorf("last occurrence on %s, want %s", model.DateOf(last), end)
	}
}

func TestExpandAnchorAfterEndDate(t *testing.T) {
	a := anchor(at(2025, 2, 1, 9, 0), at(2025, 2, 1, 10, 0))
	end := model.NewDate(2025, 1, 15)

	res, err := Expand(a, model.MustParseInterval("1d"), 0, &end, 0)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(res.Occurrences) != 1 || !res.Occurrences[0].Start.Equal(a.Start) {
		t.Fatalf("got %+v, want only the anchor", res.Occurrences)
	}
}

func TestExpandRejectsBothTerminations(t *testing.T) {
	a := anchor(at(2025, 1, 1, 9, 0), at(2025, 1, 1, 10, 0))
	end := model.NewDate(2025, 1, 15)

	_, err := Expand(a, model.MustParseInterval("1d"), 3, &end, 0)
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestExpandRejectsUnknownUnit(t *testing.T) {
	a := anchor(at(2025, 1, 1, 9, 0), at(2025, 1, 1, 10, 0))

	_, err := Expand(a, model.Interval{Multiplier: 1, Unit: 'y'}, 3, nil, 0)
	if !errors.Is(err, model.ErrParse) {
		t.Fatalf("got %v, want ErrParse", err)
	}
}

func TestExpandCap(t *testing.T) {
	a := anchor(at(2025, 1, 1, 9, 0), at(2025, 1, 1, 10, 0))
	end := model.NewDate(2030, 1, 1)

	res, err := Expand(a, model.MustParseInterval("1d"), 0, &end, 10)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(res.Occurrences) != 10 || !res.Truncated {
		t.Fatalf("got %d occurrences (truncated=%v), want 10 truncated", len(res.Occurrences), res.Truncated)
	}
}

func TestExpandKeepsSubSecondTimes(t *testing.T) {
	start := time.Date(2025, 1, 1, 9, 0, 0, 900_000_000, time.UTC)
	end := time.Date(2025, 1, 1, 9, 0, 1, 100_000_000, time.UTC)

	res, err := Expand(anchor(start, end), model.MustParseInterval("1d"), 3, nil, 0)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(res.Occurrences) != 3 {
		t.Fatalf("got %d occurrences, want 3", len(res.Occurrences))
	}
	for k, occ := range res.Occurrences {
		wantStart := start.AddDate(0, 0, k)
		if !occ.Start.Equal(wantStart) {
			t.Errorf("occurrence %d start = %v, want %v", k, occ.Start, wantStart)
		}
		if d := occ.End.Sub(occ.Start); d != 200*time.Millisecond {
			t.Errorf("occurrence %d duration = %v, want 200ms", k, d)
		}
	}
}
