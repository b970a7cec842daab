package ics

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"eventsched/internal/catalog"
	"eventsched/internal/model"
)

func calendar(lines ...string) string {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR")
	return strings.Join(all, "\r\n") + "\r\n"
}

const sampleCalendar = "" +
	"BEGIN:VEVENT\r\nUID:weekly@test\r\nDTSTAMP:20250101T000000Z\r\nDTSTART:20250106T090000\r\nDTEND:20250106T100000\r\n" +
	"SUMMARY:Weekly sync\r\nRRULE:FREQ=WEEKLY;INTERVAL=2;COUNT=4\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:holiday@test\r\nDTSTAMP:20250101T000000Z\r\nDTSTART;VALUE=DATE:20250110\r\n" +
	"SUMMARY:Holiday\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:lunch@test\r\nDTSTAMP:20250101T000000Z\r\nDTSTART:20250113T120000Z\r\nDTEND:20250113T130000Z\r\n" +
	"SUMMARY:Lunch\r\nRRULE:FREQ=WEEKLY;BYDAY=MO,WE;COUNT=4\r\nEXDATE:20250115T120000Z\r\nEND:VEVENT\r\n"

func sample() string {
	return calendar(strings.TrimSuffix(sampleCalendar, "\r\n"))
}

func TestParseICS(t *testing.T) {
	events, err := ParseICS(strings.NewReader(sample()), time.UTC)
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("parsed %d events, want 3", len(events))
	}

	weekly := events[0]
	if weekly.UID != "weekly@test" || !weekly.Start.Equal(time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("weekly = %+v", weekly)
	}
	if weekly.RawRRule != "FREQ=WEEKLY;INTERVAL=2;COUNT=4" {
		t.Errorf("rrule = %q", weekly.RawRRule)
	}

	holiday := events[1]
	if !holiday.AllDay || holiday.End.Sub(holiday.Start) != 24*time.Hour {
		t.Errorf("holiday = %+v, want a one-day all-day event", holiday)
	}

	if len(events[2].ExDates) != 1 {
		t.Errorf("lunch exdates = %v", events[2].ExDates)
	}
}

func TestPlanNativeAndFlattened(t *testing.T) {
	events, err := ParseICS(strings.NewReader(sample()), time.UTC)
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}
	plan := Plan(events, PlanConfig{})

	var native, flattened, single int
	for _, e := range plan.Entries {
		switch {
		case e.Rule != nil:
			native++
			if e.Rule.Interval.String() != "2w" || e.Rule.Count != 4 || e.Rule.EndDate != nil {
				t.Errorf("native rule = %+v", e.Rule)
			}
		case e.Flattened:
			flattened++
			if e.Start.Equal(time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)) {
				t.Error("EXDATE occurrence was not removed")
			}
		default:
			single++
		}
	}
	// Lunch: Mon 13, Wed 15 (excluded), Mon 20, Wed 22.
	if native != 1 || flattened != 3 || single != 1 {
		t.Errorf("native=%d flattened=%d single=%d, want 1/3/1", native, flattened, single)
	}
	for i := 1; i < len(plan.Entries); i++ {
		if plan.Entries[i].Start.Before(plan.Entries[i-1].Start) {
			t.Fatal("entries not in start order")
		}
	}
}

func TestPlanUntilAndOverrides(t *testing.T) {
	ics := calendar(
		"BEGIN:VEVENT", "UID:daily@test", "DTSTART:20250101T180000Z", "DTEND:20250101T190000Z",
		"SUMMARY:Run", "RRULE:FREQ=DAILY;UNTIL=20250105T170000Z", "END:VEVENT",
		"BEGIN:VEVENT", "UID:moved@test", "DTSTART:20250201T100000Z", "DTEND:20250201T110000Z",
		"SUMMARY:Class", "RRULE:FREQ=DAILY;COUNT=3", "END:VEVENT",
		"BEGIN:VEVENT", "UID:moved@test", "RECURRENCE-ID:20250202T100000Z",
		"DTSTART:20250202T150000Z", "DTEND:20250202T160000Z", "SUMMARY:Class (moved)", "END:VEVENT",
	)
	events, err := ParseICS(strings.NewReader(ics), time.UTC)
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}
	plan := Plan(events, PlanConfig{})
	if len(plan.Entries) != 4 {
		t.Fatalf("entries = %d, want 1 native + 3 flattened", len(plan.Entries))
	}

	run := plan.Entries[0]
	// UNTIL at 17:00 on the 5th precedes the 18:00 start, so the 4th is last.
	if run.Rule == nil || run.Rule.EndDate == nil || *run.Rule.EndDate != model.NewDate(2025, 1, 4) {
		t.Errorf("run rule = %+v", run.Rule)
	}

	moved := plan.Entries[2]
	if moved.Title != "Class (moved)" || moved.Start.Hour() != 15 {
		t.Errorf("override not applied: %+v", moved)
	}
}

func TestPlanCapsUnboundedRules(t *testing.T) {
	ics := calendar(
		"BEGIN:VEVENT", "UID:forever@test", "DTSTART:20250101T080000Z", "DTEND:20250101T083000Z",
		"SUMMARY:Pill", "RRULE:FREQ=DAILY;BYHOUR=8,20", "END:VEVENT",
	)
	events, err := ParseICS(strings.NewReader(ics), time.UTC)
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}

	plan := Plan(events, PlanConfig{Horizon: 10 * 24 * time.Hour})
	if n := len(plan.Entries); n < 19 || n > 21 {
		t.Errorf("horizon-bounded entries = %d, want about 20", n)
	}

	plan = Plan(events, PlanConfig{MaxOccurrencesPerEvent: 5})
	if len(plan.Entries) != 5 || len(plan.TruncatedEvents) != 1 {
		t.Errorf("capped plan = %d entries, truncated %v", len(plan.Entries), plan.TruncatedEvents)
	}
}

type recordingImporter struct {
	singles []string
	series  []model.Interval
	failOn  string
	batches int
}

func (r *recordingImporter) CreateBatch(drafts []catalog.Draft) []catalog.DraftResult {
	r.batches++
	out := make([]catalog.DraftResult, len(drafts))
	for i, d := range drafts {
		switch {
		case d.Title == r.failOn:
			out[i].Err = model.ErrValidation
		case d.Interval != nil:
			r.series = append(r.series, *d.Interval)
			out[i].IDs = make([]int, d.Count)
		default:
			r.singles = append(r.singles, d.Title)
			out[i].IDs = []int{len(r.singles)}
		}
	}
	return out
}

func TestImport(t *testing.T) {
	dst := &recordingImporter{failOn: "Holiday"}

	sum, err := Import(dst, strings.NewReader(sample()), time.UTC, PlanConfig{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	want := Summary{Events: 4 + 3, Series: 1, Flattened: 3, Skipped: 1}
	if sum.Events != want.Events || sum.Series != want.Series || sum.Flattened != want.Flattened || sum.Skipped != want.Skipped {
		t.Errorf("summary = %+v, want %+v", sum, want)
	}
	if len(dst.series) != 1 || dst.series[0].String() != "2w" {
		t.Errorf("series = %v", dst.series)
	}
	if dst.batches != 1 {
		t.Errorf("import used %d batches, want 1", dst.batches)
	}
}

func TestImportReplacesTitleCommas(t *testing.T) {
	dst := &recordingImporter{}
	cal := calendar("BEGIN:VEVENT", "UID:c@test", "DTSTAMP:20250101T000000Z",
		"DTSTART:20250106T120000Z", "DTEND:20250106T130000Z",
		"SUMMARY:Lunch, team", "END:VEVENT")

	if _, err := Import(dst, strings.NewReader(cal), time.UTC, PlanConfig{}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(dst.singles) != 1 || dst.singles[0] != "Lunch; team" {
		t.Errorf("titles = %q", dst.singles)
	}
}

func TestExportRoundTrip(t *testing.T) {
	events := []model.Event{
		{ID: 1, Title: "Dentist", Description: "bring card", Start: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC), End: time.Date(2025, 1, 1, 9, 45, 0, 0, time.UTC)},
		{ID: 2, Title: "Review", Start: time.Date(2025, 1, 2, 14, 0, 0, 0, time.UTC), End: time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)},
	}

	var buf bytes.Buffer
	if err := Export(&buf, events, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Export: %v", err)
	}

	parsed, err := ParseICS(&buf, time.UTC)
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("parsed %d events, want 2", len(parsed))
	}
	for i, p := range parsed {
		e := events[i]
		if p.UID != EventUID(e) || p.Summary != e.Title || !p.Start.Equal(e.Start) || !p.End.Equal(e.End) {
			t.Errorf("event %d = %+v, want %+v", i, p, e)
		}
	}
	if parsed[0].Description != "bring card" {
		t.Errorf("description = %q", parsed[0].Description)
	}
}

func TestEventUIDIsStable(t *testing.T) {
	e := model.Event{ID: 3, Start: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
	if EventUID(e) != EventUID(e) {
		t.Fatal("EventUID not deterministic")
	}
	other := e
	other.ID = 4
	if EventUID(e) == EventUID(other) {
		t.Fatal("different events share a UID")
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cal.ics" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(sample()))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())
	body, err := f.Fetch(context.Background(), srv.URL+"/cal.ics")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Contains(body, []byte("weekly@test")) {
		t.Errorf("unexpected body %q", body)
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/missing.ics"); err == nil {
		t.Error("Fetch of a 404 succeeded")
	}
}

func TestRedactURL(t *testing.T) {
	got := redactURL("https://example.com/private/cal.ics?token=secret")
	if got != "https://example.com/...(redacted)" {
		t.Errorf("redactURL = %q", got)
	}
}
