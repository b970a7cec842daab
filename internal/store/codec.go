package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"eventsched/internal/model"
)

// Date-time text layouts. Values are written without seconds when both
// seconds and fractions are zero, matching the files the scheduler has
// always produced, and any of the forms is accepted on read.
const (
	layoutMinutes = "2006-01-02T15:04"
	layoutSeconds = "2006-01-02T15:04:05"
	layoutNanos   = "2006-01-02T15:04:05.999999999"

	// noEndDate is the sentinel written when a spec has no end date.
	noEndDate = "0"
)

// FormatDateTime renders t's wall clock without zone information.
func FormatDateTime(t time.Time) string {
	switch {
	case t.Nanosecond() != 0:
		return t.Format(layoutNanos)
	case t.Second() != 0:
		return t.Format(layoutSeconds)
	default:
		return t.Format(layoutMinutes)
	}
}

// ParseDateTime parses a FormatDateTime value as wall clock time in loc.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	layout := layoutMinutes
	if len(s) > len(layoutMinutes) {
		layout = layoutNanos
	}
	t, err := time.ParseInLocation(layout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date-time %q: %v", model.ErrParse, s, err)
	}
	return t, nil
}

// EncodeEvent renders "id,title,description,start,end". Line breaks in
// text fields are flattened to spaces so a record stays on one line.
func EncodeEvent(e model.Event) string {
	return strconv.Itoa(e.ID) + "," +
		oneLine(e.Title) + "," +
		oneLine(e.Description) + "," +
		FormatDateTime(e.Start) + "," +
		FormatDateTime(e.End)
}

// DecodeEvent parses an EncodeEvent line into exactly five fields. The id
// is taken from the left and both timestamps from the right; what remains
// is split at its first comma, so commas inside the description survive.
// Title and description are kept byte for byte.
func DecodeEvent(line string, loc *time.Location) (model.Event, error) {
	bad := func(reason string) (model.Event, error) {
		return model.Event{}, fmt.Errorf("%w: event record %q: %s", model.ErrParse, line, reason)
	}

	idText, rest, ok := strings.Cut(line, ",")
	if !ok {
		return bad("missing fields")
	}
	i := strings.LastIndexByte(rest, ',')
	if i < 0 {
		return bad("missing end")
	}
	rest, endText := rest[:i], rest[i+1:]
	i = strings.LastIndexByte(rest, ',')
	if i < 0 {
		return bad("missing start")
	}
	rest, startText := rest[:i], rest[i+1:]
	title, desc, ok := strings.Cut(rest, ",")
	if !ok {
		return bad("missing description")
	}

	id, err := strconv.Atoi(strings.TrimSpace(idText))
	if err != nil {
		return bad("invalid id")
	}
	start, err := ParseDateTime(startText, loc)
	if err != nil {
		return model.Event{}, err
	}
	end, err := ParseDateTime(endText, loc)
	if err != nil {
		return model.Event{}, err
	}

	return model.Event{
		ID:          id,
		Title:       title,
		Description: desc,
		Start:       start,
		End:         end,
	}, nil
}

// EncodeRecurrence renders "eventId,interval,count,endDate|0".
func EncodeRecurrence(s model.RecurrenceSpec) string {
	end := noEndDate
	if s.EndDate != nil {
		end = s.EndDate.String()
	}
	return strconv.Itoa(s.EventID) + "," + s.Interval.String() + "," + strconv.Itoa(s.Count) + "," + end
}

// DecodeRecurrence parses an EncodeRecurrence line.
func DecodeRecurrence(line string) (model.RecurrenceSpec, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 4 {
		return model.RecurrenceSpec{}, fmt.Errorf("%w: recurrence record %q: want 4 fields, got %d", model.ErrParse, line, len(parts))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	id, err := strconv.Atoi(parts[0])
	if err != nil {
		return model.RecurrenceSpec{}, fmt.Errorf("%w: recurrence record %q: invalid event id", model.ErrParse, line)
	}
	interval, err := model.ParseInterval(parts[1])
	if err != nil {
		return model.RecurrenceSpec{}, err
	}
	count, err := strconv.Atoi(parts[2])
	if err != nil || count < 0 {
		return model.RecurrenceSpec{}, fmt.Errorf("%w: recurrence record %q: invalid occurrence count", model.ErrParse, line)
	}

	spec := model.RecurrenceSpec{EventID: id, Interval: interval, Count: count}
	if parts[3] != noEndDate {
		d, err := model.ParseDate(parts[3])
		if err != nil {
			return model.RecurrenceSpec{}, err
		}
		spec.EndDate = &d
	}
	return spec, nil
}

func oneLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
