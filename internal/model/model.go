package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrValidation marks input the catalog refuses to accept (bad time
	// range, inconsistent recurrence termination, ...).
	ErrValidation = errors.New("validation failed")

	// ErrParse marks malformed interval tokens and persisted records.
	ErrParse = errors.New("parse failed")
)

// Event is a single concrete calendar entry. Events produced by recurrence
// expansion are ordinary events; only the anchor is referenced by a
// RecurrenceSpec.
type Event struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Duration returns End - Start.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// ValidateRange reports an ErrValidation unless end is strictly after start.
func ValidateRange(start, end time.Time) error {
	if !end.After(start) {
		return fmt.Errorf("%w: end %s is not after start %s",
			ErrValidation, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}

// ValidateTitle rejects titles the record format cannot hold: the first
// comma of a stored event line separates title from description.
func ValidateTitle(title string) error {
	if strings.Contains(title, ",") {
		return fmt.Errorf("%w: title %q must not contain a comma", ErrValidation, title)
	}
	return nil
}

// RecurrenceSpec describes how a series was generated from its anchor
// event. Exactly one of Count and EndDate terminates the series.
type RecurrenceSpec struct {
	// EventID is the anchor event's id.
	EventID  int      `json:"event_id"`
	Interval Interval `json:"interval"`

	// Count is the total number of occurrences including the anchor;
	// zero when the series is bounded by EndDate.
	Count int `json:"count"`

	// EndDate is the last calendar date an occurrence may start on.
	EndDate *Date `json:"end_date,omitempty"`
}

// Validate checks the interval and that exactly one termination condition
// is set.
func (s RecurrenceSpec) Validate() error {
	if err := s.Interval.Validate(); err != nil {
		return err
	}
	return ValidateTermination(s.Count, s.EndDate)
}

// ValidateTermination enforces that exactly one of count and endDate is set.
// Supplying both is rejected rather than silently preferring one of them.
func ValidateTermination(count int, endDate *Date) error {
	switch {
	case count < 0:
		return fmt.Errorf("%w: occurrence count %d is negative", ErrValidation, count)
	case count > 0 && endDate != nil:
		return fmt.Errorf("%w: occurrence count and end date are mutually exclusive", ErrValidation)
	case count == 0 && endDate == nil:
		return fmt.Errorf("%w: recurrence needs an occurrence count or an end date", ErrValidation)
	}
	return nil
}
