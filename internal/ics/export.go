package ics

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"eventsched/internal/model"
)

const productID = "-//eventsched//event scheduler//EN"

// uidNamespace seeds the name-based UUIDs exported events are keyed by.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:eventsched:events"))

// EventUID is stable for a given id and start time, so re-exporting an
// unchanged catalog produces the same UIDs.
func EventUID(e model.Event) string {
	name := fmt.Sprintf("%d/%d", e.ID, e.Start.Unix())
	return uuid.NewSHA1(uidNamespace, []byte(name)).String() + "@eventsched"
}

// Export writes events as one VCALENDAR. Every catalog event, series
// siblings included, becomes its own VEVENT; no RRULEs are emitted.
func Export(w io.Writer, events []model.Event, now time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	stamp := now.UTC()
	for _, e := range events {
		ve := cal.AddEvent(EventUID(e))
		ve.SetDtStampTime(stamp)
		ve.SetStartAt(e.Start)
		ve.SetEndAt(e.End)
		ve.SetSummary(e.Title)
		if e.Description != "" {
			ve.SetDescription(e.Description)
		}
	}

	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return fmt.Errorf("write calendar: %w", err)
	}
	return nil
}
