package catalog

import (
	"fmt"
	"time"

	appLog "eventsched/internal/log"
	"eventsched/internal/model"
	"eventsched/internal/recur"
)

// CreateRecurring creates an anchor event and materializes its series in
// one step. It returns the anchor and the ids of every created event,
// anchor first. Exactly one of count and endDate must be set.
func (c *Catalog) CreateRecurring(title, description string, start, end time.Time,
	interval model.Interval, count int, endDate *model.Date) (model.Event, []int, error) {
	if err := model.ValidateTitle(title); err != nil {
		return model.Event{}, nil, err
	}
	if err := model.ValidateRange(start, end); err != nil {
		return model.Event{}, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	anchor, ids, err := c.createRecurringLocked(title, description, start, end, interval, count, endDate)
	if err != nil {
		return model.Event{}, nil, err
	}
	c.persistLocked("create_recurring")
	return anchor, ids, nil
}

// createRecurringLocked expands first, so a rejected series leaves the
// catalog untouched.
func (c *Catalog) createRecurringLocked(title, description string, start, end time.Time,
	interval model.Interval, count int, endDate *model.Date) (model.Event, []int, error) {
	anchor := model.Event{ID: c.nextID, Title: title, Description: description, Start: start, End: end}
	res, err := recur.Expand(anchor, interval, count, endDate, c.maxOccurrences)
	if err != nil {
		return model.Event{}, nil, err
	}

	anchor = c.insertLocked(anchor)
	return anchor, c.materializeLocked(anchor, res, interval, count, endDate), nil
}

// GenerateRecurrence turns an existing event into the anchor of a series.
// The returned ids start with the anchor's own id. An event can anchor at
// most one series.
func (c *Catalog) GenerateRecurrence(anchorID int, interval model.Interval, count int, endDate *model.Date) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(anchorID)
	if i < 0 {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, anchorID)
	}
	for _, s := range c.specs {
		if s.EventID == anchorID {
			return nil, fmt.Errorf("%w: event %d already anchors a recurrence", model.ErrValidation, anchorID)
		}
	}

	anchor := c.events[i]
	res, err := recur.Expand(anchor, interval, count, endDate, c.maxOccurrences)
	if err != nil {
		return nil, err
	}

	ids := c.materializeLocked(anchor, res, interval, count, endDate)
	c.persistLocked("generate_recurrence")
	return ids, nil
}

// materializeLocked records the spec and inserts every occurrence after the
// anchor as an independent event copying the anchor's title and
// description.
func (c *Catalog) materializeLocked(anchor model.Event, res recur.Result,
	interval model.Interval, count int, endDate *model.Date) []int {
	spec := model.RecurrenceSpec{EventID: anchor.ID, Interval: interval, Count: count}
	if endDate != nil {
		d := *endDate
		spec.EndDate = &d
	}
	c.specs = append(c.specs, spec)

	ids := make([]int, 0, len(res.Occurrences))
	ids = append(ids, anchor.ID)
	for _, occ := range res.Occurrences[1:] {
		e := c.insertLocked(model.Event{
			Title:       anchor.Title,
			Description: anchor.Description,
			Start:       occ.Start,
			End:         occ.End,
		})
		ids = append(ids, e.ID)
	}

	appLog.Info("catalog: recurrence materialized",
		"anchor_id", anchor.ID,
		"interval", interval.String(),
		"events", len(ids),
		"truncated", res.Truncated,
	)
	return ids
}
