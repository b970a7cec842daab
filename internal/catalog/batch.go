package catalog

import (
	"time"

	appLog "eventsched/internal/log"
	"eventsched/internal/model"
)

// Draft is an event waiting to be created. A non-nil Interval pointer
// makes it the anchor of a series terminated by Count or EndDate.
type Draft struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time

	Interval *model.Interval
	Count    int
	EndDate  *model.Date
}

// DraftResult reports what became of the draft at the same index: the ids
// it created (anchor first for a series) or why it was rejected.
type DraftResult struct {
	IDs []int
	Err error
}

// CreateBatch creates every valid draft under one lock and writes the
// store once. Rejected drafts do not stop the batch. Readers see either
// none or all of the batch.
func (c *Catalog) CreateBatch(drafts []Draft) []DraftResult {
	results := make([]DraftResult, len(drafts))

	c.mu.Lock()
	defer c.mu.Unlock()

	created := 0
	for i, d := range drafts {
		ids, err := c.createDraftLocked(d)
		results[i] = DraftResult{IDs: ids, Err: err}
		if err == nil {
			created += len(ids)
		}
	}

	appLog.Debug("catalog: batch created", "drafts", len(drafts), "events", created)
	if created > 0 {
		c.persistLocked("create_batch")
	}
	return results
}

func (c *Catalog) createDraftLocked(d Draft) ([]int, error) {
	if err := model.ValidateTitle(d.Title); err != nil {
		return nil, err
	}
	if err := model.ValidateRange(d.Start, d.End); err != nil {
		return nil, err
	}
	if d.Interval != nil {
		_, ids, err := c.createRecurringLocked(d.Title, d.Description, d.Start, d.End, *d.Interval, d.Count, d.EndDate)
		return ids, err
	}
	e := c.insertLocked(model.Event{Title: d.Title, Description: d.Description, Start: d.Start, End: d.End})
	return []int{e.ID}, nil
}
