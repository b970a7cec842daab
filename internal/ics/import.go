package ics

import (
	"io"
	"strings"
	"time"

	"eventsched/internal/catalog"
	appLog "eventsched/internal/log"
)

// Importer is the part of the catalog an import writes to. The whole
// import lands in one batch so the store is written once.
type Importer interface {
	CreateBatch(drafts []catalog.Draft) []catalog.DraftResult
}

// Summary counts what an import did.
type Summary struct {
	// Events is the number of catalog events created, siblings included.
	Events int `json:"events"`
	// Series is the number of native recurrences created.
	Series int `json:"series"`
	// Flattened is the number of events created from expanded RRULEs.
	Flattened int `json:"flattened"`
	// Skipped entries were rejected by the catalog.
	Skipped   int      `json:"skipped"`
	Truncated []string `json:"truncated,omitempty"`
}

// Import parses r and writes every planned entry to dst. Entries the
// catalog rejects are logged and counted; they do not stop the import.
func Import(dst Importer, r io.Reader, loc *time.Location, cfg PlanConfig) (Summary, error) {
	parsed, err := ParseICS(r, loc)
	if err != nil {
		return Summary{}, err
	}
	plan := Plan(parsed, cfg)

	drafts := make([]catalog.Draft, len(plan.Entries))
	for i, e := range plan.Entries {
		drafts[i] = catalog.Draft{
			Title:       storableTitle(e.Title),
			Description: e.Description,
			Start:       e.Start,
			End:         e.End,
		}
		if e.Rule != nil {
			iv := e.Rule.Interval
			drafts[i].Interval = &iv
			drafts[i].Count = e.Rule.Count
			drafts[i].EndDate = e.Rule.EndDate
		}
	}

	sum := Summary{Truncated: plan.TruncatedEvents}
	for i, res := range dst.CreateBatch(drafts) {
		e := plan.Entries[i]
		if res.Err != nil {
			appLog.Error("ics import: entry rejected", res.Err, "uid", e.UID, "start", e.Start)
			sum.Skipped++
			continue
		}
		sum.Events += len(res.IDs)
		switch {
		case e.Rule != nil:
			sum.Series++
		case e.Flattened:
			sum.Flattened++
		}
	}

	appLog.Info("ics import completed",
		"events", sum.Events,
		"series", sum.Series,
		"flattened", sum.Flattened,
		"skipped", sum.Skipped,
	)
	return sum, nil
}

// storableTitle replaces commas, which catalog titles cannot carry.
func storableTitle(title string) string {
	return strings.ReplaceAll(title, ",", ";")
}
