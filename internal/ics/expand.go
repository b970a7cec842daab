package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "eventsched/internal/log"
	"eventsched/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
	defaultHorizon                = 365 * 24 * time.Hour
)

// PlanConfig controls how parsed VEVENTs become catalog entries.
type PlanConfig struct {
	// Horizon bounds the expansion of rules without COUNT or UNTIL,
	// measured from the event's DTSTART.
	Horizon time.Duration

	// MaxOccurrencesPerEvent caps a single flattened series.
	MaxOccurrencesPerEvent int
}

// Rule is a recurrence the catalog can represent natively.
type Rule struct {
	Interval model.Interval
	Count    int
	EndDate  *model.Date
}

// Entry is one thing to create in the catalog: a single event, or the
// anchor of a native recurrence when Rule is set.
type Entry struct {
	UID         string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Rule        *Rule
	// Flattened marks an occurrence of an RRULE that had to be expanded
	// into independent events.
	Flattened bool
}

// PlanResult wraps the planned entries and the UIDs that hit the cap.
type PlanResult struct {
	Entries         []Entry
	TruncatedEvents []string
}

// Plan turns parsed VEVENTs into catalog entries:
//
//   - Events without RRULE become single entries.
//   - An RRULE with FREQ=DAILY/WEEKLY/MONTHLY, an INTERVAL, exactly one of
//     COUNT or UNTIL and no BY* parts, EXDATEs or overridden instances
//     becomes a native recurrence.
//   - Any other RRULE is expanded with EXDATEs removed and RECURRENCE-ID
//     overrides applied, and each occurrence becomes its own entry.
//
// Entries come out in DTSTART order.
func Plan(events []ParsedEvent, cfg PlanConfig) PlanResult {
	if cfg.Horizon <= 0 {
		cfg.Horizon = defaultHorizon
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	bases := make([]ParsedEvent, 0, len(events))
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			bases = append(bases, ev)
		}
	}

	var result PlanResult
	for _, ev := range bases {
		ov := overridesByUID[ev.UID]
		if ev.RawRRule == "" {
			result.Entries = append(result.Entries, singleEntry(ev, ov))
			continue
		}

		if len(ov) == 0 && len(ev.ExDates) == 0 {
			if rule, ok := nativeRule(ev); ok {
				e := entryFrom(ev, ev.Start, ev.End)
				e.Rule = rule
				result.Entries = append(result.Entries, e)
				continue
			}
		}

		entries, hitCap := flatten(ev, ov, cfg)
		if hitCap {
			result.TruncatedEvents = append(result.TruncatedEvents, ev.UID)
			appLog.Error("ics: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", ev.UID,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
		result.Entries = append(result.Entries, entries...)
	}

	sort.SliceStable(result.Entries, func(i, j int) bool {
		return result.Entries[i].Start.Before(result.Entries[j].Start)
	})
	return result
}

func singleEntry(ev ParsedEvent, overrides []ParsedEvent) Entry {
	if o, ok := findOverrideForStart(overrides, ev.Start); ok {
		return entryFrom(o, o.Start, o.End)
	}
	return entryFrom(ev, ev.Start, ev.End)
}

// nativeRule maps ev's RRULE onto a catalog recurrence if it has the same
// meaning there.
func nativeRule(ev ParsedEvent) (*Rule, bool) {
	opt, err := rrule.StrToROption(ev.RawRRule)
	if err != nil {
		return nil, false
	}
	if len(opt.Bysetpos)+len(opt.Bymonth)+len(opt.Bymonthday)+len(opt.Byyearday)+
		len(opt.Byweekno)+len(opt.Byweekday)+len(opt.Byhour)+len(opt.Byminute)+
		len(opt.Bysecond)+len(opt.Byeaster) > 0 {
		return nil, false
	}

	var unit model.IntervalUnit
	switch opt.Freq {
	case rrule.DAILY:
		unit = model.UnitDay
	case rrule.WEEKLY:
		unit = model.UnitWeek
	case rrule.MONTHLY:
		// RRULE skips months without the day; the catalog clamps instead.
		if ev.Start.Day() > 28 {
			return nil, false
		}
		unit = model.UnitMonth
	default:
		return nil, false
	}

	rule := &Rule{Interval: model.Interval{Multiplier: max(opt.Interval, 1), Unit: unit}}
	switch {
	case opt.Count > 0 && opt.Until.IsZero():
		rule.Count = opt.Count
	case opt.Count == 0 && !opt.Until.IsZero():
		d := lastStartDate(ev.Start, opt.Until)
		if d.Before(model.DateOf(ev.Start)) {
			return nil, false
		}
		rule.EndDate = &d
	default:
		return nil, false
	}
	return rule, true
}

// lastStartDate converts an inclusive UNTIL instant into the last date an
// occurrence of a series starting at start may fall on.
func lastStartDate(start, until time.Time) model.Date {
	until = until.In(start.Location())
	d := model.DateOf(until)
	candidate := time.Date(d.Year, d.Month, d.Day, start.Hour(), start.Minute(), start.Second(), 0, start.Location())
	if candidate.After(until) {
		return model.DateOf(candidate.AddDate(0, 0, -1))
	}
	return d
}

func flatten(ev ParsedEvent, overrides []ParsedEvent, cfg PlanConfig) ([]Entry, bool) {
	out := make([]Entry, 0)

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics: failed to parse RRULE; importing first instance only", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return append(out, entryFrom(ev, ev.Start, ev.End)), false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	horizonEnd := ev.Start.Add(cfg.Horizon)
	bounded := r.OrigOptions.Count > 0 || !r.OrigOptions.Until.IsZero()
	dur := ev.End.Sub(ev.Start)

	next := set.Iterator()
	for {
		occStart, ok := next()
		if !ok {
			return out, false
		}
		if !bounded && occStart.After(horizonEnd) {
			return out, false
		}
		if len(out) == cfg.MaxOccurrencesPerEvent {
			return out, true
		}

		occEnd := occStart.Add(dur)
		var e Entry
		if o, ok := findOverrideForStart(overrides, occStart); ok {
			e = entryFrom(o, o.Start, o.End)
		} else {
			e = entryFrom(ev, occStart, occEnd)
		}
		e.Flattened = true
		out = append(out, e)
	}
}

// findOverrideForStart finds an override whose RECURRENCE-ID equals start.
func findOverrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

func entryFrom(ev ParsedEvent, start, end time.Time) Entry {
	return Entry{
		UID:         ev.UID,
		Title:       ev.Summary,
		Description: ev.Description,
		Start:       start,
		End:         end,
	}
}
