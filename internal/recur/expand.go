package recur

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "eventsched/internal/log"
	"eventsched/internal/model"
)

const (
	// DefaultMaxOccurrences caps a single expansion so that a far-away end
	// date cannot flood the catalog.
	DefaultMaxOccurrences = 5000
)

// Occurrence is the time slot of one series member. Index 0 is the anchor.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Result is the outcome of a single expansion.
type Result struct {
	Occurrences []Occurrence
	// Truncated is set when the expansion stopped at the occurrence cap
	// rather than at its termination condition.
	Truncated bool
}

// Expand computes the occurrences of a series anchored at anchor:
//
//	start_k = anchor.Start + k*interval
//	end_k   = anchor.End   + k*interval
//
// The same calendar arithmetic is applied to both timestamps. Month steps
// keep the anchor's day-of-month and clamp to the last day of shorter
// months, always measured from the anchor (31 Jan -> 28 Feb -> 31 Mar).
// If clamping would leave end_k at or before start_k, end_k falls back to
// start_k plus the anchor's duration.
//
// Termination is exactly one of count (total occurrences including the
// anchor) or endDate (last calendar date an occurrence may start on). The
// anchor itself is always the first occurrence, even when it already lies
// after endDate.
//
// Expand is pure; inserting the results is the catalog's job.
func Expand(anchor model.Event, interval model.Interval, count int, endDate *model.Date, limit int) (Result, error) {
	if err := interval.Validate(); err != nil {
		return Result{}, err
	}
	if err := model.ValidateTermination(count, endDate); err != nil {
		return Result{}, err
	}
	if limit <= 0 {
		limit = DefaultMaxOccurrences
	}

	startOpt, err := ruleOption(anchor.Start, interval)
	if err != nil {
		return Result{}, err
	}
	if count > 0 {
		startOpt.Count = count
	} else {
		startOpt.Until = endDate.EndOfDay(anchor.Start.Location())
	}

	starts, truncated, err := collect(startOpt, limit)
	if err != nil {
		return Result{}, fmt.Errorf("expand start times: %w", err)
	}
	if truncated {
		appLog.Error("recur: truncated occurrences due to cap",
			errors.New("max occurrences reached"),
			"anchor_id", anchor.ID,
			"interval", interval.String(),
			"cap", limit,
		)
	}

	var result Result
	result.Truncated = truncated
	result.Occurrences = append(result.Occurrences, Occurrence{Start: anchor.Start, End: anchor.End})
	if len(starts) <= 1 {
		return result, nil
	}

	endOpt, err := ruleOption(anchor.End, interval)
	if err != nil {
		return Result{}, err
	}
	endOpt.Count = len(starts)
	ends, _, err := collect(endOpt, len(starts))
	if err != nil {
		return Result{}, fmt.Errorf("expand end times: %w", err)
	}
	if len(ends) != len(starts) {
		return Result{}, fmt.Errorf("expand: %d start times but %d end times", len(starts), len(ends))
	}

	span := anchor.End.Sub(anchor.Start)
	for k := 1; k < len(starts); k++ {
		occ := Occurrence{
			Start: restoreFraction(starts[k], anchor.Start),
			End:   restoreFraction(ends[k], anchor.End),
		}
		// Clamping start and end separately can collapse an event that
		// crosses a month end; keep the anchor's span in that case.
		if !occ.End.After(occ.Start) {
			occ.End = occ.Start.Add(span)
		}
		result.Occurrences = append(result.Occurrences, occ)
	}
	return result, nil
}

// restoreFraction puts back the sub-second part of ref that rrule
// drops from DTSTART and every occurrence it generates.
func restoreFraction(t, ref time.Time) time.Time {
	return t.Truncate(time.Second).Add(time.Duration(ref.Nanosecond()))
}

// ruleOption builds the base RRULE for stepping dtstart by interval.
func ruleOption(dtstart time.Time, interval model.Interval) (rrule.ROption, error) {
	opt := rrule.ROption{
		Dtstart:  dtstart,
		Interval: interval.Multiplier,
	}

	switch interval.Unit {
	case model.UnitDay:
		opt.Freq = rrule.DAILY
	case model.UnitWeek:
		opt.Freq = rrule.WEEKLY
	case model.UnitMonth:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday, opt.Bysetpos = clampedMonthDay(dtstart.Day())
	default:
		return rrule.ROption{}, fmt.Errorf("%w: interval unit %s", model.ErrParse, interval.Unit)
	}
	return opt, nil
}

// clampedMonthDay selects "day d, or the month's last day if it has fewer
// than d days". Days up to 28 exist in every month; for later days the rule
// picks the last existing day out of 28..d.
func clampedMonthDay(day int) (bymonthday, bysetpos []int) {
	if day <= 28 {
		return []int{day}, nil
	}
	for d := 28; d <= day; d++ {
		bymonthday = append(bymonthday, d)
	}
	return bymonthday, []int{-1}
}

// collect runs the rule and returns at most limit occurrences, reporting
// whether more were available.
func collect(opt rrule.ROption, limit int) ([]time.Time, bool, error) {
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, false, err
	}

	next := r.Iterator()
	out := make([]time.Time, 0)
	for {
		t, ok := next()
		if !ok {
			return out, false, nil
		}
		if len(out) == limit {
			return out, true, nil
		}
		out = append(out, t)
	}
}
