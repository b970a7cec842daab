package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// IntervalUnit is the calendar unit a recurrence steps by.
type IntervalUnit byte

const (
	UnitDay   IntervalUnit = 'd'
	UnitWeek  IntervalUnit = 'w'
	UnitMonth IntervalUnit = 'm'
)

func (u IntervalUnit) valid() bool {
	return u == UnitDay || u == UnitWeek || u == UnitMonth
}

func (u IntervalUnit) String() string {
	switch u {
	case UnitDay:
		return "day"
	case UnitWeek:
		return "week"
	case UnitMonth:
		return "month"
	default:
		return "unknown(" + strconv.Quote(string(rune(u))) + ")"
	}
}

// Interval is a fixed step such as "2w" (every two weeks).
type Interval struct {
	Multiplier int
	Unit       IntervalUnit
}

// ParseInterval parses a token of one or more digits followed by exactly
// one unit character out of d, w and m.
func ParseInterval(token string) (Interval, error) {
	if len(token) < 2 {
		return Interval{}, fmt.Errorf("%w: interval %q is too short", ErrParse, token)
	}
	digits, unit := token[:len(token)-1], IntervalUnit(token[len(token)-1])
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return Interval{}, fmt.Errorf("%w: interval %q has a non-digit multiplier", ErrParse, token)
		}
	}
	if !unit.valid() {
		return Interval{}, fmt.Errorf("%w: interval %q has unknown unit %q", ErrParse, token, string(rune(unit)))
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: interval %q: %v", ErrParse, token, err)
	}
	if n <= 0 {
		return Interval{}, fmt.Errorf("%w: interval %q must have a positive multiplier", ErrParse, token)
	}
	return Interval{Multiplier: n, Unit: unit}, nil
}

// MustParseInterval is ParseInterval for constants in tests and defaults.
func MustParseInterval(token string) Interval {
	iv, err := ParseInterval(token)
	if err != nil {
		panic(err)
	}
	return iv
}

// Validate rejects zero multipliers and unknown units.
func (iv Interval) Validate() error {
	if iv.Multiplier <= 0 {
		return fmt.Errorf("%w: interval multiplier %d must be positive", ErrValidation, iv.Multiplier)
	}
	if !iv.Unit.valid() {
		return fmt.Errorf("%w: interval unit %s", ErrParse, iv.Unit)
	}
	return nil
}

// String renders the persisted token form, e.g. "1d".
func (iv Interval) String() string {
	return strconv.Itoa(iv.Multiplier) + string(rune(iv.Unit))
}

func (iv Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal(iv.String())
}

func (iv *Interval) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseInterval(s)
	if err != nil {
		return err
	}
	*iv = parsed
	return nil
}
