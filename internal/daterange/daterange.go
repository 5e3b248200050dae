package daterange

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used for tokens, query parameters and SQL bounds.
const DateLayout = "2006-01-02"

// ErrInvalidRange is returned for malformed or unknown date-range tokens and for
// explicit bounds where start is after end.
var ErrInvalidRange = errors.New("invalid date range")

// Named tokens accepted by Resolve.
const (
	Last7Days  = "last_7_days"
	Last30Days = "last_30_days"
	Last90Days = "last_90_days"
	LastYear   = "last_year"
	YearToDate = "year_to_date"
	AllTime    = "all_time"
)

var trailingDays = map[string]int{
	Last7Days:  7,
	Last30Days: 30,
	Last90Days: 90,
	LastYear:   365,
}

// Tokens returns the named tokens in display order.
func Tokens() []string {
	return []string{Last7Days, Last30Days, Last90Days, LastYear, YearToDate, AllTime}
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// Range is an inclusive window of calendar dates. A zero Start or End leaves
// that side unbounded; both zero means all time.
type Range struct {
	Start time.Time
	End   time.Time
}

// Bounded reports whether both sides are set.
func (r Range) Bounded() bool {
	return !r.Start.IsZero() && !r.End.IsZero()
}

// IsAllTime reports whether neither side is set.
func (r Range) IsAllTime() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Days returns End-Start in whole days, or 0 if the range is not bounded.
func (r Range) Days() int {
	if !r.Bounded() {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours() / 24)
}

// Previous returns the window of equal length ending the day before Start.
// Only bounded ranges have a previous period.
func (r Range) Previous() (Range, bool) {
	if !r.Bounded() {
		return Range{}, false
	}
	length := r.Days()
	prevEnd := r.Start.AddDate(0, 0, -1)
	return Range{
		Start: prevEnd.AddDate(0, 0, -length),
		End:   prevEnd,
	}, true
}

// StartString formats Start as YYYY-MM-DD, or "" when unbounded.
func (r Range) StartString() string {
	if r.Start.IsZero() {
		return ""
	}
	return r.Start.Format(DateLayout)
}

// EndString formats End as YYYY-MM-DD, or "" when unbounded.
func (r Range) EndString() string {
	if r.End.IsZero() {
		return ""
	}
	return r.End.Format(DateLayout)
}

func (r Range) String() string {
	if r.IsAllTime() {
		return AllTime
	}
	return r.StartString() + ":" + r.EndString()
}

// Resolver maps date-range tokens to concrete windows anchored at the clock's today.
type Resolver struct {
	clock   Clock
	lenient bool
}

// NewResolver creates a Resolver. When lenient is true a malformed custom range
// falls back to last_30_days instead of failing.
func NewResolver(clock Clock, lenient bool) *Resolver {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Resolver{clock: clock, lenient: lenient}
}

// Today returns the clock's current calendar date at UTC midnight.
func (r *Resolver) Today() time.Time {
	return Truncate(r.clock.Now())
}

// Resolve maps a token to a Range. "all_time" and "" resolve to the zero Range.
func (r *Resolver) Resolve(token string) (Range, error) {
	token = strings.TrimSpace(token)
	today := r.Today()

	if days, ok := trailingDays[token]; ok {
		return Range{Start: today.AddDate(0, 0, -days), End: today}, nil
	}

	switch token {
	case "", AllTime:
		return Range{}, nil
	case YearToDate:
		return Range{Start: time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), End: today}, nil
	}

	rng, err := parseCustom(token)
	if err != nil {
		if r.lenient {
			return Range{Start: today.AddDate(0, 0, -trailingDays[Last30Days]), End: today}, nil
		}
		return Range{}, err
	}
	return rng, nil
}

// Explicit builds a Range from caller-supplied bounds, bypassing token resolution.
// Either side may be zero.
func Explicit(start, end time.Time) (Range, error) {
	rng := Range{Start: Truncate(start), End: Truncate(end)}
	if start.IsZero() {
		rng.Start = time.Time{}
	}
	if end.IsZero() {
		rng.End = time.Time{}
	}
	if rng.Bounded() && rng.Start.After(rng.End) {
		return Range{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, rng.StartString(), rng.EndString())
	}
	return rng, nil
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a YYYY-MM-DD date", ErrInvalidRange, s)
	}
	return t, nil
}

// Truncate drops the time of day, keeping the calendar date in t's location, at UTC.
func Truncate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CustomPrefix may precede a START:END custom range.
const CustomPrefix = "custom:"

func parseCustom(token string) (Range, error) {
	token = strings.TrimPrefix(token, CustomPrefix)
	startStr, endStr, ok := strings.Cut(token, ":")
	if !ok {
		return Range{}, fmt.Errorf("%w: unknown token %q", ErrInvalidRange, token)
	}
	start, err := ParseDate(startStr)
	if err != nil {
		return Range{}, err
	}
	end, err := ParseDate(endStr)
	if err != nil {
		return Range{}, err
	}
	if start.After(end) {
		return Range{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, startStr, endStr)
	}
	return Range{Start: start, End: end}, nil
}
