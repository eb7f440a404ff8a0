package domain

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for stay dates. Dates are civil days pinned
// to UTC midnight; the time-of-day component is never significant.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string into a UTC-midnight time.Time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrValidation, s)
	}
	return t.UTC(), nil
}

// Overlaps reports whether the half-open ranges [aStart,aEnd) and
// [bStart,bEnd) intersect. One range's end equalling the other's start is
// not an overlap, which is what permits same-day checkout/check-in turnover.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Nights returns the number of nights in [start,end). End must be strictly
// after start.
func Nights(start, end time.Time) (int, error) {
	if !end.After(start) {
		return 0, fmt.Errorf("%w: end date must be after start date", ErrValidation)
	}
	d := end.Sub(start)
	n := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		n++ // partial days count as a full night
	}
	return n, nil
}
