// Package sortkey encodes an occurrence date and time-of-day as a fixed-width
// "YYYY-MM-DDTHH:MM" string. Because every field is zero-padded, keys sort
// lexicographically in chronological order.
package sortkey

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"evcal/internal/datetime"
)

var keyPattern = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})T(\d{2}):(\d{2})$`)

// Build formats the calendar date of date with the given time-of-day.
func Build(date time.Time, tod datetime.TimeOfDay) string {
	y, m, d := date.Date()
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d", y, int(m), d, tod.Hour, tod.Minute)
}

// ToTimestamp reconstructs the wall-clock instant a key denotes in loc.
// ok is false for malformed keys.
func ToTimestamp(key string, loc *time.Location) (t time.Time, ok bool) {
	m := keyPattern.FindStringSubmatch(key)
	if m == nil {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	n := make([]int, 5)
	for i := range n {
		n[i], _ = strconv.Atoi(m[i+1])
	}
	return time.Date(n[0], time.Month(n[1]), n[2], n[3], n[4], 0, 0, loc), true
}
