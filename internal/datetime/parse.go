package datetime

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ErrUnparseableDate is returned when text matches no known date form and
// the free-text fallback also fails. Callers treat it as "no date".
var ErrUnparseableDate = errors.New("datetime: unparseable date")

// DisplayLayout renders MM/DD/YYYY H:MM AM|PM.
const DisplayLayout = "01/02/2006 3:04 PM"

// DateTime is a parsed wall-clock date-time. HasTime is false when the
// source text carried only a date and the clock was defaulted to 00:00.
type DateTime struct {
	Time    time.Time
	HasTime bool
}

// Date returns midnight of the same calendar day.
func (d DateTime) Date() time.Time {
	return Midnight(d.Time)
}

// Clock returns the time-of-day portion.
func (d DateTime) Clock() TimeOfDay {
	return TimeOfDay{Hour: d.Time.Hour(), Minute: d.Time.Minute()}
}

var (
	// MM/DD/YYYY [H[:MM] [AM|PM]]; a bare hour needs a meridiem.
	mdyPattern = regexp.MustCompile(`(?i)^(\d{1,2})/(\d{1,2})/(\d{4})(?:\s+(\d{1,2})(?::(\d{2}))?(?:\s*(AM|PM))?)?$`)
	// YYYY-MM-DD [(T| )HH:MM[:SS]]
	isoPattern = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})(?:[T\s](\d{2}):(\d{2})(?::\d{2})?)?$`)

	// "2:30 PM - 4:00 PM" keeps "2:30 PM". The left side must be a clock,
	// and a 24h clock needs a space before the dash, so date dashes and
	// UTC offsets are never cut.
	timeRangeTail = regexp.MustCompile(`(?i)(\d{1,2}(?::\d{2})?\s*(?:am|pm)\s*|\d{1,2}:\d{2}\s+)[-–—].*$`)
	// "Saturday, March 8, 2025"
	leadingWeekday = regexp.MustCompile(`(?i)^(?:mon|tue|wed|thu|fri|sat|sun)[a-z]*\.?,?\s+`)
)

// ParseDateTime parses text into a wall-clock date-time in loc. Forms are
// tried in order: MM/DD/YYYY with optional 12h/24h clock, ISO YYYY-MM-DD with
// optional HH:MM, then a generic free-text parser. A missing clock is 00:00.
// For a time range such as "03/05/2025 2:30 PM - 4:00 PM" only the start is
// read. Out-of-range fields and free-text results whose clock disagrees
// with the clock written in the text are rejected.
func ParseDateTime(text string, loc *time.Location) (DateTime, error) {
	if loc == nil {
		loc = time.Local
	}
	s := strings.TrimSpace(text)
	if s == "" {
		return DateTime{}, ErrUnparseableDate
	}
	s = strings.TrimSpace(timeRangeTail.ReplaceAllString(s, "$1"))
	unparseable := fmt.Errorf("%w: %q", ErrUnparseableDate, s)

	if m := mdyPattern.FindStringSubmatch(s); m != nil && (m[4] == "" || m[5] != "" || m[6] != "") {
		month, day, year := atoi(m[1]), atoi(m[2]), atoi(m[3])
		hour, minute := 0, 0
		hasTime := m[4] != ""
		if hasTime {
			if h := atoi(m[4]); m[6] != "" && (h < 1 || h > 12) {
				return DateTime{}, unparseable
			}
			hour = applyMeridiem(atoi(m[4]), m[6])
			minute = atoi(m[5])
		}
		return build(year, month, day, hour, minute, hasTime, loc, unparseable)
	}

	if m := isoPattern.FindStringSubmatch(s); m != nil {
		year, month, day := atoi(m[1]), atoi(m[2]), atoi(m[3])
		hasTime := m[4] != ""
		hour, minute := 0, 0
		if hasTime {
			hour, minute = atoi(m[4]), atoi(m[5])
		}
		return build(year, month, day, hour, minute, hasTime, loc, unparseable)
	}

	s = leadingWeekday.ReplaceAllString(s, "")
	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return DateTime{}, unparseable
	}
	if tod, ok := ParseTimeOfDay(s); ok && (tod.Hour != t.Hour() || tod.Minute != t.Minute()) {
		return DateTime{}, unparseable
	}
	t = t.In(loc)
	return DateTime{
		Time:    t,
		HasTime: t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0,
	}, nil
}

// build assembles a DateTime, returning errInvalid when a field would
// overflow into the next unit (02/30, 25:00).
func build(year, month, day, hour, minute int, hasTime bool, loc *time.Location, errInvalid error) (DateTime, error) {
	if month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 {
		return DateTime{}, errInvalid
	}
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	if t.Day() != day {
		return DateTime{}, errInvalid
	}
	return DateTime{Time: t, HasTime: hasTime}, nil
}

// FormatDisplay renders t as MM/DD/YYYY H:MM AM|PM; hour 0 shows as 12.
func FormatDisplay(t time.Time) string {
	return t.Format(DisplayLayout)
}

// FormatISODate renders the date portion of t as YYYY-MM-DD.
func FormatISODate(t time.Time) string {
	return t.Format("2006-01-02")
}

// Midnight truncates t to 00:00 of its calendar day in its own location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// applyMeridiem converts a 12h clock hour. PM adds 12 except at 12;
// AM maps 12 to 0. An empty meridiem leaves the hour untouched.
func applyMeridiem(hour int, meridiem string) int {
	switch strings.ToLower(meridiem) {
	case "pm", "p":
		if hour != 12 {
			hour += 12
		}
	case "am", "a":
		if hour == 12 {
			hour = 0
		}
	}
	return hour
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
