package recurrence

import (
	"slices"
	"time"
)

// weeklyScanDays bounds the forward search for a weekly match. Seven days
// always suffice for a non-empty day set; the rest is margin.
const weeklyScanDays = 14

// NextOccurrence returns the first date on or after the floor that satisfies
// the rule. The floor is notBefore, or start when start is set and later.
// Both are truncated to midnight in notBefore's location; the result is a
// date at midnight.
func NextOccurrence(r Rule, notBefore, start time.Time) time.Time {
	loc := notBefore.Location()
	floor := dateOf(notBefore, loc)
	if !start.IsZero() {
		if s := dateOf(start, loc); s.After(floor) {
			floor = s
		}
	}

	switch r.Kind {
	case Daily:
		return floor
	case Weekly:
		return nextWeekly(r.Days, floor)
	case Monthly:
		return nextMonthly(r.MonthDays, floor)
	default:
		return floor
	}
}

func nextWeekly(days []time.Weekday, floor time.Time) time.Time {
	for i := 0; i < weeklyScanDays; i++ {
		c := floor.AddDate(0, 0, i)
		if slices.Contains(days, c.Weekday()) {
			return c
		}
	}
	return floor
}

func nextMonthly(doms []int, floor time.Time) time.Time {
	if len(doms) == 0 {
		return floor
	}
	y, m, _ := floor.Date()
	loc := floor.Location()

	last := DaysInMonth(y, m)
	for _, dom := range doms {
		c := time.Date(y, m, min(dom, last), 0, 0, 0, 0, loc)
		if !c.Before(floor) {
			return c
		}
	}

	// Nothing left this month: smallest day of the following month.
	ny, nm := y, m+1
	if nm > time.December {
		ny, nm = y+1, time.January
	}
	return time.Date(ny, nm, min(doms[0], DaysInMonth(ny, nm)), 0, 0, 0, 0, loc)
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
