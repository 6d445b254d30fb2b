package resolve

import (
	"slices"
	"strconv"
	"strings"
	"time"

	appLog "evcal/internal/log"
	"evcal/internal/model"
	"evcal/internal/sortkey"
)

// maxMonthTags bounds the tags of a single event. Ten years covers any real
// series; anything longer is a typo such as 12/31/9999.
const maxMonthTags = 120

// Order returns a copy of events sorted by sort key, then by title.
// Events whose key does not parse go last and keep their relative order.
func Order(events []model.ResolvedEvent) []model.ResolvedEvent {
	out := slices.Clone(events)
	slices.SortStableFunc(out, compareEvents)
	return out
}

func compareEvents(a, b model.ResolvedEvent) int {
	// Keys are wall-clock; reading them in UTC avoids DST gaps.
	ta, okA := sortkey.ToTimestamp(a.SortKey, time.UTC)
	tb, okB := sortkey.ToTimestamp(b.SortKey, time.UTC)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return 1
	case !okB:
		return -1
	}
	if c := ta.Compare(tb); c != 0 {
		return c
	}
	return strings.Compare(a.Record.Title, b.Record.Title)
}

// FilterByMonth keeps the events tagged with label, preserving order.
func FilterByMonth(events []model.ResolvedEvent, label string) []model.ResolvedEvent {
	out := make([]model.ResolvedEvent, 0, len(events))
	for _, ev := range events {
		if ev.HasMonth(label) {
			out = append(out, ev)
		}
	}
	return out
}

// MonthLabel renders t's month as "March 2025".
func MonthLabel(t time.Time) string {
	return t.Month().String() + " " + strconv.Itoa(t.Year())
}

// MonthTags lists month labels from now's month through end's month,
// inclusive. A zero end is unbounded and limit > 0 caps the list; with
// neither, twelve months are produced. No list is longer than maxMonthTags.
// The current month is always present.
func MonthTags(now, end time.Time, limit int) []string {
	if end.IsZero() && limit <= 0 {
		limit = 12
	}
	if limit <= 0 || limit > maxMonthTags {
		if span := (end.Year()-now.Year())*12 + int(end.Month()-now.Month()) + 1; span > maxMonthTags {
			appLog.Debug("month tags capped", "end", end.Format("2006-01-02"), "months", span, "cap", maxMonthTags)
		}
		limit = maxMonthTags
	}
	y, m := now.Year(), now.Month()
	ey, em := end.Year(), end.Month()

	var out []string
	for {
		out = append(out, MonthLabel(time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)))
		if limit > 0 && len(out) >= limit {
			break
		}
		if !end.IsZero() && (y > ey || (y == ey && m >= em)) {
			break
		}
		m++
		if m > time.December {
			m = time.January
			y++
		}
	}
	return out
}

// MonthOptions returns the twelve labels offered by the month filter,
// starting at now's month.
func MonthOptions(now time.Time) []string {
	return MonthTags(now, time.Time{}, 12)
}
