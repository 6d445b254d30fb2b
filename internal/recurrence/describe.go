package recurrence

import (
	"slices"
	"strconv"
	"strings"

	"evcal/internal/model"
)

// Monday-first abbreviations used in the weekly banner.
var mondayFirstNames = [7]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// Describe renders the recurrence banner shown above a recurring event.
func Describe(r Rule) model.Header {
	switch r.Kind {
	case Daily:
		return model.Header{Top: "Everyday"}
	case Weekly:
		idx := make([]int, 0, len(r.Days))
		for _, d := range r.Days {
			// Sunday-first 0..6 to Monday-first 0..6.
			idx = append(idx, (int(d)+6)%7)
		}
		return model.Header{
			Top:    "Every week",
			Bottom: compressRuns(idx, func(i int) string { return mondayFirstNames[i] }),
		}
	case Monthly:
		return model.Header{
			Top:    "Every month",
			Bottom: compressRuns(slices.Clone(r.MonthDays), Ordinal),
		}
	default:
		return model.Header{}
	}
}

// compressRuns sorts items and collapses consecutive runs into
// "first - last" groups joined by ", ".
func compressRuns(items []int, label func(int) string) string {
	if len(items) == 0 {
		return ""
	}
	slices.Sort(items)
	items = slices.Compact(items)

	var groups []string
	emit := func(start, end int) {
		if start == end {
			groups = append(groups, label(start))
			return
		}
		groups = append(groups, label(start)+" - "+label(end))
	}

	start, prev := items[0], items[0]
	for _, n := range items[1:] {
		if n == prev+1 {
			prev = n
			continue
		}
		emit(start, prev)
		start, prev = n, n
	}
	emit(start, prev)

	return strings.Join(groups, ", ")
}

// Ordinal renders n with its English suffix: 1st, 2nd, 3rd, 4th, 11th, 21st.
func Ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}
