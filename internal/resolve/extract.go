package resolve

import (
	"regexp"
	"strings"
	"time"

	"evcal/internal/datetime"
	"evcal/internal/model"
)

// StartExtractor is one candidate source for an event's start date-time.
// Extractors are tried in order; the first that reports ok wins.
type StartExtractor struct {
	Name    string
	Extract func(rec model.EventRecord, loc *time.Location) (datetime.DateTime, bool)
}

// TimeExtractor is one candidate source for an event's time-of-day. start
// is the resolved start, valid only when hasStart is true.
type TimeExtractor struct {
	Name    string
	Extract func(rec model.EventRecord, start datetime.DateTime, hasStart bool) (datetime.TimeOfDay, bool)
}

var isoDateFragment = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// DefaultStartExtractors prefers a machine-readable start attribute, then the
// visible date with the clock from the dedicated time field, then the
// visible date on its own.
func DefaultStartExtractors() []StartExtractor {
	return []StartExtractor{
		{
			Name: "start-datetime",
			Extract: func(rec model.EventRecord, loc *time.Location) (datetime.DateTime, bool) {
				if !isoDateFragment.MatchString(rec.StartDateTime) {
					return datetime.DateTime{}, false
				}
				return parse(rec.StartDateTime, loc)
			},
		},
		{
			Name: "date-and-time",
			Extract: func(rec model.EventRecord, loc *time.Location) (datetime.DateTime, bool) {
				tod, ok := datetime.ParseTimeOfDay(rec.StartTimeText)
				if !ok {
					return datetime.DateTime{}, false
				}
				dt, ok := parse(rec.StartDateText, loc)
				if !ok {
					return datetime.DateTime{}, false
				}
				y, m, d := dt.Time.Date()
				return datetime.DateTime{
					Time:    time.Date(y, m, d, tod.Hour, tod.Minute, 0, 0, dt.Time.Location()),
					HasTime: true,
				}, true
			},
		},
		{
			Name: "date",
			Extract: func(rec model.EventRecord, loc *time.Location) (datetime.DateTime, bool) {
				return parse(rec.StartDateText, loc)
			},
		},
	}
}

// DefaultTimeExtractors prefers the dedicated time field, then a clock that
// was part of the parsed start, then any time found in the start text.
func DefaultTimeExtractors() []TimeExtractor {
	return []TimeExtractor{
		{
			Name: "time-field",
			Extract: func(rec model.EventRecord, _ datetime.DateTime, _ bool) (datetime.TimeOfDay, bool) {
				return datetime.ParseTimeOfDay(rec.StartTimeText)
			},
		},
		{
			Name: "start-clock",
			Extract: func(_ model.EventRecord, start datetime.DateTime, hasStart bool) (datetime.TimeOfDay, bool) {
				if !hasStart || !start.HasTime {
					return datetime.TimeOfDay{}, false
				}
				return start.Clock(), true
			},
		},
		{
			Name: "date-text",
			Extract: func(rec model.EventRecord, _ datetime.DateTime, _ bool) (datetime.TimeOfDay, bool) {
				return datetime.ParseTimeOfDay(rec.StartDateText)
			},
		},
	}
}

func parse(text string, loc *time.Location) (datetime.DateTime, bool) {
	if strings.TrimSpace(text) == "" {
		return datetime.DateTime{}, false
	}
	dt, err := datetime.ParseDateTime(text, loc)
	if err != nil {
		return datetime.DateTime{}, false
	}
	return dt, true
}
