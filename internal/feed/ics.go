package feed

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"evcal/internal/datetime"
	appLog "evcal/internal/log"
	"evcal/internal/model"
)

// maxCountExpansion bounds how many COUNT occurrences are generated to find
// the last one.
const maxCountExpansion = 1000

var rruleDayNames = [7]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// ParseICS converts the VEVENTs of an ICS payload into event records.
//
// DTSTART fills the visible and machine start fields, RRULE becomes a
// free-text recurrence formula, and UNTIL/COUNT (or DTEND for one-off
// events) becomes the end date. Overrides (RECURRENCE-ID) and cancelled
// events are skipped. A VEVENT that cannot be read is logged and skipped.
func ParseICS(src Source, body []byte, loc *time.Location) ([]model.EventRecord, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse ics feed %s: %w", src.ID, err)
	}

	out := make([]model.EventRecord, 0)
	for _, ve := range cal.Events() {
		if ve.GetProperty("RECURRENCE-ID") != nil {
			continue
		}
		if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
			continue
		}
		rec, perr := recordFromVEvent(src, ve, loc)
		if perr != nil {
			appLog.Error("ics vevent skipped", perr, "feed", src.ID)
			continue
		}
		out = append(out, rec)
	}

	appLog.Debug("ics parse completed", "feed", src.ID, "event_count", len(out))
	return out, nil
}

func recordFromVEvent(src Source, ve *ical.VEvent, loc *time.Location) (model.EventRecord, error) {
	var rec model.EventRecord

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		rec.Title = strings.TrimSpace(p.Value)
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return rec, errors.New("missing DTSTART")
	}
	allDay := isDateValue(dtStart)

	var start time.Time
	if allDay {
		d, err := parseDateValue(dtStart.Value, loc)
		if err != nil {
			return rec, fmt.Errorf("DTSTART: %w", err)
		}
		start = d
		rec.StartDateText = start.Format("01/02/2006")
		rec.StartDateTime = datetime.FormatISODate(start)
	} else {
		t, err := ve.GetStartAt()
		if err != nil {
			return rec, fmt.Errorf("DTSTART: %w", err)
		}
		start = t.In(loc)
		rec.StartDateText = datetime.FormatDisplay(start)
		rec.StartTimeText = start.Format("3:04 PM")
		rec.StartDateTime = start.Format("2006-01-02T15:04")
	}

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil && p.Value != "" {
		rec.ID = p.Value
	} else {
		rec.ID = stableID(src.ID, rec.Title, rec.StartDateTime)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		formula, last, err := RecurrenceFromRRule(p.Value, start, loc)
		if err != nil {
			return rec, fmt.Errorf("RRULE: %w", err)
		}
		rec.RecurrenceText = formula
		if !last.IsZero() {
			rec.EndDateText = datetime.FormatISODate(last.In(loc))
		}
		if formula != "" {
			return rec, nil
		}
	}

	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil && dtEnd.Value != "" {
		if isDateValue(dtEnd) {
			// All-day DTEND is exclusive.
			if d, err := parseDateValue(dtEnd.Value, loc); err == nil && d.After(start) {
				rec.EndDateText = datetime.FormatISODate(d.AddDate(0, 0, -1))
			}
		} else if t, err := ve.GetEndAt(); err == nil {
			rec.EndDateText = datetime.FormatISODate(t.In(loc))
		}
	}
	return rec, nil
}

// RecurrenceFromRRule translates an RRULE value into the free-text
// formula the resolver reads ("daily", "weekly mon, wed", "monthly 1, 15").
// It also returns the last occurrence when UNTIL or COUNT bounds the rule.
// Frequencies with no formula equivalent yield an empty formula.
func RecurrenceFromRRule(value string, start time.Time, loc *time.Location) (string, time.Time, error) {
	opt, err := rrule.StrToROptionInLocation(value, loc)
	if err != nil {
		return "", time.Time{}, err
	}
	if opt.Interval > 1 {
		appLog.Debug("rrule interval ignored", "rrule", value, "interval", opt.Interval)
	}

	var formula string
	switch opt.Freq {
	case rrule.DAILY:
		formula = "daily"
	case rrule.WEEKLY:
		names := make([]string, 0, len(opt.Byweekday))
		for _, wd := range opt.Byweekday {
			names = append(names, rruleDayNames[wd.Day()])
		}
		if len(names) == 0 {
			names = append(names, rruleDayNames[(int(start.Weekday())+6)%7])
		}
		formula = "weekly " + strings.Join(names, ", ")
	case rrule.MONTHLY:
		// "1SA" or BYSETPOS pick a weekday of the month, which no
		// day-of-month list can express.
		if len(opt.Byweekday) > 0 || len(opt.Bysetpos) > 0 {
			appLog.Debug("rrule monthly weekday not representable", "rrule", value)
			return "", time.Time{}, nil
		}
		days := make([]string, 0, len(opt.Bymonthday))
		for _, d := range opt.Bymonthday {
			switch {
			case d > 0:
				days = append(days, strconv.Itoa(d))
			case d == -1:
				// Day 31 is clamped to the last day of shorter months.
				days = append(days, "31")
			default:
				appLog.Debug("rrule month day dropped", "rrule", value, "day", d)
			}
		}
		if len(days) == 0 {
			if len(opt.Bymonthday) > 0 {
				appLog.Debug("rrule month days not representable", "rrule", value)
				return "", time.Time{}, nil
			}
			days = append(days, strconv.Itoa(start.Day()))
		}
		formula = "monthly " + strings.Join(days, ", ")
	default:
		appLog.Debug("rrule frequency not representable", "rrule", value)
		return "", time.Time{}, nil
	}

	switch {
	case !opt.Until.IsZero():
		return formula, opt.Until, nil
	case opt.Count > 0 && opt.Count <= maxCountExpansion:
		opt.Dtstart = start
		r, err := rrule.NewRRule(*opt)
		if err != nil {
			return "", time.Time{}, err
		}
		if all := r.All(); len(all) > 0 {
			return formula, all[len(all)-1], nil
		}
	}
	return formula, time.Time{}, nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func parseDateValue(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if len(v) < 8 {
		return time.Time{}, fmt.Errorf("bad date value %q", v)
	}
	return time.ParseInLocation("20060102", v[:8], loc)
}
