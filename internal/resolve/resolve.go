package resolve

import (
	"fmt"
	"time"

	"evcal/internal/datetime"
	appLog "evcal/internal/log"
	"evcal/internal/model"
	"evcal/internal/recurrence"
	"evcal/internal/sortkey"
)

// Resolver turns raw event records into dated, sortable, taggable events
// relative to a single "now".
type Resolver struct {
	// Location is the viewer's wall clock. If nil, now's location is used.
	Location *time.Location

	StartExtractors []StartExtractor
	TimeExtractors  []TimeExtractor
}

// NewResolver returns a Resolver with the default extractor chains.
func NewResolver(loc *time.Location) *Resolver {
	return &Resolver{
		Location:        loc,
		StartExtractors: DefaultStartExtractors(),
		TimeExtractors:  DefaultTimeExtractors(),
	}
}

// Resolve resolves every record against now and drops expired events.
// A record whose resolution panics is logged and skipped; the rest of the
// pass is unaffected. The result is not ordered; see Order.
func (r *Resolver) Resolve(records []model.EventRecord, now time.Time) []model.ResolvedEvent {
	now = now.In(r.location(now))
	out := make([]model.ResolvedEvent, 0, len(records))

	for _, rec := range records {
		ev, err := r.safeResolve(rec, now)
		if err != nil {
			appLog.Error("resolve: event skipped", err, "id", rec.ID, "title", rec.Title)
			continue
		}
		if ev.Expired {
			appLog.Debug("resolve: event expired", "id", rec.ID, "title", rec.Title, "end", rec.EndDateText)
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Pass resolves and orders records in one go.
func (r *Resolver) Pass(records []model.EventRecord, now time.Time) []model.ResolvedEvent {
	return Order(r.Resolve(records, now))
}

func (r *Resolver) safeResolve(rec model.EventRecord, now time.Time) (ev model.ResolvedEvent, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("resolve: panic: %v", p)
		}
	}()
	return r.ResolveEvent(rec, now), nil
}

// ResolveEvent runs the per-record pipeline: parse the rule, resolve start
// and time-of-day, compute the floor and the occurrence, build the sort key,
// evaluate expiry and tag months. Expired events are returned with
// Expired set; Resolve is what drops them.
func (r *Resolver) ResolveEvent(rec model.EventRecord, now time.Time) model.ResolvedEvent {
	loc := r.location(now)
	now = now.In(loc)
	today := datetime.Midnight(now)

	rule := recurrence.Parse(rec.RecurrenceText)
	start, hasStart := r.resolveStart(rec, loc)
	tod := r.resolveTime(rec, start, hasStart)

	floor := today
	if hasStart && start.Date().After(today) {
		floor = start.Date()
	}

	var occ time.Time
	switch {
	case rule.IsRecurring():
		var limit time.Time
		if hasStart {
			limit = start.Time
		}
		occ = recurrence.NextOccurrence(rule, floor, limit)
	case hasStart:
		occ = start.Date()
	default:
		occ = floor
	}

	ev := model.ResolvedEvent{
		Record:         rec,
		RuleKind:       rule.Kind.String(),
		OccurrenceDate: occ,
		Hour:           tod.Hour,
		Minute:         tod.Minute,
		SortKey:        sortkey.Build(occ, tod),
		Header:         recurrence.Describe(rule),
		DisplayStart:   rec.StartDateText,
	}
	if rule.IsRecurring() {
		y, m, d := occ.Date()
		ev.DisplayStart = datetime.FormatDisplay(time.Date(y, m, d, tod.Hour, tod.Minute, 0, 0, loc))
	}

	// Without an explicit end the event runs for a year; tags are capped at
	// twelve months in that case.
	ev.EffectiveEnd = today.AddDate(0, 12, 0)
	tagLimit := 12
	if end, ok := parse(rec.EndDateText, loc); ok {
		y, m, d := end.Time.Date()
		endOfDay := time.Date(y, m, d, 23, 59, 59, 0, loc)
		ev.Expired = now.After(endOfDay)
		ev.EffectiveEnd = end.Date()
		tagLimit = 0
	}
	ev.EndDisplay = datetime.FormatISODate(ev.EffectiveEnd)
	ev.MonthTags = MonthTags(now, ev.EffectiveEnd, tagLimit)

	return ev
}

func (r *Resolver) resolveStart(rec model.EventRecord, loc *time.Location) (datetime.DateTime, bool) {
	for _, x := range r.StartExtractors {
		if dt, ok := x.Extract(rec, loc); ok {
			return dt, true
		}
	}
	return datetime.DateTime{}, false
}

func (r *Resolver) resolveTime(rec model.EventRecord, start datetime.DateTime, hasStart bool) datetime.TimeOfDay {
	for _, x := range r.TimeExtractors {
		if tod, ok := x.Extract(rec, start, hasStart); ok {
			return tod
		}
	}
	return datetime.TimeOfDay{}
}

func (r *Resolver) location(now time.Time) *time.Location {
	if r.Location != nil {
		return r.Location
	}
	return now.Location()
}
