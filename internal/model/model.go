package model

import (
	"slices"
	"time"
)

// EventRecord is a single event as supplied by a feed (CMS export, ICS).
// All fields are raw text; nothing here has been parsed or validated.
type EventRecord struct {
	ID    string
	Title string

	// StartDateText is the visible start date, e.g. "03/05/2025" or
	// "03/05/2025 2:30 PM". It may embed a time.
	StartDateText string
	// StartTimeText is a dedicated time field, e.g. "9:30 AM - 10:30 AM".
	StartTimeText string
	// StartDateTime is an optional machine-readable start such as
	// "2025-03-05T14:30". When it contains a YYYY-MM-DD date it is
	// preferred over the visible text.
	StartDateTime string

	// EndDateText empty means no explicit end.
	EndDateText string

	// RecurrenceText is the free-text formula ("Weekly - Mon, Wed").
	// Empty means the event does not repeat.
	RecurrenceText string
}

// Header is the two-line recurrence banner shown on a recurring event.
type Header struct {
	Top    string `json:"top"`
	Bottom string `json:"bottom"`
}

// ResolvedEvent is an EventRecord after one resolution pass.
type ResolvedEvent struct {
	Record EventRecord

	// RuleKind is the recurrence kind name ("none", "daily", ...).
	RuleKind string

	// OccurrenceDate is midnight of the next (or only) occurrence.
	OccurrenceDate time.Time
	Hour           int
	Minute         int

	// SortKey is "YYYY-MM-DDTHH:MM" in the viewer's wall clock.
	SortKey string

	Expired bool

	// MonthTags are "Month Year" labels from the current month through the
	// effective end month.
	MonthTags []string

	// DisplayStart is the start text to show. Recurring events get their
	// computed occurrence; others keep the record's start text.
	DisplayStart string
	Header       Header

	// EffectiveEnd is the explicit end date, or today + 12 months when the
	// record has none. EndDisplay is its YYYY-MM-DD form.
	EffectiveEnd time.Time
	EndDisplay   string
}

// Recurring reports whether the event repeats.
func (e ResolvedEvent) Recurring() bool {
	return e.RuleKind != "" && e.RuleKind != "none"
}

// HasMonth reports whether label is one of the event's month tags.
func (e ResolvedEvent) HasMonth(label string) bool {
	return slices.Contains(e.MonthTags, label)
}
