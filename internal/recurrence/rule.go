package recurrence

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Kind tags the variant held by a Rule.
type Kind int

const (
	None Kind = iota
	Daily
	Weekly
	Monthly
)

var kindNames = map[Kind]string{
	None:    "none",
	Daily:   "daily",
	Weekly:  "weekly",
	Monthly: "monthly",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Rule is a normalized recurrence. Days is only set for Weekly and is never
// empty there; MonthDays is only set for Monthly, ascending, deduplicated,
// each in 1..31, never empty.
type Rule struct {
	Kind      Kind
	Days      []time.Weekday
	MonthDays []int
}

// NoRule is the rule of a one-off event.
func NoRule() Rule { return Rule{Kind: None} }

func DailyRule() Rule { return Rule{Kind: Daily} }

// WeeklyRule builds a weekly rule. No days means every day of the week.
func WeeklyRule(days ...time.Weekday) Rule {
	out := make([]time.Weekday, 0, 7)
	for _, d := range days {
		if d < time.Sunday || d > time.Saturday || slices.Contains(out, d) {
			continue
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		out = []time.Weekday{
			time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
			time.Thursday, time.Friday, time.Saturday,
		}
	}
	slices.Sort(out)
	return Rule{Kind: Weekly, Days: out}
}

// MonthlyRule builds a monthly rule. Out-of-range values are ignored; no
// valid days means the 1st.
func MonthlyRule(days ...int) Rule {
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d >= 1 && d <= 31 {
			out = append(out, d)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		out = []int{1}
	}
	return Rule{Kind: Monthly, MonthDays: out}
}

func (r Rule) IsRecurring() bool { return r.Kind != None }

// Precedence lists the recurring kinds in the order their keywords are
// checked. When a formula mentions several, the first wins.
func Precedence() []Kind {
	out := make([]Kind, 0, len(detectors))
	for _, d := range detectors {
		out = append(out, d.kind)
	}
	return out
}

// detector pairs a keyword predicate with the constructor of the variant it
// selects. Order is precedence: daily, then weekly, then monthly.
type detector struct {
	kind  Kind
	match func(s string) bool
	build func(s string) Rule
}

var detectors = []detector{
	{
		kind:  Daily,
		match: func(s string) bool { return strings.Contains(s, "daily") },
		build: func(string) Rule { return DailyRule() },
	},
	{
		kind: Weekly,
		match: func(s string) bool {
			return strings.Contains(s, "weekly") ||
				strings.Contains(s, "every week") ||
				strings.HasPrefix(s, "every ")
		},
		build: func(s string) Rule { return WeeklyRule(scanWeekdays(s)...) },
	},
	{
		kind:  Monthly,
		match: func(s string) bool { return strings.Contains(s, "monthly") },
		build: func(s string) Rule { return MonthlyRule(scanMonthDays(s)...) },
	},
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	weekdayToken  = regexp.MustCompile(`sun(?:day)?|mon(?:day)?|tue(?:sday)?|wed(?:nesday)?|thu(?:rsday)?|fri(?:day)?|sat(?:urday)?`)
	monthDayToken = regexp.MustCompile(`(\d{1,2})(?:st|nd|rd|th)?`)
	weekdayPrefix = map[string]time.Weekday{
		"sun": time.Sunday,
		"mon": time.Monday,
		"tue": time.Tuesday,
		"wed": time.Wednesday,
		"thu": time.Thursday,
		"fri": time.Friday,
		"sat": time.Saturday,
	}
)

// Normalize lowercases the formula, folds compatibility characters, turns
// en/em dashes into hyphens and collapses whitespace.
func Normalize(formula string) string {
	s := norm.NFKC.String(formula)
	s = strings.ToLower(s)
	s = strings.NewReplacer("–", "-", "—", "-").Replace(s)
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Parse turns a free-text formula like "Weekly - Mon, Wed" or
// "monthly 1st and 15th" into a Rule. It is a keyword scan, not a grammar;
// anything unrecognized is NoRule.
func Parse(formula string) Rule {
	s := Normalize(formula)
	if s == "" {
		return NoRule()
	}
	for _, d := range detectors {
		if d.match(s) {
			return d.build(s)
		}
	}
	return NoRule()
}

func scanWeekdays(s string) []time.Weekday {
	var out []time.Weekday
	for _, tok := range weekdayToken.FindAllString(s, -1) {
		if wd, ok := weekdayPrefix[tok[:3]]; ok {
			out = append(out, wd)
		}
	}
	return out
}

func scanMonthDays(s string) []int {
	var out []int
	for _, m := range monthDayToken.FindAllStringSubmatch(s, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
