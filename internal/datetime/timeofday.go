package datetime

import (
	"fmt"
	"regexp"
	"strings"
)

// TimeOfDay is a wall-clock hour and minute. The zero value is midnight.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

type clockPattern struct {
	re    *regexp.Regexp
	build func(m []string) TimeOfDay
}

// clockPatterns are tried in priority order against the lowercased text.
var clockPatterns = []clockPattern{
	{
		// 9:30 am
		re: regexp.MustCompile(`(\d{1,2}):(\d{2})\s*(am|pm)`),
		build: func(m []string) TimeOfDay {
			return TimeOfDay{Hour: applyMeridiem(atoi(m[1]), m[3]), Minute: atoi(m[2])}
		},
	},
	{
		// 10am, 9 a, 1p
		re: regexp.MustCompile(`\b(\d{1,2})\s*(am|pm|a|p)\b`),
		build: func(m []string) TimeOfDay {
			return TimeOfDay{Hour: applyMeridiem(atoi(m[1]), m[2])}
		},
	},
	{
		// 14:00
		re: regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`),
		build: func(m []string) TimeOfDay {
			return TimeOfDay{Hour: atoi(m[1]), Minute: atoi(m[2])}
		},
	},
}

var rangeSeparator = regexp.MustCompile(`[-–—]`)

// ParseTimeOfDay extracts the first clock time from free text such as
// "9:30 AM", "10am", "9a - 1p" or "14:00". For ranges only the left side is
// considered. ok is false when nothing usable is found.
func ParseTimeOfDay(text string) (TimeOfDay, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return TimeOfDay{}, false
	}
	s = rangeSeparator.Split(s, 2)[0]

	for _, p := range clockPatterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		if tod := p.build(m); tod.valid() {
			return tod, true
		}
	}
	return TimeOfDay{}, false
}
