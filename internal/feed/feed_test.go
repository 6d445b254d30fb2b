package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcal/internal/config"
	"evcal/internal/model"
	"evcal/internal/resolve"
)

const cmsExport = `
events:
  - id: yoga
    title: Yoga in the Barn
    start_date: 03/05/2025 9:00 AM
    recurrence: Weekly - Mon, Wed
  - title: Harvest Gala
    start_date: 11/20/2026
    start_time: "6:30 PM"
    end_date: 11/20/2026
`

func TestParseYAMLMapping(t *testing.T) {
	src := Source{ID: "cms"}
	recs, err := ParseYAML(src, []byte(cmsExport))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, model.EventRecord{
		ID:             "yoga",
		Title:          "Yoga in the Barn",
		StartDateText:  "03/05/2025 9:00 AM",
		RecurrenceText: "Weekly - Mon, Wed",
	}, recs[0])

	assert.Equal(t, "6:30 PM", recs[1].StartTimeText)
	assert.NotEmpty(t, recs[1].ID)

	again, err := ParseYAML(src, []byte(cmsExport))
	require.NoError(t, err)
	assert.Equal(t, recs[1].ID, again[1].ID, "generated ids are stable")
}

func TestParseYAMLList(t *testing.T) {
	body := "- title: Pop-up\n  start_date: TBD\n- title: Market\n  recurrence: monthly 1st\n"
	recs, err := ParseYAML(Source{ID: "list"}, []byte(body))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "TBD", recs[0].StartDateText)
	assert.Equal(t, "monthly 1st", recs[1].RecurrenceText)
}

func TestParseYAMLErrors(t *testing.T) {
	for _, body := range []string{"", "  \n", "events: [", "just a string"} {
		_, err := ParseYAML(Source{ID: "bad"}, []byte(body))
		assert.Error(t, err, "body %q", body)
	}
}

const farmICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//farm//events//EN
BEGIN:VEVENT
UID:yoga
SUMMARY:Yoga
DTSTART:20261005T090000Z
RRULE:FREQ=WEEKLY;BYDAY=MO,WE;UNTIL=20261231T000000Z
END:VEVENT
BEGIN:VEVENT
UID:market
SUMMARY:Market
DTSTART;VALUE=DATE:20261101
RRULE:FREQ=MONTHLY;BYMONTHDAY=1,15;COUNT=3
END:VEVENT
BEGIN:VEVENT
UID:fair
SUMMARY:County Fair
DTSTART;VALUE=DATE:20261120
DTEND;VALUE=DATE:20261123
END:VEVENT
BEGIN:VEVENT
UID:yoga
SUMMARY:Yoga (moved)
RECURRENCE-ID:20261012T090000Z
DTSTART:20261013T090000Z
END:VEVENT
BEGIN:VEVENT
UID:cancelled
SUMMARY:Hayride
STATUS:CANCELLED
DTSTART:20261101T140000Z
END:VEVENT
BEGIN:VEVENT
UID:nostart
SUMMARY:Broken
END:VEVENT
END:VCALENDAR
`

func TestParseICS(t *testing.T) {
	body := strings.ReplaceAll(farmICS, "\n", "\r\n")
	recs, err := ParseICS(Source{ID: "farm"}, []byte(body), time.UTC)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, model.EventRecord{
		ID:             "yoga",
		Title:          "Yoga",
		StartDateText:  "10/05/2026 9:00 AM",
		StartTimeText:  "9:00 AM",
		StartDateTime:  "2026-10-05T09:00",
		EndDateText:    "2026-12-31",
		RecurrenceText: "weekly mon, wed",
	}, recs[0])

	assert.Equal(t, "monthly 1, 15", recs[1].RecurrenceText)
	assert.Equal(t, "2026-12-01", recs[1].EndDateText)
	assert.Equal(t, "2026-11-01", recs[1].StartDateTime)
	assert.Empty(t, recs[1].StartTimeText)

	assert.Equal(t, "County Fair", recs[2].Title)
	assert.Equal(t, "11/20/2026", recs[2].StartDateText)
	assert.Equal(t, "2026-11-22", recs[2].EndDateText)
	assert.Empty(t, recs[2].RecurrenceText)
}

func TestParseICSRecordsResolve(t *testing.T) {
	body := strings.ReplaceAll(farmICS, "\n", "\r\n")
	recs, err := ParseICS(Source{ID: "farm"}, []byte(body), time.UTC)
	require.NoError(t, err)

	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	out := resolve.NewResolver(time.UTC).Pass(recs, now)
	require.Len(t, out, 3)
	assert.Equal(t, "2026-10-19T09:00", out[0].SortKey)
	assert.Equal(t, "2026-11-01T00:00", out[1].SortKey)
	assert.Equal(t, "2026-11-20T00:00", out[2].SortKey)
}

func TestParseICSEmpty(t *testing.T) {
	_, err := ParseICS(Source{ID: "x"}, nil, time.UTC)
	assert.Error(t, err)
}

func TestRecurrenceFromRRule(t *testing.T) {
	thursday := time.Date(2026, 10, 15, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		rule    string
		formula string
		last    time.Time
	}{
		{rule: "FREQ=DAILY", formula: "daily"},
		{rule: "FREQ=WEEKLY", formula: "weekly thu"},
		{rule: "FREQ=WEEKLY;BYDAY=SU,SA", formula: "weekly sun, sat"},
		{rule: "FREQ=MONTHLY", formula: "monthly 15"},
		{rule: "FREQ=MONTHLY;BYMONTHDAY=-1,3", formula: "monthly 31, 3"},
		{rule: "FREQ=MONTHLY;BYMONTHDAY=-1", formula: "monthly 31"},
		{rule: "FREQ=MONTHLY;BYMONTHDAY=-2"},
		{rule: "FREQ=MONTHLY;BYDAY=1SA"},
		{rule: "FREQ=MONTHLY;BYDAY=MO;BYSETPOS=1"},
		{rule: "FREQ=MONTHLY;BYDAY=1SA;UNTIL=20270101T000000Z"},
		{rule: "FREQ=DAILY;COUNT=3", formula: "daily", last: time.Date(2026, 10, 17, 18, 0, 0, 0, time.UTC)},
		{rule: "FREQ=YEARLY"},
	}
	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			formula, last, err := RecurrenceFromRRule(tt.rule, thursday, time.UTC)
			require.NoError(t, err)
			assert.Equal(t, tt.formula, formula)
			assert.True(t, tt.last.Equal(last), "last = %v", last)
		})
	}

	_, _, err := RecurrenceFromRRule("FREQ=SOMETIMES", thursday, time.UTC)
	assert.Error(t, err)
}

func TestFetcherRevalidatesWithETag(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(cmsExport))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "cms", URL: srv.URL + "/events.yaml?token=secret"}

	first, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetcherFallsBackToCacheOnError(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("events: []"))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "cms", URL: srv.URL}

	_, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)

	fail.Store(true)
	res, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, "events: []", string(res.Body))

	_, err = NewFetcher(t.TempDir()).Fetch(context.Background(), src)
	assert.Error(t, err, "no cache to fall back to")
}

func TestFetcherReadsLocalFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cmsExport), 0o600))

	f := NewFetcher(t.TempDir())
	for _, u := range []string{path, "file://" + path} {
		res, err := f.Fetch(context.Background(), Source{ID: "local", URL: u})
		require.NoError(t, err, u)
		assert.Equal(t, cmsExport, string(res.Body))
	}

	_, err := f.Fetch(context.Background(), Source{ID: "empty"})
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/private/cal.ics?token=abc"))
	assert.Equal(t, "feed://...(redacted)", redactURL("not a url"))
}

func TestLoaderCollectsPerFeedErrors(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "events.yaml")
	require.NoError(t, os.WriteFile(good, []byte(cmsExport), 0o600))

	cfg := config.DefaultConfig()
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.Feeds = []config.FeedConfig{
		{ID: "missing", URL: filepath.Join(dir, "nope.yaml")},
		{ID: "cms", URL: good},
		{ID: "odd", Kind: "xml", URL: good},
	}
	cfg.Normalize()

	recs, err := NewLoader(cfg, time.UTC).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed missing")
	assert.Contains(t, err.Error(), "feed odd")
	assert.Len(t, recs, 2)
}

func TestLoaderStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := &Loader{Fetcher: NewFetcher(t.TempDir()), Sources: []Source{{ID: "a", URL: "x"}}}
	recs, err := l.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, recs)
}
