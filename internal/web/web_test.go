package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"evcal/internal/config"
	"evcal/internal/model"
	"evcal/internal/resolve"
)

type stubLoader struct {
	records []model.EventRecord
	err     error
	calls   atomic.Int32
}

func (l *stubLoader) Load(context.Context) ([]model.EventRecord, error) {
	l.calls.Add(1)
	return l.records, l.err
}

var fixedNow = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

var farmRecords = []model.EventRecord{
	{ID: "gala", Title: "Harvest Gala", StartDateText: "11/20/2026", StartTimeText: "6:30 PM"},
	{ID: "yoga", Title: "Yoga", StartDateText: "03/05/2025 9:00 AM", RecurrenceText: "Weekly - Mon, Wed", EndDateText: "2026-12-31"},
	{ID: "old", Title: "Summer Camp", StartDateText: "07/01/2026", EndDateText: "08/31/2026"},
}

func newTestServer(t *testing.T, cfg *config.Config, loader Loader) *Server {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := NewServer(cfg, loader, resolve.NewResolver(time.UTC))
	s.now = func() time.Time { return fixedNow }
	return s
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeEvents(t *testing.T, rec *httptest.ResponseRecorder) eventsResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code)
	var resp eventsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(t, nil, &stubLoader{}).Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestEventsOrderedAndExpiredDropped(t *testing.T) {
	s := newTestServer(t, nil, &stubLoader{records: farmRecords})
	resp := decodeEvents(t, get(t, s.Handler(), "/api/events"))

	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "yoga", resp.Events[0].ID)
	assert.Equal(t, "10/19/2026 9:00 AM", resp.Events[0].Start)
	assert.True(t, resp.Events[0].Recurring)
	require.NotNil(t, resp.Events[0].Header)
	assert.Equal(t, model.Header{Top: "Every week", Bottom: "mon, wed"}, *resp.Events[0].Header)
	assert.Nil(t, resp.Events[0].Debug)

	assert.Equal(t, "gala", resp.Events[1].ID)
	assert.Nil(t, resp.Events[1].Header)
	assert.True(t, fixedNow.Equal(resp.GeneratedAt))
}

func TestEventsMonthFilter(t *testing.T) {
	s := newTestServer(t, nil, &stubLoader{records: farmRecords})

	resp := decodeEvents(t, get(t, s.Handler(), "/api/events?month="+url.QueryEscape("January 2027")))
	assert.Equal(t, "January 2027", resp.Month)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "gala", resp.Events[0].ID)

	none := decodeEvents(t, get(t, s.Handler(), "/api/events?month="+url.QueryEscape("March 2030")))
	assert.Equal(t, 0, none.Count)
	assert.NotNil(t, none.Events)
}

func TestEventsDebug(t *testing.T) {
	s := newTestServer(t, nil, &stubLoader{records: farmRecords})
	resp := decodeEvents(t, get(t, s.Handler(), "/api/events?debug=1"))

	require.NotNil(t, resp.Events[0].Debug)
	assert.Equal(t, "2026-10-19T09:00", resp.Events[0].Debug.SortKey)
	assert.Equal(t, "weekly", resp.Events[0].Debug.Rule)
	assert.Equal(t, "Weekly - Mon, Wed", resp.Events[0].Debug.RecurrenceText)
	assert.Equal(t, "none", resp.Events[1].Debug.Rule)
}

func TestMonths(t *testing.T) {
	rec := get(t, newTestServer(t, nil, &stubLoader{}).Handler(), "/api/months")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp monthsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Months, 12)
	assert.Equal(t, "October 2026", resp.Months[0])
}

func TestPageRendersReadyList(t *testing.T) {
	s := newTestServer(t, nil, &stubLoader{records: farmRecords})

	rec := get(t, s.Handler(), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, "Every week")
	assert.Contains(t, body, "10/19/2026 9:00 AM")
	assert.Less(t, strings.Index(body, "Yoga"), strings.Index(body, "Harvest Gala"))
	assert.NotContains(t, body, "Summer Camp")

	empty := get(t, s.Handler(), "/?month="+url.QueryEscape("March 2030"))
	assert.Contains(t, empty.Body.String(), "No result")
	assert.Contains(t, empty.Body.String(), `data-ready="true"`)

	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/nope").Code)
}

func TestPassIsCached(t *testing.T) {
	loader := &stubLoader{records: farmRecords}
	s := newTestServer(t, nil, loader)

	get(t, s.Handler(), "/api/events")
	get(t, s.Handler(), "/api/months")
	get(t, s.Handler(), "/")
	assert.Equal(t, int32(1), loader.calls.Load())

	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestStalePassReloadsOnceForConcurrentRequests(t *testing.T) {
	loader := &stubLoader{records: farmRecords}
	s := newTestServer(t, nil, loader)
	require.NoError(t, s.Refresh(context.Background()))

	s.mu.Lock()
	s.pass.updatedAt = time.Now().Add(-2 * eventsCacheTTL)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pc := s.current(context.Background())
			assert.Len(t, pc.events, 2)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestRefreshKeepsRecordsWhenAllFeedsFail(t *testing.T) {
	loader := &stubLoader{records: farmRecords}
	s := newTestServer(t, nil, loader)
	require.NoError(t, s.Refresh(context.Background()))

	loader.records = nil
	loader.err = errors.New("feed down")
	assert.Error(t, s.Refresh(context.Background()))

	resp := decodeEvents(t, get(t, s.Handler(), "/api/events"))
	assert.Equal(t, 2, resp.Count)
}

func TestRefreshEndpoint(t *testing.T) {
	loader := &stubLoader{records: farmRecords}
	s := newTestServer(t, nil, loader)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	loader.err = errors.New("feed down")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "hunter2"}
	h := newTestServer(t, cfg, &stubLoader{}).Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)

	rec := get(t, h, "/api/events")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("admin", "hunter2")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, secureCompare("abc", "abc"))
	assert.False(t, secureCompare("abc", "abd"))
	assert.False(t, secureCompare("abc", "abcd"))
}

func TestPasswordMatchesBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, passwordMatches(string(hash), "hunter2"))
	assert.False(t, passwordMatches(string(hash), "hunter3"))
	assert.True(t, passwordMatches("plain", "plain"))
	assert.False(t, passwordMatches("plain", "plain!"))
}
