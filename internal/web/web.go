package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"evcal/internal/config"
	appLog "evcal/internal/log"
	"evcal/internal/model"
	"evcal/internal/resolve"
)

// eventsCacheTTL bounds how long a resolution pass is served before the
// next request triggers a fresh one.
const eventsCacheTTL = 30 * time.Second

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Loader supplies the raw event records for a resolution pass.
type Loader interface {
	Load(ctx context.Context) ([]model.EventRecord, error)
}

// Server serves the resolved event list as HTML and JSON.
type Server struct {
	cfg      *config.Config
	loader   Loader
	resolver *resolve.Resolver
	mux      *http.ServeMux

	// now is swapped in tests.
	now func() time.Time

	// refreshMu serializes passes; mu guards the cached pass.
	refreshMu sync.Mutex
	mu        sync.RWMutex
	pass      *passCache
}

// passCache is the outcome of one resolution pass.
type passCache struct {
	records   []model.EventRecord
	events    []model.ResolvedEvent
	now       time.Time
	updatedAt time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, loader Loader, resolver *resolve.Resolver) *Server {
	s := &Server{
		cfg:      cfg,
		loader:   loader,
		resolver: resolver,
		mux:      http.NewServeMux(),
		now:      time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !passwordMatches(password, p) {
			w.Header().Set("WWW-Authenticate", `Basic realm="evcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// passwordMatches checks a supplied password against the configured one,
// which may be a bcrypt hash ("$2a$...", "$2b$...", "$2y$...").
func passwordMatches(configured, supplied string) bool {
	if strings.HasPrefix(configured, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(supplied)) == nil
	}
	return secureCompare(supplied, configured)
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/months", s.handleMonths)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /{$}", s.handlePage)
}

// Refresh loads the feeds and runs a resolution pass, replacing the
// cached result. If every feed fails the previous records are resolved
// again so a flaky source never empties the page.
func (s *Server) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return s.refreshLocked(ctx)
}

// refreshLocked runs one pass. The caller holds refreshMu.
func (s *Server) refreshLocked(ctx context.Context) error {
	records, err := s.loader.Load(ctx)
	if err != nil {
		appLog.Error("refresh: feed load incomplete", err, "records", len(records))
		if len(records) == 0 {
			s.mu.RLock()
			if s.pass != nil {
				records = s.pass.records
			}
			s.mu.RUnlock()
		}
	}

	now := s.now()
	events := s.resolver.Pass(records, now)

	s.mu.Lock()
	s.pass = &passCache{
		records:   records,
		events:    events,
		now:       now,
		updatedAt: time.Now(),
	}
	s.mu.Unlock()

	appLog.Info("refresh complete", "records", len(records), "events", len(events))
	return err
}

// fresh returns the cached pass if it is younger than eventsCacheTTL.
func (s *Server) fresh() *passCache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pass != nil && time.Since(s.pass.updatedAt) < eventsCacheTTL {
		return s.pass
	}
	return nil
}

// current returns a pass no older than eventsCacheTTL. Requests that find
// the cache stale wait on refreshMu and reuse the pass the first of them
// produced.
func (s *Server) current(ctx context.Context) *passCache {
	if pc := s.fresh(); pc != nil {
		return pc
	}

	s.refreshMu.Lock()
	if s.fresh() == nil {
		_ = s.refreshLocked(ctx)
	} else {
		appLog.Debug("refresh skipped, pass already fresh")
	}
	s.refreshMu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pass
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	GeneratedAt time.Time  `json:"generated_at"`
	Month       string     `json:"month,omitempty"`
	Count       int        `json:"count"`
	Events      []eventDTO `json:"events"`
}

// eventDTO is the JSON view of a resolved event.
type eventDTO struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Start     string        `json:"start"`
	End       string        `json:"end"`
	Recurring bool          `json:"recurring"`
	Header    *model.Header `json:"header,omitempty"`
	Months    []string      `json:"months"`

	Debug *debugDTO `json:"debug,omitempty"`
}

// debugDTO exposes how an event was ordered.
type debugDTO struct {
	SortKey        string `json:"sort_key"`
	Rule           string `json:"rule"`
	OccurrenceDate string `json:"occurrence_date"`
	StartDateText  string `json:"start_date_text,omitempty"`
	StartTimeText  string `json:"start_time_text,omitempty"`
	StartDateTime  string `json:"start_datetime,omitempty"`
	EndDateText    string `json:"end_date_text,omitempty"`
	RecurrenceText string `json:"recurrence_text,omitempty"`
}

func toDTO(ev model.ResolvedEvent, debug bool) eventDTO {
	dto := eventDTO{
		ID:        ev.Record.ID,
		Title:     ev.Record.Title,
		Start:     ev.DisplayStart,
		End:       ev.EndDisplay,
		Recurring: ev.Recurring(),
		Months:    ev.MonthTags,
	}
	if dto.Months == nil {
		dto.Months = []string{}
	}
	if ev.Recurring() {
		h := ev.Header
		dto.Header = &h
	}
	if debug {
		dto.Debug = &debugDTO{
			SortKey:        ev.SortKey,
			Rule:           ev.RuleKind,
			OccurrenceDate: ev.OccurrenceDate.Format("2006-01-02"),
			StartDateText:  ev.Record.StartDateText,
			StartTimeText:  ev.Record.StartTimeText,
			StartDateTime:  ev.Record.StartDateTime,
			EndDateText:    ev.Record.EndDateText,
			RecurrenceText: ev.Record.RecurrenceText,
		}
	}
	return dto
}

// handleEvents returns the ordered event list.
//
// GET /api/events?month=October+2026&debug=1
//   - month: keep only events tagged with this "Month Year" label
//   - debug: include sort keys, rule kinds and raw record fields
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	month := q.Get("month")
	debug := q.Get("debug") == "1"

	pc := s.current(r.Context())
	events := pc.events
	if month != "" {
		events = resolve.FilterByMonth(events, month)
	}

	dtos := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		dtos = append(dtos, toDTO(ev, debug))
	}

	appLog.Debug("api events request", "month", month, "debug", debug, "count", len(dtos))
	writeJSON(w, http.StatusOK, eventsResponse{
		GeneratedAt: pc.now,
		Month:       month,
		Count:       len(dtos),
		Events:      dtos,
	})
}

type monthsResponse struct {
	Months []string `json:"months"`
}

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	pc := s.current(r.Context())
	writeJSON(w, http.StatusOK, monthsResponse{Months: resolve.MonthOptions(pc.now)})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.Refresh(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pageData feeds templates/index.html.
type pageData struct {
	Month  string
	Months []string
	Events []model.ResolvedEvent
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")

	pc := s.current(r.Context())
	events := pc.events
	if month != "" {
		events = resolve.FilterByMonth(events, month)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := pageData{Month: month, Months: resolve.MonthOptions(pc.now), Events: events}
	if err := pageTemplate.Execute(w, data); err != nil {
		appLog.Error("page render failed", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
