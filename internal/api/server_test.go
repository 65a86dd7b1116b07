package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"signal-radar/internal/engagement"
	"signal-radar/internal/metrics"
	"signal-radar/internal/model"
	"signal-radar/internal/monitor"
	"signal-radar/internal/scheduler"
	"signal-radar/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestRefresh(t *testing.T) {
	t.Parallel()

	sch := &stubScheduler{report: scheduler.Report{Due: 2, Scanned: 2, Signals: 1}}
	h := NewHandler(Deps{Scheduler: sch})

	w := serve(h, http.MethodPost, "/api/refresh", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if sch.calls != 1 {
		t.Fatalf("expected scheduler called once, got %d", sch.calls)
	}
	var report scheduler.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil || report.Signals != 1 {
		t.Fatalf("unexpected body %s (%v)", w.Body.String(), err)
	}
}

func TestRefreshConflictWhileScanning(t *testing.T) {
	t.Parallel()

	h := NewHandler(Deps{Scheduler: &stubScheduler{err: scheduler.ErrScanInProgress}})
	if w := serve(h, http.MethodPost, "/api/refresh", ""); w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if w := serve(h, http.MethodGet, "/api/refresh", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestHealthReportsSchedulerState(t *testing.T) {
	t.Parallel()

	h := NewHandler(Deps{Scheduler: &stubScheduler{state: scheduler.Scanning}})
	w := serve(h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"scheduler":"scanning"`) {
		t.Fatalf("unexpected health response %d %s", w.Code, w.Body.String())
	}
}

func TestAddProfile(t *testing.T) {
	t.Parallel()

	mon := &stubMonitor{}
	h := NewHandler(Deps{Monitor: mon})

	w := serve(h, http.MethodPost, "/api/profiles", `{"account_id":1,"profile_url":"https://linkedin.com/in/a","keywords":["funding"]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if mon.last.AccountID != 1 || mon.last.Keywords[0] != "funding" {
		t.Fatalf("request not decoded: %+v", mon.last)
	}

	mon.err = fmt.Errorf("%w: bad url", monitor.ErrInvalidInput)
	if w := serve(h, http.MethodPost, "/api/profiles", `{"account_id":1}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := serve(h, http.MethodPost, "/api/profiles", `{`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on invalid json, got %d", w.Code)
	}
}

func TestListSignals(t *testing.T) {
	t.Parallel()

	st := &stubSignals{events: []model.SignalEvent{{ID: 1, Keyword: "funding"}}}
	h := NewHandler(Deps{Signals: st})

	w := serve(h, http.MethodGet, "/api/signals?profile_id=7&limit=1000", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if st.last.ProfileID != 7 || st.last.Limit != 500 {
		t.Fatalf("unexpected query: %+v", st.last)
	}
	if w := serve(h, http.MethodGet, "/api/signals?profile_id=x", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestEngagementScanRoutes(t *testing.T) {
	t.Parallel()

	eng := &stubEngagement{scan: &model.EngagementScan{ID: "abc", Status: model.ScanProcessing}}
	h := NewHandler(Deps{Engagement: eng})

	w := serve(h, http.MethodPost, "/api/engagement-scans", `{"post_url":"https://linkedin.com/posts/1","reaction_types":["LIKE"],"include_comments":true}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if !eng.submitted.IncludeComments || eng.submitted.ReactionTypes[0] != "LIKE" {
		t.Fatalf("request not decoded: %+v", eng.submitted)
	}

	if w := serve(h, http.MethodGet, "/api/engagement-scans/abc", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"processing"`) {
		t.Fatalf("unexpected get response %d %s", w.Code, w.Body.String())
	}
	if w := serve(h, http.MethodGet, "/api/engagement-scans/missing", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w = serve(h, http.MethodGet, "/api/engagement-scans/abc/export.csv", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "text/csv; charset=utf-8" {
		t.Fatalf("unexpected export response %d %v", w.Code, w.Header())
	}
	if !strings.HasPrefix(w.Body.String(), "Name,Job Title") {
		t.Fatalf("unexpected csv body %q", w.Body.String())
	}
}

func TestExportConflictWhileScanNotReady(t *testing.T) {
	t.Parallel()

	eng := &stubEngagement{
		scan:      &model.EngagementScan{ID: "abc", Status: model.ScanProcessing},
		exportErr: fmt.Errorf("%w: scan abc is processing", engagement.ErrScanNotReady),
	}
	h := NewHandler(Deps{Engagement: eng})

	w := serve(h, http.MethodGet, "/api/engagement-scans/abc/export.csv", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("error should be json, got %q", w.Header().Get("Content-Type"))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.TickDropped()
	h := NewHandler(Deps{Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})})

	w := serve(h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ticks_dropped_total") {
		t.Fatalf("unexpected metrics response %d", w.Code)
	}
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// --- stubs ---

type stubScheduler struct {
	report scheduler.Report
	err    error
	state  scheduler.State
	calls  int
}

func (s *stubScheduler) RunOnce(context.Context) (scheduler.Report, error) {
	s.calls++
	return s.report, s.err
}

func (s *stubScheduler) State() scheduler.State { return s.state }

type stubMonitor struct {
	last monitor.ProfileRequest
	err  error
}

func (s *stubMonitor) CreateAccount(_ context.Context, req monitor.AccountRequest) (model.Account, error) {
	return model.Account{ID: 1, Email: req.Email}, s.err
}

func (s *stubMonitor) AddProfile(_ context.Context, req monitor.ProfileRequest) (model.MonitoredProfile, error) {
	s.last = req
	if s.err != nil {
		return model.MonitoredProfile{}, s.err
	}
	return model.MonitoredProfile{ID: 1, AccountID: req.AccountID, ProfileURL: req.ProfileURL, Keywords: req.Keywords}, nil
}

type stubSignals struct {
	events []model.SignalEvent
	last   storage.SignalQuery
}

func (s *stubSignals) ListSignals(_ context.Context, q storage.SignalQuery) ([]model.SignalEvent, error) {
	s.last = q
	return s.events, nil
}

type stubEngagement struct {
	scan      *model.EngagementScan
	submitted engagement.Request
	exportErr error
}

func (s *stubEngagement) Submit(_ context.Context, req engagement.Request) (*model.EngagementScan, error) {
	s.submitted = req
	return s.scan, nil
}

func (s *stubEngagement) Get(_ context.Context, id string) (*model.EngagementScan, error) {
	if id != s.scan.ID {
		return nil, sql.ErrNoRows
	}
	return s.scan, nil
}

func (s *stubEngagement) Export(_ context.Context, id string, w io.Writer) error {
	if id != s.scan.ID {
		return sql.ErrNoRows
	}
	if s.exportErr != nil {
		return s.exportErr
	}
	return engagement.WriteCSV(w, nil)
}
