package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"jobmate/listing-service/internal/analytics"
	"jobmate/listing-service/internal/clock"
	apperr "jobmate/listing-service/internal/errors"
	"jobmate/listing-service/internal/httpapi"
	"jobmate/listing-service/internal/lifecycle"
	"jobmate/listing-service/internal/model"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

const uaFirefox = "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0"

type stubRunner struct {
	ran bool
}

func (r stubRunner) RunNow(context.Context) (lifecycle.TransitionResult, bool, error) {
	return lifecycle.TransitionResult{MovedToDump: 1}, r.ran, nil
}

type env struct {
	mux    *http.ServeMux
	clock  *clock.Fixed
	engine *lifecycle.Engine
	agg    *analytics.Aggregator
}

func setup(t *testing.T, runner httpapi.Runner) *env {
	t.Helper()
	clk := clock.NewFixed(now)
	store := lifecycle.NewMemoryStore()
	e := &env{
		mux:    http.NewServeMux(),
		clock:  clk,
		engine: lifecycle.NewEngine(store, clk, nil, zap.NewNop()),
	}
	e.agg = analytics.NewAggregator(analytics.NewMemoryStore(), store, clk, zap.NewNop())
	httpapi.NewHandler(e.engine, e.agg, runner, clk, zap.NewNop()).RegisterRoutes(e.mux)
	return e
}

func (e *env) do(t *testing.T, method, path, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if role != "" {
		req.Header.Set("x-user-role", role)
	}
	req.Header.Set("User-Agent", uaFirefox)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *env) createJob(t *testing.T) model.Job {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/jobs", "recruiter",
		`{"company":"Acme","role":"SRE","hiringLink":"https://acme.example/apply","skills":["go"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var job model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	return job
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// ── Jobs ───────────────────────────────────────────────────────────────────

func TestCreateJob(t *testing.T) {
	e := setup(t, stubRunner{})
	job := e.createJob(t)
	assert.Equal(t, model.StatusActive, job.Status)
	assert.True(t, job.DatePosted.Equal(now))
	assert.NotEmpty(t, job.ExternalID)
}

func TestCreateJob_Forbidden(t *testing.T) {
	e := setup(t, stubRunner{})
	rec := e.do(t, http.MethodPost, "/jobs", "", `{"company":"Acme"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPost, "/jobs", "nobody", `{"company":"Acme"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateJob_Invalid(t *testing.T) {
	e := setup(t, stubRunner{})
	rec := e.do(t, http.MethodPost, "/jobs", "recruiter", `{"company":"Acme","role":"SRE","hiringLink":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "hiringLink")

	rec = e.do(t, http.MethodPost, "/jobs", "recruiter", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJob_DuplicateExternalID(t *testing.T) {
	e := setup(t, stubRunner{})
	body := `{"externalId":"ACME-1","company":"Acme","role":"SRE","hiringLink":"https://acme.example/apply"}`

	rec := e.do(t, http.MethodPost, "/jobs", "recruiter", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, http.MethodPost, "/jobs", "recruiter", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "ACME-1")
}

func TestGetJob_CountsViewForActive(t *testing.T) {
	e := setup(t, stubRunner{})
	job := e.createJob(t)

	rec := e.do(t, http.MethodGet, "/jobs/"+job.ID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decode[model.Job](t, rec).Views)

	reports, err := e.agg.RangeQuery(context.Background(), now, now)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Len(t, reports[0].JobViews, 1)
	assert.Equal(t, int64(1), reports[0].JobViews[0].Count)
}

func TestGetJob_HiddenFromAnonymousWhenNotActive(t *testing.T) {
	e := setup(t, stubRunner{})
	job := e.createJob(t)
	_, err := e.engine.MoveToDump(context.Background(), job.ID)
	require.NoError(t, err)

	rec := e.do(t, http.MethodGet, "/jobs/"+job.ID, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodGet, "/jobs/"+job.ID, "recruiter", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[model.Job](t, rec)
	assert.Equal(t, model.StatusDump, got.Status)
	assert.Zero(t, got.Views)
}

func TestGetJob_NotFound(t *testing.T) {
	e := setup(t, stubRunner{})
	rec := e.do(t, http.MethodGet, "/jobs/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "job missing not found", decode[map[string]string](t, rec)["error"])
}

func TestListJobs(t *testing.T) {
	e := setup(t, stubRunner{})
	a := e.createJob(t)
	b := e.createJob(t)
	_, err := e.engine.MoveToInactive(context.Background(), b.ID)
	require.NoError(t, err)

	rec := e.do(t, http.MethodGet, "/jobs", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := decode[[]model.Job](t, rec)
	require.Len(t, jobs, 1)
	assert.Equal(t, a.ID, jobs[0].ID)

	rec = e.do(t, http.MethodGet, "/jobs?status=inactive", "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, "/jobs?status=inactive", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	jobs = decode[[]model.Job](t, rec)
	require.Len(t, jobs, 1)
	assert.Equal(t, b.ID, jobs[0].ID)

	rec = e.do(t, http.MethodGet, "/jobs", "admin", "")
	assert.Len(t, decode[[]model.Job](t, rec), 2)

	rec = e.do(t, http.MethodGet, "/jobs?status=archived", "admin", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClick(t *testing.T) {
	e := setup(t, stubRunner{})
	job := e.createJob(t)

	rec := e.do(t, http.MethodPost, "/jobs/"+job.ID+"/click", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "https://acme.example/apply", body["hiringLink"])
	assert.Equal(t, 1.0, body["clicks"])

	rec = e.do(t, http.MethodGet, "/jobs/"+job.ID+"/click", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	_, err := e.engine.MoveToDump(context.Background(), job.ID)
	require.NoError(t, err)
	rec = e.do(t, http.MethodPost, "/jobs/"+job.ID+"/click", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManualTransitions(t *testing.T) {
	e := setup(t, stubRunner{})
	job := e.createJob(t)

	rec := e.do(t, http.MethodPost, "/jobs/"+job.ID+"/dump", "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	for _, step := range []struct {
		action string
		want   model.Status
	}{
		{"dump", model.StatusDump},
		{"inactive", model.StatusInactive},
		{"reactivate", model.StatusActive},
	} {
		e.clock.Advance(time.Hour)
		rec := e.do(t, http.MethodPost, "/jobs/"+job.ID+"/"+step.action, "recruiter", "")
		require.Equal(t, http.StatusOK, rec.Code, step.action)
		got := decode[model.Job](t, rec)
		assert.Equal(t, step.want, got.Status, step.action)
		assert.True(t, got.LastStatusChange.Equal(e.clock.Now()), step.action)
	}

	rec = e.do(t, http.MethodPost, "/jobs/missing/dump", "recruiter", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/jobs/"+job.ID+"/archive", "recruiter", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ── Analytics ──────────────────────────────────────────────────────────────

func TestRecordVisit(t *testing.T) {
	e := setup(t, stubRunner{})

	rec := e.do(t, http.MethodPost, "/visits", "", `{"clientId":"c1"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = e.do(t, http.MethodPost, "/visits", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	d, err := e.agg.Dashboard(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.TotalVisits)
	assert.Equal(t, int64(1), d.Browsers[analytics.BrowserFirefox])
}

func TestRunTransitions(t *testing.T) {
	e := setup(t, stubRunner{ran: true})

	rec := e.do(t, http.MethodPost, "/admin/transitions/run", "recruiter", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPost, "/admin/transitions/run", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, lifecycle.TransitionResult{MovedToDump: 1}, decode[lifecycle.TransitionResult](t, rec))
}

type failingRunner struct{}

func (failingRunner) RunNow(context.Context) (lifecycle.TransitionResult, bool, error) {
	return lifecycle.TransitionResult{}, true, apperr.StorageFailure("move active jobs", errors.New("db down"))
}

func TestRunTransitions_StorageFailureLogsStack(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	clk := clock.NewFixed(now)
	store := lifecycle.NewMemoryStore()
	mux := http.NewServeMux()
	agg := analytics.NewAggregator(analytics.NewMemoryStore(), store, clk, zap.NewNop())
	httpapi.NewHandler(lifecycle.NewEngine(store, clk, nil, zap.NewNop()), agg, failingRunner{}, clk, zap.New(core)).RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/admin/transitions/run", nil)
	req.Header.Set("x-user-role", "admin")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	entries := logs.FilterMessage("storage failure").All()
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ContextMap()["stack"])
}

func TestRunTransitions_AlreadyRunning(t *testing.T) {
	e := setup(t, stubRunner{ran: false})
	rec := e.do(t, http.MethodPost, "/admin/transitions/run", "admin", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDashboard(t *testing.T) {
	e := setup(t, stubRunner{})
	job := e.createJob(t)
	e.do(t, http.MethodPost, "/visits", "", `{"clientId":"c1"}`)
	e.do(t, http.MethodGet, "/jobs/"+job.ID, "", "")
	e.do(t, http.MethodGet, "/jobs/"+job.ID, "", "")
	e.do(t, http.MethodPost, "/jobs/"+job.ID+"/click", "", "")

	rec := e.do(t, http.MethodGet, "/analytics/dashboard?days=7", "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, "/analytics/dashboard?days=7", "analyst", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[analytics.Dashboard](t, rec)
	assert.Equal(t, 7, d.Days)
	assert.Equal(t, int64(1), d.TotalVisits)
	assert.Equal(t, int64(2), d.TotalJobViews)
	assert.Equal(t, int64(1), d.TotalJobClicks)
	assert.Equal(t, 50.0, d.ConversionRate)

	rec = e.do(t, http.MethodGet, "/analytics/dashboard?days=0", "analyst", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.do(t, http.MethodGet, "/analytics/dashboard?days=week", "analyst", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRangeReport(t *testing.T) {
	e := setup(t, stubRunner{})
	e.do(t, http.MethodPost, "/visits", "", `{"clientId":"c1"}`)

	rec := e.do(t, http.MethodGet, "/analytics/range?start=2026-03-01&end=2026-03-31", "analyst", "")
	require.Equal(t, http.StatusOK, rec.Code)
	reports := decode[[]analytics.DailyReport](t, rec)
	require.Len(t, reports, 1)
	assert.Equal(t, int64(1), reports[0].UniqueVisitors)

	rec = e.do(t, http.MethodGet, "/analytics/range?start=2026-03-31&end=2026-03-01", "analyst", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.do(t, http.MethodGet, "/analytics/range?start=yesterday&end=2026-03-01", "analyst", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportCSV(t *testing.T) {
	e := setup(t, stubRunner{})
	e.do(t, http.MethodPost, "/visits", "", `{"clientId":"c1"}`)

	rec := e.do(t, http.MethodGet, "/analytics/export.csv?start=2026-03-10&end=2026-03-10", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "analytics_2026-03-10_2026-03-10.csv")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "date,website_visits"))
	assert.Contains(t, rec.Body.String(), "2026-03-10,1,1,0,0,0.00")
}
