// Package httpapi implements the HTTP handlers for the listing service.
//
// The caller's role comes from the x-user-role header forwarded by the
// Gateway; no header means an anonymous visitor.
//
// Routes:
//
//	GET  /jobs[?status=]                   → list jobs (anonymous: active only)
//	POST /jobs                             → create a job
//	GET  /jobs/{id}                        → job detail, counts a view when active
//	POST /jobs/{id}/click                  → count a click, return the hiring link
//	POST /jobs/{id}/reactivate|dump|inactive → manual lifecycle transition
//	POST /visits                           → record a site visit
//	POST /admin/transitions/run            → run a lifecycle pass now
//	GET  /analytics/dashboard?days=N       → rollup of the last N days
//	GET  /analytics/range?start=&end=      → daily reports, dates as YYYY-MM-DD
//	GET  /analytics/export.csv?start=&end= → daily reports as CSV
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobmate/listing-service/internal/access"
	"jobmate/listing-service/internal/analytics"
	"jobmate/listing-service/internal/clock"
	apperr "jobmate/listing-service/internal/errors"
	"jobmate/listing-service/internal/lifecycle"
	"jobmate/listing-service/internal/model"
)

const dateLayout = "2006-01-02"

// Jobs is the part of the lifecycle engine the handlers call.
type Jobs interface {
	CreateJob(ctx context.Context, in lifecycle.JobInput) (*model.Job, error)
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, status string) ([]model.Job, error)
	IncrementView(ctx context.Context, id string) (*model.Job, error)
	IncrementClick(ctx context.Context, id string) (*model.Job, error)
	ReactivateJob(ctx context.Context, id string) (*model.Job, error)
	MoveToDump(ctx context.Context, id string) (*model.Job, error)
	MoveToInactive(ctx context.Context, id string) (*model.Job, error)
}

// Analytics is the aggregator as seen by the handlers.
type Analytics interface {
	RecordVisit(ctx context.Context, clientID, userAgent string, now time.Time)
	RecordJobView(ctx context.Context, jobID string, now time.Time)
	RecordJobClick(ctx context.Context, jobID string, now time.Time)
	RangeQuery(ctx context.Context, start, end time.Time) ([]analytics.DailyReport, error)
	Dashboard(ctx context.Context, days int) (*analytics.Dashboard, error)
}

// Runner triggers an on-demand lifecycle pass.
type Runner interface {
	RunNow(ctx context.Context) (lifecycle.TransitionResult, bool, error)
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	jobs      Jobs
	analytics Analytics
	runner    Runner
	clock     clock.Clock
	logger    *zap.Logger
}

// NewHandler returns a configured Handler.
func NewHandler(jobs Jobs, agg Analytics, runner Runner, clk clock.Clock, logger *zap.Logger) *Handler {
	return &Handler{jobs: jobs, analytics: agg, runner: runner, clock: clk, logger: logger}
}

// RegisterRoutes mounts all listing-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/jobs", h.handleJobs)
	mux.HandleFunc("/jobs/", h.handleJobAction)
	mux.HandleFunc("/visits", h.require(http.MethodPost, access.RecordAnalytics, h.recordVisit))
	mux.HandleFunc("/admin/transitions/run", h.require(http.MethodPost, access.RunTransitions, h.runTransitions))
	mux.HandleFunc("/analytics/dashboard", h.require(http.MethodGet, access.ReadAnalytics, h.dashboard))
	mux.HandleFunc("/analytics/range", h.require(http.MethodGet, access.ReadAnalytics, h.rangeReport))
	mux.HandleFunc("/analytics/export.csv", h.require(http.MethodGet, access.ReadAnalytics, h.exportCSV))
}

// ─── Route dispatch ──────────────────────────────────────────────────────────

// handleJobs handles GET|POST /jobs
func (h *Handler) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.require(http.MethodGet, access.ReadJobs, h.listJobs)(w, r)
	case http.MethodPost:
		h.require(http.MethodPost, access.WriteJobs, h.createJob)(w, r)
	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobAction handles GET /jobs/{id} and POST /jobs/{id}/{action}
func (h *Handler) handleJobAction(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch len(parts) {
	case 2:
		h.require(http.MethodGet, access.ReadJobs, func(w http.ResponseWriter, r *http.Request) {
			h.getJob(w, r, parts[1])
		})(w, r)
		return
	case 3:
	default:
		jsonError(w, "invalid path", http.StatusNotFound)
		return
	}

	jobID, action := parts[1], parts[2]
	switch action {
	case "click":
		h.require(http.MethodPost, access.RecordAnalytics, func(w http.ResponseWriter, r *http.Request) {
			h.click(w, r, jobID)
		})(w, r)
	case "reactivate", "dump", "inactive":
		h.require(http.MethodPost, access.TransitionJobs, func(w http.ResponseWriter, r *http.Request) {
			h.transition(w, r, jobID, action)
		})(w, r)
	default:
		jsonError(w, fmt.Sprintf("unknown action %q", action), http.StatusNotFound)
	}
}

// require wraps next with a method check and a capability check against the
// caller's role.
func (h *Handler) require(method string, c access.Capability, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		role := r.Header.Get(access.RoleHeader)
		if !access.Known(role) {
			jsonError(w, "unknown role", http.StatusUnauthorized)
			return
		}
		if !access.Allowed(role, c) {
			jsonError(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// ─── Jobs ────────────────────────────────────────────────────────────────────

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if !access.Allowed(r.Header.Get(access.RoleHeader), access.TransitionJobs) {
		if status != "" && status != string(model.StatusActive) {
			jsonError(w, "forbidden", http.StatusForbidden)
			return
		}
		status = string(model.StatusActive)
	}

	jobs, err := h.jobs.ListJobs(r.Context(), status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, jobs)
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.JobInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	job, err := h.jobs.CreateJob(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonStatus(w, http.StatusCreated, job)
}

// getJob returns a job. Anonymous callers only see active jobs; a view is
// counted only for active jobs.
func (h *Handler) getJob(w http.ResponseWriter, r *http.Request, id string) {
	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if job.Status != model.StatusActive {
		if !access.Allowed(r.Header.Get(access.RoleHeader), access.TransitionJobs) {
			jsonError(w, "job not found", http.StatusNotFound)
			return
		}
		jsonOK(w, job)
		return
	}

	viewed, err := h.jobs.IncrementView(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.analytics.RecordJobView(r.Context(), id, h.clock.Now())
	jsonOK(w, viewed)
}

// click counts an outbound click on an active job and returns where to go.
func (h *Handler) click(w http.ResponseWriter, r *http.Request, id string) {
	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if job.Status != model.StatusActive {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}

	clicked, err := h.jobs.IncrementClick(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.analytics.RecordJobClick(r.Context(), id, h.clock.Now())
	jsonOK(w, map[string]any{
		"hiringLink": clicked.HiringLink,
		"clicks":     clicked.Clicks,
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, id, action string) {
	var (
		job *model.Job
		err error
	)
	switch action {
	case "reactivate":
		job, err = h.jobs.ReactivateJob(r.Context(), id)
	case "dump":
		job, err = h.jobs.MoveToDump(r.Context(), id)
	case "inactive":
		job, err = h.jobs.MoveToInactive(r.Context(), id)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, job)
}

// ─── Analytics ───────────────────────────────────────────────────────────────

func (h *Handler) recordVisit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID string `json:"clientId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.ClientID) == "" {
		jsonError(w, "body must contain clientId", http.StatusBadRequest)
		return
	}
	h.analytics.RecordVisit(r.Context(), body.ClientID, r.UserAgent(), h.clock.Now())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) runTransitions(w http.ResponseWriter, r *http.Request) {
	res, ran, err := h.runner.RunNow(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !ran {
		jsonError(w, "a lifecycle pass is already running", http.StatusConflict)
		return
	}
	jsonOK(w, res)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			jsonError(w, "days must be an integer", http.StatusBadRequest)
			return
		}
		days = n
	}
	d, err := h.analytics.Dashboard(r.Context(), days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, d)
}

func (h *Handler) rangeReport(w http.ResponseWriter, r *http.Request) {
	start, end, ok := parseRange(w, r)
	if !ok {
		return
	}
	reports, err := h.analytics.RangeQuery(r.Context(), start, end)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, reports)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	start, end, ok := parseRange(w, r)
	if !ok {
		return
	}
	reports, err := h.analytics.RangeQuery(r.Context(), start, end)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="analytics_%s_%s.csv"`, start.Format(dateLayout), end.Format(dateLayout)))
	if err := analytics.WriteCSV(w, reports); err != nil {
		h.logger.Error("csv export failed", zap.Error(err))
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func parseRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	start, err := time.Parse(dateLayout, q.Get("start"))
	if err != nil {
		jsonError(w, "start must be YYYY-MM-DD", http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	end, err := time.Parse(dateLayout, q.Get("end"))
	if err != nil {
		jsonError(w, "end must be YYYY-MM-DD", http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// writeError maps domain errors to HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch apperr.TypeOf(err) {
	case apperr.ErrTypeNotFound:
		jsonError(w, apperr.MessageOf(err), http.StatusNotFound)
	case apperr.ErrTypeInvalidInput:
		jsonError(w, apperr.MessageOf(err), http.StatusBadRequest)
	case apperr.ErrTypeInvalidState:
		jsonError(w, apperr.MessageOf(err), http.StatusConflict)
	case apperr.ErrTypeStorageFailure:
		h.logger.Error("storage failure", zap.Error(err), zap.ByteString("stack", apperr.StackOf(err)))
		jsonError(w, "storage unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.Error("unexpected error", zap.Error(err))
		jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}

func jsonOK(w http.ResponseWriter, v any) {
	jsonStatus(w, http.StatusOK, v)
}

func jsonStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	jsonStatus(w, code, map[string]string{"error": msg})
}
