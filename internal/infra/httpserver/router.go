package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	appchecks "github.com/bryanwahyu/checkflow/internal/application/checks"
	"github.com/bryanwahyu/checkflow/internal/application/intake"
	"github.com/bryanwahyu/checkflow/internal/domain/capture"
	domain "github.com/bryanwahyu/checkflow/internal/domain/checks"
	"github.com/bryanwahyu/checkflow/internal/metrics"
	"github.com/bryanwahyu/checkflow/internal/middleware"
)

const maxCaptureBytes = 64 << 20

// Deps are the collaborators the HTTP surface is built from. Only Checks
// and Intake are required.
type Deps struct {
	Checks  *appchecks.Service
	Intake  *intake.Worker
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Operators maps API keys to operator names; empty disables auth.
	Operators    map[string]string
	Health       map[string]middleware.HealthChecker
	Ready        map[string]middleware.HealthChecker
	CaptureLimit *middleware.RateLimiter
	CORSOrigins  []string
}

type Router struct {
	checks *appchecks.Service
	intake *intake.Worker
	log    logrus.FieldLogger
}

func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	r := &Router{checks: d.Checks, intake: d.Intake, log: d.Log}

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	mux.Use(middleware.LoggingMiddleware(d.Log))
	mux.Use(middleware.MetricsMiddleware(d.Metrics))
	mux.Use(middleware.APIKeyAuth(d.Operators))

	mux.Get("/health", middleware.HealthHandler(d.Health))
	mux.Get("/ready", middleware.ReadinessHandler(d.Ready))
	mux.Get("/live", middleware.LivenessHandler)
	if d.Gatherer != nil {
		mux.Handle("/metrics", middleware.MetricsHandler(d.Gatherer))
	}

	mux.Route("/v1", func(rt chi.Router) {
		rt.Group(func(g chi.Router) {
			if d.CaptureLimit != nil {
				g.Use(middleware.RateLimitMiddleware(d.CaptureLimit))
			}
			g.Post("/captures", r.wrap(r.handleCapture))
			g.Post("/scanner/scan", r.wrap(r.handleScan))
		})

		rt.Get("/checks", r.wrap(r.handleList))
		rt.Post("/checks/validate-all", r.wrap(r.handleValidateAll))
		rt.Get("/checks/{id}", r.wrap(r.handleGet))
		rt.Patch("/checks/{id}/status", r.wrap(r.handleUpdateStatus))
		rt.Delete("/checks/{id}", r.wrap(r.handleDelete))

		rt.Get("/view", r.wrap(r.handleView))
		rt.Put("/view/filters", r.wrap(r.handleSetFilter))
		rt.Delete("/view/filters", r.wrap(r.handleClearFilters))
		rt.Delete("/view/filters/{field}", r.wrap(r.handleRemoveFilter))
		rt.Put("/view/sort", r.wrap(r.handleSetSort))
		rt.Put("/view/search", r.wrap(r.handleSetSearch))
		rt.Put("/view/page", r.wrap(r.handleSetPage))
		rt.Put("/view/scope", r.wrap(r.handleSetScope))

		rt.Get("/stats", r.wrap(r.handleStats))
		rt.Get("/errors/last", r.wrap(r.handleLastError))
		rt.Delete("/errors/last", r.wrap(r.handleClearLastError))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var (
			reqErr *middleware.RequestError
			ingest *domain.IngestError
			extr   *domain.ExtractionError
		)
		body := errorBody{Error: err.Error()}
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrNotFound):
			code = http.StatusNotFound
		case errors.Is(err, domain.ErrInvalidTransition):
			code = http.StatusConflict
		case errors.Is(err, domain.ErrInvalidStatus):
			code = http.StatusBadRequest
		case errors.As(err, &reqErr):
			code = http.StatusBadRequest
			body.Fields = reqErr.Fields
		case errors.As(err, &ingest), errors.As(err, &extr):
			code = http.StatusUnprocessableEntity
		}
		if code == http.StatusInternalServerError {
			r.log.WithFields(logrus.Fields{"path": req.URL.Path, "error": err}).Error("request failed")
		}
		writeJSON(w, code, body)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

func badRequest(err error) error {
	return &middleware.RequestError{Err: err}
}

// POST /v1/captures
// Body: one capture event, as sent on the scanner feed.
func (r *Router) handleCapture(w http.ResponseWriter, req *http.Request) error {
	data, err := io.ReadAll(io.LimitReader(req.Body, maxCaptureBytes))
	if err != nil {
		return badRequest(err)
	}
	ev, err := capture.DecodeEvent(data)
	if err != nil {
		r.checks.RecordFailure(req.Context(), err)
		return err
	}
	c, err := r.intake.Handle(req.Context(), ev)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, newCheckView(c))
}

// POST /v1/scanner/scan
// A closed command channel is reported in the body, not as an error.
func (r *Router) handleScan(w http.ResponseWriter, req *http.Request) error {
	sent := r.checks.RequestScan(req.Context())
	return writeJSON(w, http.StatusAccepted, map[string]any{
		"command": appchecks.CommandScan,
		"sent":    sent,
	})
}

// GET /v1/checks?scope=&search=&filter=field:op:value&sort=&order=&page=&limit=
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	q, err := parseListQuery(req)
	if err != nil {
		return err
	}
	res, err := r.checks.Fetch(req.Context(), q)
	if err != nil {
		return badRequest(err)
	}
	return writeJSON(w, http.StatusOK, newPageView(res))
}

// GET /v1/checks/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	c, err := r.checks.Get(req.Context(), domain.CheckID(chi.URLParam(req, "id")))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, newCheckView(c))
}

type statusRequest struct {
	Status string `json:"status" validate:"required,checkstatus"`
	Notes  string `json:"notes" validate:"max=2000"`
}

// PATCH /v1/checks/{id}/status
func (r *Router) handleUpdateStatus(w http.ResponseWriter, req *http.Request) error {
	var body statusRequest
	if err := middleware.DecodeJSON(req, &body); err != nil {
		return err
	}
	by := appchecks.Actor{
		Operator: middleware.GetOperatorFromContext(req.Context()),
		Notes:    middleware.SanitizeString(body.Notes),
	}
	if err := r.checks.UpdateStatus(req.Context(), domain.CheckID(chi.URLParam(req, "id")), domain.Status(body.Status), by); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// DELETE /v1/checks/{id}
func (r *Router) handleDelete(w http.ResponseWriter, req *http.Request) error {
	if err := r.checks.Delete(req.Context(), domain.CheckID(chi.URLParam(req, "id"))); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /v1/checks/validate-all
// Per-record failures are listed in the body; the batch itself succeeds.
func (r *Router) handleValidateAll(w http.ResponseWriter, req *http.Request) error {
	by := appchecks.Actor{Operator: middleware.GetOperatorFromContext(req.Context())}
	n, err := r.checks.ValidateAll(req.Context(), by)
	failures := map[string]string{}
	if err != nil {
		var be *domain.BatchError
		if !errors.As(err, &be) {
			return err
		}
		for id, ferr := range be.Failures {
			failures[string(id)] = ferr.Error()
		}
	}
	return writeJSON(w, http.StatusOK, map[string]any{"validated": n, "errors": failures})
}

// GET /v1/view
func (r *Router) handleView(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, newViewStateView(r.checks.View()))
}

func (r *Router) viewResult(w http.ResponseWriter, st appchecks.ViewState, err error) error {
	if err != nil {
		return badRequest(err)
	}
	return writeJSON(w, http.StatusOK, newViewStateView(st))
}

type filterRequest struct {
	Field    string `json:"field" validate:"required,checkfield"`
	Operator string `json:"operator" validate:"required,oneof=eq neq gt gte lt lte contains"`
	Value    string `json:"value"`
}

// PUT /v1/view/filters
func (r *Router) handleSetFilter(w http.ResponseWriter, req *http.Request) error {
	var body filterRequest
	if err := middleware.DecodeJSON(req, &body); err != nil {
		return err
	}
	st, err := r.checks.SetFilter(domain.Filter{Field: body.Field, Op: domain.Operator(body.Operator), Value: body.Value})
	return r.viewResult(w, st, err)
}

// DELETE /v1/view/filters/{field}
func (r *Router) handleRemoveFilter(w http.ResponseWriter, req *http.Request) error {
	st, err := r.checks.RemoveFilter(chi.URLParam(req, "field"))
	return r.viewResult(w, st, err)
}

// DELETE /v1/view/filters
func (r *Router) handleClearFilters(w http.ResponseWriter, req *http.Request) error {
	st, err := r.checks.ClearFilters()
	return r.viewResult(w, st, err)
}

type sortRequest struct {
	Field string `json:"field" validate:"omitempty,checkfield"`
	Order string `json:"order" validate:"required,oneof=asc desc"`
}

// PUT /v1/view/sort
func (r *Router) handleSetSort(w http.ResponseWriter, req *http.Request) error {
	var body sortRequest
	if err := middleware.DecodeJSON(req, &body); err != nil {
		return err
	}
	st, err := r.checks.SetSort(domain.Sort{Field: body.Field, Order: domain.SortOrder(body.Order)})
	return r.viewResult(w, st, err)
}

type searchRequest struct {
	Search string `json:"search" validate:"max=200"`
}

// PUT /v1/view/search
func (r *Router) handleSetSearch(w http.ResponseWriter, req *http.Request) error {
	var body searchRequest
	if err := middleware.DecodeJSON(req, &body); err != nil {
		return err
	}
	st, err := r.checks.SetSearch(middleware.SanitizeString(body.Search))
	return r.viewResult(w, st, err)
}

type pageRequest struct {
	Page int `json:"page" validate:"required,gte=1"`
}

// PUT /v1/view/page
func (r *Router) handleSetPage(w http.ResponseWriter, req *http.Request) error {
	var body pageRequest
	if err := middleware.DecodeJSON(req, &body); err != nil {
		return err
	}
	st, err := r.checks.SetPage(body.Page)
	return r.viewResult(w, st, err)
}

type scopeRequest struct {
	Scope string `json:"scope" validate:"required,partition"`
}

// PUT /v1/view/scope
func (r *Router) handleSetScope(w http.ResponseWriter, req *http.Request) error {
	var body scopeRequest
	if err := middleware.DecodeJSON(req, &body); err != nil {
		return err
	}
	st, err := r.checks.SetScope(domain.Partition(body.Scope))
	return r.viewResult(w, st, err)
}

// GET /v1/stats?recent=5
func (r *Router) handleStats(w http.ResponseWriter, req *http.Request) error {
	recent, _ := strconv.Atoi(req.URL.Query().Get("recent"))
	return writeJSON(w, http.StatusOK, newStatsView(r.checks.Stats(recent)))
}

// GET /v1/errors/last
func (r *Router) handleLastError(w http.ResponseWriter, req *http.Request) error {
	msg, err := r.checks.LastError(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]string{"error": msg})
}

// DELETE /v1/errors/last
func (r *Router) handleClearLastError(w http.ResponseWriter, req *http.Request) error {
	if err := r.checks.ClearLastError(req.Context()); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
