// Package httpapi serves the raid tools as a JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rsned/raid-optimizer-server/internal/raid/catalog"
	"github.com/rsned/raid-optimizer-server/internal/raid/db"
	"github.com/rsned/raid-optimizer-server/internal/raid/metrics"
	"github.com/rsned/raid-optimizer-server/internal/raid/service"
	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

// Options configures the router.
type Options struct {
	// RequestTimeout bounds every request, including the solve. Zero disables it.
	RequestTimeout time.Duration
	// MaxBodyBytes caps request bodies. Zero means 1 MiB.
	MaxBodyBytes int64
	// Metrics, when set, records per-route status codes and serves /metrics.
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// ErrorBody is the JSON body of every non-2xx response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

type api struct {
	svc     *service.Service
	maxBody int64
	logger  *slog.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(svc *service.Service, opts Options) http.Handler {
	a := &api{svc: svc, maxBody: opts.MaxBodyBytes, logger: opts.Logger}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(instrument(opts.Metrics))
	}
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/catalog", a.getCatalog)
	r.Get("/resolve", a.getResolve)
	r.Post("/resources", a.postResources)
	r.Post("/damage", a.postDamage)
	r.Post("/optimizer", a.postOptimizer)
	r.Get("/plans", a.listPlans)
	r.Get("/plans/{id}", a.getPlan)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}
	return r
}

// instrument counts responses by route pattern and status code.
func instrument(rec *metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			rec.ObserveRequest(route, code)
		})
	}
}

func (a *api) getCatalog(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.svc.Catalog())
}

func (a *api) getResolve(w http.ResponseWriter, r *http.Request) {
	req := raid.ResolveRequest{
		Kind: r.URL.Query().Get("kind"),
		Name: r.URL.Query().Get("name"),
	}
	if req.Kind != catalog.KindExplosive && req.Kind != catalog.KindStructure {
		a.writeError(w, http.StatusBadRequest, ErrorBody{
			Error:   "BadRequest",
			Message: "kind must be explosive or structure",
		})
		return
	}
	res, err := a.svc.Resolve(req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, res)
}

type resourcesBody struct {
	raid.ResourcesArgs
	Lines []raid.ResourcesArgs `json:"lines,omitempty"`
}

func (a *api) postResources(w http.ResponseWriter, r *http.Request) {
	var body resourcesBody
	if !a.decode(w, r, &body) {
		return
	}
	var (
		resp any
		err  error
	)
	if len(body.Lines) > 0 {
		resp, err = a.svc.Batch(r.Context(), body.Lines)
	} else {
		resp, err = a.svc.Resources(r.Context(), body.ResourcesArgs)
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *api) postDamage(w http.ResponseWriter, r *http.Request) {
	var body raid.DamageRequest
	if !a.decode(w, r, &body) {
		return
	}
	resp, err := a.svc.Damage(r.Context(), body)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *api) postOptimizer(w http.ResponseWriter, r *http.Request) {
	var body raid.OptimizeArgs
	if !a.decode(w, r, &body) {
		return
	}
	result, err := a.svc.Optimize(r.Context(), body)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if result.PlanID != "" {
		w.Header().Set("Location", "/plans/"+result.PlanID)
		status = http.StatusCreated
	}
	a.writeJSON(w, status, result)
}

func (a *api) listPlans(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			a.writeError(w, http.StatusBadRequest, ErrorBody{
				Error:   "BadRequest",
				Message: "limit must be a positive integer",
				ID:      v,
			})
			return
		}
		limit = n
	}
	plans, err := a.svc.Plans(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
}

func (a *api) getPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := a.svc.Plan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, plan)
}

// decode reads a JSON body, writing a 400 or 413 on failure.
func (a *api) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, a.maxBody))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.writeError(w, http.StatusRequestEntityTooLarge, ErrorBody{
				Error:   "BodyTooLarge",
				Message: err.Error(),
			})
			return false
		}
		a.writeError(w, http.StatusBadRequest, ErrorBody{
			Error:   "BadRequest",
			Message: "invalid request body: " + err.Error(),
		})
		return false
	}
	return true
}

// StatusFor maps a service error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case raid.IsInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrPlanNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPlansDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, raid.ErrSolverInfeasible):
		return http.StatusUnprocessableEntity
	case errors.Is(err, raid.ErrSolverTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err)
	}
	a.writeError(w, status, ErrorBody{
		Error:   service.ErrorKind(err),
		Message: err.Error(),
		ID:      raid.OffendingID(err),
	})
}

func (a *api) writeError(w http.ResponseWriter, status int, body ErrorBody) {
	a.writeJSON(w, status, body)
}

func (a *api) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("failed to encode response", "error", err)
	}
}
