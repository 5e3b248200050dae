package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/salesdash/internal/analytics"
	"github.com/kalambet/salesdash/internal/forecast"
	"github.com/kalambet/salesdash/internal/storage"
)

const genericErrorMessage = "An unexpected error occurred. Please try again later."

// JobStore is the slice of the job queue the API needs.
type JobStore interface {
	EnqueueJob(job storage.Job) error
	GetJob(id string) (storage.Job, error)
}

// Pinger reports store liveness for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Service        *analytics.Service
	Jobs           JobStore
	Store          Pinger // optional
	CSVPath        string
	Version        string
	DefaultHorizon int
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewHandler returns the sales dashboard REST API.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.DefaultHorizon <= 0 {
		deps.DefaultHorizon = 30
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	if deps.RequestTimeout > 0 {
		r.Use(middleware.Timeout(deps.RequestTimeout))
	}

	r.Get("/", handleRoot(deps))
	r.Get("/health", handleHealth(deps))

	r.Route("/api", func(r chi.Router) {
		r.Route("/sales", func(r chi.Router) {
			r.Get("/dashboard", handleDashboard(deps))
			r.Get("/summary", handleSummary(deps))
			r.Get("/by-category", handleByCategory(deps))
			r.Get("/by-region", handleByRegion(deps))
			r.Get("/by-customer-segment", handleBySegment(deps))
			r.Get("/time-series", handleTimeSeries(deps))
			r.Get("/top-products", handleTopProducts(deps))
		})
		r.Route("/forecasts", func(r chi.Router) {
			r.Get("/sales", handleForecastSales(deps))
			r.Get("/by-category", handleForecastsByCategory(deps))
			r.Get("/by-region", handleForecastsByRegion(deps))
			r.Get("/seasonality", handleSeasonality(deps))
			r.Get("/methods", handleForecastMethods(deps))
		})
		r.Post("/init-db", handleInitDB(deps))
		r.Get("/jobs/{id}", handleGetJob(deps))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusNotFound, "not_found", "route %s not found", r.URL.Path)
	})

	return r
}

func handleRoot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "Sales Dashboard API",
			"version": deps.Version,
		})
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store != nil {
			if err := deps.Store.Ping(r.Context()); err != nil {
				deps.Logger.Error("health check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status":  "unhealthy",
					"version": deps.Version,
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"version": deps.Version,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeError maps service errors onto status codes. Anything unrecognised is
// logged and reported with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var ve *analytics.ValidationError
	switch {
	case errors.As(err, &ve):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", ve.Error())
	case errors.Is(err, forecast.ErrInsufficientData):
		httpError(w, http.StatusUnprocessableEntity, "insufficient_data", "%s", err.Error())
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "resource not found")
	default:
		logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", genericErrorMessage)
	}
}
