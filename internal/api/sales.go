package api

import (
	"net/http"
	"strconv"

	"github.com/kalambet/salesdash/internal/analytics"
)

// parseQuery reads the shared filter parameters.
func parseQuery(r *http.Request) analytics.Query {
	v := r.URL.Query()
	return analytics.Query{
		DateRange: v.Get("date_range"),
		StartDate: v.Get("start_date"),
		EndDate:   v.Get("end_date"),
		Category:  v.Get("category"),
		Region:    v.Get("region"),
		Segment:   v.Get("segment"),
	}
}

// parseIntParam returns defaultVal when key is absent and a validation error
// when it is not an integer. Range checks are left to the service.
func parseIntParam(r *http.Request, key string, defaultVal int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &analytics.ValidationError{Field: key, Message: "must be an integer", Err: err}
	}
	return v, nil
}

func handleDashboard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := deps.Service.Dashboard(r.Context(), parseQuery(r))
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func handleSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Service.SalesSummary(r.Context(), parseQuery(r))
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleByCategory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := deps.Service.SalesByCategory(r.Context(), parseQuery(r))
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func handleByRegion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := deps.Service.SalesByRegion(r.Context(), parseQuery(r))
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func handleBySegment(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := deps.Service.SalesBySegment(r.Context(), parseQuery(r))
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func handleTimeSeries(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ts, err := deps.Service.SalesTimeSeries(r.Context(), parseQuery(r))
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, ts)
	}
}

func handleTopProducts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseIntParam(r, "limit", 0)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		rows, err := deps.Service.TopProducts(r.Context(), parseQuery(r), limit)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}
