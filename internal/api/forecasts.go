package api

import (
	"net/http"
)

func forecastParams(r *http.Request, deps Deps) (int, string, error) {
	horizon, err := parseIntParam(r, "forecast_periods", deps.DefaultHorizon)
	if err != nil {
		return 0, "", err
	}
	return horizon, r.URL.Query().Get("method"), nil
}

func handleForecastSales(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		horizon, method, err := forecastParams(r, deps)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		res, err := deps.Service.ForecastSales(r.Context(), parseQuery(r), horizon, method)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleForecastsByCategory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		horizon, method, err := forecastParams(r, deps)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		res, err := deps.Service.ForecastsByCategory(r.Context(), parseQuery(r), horizon, method)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleForecastsByRegion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		horizon, method, err := forecastParams(r, deps)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		res, err := deps.Service.ForecastsByRegion(r.Context(), parseQuery(r), horizon, method)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleSeasonality(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Service.AnalyzeSeasonality(r.Context(), parseQuery(r))
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleForecastMethods(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e := deps.Service.Engine()
		writeJSON(w, http.StatusOK, map[string]any{
			"methods": e.Methods(),
			"aliases": e.Aliases(),
			"default": e.DefaultMethod(),
		})
	}
}
