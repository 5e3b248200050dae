package analytics

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/salesdash/internal/aggregate"
	"github.com/kalambet/salesdash/internal/forecast"
)

func (s *Service) forecastArgs(q Query, horizon int, method string) (Resolved, error) {
	r, err := s.Resolve(q)
	if err != nil {
		return Resolved{}, err
	}
	if err := s.check(forecastParams{Horizon: horizon}); err != nil {
		return Resolved{}, err
	}
	if _, err := s.engine.Lookup(method); err != nil {
		return Resolved{}, invalid("method", err)
	}
	return r, nil
}

func (s *Service) observations(ctx context.Context, f aggregate.Filter) ([]forecast.Observation, error) {
	daily, err := s.repo.DailySeries(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("loading daily series: %w", err)
	}
	obs := make([]forecast.Observation, len(daily))
	for i, d := range daily {
		obs[i] = forecast.Observation{Date: d.Date, Value: d.Value}
	}
	return obs, nil
}

// ForecastSales forecasts total daily sales horizon days ahead.
func (s *Service) ForecastSales(ctx context.Context, q Query, horizon int, method string) (forecast.Result, error) {
	r, err := s.forecastArgs(q, horizon, method)
	if err != nil {
		return forecast.Result{}, err
	}
	obs, err := s.observations(ctx, r.Filter)
	if err != nil {
		return forecast.Result{}, err
	}
	return s.engine.Forecast(obs, horizon, method)
}

// ForecastsByCategory forecasts each category separately.
func (s *Service) ForecastsByCategory(ctx context.Context, q Query, horizon int, method string) (map[string]forecast.Result, error) {
	return s.forecastsBy(ctx, aggregate.DimCategory, q, horizon, method)
}

// ForecastsByRegion forecasts each region separately.
func (s *Service) ForecastsByRegion(ctx context.Context, q Query, horizon int, method string) (map[string]forecast.Result, error) {
	return s.forecastsBy(ctx, aggregate.DimRegion, q, horizon, method)
}

// forecastsBy runs one forecast per value of dim on a bounded pool. Groups
// without enough history are left out of the result.
func (s *Service) forecastsBy(ctx context.Context, dim aggregate.Dimension, q Query, horizon int, method string) (map[string]forecast.Result, error) {
	r, err := s.forecastArgs(q, horizon, method)
	if err != nil {
		return nil, err
	}
	groups, err := s.repo.Distinct(ctx, dim, r.Filter)
	if err != nil {
		return nil, fmt.Errorf("listing %s values: %w", dim, err)
	}

	results := make([]*forecast.Result, len(groups))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for i, group := range groups {
		g.Go(func() error {
			f := withDimension(r.Filter, dim, group)
			obs, err := s.observations(gCtx, f)
			if err != nil {
				return fmt.Errorf("%s %q: %w", dim, group, err)
			}
			res, err := s.engine.Forecast(obs, horizon, method)
			if errors.Is(err, forecast.ErrInsufficientData) {
				s.logger.Debug("skipping group with insufficient data", "dimension", dim, "group", group, "points", len(obs))
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s %q: %w", dim, group, err)
			}
			results[i] = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]forecast.Result, len(groups))
	for i, group := range groups {
		if results[i] != nil {
			out[group] = *results[i]
		}
	}
	return out, nil
}

func withDimension(f aggregate.Filter, dim aggregate.Dimension, value string) aggregate.Filter {
	switch dim {
	case aggregate.DimCategory:
		f.Category = value
	case aggregate.DimRegion:
		f.Region = value
	case aggregate.DimSegment:
		f.Segment = value
	}
	return f
}

// AnalyzeSeasonality returns the weekly, monthly and quarterly effects of the
// filtered daily series.
func (s *Service) AnalyzeSeasonality(ctx context.Context, q Query) (forecast.Profile, error) {
	r, err := s.Resolve(q)
	if err != nil {
		return forecast.Profile{}, err
	}
	obs, err := s.observations(ctx, r.Filter)
	if err != nil {
		return forecast.Profile{}, err
	}
	if len(obs) < forecast.MinProfilePoints {
		s.logger.Warn("not enough data for seasonality analysis", "points", len(obs))
	}
	return s.engine.Profile(obs), nil
}
