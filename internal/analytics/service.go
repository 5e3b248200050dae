// Package analytics answers sales questions: it resolves a caller's filters,
// runs the aggregate queries, derives KPIs and drives the forecast engine.
package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kalambet/salesdash/internal/aggregate"
	"github.com/kalambet/salesdash/internal/daterange"
	"github.com/kalambet/salesdash/internal/forecast"
	"github.com/kalambet/salesdash/internal/metrics"
)

// Repository is the aggregate store the service reads from.
type Repository interface {
	Totals(ctx context.Context, f aggregate.Filter) (aggregate.Totals, error)
	Breakdown(ctx context.Context, dim aggregate.Dimension, f aggregate.Filter) ([]aggregate.BreakdownRow, error)
	Segments(ctx context.Context, f aggregate.Filter) ([]aggregate.SegmentRow, error)
	TopProducts(ctx context.Context, f aggregate.Filter, limit int) ([]aggregate.ProductRow, error)
	Series(ctx context.Context, bucket aggregate.Bucket, f aggregate.Filter) ([]aggregate.SeriesPoint, error)
	DailySeries(ctx context.Context, f aggregate.Filter) ([]aggregate.DailyValue, error)
	Distinct(ctx context.Context, dim aggregate.Dimension, f aggregate.Filter) ([]string, error)
}

// Config tunes the service. Zero values select the defaults.
type Config struct {
	TopLimit      int  // default top-products limit
	Workers       int  // concurrent per-group forecasts
	DensifySeries bool // zero-fill missing days in the daily time series
}

// Service wires the date resolver, aggregate repository and forecast engine.
type Service struct {
	repo     Repository
	resolver *daterange.Resolver
	engine   *forecast.Engine
	cfg      Config
	logger   *slog.Logger
	validate *validator.Validate
}

func NewService(repo Repository, resolver *daterange.Resolver, engine *forecast.Engine, cfg Config, logger *slog.Logger) *Service {
	if resolver == nil {
		resolver = daterange.NewResolver(daterange.SystemClock{}, false)
	}
	if engine == nil {
		engine = forecast.NewEngine(forecast.Config{})
	}
	if cfg.TopLimit <= 0 {
		cfg.TopLimit = aggregate.DefaultTopLimit
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		resolver: resolver,
		engine:   engine,
		cfg:      cfg,
		logger:   logger,
		validate: newValidator(),
	}
}

// Engine exposes the forecast engine, e.g. to list methods.
func (s *Service) Engine() *forecast.Engine { return s.engine }

// SummaryTotals are the unformatted headline numbers.
type SummaryTotals struct {
	TotalSales        float64 `json:"total_sales"`
	AverageOrderValue float64 `json:"average_order_value"`
	OrderCount        int64   `json:"order_count"`
	TotalCustomers    int64   `json:"total_customers"`
}

// Summary is the KPI block with its previous-period comparison.
type Summary struct {
	KeyMetrics     []metrics.KeyMetric `json:"key_metrics"`
	Summary        SummaryTotals       `json:"summary"`
	Period         string              `json:"period"`
	PreviousPeriod string              `json:"previous_period,omitempty"`
}

// TimeSeries holds the three bucketings of one window.
type TimeSeries struct {
	Daily   []aggregate.SeriesPoint `json:"daily"`
	Weekly  []aggregate.SeriesPoint `json:"weekly"`
	Monthly []aggregate.SeriesPoint `json:"monthly"`
}

func emptyTimeSeries() TimeSeries {
	return TimeSeries{Daily: []aggregate.SeriesPoint{}, Weekly: []aggregate.SeriesPoint{}, Monthly: []aggregate.SeriesPoint{}}
}

// SalesSummary returns the four KPIs. Store failures are logged and yield
// zero-valued metrics.
func (s *Service) SalesSummary(ctx context.Context, q Query) (Summary, error) {
	r, err := s.Resolve(q)
	if err != nil {
		return Summary{}, err
	}
	sum, err := s.summary(ctx, r)
	if err != nil {
		s.logger.Error("sales summary query failed", "error", err)
		return buildSummary(r.Range, aggregate.Totals{}, aggregate.Totals{}, false), nil
	}
	return sum, nil
}

func (s *Service) summary(ctx context.Context, r Resolved) (Summary, error) {
	start := time.Now()
	cur, err := s.repo.Totals(ctx, r.Filter)
	if err != nil {
		return Summary{}, err
	}

	var prev aggregate.Totals
	prevRange, hasPrev := r.Range.Previous()
	if hasPrev {
		pf := r.Filter
		pf.Start, pf.End = prevRange.Start, prevRange.End
		if prev, err = s.repo.Totals(ctx, pf); err != nil {
			return Summary{}, err
		}
	}
	s.logger.Debug("summary computed", "period", r.Range.String(), "duration_ms", time.Since(start).Milliseconds())
	return buildSummary(r.Range, cur, prev, hasPrev), nil
}

func buildSummary(rng daterange.Range, cur, prev aggregate.Totals, hasPrev bool) Summary {
	curAOV := metrics.AverageOrderValue(cur.Sales, cur.Orders)
	prevAOV := metrics.AverageOrderValue(prev.Sales, prev.Orders)

	out := Summary{
		KeyMetrics: []metrics.KeyMetric{
			metrics.NewKeyMetric("Total Sales", cur.Sales, prev.Sales, metrics.FormatMoney),
			metrics.NewKeyMetric("Order Count", float64(cur.Orders), float64(prev.Orders), metrics.FormatCount),
			metrics.NewKeyMetric("Average Order Value", curAOV, prevAOV, metrics.FormatMoney),
			metrics.NewKeyMetric("Unique Customers", float64(cur.Customers), float64(prev.Customers), metrics.FormatCount),
		},
		Summary: SummaryTotals{
			TotalSales:        metrics.Round2(cur.Sales),
			AverageOrderValue: metrics.Round2(curAOV),
			OrderCount:        cur.Orders,
			TotalCustomers:    cur.Customers,
		},
		Period: rng.String(),
	}
	if hasPrev {
		p, _ := rng.Previous()
		out.PreviousPeriod = p.String()
	}
	return out
}

// SalesByCategory breaks sales down by category, honouring every filter but category.
func (s *Service) SalesByCategory(ctx context.Context, q Query) ([]aggregate.BreakdownRow, error) {
	return s.breakdown(ctx, aggregate.DimCategory, q)
}

// SalesByRegion breaks sales down by region, honouring every filter but region.
func (s *Service) SalesByRegion(ctx context.Context, q Query) ([]aggregate.BreakdownRow, error) {
	return s.breakdown(ctx, aggregate.DimRegion, q)
}

func (s *Service) breakdown(ctx context.Context, dim aggregate.Dimension, q Query) ([]aggregate.BreakdownRow, error) {
	r, err := s.Resolve(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.Breakdown(ctx, dim, r.Filter)
	if err != nil {
		s.logger.Error("breakdown query failed", "dimension", dim, "error", err)
		return []aggregate.BreakdownRow{}, nil
	}
	return rows, nil
}

func (s *Service) SalesBySegment(ctx context.Context, q Query) ([]aggregate.SegmentRow, error) {
	r, err := s.Resolve(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.Segments(ctx, r.Filter)
	if err != nil {
		s.logger.Error("segment query failed", "error", err)
		return []aggregate.SegmentRow{}, nil
	}
	return rows, nil
}

// SalesTimeSeries returns daily, ISO-weekly and monthly sales.
func (s *Service) SalesTimeSeries(ctx context.Context, q Query) (TimeSeries, error) {
	r, err := s.Resolve(q)
	if err != nil {
		return TimeSeries{}, err
	}
	ts, err := s.timeSeries(ctx, r)
	if err != nil {
		s.logger.Error("time series query failed", "error", err)
		return emptyTimeSeries(), nil
	}
	return ts, nil
}

func (s *Service) timeSeries(ctx context.Context, r Resolved) (TimeSeries, error) {
	var ts TimeSeries
	var err error
	if ts.Daily, err = s.repo.Series(ctx, aggregate.BucketDay, r.Filter); err != nil {
		return TimeSeries{}, err
	}
	if ts.Weekly, err = s.repo.Series(ctx, aggregate.BucketWeek, r.Filter); err != nil {
		return TimeSeries{}, err
	}
	if ts.Monthly, err = s.repo.Series(ctx, aggregate.BucketMonth, r.Filter); err != nil {
		return TimeSeries{}, err
	}
	if s.cfg.DensifySeries {
		ts.Daily = aggregate.Densify(ts.Daily)
	}
	return ts, nil
}

// TopProducts ranks products by sales. limit 0 selects the configured default.
func (s *Service) TopProducts(ctx context.Context, q Query, limit int) ([]aggregate.ProductRow, error) {
	r, err := s.Resolve(q)
	if err != nil {
		return nil, err
	}
	if err := s.check(topParams{Limit: limit}); err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = s.cfg.TopLimit
	}
	rows, err := s.repo.TopProducts(ctx, r.Filter, limit)
	if err != nil {
		s.logger.Error("top products query failed", "error", err)
		return []aggregate.ProductRow{}, nil
	}
	return rows, nil
}
