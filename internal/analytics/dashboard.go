package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/kalambet/salesdash/internal/aggregate"
	"github.com/kalambet/salesdash/internal/metrics"
)

// ChartData is a labelled series ready for a line chart.
type ChartData struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// Dashboard is every view of one resolved window.
type Dashboard struct {
	KeyMetrics        []metrics.KeyMetric      `json:"key_metrics"`
	Summary           SummaryTotals            `json:"summary"`
	Period            string                   `json:"period"`
	SalesTrend        ChartData                `json:"sales_trend"`
	CategoryBreakdown []aggregate.BreakdownRow `json:"category_breakdown"`
	RegionalSales     []aggregate.BreakdownRow `json:"regional_sales"`
	SegmentBreakdown  []aggregate.SegmentRow   `json:"segment_breakdown"`
	TopProducts       []aggregate.ProductRow   `json:"top_products"`
	SalesByTime       TimeSeries               `json:"sales_by_time"`
}

// Dashboard composes the summary, breakdowns, time series and top products
// against a single resolved window. A top-products failure degrades to an
// empty list; any other failure fails the dashboard.
func (s *Service) Dashboard(ctx context.Context, q Query) (Dashboard, error) {
	r, err := s.Resolve(q)
	if err != nil {
		return Dashboard{}, err
	}
	start := time.Now()

	sum, err := s.summary(ctx, r)
	if err != nil {
		return Dashboard{}, fmt.Errorf("dashboard summary: %w", err)
	}
	categories, err := s.repo.Breakdown(ctx, aggregate.DimCategory, r.Filter)
	if err != nil {
		return Dashboard{}, fmt.Errorf("dashboard category breakdown: %w", err)
	}
	regions, err := s.repo.Breakdown(ctx, aggregate.DimRegion, r.Filter)
	if err != nil {
		return Dashboard{}, fmt.Errorf("dashboard region breakdown: %w", err)
	}
	segments, err := s.repo.Segments(ctx, r.Filter)
	if err != nil {
		return Dashboard{}, fmt.Errorf("dashboard segment breakdown: %w", err)
	}
	ts, err := s.timeSeries(ctx, r)
	if err != nil {
		return Dashboard{}, fmt.Errorf("dashboard time series: %w", err)
	}

	products, err := s.repo.TopProducts(ctx, r.Filter, s.cfg.TopLimit)
	if err != nil {
		s.logger.Warn("dashboard top products failed, continuing without them", "error", err)
		products = []aggregate.ProductRow{}
	}

	s.logger.Debug("dashboard composed", "period", r.Range.String(), "duration_ms", time.Since(start).Milliseconds())
	return Dashboard{
		KeyMetrics:        sum.KeyMetrics,
		Summary:           sum.Summary,
		Period:            sum.Period,
		SalesTrend:        salesTrend(ts.Daily),
		CategoryBreakdown: categories,
		RegionalSales:     regions,
		SegmentBreakdown:  segments,
		TopProducts:       products,
		SalesByTime:       ts,
	}, nil
}

func salesTrend(daily []aggregate.SeriesPoint) ChartData {
	labels := make([]string, len(daily))
	data := make([]float64, len(daily))
	for i, p := range daily {
		labels[i] = p.Date
		data[i] = p.Value
	}
	return ChartData{Labels: labels, Datasets: []Dataset{{Label: "Sales", Data: data}}}
}
