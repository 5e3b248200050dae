package aggregate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kalambet/salesdash/internal/metrics"
	"github.com/kalambet/salesdash/internal/storage"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Totals are the headline sums for one window.
type Totals struct {
	Sales     float64 `json:"total_sales"`
	Orders    int64   `json:"order_count"`
	Customers int64   `json:"total_customers"`
}

// BreakdownRow is one group of a category or region breakdown. It marshals
// with the dimension name as the key field, e.g. {"category": "Furniture", ...}.
type BreakdownRow struct {
	Dimension Dimension `json:"-"`
	Key       string    `json:"-"`
	Sales     float64   `json:"sales"`
	Percent   float64   `json:"percent"`
	Orders    int64     `json:"order_count"`
}

func (r BreakdownRow) MarshalJSON() ([]byte, error) {
	name := string(r.Dimension)
	if name == "" {
		name = "key"
	}
	return json.Marshal(map[string]any{
		name:          r.Key,
		"sales":       r.Sales,
		"percent":     r.Percent,
		"order_count": r.Orders,
	})
}

type SegmentRow struct {
	Segment           string  `json:"segment"`
	Sales             float64 `json:"sales"`
	Percent           float64 `json:"percent"`
	Orders            int64   `json:"order_count"`
	Customers         int64   `json:"customer_count"`
	AverageOrderValue float64 `json:"average_order_value"`
}

type ProductRow struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory"`
	Sales       float64 `json:"sales"`
	Quantity    int64   `json:"quantity"`
	Orders      int64   `json:"order_count"`
}

// SeriesPoint is one time bucket. Date holds the bucket label.
type SeriesPoint struct {
	Date   string  `json:"date"`
	Value  float64 `json:"value"`
	Orders int64   `json:"order_count"`
}

// Repository executes built aggregate queries.
type Repository struct {
	db Querier
	b  *Builder
}

func NewRepository(db Querier, d storage.Dialect) *Repository {
	return &Repository{db: db, b: NewBuilder(d)}
}

// Builder returns the query builder bound to the repository's dialect.
func (r *Repository) Builder() *Builder { return r.b }

func (r *Repository) Totals(ctx context.Context, f Filter) (Totals, error) {
	q := r.b.Totals(f)
	var t Totals
	if err := r.db.QueryRowContext(ctx, q.SQL, q.Args...).Scan(&t.Sales, &t.Orders, &t.Customers); err != nil {
		return Totals{}, fmt.Errorf("querying totals: %w", err)
	}
	return t, nil
}

// Breakdown returns per-group sales sorted by sales descending, with each
// group's share of the returned rows' total.
func (r *Repository) Breakdown(ctx context.Context, dim Dimension, f Filter) ([]BreakdownRow, error) {
	q := r.b.Breakdown(dim, f)
	rows, err := r.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s breakdown: %w", dim, err)
	}
	defer rows.Close()

	out := []BreakdownRow{}
	for rows.Next() {
		row := BreakdownRow{Dimension: dim}
		if err := rows.Scan(&row.Key, &row.Sales, &row.Orders); err != nil {
			return nil, fmt.Errorf("scanning %s breakdown: %w", dim, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s breakdown: %w", dim, err)
	}

	values := make([]float64, len(out))
	for i, row := range out {
		values[i] = row.Sales
	}
	for i, pct := range metrics.PercentOfTotal(values) {
		out[i].Percent = pct
	}
	return out, nil
}

func (r *Repository) Segments(ctx context.Context, f Filter) ([]SegmentRow, error) {
	q := r.b.Segments(f)
	rows, err := r.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("querying segments: %w", err)
	}
	defer rows.Close()

	out := []SegmentRow{}
	for rows.Next() {
		var row SegmentRow
		if err := rows.Scan(&row.Segment, &row.Sales, &row.Orders, &row.Customers); err != nil {
			return nil, fmt.Errorf("scanning segments: %w", err)
		}
		row.AverageOrderValue = metrics.AverageOrderValue(row.Sales, row.Orders)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading segments: %w", err)
	}

	values := make([]float64, len(out))
	for i, row := range out {
		values[i] = row.Sales
	}
	for i, pct := range metrics.PercentOfTotal(values) {
		out[i].Percent = pct
	}
	return out, nil
}

// TopProducts returns at most limit products; limit <= 0 means DefaultTopLimit.
func (r *Repository) TopProducts(ctx context.Context, f Filter, limit int) ([]ProductRow, error) {
	q := r.b.TopProducts(f, limit)
	rows, err := r.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("querying top products: %w", err)
	}
	defer rows.Close()

	out := []ProductRow{}
	for rows.Next() {
		var p ProductRow
		if err := rows.Scan(&p.ProductID, &p.ProductName, &p.Category, &p.Subcategory, &p.Sales, &p.Quantity, &p.Orders); err != nil {
			return nil, fmt.Errorf("scanning top products: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading top products: %w", err)
	}
	return out, nil
}

// Series returns bucketed sales in ascending label order. Buckets without
// rows are absent.
func (r *Repository) Series(ctx context.Context, bucket Bucket, f Filter) ([]SeriesPoint, error) {
	q := r.b.Series(bucket, f)
	rows, err := r.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s series: %w", bucket, err)
	}
	defer rows.Close()

	out := []SeriesPoint{}
	for rows.Next() {
		var p SeriesPoint
		if err := rows.Scan(&p.Date, &p.Value, &p.Orders); err != nil {
			return nil, fmt.Errorf("scanning %s series: %w", bucket, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s series: %w", bucket, err)
	}
	return out, nil
}

// DailyValue is one observation of a daily series.
type DailyValue struct {
	Date  time.Time
	Value float64
}

// DailySeries returns summed sales per calendar day for forecasting.
func (r *Repository) DailySeries(ctx context.Context, f Filter) ([]DailyValue, error) {
	points, err := r.Series(ctx, BucketDay, f)
	if err != nil {
		return nil, err
	}
	out := make([]DailyValue, 0, len(points))
	for _, p := range points {
		d, err := time.Parse(time.DateOnly, p.Date)
		if err != nil {
			return nil, fmt.Errorf("parsing series date %q: %w", p.Date, err)
		}
		out = append(out, DailyValue{Date: d, Value: p.Value})
	}
	return out, nil
}

// Distinct lists the values of dim present under f.
func (r *Repository) Distinct(ctx context.Context, dim Dimension, f Filter) ([]string, error) {
	q := r.b.Distinct(dim, f)
	rows, err := r.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("querying distinct %s: %w", dim, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning distinct %s: %w", dim, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Densify fills missing days between the first and last point with zero.
func Densify(points []SeriesPoint) []SeriesPoint {
	if len(points) < 2 {
		return points
	}
	first, err1 := time.Parse(time.DateOnly, points[0].Date)
	last, err2 := time.Parse(time.DateOnly, points[len(points)-1].Date)
	if err1 != nil || err2 != nil {
		return points
	}
	byDate := make(map[string]SeriesPoint, len(points))
	for _, p := range points {
		byDate[p.Date] = p
	}
	out := make([]SeriesPoint, 0, int(last.Sub(first).Hours()/24)+1)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		if p, ok := byDate[key]; ok {
			out = append(out, p)
		} else {
			out = append(out, SeriesPoint{Date: key})
		}
	}
	return out
}
