// Package aggregate builds and runs the grouped sales queries behind every
// analytics view. Filter values are always bound as parameters; only
// dimension and bucket enums contribute SQL text.
package aggregate

import (
	"errors"
	"strings"
	"time"

	"github.com/kalambet/salesdash/internal/storage"
)

// Dimension is a groupable column.
type Dimension string

const (
	DimCategory Dimension = "category"
	DimRegion   Dimension = "region"
	DimSegment  Dimension = "segment"
)

// ParseDimension maps a caller-supplied name onto a Dimension.
func ParseDimension(s string) (Dimension, bool) {
	switch d := Dimension(strings.ToLower(strings.TrimSpace(s))); d {
	case DimCategory, DimRegion, DimSegment:
		return d, true
	}
	return "", false
}

// Bucket is a time-series granularity.
type Bucket string

const (
	BucketDay   Bucket = "daily"
	BucketWeek  Bucket = "weekly"
	BucketMonth Bucket = "monthly"
)

// DefaultTopLimit is used when a top-products request does not set a limit.
const DefaultTopLimit = 10

// ErrInvalidFilter is returned for a filter whose start date is after its end date.
var ErrInvalidFilter = errors.New("start date is after end date")

// Filter restricts the rows an aggregate considers. Zero fields are unset.
type Filter struct {
	Start    time.Time
	End      time.Time
	Category string
	Region   string
	Segment  string
}

func (f Filter) Validate() error {
	if !f.Start.IsZero() && !f.End.IsZero() && f.Start.After(f.End) {
		return ErrInvalidFilter
	}
	return nil
}

// Without returns a copy of f with the predicate on dim cleared.
func (f Filter) Without(dim Dimension) Filter {
	switch dim {
	case DimCategory:
		f.Category = ""
	case DimRegion:
		f.Region = ""
	case DimSegment:
		f.Segment = ""
	}
	return f
}

// Query is SQL ready to execute against the builder's dialect.
type Query struct {
	SQL  string
	Args []any
}

// Builder renders aggregate queries for one SQL dialect.
type Builder struct {
	dialect storage.Dialect
}

func NewBuilder(d storage.Dialect) *Builder {
	if d == nil {
		d = storage.SQLite
	}
	return &Builder{dialect: d}
}

func (b *Builder) where(f Filter) (string, []any) {
	var (
		preds []string
		args  []any
	)
	if !f.Start.IsZero() {
		preds = append(preds, "order_date >= ?")
		args = append(args, f.Start.Format(time.DateOnly))
	}
	if !f.End.IsZero() {
		preds = append(preds, "order_date <= ?")
		args = append(args, f.End.Format(time.DateOnly))
	}
	if f.Category != "" {
		preds = append(preds, "category = ?")
		args = append(args, f.Category)
	}
	if f.Region != "" {
		preds = append(preds, "region = ?")
		args = append(args, f.Region)
	}
	if f.Segment != "" {
		preds = append(preds, "segment = ?")
		args = append(args, f.Segment)
	}
	if len(preds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(preds, " AND "), args
}

func (b *Builder) build(sql string, args []any) Query {
	return Query{SQL: b.dialect.Rebind(sql), Args: args}
}

// Totals sums sales and counts distinct orders and customers.
func (b *Builder) Totals(f Filter) Query {
	where, args := b.where(f)
	return b.build(`SELECT COALESCE(SUM(sales), 0), COUNT(DISTINCT order_id), COUNT(DISTINCT customer_id) FROM sales`+where, args)
}

// Breakdown groups by dim. The predicate on dim itself is dropped so every
// group of the dimension is reported.
func (b *Builder) Breakdown(dim Dimension, f Filter) Query {
	col := string(dim)
	where, args := b.where(f.Without(dim))
	return b.build(`SELECT `+col+` AS label, COALESCE(SUM(sales), 0) AS total, COUNT(DISTINCT order_id)
		FROM sales`+where+`
		GROUP BY `+col+`
		ORDER BY total DESC, label ASC`, args)
}

// Segments is the segment breakdown with distinct customer counts.
func (b *Builder) Segments(f Filter) Query {
	where, args := b.where(f.Without(DimSegment))
	return b.build(`SELECT segment AS label, COALESCE(SUM(sales), 0) AS total, COUNT(DISTINCT order_id), COUNT(DISTINCT customer_id)
		FROM sales`+where+`
		GROUP BY segment
		ORDER BY total DESC, label ASC`, args)
}

// TopProducts ranks products by summed sales. Subcategory is reported but not
// grouped on.
func (b *Builder) TopProducts(f Filter, limit int) Query {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	where, args := b.where(f)
	args = append(args, limit)
	return b.build(`SELECT product_id, product_name, category, COALESCE(MAX(subcategory), '') AS subcategory,
			COALESCE(SUM(sales), 0) AS total, COALESCE(SUM(quantity), 0), COUNT(DISTINCT order_id)
		FROM sales`+where+`
		GROUP BY product_id, product_name, category
		ORDER BY total DESC, product_id ASC
		LIMIT ?`, args)
}

// Series buckets sales by day, ISO week or month in ascending label order.
func (b *Builder) Series(bucket Bucket, f Filter) Query {
	var label string
	switch bucket {
	case BucketWeek:
		label = b.dialect.WeekLabel("order_date")
	case BucketMonth:
		label = b.dialect.MonthLabel("order_date")
	default:
		label = b.dialect.DayLabel("order_date")
	}
	where, args := b.where(f)
	return b.build(`SELECT `+label+` AS period, COALESCE(SUM(sales), 0), COUNT(DISTINCT order_id)
		FROM sales`+where+`
		GROUP BY period
		ORDER BY period ASC`, args)
}

// Distinct lists the values of dim present under f, ignoring f's own
// predicate on dim.
func (b *Builder) Distinct(dim Dimension, f Filter) Query {
	col := string(dim)
	where, args := b.where(f.Without(dim))
	return b.build(`SELECT DISTINCT `+col+` FROM sales`+where+` ORDER BY `+col+` ASC`, args)
}
