package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/kalambet/salesdash/internal/storage"
)

// SalesWriter replaces the loaded sales table.
type SalesWriter interface {
	ReplaceSales(ctx context.Context, records []storage.SalesRecord) (int, error)
}

// LoadStats summarises one load.
type LoadStats struct {
	Source     string `json:"source"`
	Rows       int    `json:"rows"`
	Skipped    int    `json:"skipped"`
	DurationMS int64  `json:"duration_ms"`
}

// ErrMissingColumn is returned when the header lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

const unknown = "Unknown"

var requiredColumns = []string{"order_date", "category", "region", "sales"}

// columnAliases maps normalised header names onto canonical columns.
var columnAliases = map[string]string{
	"sub_category": "subcategory",
	"subcategory":  "subcategory",
	"customer":     "customer_name",
	"product":      "product_name",
	"amount":       "sales",
	"qty":          "quantity",
	"date":         "order_date",
}

var dateLayouts = []string{"2006-01-02", "1/2/2006", "01/02/2006", "2/1/2006 15:04", time.RFC3339}

// Loader parses sales files and replaces the store's contents with them.
type Loader struct {
	store  SalesWriter
	logger *slog.Logger
}

func NewLoader(store SalesWriter) *Loader {
	return &Loader{store: store, logger: slog.Default()}
}

// LoadFile loads a .csv or .xlsx file.
func (l *Loader) LoadFile(ctx context.Context, path string) (LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return LoadStats{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var rows [][]string
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rows, err = readXLSX(f)
	} else {
		rows, err = readCSV(f)
	}
	if err != nil {
		return LoadStats{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return l.load(ctx, path, rows)
}

// Load loads CSV from r.
func (l *Loader) Load(ctx context.Context, r io.Reader) (LoadStats, error) {
	rows, err := readCSV(r)
	if err != nil {
		return LoadStats{}, err
	}
	return l.load(ctx, "reader", rows)
}

func (l *Loader) load(ctx context.Context, source string, rows [][]string) (LoadStats, error) {
	start := time.Now()
	records, skipped, err := ParseRows(rows)
	if err != nil {
		return LoadStats{}, err
	}
	n, err := l.store.ReplaceSales(ctx, records)
	if err != nil {
		return LoadStats{}, fmt.Errorf("storing records: %w", err)
	}
	stats := LoadStats{Source: source, Rows: n, Skipped: skipped, DurationMS: time.Since(start).Milliseconds()}
	l.logger.Info("sales data loaded", "source", source, "rows", n, "skipped", skipped, "duration_ms", stats.DurationMS)
	return stats, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}
	return rows, nil
}

// readXLSX returns the rows of the workbook's first sheet.
func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

// NormalizeColumn turns a header such as "Order Date" or "Sub-Category" into
// its canonical column name.
func NormalizeColumn(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	h = strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(h)
	if alias, ok := columnAliases[h]; ok {
		return alias
	}
	return h
}

// ParseRows converts a header row plus data rows into records. Rows whose
// order date cannot be parsed, or whose sales or quantity are negative, are
// skipped and counted.
func ParseRows(rows [][]string) ([]storage.SalesRecord, int, error) {
	if len(rows) == 0 {
		return nil, 0, fmt.Errorf("%w: empty input", ErrMissingColumn)
	}
	idx := make(map[string]int)
	for i, h := range rows[0] {
		name := NormalizeColumn(h)
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, 0, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	get := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	orUnknown := func(s string) string {
		if s == "" {
			return unknown
		}
		return s
	}

	records := make([]storage.SalesRecord, 0, len(rows)-1)
	skipped := 0
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		orderDate, ok := parseDate(get(row, "order_date"))
		if !ok {
			skipped++
			continue
		}
		shipDate, _ := parseDate(get(row, "ship_date"))

		sales := parseAmount(get(row, "sales"))
		qty := parseAmount(get(row, "quantity"))
		if sales.IsNegative() || qty.IsNegative() {
			skipped++
			continue
		}

		records = append(records, storage.SalesRecord{
			OrderID:      orUnknown(get(row, "order_id")),
			OrderDate:    orderDate,
			ShipDate:     shipDate,
			CustomerID:   orUnknown(get(row, "customer_id")),
			CustomerName: orUnknown(get(row, "customer_name")),
			Segment:      orUnknown(get(row, "segment")),
			Category:     orUnknown(get(row, "category")),
			Subcategory:  get(row, "subcategory"),
			ProductID:    orUnknown(get(row, "product_id")),
			ProductName:  orUnknown(get(row, "product_name")),
			Region:       orUnknown(get(row, "region")),
			Sales:        sales.Round(2),
			Quantity:     int(qty.IntPart()),
		})
	}
	return records, skipped, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// parseAmount reads "$1,234.50"-style numbers. Missing or unparseable values are 0.
func parseAmount(s string) decimal.Decimal {
	s = strings.NewReplacer("$", "", ",", "").Replace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
