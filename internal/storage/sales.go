package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// ReplaceSales atomically replaces the contents of the sales table with records.
// Readers never observe a partially loaded table.
func (s *Store) ReplaceSales(ctx context.Context, records []SalesRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM sales"); err != nil {
		return 0, fmt.Errorf("clearing sales: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.q(`
		INSERT INTO sales (order_id, order_date, ship_date, customer_id, customer_name, segment,
			category, subcategory, product_id, product_name, region, sales, quantity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.OrderID, r.OrderDate.Format(dateLayout), nullDate(r.ShipDate),
			r.CustomerID, r.CustomerName, r.Segment,
			r.Category, nullString(r.Subcategory), r.ProductID, r.ProductName, r.Region,
			r.Sales.InexactFloat64(), r.Quantity,
		); err != nil {
			return 0, fmt.Errorf("inserting row %d (order %s): %w", i, r.OrderID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing load: %w", err)
	}
	return len(records), nil
}

// CountSales returns the number of loaded rows.
func (s *Store) CountSales(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sales").Scan(&n)
	return n, err
}

// DateBounds returns the earliest and latest order dates. ok is false when the
// table is empty.
func (s *Store) DateBounds(ctx context.Context) (first, last time.Time, ok bool, err error) {
	d := s.dialect
	var lo, hi sql.NullString
	err = s.db.QueryRowContext(ctx,
		"SELECT MIN("+d.DayLabel("order_date")+"), MAX("+d.DayLabel("order_date")+") FROM sales",
	).Scan(&lo, &hi)
	if err != nil || !lo.Valid || !hi.Valid {
		return time.Time{}, time.Time{}, false, err
	}
	if first, err = time.Parse(dateLayout, lo.String); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("parsing min order_date: %w", err)
	}
	if last, err = time.Parse(dateLayout, hi.String); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("parsing max order_date: %w", err)
	}
	return first, last, true, nil
}

// AllRecords returns every loaded row ordered by order date.
func (s *Store) AllRecords(ctx context.Context) ([]SalesRecord, error) {
	d := s.dialect
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, `+d.DayLabel("order_date")+`, COALESCE(`+d.DayLabel("ship_date")+`, ''),
			customer_id, customer_name, segment, category, COALESCE(subcategory, ''),
			product_id, product_name, region, sales, quantity
		FROM sales ORDER BY order_date ASC, row_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SalesRecord
	for rows.Next() {
		var (
			r                 SalesRecord
			orderDate, shipAt string
			sales             float64
		)
		if err := rows.Scan(&r.OrderID, &orderDate, &shipAt,
			&r.CustomerID, &r.CustomerName, &r.Segment, &r.Category, &r.Subcategory,
			&r.ProductID, &r.ProductName, &r.Region, &sales, &r.Quantity); err != nil {
			return nil, err
		}
		if r.OrderDate, err = time.Parse(dateLayout, orderDate); err != nil {
			return nil, fmt.Errorf("parsing order_date for %s: %w", r.OrderID, err)
		}
		if shipAt != "" {
			if r.ShipDate, err = time.Parse(dateLayout, shipAt); err != nil {
				return nil, fmt.Errorf("parsing ship_date for %s: %w", r.OrderID, err)
			}
		}
		r.Sales = decimal.NewFromFloat(sales)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(dateLayout)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
