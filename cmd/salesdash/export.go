package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kalambet/salesdash/internal/storage"
)

var exportHeaders = []string{
	"Order ID", "Order Date", "Ship Date", "Customer ID", "Customer Name", "Segment",
	"Category", "Sub-Category", "Product ID", "Product Name", "Region", "Sales", "Quantity",
}

// exportRow renders a record in the column order of exportHeaders. The
// headers normalize back to the loader's column names, so an export can be
// loaded again.
func exportRow(r storage.SalesRecord) []string {
	return []string{
		r.OrderID,
		r.OrderDate.Format(time.DateOnly),
		formatOptionalDate(r.ShipDate),
		r.CustomerID,
		r.CustomerName,
		r.Segment,
		r.Category,
		r.Subcategory,
		r.ProductID,
		r.ProductName,
		r.Region,
		r.Sales.StringFixed(2),
		strconv.Itoa(r.Quantity),
	}
}

func formatOptionalDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func writeRecordsJSONL(w io.Writer, records []storage.SalesRecord) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding record %s: %w", r.OrderID, err)
		}
	}
	return nil
}

func writeRecordsCSV(w io.Writer, records []storage.SalesRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeaders); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(exportRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeRecordsXLSX(path string, records []storage.SalesRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &exportHeaders); err != nil {
		return err
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := exportRow(r)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
