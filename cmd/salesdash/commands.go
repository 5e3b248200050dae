package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/salesdash/internal/aggregate"
	"github.com/kalambet/salesdash/internal/analytics"
	"github.com/kalambet/salesdash/internal/api"
	"github.com/kalambet/salesdash/internal/config"
	"github.com/kalambet/salesdash/internal/forecast"
	"github.com/kalambet/salesdash/internal/ingest"
)

// --- filters shared by the query commands ---

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("range", "", "date range token (last_30_days, year_to_date, YYYY-MM-DD:YYYY-MM-DD, ...)")
	cmd.Flags().String("start", "", "start date YYYY-MM-DD")
	cmd.Flags().String("end", "", "end date YYYY-MM-DD")
	cmd.Flags().String("category", "", "only this category")
	cmd.Flags().String("region", "", "only this region")
	cmd.Flags().String("segment", "", "only this customer segment")
	cmd.Flags().Bool("json", false, "print the raw JSON response")
}

func filterValues(cmd *cobra.Command) url.Values {
	v := url.Values{}
	for flag, param := range map[string]string{
		"range":    "date_range",
		"start":    "start_date",
		"end":      "end_date",
		"category": "category",
		"region":   "region",
		"segment":  "segment",
	} {
		if s, _ := cmd.Flags().GetString(flag); s != "" {
			v.Set(param, s)
		}
	}
	return v
}

func withQuery(path string, v url.Values) string {
	if len(v) == 0 {
		return path
	}
	return path + "?" + v.Encode()
}

// --- load ---

var loadCmd = &cobra.Command{
	Use:   "load [path]",
	Short: "Load a sales CSV or XLSX file into the database",
	Long: `Load a sales CSV or XLSX file into the database, replacing existing rows.

This opens the database directly. Stop the server first when using sqlite,
or use "salesdash reload" to queue the load on a running server.

Examples:
  salesdash load
  salesdash load ./data/sales_data.csv
  salesdash load ./exports/q3.xlsx`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		path := cfg.Load.CSVPath
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("no file given and load.csv_path is not set")
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		printStep("Loading %s", path)
		stats, err := ingest.NewLoader(store).LoadFile(cmd.Context(), path)
		if err != nil {
			return err
		}
		printSuccess("Loaded %d rows in %dms", stats.Rows, stats.DurationMS)
		if stats.Skipped > 0 {
			printWarning("Skipped %d rows with invalid dates or amounts", stats.Skipped)
		}
		return nil
	},
}

// --- reload ---

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Queue a reload of the configured sales file on the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetBool("wait")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		resp, err := client.post(ctx, "/api/init-db", nil)
		if err != nil {
			return err
		}
		var queued struct {
			Message string `json:"message"`
			JobID   string `json:"job_id"`
		}
		if err := decodeJSON(resp, &queued); err != nil {
			return err
		}
		printSuccess("%s (job %s)", queued.Message, queued.JobID)
		if !wait {
			return nil
		}

		job, err := waitForJob(ctx, client, queued.JobID, 500*time.Millisecond, timeout)
		if err != nil {
			return err
		}
		if job.Status == "failed" {
			printError("Load failed: %s", job.LastError)
			return fmt.Errorf("job %s failed", job.ID)
		}
		var stats ingest.LoadStats
		if len(job.Result) > 0 {
			if err := json.Unmarshal(job.Result, &stats); err == nil {
				printSuccess("Loaded %d rows (%d skipped)", stats.Rows, stats.Skipped)
				return nil
			}
		}
		printSuccess("Load completed")
		return nil
	},
}

func init() {
	reloadCmd.Flags().Bool("wait", false, "wait for the load job to finish")
	reloadCmd.Flags().Duration("timeout", 2*time.Minute, "how long --wait polls before giving up")
}

// waitForJob polls a job until it leaves the pending and running states.
func waitForJob(ctx context.Context, client *apiClient, id string, every, timeout time.Duration) (api.JobView, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	last := "pending"
	for {
		job, err := fetchJob(ctx, client, id)
		if err != nil {
			if ctx.Err() != nil {
				return api.JobView{}, fmt.Errorf("job %s still %s: %w", id, last, ctx.Err())
			}
			return api.JobView{}, err
		}
		last = job.Status
		switch job.Status {
		case "completed", "failed":
			return job, nil
		}
		select {
		case <-ctx.Done():
			return api.JobView{}, fmt.Errorf("job %s still %s: %w", id, last, ctx.Err())
		case <-ticker.C:
		}
	}
}

func fetchJob(ctx context.Context, client *apiClient, id string) (api.JobView, error) {
	resp, err := client.get(ctx, "/api/jobs/"+url.PathEscape(id))
	if err != nil {
		return api.JobView{}, err
	}
	var job api.JobView
	if err := decodeJSON(resp, &job); err != nil {
		return api.JobView{}, err
	}
	return job, nil
}

// --- job ---

var jobCmd = &cobra.Command{
	Use:   "job <id>",
	Short: "Show the status of a background job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		job, err := fetchJob(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		return writeJSONOut(os.Stdout, job)
	},
}

// --- summary ---

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show KPIs with the previous-period comparison",
	Long: `Show KPIs with the previous-period comparison.

Examples:
  salesdash summary
  salesdash summary --range last_90_days --region West
  salesdash summary --start 2024-01-01 --end 2024-03-31 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), withQuery("/api/sales/summary", filterValues(cmd)))
		if err != nil {
			return err
		}
		var s analytics.Summary
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}
		if asJSON {
			return writeJSONOut(os.Stdout, s)
		}
		return renderSummary(os.Stdout, s)
	},
}

func init() {
	addFilterFlags(summaryCmd)
}

func renderSummary(w io.Writer, s analytics.Summary) error {
	fmt.Fprintf(w, "Period: %s\n", s.Period)
	if s.PreviousPeriod != "" {
		fmt.Fprintf(w, "Compared with: %s\n", s.PreviousPeriod)
	}
	rows := make([][]string, 0, len(s.KeyMetrics))
	for _, m := range s.KeyMetrics {
		rows = append(rows, []string{
			m.Name, m.DisplayValue, m.DisplayPrevious,
			trendMarker(string(m.Trend)) + " " + m.ChangePercent,
		})
	}
	return writeTable(w, []string{"METRIC", "VALUE", "PREVIOUS", "CHANGE"}, rows)
}

// --- top-products ---

var topProductsCmd = &cobra.Command{
	Use:   "top-products",
	Short: "List the best-selling products",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		limit, _ := cmd.Flags().GetInt("limit")

		v := filterValues(cmd)
		if limit > 0 {
			v.Set("limit", strconv.Itoa(limit))
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), withQuery("/api/sales/top-products", v))
		if err != nil {
			return err
		}
		var products []aggregate.ProductRow
		if err := decodeJSON(resp, &products); err != nil {
			return err
		}
		if asJSON {
			return writeJSONOut(os.Stdout, products)
		}
		return renderProducts(os.Stdout, products)
	},
}

func init() {
	addFilterFlags(topProductsCmd)
	topProductsCmd.Flags().Int("limit", 0, "number of products (server default when 0)")
}

func renderProducts(w io.Writer, products []aggregate.ProductRow) error {
	if len(products) == 0 {
		fmt.Fprintln(w, "No sales in this window.")
		return nil
	}
	rows := make([][]string, 0, len(products))
	for i, p := range products {
		rows = append(rows, []string{
			strconv.Itoa(i + 1), p.ProductName, p.Category,
			fmt.Sprintf("%.2f", p.Sales), strconv.FormatInt(p.Quantity, 10), strconv.FormatInt(p.Orders, 10),
		})
	}
	return writeTable(w, []string{"#", "PRODUCT", "CATEGORY", "SALES", "QTY", "ORDERS"}, rows)
}

// --- forecast ---

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Forecast daily sales",
	Long: `Forecast daily sales, overall or per category or region.

Examples:
  salesdash forecast --periods 14
  salesdash forecast --method holtwinters --range last_year
  salesdash forecast --by region --periods 7`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		periods, _ := cmd.Flags().GetInt("periods")
		method, _ := cmd.Flags().GetString("method")
		by, _ := cmd.Flags().GetString("by")

		path := "/api/forecasts/sales"
		switch by {
		case "":
		case "category":
			path = "/api/forecasts/by-category"
		case "region":
			path = "/api/forecasts/by-region"
		default:
			return fmt.Errorf("invalid --by %q: want category or region", by)
		}

		v := filterValues(cmd)
		if periods > 0 {
			v.Set("forecast_periods", strconv.Itoa(periods))
		}
		if method != "" {
			v.Set("method", method)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), withQuery(path, v))
		if err != nil {
			return err
		}

		if by == "" {
			var res forecast.Result
			if err := decodeJSON(resp, &res); err != nil {
				return err
			}
			if asJSON {
				return writeJSONOut(os.Stdout, res)
			}
			return renderForecast(os.Stdout, "", res)
		}

		var groups map[string]forecast.Result
		if err := decodeJSON(resp, &groups); err != nil {
			return err
		}
		if asJSON {
			return writeJSONOut(os.Stdout, groups)
		}
		names := make([]string, 0, len(groups))
		for name := range groups {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := renderForecast(os.Stdout, name, groups[name]); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout)
		}
		return nil
	},
}

func init() {
	addFilterFlags(forecastCmd)
	forecastCmd.Flags().Int("periods", 0, "days to forecast (server default when 0)")
	forecastCmd.Flags().String("method", "", "decomposition, holtwinters or linear (prophet and sarima are aliases)")
	forecastCmd.Flags().String("by", "", "forecast each category or region separately")
}

func renderForecast(w io.Writer, title string, res forecast.Result) error {
	if title != "" {
		fmt.Fprintln(w, colorize(colorBold, title))
	}
	fmt.Fprintf(w, "Method: %s  Trend: %s  Growth: %.2f%%\n", res.Method, res.TrendDirection, res.GrowthRate)
	fmt.Fprintf(w, "Forecast total: %.2f  Historical total: %.2f\n", res.ForecastTotal, res.HistoricalTotal)
	rows := make([][]string, 0, len(res.Forecast))
	for _, p := range res.Forecast {
		rows = append(rows, []string{
			p.Date, fmt.Sprintf("%.2f", p.Prediction),
			fmt.Sprintf("%.2f", p.LowerBound), fmt.Sprintf("%.2f", p.UpperBound),
		})
	}
	return writeTable(w, []string{"DATE", "PREDICTION", "LOWER", "UPPER"}, rows)
}

// --- data ---

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Manage loaded sales data",
}

var dataExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all loaded sales rows",
	Long: `Export all loaded sales rows as JSONL, CSV or XLSX.

Examples:
  salesdash data export > sales.jsonl
  salesdash data export --format csv --output sales.csv
  salesdash data export --format xlsx --output sales.xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.AllRecords(cmd.Context())
		if err != nil {
			return fmt.Errorf("reading sales: %w", err)
		}

		if format == "xlsx" {
			if output == "" {
				return fmt.Errorf("--output is required for xlsx export")
			}
			if err := writeRecordsXLSX(output, records); err != nil {
				return err
			}
			printSuccess("Exported %d rows to %s", len(records), output)
			return nil
		}

		var w io.Writer = os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		switch format {
		case "jsonl":
			err = writeRecordsJSONL(w, records)
		case "csv":
			err = writeRecordsCSV(w, records)
		default:
			return fmt.Errorf("unsupported format %q: want jsonl, csv or xlsx", format)
		}
		if err != nil {
			return err
		}
		slog.Debug("export complete", "rows", len(records), "format", format)
		if output != "" {
			printSuccess("Exported %d rows to %s", len(records), output)
		}
		return nil
	},
}

func init() {
	dataExportCmd.Flags().String("format", "jsonl", "jsonl, csv or xlsx")
	dataExportCmd.Flags().StringP("output", "o", "", "write to a file instead of stdout")
	dataCmd.AddCommand(dataExportCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show all configuration values",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Config file: %s\n\n", config.ConfigFilePath())
		keys := config.ShowAll(cfg)
		rows := make([][]string, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, []string{k.Key, k.Value, k.EnvVar})
		}
		return writeTable(os.Stdout, []string{"KEY", "VALUE", "ENV"}, rows)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			printError("%v", err)
			fmt.Fprintf(os.Stderr, "Valid keys: %v\n", config.ValidKeys())
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
}
