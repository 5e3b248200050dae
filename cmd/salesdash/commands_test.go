package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"github.com/kalambet/salesdash/internal/aggregate"
	"github.com/kalambet/salesdash/internal/analytics"
	"github.com/kalambet/salesdash/internal/config"
	"github.com/kalambet/salesdash/internal/forecast"
	"github.com/kalambet/salesdash/internal/ingest"
	"github.com/kalambet/salesdash/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func withNoColor(t *testing.T) {
	t.Helper()
	old := noColor
	noColor = true
	t.Cleanup(func() { noColor = old })
}

const summaryJSON = `{
  "key_metrics": [
    {"name":"Total Sales","value":1250,"previous_value":1000,"display_value":"$1,250.00",
     "display_previous_value":"$1,000.00","change":250,"change_percent":"+25.0%","trend":"up"},
    {"name":"Total Orders","value":9,"previous_value":10,"display_value":"9",
     "display_previous_value":"10","change":-1,"change_percent":"-10.0%","trend":"down"}
  ],
  "summary": {"total_sales":1250,"average_order_value":138.89,"order_count":9,"total_customers":4},
  "period": "2024-03-01 to 2024-03-31",
  "previous_period": "2024-01-31 to 2024-02-29"
}`

func TestSummaryCommand_Request(t *testing.T) {
	withNoColor(t)
	ts := newTestServer(t, map[string]string{
		"GET /api/sales/summary": summaryJSON,
	})

	cmd := &cobra.Command{}
	addFilterFlags(cmd)
	cmd.Flags().Set("range", "last_30_days")
	cmd.Flags().Set("region", "West")

	resp, err := ts.client().get(ctx, withQuery("/api/sales/summary", filterValues(cmd)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var s analytics.Summary
	if err := decodeJSON(resp, &s); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if got := ts.requests[0].Path; got != "/api/sales/summary?date_range=last_30_days&region=West" {
		t.Errorf("path = %q", got)
	}

	var out bytes.Buffer
	if err := renderSummary(&out, s); err != nil {
		t.Fatalf("render: %v", err)
	}
	text := out.String()
	for _, want := range []string{"Period: 2024-03-01 to 2024-03-31", "Compared with:", "Total Sales", "$1,250.00", "+25.0%", "▲", "-10.0%"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestFilterValues_Empty(t *testing.T) {
	cmd := &cobra.Command{}
	addFilterFlags(cmd)
	if got := withQuery("/api/sales/top-products", filterValues(cmd)); got != "/api/sales/top-products" {
		t.Errorf("withQuery = %q, want bare path", got)
	}
}

func TestFilterValues_CustomRange(t *testing.T) {
	cmd := &cobra.Command{}
	addFilterFlags(cmd)
	cmd.Flags().Set("start", "2024-01-01")
	cmd.Flags().Set("end", "2024-01-31")
	cmd.Flags().Set("segment", "Home Office")

	v := filterValues(cmd)
	if v.Get("start_date") != "2024-01-01" || v.Get("end_date") != "2024-01-31" {
		t.Errorf("dates = %v", v)
	}
	if got := v.Encode(); !strings.Contains(got, "segment=Home+Office") {
		t.Errorf("encoded = %q, want escaped segment", got)
	}
}

func TestTopProducts_Render(t *testing.T) {
	withNoColor(t)
	ts := newTestServer(t, map[string]string{
		"GET /api/sales/top-products": `[{"product_id":"P1","product_name":"Desk","category":"Furniture","sales":900.5,"quantity":3,"order_count":2}]`,
	})

	resp, err := ts.client().get(ctx, "/api/sales/top-products?limit=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var products []aggregate.ProductRow
	if err := decodeJSON(resp, &products); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	var out bytes.Buffer
	if err := renderProducts(&out, products); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out.String(), "Desk") || !strings.Contains(out.String(), "900.50") {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	renderProducts(&out, nil)
	if !strings.Contains(out.String(), "No sales") {
		t.Errorf("empty output = %q", out.String())
	}
}

func TestForecast_Render(t *testing.T) {
	withNoColor(t)
	res := forecast.Result{
		Method:         "linear",
		TrendDirection: "increasing",
		GrowthRate:     12.5,
		ForecastTotal:  300,
		Forecast: []forecast.Point{
			{Date: "2024-04-01", Prediction: 100, LowerBound: 90, UpperBound: 110},
		},
	}
	var out bytes.Buffer
	if err := renderForecast(&out, "West", res); err != nil {
		t.Fatalf("render: %v", err)
	}
	text := out.String()
	for _, want := range []string{"West", "Method: linear", "Growth: 12.50%", "2024-04-01", "110.00"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestForecastCommand_InvalidBy(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"forecast", "--by", "segment"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for --by segment")
	}
	if !strings.Contains(err.Error(), "invalid --by") {
		t.Errorf("error = %q", err)
	}
}

func TestJobCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"job"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for missing job id")
	}
}

func TestReload_Request(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/init-db": `{"status":"success","message":"Sales data load queued","job_id":"job-1"}`,
	})

	resp, err := ts.client().post(ctx, "/api/init-db", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var queued map[string]string
	if err := decodeJSON(resp, &queued); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if queued["job_id"] != "job-1" {
		t.Errorf("job_id = %q", queued["job_id"])
	}
	if r := ts.requests[0]; r.Method != "POST" || r.Body != "" {
		t.Errorf("request = %+v, want POST with empty body", r)
	}
}

func TestWaitForJob(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/jobs/job-1" {
			w.WriteHeader(404)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) < 3 {
			w.Write([]byte(`{"id":"job-1","status":"running","attempts":1}`))
			return
		}
		w.Write([]byte(`{"id":"job-1","status":"completed","attempts":1,"result":{"source":"x.csv","rows":42,"skipped":1,"duration_ms":5}}`))
	}))
	defer srv.Close()

	client := &apiClient{baseURL: srv.URL, httpClient: srv.Client()}
	job, err := waitForJob(ctx, client, "job-1", 5*time.Millisecond, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != "completed" {
		t.Errorf("status = %q, want completed", job.Status)
	}
	if calls.Load() != 3 {
		t.Errorf("polled %d times, want 3", calls.Load())
	}

	var stats ingest.LoadStats
	if err := json.Unmarshal(job.Result, &stats); err != nil {
		t.Fatalf("result: %v", err)
	}
	if stats.Rows != 42 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestWaitForJob_Timeout(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/jobs/job-2": `{"id":"job-2","status":"pending"}`,
	})

	_, err := waitForJob(ctx, ts.client(), "job-2", 5*time.Millisecond, 30*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "still pending") {
		t.Errorf("error = %q", err)
	}
}

func TestWaitForJob_UnknownJob(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	_, err := waitForJob(ctx, ts.client(), "nope", 5*time.Millisecond, time.Second)
	if err == nil {
		t.Fatal("expected error for unknown job")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %q, want it to contain 404", err)
	}
}

func TestStatusCommand_Running(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"healthy"}`,
	})

	resp, err := ts.client().get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var h healthView
	if err := decodeJSON(resp, &h); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if h.Status != "healthy" {
		t.Errorf("status = %q, want healthy", h.Status)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		w.Write([]byte(`{"error":{"message":"invalid date_range \"someday\"","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	client := &apiClient{baseURL: srv.URL, httpClient: srv.Client()}
	resp, err := client.get(ctx, "/api/sales/summary?date_range=someday")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "someday") {
		t.Errorf("error = %q, want status and message", err.Error())
	}
	if strings.Contains(err.Error(), "invalid_request_error") {
		t.Errorf("error = %q, want only the message", err.Error())
	}
}

func TestServerURL(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"0.0.0.0", 8000, "http://127.0.0.1:8000"},
		{"", 8000, "http://127.0.0.1:8000"},
		{"localhost", 9000, "http://localhost:9000"},
		{"::1", 8080, "http://[::1]:8080"},
	}
	for _, tt := range tests {
		var cfg config.Config
		cfg.Server.Host = tt.host
		cfg.Server.Port = tt.port
		if got := serverURL(cfg); got != tt.want {
			t.Errorf("serverURL(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.Forecast.Method = "linear"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := 0
	for _, k := range keys {
		if (k.Key == "server.port" && k.Value == "4000") || (k.Key == "forecast.method" && k.Value == "linear") {
			found++
		}
	}
	if found != 2 {
		t.Errorf("expected server.port=4000 and forecast.method=linear in ShowAll output, found %d", found)
	}
}

func sampleRecords() []storage.SalesRecord {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }
	return []storage.SalesRecord{
		{
			OrderID: "CA-1", OrderDate: day(1), ShipDate: day(4), CustomerID: "C1", CustomerName: "Ada",
			Segment: "Consumer", Category: "Technology", Subcategory: "Phones",
			ProductID: "P1", ProductName: "Phone, black", Region: "West",
			Sales: decimal.RequireFromString("1250.50"), Quantity: 2,
		},
		{
			OrderID: "CA-2", OrderDate: day(2), CustomerID: "C2", CustomerName: "Bo",
			Segment: "Corporate", Category: "Furniture",
			ProductID: "P2", ProductName: "Desk", Region: "East",
			Sales: decimal.RequireFromString("80"), Quantity: 1,
		},
	}
}

func TestExportCSV_Reloadable(t *testing.T) {
	var buf bytes.Buffer
	if err := writeRecordsCSV(&buf, sampleRecords()); err != nil {
		t.Fatalf("write: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	records, skipped, err := ingest.ParseRows(rows)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if skipped != 0 || len(records) != 2 {
		t.Fatalf("records = %d skipped = %d, want 2 and 0", len(records), skipped)
	}

	want := sampleRecords()
	for i, r := range records {
		w := want[i]
		if r.OrderID != w.OrderID || r.ProductName != w.ProductName || r.Subcategory != w.Subcategory {
			t.Errorf("record %d = %+v, want %+v", i, r, w)
		}
		if !r.OrderDate.Equal(w.OrderDate) || !r.ShipDate.Equal(w.ShipDate) {
			t.Errorf("record %d dates = %v/%v, want %v/%v", i, r.OrderDate, r.ShipDate, w.OrderDate, w.ShipDate)
		}
		if !r.Sales.Equal(w.Sales) || r.Quantity != w.Quantity {
			t.Errorf("record %d sales = %s x%d, want %s x%d", i, r.Sales, r.Quantity, w.Sales, w.Quantity)
		}
	}
}

func TestExportJSONL(t *testing.T) {
	var buf bytes.Buffer
	if err := writeRecordsJSONL(&buf, sampleRecords()); err != nil {
		t.Fatalf("write: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSONL lines, got %d", len(lines))
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &record); err != nil {
		t.Fatalf("invalid JSONL: %v", err)
	}
	if record["order_id"] != "CA-2" || record["sales"] != "80" {
		t.Errorf("record = %v", record)
	}
	if _, ok := record["subcategory"]; ok {
		t.Errorf("empty subcategory should be omitted: %v", record)
	}
}

func TestExportXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.xlsx")
	if err := writeRecordsXLSX(path, sampleRecords()); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetList()[0])
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header plus 2", len(rows))
	}
	if rows[0][0] != "Order ID" || rows[1][11] != "1250.50" {
		t.Errorf("unexpected cells: %v / %v", rows[0], rows[1])
	}
}
