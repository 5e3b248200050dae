package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{DataDir: ":memory:"})
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(Config{Driver: "sqlite", DataDir: dir})
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(Config{Driver: "sqlite", DataDir: dir})
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) || len(v1) != 2 {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestOpen_PostgresRequiresDSN(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres"}); err == nil {
		t.Fatal("expected error for missing DSN")
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_sales_order_date", "idx_sales_category", "idx_sales_region", "idx_jobs_status_run_after"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func TestPostgresRebind(t *testing.T) {
	got := Postgres.Rebind("SELECT x FROM t WHERE a = ? AND b = '?' AND c IN (?, ?)")
	want := "SELECT x FROM t WHERE a = $1 AND b = '?' AND c IN ($2, $3)"
	if got != want {
		t.Errorf("Rebind = %q, want %q", got, want)
	}
	if SQLite.Rebind("a = ?") != "a = ?" {
		t.Error("sqlite rebind should be identity")
	}
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("CREATE TABLE a (x INT);\n\n CREATE INDEX i ON a(x);\n")
	if len(got) != 2 {
		t.Fatalf("got %d statements, want 2: %q", len(got), got)
	}
}

func sampleRecords() []SalesRecord {
	return []SalesRecord{
		{
			OrderID: "O-1", OrderDate: day(2024, 1, 2), ShipDate: day(2024, 1, 4),
			CustomerID: "C-1", CustomerName: "Ada", Segment: "Consumer",
			Category: "Technology", Subcategory: "Phones",
			ProductID: "P-1", ProductName: "Phone", Region: "West",
			Sales: decimal.RequireFromString("199.99"), Quantity: 1,
		},
		{
			OrderID: "O-2", OrderDate: day(2024, 1, 1),
			CustomerID: "C-2", Segment: "Corporate",
			Category: "Furniture", ProductID: "P-2", ProductName: "Chair", Region: "East",
			Sales: decimal.RequireFromString("50.5"), Quantity: 2,
		},
	}
}

func TestReplaceSalesAndAllRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.ReplaceSales(ctx, sampleRecords())
	if err != nil {
		t.Fatalf("ReplaceSales: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}

	recs, err := s.AllRecords(ctx)
	if err != nil {
		t.Fatalf("AllRecords: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	// Ordered by order date.
	if recs[0].OrderID != "O-2" || recs[1].OrderID != "O-1" {
		t.Errorf("order = %s, %s", recs[0].OrderID, recs[1].OrderID)
	}
	if !recs[0].ShipDate.IsZero() {
		t.Errorf("ShipDate = %v, want zero", recs[0].ShipDate)
	}
	if recs[0].Subcategory != "" {
		t.Errorf("Subcategory = %q, want empty", recs[0].Subcategory)
	}
	if !recs[1].ShipDate.Equal(day(2024, 1, 4)) {
		t.Errorf("ShipDate = %v", recs[1].ShipDate)
	}
	if !recs[1].Sales.Equal(decimal.RequireFromString("199.99")) {
		t.Errorf("Sales = %s, want 199.99", recs[1].Sales)
	}
}

func TestReplaceSales_Replaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.ReplaceSales(ctx, sampleRecords()); err != nil {
		t.Fatalf("ReplaceSales: %v", err)
	}
	if _, err := s.ReplaceSales(ctx, sampleRecords()[:1]); err != nil {
		t.Fatalf("ReplaceSales: %v", err)
	}
	n, err := s.CountSales(ctx)
	if err != nil {
		t.Fatalf("CountSales: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestReplaceSales_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.ReplaceSales(ctx, sampleRecords()); err != nil {
		t.Fatalf("ReplaceSales: %v", err)
	}

	bad := sampleRecords()
	bad[1].Sales = decimal.NewFromInt(-1) // violates CHECK (sales >= 0)
	if _, err := s.ReplaceSales(ctx, bad); err == nil {
		t.Fatal("expected constraint error")
	}

	n, err := s.CountSales(ctx)
	if err != nil {
		t.Fatalf("CountSales: %v", err)
	}
	if n != 2 {
		t.Errorf("count after failed load = %d, want 2 (previous contents kept)", n)
	}
}

func TestDateBounds(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, _, ok, err := s.DateBounds(ctx); err != nil || ok {
		t.Fatalf("empty table: ok=%v err=%v", ok, err)
	}

	if _, err := s.ReplaceSales(ctx, sampleRecords()); err != nil {
		t.Fatalf("ReplaceSales: %v", err)
	}
	first, last, ok, err := s.DateBounds(ctx)
	if err != nil || !ok {
		t.Fatalf("DateBounds: ok=%v err=%v", ok, err)
	}
	if !first.Equal(day(2024, 1, 1)) || !last.Equal(day(2024, 1, 2)) {
		t.Errorf("bounds = %v..%v", first, last)
	}
}

func TestEnqueueAndClaimJob(t *testing.T) {
	s := openTestStore(t)

	job := Job{
		ID:          "j-claim-1",
		Type:        JobTypeLoadCSV,
		PayloadJSON: `{"path":"sales.csv"}`,
	}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{JobTypeLoadCSV})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != "j-claim-1" {
		t.Errorf("ID = %q, want %q", got.ID, "j-claim-1")
	}
	if got.PayloadJSON != `{"path":"sales.csv"}` {
		t.Errorf("PayloadJSON = %q", got.PayloadJSON)
	}
	if got.Status != "running" {
		t.Errorf("Status = %q, want %q", got.Status, "running")
	}
	if got.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", got.MaxAttempts)
	}
}

func TestClaimNextJob_Empty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.ClaimNextJob([]string{JobTypeLoadCSV})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestClaimNextJob_RespectRunAfter(t *testing.T) {
	s := openTestStore(t)

	job := Job{ID: "j-future", Type: JobTypeLoadCSV, PayloadJSON: `{}`, RunAfter: time.Now().UTC().Add(time.Hour)}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{JobTypeLoadCSV})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for future run_after, got %+v", got)
	}
}

func TestClaimNextJob_TypeFilter(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-a", Type: "a", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob a: %v", err)
	}
	if err := s.EnqueueJob(Job{ID: "j-b", Type: "b", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob b: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"b"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil || got.Type != "b" {
		t.Fatalf("claimed %+v, want type b", got)
	}
}

func TestCompleteJob(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-complete", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.CompleteJob("j-complete", `{"rows":10}`); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	got, err := s.GetJob("j-complete")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != "completed" {
		t.Errorf("status = %q, want %q", got.Status, "completed")
	}
	if got.ResultJSON != `{"rows":10}` {
		t.Errorf("result = %q", got.ResultJSON)
	}
}

func TestCompleteJob_NotFound(t *testing.T) {
	s := openTestStore(t)
	if err := s.CompleteJob("missing", ""); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetJob("missing"); err != ErrNotFound {
		t.Errorf("GetJob err = %v, want ErrNotFound", err)
	}
}

func TestFailJob_IncrementsAttempts(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-fail-inc", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	before := time.Now().UTC()
	if err := s.FailJob("j-fail-inc", "something broke"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	got, err := s.GetJob("j-fail-inc")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
	if got.Status != "pending" {
		t.Errorf("status = %q, want %q", got.Status, "pending")
	}
	if got.LastError != "something broke" {
		t.Errorf("last_error = %q", got.LastError)
	}
	if !got.RunAfter.After(before) {
		t.Errorf("run_after %v should be after %v", got.RunAfter, before)
	}
}

func TestFailJob_MaxAttemptsReached(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-fail-max", Type: "x", PayloadJSON: `{}`, MaxAttempts: 1}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.FailJob("j-fail-max", "fatal"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	got, err := s.GetJob("j-fail-max")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != "failed" {
		t.Errorf("status = %q, want %q", got.Status, "failed")
	}
}
