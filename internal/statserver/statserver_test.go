package statserver

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
	CREATE TABLE runs (id TEXT PRIMARY KEY, created_at TEXT NOT NULL);
	CREATE TABLE measurements (run_id TEXT NOT NULL, benchmark TEXT NOT NULL, pass TEXT NOT NULL, instructions INTEGER NOT NULL);
	`)
	if err != nil {
		t.Fatalf("create schema: %v", err)
	}

	_, _ = db.Exec(`INSERT INTO runs VALUES ('run-1', '2026-01-01 00:00:00');`)
	_, _ = db.Exec(`INSERT INTO measurements VALUES ('run-1', 'fib', 'actual_baseline', 100);`)
	_, _ = db.Exec(`INSERT INTO measurements VALUES ('run-1', 'fib', 'lvn', 80);`)
	_, _ = db.Exec(`INSERT INTO measurements VALUES ('run-1', 'sum', 'actual_baseline', 50);`)
	_, _ = db.Exec(`INSERT INTO measurements VALUES ('run-1', 'sum', 'lvn', 45);`)

	return db
}

func TestAPI_ListRuns(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db)
	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/runs: want 200, got %d", rec.Code)
	}
	var runs []Run
	if err := json.NewDecoder(rec.Body).Decode(&runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Errorf("unexpected runs: %+v", runs)
	}
}

func TestAPI_RunSummary_ComputesPercentageDecrease(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db)
	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-1/summary", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/runs/run-1/summary: want 200, got %d", rec.Code)
	}
	var rows []BenchmarkRow
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 benchmark rows, got %d: %+v", len(rows), rows)
	}
	for _, row := range rows {
		if row.Benchmark == "fib" && row.PercentDecrease != 20 {
			t.Errorf("fib lvn: expected 20%% decrease, got %v", row.PercentDecrease)
		}
	}
}

func TestAPI_RunSummary_UnknownRunIsNotFound(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db)
	req := httptest.NewRequest(http.MethodGet, "/api/runs/does-not-exist/summary", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("want 404 for unknown run, got %d", rec.Code)
	}
}

func TestAPI_PassAverages(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db)
	req := httptest.NewRequest(http.MethodGet, "/api/passes", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/passes: want 200, got %d", rec.Code)
	}
	var summaries []PassRow
	if err := json.NewDecoder(rec.Body).Decode(&summaries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Pass != "lvn" {
		t.Fatalf("expected a single lvn summary, got %+v", summaries)
	}
	if summaries[0].SampleCount != 2 {
		t.Errorf("lvn measured on 2 benchmarks, got SampleCount %d", summaries[0].SampleCount)
	}
}
