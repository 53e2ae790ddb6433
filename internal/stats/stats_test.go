package stats

import (
	"path/filepath"
	"testing"
	"time"
)

func TestRecordRun_AndReport_ComputesPercentageDecrease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.db")
	conn, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	runID := NewRunID()
	measurements := []Measurement{
		{Benchmark: "fib", Pass: BaselinePass, Instructions: 100},
		{Benchmark: "fib", Pass: "lvn", Instructions: 80},
		{Benchmark: "fib", Pass: "trivial-dce", Instructions: 90},
		{Benchmark: "sum", Pass: BaselinePass, Instructions: 50},
		{Benchmark: "sum", Pass: "lvn", Instructions: 40},
	}
	if err := RecordRun(conn, runID, time.Unix(0, 0), measurements); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	reports, summaries, err := Report(conn)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("expected 3 non-baseline reports, got %d: %+v", len(reports), reports)
	}

	var fibLVN *BenchmarkReport
	for i := range reports {
		if reports[i].Benchmark == "fib" && reports[i].Pass == "lvn" {
			fibLVN = &reports[i]
		}
	}
	if fibLVN == nil {
		t.Fatal("expected a fib/lvn report")
	}
	if fibLVN.PercentDecrease != 20 {
		t.Errorf("fib lvn: expected 20%% decrease (100 -> 80), got %v", fibLVN.PercentDecrease)
	}

	var lvnSummary *PassSummary
	for i := range summaries {
		if summaries[i].Pass == "lvn" {
			lvnSummary = &summaries[i]
		}
	}
	if lvnSummary == nil {
		t.Fatal("expected an lvn summary")
	}
	if lvnSummary.SampleCount != 2 {
		t.Errorf("lvn ran on 2 benchmarks, expected SampleCount 2, got %d", lvnSummary.SampleCount)
	}
	// fib: 20% decrease, sum: (50-40)/50*100 = 20% decrease too.
	if lvnSummary.AverageDecrease != 20 {
		t.Errorf("expected average decrease 20, got %v", lvnSummary.AverageDecrease)
	}
}

func TestReport_SkipsBenchmarkWithNoBaseline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.db")
	conn, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	if err := RecordRun(conn, NewRunID(), time.Unix(0, 0), []Measurement{
		{Benchmark: "orphan", Pass: "lvn", Instructions: 10},
	}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	reports, summaries, err := Report(conn)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(reports) != 0 || len(summaries) != 0 {
		t.Errorf("benchmark with no baseline should contribute nothing, got reports=%+v summaries=%+v", reports, summaries)
	}
}
