package statserver

import (
	"database/sql"

	"tacopt/internal/stats"
)

// DB wraps *sql.DB and provides the read-only query methods the handlers use.
type DB struct {
	*sql.DB
}

// NewDB returns a DB wrapper.
func NewDB(db *sql.DB) *DB {
	return &DB{DB: db}
}

// Run is one recorded tacstat invocation.
type Run struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 || limit > maxRunsLimit {
		limit = defaultRunsLimit
	}
	rows, err := db.Query(queryListRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// BenchmarkRow is one benchmark's percentage decrease for a single pass,
// the API-facing twin of stats.BenchmarkReport.
type BenchmarkRow struct {
	Benchmark       string  `json:"benchmark"`
	Pass            string  `json:"pass"`
	BaselineCount   int     `json:"baseline_count"`
	Count           int     `json:"count"`
	PercentDecrease float64 `json:"percent_decrease"`
}

// PassRow is one pass's average percentage decrease across benchmarks.
type PassRow struct {
	Pass            string  `json:"pass"`
	AverageDecrease float64 `json:"average_decrease"`
	SampleCount     int     `json:"sample_count"`
}

// RunSummary returns the percentage decrease of every non-baseline pass
// measured in runID, relative to that run's own actual_baseline row per
// benchmark.
func (db *DB) RunSummary(runID string) ([]BenchmarkRow, error) {
	rows, err := db.Query(queryRunMeasurements, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perBenchmark, err := scanMeasurements(rows)
	if err != nil {
		return nil, err
	}
	reports, _ := percentageDecreases(perBenchmark)
	return toBenchmarkRows(reports), nil
}

// PassAverages returns, for every pass ever recorded across every run, its
// average percentage decrease — the read-only API counterpart of
// stats.Report's summaries, computed from the same full measurements table.
func (db *DB) PassAverages() ([]PassRow, error) {
	rows, err := db.Query(queryAllMeasurements)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perBenchmark, err := scanMeasurements(rows)
	if err != nil {
		return nil, err
	}
	_, summaries := percentageDecreases(perBenchmark)
	return toPassRows(summaries), nil
}

func scanMeasurements(rows *sql.Rows) (map[string]map[string]int, error) {
	perBenchmark := map[string]map[string]int{}
	for rows.Next() {
		var b, p string
		var n int
		if err := rows.Scan(&b, &p, &n); err != nil {
			return nil, err
		}
		if perBenchmark[b] == nil {
			perBenchmark[b] = map[string]int{}
		}
		perBenchmark[b][p] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perBenchmark, nil
}

// percentageDecreases reproduces stats.Report's per-benchmark loop over a
// map already scanned from a database/sql result set (this package talks to
// the stats database through the modernc.org/sqlite driver, not the
// zombiezen.com/go/sqlite connection stats.Report operates on directly).
func percentageDecreases(perBenchmark map[string]map[string]int) ([]stats.BenchmarkReport, []stats.PassSummary) {
	benchmarks := make([]string, 0, len(perBenchmark))
	for b := range perBenchmark {
		benchmarks = append(benchmarks, b)
	}
	insertionSortStrings(benchmarks)

	var reports []stats.BenchmarkReport
	decreases := map[string][]float64{}
	for _, b := range benchmarks {
		perPass := perBenchmark[b]
		baseline, ok := perPass[stats.BaselinePass]
		if !ok || baseline == 0 {
			continue
		}
		passes := make([]string, 0, len(perPass))
		for p := range perPass {
			if p != stats.BaselinePass {
				passes = append(passes, p)
			}
		}
		insertionSortStrings(passes)
		for _, p := range passes {
			n := perPass[p]
			pct := (float64(baseline-n) / float64(baseline)) * 100
			reports = append(reports, stats.BenchmarkReport{
				Benchmark: b, Pass: p, BaselineCount: baseline, Count: n, PercentDecrease: pct,
			})
			decreases[p] = append(decreases[p], pct)
		}
	}

	passNames := make([]string, 0, len(decreases))
	for p := range decreases {
		passNames = append(passNames, p)
	}
	insertionSortStrings(passNames)

	summaries := make([]stats.PassSummary, 0, len(passNames))
	for _, p := range passNames {
		ds := decreases[p]
		sum := 0.0
		for _, d := range ds {
			sum += d
		}
		summaries = append(summaries, stats.PassSummary{Pass: p, AverageDecrease: sum / float64(len(ds)), SampleCount: len(ds)})
	}
	return reports, summaries
}

func toBenchmarkRows(reports []stats.BenchmarkReport) []BenchmarkRow {
	out := make([]BenchmarkRow, len(reports))
	for i, r := range reports {
		out[i] = BenchmarkRow{
			Benchmark: r.Benchmark, Pass: r.Pass, BaselineCount: r.BaselineCount,
			Count: r.Count, PercentDecrease: r.PercentDecrease,
		}
	}
	return out
}

func toPassRows(summaries []stats.PassSummary) []PassRow {
	out := make([]PassRow, len(summaries))
	for i, s := range summaries {
		out[i] = PassRow{Pass: s.Pass, AverageDecrease: s.AverageDecrease, SampleCount: s.SampleCount}
	}
	return out
}

func insertionSortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
