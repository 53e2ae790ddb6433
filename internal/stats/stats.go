// Package stats persists per-(benchmark, pass) instruction-count
// measurements to a durable sqlite database and reports the percentage
// decrease each pass achieves against a baseline measurement, the
// sqlite-backed counterpart to find_stats.py's CSV-driven analysis.
package stats

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ncruces/go-strftime"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// BaselinePass is the measurement name find_stats.py calls "actual_baseline":
// the unoptimized instruction count every percentage decrease is measured
// against.
const BaselinePass = "actual_baseline"

// Measurement is one (benchmark, pass) instruction-count sample.
type Measurement struct {
	Benchmark    string
	Pass         string
	Instructions int
}

// Open opens (creating if absent) the stats database at path, applying the
// teacher's own write-heavy pragma recipe from db.go's WriteDB.
func Open(path string) (*sqlite.Conn, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate, sqlite.OpenReadWrite, sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("open stats db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
	} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := createSchema(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func createSchema(conn *sqlite.Conn) error {
	return sqlitex.ExecuteScript(conn, `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS measurements (
	run_id TEXT NOT NULL,
	benchmark TEXT NOT NULL,
	pass TEXT NOT NULL,
	instructions INTEGER NOT NULL
);
`, nil)
}

// NewRunID mints a fresh run identifier, so repeated tacstat runs against
// the same database don't collide and can be queried independently.
func NewRunID() string { return uuid.NewString() }

// RecordRun persists one run's measurements inside a single transaction,
// following the teacher's ImmediateTransaction-plus-batch-insert recipe.
func RecordRun(conn *sqlite.Conn, runID string, when time.Time, measurements []Measurement) (err error) {
	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer endFn(&err)

	runStmt, err := conn.Prepare(`INSERT INTO runs (id, created_at) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare run insert: %w", err)
	}
	defer func() { _ = runStmt.Finalize() }()
	runStmt.BindText(1, runID)
	runStmt.BindText(2, strftime.Format("%Y-%m-%d %H:%M:%S", when))
	if _, err = runStmt.Step(); err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}

	stmt, err := conn.Prepare(`INSERT INTO measurements (run_id, benchmark, pass, instructions) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare measurement insert: %w", err)
	}
	defer func() { _ = stmt.Finalize() }()
	for _, m := range measurements {
		stmt.BindText(1, runID)
		stmt.BindText(2, m.Benchmark)
		stmt.BindText(3, m.Pass)
		stmt.BindInt64(4, int64(m.Instructions))
		if _, err = stmt.Step(); err != nil {
			return fmt.Errorf("insert measurement %s/%s: %w", m.Benchmark, m.Pass, err)
		}
		if err = stmt.Reset(); err != nil {
			return fmt.Errorf("reset measurement statement: %w", err)
		}
	}
	return nil
}

// BenchmarkReport is one benchmark's percentage decrease for a single pass,
// relative to that benchmark's most recently recorded baseline.
type BenchmarkReport struct {
	Benchmark       string
	Pass            string
	BaselineCount   int
	Count           int
	PercentDecrease float64
}

// PassSummary is one pass's average percentage decrease across every
// benchmark that measured it — optimization_stats in find_stats.py.
type PassSummary struct {
	Pass            string
	AverageDecrease float64
	SampleCount     int
}

// Report computes per-benchmark percentage decreases and per-pass averages
// from the latest instruction count recorded for each (benchmark, pass)
// pair across every run in the database, mirroring find_stats.py's
// per-benchmark loop over optimization rows. A benchmark with no recorded
// baseline contributes nothing, since there is nothing to compare against.
func Report(conn *sqlite.Conn) ([]BenchmarkReport, []PassSummary, error) {
	latest := map[string]map[string]int{}
	err := sqlitex.ExecuteTransient(conn,
		`SELECT benchmark, pass, instructions FROM measurements ORDER BY rowid`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				b := stmt.ColumnText(0)
				p := stmt.ColumnText(1)
				n := int(stmt.ColumnInt64(2))
				if latest[b] == nil {
					latest[b] = map[string]int{}
				}
				latest[b][p] = n
				return nil
			},
		})
	if err != nil {
		return nil, nil, fmt.Errorf("query measurements: %w", err)
	}

	benchmarks := make([]string, 0, len(latest))
	for b := range latest {
		benchmarks = append(benchmarks, b)
	}
	insertionSortStrings(benchmarks)

	var reports []BenchmarkReport
	decreases := map[string][]float64{}
	for _, b := range benchmarks {
		perPass := latest[b]
		baseline, ok := perPass[BaselinePass]
		if !ok || baseline == 0 {
			continue
		}
		passes := make([]string, 0, len(perPass))
		for p := range perPass {
			if p != BaselinePass {
				passes = append(passes, p)
			}
		}
		insertionSortStrings(passes)
		for _, p := range passes {
			n := perPass[p]
			pct := (float64(baseline-n) / float64(baseline)) * 100
			reports = append(reports, BenchmarkReport{
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

	summaries := make([]PassSummary, 0, len(passNames))
	for _, p := range passNames {
		ds := decreases[p]
		sum := 0.0
		for _, d := range ds {
			sum += d
		}
		summaries = append(summaries, PassSummary{Pass: p, AverageDecrease: sum / float64(len(ds)), SampleCount: len(ds)})
	}

	return reports, summaries, nil
}

func insertionSortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
