package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ncruces/go-strftime"
	"golang.org/x/mod/semver"

	"tacopt/internal/ir"
	"tacopt/internal/progress"
	"tacopt/internal/serialize"
	"tacopt/internal/stats"
)

const version = "v0.1.0"

// manifestEntry names one (benchmark, pass) instruction-count sample: a
// JSON IR program file whose decoded instruction count is the measurement,
// the sqlite-backed counterpart to a row of find_stats.py's input CSV.
type manifestEntry struct {
	Benchmark string `json:"benchmark"`
	Pass      string `json:"pass"`
	File      string `json:"file"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("tacstat", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tacstat [flags] <run|report> ...\n\n")
		fmt.Fprintf(os.Stderr, "  run -manifest FILE     record instruction counts from a manifest\n")
		fmt.Fprintf(os.Stderr, "  report                 print percentage decreases per benchmark and pass\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	db := fs.String("db", "tacstat.db", "Path to the stats sqlite database")
	manifest := fs.String("manifest", "", "Manifest file listing (benchmark, pass, file) measurements (run subcommand)")
	verbose := fs.Bool("verbose", false, "Print detailed progress")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		if !semver.IsValid(version) {
			return fmt.Errorf("internal error: version %q is not valid semver", version)
		}
		fmt.Println(version)
		return nil
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("expected exactly one subcommand (run or report), got %d", fs.NArg())
	}

	reporter := progress.New(*verbose)

	switch fs.Arg(0) {
	case "run":
		if *manifest == "" {
			return fmt.Errorf("run requires -manifest")
		}
		return runRecord(*db, *manifest, reporter)
	case "report":
		return runReport(*db, reporter)
	default:
		fs.Usage()
		return fmt.Errorf("unknown subcommand %q", fs.Arg(0))
	}
}

func runRecord(dbPath, manifestPath string, reporter *progress.Reporter) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var entries []manifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	reporter.Verbose("manifest lists %d measurements", len(entries))

	measurements := make([]stats.Measurement, 0, len(entries))
	for _, e := range entries {
		progData, err := os.ReadFile(e.File)
		if err != nil {
			return fmt.Errorf("read %s: %w", e.File, err)
		}
		prog, err := serialize.Decode(progData)
		if err != nil {
			return fmt.Errorf("decode %s: %w", e.File, err)
		}
		n := countInstructions(prog)
		reporter.Verbose("%s/%s: %d instructions (%s)", e.Benchmark, e.Pass, n, e.File)
		measurements = append(measurements, stats.Measurement{
			Benchmark:    e.Benchmark,
			Pass:         e.Pass,
			Instructions: n,
		})
	}

	conn, err := stats.Open(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	runID := stats.NewRunID()
	now := time.Now()
	if err := stats.RecordRun(conn, runID, now, measurements); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	reporter.Log("recorded run %s (%s) with %d measurements", runID, strftime.Format("%Y-%m-%d %H:%M:%S", now), len(measurements))
	return nil
}

func countInstructions(prog *ir.Program) int {
	total := 0
	for _, fn := range prog.Functions {
		total += len(fn.Instrs)
	}
	return total
}

func runReport(dbPath string, reporter *progress.Reporter) error {
	conn, err := stats.Open(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	reports, summaries, err := stats.Report(conn)
	if err != nil {
		return fmt.Errorf("compute report: %w", err)
	}
	reporter.Verbose("computed %d benchmark rows and %d pass summaries", len(reports), len(summaries))

	tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "BENCHMARK\tPASS\tBASELINE\tCOUNT\tDECREASE")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Benchmark, r.Pass,
			humanize.Comma(int64(r.BaselineCount)),
			humanize.Comma(int64(r.Count)),
			formatPercent(r.PercentDecrease))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(summaries) > 0 {
		fmt.Fprintln(os.Stdout)
		tw = tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
		fmt.Fprintln(tw, "PASS\tAVG DECREASE\tSAMPLES")
		for _, s := range summaries {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Pass, formatPercent(s.AverageDecrease), strconv.Itoa(s.SampleCount))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func formatPercent(pct float64) string {
	return fmt.Sprintf("%.2f%%", pct)
}
