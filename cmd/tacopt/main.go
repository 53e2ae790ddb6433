package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/mod/semver"

	"tacopt/internal/driver"
	"tacopt/internal/progress"
	"tacopt/internal/serialize"
)

const version = "v0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the real entry point, split out from main so defers run on every
// return path instead of being skipped by os.Exit.
func run() error {
	passes := flag.String("passes", "", "Comma-separated list of passes to run, in order (see -list-passes)")
	listPasses := flag.Bool("list-passes", false, "Print available pass names and exit")
	output := flag.String("o", "", "Output file (default: stdout)")
	verbose := flag.Bool("verbose", false, "Print detailed progress")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tacopt [flags] <input.json>\n\n")
		fmt.Fprintf(os.Stderr, "Applies optimization passes to a JSON-encoded IR program, writing the\ntransformed program back out as JSON.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		if !semver.IsValid(version) {
			return fmt.Errorf("internal error: version %q is not valid semver", version)
		}
		fmt.Println(version)
		return nil
	}

	if *listPasses {
		for _, name := range driver.Names() {
			fmt.Println(name)
		}
		return nil
	}

	if flag.NArg() != 1 {
		flag.Usage()
		return fmt.Errorf("expected exactly 1 argument (input file, or - for stdin), got %d", flag.NArg())
	}

	reporter := progress.New(*verbose)

	data, err := readInput(flag.Arg(0))
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	reporter.Verbose("read %d bytes from %s", len(data), flag.Arg(0))

	program, err := serialize.Decode(data)
	if err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	reporter.Log("decoded %d functions", len(program.Functions))

	var names []string
	if *passes != "" {
		for _, n := range strings.Split(*passes, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}

	if err := driver.RunNamed(context.Background(), program, names); err != nil {
		return fmt.Errorf("run passes: %w", err)
	}
	for _, name := range names {
		reporter.Verbose("ran pass %q", name)
	}

	out, err := serialize.Encode(program)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	if *output == "" || *output == "-" {
		_, err = os.Stdout.Write(out)
		return err
	}
	if err := os.WriteFile(*output, out, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	reporter.Log("wrote %s", *output)
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
