// Package progress reports elapsed-time CLI progress to stderr, kept in the
// shape of the teacher's own Progress type in main.go.
package progress

import (
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Reporter prints elapsed-time-prefixed lines to stderr.
type Reporter struct {
	start   time.Time
	verbose bool
	compact bool
}

// New creates a progress reporter. When stderr is not a terminal (piped or
// logged), lines drop the bracketed "[mm:ss]" form in favor of a plain
// prefix, since no one is watching a live cursor.
func New(verbose bool) *Reporter {
	return &Reporter{
		start:   time.Now(),
		verbose: verbose,
		compact: !isatty.IsTerminal(os.Stderr.Fd()),
	}
}

// Log prints a progress message with elapsed time prefix.
func (r *Reporter) Log(format string, args ...any) {
	elapsed := time.Since(r.start)
	msg := fmt.Sprintf(format, args...)
	if r.compact {
		fmt.Fprintf(os.Stderr, "+%ds %s\n", int(elapsed.Seconds()), msg)
		return
	}
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	fmt.Fprintf(os.Stderr, "[%02d:%02d] %s\n", mins, secs, msg)
}

// Verbose prints only when verbose mode is enabled.
func (r *Reporter) Verbose(format string, args ...any) {
	if r.verbose {
		r.Log(format, args...)
	}
}
