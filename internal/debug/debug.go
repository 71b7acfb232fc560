// Package debug provides opt-in tracing for ingest and search, off by
// default so the core stays silent as an embedded library.
package debug

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// enabled gates all output from Printf. Flip with SetEnabled, typically
// from a CLI --debug flag.
var enabled = false

var (
	mu  sync.Mutex
	out io.Writer
)

// SetEnabled turns tracing on or off.
func SetEnabled(v bool) {
	mu.Lock()
	enabled = v
	mu.Unlock()
}

// SetOutput sets the writer tracing is sent to. Pass nil to discard.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

// Printf writes a timestamped trace line if tracing is enabled.
func Printf(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled || out == nil {
		return
	}
	ts := time.Now().Format("15:04:05.000")
	fmt.Fprintf(out, "[%s] %s\n", ts, fmt.Sprintf(format, args...))
}
