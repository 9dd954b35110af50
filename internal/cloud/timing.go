// timing.go - vend phase timing for diagnosing slow identity providers.
//
// Enable timing output by setting CREDVEND_TIMING=1.
// Output format: [TIMING] phase_name: duration (optional_details)
//
//	[TIMING] vend s3://bucket-a: 412ms (provider=aws)
//	[TIMING] vend abfss://data@acct.dfs.core.windows.net: 1.3s (provider=azure)
package cloud

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"
)

// TimingEnabled returns true if CREDVEND_TIMING=1.
func TimingEnabled() bool {
	return os.Getenv("CREDVEND_TIMING") == "1"
}

// TimingLog writes a timing message to w (os.Stderr if nil) when timing is enabled.
func TimingLog(w io.Writer, format string, args ...interface{}) {
	if !TimingEnabled() {
		return
	}
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, "[TIMING] %s\n", fmt.Sprintf(format, args...))
}

// Timer tracks elapsed time for a named phase.
// Stop is idempotent and safe to call from several goroutines.
type Timer struct {
	name    string
	start   time.Time
	w       io.Writer
	stopped int32 // atomic flag
}

// StartTimer creates a timer. The timer writes to os.Stderr if w is nil.
func StartTimer(w io.Writer, name string) *Timer {
	if w == nil {
		w = os.Stderr
	}
	return &Timer{
		name:  name,
		start: time.Now(),
		w:     w,
	}
}

// Stop logs the elapsed time once and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if atomic.CompareAndSwapInt32(&t.stopped, 0, 1) && TimingEnabled() {
		fmt.Fprintf(t.w, "[TIMING] %s: %v\n", t.name, elapsed)
	}
	return elapsed
}

// StopWithMessage logs a custom message with the elapsed time.
func (t *Timer) StopWithMessage(format string, args ...interface{}) time.Duration {
	elapsed := time.Since(t.start)
	if atomic.CompareAndSwapInt32(&t.stopped, 0, 1) && TimingEnabled() {
		fmt.Fprintf(t.w, "[TIMING] %s: %v (%s)\n", t.name, elapsed, fmt.Sprintf(format, args...))
	}
	return elapsed
}

// Elapsed returns the current elapsed time without stopping the timer.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
