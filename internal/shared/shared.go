// package shared defines helpers used across the application: the error
// taxonomy, logging construction and a clock abstraction for tests.
package shared

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// NewLogger creates a [log.Logger] writing to w (defaults to [os.Stderr])
// with timestamps enabled.
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{ReportTimestamp: true})
}

// Clock abstracts time so retry/backoff logic is testable without sleeping.
type Clock interface {
	Now() time.Time
	Sleep(done <-chan struct{}, d time.Duration) bool // false if interrupted
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Sleep waits for d or until done is closed; returns true if the full
// duration elapsed.
func (RealClock) Sleep(done <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-done:
		return false
	}
}
