package pipeline

import (
	"io"
	"log"
	"os"

	"github.com/banshee-data/polarization.report/internal/monitoring"
)

var opsLogger = newLogger(os.Stderr)

// SetOpsWriter redirects the ops stream (run summary, warnings).
// Pass nil to disable it.
func SetOpsWriter(w io.Writer) {
	opsLogger = newLogger(w)
}

func newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, "[pipeline] ", log.LstdFlags)
}

// opsf logs to the ops stream (actionable warnings, run summary).
func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

// diagf logs per-frame and per-stage detail through the debug logger.
func diagf(format string, args ...interface{}) {
	monitoring.Logf("[pipeline] "+format, args...)
}
