package serialmux

import (
	"log"
	"sync"

	"github.com/banshee-data/tofgrid/internal/monitoring"
)

var (
	logMu       sync.RWMutex
	opsLogger   *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures logging for the serial mux. Only the ops and
// trace streams are used; trace carries every line in both directions.
func SetLogWriters(w monitoring.LogWriters) {
	logMu.Lock()
	defer logMu.Unlock()
	opsLogger = monitoring.NewLogger("[serialmux] ", w.Ops)
	traceLogger = monitoring.NewLogger("[serialmux] ", w.Trace)
}

func opsf(format string, args ...interface{}) {
	logMu.RLock()
	l := opsLogger
	logMu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}

func tracef(format string, args ...interface{}) {
	logMu.RLock()
	l := traceLogger
	logMu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}
