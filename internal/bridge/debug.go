package bridge

import (
	"log"
	"sync"

	"github.com/banshee-data/tofgrid/internal/monitoring"
)

var (
	logMu       sync.RWMutex
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures the three logging streams for the bridge package.
func SetLogWriters(w monitoring.LogWriters) {
	logMu.Lock()
	defer logMu.Unlock()
	opsLogger = monitoring.NewLogger("[bridge] ", w.Ops)
	diagLogger = monitoring.NewLogger("[bridge] ", w.Diag)
	traceLogger = monitoring.NewLogger("[bridge] ", w.Trace)
}

func logTo(l **log.Logger, format string, args ...interface{}) {
	logMu.RLock()
	lg := *l
	logMu.RUnlock()
	if lg != nil {
		lg.Printf(format, args...)
	}
}

func opsf(format string, args ...interface{})   { logTo(&opsLogger, format, args...) }
func diagf(format string, args ...interface{})  { logTo(&diagLogger, format, args...) }
func tracef(format string, args ...interface{}) { logTo(&traceLogger, format, args...) }
