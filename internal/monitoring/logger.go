package monitoring

import (
	"fmt"
	"io"
	"log"
	"strings"
)

// LogWriters holds the io.Writers for the ops, diag and trace streams that
// the acquisition packages log to. A nil writer disables that stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

// StreamsForLevel enables streams up to level ("ops", "diag" or "trace"),
// all written to w.
func StreamsForLevel(level string, w io.Writer) (LogWriters, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "ops":
		return LogWriters{Ops: w}, nil
	case "diag":
		return LogWriters{Ops: w, Diag: w}, nil
	case "trace":
		return LogWriters{Ops: w, Diag: w, Trace: w}, nil
	case "off", "none":
		return LogWriters{}, nil
	}
	return LogWriters{}, fmt.Errorf("unknown log level %q: expected ops, diag, trace or off", level)
}

// NewLogger creates a *log.Logger for a given writer, or returns nil if w is nil.
func NewLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}
