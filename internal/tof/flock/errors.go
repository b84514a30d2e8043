package flock

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStopped is returned by Next and Stop once the flock has been stopped.
	ErrStopped = errors.New("flock: stopped")
	// ErrNoSensors is returned by Start for an empty device list.
	ErrNoSensors = errors.New("flock: no sensors")
	// ErrNoLine is returned by Start without an interrupt line.
	ErrNoLine = errors.New("flock: no interrupt line")
)

// SensorError is a transport failure of one sensor.
type SensorError struct {
	Sensor int
	Op     string
	Err    error
}

func (e *SensorError) Error() string {
	return fmt.Sprintf("sensor #%d %s: %v", e.Sensor, e.Op, e.Err)
}

func (e *SensorError) Unwrap() error { return e.Err }

// StartError reports the first sensor that refused to start. Sensors started
// before it were stopped again in reverse order; RollbackErrs lists the ones
// that could not be.
type StartError struct {
	Failed       int
	Err          error
	RollbackErrs []*SensorError
}

func (e *StartError) Error() string {
	msg := fmt.Sprintf("flock: start sensor #%d: %v", e.Failed, e.Err)
	if len(e.RollbackErrs) > 0 {
		parts := make([]string, len(e.RollbackErrs))
		for i, re := range e.RollbackErrs {
			parts[i] = re.Error()
		}
		msg += "; rollback failed: " + strings.Join(parts, "; ")
	}
	return msg
}

func (e *StartError) Unwrap() error { return e.Err }

// StopError reports sensors that failed to stop. Their handles are still
// ranging and are kept in Remaining, keyed by sensor index.
type StopError struct {
	Failed    []*SensorError
	Remaining map[int]Ranging
}

func (e *StopError) Error() string {
	parts := make([]string, len(e.Failed))
	for i, se := range e.Failed {
		parts[i] = se.Error()
	}
	return "flock: stop: " + strings.Join(parts, "; ")
}

func (e *StopError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, se := range e.Failed {
		errs[i] = se
	}
	return errs
}
