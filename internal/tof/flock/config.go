package flock

import (
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/tofgrid/internal/tof/results"
)

// Mode is the ranging mode of the sensor engine.
type Mode int

const (
	// ModeContinuous ranges back to back; the VCSEL is always on.
	ModeContinuous Mode = iota
	// ModeAutonomous ranges for IntegrationTime once per period.
	ModeAutonomous
)

func (m Mode) String() string {
	if m == ModeAutonomous {
		return "autonomous"
	}
	return "continuous"
}

// TargetOrder decides how targets within a zone are ranked.
type TargetOrder int

const (
	OrderClosest TargetOrder = iota
	OrderStrongest
)

func (o TargetOrder) String() string {
	if o == OrderStrongest {
		return "strongest"
	}
	return "closest"
}

// ParseMode accepts "continuous" or "autonomous".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "continuous":
		return ModeContinuous, nil
	case "autonomous":
		return ModeAutonomous, nil
	}
	return 0, fmt.Errorf("unknown ranging mode %q", s)
}

// ParseTargetOrder accepts "closest" or "strongest".
func ParseTargetOrder(s string) (TargetOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "closest":
		return OrderClosest, nil
	case "strongest":
		return OrderStrongest, nil
	}
	return 0, fmt.Errorf("unknown target order %q", s)
}

// RangingConfig is handed unchanged to every sensor's StartRanging. The
// flock itself only reads Layout, to decode results.
type RangingConfig struct {
	Layout          results.Layout
	FrequencyHz     int
	Mode            Mode
	IntegrationTime time.Duration
	TargetOrder     TargetOrder
}

// Validate applies the vendor limits: 1..15 Hz at 8×8, 1..60 Hz at 4×4,
// and 2..1000 ms integration in autonomous mode.
func (c RangingConfig) Validate() error {
	if err := c.Layout.Validate(); err != nil {
		return err
	}
	maxHz := 60
	if c.Layout.Dim == 8 {
		maxHz = 15
	}
	if c.FrequencyHz < 1 || c.FrequencyHz > maxHz {
		return fmt.Errorf("ranging frequency %d Hz: must be 1..%d at %dx%d", c.FrequencyHz, maxHz, c.Layout.Dim, c.Layout.Dim)
	}
	if c.Mode == ModeAutonomous {
		if c.IntegrationTime < 2*time.Millisecond || c.IntegrationTime > time.Second {
			return fmt.Errorf("integration time %v: must be 2ms..1s", c.IntegrationTime)
		}
		if c.IntegrationTime >= time.Second/time.Duration(c.FrequencyHz) {
			return fmt.Errorf("integration time %v does not fit a %d Hz period", c.IntegrationTime, c.FrequencyHz)
		}
	}
	return nil
}
