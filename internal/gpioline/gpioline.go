// Package gpioline watches the sensors' shared open-drain INT pin on a host
// GPIO.
package gpioline

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// DefaultPoll is how long one WaitForEdge call blocks before the context is
// checked again.
const DefaultPoll = 100 * time.Millisecond

// Pin is the subset of gpio.PinIn the line uses.
type Pin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	WaitForEdge(timeout time.Duration) bool
	Read() gpio.Level
}

// Line is an INT pin configured with a pull-up and edge detection in both
// directions.
type Line struct {
	pin  Pin
	poll time.Duration
}

// Open initialises the host drivers and claims the pin called name, for
// example "GPIO17".
func Open(name string) (*Line, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init gpio host drivers: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	return New(p, DefaultPoll)
}

// New configures pin as the INT input.
func New(pin Pin, poll time.Duration) (*Line, error) {
	if poll <= 0 {
		poll = DefaultPoll
	}
	if err := pin.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("configure INT pin: %w", err)
	}
	return &Line{pin: pin, poll: poll}, nil
}

// WaitForAnyEdge blocks until the pin changes level or ctx ends.
func (l *Line) WaitForAnyEdge(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.pin.WaitForEdge(l.poll) {
			return nil
		}
	}
}

func (l *Line) IsLow() bool { return l.pin.Read() == gpio.Low }
