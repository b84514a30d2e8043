// Package bridge drives ranging sensors hosted by a microcontroller over a
// line-oriented serial protocol. The firmware runs the vendor engine for each
// sensor and forwards raw result buffers and the shared INT level to the
// host.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/tofgrid/internal/monitoring"
	"github.com/banshee-data/tofgrid/internal/timeutil"
	"github.com/banshee-data/tofgrid/internal/tof/flock"
	"github.com/banshee-data/tofgrid/internal/tof/results"
)

var (
	// ErrDisconnected is returned once the serial link has gone away.
	ErrDisconnected = errors.New("bridge disconnected")
	// ErrAckTimeout is returned when the firmware does not answer a command.
	ErrAckTimeout = errors.New("bridge command not acknowledged")
	// ErrNoResult is returned by FetchRaw when no buffer is waiting.
	ErrNoResult = errors.New("no result waiting")
)

// CommandError is an ERR reply from the firmware.
type CommandError struct {
	Verb   string
	Sensor int
	Msg    string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s sensor #%d rejected: %s", e.Verb, e.Sensor, e.Msg)
}

// Port is the part of a serialmux.SerialMux the bridge needs.
type Port interface {
	Subscribe(buffer int) (string, chan string)
	Unsubscribe(id string)
	SendCommand(command string) error
}

type ackKey struct {
	verb   string
	sensor int
}

type mailbox struct {
	ranging  bool
	payload  []byte
	overruns uint64
}

// Bridge owns the protocol state for one serial link.
type Bridge struct {
	port    Port
	subID   string
	lines   chan string
	timeout time.Duration
	clock   timeutil.Clock
	metrics *monitoring.FlockMetrics

	mu    sync.Mutex
	boxes []mailbox
	acks  map[ackKey]chan error
	err   error

	line *Line
}

// Option customises a Bridge.
type Option func(*Bridge)

// WithAckTimeout bounds how long START and STOP wait for a reply.
func WithAckTimeout(d time.Duration) Option { return func(b *Bridge) { b.timeout = d } }

func WithClock(c timeutil.Clock) Option { return func(b *Bridge) { b.clock = c } }

// WithMetrics counts overruns into m.
func WithMetrics(m *monitoring.FlockMetrics) Option { return func(b *Bridge) { b.metrics = m } }

// New subscribes to port and prepares n sensors. Run must be started to
// process incoming lines.
func New(port Port, n int, opts ...Option) *Bridge {
	b := &Bridge{
		port:    port,
		timeout: 2 * time.Second,
		clock:   timeutil.RealClock{},
		boxes:   make([]mailbox, n),
		acks:    make(map[ackKey]chan error),
		line:    newLine(),
	}
	for _, o := range opts {
		o(b)
	}
	b.subID, b.lines = port.Subscribe(4 * (n + 1))
	return b
}

// Devices returns one flock.Device per sensor slot.
func (b *Bridge) Devices() []flock.Device {
	devs := make([]flock.Device, len(b.boxes))
	for i := range devs {
		devs[i] = &Device{b: b, idx: i}
	}
	return devs
}

// Line is the shared interrupt line.
func (b *Bridge) Line() *Line { return b.line }

// Overruns is how many unread buffers of sensor idx were replaced by newer
// ones.
func (b *Bridge) Overruns(idx int) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.boxes[idx].overruns
}

// Run dispatches incoming lines until ctx ends or the port closes the
// subscription. Afterwards every blocked call fails with ErrDisconnected.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.disconnect()
	for {
		select {
		case <-ctx.Done():
			b.port.Unsubscribe(b.subID)
			return ctx.Err()
		case line, ok := <-b.lines:
			if !ok {
				opsf("serial subscription closed")
				return ErrDisconnected
			}
			b.handle(line)
		}
	}
}

func (b *Bridge) handle(line string) {
	m, err := ParseLine(line)
	if err != nil {
		opsf("ignoring malformed line: %v", err)
		return
	}
	switch m.Kind {
	case KindInt:
		tracef("INT %s", map[bool]string{true: "low", false: "high"}[m.Low])
		b.line.set(m.Low)
	case KindResult:
		b.deliver(m.Sensor, m.Payload)
	case KindOK, KindErr:
		b.ack(m)
	default:
		if m.Text != "" {
			diagf("firmware: %s", m.Text)
		}
	}
}

func (b *Bridge) deliver(idx int, payload []byte) {
	b.mu.Lock()
	if idx >= len(b.boxes) || !b.boxes[idx].ranging {
		b.mu.Unlock()
		diagf("dropping result for idle sensor #%d", idx)
		return
	}
	box := &b.boxes[idx]
	overrun := box.payload != nil
	if overrun {
		box.overruns++
	}
	box.payload = payload
	b.mu.Unlock()

	if overrun {
		b.metrics.ObserveOverrun(idx)
		diagf("sensor #%d overrun: unread result replaced", idx)
	}
	b.line.pulse()
}

func (b *Bridge) ack(m Message) {
	var reply error
	if m.Kind == KindErr {
		reply = &CommandError{Verb: m.Verb, Sensor: m.Sensor, Msg: m.Text}
	}
	b.mu.Lock()
	ch, ok := b.acks[ackKey{m.Verb, m.Sensor}]
	delete(b.acks, ackKey{m.Verb, m.Sensor})
	b.mu.Unlock()
	if !ok {
		diagf("unsolicited reply %s #%d", m.Verb, m.Sensor)
		return
	}
	ch <- reply
}

func (b *Bridge) disconnect() {
	b.mu.Lock()
	b.err = ErrDisconnected
	for k, ch := range b.acks {
		ch <- ErrDisconnected
		delete(b.acks, k)
	}
	b.mu.Unlock()
	b.line.close()
}

// command sends line and waits for the matching OK or ERR.
func (b *Bridge) command(verb string, idx int, line string) error {
	key := ackKey{verb, idx}
	ch := make(chan error, 1)

	b.mu.Lock()
	if b.err != nil {
		b.mu.Unlock()
		return b.err
	}
	if _, busy := b.acks[key]; busy {
		b.mu.Unlock()
		return fmt.Errorf("%s sensor #%d already in flight", verb, idx)
	}
	b.acks[key] = ch
	b.mu.Unlock()

	if err := b.port.SendCommand(line); err != nil {
		b.mu.Lock()
		delete(b.acks, key)
		b.mu.Unlock()
		return fmt.Errorf("send %s: %w", verb, err)
	}

	select {
	case err := <-ch:
		return err
	case <-b.clock.After(b.timeout):
		b.mu.Lock()
		delete(b.acks, key)
		b.mu.Unlock()
		return fmt.Errorf("%s sensor #%d: %w after %v", verb, idx, ErrAckTimeout, b.timeout)
	}
}

// Device is a sensor slot on the bridge that is not ranging.
type Device struct {
	b   *Bridge
	idx int
}

func (d *Device) Index() int { return d.idx }

// StartRanging sends START and waits for the firmware to confirm.
func (d *Device) StartRanging(cfg flock.RangingConfig) (flock.Ranging, error) {
	d.b.mu.Lock()
	d.b.boxes[d.idx] = mailbox{ranging: true, overruns: d.b.boxes[d.idx].overruns}
	d.b.mu.Unlock()

	if err := d.b.command(verbStart, d.idx, FormatStart(d.idx, cfg)); err != nil {
		d.b.mu.Lock()
		d.b.boxes[d.idx].ranging = false
		d.b.mu.Unlock()
		return nil, err
	}
	diagf("sensor #%d ranging %s at %d Hz", d.idx, cfg.Layout, cfg.FrequencyHz)
	return &Ranging{b: d.b, idx: d.idx, layout: cfg.Layout}, nil
}

// Ranging is a sensor slot whose firmware engine is producing results.
type Ranging struct {
	b      *Bridge
	idx    int
	layout results.Layout
}

// IsReady reports whether an unread buffer waits in the sensor's mailbox.
func (r *Ranging) IsReady() (bool, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if r.b.boxes[r.idx].payload != nil {
		return true, nil
	}
	if r.b.err != nil {
		return false, r.b.err
	}
	return false, nil
}

// FetchRaw takes the waiting buffer and decodes its wire format.
func (r *Ranging) FetchRaw() (*results.Raw, error) {
	r.b.mu.Lock()
	box := &r.b.boxes[r.idx]
	payload := box.payload
	box.payload = nil
	r.b.mu.Unlock()

	if payload == nil {
		return nil, ErrNoResult
	}
	return r.layout.UnmarshalRaw(payload)
}

// Stop sends STOP. On failure the sensor keeps ranging and r stays usable.
func (r *Ranging) Stop() (flock.Device, error) {
	if err := r.b.command(verbStop, r.idx, FormatStop(r.idx)); err != nil {
		return nil, err
	}
	r.b.mu.Lock()
	r.b.boxes[r.idx].ranging = false
	r.b.boxes[r.idx].payload = nil
	r.b.mu.Unlock()
	return &Device{b: r.b, idx: r.idx}, nil
}
