package flock

import (
	"context"
	"time"

	"github.com/banshee-data/tofgrid/internal/monitoring"
	"github.com/banshee-data/tofgrid/internal/timeutil"
	"github.com/banshee-data/tofgrid/internal/tof/results"
)

// Device is a sensor that is initialised but not ranging.
type Device interface {
	StartRanging(cfg RangingConfig) (Ranging, error)
}

// Ranging is a sensor whose engine is producing results.
type Ranging interface {
	// IsReady reports whether a new result is waiting. It does not consume it.
	IsReady() (bool, error)
	// FetchRaw transfers the waiting result and clears readiness.
	FetchRaw() (*results.Raw, error)
	// Stop ends ranging and returns the idle device.
	Stop() (Device, error)
}

// InterruptLine is the wired-OR INT line shared by all sensors.
type InterruptLine interface {
	// WaitForAnyEdge blocks until the line changes level in either direction
	// or ctx is done.
	WaitForAnyEdge(ctx context.Context) error
	IsLow() bool
}

// Result is one decoded ranging cycle tagged with the index of the sensor
// that produced it. At is taken right after readiness was confirmed, before
// the transfer.
type Result struct {
	Sensor int
	Data   *results.ResultsData
	Temp   results.Temperature
	At     time.Time
}

// Delivery selects which pending result Next returns first.
type Delivery int

const (
	// DeliverFIFO returns results in the order they were fetched.
	DeliverFIFO Delivery = iota
	// DeliverLIFO returns the most recently fetched result first.
	DeliverLIFO
)

func (d Delivery) String() string {
	if d == DeliverLIFO {
		return "lifo"
	}
	return "fifo"
}

// ScanOrder selects the order in which sensors are polled on each scan.
type ScanOrder int

const (
	// ScanDescending polls N-1 down to 0 on every scan.
	ScanDescending ScanOrder = iota
	// ScanRoundRobin rotates the first sensor polled by one each scan.
	ScanRoundRobin
)

func (s ScanOrder) String() string {
	if s == ScanRoundRobin {
		return "round-robin"
	}
	return "descending"
}

// Option customises a Flock at Start.
type Option func(*Flock)

// WithClock sets the clock used for result timestamps.
func WithClock(c timeutil.Clock) Option { return func(f *Flock) { f.clock = c } }

// WithMetrics records scan and delivery activity into m.
func WithMetrics(m *monitoring.FlockMetrics) Option { return func(f *Flock) { f.metrics = m } }

// WithDelivery selects FIFO or LIFO order for pending results.
func WithDelivery(d Delivery) Option { return func(f *Flock) { f.delivery = d } }

// WithScanOrder selects the order sensors are polled in each scan.
func WithScanOrder(s ScanOrder) Option { return func(f *Flock) { f.scanOrder = s } }

// SensorStats are per-sensor counters kept by the flock.
type SensorStats struct {
	Sensor  int       `json:"sensor"`
	Results uint64    `json:"results"`
	Errors  uint64    `json:"errors"`
	LastAt  time.Time `json:"last_at,omitempty"`
}

// Flock owns N ranging sensors and their shared interrupt line.
type Flock struct {
	sensors []Ranging
	line    InterruptLine
	cfg     RangingConfig

	clock     timeutil.Clock
	metrics   *monitoring.FlockMetrics
	delivery  Delivery
	scanOrder ScanOrder
	rrStart   int

	pending pendingQueue
	stats   []SensorStats
	stopped bool
}

// Start puts every device into ranging mode, in index order. If one fails,
// the ones already started are stopped again in reverse order and a
// *StartError is returned; devices after the failing one are not touched.
func Start(devs []Device, cfg RangingConfig, line InterruptLine, opts ...Option) (*Flock, error) {
	if len(devs) == 0 {
		return nil, ErrNoSensors
	}
	if line == nil {
		return nil, ErrNoLine
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, w := range cfg.Layout.Warnings() {
		diagf("layout %s: %s", cfg.Layout, w)
	}

	sensors := make([]Ranging, 0, len(devs))
	for i, d := range devs {
		r, err := d.StartRanging(cfg)
		if err != nil {
			opsf("sensor #%d failed to start ranging: %v", i, err)
			serr := &StartError{Failed: i, Err: err}
			for j := len(sensors) - 1; j >= 0; j-- {
				if _, rerr := sensors[j].Stop(); rerr != nil {
					opsf("rollback: sensor #%d failed to stop: %v", j, rerr)
					serr.RollbackErrs = append(serr.RollbackErrs, &SensorError{Sensor: j, Op: "stop", Err: rerr})
				}
			}
			return nil, serr
		}
		sensors = append(sensors, r)
	}

	f := &Flock{
		sensors: sensors,
		line:    line,
		cfg:     cfg,
		clock:   timeutil.RealClock{},
		pending: newPendingQueue(len(sensors)),
		stats:   make([]SensorStats, len(sensors)),
	}
	for i := range f.stats {
		f.stats[i].Sensor = i
	}
	for _, o := range opts {
		o(f)
	}
	opsf("ranging %d sensors: layout %s, %d Hz %s, %s first, delivery %s, scan %s",
		len(sensors), cfg.Layout, cfg.FrequencyHz, cfg.Mode, cfg.TargetOrder, f.delivery, f.scanOrder)
	return f, nil
}

// Len is the number of sensors in the flock.
func (f *Flock) Len() int { return len(f.sensors) }

// Pending is the number of fetched results not yet returned by Next.
func (f *Flock) Pending() int { return f.pending.len() }

// Layout is the result layout every sensor was started with.
func (f *Flock) Layout() results.Layout { return f.cfg.Layout }

// Config is the ranging configuration passed to Start.
func (f *Flock) Config() RangingConfig { return f.cfg }

// Stats returns a copy of the per-sensor counters.
func (f *Flock) Stats() []SensorStats {
	out := make([]SensorStats, len(f.stats))
	copy(out, f.stats)
	return out
}

// Next returns the next decoded result, waiting on the interrupt line when
// no sensor has one. Every call first scans all sensors once, so a sensor
// that became ready while results were pending is still picked up.
//
// A transport error aborts the scan and is returned as a *SensorError;
// results fetched earlier in the same scan stay queued. If ctx ends while
// waiting, ctx.Err() is returned and the flock can be used again.
//
// Next panics with a *results.ContractError if a sensor hands back data the
// engine can never produce.
func (f *Flock) Next(ctx context.Context) (Result, error) {
	if f.stopped {
		return Result{}, ErrStopped
	}
	for {
		if err := f.scan(); err != nil {
			return Result{}, err
		}
		if r, ok := f.pop(); ok {
			return r, nil
		}
		if err := f.wait(ctx); err != nil {
			return Result{}, err
		}
	}
}

func (f *Flock) order() []int {
	n := len(f.sensors)
	idx := make([]int, n)
	switch f.scanOrder {
	case ScanRoundRobin:
		for i := range idx {
			idx[i] = (f.rrStart + i) % n
		}
		f.rrStart = (f.rrStart + 1) % n
	default:
		for i := range idx {
			idx[i] = n - 1 - i
		}
	}
	return idx
}

func (f *Flock) scan() error {
	for _, i := range f.order() {
		s := f.sensors[i]
		ready, err := s.IsReady()
		if err != nil {
			return f.sensorErr(i, "is_ready", err)
		}
		if !ready {
			tracef("no new data from #%d", i)
			continue
		}
		at := f.clock.Now()
		raw, err := s.FetchRaw()
		if err != nil {
			return f.sensorErr(i, "fetch", err)
		}
		data, temp := results.Decode(raw, f.cfg.Layout)

		f.stats[i].Results++
		f.stats[i].LastAt = at
		f.metrics.ObserveResult(i, f.clock.Since(at).Seconds())
		if f.pending.push(Result{Sensor: i, Data: data, Temp: temp, At: at}) {
			opsf("pending results exceed %d; consumer is falling behind", f.pending.len()-1)
		}
		diagf("new data from #%d, pending %d", i, f.pending.len())
	}
	f.metrics.SetPending(f.pending.len())
	return nil
}

func (f *Flock) sensorErr(i int, op string, err error) error {
	f.stats[i].Errors++
	f.metrics.ObserveError(i, op)
	f.metrics.SetPending(f.pending.len())
	opsf("sensor #%d %s failed: %v", i, op, err)
	return &SensorError{Sensor: i, Op: op, Err: err}
}

func (f *Flock) pop() (Result, bool) {
	var (
		r  Result
		ok bool
	)
	if f.delivery == DeliverLIFO {
		r, ok = f.pending.popBack()
	} else {
		r, ok = f.pending.popFront()
	}
	if ok {
		f.metrics.SetPending(f.pending.len())
	}
	return r, ok
}

func (f *Flock) wait(ctx context.Context) error {
	tracef("going to sleep (INT %s)", level(f.line.IsLow()))
	t0 := f.clock.Now()
	f.metrics.SetSleeping(true)
	err := f.line.WaitForAnyEdge(ctx)
	f.metrics.SetSleeping(false)
	if err != nil {
		if ctx.Err() != nil {
			tracef("wait abandoned: %v", err)
		} else {
			opsf("interrupt wait failed: %v", err)
		}
		return err
	}
	f.metrics.ObserveWakeup()
	tracef("woke up to INT edge (now %s, slept %v)", level(f.line.IsLow()), f.clock.Since(t0))
	return nil
}

func level(low bool) string {
	if low {
		return "low"
	}
	return "high"
}

// Stop ends ranging on every sensor, even if some fail, and hands back the
// idle devices and the interrupt line. A device that failed to stop leaves
// a nil slot and its ranging handle is carried by the returned *StopError.
// Pending results are discarded. The flock cannot be used afterwards.
func (f *Flock) Stop() ([]Device, InterruptLine, error) {
	if f.stopped {
		return nil, nil, ErrStopped
	}
	f.stopped = true
	if n := f.pending.len(); n > 0 {
		diagf("discarding %d pending results", n)
	}

	devs := make([]Device, len(f.sensors))
	var serr *StopError
	for i, s := range f.sensors {
		d, err := s.Stop()
		if err != nil {
			opsf("sensor #%d failed to stop: %v", i, err)
			if serr == nil {
				serr = &StopError{Remaining: make(map[int]Ranging)}
			}
			serr.Failed = append(serr.Failed, &SensorError{Sensor: i, Op: "stop", Err: err})
			serr.Remaining[i] = s
			continue
		}
		devs[i] = d
	}

	line := f.line
	f.sensors, f.line = nil, nil
	f.pending.reset()
	f.metrics.SetPending(0)
	opsf("stopped %d sensors", len(devs))
	if serr != nil {
		return devs, line, serr
	}
	return devs, line, nil
}
