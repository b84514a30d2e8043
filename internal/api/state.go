package api

import (
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/tofgrid/internal/tof/flock"
	"github.com/banshee-data/tofgrid/internal/tof/results"
)

// LatestFrame is the most recent result of one sensor.
type LatestFrame struct {
	Sensor     int                  `json:"sensor"`
	CapturedAt time.Time            `json:"captured_at"`
	TempC      int                  `json:"temperature_c"`
	Summary    results.Summary      `json:"summary"`
	Data       *results.ResultsData `json:"data,omitempty"`
}

// SensorStatus is one entry of /api/sensors.
type SensorStatus struct {
	flock.SensorStats
	TempC    *int             `json:"temperature_c,omitempty"`
	Summary  *results.Summary `json:"summary,omitempty"`
	Overruns uint64           `json:"overruns"`
}

// State is the acquisition loop's view shared with HTTP handlers. The loop
// writes, handlers read.
type State struct {
	mu        sync.RWMutex
	sessionID string
	layout    results.Layout
	latest    map[int]LatestFrame
	stats     []flock.SensorStats
	overruns  func(sensor int) uint64
}

func NewState() *State {
	return &State{latest: make(map[int]LatestFrame)}
}

// Begin resets the state for a new session.
func (s *State) Begin(sessionID string, layout results.Layout, sensors int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
	s.layout = layout
	s.latest = make(map[int]LatestFrame)
	s.stats = make([]flock.SensorStats, sensors)
	for i := range s.stats {
		s.stats[i].Sensor = i
	}
}

// SetOverrunSource reports per-sensor overruns from the transport.
func (s *State) SetOverrunSource(f func(sensor int) uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overruns = f
}

// Update records a delivered result together with the flock's counters.
func (s *State) Update(r flock.Result, stats []flock.SensorStats) {
	lf := LatestFrame{
		Sensor:     r.Sensor,
		CapturedAt: r.At,
		TempC:      int(r.Temp),
		Summary:    results.Summarize(r.Data),
		Data:       r.Data,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[r.Sensor] = lf
	s.stats = stats
}

// SetStats replaces the counters without a new result, e.g. after an error.
func (s *State) SetStats(stats []flock.SensorStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
}

func (s *State) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Latest returns the newest frame of each sensor ordered by index.
// Snapshots are immutable, so sharing Data is safe.
func (s *State) Latest(withData bool) []LatestFrame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LatestFrame, 0, len(s.latest))
	for _, lf := range s.latest {
		if !withData {
			lf.Data = nil
		}
		out = append(out, lf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sensor < out[j].Sensor })
	return out
}

func (s *State) Sensors() []SensorStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SensorStatus, len(s.stats))
	for i, st := range s.stats {
		out[i].SensorStats = st
		if lf, ok := s.latest[st.Sensor]; ok {
			temp, sum := lf.TempC, lf.Summary
			out[i].TempC = &temp
			out[i].Summary = &sum
		}
		if s.overruns != nil {
			out[i].Overruns = s.overruns(st.Sensor)
		}
	}
	return out
}
