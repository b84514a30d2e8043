package monitoring

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// FlockMetrics are the Prometheus collectors for one ranging flock. A nil
// *FlockMetrics is valid and records nothing.
type FlockMetrics struct {
	Results    *prometheus.CounterVec
	Errors     *prometheus.CounterVec
	Overruns   *prometheus.CounterVec
	Wakeups    prometheus.Counter
	Pending    prometheus.Gauge
	Sleeping   prometheus.Gauge
	FetchDelay prometheus.Histogram
}

// NewFlockMetrics creates the collectors and registers them with reg.
func NewFlockMetrics(reg prometheus.Registerer) *FlockMetrics {
	m := &FlockMetrics{
		Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tof",
			Name:      "results_total",
			Help:      "Decoded ranging results delivered, by sensor index.",
		}, []string{"sensor"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tof",
			Name:      "sensor_errors_total",
			Help:      "Transport failures by sensor index and operation.",
		}, []string{"sensor", "op"}),
		Overruns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tof",
			Name:      "overruns_total",
			Help:      "Unread results replaced by a newer one before being fetched.",
		}, []string{"sensor"}),
		Wakeups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tof",
			Name:      "interrupt_wakeups_total",
			Help:      "Edges seen on the shared interrupt line.",
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tof",
			Name:      "pending_results",
			Help:      "Decoded results waiting to be delivered.",
		}),
		Sleeping: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tof",
			Name:      "waiting_for_interrupt",
			Help:      "1 while the flock waits for an interrupt edge.",
		}),
		FetchDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tof",
			Name:      "fetch_seconds",
			Help:      "Time from readiness confirmation to decoded result.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Results, m.Errors, m.Overruns, m.Wakeups, m.Pending, m.Sleeping, m.FetchDelay)
	}
	return m
}

func (m *FlockMetrics) ObserveResult(sensor int, fetchSeconds float64) {
	if m == nil {
		return
	}
	m.Results.WithLabelValues(strconv.Itoa(sensor)).Inc()
	m.FetchDelay.Observe(fetchSeconds)
}

func (m *FlockMetrics) ObserveError(sensor int, op string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(strconv.Itoa(sensor), op).Inc()
}

func (m *FlockMetrics) ObserveOverrun(sensor int) {
	if m == nil {
		return
	}
	m.Overruns.WithLabelValues(strconv.Itoa(sensor)).Inc()
}

func (m *FlockMetrics) ObserveWakeup() {
	if m == nil {
		return
	}
	m.Wakeups.Inc()
}

func (m *FlockMetrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.Pending.Set(float64(n))
}

func (m *FlockMetrics) SetSleeping(sleeping bool) {
	if m == nil {
		return
	}
	if sleeping {
		m.Sleeping.Set(1)
		return
	}
	m.Sleeping.Set(0)
}
