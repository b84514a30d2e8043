package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestFlockMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewFlockMetrics(reg)

	m.ObserveResult(2, 0.001)
	m.ObserveResult(2, 0.002)
	m.ObserveResult(0, 0.001)
	m.ObserveError(1, "is_ready")
	m.ObserveOverrun(1)
	m.ObserveWakeup()
	m.SetPending(3)
	m.SetSleeping(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Results.WithLabelValues("2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Results.WithLabelValues("0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("1", "is_ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Overruns.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Wakeups))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Pending))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sleeping))

	n, err := testutil.GatherAndCount(reg, "tof_results_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFlockMetrics_NilIsNoop(t *testing.T) {
	var m *FlockMetrics
	assert.NotPanics(t, func() {
		m.ObserveResult(0, 0)
		m.ObserveError(0, "fetch")
		m.ObserveOverrun(0)
		m.ObserveWakeup()
		m.SetPending(1)
		m.SetSleeping(false)
	})
}
