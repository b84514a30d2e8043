package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tofgrid/internal/db"
	"github.com/banshee-data/tofgrid/internal/monitoring"
	"github.com/banshee-data/tofgrid/internal/tof/flock"
	"github.com/banshee-data/tofgrid/internal/tof/results"
)

var testLayout = results.Layout{Dim: 4, Targets: 1, Fields: results.FieldsDefault}

func testResult(sensor int, distance int16, at time.Time) flock.Result {
	raw := testLayout.NewRaw()
	raw.SiliconTempC = 25
	for i := range raw.DistanceMM {
		raw.DistanceMM[i] = distance
		raw.TargetStatus[i] = 5
	}
	for i := range raw.TargetsDetected {
		raw.TargetsDetected[i] = 1
	}
	data, temp := results.Decode(raw, testLayout)
	return flock.Result{Sensor: sensor, Data: data, Temp: temp, At: at}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newTestServer(t *testing.T, d *db.DB) (*Server, *State, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	st := NewState()
	st.Begin("sess-1", testLayout, 2)
	return NewServer(st, d, reg), st, reg
}

func TestSensorsAndLatest(t *testing.T) {
	t.Parallel()
	srv, st, _ := newTestServer(t, nil)
	mux := srv.ServeMux()
	t0 := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	st.SetOverrunSource(func(sensor int) uint64 { return uint64(sensor * 10) })
	st.Update(testResult(1, 900, t0), []flock.SensorStats{
		{Sensor: 0},
		{Sensor: 1, Results: 1, LastAt: t0},
	})

	rec := get(t, mux, "/api/sensors")
	require.Equal(t, http.StatusOK, rec.Code)
	var sensors []SensorStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sensors))
	require.Len(t, sensors, 2)
	assert.Nil(t, sensors[0].Summary)
	require.NotNil(t, sensors[1].Summary)
	assert.Equal(t, uint16(900), sensors[1].Summary.MinMM)
	assert.Equal(t, 25, *sensors[1].TempC)
	assert.Equal(t, uint64(10), sensors[1].Overruns)

	rec = get(t, mux, "/api/frames/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	var frames []LatestFrame
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &frames))
	require.Len(t, frames, 1)
	assert.Nil(t, frames[0].Data)
	assert.Equal(t, t0, frames[0].CapturedAt)

	rec = get(t, mux, "/api/frames/latest?sensor=1&data=true")
	require.Equal(t, http.StatusOK, rec.Code)
	var one LatestFrame
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	require.NotNil(t, one.Data)
	assert.Equal(t, uint16(900), one.Data.DistanceMM[0][0][0])

	assert.Equal(t, http.StatusNotFound, get(t, mux, "/api/frames/latest?sensor=0").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, mux, "/api/frames/latest?sensor=x").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t, nil)
	mux := srv.ServeMux()
	for _, path := range []string{"/api/sensors", "/api/frames/latest", "/api/sessions"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}
}

func TestSessionsWithoutStorage(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv.ServeMux(), "/api/sessions").Code)
}

func TestSessionsFromStorage(t *testing.T) {
	t.Parallel()
	d, err := db.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	cfg := flock.RangingConfig{Layout: testLayout, FrequencyHz: 10}
	t0 := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	sess, err := d.StartSession(cfg, 2, t0)
	require.NoError(t, err)
	_, err = d.RecordFrame(sess.ID, testResult(0, 300, t0))
	require.NoError(t, err)

	srv, _, _ := newTestServer(t, d)
	mux := srv.ServeMux()

	rec := get(t, mux, "/api/sessions?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []db.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, sess.ID, sessions[0].ID)

	assert.Equal(t, http.StatusBadRequest, get(t, mux, "/api/sessions?limit=0").Code)

	rec = get(t, mux, "/api/sessions/"+sess.ID+"/frames/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	var frames []db.Frame
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &frames))
	require.Len(t, frames, 1)
	assert.Equal(t, uint16(300), frames[0].Summary.MaxMM)

	rec = get(t, mux, "/api/sessions/unknown/frames/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestMetricsAndDebug(t *testing.T) {
	t.Parallel()
	srv, _, reg := newTestServer(t, nil)
	m := monitoring.NewFlockMetrics(reg)
	m.ObserveResult(0, 0.001)
	mux := srv.ServeMux()

	rec := get(t, mux, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tof_results_total{sensor="0"} 1`)

	rec = get(t, mux, "/debug/flock")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"session_id": "sess-1"`))
}
