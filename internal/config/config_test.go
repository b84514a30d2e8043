package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tofgrid/internal/tof/flock"
	"github.com/banshee-data/tofgrid/internal/tof/results"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tofd.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	require.NoError(t, cfg.Validate())

	rc, err := cfg.RangingConfig()
	require.NoError(t, err)
	assert.Equal(t, flock.RangingConfig{
		Layout:          results.Layout{Dim: 8, Targets: 1, Fields: results.FieldsDefault},
		FrequencyHz:     10,
		Mode:            flock.ModeContinuous,
		IntegrationTime: 20 * time.Millisecond,
		TargetOrder:     flock.OrderClosest,
	}, rc)

	assert.Equal(t, 1, cfg.GetSensors())
	assert.Equal(t, "/dev/ttyACM0", cfg.GetSerialPort())
	assert.Equal(t, 2*time.Second, cfg.GetAckTimeout())
	assert.Equal(t, "tof.db", cfg.GetDBPath())
	assert.Equal(t, "localhost:8080", cfg.GetListen())
	assert.Equal(t, "ops", cfg.GetLogLevel())
	assert.False(t, cfg.MQTTEnabled())

	kind, pin, err := cfg.GetInterrupt()
	require.NoError(t, err)
	assert.Equal(t, InterruptBridge, kind)
	assert.Empty(t, pin)

	opts, err := cfg.FlockOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 2)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `{
  "sensors": 3,
  "resolution": 4,
  "targets_per_zone": 2,
  "frequency_hz": 30,
  "mode": "autonomous",
  "integration_time": "5ms",
  "target_order": "strongest",
  "fields": ["distance_mm", "target_status", "reflectance_percent"],
  "delivery": "lifo",
  "scan_order": "round-robin",
  "interrupt": "gpio:GPIO17",
  "db_path": "",
  "mqtt": {"broker": "tcp://localhost:1883", "qos": 0, "topic_prefix": "lab"}
}`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	rc, err := cfg.RangingConfig()
	require.NoError(t, err)
	assert.Equal(t, results.Layout{
		Dim:     4,
		Targets: 2,
		Fields:  results.FieldDistance | results.FieldTargetStatus | results.FieldReflectance,
	}, rc.Layout)
	assert.Equal(t, flock.ModeAutonomous, rc.Mode)
	assert.Equal(t, 5*time.Millisecond, rc.IntegrationTime)
	assert.Equal(t, flock.OrderStrongest, rc.TargetOrder)

	d, err := cfg.GetDelivery()
	require.NoError(t, err)
	assert.Equal(t, flock.DeliverLIFO, d)
	s, err := cfg.GetScanOrder()
	require.NoError(t, err)
	assert.Equal(t, flock.ScanRoundRobin, s)

	kind, pin, err := cfg.GetInterrupt()
	require.NoError(t, err)
	assert.Equal(t, InterruptGPIO, kind)
	assert.Equal(t, "GPIO17", pin)

	assert.Empty(t, cfg.GetDBPath(), "empty path disables storage")
	assert.True(t, cfg.MQTTEnabled())
	assert.Equal(t, byte(0), cfg.GetMQTTQoS())
}

func TestLoadConfig_ShippedDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig(filepath.Join("..", "..", DefaultConfigPath))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.GetSensors())
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"sensors": `},
		{"unknown field", `{"sensorz": 2}`},
		{"too many sensors", `{"sensors": 40}`},
		{"bad resolution", `{"resolution": 5}`},
		{"too fast for 8x8", `{"frequency_hz": 30}`},
		{"bad field", `{"fields": ["motion"]}`},
		{"bad mode", `{"mode": "burst"}`},
		{"bad delivery", `{"delivery": "random"}`},
		{"bad scan order", `{"scan_order": "ascending"}`},
		{"bad interrupt", `{"interrupt": "gpio:"}`},
		{"bad integration time", `{"integration_time": "soon"}`},
		{"bad ack timeout", `{"ack_timeout": "2 seconds"}`},
		{"bad parity", `{"serial_options": {"parity": "M"}}`},
		{"bad qos", `{"mqtt": {"broker": "tcp://x:1883", "qos": 3}}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig("tofd.yaml")
	assert.ErrorContains(t, err, ".json")
	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestPointerOverrides(t *testing.T) {
	t.Parallel()
	cfg := &Config{Sensors: ptrInt(2), Listen: ptrString(":9000"), LogLevel: ptrString("trace")}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.GetSensors())
	assert.Equal(t, ":9000", cfg.GetListen())
	assert.Equal(t, "trace", cfg.GetLogLevel())
}
