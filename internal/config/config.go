// Package config loads the tofd daemon configuration from JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/tofgrid/internal/serialmux"
	"github.com/banshee-data/tofgrid/internal/tof/flock"
	"github.com/banshee-data/tofgrid/internal/tof/results"
)

// DefaultConfigPath is the path to the shipped defaults file.
const DefaultConfigPath = "config/tofd.defaults.json"

// Config is the root configuration. Every field is optional; the Get*
// methods supply defaults for omitted ones.
type Config struct {
	// Ranging
	Sensors         *int     `json:"sensors,omitempty"`
	Resolution      *int     `json:"resolution,omitempty"` // 4 or 8
	TargetsPerZone  *int     `json:"targets_per_zone,omitempty"`
	FrequencyHz     *int     `json:"frequency_hz,omitempty"`
	Mode            *string  `json:"mode,omitempty"`             // continuous, autonomous
	IntegrationTime *string  `json:"integration_time,omitempty"` // duration string like "20ms"
	TargetOrder     *string  `json:"target_order,omitempty"`     // closest, strongest
	Fields          []string `json:"fields,omitempty"`

	// Coordinator
	Delivery  *string `json:"delivery,omitempty"`   // fifo, lifo
	ScanOrder *string `json:"scan_order,omitempty"` // descending, round-robin

	// Transport
	SerialPort    *string               `json:"serial_port,omitempty"`
	SerialOptions serialmux.PortOptions `json:"serial_options,omitempty"`
	AckTimeout    *string               `json:"ack_timeout,omitempty"`
	Interrupt     *string               `json:"interrupt,omitempty"` // "bridge" or "gpio:<pin>"

	// Outputs
	DBPath *string     `json:"db_path,omitempty"` // empty disables storage
	MQTT   *MQTTConfig `json:"mqtt,omitempty"`
	Listen *string     `json:"listen,omitempty"`

	LogLevel *string `json:"log_level,omitempty"` // ops, diag, trace, off
}

// MQTTConfig enables publishing when Broker is set.
type MQTTConfig struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	TopicPrefix string `json:"topic_prefix,omitempty"`
	QoS         *int   `json:"qos,omitempty"`
	Retain      bool   `json:"retain,omitempty"`
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// LoadConfig reads and validates a JSON config file. Omitted fields keep
// their defaults, so partial configs are safe.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every value that can be checked without hardware.
func (c *Config) Validate() error {
	if n := c.GetSensors(); n < 1 || n > 16 {
		return fmt.Errorf("sensors must be between 1 and 16, got %d", n)
	}
	if c.IntegrationTime != nil && *c.IntegrationTime != "" {
		if _, err := time.ParseDuration(*c.IntegrationTime); err != nil {
			return fmt.Errorf("invalid integration_time '%s': %w", *c.IntegrationTime, err)
		}
	}
	if c.AckTimeout != nil && *c.AckTimeout != "" {
		if _, err := time.ParseDuration(*c.AckTimeout); err != nil {
			return fmt.Errorf("invalid ack_timeout '%s': %w", *c.AckTimeout, err)
		}
	}
	rc, err := c.RangingConfig()
	if err != nil {
		return err
	}
	if err := rc.Validate(); err != nil {
		return err
	}
	if _, err := c.GetDelivery(); err != nil {
		return err
	}
	if _, err := c.GetScanOrder(); err != nil {
		return err
	}
	if _, _, err := c.GetInterrupt(); err != nil {
		return err
	}
	if _, err := c.SerialOptions.Normalize(); err != nil {
		return fmt.Errorf("serial_options: %w", err)
	}
	if c.MQTT != nil && c.MQTT.QoS != nil && (*c.MQTT.QoS < 0 || *c.MQTT.QoS > 2) {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", *c.MQTT.QoS)
	}
	return nil
}

// GetSensors returns the number of sensors on the shared INT line.
func (c *Config) GetSensors() int {
	if c.Sensors == nil {
		return 1
	}
	return *c.Sensors
}

func (c *Config) GetResolution() int {
	if c.Resolution == nil {
		return 8
	}
	return *c.Resolution
}

func (c *Config) GetTargetsPerZone() int {
	if c.TargetsPerZone == nil {
		return 1
	}
	return *c.TargetsPerZone
}

func (c *Config) GetFrequencyHz() int {
	if c.FrequencyHz == nil {
		return 10
	}
	return *c.FrequencyHz
}

// GetIntegrationTime is only used in autonomous mode.
func (c *Config) GetIntegrationTime() time.Duration {
	if c.IntegrationTime == nil || *c.IntegrationTime == "" {
		return 20 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.IntegrationTime)
	if err != nil {
		return 20 * time.Millisecond
	}
	return d
}

// GetFields returns the transferred result fields.
func (c *Config) GetFields() (results.Fields, error) {
	if len(c.Fields) == 0 {
		return results.FieldsDefault, nil
	}
	return results.ParseFields(c.Fields)
}

// RangingConfig assembles the configuration handed to every sensor.
func (c *Config) RangingConfig() (flock.RangingConfig, error) {
	fields, err := c.GetFields()
	if err != nil {
		return flock.RangingConfig{}, err
	}
	mode, err := flock.ParseMode(deref(c.Mode))
	if err != nil {
		return flock.RangingConfig{}, err
	}
	order, err := flock.ParseTargetOrder(deref(c.TargetOrder))
	if err != nil {
		return flock.RangingConfig{}, err
	}
	return flock.RangingConfig{
		Layout: results.Layout{
			Dim:     c.GetResolution(),
			Targets: c.GetTargetsPerZone(),
			Fields:  fields,
		},
		FrequencyHz:     c.GetFrequencyHz(),
		Mode:            mode,
		IntegrationTime: c.GetIntegrationTime(),
		TargetOrder:     order,
	}, nil
}

func (c *Config) GetDelivery() (flock.Delivery, error) {
	switch strings.ToLower(deref(c.Delivery)) {
	case "", "fifo":
		return flock.DeliverFIFO, nil
	case "lifo":
		return flock.DeliverLIFO, nil
	}
	return 0, fmt.Errorf("unknown delivery %q: expected fifo or lifo", *c.Delivery)
}

func (c *Config) GetScanOrder() (flock.ScanOrder, error) {
	switch strings.ToLower(deref(c.ScanOrder)) {
	case "", "descending":
		return flock.ScanDescending, nil
	case "round-robin", "roundrobin":
		return flock.ScanRoundRobin, nil
	}
	return 0, fmt.Errorf("unknown scan_order %q: expected descending or round-robin", *c.ScanOrder)
}

// FlockOptions returns the coordinator options selected by the config.
func (c *Config) FlockOptions() ([]flock.Option, error) {
	d, err := c.GetDelivery()
	if err != nil {
		return nil, err
	}
	s, err := c.GetScanOrder()
	if err != nil {
		return nil, err
	}
	return []flock.Option{flock.WithDelivery(d), flock.WithScanOrder(s)}, nil
}

// Interrupt sources.
const (
	InterruptBridge = "bridge"
	InterruptGPIO   = "gpio"
)

// GetInterrupt returns the INT source and, for GPIO, the pin name.
func (c *Config) GetInterrupt() (kind, pin string, err error) {
	v := strings.TrimSpace(deref(c.Interrupt))
	switch {
	case v == "" || v == InterruptBridge:
		return InterruptBridge, "", nil
	case strings.HasPrefix(v, InterruptGPIO+":") && len(v) > len(InterruptGPIO)+1:
		return InterruptGPIO, v[len(InterruptGPIO)+1:], nil
	}
	return "", "", fmt.Errorf("invalid interrupt %q: expected bridge or gpio:<pin>", v)
}

func (c *Config) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return "/dev/ttyACM0"
	}
	return *c.SerialPort
}

func (c *Config) GetAckTimeout() time.Duration {
	if c.AckTimeout == nil || *c.AckTimeout == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(*c.AckTimeout)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// GetDBPath returns the SQLite path; empty disables storage.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil {
		return "tof.db"
	}
	return *c.DBPath
}

func (c *Config) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return "localhost:8080"
	}
	return *c.Listen
}

func (c *Config) GetLogLevel() string {
	if c.LogLevel == nil || *c.LogLevel == "" {
		return "ops"
	}
	return *c.LogLevel
}

// MQTTEnabled reports whether a broker is configured.
func (c *Config) MQTTEnabled() bool { return c.MQTT != nil && c.MQTT.Broker != "" }

func (c *Config) GetMQTTQoS() byte {
	if c.MQTT == nil || c.MQTT.QoS == nil {
		return 1
	}
	return byte(*c.MQTT.QoS)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
