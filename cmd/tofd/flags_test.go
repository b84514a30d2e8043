package main

import (
	"testing"

	"github.com/banshee-data/tofgrid/internal/config"
)

// TestFlagDefaults verifies that the override flags are empty by default so
// the config file decides.
func TestFlagDefaults(t *testing.T) {
	if configPath == nil || *configPath != config.DefaultConfigPath {
		t.Fatalf("expected config default %q", config.DefaultConfigPath)
	}
	for name, v := range map[string]*string{"listen": listen, "port": port, "log-level": logLevel, "db": dbPath} {
		if v == nil {
			t.Fatalf("%s flag not defined", name)
		}
		if *v != "" {
			t.Errorf("expected %s default to be empty, got %q", name, *v)
		}
	}
	if *noDB {
		t.Error("expected no-db default to be false")
	}
}

func TestApplyFlags(t *testing.T) {
	save := func(p *string) func() { old := *p; return func() { *p = old } }
	defer save(listen)()
	defer save(port)()
	defer save(logLevel)()
	defer save(dbPath)()
	defer func(old bool) { *noDB = old }(*noDB)

	t.Run("no overrides", func(t *testing.T) {
		cfg := &config.Config{}
		applyFlags(cfg)
		if got := cfg.GetListen(); got != "localhost:8080" {
			t.Errorf("listen = %q", got)
		}
		if got := cfg.GetDBPath(); got != "tof.db" {
			t.Errorf("db path = %q", got)
		}
	})

	t.Run("overrides win", func(t *testing.T) {
		*listen, *port, *logLevel, *dbPath = ":9090", "/dev/ttyUSB3", "trace", "/tmp/x.db"
		cfg := &config.Config{}
		applyFlags(cfg)
		if got := cfg.GetListen(); got != ":9090" {
			t.Errorf("listen = %q", got)
		}
		if got := cfg.GetSerialPort(); got != "/dev/ttyUSB3" {
			t.Errorf("serial port = %q", got)
		}
		if got := cfg.GetLogLevel(); got != "trace" {
			t.Errorf("log level = %q", got)
		}
		if got := cfg.GetDBPath(); got != "/tmp/x.db" {
			t.Errorf("db path = %q", got)
		}
	})

	t.Run("no-db disables storage", func(t *testing.T) {
		*noDB = true
		cfg := &config.Config{}
		applyFlags(cfg)
		if got := cfg.GetDBPath(); got != "" {
			t.Errorf("db path = %q, want storage disabled", got)
		}
	})
}
