// Command tofd drives a set of multizone time-of-flight sensors sharing one
// interrupt line, stores their results and serves them over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/banshee-data/tofgrid/internal/api"
	"github.com/banshee-data/tofgrid/internal/bridge"
	"github.com/banshee-data/tofgrid/internal/config"
	"github.com/banshee-data/tofgrid/internal/db"
	"github.com/banshee-data/tofgrid/internal/gpioline"
	"github.com/banshee-data/tofgrid/internal/monitoring"
	"github.com/banshee-data/tofgrid/internal/publish"
	"github.com/banshee-data/tofgrid/internal/serialmux"
	"github.com/banshee-data/tofgrid/internal/tof/flock"
	"github.com/banshee-data/tofgrid/internal/version"
)

var (
	configPath = flag.String("config", config.DefaultConfigPath, "Path to the JSON configuration file")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	port       = flag.String("port", "", "Serial port of the sensor bridge (overrides config)")
	logLevel   = flag.String("log-level", "", "Log level: ops, diag, trace or off (overrides config)")
	dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
	noDB       = flag.Bool("no-db", false, "Disable frame storage")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

// publishBuffer is how many results may wait for the MQTT publisher before
// new ones are skipped.
const publishBuffer = 64

// applyFlags copies command-line overrides into cfg.
func applyFlags(cfg *config.Config) {
	if *listen != "" {
		cfg.Listen = listen
	}
	if *port != "" {
		cfg.SerialPort = port
	}
	if *logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
	if *noDB {
		empty := ""
		cfg.DBPath = &empty
	}
}

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version.String())
		return
	}
	log.Print(version.String())

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("failed to load .env: %v", err)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg.ApplyEnv()
	applyFlags(cfg)

	streams, err := monitoring.StreamsForLevel(cfg.GetLogLevel(), os.Stderr)
	if err != nil {
		log.Fatalf("invalid log level: %v", err)
	}
	flock.SetLogWriters(streams)
	bridge.SetLogWriters(streams)
	serialmux.SetLogWriters(streams)

	rcfg, err := cfg.RangingConfig()
	if err != nil {
		log.Fatalf("invalid ranging config: %v", err)
	}
	for _, w := range rcfg.Layout.Warnings() {
		log.Printf("warning: %s", w)
	}
	flockOpts, err := cfg.FlockOptions()
	if err != nil {
		log.Fatalf("invalid coordinator config: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewFlockMetrics(reg)

	mux, err := serialmux.NewRealSerialMux(cfg.GetSerialPort(), cfg.SerialOptions)
	if err != nil {
		log.Fatalf("failed to open bridge port: %v", err)
	}
	defer mux.Close()

	var store *db.DB
	if path := cfg.GetDBPath(); path != "" {
		store, err = db.Open(path)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer store.Close()
	}

	var pub *publish.Publisher
	if cfg.MQTTEnabled() {
		pub, err = publish.Connect(publish.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.GetMQTTQoS(),
			Retain:      cfg.MQTT.Retain,
		})
		if err != nil {
			log.Fatalf("failed to connect to MQTT broker: %v", err)
		}
		defer pub.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The transport outlives ctx so that STOP commands are still
	// acknowledged during shutdown.
	transportCtx, stopTransport := context.WithCancel(context.Background())
	defer stopTransport()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mux.Monitor(transportCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		if transportCtx.Err() == nil {
			// The port went away. A GPIO interrupt line would otherwise
			// keep acquisition waiting on sensors nobody can reach.
			stop()
		}
		log.Print("monitor routine terminated")
	}()

	br := bridge.New(mux, cfg.GetSensors(), bridge.WithAckTimeout(cfg.GetAckTimeout()), bridge.WithMetrics(metrics))
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := br.Run(transportCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("bridge stopped: %v", err)
		}
		log.Print("bridge routine terminated")
	}()

	kind, pin, err := cfg.GetInterrupt()
	if err != nil {
		log.Fatalf("invalid interrupt config: %v", err)
	}
	var line flock.InterruptLine = br.Line()
	if kind == config.InterruptGPIO {
		gl, err := gpioline.Open(pin)
		if err != nil {
			log.Fatalf("failed to open interrupt pin: %v", err)
		}
		line = gl
	}

	flockOpts = append(flockOpts, flock.WithMetrics(metrics))
	f, err := flock.Start(br.Devices(), rcfg, line, flockOpts...)
	if err != nil {
		stopTransport()
		wg.Wait()
		log.Fatalf("failed to start ranging: %v", err)
	}
	log.Printf("ranging %d sensors at %d Hz, layout %s", f.Len(), rcfg.FrequencyHz, rcfg.Layout)

	state := api.NewState()
	state.SetOverrunSource(br.Overruns)
	sessionID := ""
	if store != nil {
		s, err := store.StartSession(rcfg, f.Len(), time.Now())
		if err != nil {
			log.Fatalf("failed to start session: %v", err)
		}
		sessionID = s.ID
		log.Printf("recording session %s", sessionID)
	}
	state.Begin(sessionID, rcfg.Layout, f.Len())

	var toPublish chan flock.Result
	if pub != nil {
		pub.SetSession(sessionID)
		toPublish = make(chan flock.Result, publishBuffer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub.Run(ctx, toPublish)
			log.Print("publish routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		httpMux := api.NewServer(state, store, reg).ServeMux()
		mux.AttachAdminRoutes(httpMux)
		if store != nil {
			if err := store.AttachAdminRoutes(httpMux); err != nil {
				log.Printf("failed to attach database admin routes: %v", err)
			}
		}

		server := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: api.LoggingMiddleware(httpMux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	acquire(ctx, f, state, store, sessionID, toPublish)
	stop()

	if _, _, err := f.Stop(); err != nil {
		log.Printf("failed to stop ranging cleanly: %v", err)
	}
	if store != nil {
		if err := store.EndSession(sessionID, time.Now()); err != nil {
			log.Printf("failed to end session: %v", err)
		}
	}
	stopTransport()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// acquire runs the result loop until ctx ends or the transport is lost.
// Transport errors on a single sensor are logged and ranging continues.
func acquire(ctx context.Context, f *flock.Flock, state *api.State, store *db.DB, sessionID string, out chan<- flock.Result) {
	for {
		r, err := f.Next(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case errors.Is(err, bridge.ErrDisconnected), errors.Is(err, flock.ErrStopped):
			log.Printf("acquisition stopped: %v", err)
			return
		default:
			log.Printf("ranging error: %v", err)
			state.SetStats(f.Stats())
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		state.Update(r, f.Stats())
		if store != nil {
			if _, err := store.RecordFrame(sessionID, r); err != nil {
				log.Printf("failed to record frame from sensor %d: %v", r.Sensor, err)
			}
		}
		if out != nil {
			select {
			case out <- r:
			default:
				log.Printf("publisher busy, skipped result from sensor %d", r.Sensor)
			}
		}
	}
}
