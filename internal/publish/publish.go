// Package publish sends every ranging result to an MQTT broker as JSON.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/tofgrid/internal/tof/flock"
	"github.com/banshee-data/tofgrid/internal/tof/results"
)

// ErrPublishTimeout is returned when the broker does not acknowledge in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Config holds broker and topic settings.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retain      bool
	Timeout     time.Duration
}

// Client is the part of mqtt.Client the publisher uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Message is the JSON body published for one result.
type Message struct {
	SessionID  string               `json:"session_id,omitempty"`
	Sensor     int                  `json:"sensor"`
	CapturedAt time.Time            `json:"captured_at"`
	TempC      int                  `json:"temperature_c"`
	Summary    results.Summary      `json:"summary"`
	Data       *results.ResultsData `json:"data"`
}

// Publisher publishes results to <prefix>/<sensor>/frame.
type Publisher struct {
	client    Client
	cfg       Config
	sessionID string
}

// Connect dials the broker with auto-reconnect enabled.
func Connect(cfg Config) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("[publish] connected to %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("[publish] connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return New(client, cfg), nil
}

// New wraps an already connected client.
func New(client Client, cfg Config) *Publisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "tof"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	cfg.TopicPrefix = strings.TrimSuffix(cfg.TopicPrefix, "/")
	return &Publisher{client: client, cfg: cfg}
}

// SetSession tags subsequent messages with a session ID.
func (p *Publisher) SetSession(id string) { p.sessionID = id }

func (p *Publisher) Topic(sensor int) string {
	return fmt.Sprintf("%s/%d/frame", p.cfg.TopicPrefix, sensor)
}

// Publish sends one result and waits for the broker acknowledgement.
func (p *Publisher) Publish(r flock.Result) error {
	payload, err := json.Marshal(Message{
		SessionID:  p.sessionID,
		Sensor:     r.Sensor,
		CapturedAt: r.At,
		TempC:      int(r.Temp),
		Summary:    results.Summarize(r.Data),
		Data:       r.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	topic := p.Topic(r.Sensor)
	token := p.client.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload)
	if !token.WaitTimeout(p.cfg.Timeout) {
		return fmt.Errorf("%s: %w", topic, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Run publishes results from in until ctx ends or in is closed. Failures
// are logged and do not stop the loop.
func (p *Publisher) Run(ctx context.Context, in <-chan flock.Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-in:
			if !ok {
				return
			}
			if err := p.Publish(r); err != nil {
				log.Printf("[publish] %v", err)
			}
		}
	}
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
