package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tofgrid/internal/tof/flock"
	"github.com/banshee-data/tofgrid/internal/tof/results"
)

type fakeToken struct {
	err     error
	pending bool
	done    chan struct{}
}

func newToken(err error, pending bool) *fakeToken {
	t := &fakeToken{err: err, pending: pending, done: make(chan struct{})}
	if !pending {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { return !t.pending }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.pending }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	msgs         []published
	err          error
	pending      bool
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic, qos, retained, payload.([]byte)})
	return newToken(c.err, c.pending)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func testResult(sensor int) flock.Result {
	l := results.Layout{Dim: 4, Targets: 1, Fields: results.FieldDistance | results.FieldTargetStatus}
	raw := l.NewRaw()
	raw.SiliconTempC = 31
	for i := range raw.DistanceMM {
		raw.DistanceMM[i] = 420
		raw.TargetStatus[i] = 9
	}
	data, temp := results.Decode(raw, l)
	return flock.Result{Sensor: sensor, Data: data, Temp: temp, At: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func TestPublisher_Publish(t *testing.T) {
	t.Parallel()
	c := &fakeClient{}
	p := New(c, Config{TopicPrefix: "lab/tof/", QoS: 1})
	p.SetSession("sess-1")

	require.NoError(t, p.Publish(testResult(3)))
	require.Len(t, c.msgs, 1)
	m := c.msgs[0]
	assert.Equal(t, "lab/tof/3/frame", m.topic)
	assert.Equal(t, byte(1), m.qos)
	assert.False(t, m.retain)

	var got Message
	require.NoError(t, json.Unmarshal(m.payload, &got))
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, 3, got.Sensor)
	assert.Equal(t, 31, got.TempC)
	assert.Equal(t, 16, got.Summary.ValidZones)
	require.NotNil(t, got.Data)
	assert.Equal(t, uint16(420), got.Data.DistanceMM[0][2][2])
	assert.Equal(t, results.StatusHalfValid, got.Data.TargetStatus[0][0][0].Class)
}

func TestPublisher_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("not authorised")
	p := New(&fakeClient{err: boom}, Config{})
	assert.ErrorIs(t, p.Publish(testResult(0)), boom)

	p = New(&fakeClient{pending: true}, Config{Timeout: time.Millisecond})
	assert.ErrorIs(t, p.Publish(testResult(0)), ErrPublishTimeout)
}

func TestPublisher_Run(t *testing.T) {
	t.Parallel()
	c := &fakeClient{}
	p := New(c, Config{})
	assert.Equal(t, "tof/0/frame", p.Topic(0))

	in := make(chan flock.Result, 2)
	in <- testResult(0)
	in <- testResult(1)
	close(in)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), in)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after input closed")
	}
	assert.Equal(t, 2, c.count())

	p.Close()
	assert.True(t, c.disconnected)
}
