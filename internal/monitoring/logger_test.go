package monitoring

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamsForLevel(t *testing.T) {
	var buf bytes.Buffer

	w, err := StreamsForLevel("ops", &buf)
	require.NoError(t, err)
	assert.NotNil(t, w.Ops)
	assert.Nil(t, w.Diag)
	assert.Nil(t, w.Trace)

	w, err = StreamsForLevel(" DIAG ", &buf)
	require.NoError(t, err)
	assert.NotNil(t, w.Diag)
	assert.Nil(t, w.Trace)

	w, err = StreamsForLevel("trace", &buf)
	require.NoError(t, err)
	assert.NotNil(t, w.Trace)

	w, err = StreamsForLevel("off", &buf)
	require.NoError(t, err)
	assert.Equal(t, LogWriters{}, w)

	_, err = StreamsForLevel("debug", &buf)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	assert.Nil(t, NewLogger("[x] ", nil))

	var buf bytes.Buffer
	l := NewLogger("[flock] ", &buf)
	require.NotNil(t, l)
	l.Printf("hello %d", 42)
	assert.True(t, strings.Contains(buf.String(), "[flock] "))
	assert.True(t, strings.Contains(buf.String(), "hello 42"))
}
