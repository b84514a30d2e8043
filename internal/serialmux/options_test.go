package serialmux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestPortOptions_Normalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{
			name: "defaults",
			in:   PortOptions{},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name: "explicit values",
			in:   PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "even"},
			want: PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"},
		},
		{
			name: "negative baud defaults",
			in:   PortOptions{BaudRate: -5},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{name: "odd baud", in: PortOptions{BaudRate: 12345}, wantErr: true},
		{name: "data bits too low", in: PortOptions{DataBits: 4}, wantErr: true},
		{name: "data bits too high", in: PortOptions{DataBits: 9}, wantErr: true},
		{name: "three stop bits", in: PortOptions{StopBits: 3}, wantErr: true},
		{name: "mark parity", in: PortOptions{Parity: "M"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.in.Normalize()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	t.Parallel()

	mode, err := PortOptions{BaudRate: 57600, StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{
		BaudRate: 57600,
		DataBits: 8,
		Parity:   serial.OddParity,
		StopBits: serial.TwoStopBits,
	}, mode)

	_, err = PortOptions{DataBits: 3}.SerialMode()
	assert.Error(t, err)
}

func TestPortOptions_NormalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	once, err := PortOptions{BaudRate: 19200, Parity: "odd"}.Normalize()
	require.NoError(t, err)
	twice, err := once.Normalize()
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestNewRealSerialMux_InvalidOptions(t *testing.T) {
	t.Parallel()

	mux, err := NewRealSerialMux("/dev/does-not-exist", PortOptions{BaudRate: 12345})
	assert.Nil(t, mux)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid baud rate 12345")
}
