package serialmux

import "io"

// SerialPorter is the minimal interface needed for a serial port, so the mux
// can run without real hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}
