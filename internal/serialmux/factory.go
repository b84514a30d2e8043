package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// NewRealSerialMux opens the serial port at path with opts.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	n, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := n.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	opsf("opened %s at %d %d%s%d", path, n.BaudRate, n.DataBits, n.Parity, n.StopBits)

	return NewSerialMux[serial.Port](port), nil
}
