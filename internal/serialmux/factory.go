package serialmux

import (
	"time"

	"go.bug.st/serial"
)

// NewRealSerialMux opens the serial port at path with the provided options.
// The controller typically resets on connect, so the call waits settle before
// returning and discards whatever the firmware printed at boot.
func NewRealSerialMux(path string, opts PortOptions, settle time.Duration) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	if settle > 0 {
		time.Sleep(settle)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, err
	}

	return NewSerialMux[serial.Port](port), nil
}
