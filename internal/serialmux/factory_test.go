package serialmux

import "testing"

func TestNewRealSerialMux_InvalidPort(t *testing.T) {
	mux, err := NewRealSerialMux("/dev/nonexistent-serial-port-12345", PortOptions{}, 0)
	if err == nil {
		t.Error("Expected error when opening non-existent serial port")
		if mux != nil {
			mux.Close()
		}
	}
	if err != nil && mux != nil {
		t.Error("Expected nil mux when error is returned")
	}
}

func TestNewRealSerialMux_InvalidOptions(t *testing.T) {
	if _, err := NewRealSerialMux("/dev/null", PortOptions{BaudRate: 12345}, 0); err == nil {
		t.Error("Expected error for unsupported baud rate")
	}
}
