package serialmux

import (
	"bytes"
	"errors"
	"strings"
	"sync"
)

// Responder produces the controller output for one written line. Returning
// an empty string produces no reply, which a caller waiting for an
// acknowledgement sees as a timeout.
type Responder func(command string) string

// AckAll replies "ok" to every command.
func AckAll(string) string { return "ok\n" }

// TestableSerialPort implements SerialPorter with configurable behaviour for
// testing. Reads block until data is available or the port is closed.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// Responder, if set, is called for each complete written line and its
	// output is appended to ReadBuffer.
	Responder Responder

	// WriteError is returned by the next Write call if set
	WriteError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// WriteCalls records the number of Write calls
	WriteCalls int

	readCond *sync.Cond
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort(responder Responder) *TestableSerialPort {
	tsp := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
		Responder:   responder,
	}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

// Read blocks until the read buffer has data or the port is closed.
func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for !t.Closed && t.ReadBuffer.Len() == 0 {
		t.readCond.Wait()
	}
	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	return t.ReadBuffer.Read(p)
}

// Write records p and feeds each line to the Responder.
func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++

	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}

	n, err := t.WriteBuffer.Write(p)
	if t.Responder != nil {
		for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
			if reply := t.Responder(strings.TrimSpace(line)); reply != "" {
				t.ReadBuffer.WriteString(reply)
			}
		}
		t.readCond.Broadcast()
	}
	return n, err
}

// Close marks the port as closed.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.readCond.Broadcast()
	return t.CloseError
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
	t.readCond.Broadcast()
}

// Commands returns the written lines.
func (t *TestableSerialPort) Commands() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := strings.TrimRight(t.WriteBuffer.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
