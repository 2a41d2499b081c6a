// Serialmux provides an abstraction over the motion controller's serial port.
// Commands are written one at a time and acknowledged synchronously, while
// every line read from the port is also fanned out to any subscribers (the
// admin tail page, the run journal).
package serialmux

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/platesort/internal/monitoring"
)

var (
	ErrWriteFailed = errors.New("failed to write to serial port")
	ErrTimeout     = errors.New("timed out waiting for acknowledgement")
	ErrClosed      = errors.New("serial mux closed")
)

// adminCommandTimeout bounds the wait for a command sent from the debug
// console.
const adminCommandTimeout = 15 * time.Second

// CommandGuard reports why manual commands are refused, or nil when the
// machine is free. A nil guard allows every command.
type CommandGuard func() error

// replyBuffer bounds the number of unread controller lines kept for the
// acknowledgement path. Older lines are discarded when it fills.
const replyBuffer = 256

//go:embed templates/*
var adminTemplateFS embed.FS

var sendCommandTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send-command.html.tmpl"))

// SerialMux is a generic serial port multiplexer for a request/acknowledge
// device such as a G-code motion controller.
type SerialMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	replies      chan string
	closing      bool
	closingMu    sync.Mutex
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving line events from the serial
	// port. The channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes the provided command to the serial port without
	// waiting for a reply.
	SendCommand(string) error
	// Exec writes the command and blocks until the device acknowledges it or
	// the timeout elapses. Only one command is outstanding at a time.
	Exec(ctx context.Context, command string, timeout time.Duration) error
	// Drain discards unread replies, waiting up to quiet for late lines.
	Drain(quiet time.Duration) []string
	// Monitor reads lines from the serial port and sends them to the
	// appropriate channels.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. Commands from the console are refused while
	// guard returns an error.
	AttachAdminRoutes(mux *http.ServeMux, guard CommandGuard)
}

// NewSerialMux creates a SerialMux instance backed by the given port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
		replies:     make(chan string, replyBuffer),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 16)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// SendCommand sends a command to the serial port.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	return s.write(command)
}

func (s *SerialMux[T]) write(command string) error {
	if s.isClosing() {
		return ErrClosed
	}
	if !bytes.HasSuffix([]byte(command), []byte("\n")) {
		command += "\n" // ensure command ends with a newline
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	monitoring.Logf("SND: %s", strings.TrimSpace(command))
	return nil
}

// Exec sends command and waits for an "ok" reply. Replies already queued
// before the write are discarded, so a late "ok" from an earlier command
// cannot acknowledge this one. A timeout does not cancel the motion on the
// device; it only stops waiting.
func (s *SerialMux[T]) Exec(ctx context.Context, command string, timeout time.Duration) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()

	s.discardQueued()
	if err := s.write(command); err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			monitoring.Logf("timeout waiting for ok (%s) for: %s", timeout, command)
			return fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, command)
		case line, ok := <-s.replies:
			if !ok {
				return ErrClosed
			}
			switch ClassifyReply(line) {
			case ReplyAck:
				return nil
			case ReplyError:
				monitoring.Logf("controller reported error for %q: %s", command, line)
			}
		}
	}
}

// Drain empties the reply buffer. It keeps reading until no line has arrived
// for quiet, so replies still in flight from an earlier command are dropped
// too.
func (s *SerialMux[T]) Drain(quiet time.Duration) []string {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()

	var drained []string
	for {
		select {
		case line, ok := <-s.replies:
			if !ok {
				return drained
			}
			monitoring.Logf("RCV (drain): %s", line)
			drained = append(drained, line)
		case <-time.After(quiet):
			return drained
		}
	}
}

// discardQueued drops every reply already buffered without waiting for more.
func (s *SerialMux[T]) discardQueued() {
	for {
		select {
		case line, ok := <-s.replies:
			if !ok {
				return
			}
			monitoring.Logf("RCV (stale): %s", line)
		default:
			return
		}
	}
}

// Monitor monitors the serial port for lines, queuing them for Exec and
// sending them to subscribers.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking scan.Scan will not interfere with our outer loop awaiting
	// lines & context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				return nil
			}
			if s.isClosing() {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			monitoring.Logf("RCV: %s", line)
			s.queueReply(line)

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- line:
				default:
					// if the channel is full/blocking skip so as not to block the outer loop
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

// queueReply adds line to the reply buffer, evicting the oldest line when the
// buffer is full.
func (s *SerialMux[T]) queueReply(line string) {
	for {
		select {
		case s.replies <- line:
			return
		default:
		}
		select {
		case <-s.replies:
		default:
		}
	}
}

func (s *SerialMux[T]) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	if s.closing {
		s.closingMu.Unlock()
		return nil
	}
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux, guard CommandGuard) {
	attachAdminRoutes(mux, s, guard)
}

func attachAdminRoutes(mux *http.ServeMux, s SerialMuxInterface, guard CommandGuard) {
	debug := tsweb.Debugger(mux)

	// Basic command / live tail monitor interface using the below two API endpoints.
	debug.HandleFunc("send-command", "send a G-code command to the motion controller", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := sendCommandTemplate.Execute(buf, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if guard != nil {
			if err := guard(); err != nil {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
		}
		if err := s.Exec(r.Context(), command, adminCommandTimeout); err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, ErrTimeout) {
				status = http.StatusGatewayTimeout
			}
			http.Error(w, err.Error(), status)
			return
		}
		io.WriteString(w, fmt.Sprintf("Command %q acknowledged", command))
	})

	// Server-Side Events (SSE) for lines coming from the serial port.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := w.Write([]byte(fmt.Sprintf("data: %s\n\n", payload))); err != nil {
					return
				}
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")

		f, err := adminTemplateFS.Open("templates/tail.js")
		if err != nil {
			http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		io.Copy(w, f)
	})
}
