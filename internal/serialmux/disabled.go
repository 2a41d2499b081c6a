package serialmux

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/platesort/internal/monitoring"
)

// DisabledSerialMux is a no-op mux used for -dry-run, when no controller is
// attached. Every command is acknowledged immediately and recorded, so that
// whole plans can be exercised without hardware. Subscribers are tracked so
// their channels can be closed on Unsubscribe() or Close().
type DisabledSerialMux struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	sent        []string
	closing     bool
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{
		subscribers: make(map[string]chan string),
	}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)

	d.mu.Lock()
	if d.closing {
		// If already closing, return a closed channel so callers don't block.
		close(ch)
		d.mu.Unlock()
		return id, ch
	}
	d.subscribers[id] = ch
	d.mu.Unlock()
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
}

func (d *DisabledSerialMux) SendCommand(command string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return ErrClosed
	}
	command = strings.TrimSpace(command)
	d.sent = append(d.sent, command)
	monitoring.Logf("SND (dry-run): %s", command)
	return nil
}

func (d *DisabledSerialMux) Exec(ctx context.Context, command string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.SendCommand(command)
}

func (d *DisabledSerialMux) Drain(time.Duration) []string { return nil }

// Sent returns every command written so far.
func (d *DisabledSerialMux) Sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

func (d *DisabledSerialMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
	return nil
}

// AttachAdminRoutes serves the list of recorded commands. There is no
// console in dry-run, so guard is unused.
func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux, _ CommandGuard) {
	mux.HandleFunc("/debug/serial-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("serial disabled (dry-run)\n" + strings.Join(d.Sent(), "\n")))
	})
}
