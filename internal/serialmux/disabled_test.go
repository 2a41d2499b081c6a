package serialmux

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDisabledSerialMux_AcknowledgesAndRecords(t *testing.T) {
	d := NewDisabledSerialMux()
	if err := d.Exec(context.Background(), "G28", time.Millisecond); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if err := d.SendCommand("M400\n"); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	got := d.Sent()
	if len(got) != 2 || got[0] != "G28" || got[1] != "M400" {
		t.Errorf("Sent() = %v, want [G28 M400]", got)
	}
	if d.Drain(time.Millisecond) != nil {
		t.Error("Drain() should return nil")
	}
}

func TestDisabledSerialMux_CloseUnblocksSubscribers(t *testing.T) {
	d := NewDisabledSerialMux()
	_, ch := d.Subscribe()

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber not closed")
	}

	// Subscribing after close returns a closed channel.
	_, late := d.Subscribe()
	if _, ok := <-late; ok {
		t.Error("expected closed channel after Close")
	}
	if err := d.SendCommand("G90"); err != ErrClosed {
		t.Errorf("SendCommand after Close = %v, want ErrClosed", err)
	}
}

func TestDisabledSerialMux_ExecCancelled(t *testing.T) {
	d := NewDisabledSerialMux()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Exec(ctx, "G28", time.Second); err == nil {
		t.Error("expected context error")
	}
	if len(d.Sent()) != 0 {
		t.Error("cancelled Exec should not send")
	}
}

func TestDisabledSerialMux_MonitorReturnsOnCancel(t *testing.T) {
	d := NewDisabledSerialMux()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Monitor(ctx); err != context.Canceled {
		t.Errorf("Monitor() = %v, want context.Canceled", err)
	}
}

func TestDisabledSerialMux_AdminRoute(t *testing.T) {
	d := NewDisabledSerialMux()
	d.SendCommand("G28")
	mux := http.NewServeMux()
	d.AttachAdminRoutes(mux, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/serial-disabled", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "G28") {
		t.Errorf("body %q should list sent commands", rec.Body.String())
	}
}
