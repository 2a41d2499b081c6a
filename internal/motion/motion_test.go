package motion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	command string
	timeout time.Duration
}

type fakeTransport struct {
	calls  []call
	failOn string
	err    error
}

func (f *fakeTransport) Exec(_ context.Context, command string, timeout time.Duration) error {
	f.calls = append(f.calls, call{command, timeout})
	if f.failOn != "" && command == f.failOn {
		return f.err
	}
	return nil
}

func (f *fakeTransport) Drain(time.Duration) []string { return []string{"stale"} }

func (f *fakeTransport) commands() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.command
	}
	return out
}

var testTimeouts = Timeouts{Ack: 15 * time.Second, Home: 60 * time.Second, Park: 30 * time.Second}

func TestCommand(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{Command(6000, X(295), Y(260)), "G1 X295 Y260 F6000"},
		{Command(1500, Z(0)), "G1 Z0 F1500"},
		{Command(0, X(12.3456)), "G1 X12.346"},
		{Command(6000, X(-0.0001)), "G1 X0 F6000"},
		{Command(300, Z(-5.5)), "G1 Z-5.5 F300"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.got)
	}
}

func TestController_Home(t *testing.T) {
	ft := &fakeTransport{}
	c := NewController(ft, testTimeouts)

	require.NoError(t, c.Home(context.Background()))
	assert.Equal(t, []call{{"G28", 60 * time.Second}, {"G90", 15 * time.Second}}, ft.calls)
}

func TestController_HomeTimeout(t *testing.T) {
	ft := &fakeTransport{failOn: "G28", err: errors.New("timed out")}
	c := NewController(ft, testTimeouts)

	err := c.Home(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "homing")
	assert.Equal(t, []string{"G28"}, ft.commands(), "no further commands after a failed home")
}

func TestController_MoveAndWait(t *testing.T) {
	ft := &fakeTransport{}
	c := NewController(ft, testTimeouts)

	require.NoError(t, c.MoveAndWait(context.Background(), 6000, 42*time.Second, X(10), Y(20)))
	assert.Equal(t, []call{{"G1 X10 Y20 F6000", 15 * time.Second}, {"M400", 42 * time.Second}}, ft.calls)
}

func TestController_Jog(t *testing.T) {
	ft := &fakeTransport{failOn: "G1 Y-5 F1500", err: errors.New("boom")}
	c := NewController(ft, testTimeouts)

	err := c.Jog(context.Background(), 1500, Y(-5))
	require.Error(t, err)
	assert.Equal(t, []string{"G91", "G1 Y-5 F1500", "G90"}, ft.commands(), "absolute mode restored after failure")
}

func TestController_Park(t *testing.T) {
	ft := &fakeTransport{}
	c := NewController(ft, testTimeouts)

	require.NoError(t, c.Park(context.Background(), Pose{X: 0, Y: 0, Z: 75}, 6000, 1500))
	assert.Equal(t, []call{
		{"G90", 15 * time.Second},
		{"G1 X0 Y0 F6000", 15 * time.Second},
		{"M400", 30 * time.Second},
		{"G1 Z75 F1500", 15 * time.Second},
		{"M400", 15 * time.Second},
	}, ft.calls)
}

func TestController_ExecDefaultTimeoutAndDrain(t *testing.T) {
	ft := &fakeTransport{}
	c := NewController(ft, testTimeouts)

	require.NoError(t, c.Exec(context.Background(), "M114", 0))
	assert.Equal(t, 15*time.Second, ft.calls[0].timeout)
	assert.Equal(t, []string{"stale"}, c.Drain(time.Millisecond))
}
