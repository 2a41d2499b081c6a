// Package motion speaks G-code to the motion controller through a blocking
// send-and-acknowledge transport.
package motion

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Transport is the single shared command channel to the controller.
// serialmux.SerialMuxInterface satisfies it.
type Transport interface {
	Exec(ctx context.Context, command string, timeout time.Duration) error
	Drain(quiet time.Duration) []string
}

// Coord is one axis target of a linear move.
type Coord struct {
	Axis  byte
	Value float64
}

// X targets the X axis, the push direction toward the collection edge.
func X(v float64) Coord { return Coord{'X', v} }

// Y targets the Y axis, across the bins.
func Y(v float64) Coord { return Coord{'Y', v} }

// Z targets the tool height.
func Z(v float64) Coord { return Coord{'Z', v} }

// Pose is a full XYZ position.
type Pose struct {
	X, Y, Z float64
}

// Timeouts bounds each command class. Ack covers plain commands (mode
// switches, queued moves); the others cover the synchronisation that follows.
type Timeouts struct {
	Ack  time.Duration
	Home time.Duration
	Park time.Duration
}

// Controller issues G-code commands one at a time.
type Controller struct {
	t        Transport
	timeouts Timeouts
}

// NewController wraps a transport.
func NewController(t Transport, timeouts Timeouts) *Controller {
	return &Controller{t: t, timeouts: timeouts}
}

// Command renders a G1 linear move.
func Command(feed int, coords ...Coord) string {
	var b strings.Builder
	b.WriteString("G1")
	for _, c := range coords {
		b.WriteByte(' ')
		b.WriteByte(c.Axis)
		b.WriteString(formatMM(c.Value))
	}
	if feed > 0 {
		fmt.Fprintf(&b, " F%d", feed)
	}
	return b.String()
}

// formatMM prints a coordinate with at most three decimals and no trailing
// zeros.
func formatMM(v float64) string {
	v = math.Round(v*1000) / 1000
	if v == 0 {
		v = 0 // normalise -0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Exec sends a raw command and waits for its acknowledgement.
func (c *Controller) Exec(ctx context.Context, command string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.timeouts.Ack
	}
	if err := c.t.Exec(ctx, command, timeout); err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}

// Absolute switches to absolute positioning (G90).
func (c *Controller) Absolute(ctx context.Context) error {
	return c.Exec(ctx, "G90", c.timeouts.Ack)
}

// Relative switches to relative positioning (G91).
func (c *Controller) Relative(ctx context.Context) error {
	return c.Exec(ctx, "G91", c.timeouts.Ack)
}

// Home runs G28 and leaves the controller in absolute mode.
func (c *Controller) Home(ctx context.Context) error {
	if err := c.Exec(ctx, "G28", c.timeouts.Home); err != nil {
		return fmt.Errorf("homing: %w", err)
	}
	return c.Absolute(ctx)
}

// Move queues a linear move. The acknowledgement only means the controller
// accepted it; use Sync to wait for completion.
func (c *Controller) Move(ctx context.Context, feed int, coords ...Coord) error {
	return c.Exec(ctx, Command(feed, coords...), c.timeouts.Ack)
}

// Sync waits for all queued motion to finish (M400).
func (c *Controller) Sync(ctx context.Context, timeout time.Duration) error {
	return c.Exec(ctx, "M400", timeout)
}

// MoveAndWait queues a move and waits for it to complete.
func (c *Controller) MoveAndWait(ctx context.Context, feed int, sync time.Duration, coords ...Coord) error {
	if err := c.Move(ctx, feed, coords...); err != nil {
		return err
	}
	return c.Sync(ctx, sync)
}

// Jog moves one axis by a relative distance and restores absolute mode.
func (c *Controller) Jog(ctx context.Context, feed int, coord Coord) error {
	if err := c.Relative(ctx); err != nil {
		return err
	}
	moveErr := c.Move(ctx, feed, coord)
	if err := c.Absolute(ctx); err != nil && moveErr == nil {
		return err
	}
	return moveErr
}

// Park moves to the resting pose: XY first at the current height, then Z.
func (c *Controller) Park(ctx context.Context, pose Pose, feedXY, feedZ int) error {
	if err := c.Absolute(ctx); err != nil {
		return err
	}
	if err := c.MoveAndWait(ctx, feedXY, c.timeouts.Park, X(pose.X), Y(pose.Y)); err != nil {
		return fmt.Errorf("park: %w", err)
	}
	if err := c.MoveAndWait(ctx, feedZ, c.timeouts.Ack, Z(pose.Z)); err != nil {
		return fmt.Errorf("park: %w", err)
	}
	return nil
}

// Drain discards stale unsolicited controller output.
func (c *Controller) Drain(quiet time.Duration) []string {
	return c.t.Drain(quiet)
}
