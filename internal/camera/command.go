package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

// DefaultCaptureCommand grabs a single JPEG still on stdout.
var DefaultCaptureCommand = []string{"rpicam-still", "-n", "-t", "500", "-e", "jpg", "-o", "-"}

// CommandSource runs an external capture tool that writes one encoded image
// to stdout.
type CommandSource struct {
	binary  string
	args    []string
	timeout time.Duration
	now     func() time.Time
}

// CommandOption configures a CommandSource.
type CommandOption func(*CommandSource)

// WithTimeout bounds a single capture.
func WithTimeout(d time.Duration) CommandOption {
	return func(c *CommandSource) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewCommandSource builds a source from argv. An empty argv uses
// DefaultCaptureCommand.
func NewCommandSource(argv []string, opts ...CommandOption) *CommandSource {
	if len(argv) == 0 {
		argv = DefaultCaptureCommand
	}
	c := &CommandSource{binary: argv[0], args: argv[1:], timeout: 30 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capture runs the command once.
func (c *CommandSource) Capture(ctx context.Context) (Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := commandContext(ctx, c.binary, c.args...) //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return Frame{}, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return Frame{}, fmt.Errorf("%w: %s: %v: %s", ErrNoFrame, c.binary, err, msg)
		}
		return Frame{}, fmt.Errorf("%w: %s: %v", ErrNoFrame, c.binary, err)
	}
	return newFrame(stdout.Bytes(), c.binary, c.now())
}

var _ FrameSource = (*CommandSource)(nil)
