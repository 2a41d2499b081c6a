// Package detector turns a camera frame into a detection snapshot. Object
// classification itself runs in an external process.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/platesort/internal/camera"
	"github.com/banshee-data/platesort/internal/plate"
)

var commandContext = exec.CommandContext

// Detector analyses one frame.
type Detector interface {
	Detect(ctx context.Context, frame camera.Frame) (plate.Snapshot, error)
}

// CommandDetector runs an external classifier. The frame is written to a
// temporary file whose path is appended to the arguments; the process must
// print a snapshot as JSON on stdout:
//
//	{"objects":[{"class":"screw","x":120,"y":88}],"crop_width":3002,"crop_height":2918}
type CommandDetector struct {
	binary  string
	args    []string
	timeout time.Duration
	tempDir string
}

// Option configures a CommandDetector.
type Option func(*CommandDetector)

// WithTimeout bounds a single detection run.
func WithTimeout(d time.Duration) Option {
	return func(c *CommandDetector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTempDir sets where frames are staged for the classifier.
func WithTempDir(dir string) Option {
	return func(c *CommandDetector) {
		if dir != "" {
			c.tempDir = dir
		}
	}
}

// NewCommandDetector builds a detector from argv.
func NewCommandDetector(argv []string, opts ...Option) (*CommandDetector, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("detector command required")
	}
	d := &CommandDetector{binary: argv[0], args: argv[1:], timeout: 2 * time.Minute}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Detect stages the frame and runs the classifier.
func (d *CommandDetector) Detect(ctx context.Context, frame camera.Frame) (plate.Snapshot, error) {
	f, err := os.CreateTemp(d.tempDir, "platesort-frame-*"+frame.Extension())
	if err != nil {
		return plate.Snapshot{}, fmt.Errorf("stage frame: %w", err)
	}
	framePath := f.Name()
	defer os.Remove(framePath)
	if _, err := f.Write(frame.Data); err != nil {
		f.Close()
		return plate.Snapshot{}, fmt.Errorf("stage frame: %w", err)
	}
	if err := f.Close(); err != nil {
		return plate.Snapshot{}, fmt.Errorf("stage frame: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	args := append(append([]string(nil), d.args...), framePath)
	var stdout, stderr bytes.Buffer
	cmd := commandContext(ctx, d.binary, args...) //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return plate.Snapshot{}, fmt.Errorf("detector %s failed: %w: %s", filepath.Base(d.binary), err, msg)
		}
		return plate.Snapshot{}, fmt.Errorf("detector %s failed: %w", filepath.Base(d.binary), err)
	}
	return Parse(stdout.Bytes())
}

// Parse decodes and validates a snapshot.
func Parse(data []byte) (plate.Snapshot, error) {
	var s plate.Snapshot
	if err := json.Unmarshal(bytes.TrimSpace(data), &s); err != nil {
		return plate.Snapshot{}, fmt.Errorf("parse detector output: %w", err)
	}
	if err := s.Validate(); err != nil {
		return plate.Snapshot{}, fmt.Errorf("detector output: %w", err)
	}
	return s, nil
}

var _ Detector = (*CommandDetector)(nil)
