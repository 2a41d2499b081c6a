// Package camera provides pull-based frame sources for the capture step.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for DecodeConfig
	_ "image/png"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrNoFrame is returned when a source cannot produce a frame. It is fatal
// to the current run.
var ErrNoFrame = errors.New("no frame")

// Frame is one encoded image.
type Frame struct {
	Data       []byte
	Format     string // decoder name: jpeg, png, bmp, tiff, webp
	Width      int
	Height     int
	Source     string
	CapturedAt time.Time
}

// FrameSource produces one frame per call.
type FrameSource interface {
	Capture(ctx context.Context) (Frame, error)
}

// newFrame validates data as a decodable image and records its geometry.
func newFrame(data []byte, source string, now time.Time) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("%w: %s produced no data", ErrNoFrame, source)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %s: %v", ErrNoFrame, source, err)
	}
	return Frame{
		Data:       data,
		Format:     format,
		Width:      cfg.Width,
		Height:     cfg.Height,
		Source:     source,
		CapturedAt: now,
	}, nil
}

// Extension returns a file extension matching the frame format.
func (f Frame) Extension() string {
	switch f.Format {
	case "jpeg":
		return ".jpg"
	case "tiff":
		return ".tif"
	case "":
		return ".img"
	default:
		return "." + f.Format
	}
}
