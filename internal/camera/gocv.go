//go:build gocv

package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// DefaultPipeline is the GStreamer pipeline of the reference rig camera.
const DefaultPipeline = "libcamerasrc ! video/x-raw,width=4056,height=3040,framerate=10/1 ! videoconvert ! appsink drop=true max-buffers=1"

// VideoSource captures directly through OpenCV. The device stays open
// between captures; stale buffered frames are skipped before each read.
type VideoSource struct {
	mu     sync.Mutex
	cap    *gocv.VideoCapture
	name   string
	skip   int
	now    func() time.Time
	closed bool
}

// OpenVideoSource opens a GStreamer pipeline, or a device index when
// pipeline parses as an integer.
func OpenVideoSource(pipeline string, skip int) (*VideoSource, error) {
	if pipeline == "" {
		pipeline = DefaultPipeline
	}
	var id int
	var (
		vc  *gocv.VideoCapture
		err error
	)
	if _, scanErr := fmt.Sscanf(pipeline, "%d", &id); scanErr == nil {
		vc, err = gocv.OpenVideoCapture(id)
	} else {
		vc, err = gocv.OpenVideoCaptureWithAPI(pipeline, gocv.VideoCaptureGstreamer)
	}
	if err != nil {
		return nil, fmt.Errorf("open video capture %q: %w", pipeline, err)
	}
	return &VideoSource{cap: vc, name: pipeline, skip: skip, now: time.Now}, nil
}

// Capture reads one frame and encodes it as JPEG.
func (v *VideoSource) Capture(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return Frame{}, fmt.Errorf("%w: video source closed", ErrNoFrame)
	}

	mat := gocv.NewMat()
	defer mat.Close()
	for i := 0; i <= v.skip; i++ {
		if ok := v.cap.Read(&mat); !ok {
			return Frame{}, fmt.Errorf("%w: read from %s failed", ErrNoFrame, v.name)
		}
	}
	if mat.Empty() {
		return Frame{}, fmt.Errorf("%w: empty frame from %s", ErrNoFrame, v.name)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: encode: %v", ErrNoFrame, err)
	}
	defer buf.Close()
	data := append([]byte(nil), buf.GetBytes()...)

	return Frame{
		Data:       data,
		Format:     "jpeg",
		Width:      mat.Cols(),
		Height:     mat.Rows(),
		Source:     v.name,
		CapturedAt: v.now(),
	}, nil
}

// Close releases the device.
func (v *VideoSource) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	return v.cap.Close()
}

var _ FrameSource = (*VideoSource)(nil)
