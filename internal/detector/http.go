package detector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/banshee-data/platesort/internal/camera"
	"github.com/banshee-data/platesort/internal/httputil"
	"github.com/banshee-data/platesort/internal/plate"
)

// maxResponse caps how much of an inference reply is read.
const maxResponse = 4 << 20

// HTTPDetector posts the raw frame to an inference server and expects the
// same JSON snapshot CommandDetector reads from stdout.
type HTTPDetector struct {
	url    string
	client httputil.HTTPClient
}

// NewHTTPDetector builds a detector for url. A nil client uses
// http.DefaultClient.
func NewHTTPDetector(url string, client httputil.HTTPClient) (*HTTPDetector, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("detector url %q must be http or https", url)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDetector{url: url, client: client}, nil
}

func (d *HTTPDetector) Detect(ctx context.Context, frame camera.Frame) (plate.Snapshot, error) {
	if len(frame.Data) == 0 {
		return plate.Snapshot{}, errors.New("detector: empty frame")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(frame.Data))
	if err != nil {
		return plate.Snapshot{}, err
	}
	req.Header.Set("Content-Type", "image/"+frame.Format)
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return plate.Snapshot{}, fmt.Errorf("detector request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return plate.Snapshot{}, fmt.Errorf("detector response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return plate.Snapshot{}, fmt.Errorf("detector returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return Parse(body)
}

var _ Detector = (*HTTPDetector)(nil)
