package detector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/platesort/internal/camera"
	"github.com/banshee-data/platesort/internal/httputil"
)

func TestHTTPDetector_PostsFrame(t *testing.T) {
	mock := httputil.NewMockHTTPClient(httputil.MockResponse{StatusCode: http.StatusOK, Body: sampleOutput})
	d, err := NewHTTPDetector("http://infer.local:8500/detect", mock)
	require.NoError(t, err)

	s, err := d.Detect(context.Background(), camera.Frame{Data: []byte{0xff, 0xd8}, Format: "jpeg"})
	require.NoError(t, err)
	assert.Len(t, s.Detections, 2)
	assert.Equal(t, 3002, s.CropWidth)

	require.Equal(t, 1, mock.RequestCount())
	req := mock.Requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "image/jpeg", req.ContentType)
	assert.Equal(t, []byte{0xff, 0xd8}, req.Body)
}

func TestHTTPDetector_Errors(t *testing.T) {
	frame := camera.Frame{Data: []byte("x"), Format: "png"}
	tests := map[string]struct {
		resp httputil.MockResponse
		want string
	}{
		"status":    {httputil.MockResponse{StatusCode: http.StatusServiceUnavailable, Body: "model loading\n"}, "detector returned 503: model loading"},
		"transport": {httputil.MockResponse{Error: errors.New("connection refused")}, "detector request: connection refused"},
		"invalid":   {httputil.MockResponse{StatusCode: http.StatusOK, Body: `{"objects":[],"crop_width":0,"crop_height":1}`}, "detector output"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			d, err := NewHTTPDetector("http://infer.local/detect", httputil.NewMockHTTPClient(tc.resp))
			require.NoError(t, err)
			_, err = d.Detect(context.Background(), frame)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestHTTPDetector_EmptyFrame(t *testing.T) {
	d, err := NewHTTPDetector("http://infer.local/detect", httputil.NewMockHTTPClient())
	require.NoError(t, err)
	_, err = d.Detect(context.Background(), camera.Frame{})
	assert.Error(t, err)
}

func TestNewHTTPDetector_RejectsScheme(t *testing.T) {
	_, err := NewHTTPDetector("ftp://infer.local", nil)
	assert.Error(t, err)
}

func TestHTTPDetector_RealServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "image/png" {
			http.Error(w, "bad type", http.StatusUnsupportedMediaType)
			return
		}
		w.Write([]byte(sampleOutput))
	}))
	defer srv.Close()

	d, err := NewHTTPDetector(srv.URL, httputil.NewStandardClient(0))
	require.NoError(t, err)
	s, err := d.Detect(context.Background(), camera.Frame{Data: []byte("png"), Format: "png"})
	require.NoError(t, err)
	assert.Equal(t, "screw", s.Detections[0].Class)
}
