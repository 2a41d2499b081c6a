// Package httputil holds the JSON response helpers shared by the HTTP
// surface and a client abstraction for talking to inference servers.
package httputil

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"
)

// HTTPClient is the subset of *http.Client the detector needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewStandardClient returns an *http.Client with the given overall timeout.
// A zero timeout leaves requests bounded only by their context.
func NewStandardClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// MockHTTPClient replays queued responses and records every request body.
type MockHTTPClient struct {
	mu        sync.Mutex
	responses []MockResponse
	next      int
	Requests  []RecordedRequest
}

// MockResponse is one canned reply. A non-nil Error is returned in place of
// a response.
type MockResponse struct {
	StatusCode int
	Body       string
	Error      error
}

// RecordedRequest captures what was sent; the body is read eagerly so it
// survives the request.
type RecordedRequest struct {
	Method      string
	URL         string
	ContentType string
	Body        []byte
}

func NewMockHTTPClient(responses ...MockResponse) *MockHTTPClient {
	return &MockHTTPClient{responses: responses}
}

// Do records req and returns the next queued response. Once the queue is
// exhausted it answers 200 with an empty body.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := RecordedRequest{Method: req.Method, URL: req.URL.String(), ContentType: req.Header.Get("Content-Type")}
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		rec.Body = body
	}
	m.Requests = append(m.Requests, rec)

	resp := MockResponse{StatusCode: http.StatusOK}
	if m.next < len(m.responses) {
		resp = m.responses[m.next]
		m.next++
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return &http.Response{
		StatusCode: resp.StatusCode,
		Body:       io.NopCloser(bytes.NewBufferString(resp.Body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// RequestCount returns the number of recorded requests.
func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
