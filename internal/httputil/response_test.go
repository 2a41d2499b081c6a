package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestErrorResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		want   ErrorBody
	}{
		{
			name:   "message only",
			write:  func(w http.ResponseWriter) { WriteJSONError(w, http.StatusTeapot, "test error") },
			status: http.StatusTeapot,
			want:   ErrorBody{Error: "test error"},
		},
		{
			name:   "method not allowed",
			write:  MethodNotAllowed,
			status: http.StatusMethodNotAllowed,
			want:   ErrorBody{Error: "method not allowed"},
		},
		{
			name:   "bad request",
			write:  func(w http.ResponseWriter) { BadRequest(w, "invalid input") },
			status: http.StatusBadRequest,
			want:   ErrorBody{Error: "invalid input"},
		},
		{
			name:   "internal",
			write:  func(w http.ResponseWriter) { InternalServerError(w, "something went wrong") },
			status: http.StatusInternalServerError,
			want:   ErrorBody{Error: "something went wrong"},
		},
		{
			name:   "not found",
			write:  func(w http.ResponseWriter) { NotFound(w, "run not found") },
			status: http.StatusNotFound,
			want:   ErrorBody{Error: "run not found"},
		},
		{
			name:   "busy carries state and run",
			write:  func(w http.ResponseWriter) { Busy(w, "sequencing", "run-1") },
			status: http.StatusConflict,
			want:   ErrorBody{Error: "machine busy", State: "sequencing", RunID: "run-1"},
		},
		{
			name: "controller timeout",
			write: func(w http.ResponseWriter) {
				ControllerError(w, errors.New("timed out waiting for acknowledgement"), true, "idle")
			},
			status: http.StatusGatewayTimeout,
			want:   ErrorBody{Error: "timed out waiting for acknowledgement", State: "idle"},
		},
		{
			name:   "controller error",
			write:  func(w http.ResponseWriter) { ControllerError(w, errors.New("serial mux closed"), false, "parked") },
			status: http.StatusBadGateway,
			want:   ErrorBody{Error: "serial mux closed", State: "parked"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			tc.write(rec)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.want, decodeError(t, rec))
		})
	}
}

func TestErrorBody_OmitsEmptyMachineFields(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	BadRequest(rec, "missing 'command'")
	assert.JSONEq(t, `{"error":"missing 'command'"}`, rec.Body.String())
}

func TestWriteJSONOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]int{"count": 42})

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 42, resp["count"])
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"message":"hello"}`, rec.Body.String())
}
