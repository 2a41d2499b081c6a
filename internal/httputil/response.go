package httputil

import (
	"encoding/json"
	"log"
	"net/http"
)

// ErrorBody is the JSON shape of every error response. State and RunID are
// filled in when the error concerns the machine, so a client can tell a
// refused command from one the controller failed.
type ErrorBody struct {
	Error string `json:"error"`
	State string `json:"state,omitempty"`
	RunID string `json:"run_id,omitempty"`
}

// WriteError writes body with the given status code.
func WriteError(w http.ResponseWriter, status int, body ErrorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("failed to encode json error response: %v", err)
	}
}

// WriteJSONError writes an error response that carries only a message.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteError(w, status, ErrorBody{Error: msg})
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode json response: %v", err)
	}
}

// WriteJSONOK writes a successful JSON response (200 OK).
func WriteJSONOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}

// MethodNotAllowed writes a 405 Method Not Allowed response.
func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// BadRequest writes a 400 Bad Request response with the given message.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusInternalServerError, msg)
}

func NotFound(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusNotFound, msg)
}

// Busy writes a 409 refusing a manual command while a run holds the
// machine. state and runID identify what holds it.
func Busy(w http.ResponseWriter, state, runID string) {
	WriteError(w, http.StatusConflict, ErrorBody{Error: "machine busy", State: state, RunID: runID})
}

// ControllerError reports a command the controller did not acknowledge. A
// timeout is a 504 since the motion may still be running; anything else is a
// 502. state is the machine state when the command was sent.
func ControllerError(w http.ResponseWriter, err error, timedOut bool, state string) {
	status := http.StatusBadGateway
	if timedOut {
		status = http.StatusGatewayTimeout
	}
	WriteError(w, status, ErrorBody{Error: err.Error(), State: state})
}
