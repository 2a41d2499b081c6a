package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/platesort/internal/db"
	"github.com/banshee-data/platesort/internal/httputil"
	"github.com/banshee-data/platesort/internal/plate"
	"github.com/banshee-data/platesort/internal/schedule"
	"github.com/banshee-data/platesort/internal/serialmux"
	"github.com/banshee-data/platesort/internal/sorter"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// StatusSource reports the live orchestrator state.
type StatusSource interface {
	Status() sorter.Status
	Plate() *plate.Plate
}

// History reads the run journal.
type History interface {
	Runs(ctx context.Context, limit int) ([]db.Run, error)
	GetRun(ctx context.Context, id string) (db.Run, error)
	Pushes(ctx context.Context, runID string) ([]db.Push, error)
	Plan(ctx context.Context, runID string, round int) ([]schedule.Entry, error)
}

// Commander sends a raw command to the controller and waits for its
// acknowledgement.
type Commander interface {
	Exec(ctx context.Context, command string, timeout time.Duration) error
}

type Server struct {
	status  StatusSource
	history History
	cmd     Commander
	timeout time.Duration
}

// NewServer builds the HTTP surface. history and cmd may be nil, which
// disables their routes.
func NewServer(status StatusSource, history History, cmd Commander) *Server {
	return &Server{status: status, history: history, cmd: cmd, timeout: 15 * time.Second}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/plan", s.showPlan)
	mux.HandleFunc("/api/plate", s.showPlate)
	if s.history != nil {
		mux.HandleFunc("/api/runs", s.listRuns)
		mux.HandleFunc("/api/runs/{id}", s.showRun)
		mux.HandleFunc("/api/runs/{id}/pushes", s.listPushes)
		mux.HandleFunc("/api/runs/{id}/plan", s.showRunPlan)
	}
	if s.cmd != nil {
		mux.HandleFunc("/api/command", s.sendCommandHandler)
	}
	return mux
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.status.Status())
}

func (s *Server) showPlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	st := s.status.Status()
	plan := st.Plan
	if plan == nil {
		plan = []schedule.Entry{}
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"run_id": st.RunID,
		"round":  st.Round,
		"plan":   plan,
	})
}

type binView struct {
	Class        int     `json:"class"`
	EdgePosition float64 `json:"edge_position"`
}

func (s *Server) showPlate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	p := s.status.Plate()
	bins := make([]binView, 0, len(p.Bins))
	for _, c := range p.Classes() {
		bins = append(bins, binView{Class: c, EdgePosition: p.Bins[c].EdgePosition})
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"width":  p.Width,
		"height": p.Height,
		"bins":   bins,
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit := 20 // default value
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}
	runs, err := s.history.Runs(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, "Failed to retrieve runs: "+err.Error())
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	run, err := s.history.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, "Failed to retrieve run: "+err.Error())
		return
	}
	httputil.WriteJSONOK(w, run)
}

func (s *Server) listPushes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	pushes, err := s.history.Pushes(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.InternalServerError(w, "Failed to retrieve pushes: "+err.Error())
		return
	}
	if pushes == nil {
		pushes = []db.Push{}
	}
	httputil.WriteJSONOK(w, pushes)
}

func (s *Server) showRunPlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	round := 1
	if v := r.URL.Query().Get("round"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'round' parameter")
			return
		}
		round = parsed
	}
	plan, err := s.history.Plan(r.Context(), r.PathValue("id"), round)
	if err != nil {
		httputil.InternalServerError(w, "Failed to retrieve plan: "+err.Error())
		return
	}
	if plan == nil {
		plan = []schedule.Entry{}
	}
	httputil.WriteJSONOK(w, plan)
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	command := r.FormValue("command")
	if command == "" {
		httputil.BadRequest(w, "missing 'command'")
		return
	}
	st := s.status.Status()
	if st.State.Busy() {
		httputil.Busy(w, st.State.String(), st.RunID)
		return
	}
	if err := s.cmd.Exec(r.Context(), command, s.timeout); err != nil {
		httputil.ControllerError(w, err, errors.Is(err, serialmux.ErrTimeout), st.State.String())
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"command": command, "reply": "ok"})
}
