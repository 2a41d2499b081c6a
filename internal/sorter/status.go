package sorter

import (
	"fmt"
	"time"

	"github.com/banshee-data/platesort/internal/plate"
	"github.com/banshee-data/platesort/internal/schedule"
)

// Status is a point-in-time view of the orchestrator for the HTTP surface.
type Status struct {
	RunID     string           `json:"run_id,omitempty"`
	State     State            `json:"state"`
	Round     int              `json:"round"`
	Scans     int              `json:"scans"`
	Pushed    int              `json:"pushed"`
	Failed    int              `json:"failed"`
	Mapping   plate.Mapping    `json:"mapping,omitempty"`
	Plan      []schedule.Entry `json:"plan,omitempty"`
	LastError string           `json:"last_error,omitempty"`
	Last      *Summary         `json:"last_run,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Status returns a copy of the current status.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s := o.status
	s.Plan = append([]schedule.Entry(nil), s.Plan...)
	return s
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status.State
}

// CheckIdle returns ErrBusy, naming the state, while a run holds the
// machine. Manual commands are gated on it.
func (o *Orchestrator) CheckIdle() error {
	if st := o.State(); st.Busy() {
		return fmt.Errorf("%w: %s", ErrBusy, st)
	}
	return nil
}

func (o *Orchestrator) update(f func(*Status)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f(&o.status)
	o.status.UpdatedAt = o.clock.Now()
}

func (o *Orchestrator) setState(s State) {
	o.update(func(st *Status) { st.State = s })
}

func (o *Orchestrator) begin(runID string) {
	o.update(func(s *Status) {
		last := s.Last
		*s = Status{RunID: runID, State: Idle, Last: last}
	})
}

func (o *Orchestrator) finish(sum Summary) {
	o.update(func(s *Status) { s.Last = &sum })
}
