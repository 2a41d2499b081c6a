package sorter

import (
	"errors"
	"fmt"
)

// ErrBusy is returned by CheckIdle while a run holds the machine.
var ErrBusy = errors.New("machine busy")

// State is the orchestrator's position in the run lifecycle.
type State int

const (
	Idle State = iota
	Homed
	Captured
	Detected
	BinsAssigned
	Scheduling
	Sequencing
	RescanDue
	Exhausted
	Parked
	Aborted
)

var stateNames = [...]string{
	"idle", "homed", "captured", "detected", "bins_assigned",
	"scheduling", "sequencing", "rescan_due", "exhausted", "parked", "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Busy reports whether a run in this state holds the machine.
func (s State) Busy() bool {
	switch s {
	case Idle, Parked, Aborted:
		return false
	}
	return true
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeParked     Outcome = "parked"
	OutcomeRoundLimit Outcome = "round_limit"
	OutcomeCancelled  Outcome = "cancelled"
	OutcomeAborted    Outcome = "aborted"
)
