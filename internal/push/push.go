// Package push drives the pusher through the fixed phase sequence that moves
// one object from its position to its bin edge.
package push

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/platesort/internal/monitoring"
	"github.com/banshee-data/platesort/internal/motion"
	"github.com/banshee-data/platesort/internal/plate"
)

// ErrPushFailed wraps any failure in the middle of a push. The phase that
// failed is part of the message and available through PhaseOf.
var ErrPushFailed = errors.New("push failed")

// Phase names one step of a push.
type Phase int

const (
	Approach Phase = iota
	Descend
	Align
	EdgePush
	Settle
	Retract
)

var phaseNames = [...]string{"approach", "descend", "align", "edge_push", "settle", "retract"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Params are the geometry, feeds and timeouts of a push.
type Params struct {
	ApproachOffset float64 // mm behind the object on X
	EdgeX          float64 // X of the plate edge the object is pushed to
	SettleRetreat  float64 // mm backed off the edge before the settle sweep
	AlignThreshold float64 // lateral error above which the align phase runs
	TraverseZ      float64
	PushZ          float64

	FeedRapid int
	FeedPush  int
	FeedZ     int
	FeedSweep int

	MoveTimeout   time.Duration
	SettleTimeout time.Duration
}

// Step is one move of a push followed by a motion sync.
type Step struct {
	Phase  Phase
	Feed   int
	Coords []motion.Coord
	Sync   time.Duration
}

// Command renders the move of the step.
func (s Step) Command() string { return motion.Command(s.Feed, s.Coords...) }

// Plan computes the moves that push o to the edge of bin.
func (p Params) Plan(o plate.Object, bin plate.Bin) []Step {
	approachX := math.Max(0, o.X-p.ApproachOffset)
	steps := []Step{
		{Approach, p.FeedRapid, []motion.Coord{motion.X(approachX), motion.Y(o.Y), motion.Z(p.TraverseZ)}, p.MoveTimeout},
		{Descend, p.FeedZ, []motion.Coord{motion.Z(p.PushZ)}, p.MoveTimeout},
	}
	if math.Abs(bin.EdgePosition-o.Y) > p.AlignThreshold {
		steps = append(steps, Step{Align, p.FeedPush, []motion.Coord{motion.Y(bin.EdgePosition)}, p.MoveTimeout})
	}
	retreat := math.Max(0, p.EdgeX-p.SettleRetreat)
	steps = append(steps,
		Step{EdgePush, p.FeedPush, []motion.Coord{motion.X(p.EdgeX)}, p.MoveTimeout},
		Step{Settle, p.FeedZ, []motion.Coord{motion.Z(p.TraverseZ)}, p.SettleTimeout},
		Step{Settle, p.FeedSweep, []motion.Coord{motion.X(retreat)}, p.SettleTimeout},
		Step{Settle, p.FeedZ, []motion.Coord{motion.Z(p.PushZ)}, p.SettleTimeout},
		Step{Settle, p.FeedSweep, []motion.Coord{motion.X(p.EdgeX)}, p.SettleTimeout},
		Step{Retract, p.FeedZ, []motion.Coord{motion.Z(p.TraverseZ)}, p.MoveTimeout},
	)
	return steps
}

// Result describes what a push did.
type Result struct {
	Object    plate.Object
	Bin       plate.Bin
	Completed []Phase
	Failed    *Phase
	Elapsed   time.Duration
}

// Mover is the motion surface a push needs.
type Mover interface {
	MoveAndWait(ctx context.Context, feed int, sync time.Duration, coords ...motion.Coord) error
}

// Sequencer executes pushes one at a time. It does not retry: a failed push
// is abandoned and the caller decides what to do next.
type Sequencer struct {
	mover  Mover
	params Params
	now    func() time.Time
}

// NewSequencer returns a sequencer that moves through m.
func NewSequencer(m Mover, params Params) *Sequencer {
	return &Sequencer{mover: m, params: params, now: time.Now}
}

// Params returns the push parameters in use.
func (s *Sequencer) Params() Params { return s.params }

// Push moves o to the edge of bin.
func (s *Sequencer) Push(ctx context.Context, o plate.Object, bin plate.Bin) (Result, error) {
	start := s.now()
	res := Result{Object: o, Bin: bin}
	monitoring.Logf("push %s -> bin %d (edge y=%.1f)", o, bin.Class, bin.EdgePosition)

	for _, step := range s.params.Plan(o, bin) {
		if err := s.mover.MoveAndWait(ctx, step.Feed, step.Sync, step.Coords...); err != nil {
			phase := step.Phase
			res.Failed = &phase
			res.Elapsed = s.now().Sub(start)
			monitoring.Logf("push P%d failed during %s: %v", o.ID, phase, err)
			return res, &PhaseError{Phase: phase, Err: err}
		}
		if n := len(res.Completed); n == 0 || res.Completed[n-1] != step.Phase {
			res.Completed = append(res.Completed, step.Phase)
		}
	}
	res.Elapsed = s.now().Sub(start)
	return res, nil
}

// PhaseError is returned by Push when a phase does not complete.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s during %s: %v", ErrPushFailed, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() []error { return []error{ErrPushFailed, e.Err} }

// PhaseOf reports the phase in which err occurred.
func PhaseOf(err error) (Phase, bool) {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase, true
	}
	return 0, false
}
