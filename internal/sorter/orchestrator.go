// Package sorter runs the scan, schedule and push loop that clears a plate.
package sorter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/platesort/internal/assign"
	"github.com/banshee-data/platesort/internal/camera"
	"github.com/banshee-data/platesort/internal/detector"
	"github.com/banshee-data/platesort/internal/monitoring"
	"github.com/banshee-data/platesort/internal/motion"
	"github.com/banshee-data/platesort/internal/plate"
	"github.com/banshee-data/platesort/internal/push"
	"github.com/banshee-data/platesort/internal/schedule"
	"github.com/banshee-data/platesort/internal/timeutil"
)

// ErrRoundLimit is returned when objects remain after the configured number
// of rounds. The head is parked first.
var ErrRoundLimit = errors.New("round limit reached")

// Pusher executes one push.
type Pusher interface {
	Push(ctx context.Context, o plate.Object, bin plate.Bin) (push.Result, error)
}

// Settings are the loop parameters.
type Settings struct {
	RescanEvery   int // pushes between re-scans; 0 only scans after a batch
	MaxRounds     int // 0 means unlimited
	CapturePose   motion.Pose
	ParkPose      motion.Pose
	FeedRapid     int
	FeedZ         int
	CaptureSync   time.Duration
	CaptureSettle time.Duration
	DrainQuiet    time.Duration
}

// Orchestrator owns one machine and runs sorting passes on it. Runs are
// strictly sequential; Run must not be called concurrently.
type Orchestrator struct {
	plate     *plate.Plate
	ctl       *motion.Controller
	pusher    Pusher
	camera    camera.FrameSource
	detector  detector.Detector
	assigner  assign.Assigner
	scheduler *schedule.Scheduler
	settings  Settings

	clock   timeutil.Clock
	journal Journal
	plotter Plotter
	newID   func() string

	mu     sync.RWMutex
	status Status
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithJournal records run history.
func WithJournal(j Journal) Option {
	return func(o *Orchestrator) {
		if j != nil {
			o.journal = j
		}
	}
}

// WithPlotter renders each round's plan.
func WithPlotter(p Plotter) Option {
	return func(o *Orchestrator) { o.plotter = p }
}

// WithClock replaces the wall clock.
func WithClock(c timeutil.Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithIDFunc replaces the run identifier generator.
func WithIDFunc(f func() string) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.newID = f
		}
	}
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Plate     *plate.Plate
	Motion    *motion.Controller
	Pusher    Pusher
	Camera    camera.FrameSource
	Detector  detector.Detector
	Assigner  assign.Assigner
	Scheduler *schedule.Scheduler
}

// New builds an orchestrator.
func New(deps Deps, settings Settings, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Plate == nil:
		return nil, errors.New("sorter: plate required")
	case deps.Motion == nil:
		return nil, errors.New("sorter: motion controller required")
	case deps.Pusher == nil:
		return nil, errors.New("sorter: pusher required")
	case deps.Camera == nil:
		return nil, errors.New("sorter: camera required")
	case deps.Detector == nil:
		return nil, errors.New("sorter: detector required")
	case deps.Assigner == nil:
		return nil, errors.New("sorter: assigner required")
	}
	if deps.Scheduler == nil {
		deps.Scheduler = schedule.New(deps.Plate)
	}
	o := &Orchestrator{
		plate:     deps.Plate,
		ctl:       deps.Motion,
		pusher:    deps.Pusher,
		camera:    deps.Camera,
		detector:  deps.Detector,
		assigner:  deps.Assigner,
		scheduler: deps.Scheduler,
		settings:  settings,
		clock:     timeutil.RealClock{},
		journal:   nopJournal{},
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.status.State = Idle
	return o, nil
}

// Plate returns the surface model in use.
func (o *Orchestrator) Plate() *plate.Plate { return o.plate }

// run carries the mutable state of one pass.
type run struct {
	sum     Summary
	mapping plate.Mapping
}

// Run clears the plate: home, scan, assign bins once, then alternate
// scheduling, pushing and re-scanning until a scan finds nothing assignable.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	r := &run{sum: Summary{RunID: o.newID(), StartedAt: o.clock.Now()}}
	o.begin(r.sum.RunID)
	monitoring.Logf("run %s started", r.sum.RunID)

	if err := o.journal.StartRun(ctx, RunInfo{
		ID:          r.sum.RunID,
		StartedAt:   r.sum.StartedAt,
		PlateWidth:  o.plate.Width,
		PlateHeight: o.plate.Height,
		Bins:        o.plate.BinEdges(),
		RescanEvery: o.settings.RescanEvery,
	}); err != nil {
		monitoring.Logf("journal: start run: %v", err)
	}

	err := o.run(ctx, r)

	r.sum.FinishedAt = o.clock.Now()
	r.sum.finalise()
	switch {
	case err == nil:
		r.sum.Outcome = OutcomeParked
	case errors.Is(err, ErrRoundLimit):
		r.sum.Outcome = OutcomeRoundLimit
	case errors.Is(err, assign.ErrCancelled), errors.Is(err, context.Canceled):
		r.sum.Outcome = OutcomeCancelled
	default:
		r.sum.Outcome = OutcomeAborted
	}
	if err != nil {
		r.sum.Error = err.Error()
		if r.sum.Outcome != OutcomeRoundLimit {
			o.setState(Aborted)
		}
	}
	o.finish(r.sum)

	if jerr := o.journal.FinishRun(context.WithoutCancel(ctx), r.sum); jerr != nil {
		monitoring.Logf("journal: finish run: %v", jerr)
	}
	monitoring.Logf("%s", r.sum)
	return r.sum, err
}

func (o *Orchestrator) run(ctx context.Context, r *run) error {
	if err := o.ctl.Home(ctx); err != nil {
		return err
	}
	o.setState(Homed)

	snap, err := o.scan(ctx, r, 0)
	if err != nil {
		return err
	}
	if len(snap.Detections) == 0 {
		monitoring.Logf("nothing detected on the plate")
		o.setState(Exhausted)
		return o.park(ctx)
	}

	mapping, err := o.assigner.Assign(ctx, snap.Labels(), o.plate.BinEdges())
	if err != nil {
		return fmt.Errorf("assign bins: %w", err)
	}
	r.mapping = mapping
	r.sum.Mapping = mapping
	o.update(func(s *Status) { s.Mapping = mapping })
	o.setState(BinsAssigned)
	monitoring.Logf("bin mapping: %v", mapping)

	for round := 1; ; round++ {
		o.setState(Scheduling)
		plan := o.plan(snap, r)
		if len(plan) == 0 {
			o.setState(Exhausted)
			monitoring.Logf("no assignable objects left")
			return o.park(ctx)
		}
		if o.settings.MaxRounds > 0 && round > o.settings.MaxRounds {
			monitoring.Logf("%d objects remain after %d rounds", len(plan), o.settings.MaxRounds)
			if err := o.park(ctx); err != nil {
				return err
			}
			return fmt.Errorf("%w: %d objects remain", ErrRoundLimit, len(plan))
		}
		r.sum.Rounds = round
		o.update(func(s *Status) { s.Round = round; s.Plan = plan })
		o.recordPlan(ctx, r, round, plan)

		o.setState(Sequencing)
		complete, err := o.sequence(ctx, r, round, plan)
		if err != nil {
			return err
		}
		if complete {
			o.setState(Exhausted)
			monitoring.Logf("batch complete, running completion scan")
		} else {
			o.setState(RescanDue)
		}

		if snap, err = o.scan(ctx, r, round); err != nil {
			return err
		}
	}
}

// plan converts a snapshot through the frozen mapping and schedules it.
func (o *Orchestrator) plan(snap plate.Snapshot, r *run) []schedule.Entry {
	objects, dropped := o.plate.Convert(snap, r.mapping)
	for _, d := range dropped {
		monitoring.Logf("dropped detection #%d %q: %s", d.Index, d.Label, d.Reason)
	}
	r.sum.Dropped += len(dropped)
	if len(objects) == 0 {
		return nil
	}
	plan := o.scheduler.Schedule(objects)
	logPlan(plan)
	return plan
}

func logPlan(plan []schedule.Entry) {
	monitoring.Logf("plan: %d objects", len(plan))
	for _, e := range plan {
		monitoring.Logf("  %2d. %s collisions=%d edge=%.1fmm manhattan=%.1fmm %s",
			e.Rank, e.Object, e.Collisions, e.EdgeDistance, e.Manhattan, e.Path)
	}
}

func (o *Orchestrator) recordPlan(ctx context.Context, r *run, round int, plan []schedule.Entry) {
	if err := o.journal.RecordPlan(ctx, r.sum.RunID, round, plan); err != nil {
		monitoring.Logf("journal: record plan: %v", err)
	}
	if o.plotter == nil {
		return
	}
	path, err := o.plotter.PlotPlan(r.sum.RunID, round, o.plate, plan)
	if err != nil {
		monitoring.Logf("plot plan: %v", err)
		return
	}
	monitoring.Logf("plan plot written to %s", path)
}

// sequence pushes the plan in order. It reports whether the whole batch ran
// without interruption. The re-scan cadence counts successful pushes across
// the whole run, not within the batch. A push failure or a due re-scan ends the batch early
// with a nil error; only cancellation is returned.
func (o *Orchestrator) sequence(ctx context.Context, r *run, round int, plan []schedule.Entry) (bool, error) {
	every := o.settings.RescanEvery
	for i, e := range plan {
		bin, _ := o.plate.Bin(e.Object.Class)
		res, err := o.pusher.Push(ctx, e.Object, bin)
		rec := PushRecord{
			RunID:   r.sum.RunID,
			Round:   round,
			Rank:    e.Rank,
			Object:  e.Object,
			Bin:     bin,
			OK:      err == nil,
			Elapsed: res.Elapsed,
			At:      o.clock.Now(),
		}
		if err != nil {
			rec.Error = err.Error()
			if phase, ok := push.PhaseOf(err); ok {
				rec.FailedPhase = phase.String()
			}
		}
		if jerr := o.journal.RecordPush(context.WithoutCancel(ctx), rec); jerr != nil {
			monitoring.Logf("journal: record push: %v", jerr)
		}

		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			r.sum.Failed++
			o.update(func(s *Status) { s.Failed++; s.LastError = err.Error() })
			monitoring.Logf("abandoning %s: %v; forcing re-scan", e.Object, err)
			return false, nil
		}

		r.sum.Pushed++
		r.sum.PushSeconds = append(r.sum.PushSeconds, res.Elapsed.Seconds())
		o.update(func(s *Status) { s.Pushed++ })

		if every > 0 && r.sum.Pushed%every == 0 && i < len(plan)-1 {
			monitoring.Logf("re-scan after %d pushes", r.sum.Pushed)
			return false, nil
		}
	}
	return true, nil
}

// scan moves to the capture pose, captures and detects.
func (o *Orchestrator) scan(ctx context.Context, r *run, round int) (plate.Snapshot, error) {
	if err := o.toCapturePose(ctx); err != nil {
		return plate.Snapshot{}, fmt.Errorf("capture pose: %w", err)
	}

	frame, err := o.camera.Capture(ctx)
	if err != nil {
		return plate.Snapshot{}, fmt.Errorf("capture: %w", err)
	}
	o.setState(Captured)

	snap, err := o.detector.Detect(ctx, frame)
	if err != nil {
		return plate.Snapshot{}, fmt.Errorf("detect: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return plate.Snapshot{}, fmt.Errorf("detect: %w", err)
	}
	o.setState(Detected)

	r.sum.Scans++
	o.update(func(s *Status) { s.Scans++ })
	monitoring.Logf("scan %d: %d detections in %dx%d crop", r.sum.Scans, len(snap.Detections), snap.CropWidth, snap.CropHeight)

	rec := ScanRecord{
		RunID:      r.sum.RunID,
		Seq:        r.sum.Scans,
		Round:      round,
		At:         o.clock.Now(),
		Source:     frame.Source,
		CropWidth:  snap.CropWidth,
		CropHeight: snap.CropHeight,
		Detections: len(snap.Detections),
	}
	if r.mapping != nil {
		objects, dropped := o.plate.Convert(snap, r.mapping)
		rec.Objects, rec.Dropped = len(objects), dropped
	}
	if err := o.journal.RecordScan(ctx, rec); err != nil {
		monitoring.Logf("journal: record scan: %v", err)
	}
	return snap, nil
}

// toCapturePose clears the head out of the camera's view and waits for the
// machine to settle.
func (o *Orchestrator) toCapturePose(ctx context.Context) error {
	s := o.settings
	o.ctl.Drain(s.DrainQuiet)
	if err := o.ctl.Absolute(ctx); err != nil {
		return err
	}
	if err := o.ctl.Move(ctx, s.FeedRapid, motion.X(s.CapturePose.X), motion.Y(s.CapturePose.Y), motion.Z(s.CapturePose.Z)); err != nil {
		return err
	}
	o.ctl.Drain(s.DrainQuiet)
	if err := o.ctl.Sync(ctx, s.CaptureSync); err != nil {
		return err
	}
	o.clock.Sleep(s.CaptureSettle)
	return nil
}

func (o *Orchestrator) park(ctx context.Context) error {
	if err := o.ctl.Park(ctx, o.settings.ParkPose, o.settings.FeedRapid, o.settings.FeedZ); err != nil {
		return err
	}
	o.setState(Parked)
	monitoring.Logf("parked")
	return nil
}

// Preview homes, scans and schedules once without pushing. A nil mapping is
// requested from the assigner.
func (o *Orchestrator) Preview(ctx context.Context) (plate.Snapshot, []schedule.Entry, []plate.Dropped, error) {
	r := &run{sum: Summary{RunID: o.newID(), StartedAt: o.clock.Now()}}
	o.begin(r.sum.RunID)
	if err := o.ctl.Home(ctx); err != nil {
		return plate.Snapshot{}, nil, nil, err
	}
	o.setState(Homed)
	snap, err := o.scan(ctx, r, 0)
	if err != nil {
		return plate.Snapshot{}, nil, nil, err
	}
	if len(snap.Detections) == 0 {
		return snap, nil, nil, nil
	}
	mapping, err := o.assigner.Assign(ctx, snap.Labels(), o.plate.BinEdges())
	if err != nil {
		return snap, nil, nil, fmt.Errorf("assign bins: %w", err)
	}
	objects, dropped := o.plate.Convert(snap, mapping)
	plan := o.scheduler.Schedule(objects)
	logPlan(plan)
	o.update(func(s *Status) { s.Mapping = mapping; s.Plan = plan })
	return snap, plan, dropped, nil
}
