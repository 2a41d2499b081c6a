package sorter

import (
	"context"
	"time"

	"github.com/banshee-data/platesort/internal/plate"
	"github.com/banshee-data/platesort/internal/schedule"
)

// RunInfo describes a run as it starts.
type RunInfo struct {
	ID          string
	StartedAt   time.Time
	PlateWidth  float64
	PlateHeight float64
	Bins        map[int]float64
	RescanEvery int
}

// ScanRecord is one capture and detection.
type ScanRecord struct {
	RunID      string
	Seq        int // 1-based scan number within the run
	Round      int // round the scan precedes; 0 for the initial scan
	At         time.Time
	Source     string
	CropWidth  int
	CropHeight int
	Detections int
	Objects    int
	Dropped    []plate.Dropped
}

// PushRecord is the outcome of one push.
type PushRecord struct {
	RunID       string
	Round       int
	Rank        int
	Object      plate.Object
	Bin         plate.Bin
	OK          bool
	FailedPhase string
	Error       string
	Elapsed     time.Duration
	At          time.Time
}

// Journal persists run history. Journal errors are logged and never stop a
// run.
type Journal interface {
	StartRun(ctx context.Context, run RunInfo) error
	RecordScan(ctx context.Context, scan ScanRecord) error
	RecordPlan(ctx context.Context, runID string, round int, plan []schedule.Entry) error
	RecordPush(ctx context.Context, rec PushRecord) error
	FinishRun(ctx context.Context, summary Summary) error
}

// Plotter renders a scheduled plan and returns the written path.
type Plotter interface {
	PlotPlan(runID string, round int, p *plate.Plate, plan []schedule.Entry) (string, error)
}

type nopJournal struct{}

func (nopJournal) StartRun(context.Context, RunInfo) error                         { return nil }
func (nopJournal) RecordScan(context.Context, ScanRecord) error                    { return nil }
func (nopJournal) RecordPlan(context.Context, string, int, []schedule.Entry) error { return nil }
func (nopJournal) RecordPush(context.Context, PushRecord) error                    { return nil }
func (nopJournal) FinishRun(context.Context, Summary) error                        { return nil }
