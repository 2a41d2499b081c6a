package sorter

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/platesort/internal/plate"
)

// Summary is the account of a finished run.
type Summary struct {
	RunID      string        `json:"run_id"`
	Outcome    Outcome       `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Mapping    plate.Mapping `json:"mapping,omitempty"`
	Rounds     int           `json:"rounds"`
	Scans      int           `json:"scans"`
	Pushed     int           `json:"pushed"`
	Failed     int           `json:"failed"`
	Dropped    int           `json:"dropped"`

	PushSeconds       []float64 `json:"-"`
	MeanPushSeconds   float64   `json:"mean_push_seconds"`
	StdDevPushSeconds float64   `json:"stddev_push_seconds"`
}

// finalise computes the duration statistics of successful pushes.
func (s *Summary) finalise() {
	switch len(s.PushSeconds) {
	case 0:
		return
	case 1:
		s.MeanPushSeconds = s.PushSeconds[0]
	default:
		s.MeanPushSeconds, s.StdDevPushSeconds = stat.MeanStdDev(s.PushSeconds, nil)
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("run %s %s: %d rounds, %d scans, %d pushed, %d failed, %d dropped, push %.1fs ±%.1fs",
		s.RunID, s.Outcome, s.Rounds, s.Scans, s.Pushed, s.Failed, s.Dropped, s.MeanPushSeconds, s.StdDevPushSeconds)
}
