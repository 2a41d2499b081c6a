package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/banshee-data/platesort/internal/assign"
	"github.com/banshee-data/platesort/internal/camera"
	"github.com/banshee-data/platesort/internal/config"
	"github.com/banshee-data/platesort/internal/detector"
	"github.com/banshee-data/platesort/internal/httputil"
	"github.com/banshee-data/platesort/internal/motion"
	"github.com/banshee-data/platesort/internal/plate"
	"github.com/banshee-data/platesort/internal/planplot"
	"github.com/banshee-data/platesort/internal/schedule"
	"github.com/banshee-data/platesort/internal/sorter"
)

// settingsFrom derives the orchestrator loop settings. The head captures from
// the far corner of the plate so it stays out of frame.
func settingsFrom(cfg *config.SorterConfig) sorter.Settings {
	return sorter.Settings{
		RescanEvery:   cfg.GetRescanEvery(),
		MaxRounds:     cfg.GetMaxRounds(),
		CapturePose:   motion.Pose{X: 0, Y: cfg.GetPlateHeight(), Z: cfg.GetTraverseZ()},
		ParkPose:      motion.Pose{X: 0, Y: 0, Z: cfg.GetParkZ()},
		FeedRapid:     cfg.GetFeedRapid(),
		FeedZ:         cfg.GetFeedZ(),
		CaptureSync:   cfg.GetSettleTimeout(),
		CaptureSettle: cfg.GetCaptureSettle(),
		DrainQuiet:    cfg.GetDrainQuiet(),
	}
}

func buildScheduler(cfg *config.SorterConfig, p *plate.Plate) (*schedule.Scheduler, error) {
	rank, err := schedule.RankByName(cfg.GetRanking())
	if err != nil {
		return nil, err
	}
	return schedule.New(p, schedule.WithMargin(cfg.GetCollisionMargin()), schedule.WithRank(rank)), nil
}

// buildCamera picks the frame source from the flags. The returned func
// releases it.
func buildCamera() (camera.FrameSource, func(), error) {
	nop := func() {}
	switch {
	case *cameraDir != "":
		src, err := camera.NewDirSource(*cameraDir)
		return src, nop, err
	case *cameraVideo != "":
		return openVideo(*cameraVideo)
	case *cameraCmd != "":
		return camera.NewCommandSource(strings.Fields(*cameraCmd)), nop, nil
	default:
		return camera.NewCommandSource(camera.DefaultCaptureCommand), nop, nil
	}
}

func buildDetector() (detector.Detector, error) {
	switch {
	case *fixtures != "":
		return detector.LoadFixtures(*fixtures)
	case *detectorURL != "":
		return detector.NewHTTPDetector(*detectorURL, httputil.NewStandardClient(2*time.Minute))
	case *detectorCmd != "":
		return detector.NewCommandDetector(strings.Fields(*detectorCmd))
	default:
		return nil, fmt.Errorf("no detector configured, use -detector-cmd, -detector-url or -fixtures")
	}
}

func buildAssigner() (assign.Assigner, error) {
	if *mappingPath != "" {
		return assign.LoadStatic(*mappingPath)
	}
	if fd := os.Stdin.Fd(); !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		log.Print("stdin is not a terminal, bin assignments are read from piped input")
	}
	return assign.NewPrompt(os.Stdin, os.Stdout), nil
}

func buildPlotter(cfg *config.SorterConfig) (sorter.Plotter, error) {
	dir := cfg.GetPlotDir()
	if dir == "" {
		return nil, nil
	}
	return planplot.New(dir)
}

func printPreview(w io.Writer, p *plate.Plate, snap plate.Snapshot, plan []schedule.Entry, dropped []plate.Dropped) {
	fmt.Fprintf(w, "%d detections in a %dx%d crop\n", len(snap.Detections), snap.CropWidth, snap.CropHeight)
	for _, d := range dropped {
		fmt.Fprintf(w, "dropped #%d %q: %s\n", d.Index, d.Label, d.Reason)
	}
	if len(plan) == 0 {
		fmt.Fprintln(w, "nothing to sort")
		return
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Rank", "Object", "Label", "Bin", "Edge", "Hits", "Path"})
	for _, e := range plan {
		o := e.Object
		bin, _ := p.Bin(o.Class)
		tw.AppendRow(table.Row{
			e.Rank,
			fmt.Sprintf("(%.2f, %.2f)", o.X, o.Y),
			o.Label,
			fmt.Sprintf("%d @ %.0f", o.Class, bin.EdgePosition),
			fmt.Sprintf("%.2f", e.EdgeDistance),
			e.Collisions,
			e.Path,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	fmt.Fprintln(w, tw.Render())
}
