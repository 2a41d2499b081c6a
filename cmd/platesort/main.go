package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/platesort/internal/api"
	"github.com/banshee-data/platesort/internal/assign"
	"github.com/banshee-data/platesort/internal/config"
	"github.com/banshee-data/platesort/internal/db"
	"github.com/banshee-data/platesort/internal/motion"
	"github.com/banshee-data/platesort/internal/push"
	"github.com/banshee-data/platesort/internal/serialmux"
	"github.com/banshee-data/platesort/internal/sorter"
	"github.com/banshee-data/platesort/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to sorter config JSON (default "+config.DefaultConfigPath+" when present)")
	mode        = flag.String("mode", "sort", "One of: sort, detect, home, send, jog")
	gcode       = flag.String("gcode", "", "G-code for -mode=send; separate commands with ';'")
	jogMoves    = flag.String("jog", "", "Relative moves for -mode=jog, e.g. \"X10 Y-5\"")
	dryRun      = flag.Bool("dry-run", false, "Acknowledge every command without opening the serial port")
	port        = flag.String("port", "", "Serial port override")
	listen      = flag.String("listen", "", "HTTP listen address for status and debug routes (empty disables)")
	cameraDir   = flag.String("camera-dir", "", "Replay frames from an image file or directory")
	cameraCmd   = flag.String("camera-cmd", "", "Capture command writing one image to stdout")
	cameraVideo = flag.String("camera-video", "", "OpenCV capture pipeline or device index (gocv builds)")
	detectorCmd = flag.String("detector-cmd", "", "Detector command; the frame path is appended")
	detectorURL = flag.String("detector-url", "", "Detector inference endpoint accepting a POSTed frame")
	fixtures    = flag.String("fixtures", "", "Replay detection snapshots from a JSON file or directory")
	mappingPath = flag.String("mapping", "", "Static label to bin mapping JSON (default: ask on the terminal)")
	journalPath = flag.String("journal", "", "Run journal sqlite path override; \"off\" disables")
	plotDir     = flag.String("plot-dir", "", "Directory for per-round plan plots override")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		fs := flag.NewFlagSet("migrate", flag.ExitOnError)
		path := fs.String("journal", "", "Run journal sqlite path")
		cfgPath := fs.String("config", "", "Path to sorter config JSON")
		fs.Parse(os.Args[2:])
		cfg, err := loadConfig(*cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		dbPath := cfg.GetJournalPath()
		if *path != "" {
			dbPath = *path
		}
		if err := db.RunMigrateCommand(os.Stdout, fs.Args(), dbPath); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	applyOverrides(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, release, err := openTransport(cfg)
	if err != nil {
		log.Fatalf("failed to open motion controller: %v", err)
	}
	defer release()

	var wg sync.WaitGroup
	// run the monitor routine to manage IO on the serial port
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Monitor(monitorCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()
	defer func() {
		stopMonitor()
		wg.Wait()
	}()

	ctl := motion.NewController(m, cfg.MotionTimeouts())

	switch *mode {
	case "home":
		err = ctl.Home(ctx)
	case "send":
		err = sendGCode(ctx, ctl, *gcode)
	case "jog":
		var moves []motion.Coord
		if moves, err = parseJog(*jogMoves); err == nil {
			err = jog(ctx, ctl, moves, cfg.GetFeedRapid(), cfg.GetFeedZ(), cfg.GetMoveTimeout())
		}
	case "sort", "detect":
		err = runSorter(ctx, cfg, m, ctl, *mode == "detect")
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		stopMonitor()
		wg.Wait()
		log.Fatalf("%s: %v", *mode, err)
	}
}

func loadConfig(path string) (*config.SorterConfig, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err != nil {
			return config.EmptySorterConfig(), nil
		}
		path = config.DefaultConfigPath
	}
	return config.LoadSorterConfig(path)
}

func applyOverrides(cfg *config.SorterConfig) {
	if *port != "" {
		cfg.SerialPort = port
	}
	if *journalPath != "" {
		cfg.JournalPath = journalPath
	}
	if *plotDir != "" {
		cfg.PlotDir = plotDir
	}
}

// openTransport connects to the controller. The returned func closes the
// mux and releases the port lock.
func openTransport(cfg *config.SorterConfig) (serialmux.SerialMuxInterface, func(), error) {
	if *dryRun {
		log.Print("dry run: commands are acknowledged without hardware")
		m := serialmux.NewDisabledSerialMux()
		return m, func() { m.Close() }, nil
	}
	path := cfg.GetSerialPort()
	lock, err := serialmux.LockPort(path, "")
	if err != nil {
		return nil, nil, err
	}
	m, err := serialmux.NewRealSerialMux(path, cfg.GetSerialOptions(), cfg.GetConnectSettle())
	if err != nil {
		lock.Unlock()
		return nil, nil, err
	}
	log.Printf("connected to %s", path)
	return m, func() {
		m.Close()
		if err := lock.Unlock(); err != nil {
			log.Printf("release port lock: %v", err)
		}
	}, nil
}

// sendGCode runs each ';' separated command in turn, stopping at the first
// failure.
func sendGCode(ctx context.Context, ctl *motion.Controller, script string) error {
	var sent int
	for _, cmd := range strings.Split(script, ";") {
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			continue
		}
		if err := ctl.Exec(ctx, cmd, 0); err != nil {
			return err
		}
		sent++
	}
	if sent == 0 {
		return errors.New("no G-code given, use -gcode")
	}
	return nil
}

// parseJog reads space separated relative moves such as "X10 Y-2.5".
func parseJog(spec string) ([]motion.Coord, error) {
	fields := strings.Fields(spec)
	if len(fields) == 0 {
		return nil, errors.New("no moves given, use -jog")
	}
	moves := make([]motion.Coord, 0, len(fields))
	for _, f := range fields {
		axis := strings.ToUpper(f[:1])[0]
		if axis != 'X' && axis != 'Y' && axis != 'Z' {
			return nil, fmt.Errorf("jog %q: unknown axis", f)
		}
		v, err := strconv.ParseFloat(f[1:], 64)
		if err != nil {
			return nil, fmt.Errorf("jog %q: %w", f, err)
		}
		moves = append(moves, motion.Coord{Axis: axis, Value: v})
	}
	return moves, nil
}

// jog makes each relative move in turn, then waits for motion to finish.
// Z moves use the Z feed.
func jog(ctx context.Context, ctl *motion.Controller, moves []motion.Coord, feedXY, feedZ int, sync time.Duration) error {
	for _, c := range moves {
		feed := feedXY
		if c.Axis == 'Z' {
			feed = feedZ
		}
		if err := ctl.Jog(ctx, feed, c); err != nil {
			return err
		}
	}
	return ctl.Sync(ctx, sync)
}

func runSorter(ctx context.Context, cfg *config.SorterConfig, m serialmux.SerialMuxInterface, ctl *motion.Controller, preview bool) error {
	p, err := cfg.Plate()
	if err != nil {
		return err
	}
	sched, err := buildScheduler(cfg, p)
	if err != nil {
		return err
	}
	cam, closeCam, err := buildCamera()
	if err != nil {
		return err
	}
	defer closeCam()
	det, err := buildDetector()
	if err != nil {
		return err
	}
	asg, err := buildAssigner()
	if err != nil {
		return err
	}

	var opts []sorter.Option
	var journal *db.DB
	if path := cfg.GetJournalPath(); path != "off" && !preview {
		journal, err = db.NewDB(path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer journal.Close()
		opts = append(opts, sorter.WithJournal(journal))
	}
	plotter, err := buildPlotter(cfg)
	if err != nil {
		return err
	}
	if plotter != nil {
		opts = append(opts, sorter.WithPlotter(plotter))
	}

	orch, err := sorter.New(sorter.Deps{
		Plate:     p,
		Motion:    ctl,
		Pusher:    push.NewSequencer(ctl, cfg.PushParams()),
		Camera:    cam,
		Detector:  det,
		Assigner:  asg,
		Scheduler: sched,
	}, settingsFrom(cfg), opts...)
	if err != nil {
		return err
	}

	if *listen != "" {
		srv := startHTTP(orch, journal, m)
		defer shutdownHTTP(srv)
	}

	if preview {
		snap, plan, dropped, err := orch.Preview(ctx)
		if err != nil {
			return err
		}
		printPreview(os.Stdout, p, snap, plan, dropped)
		return nil
	}

	sum, err := orch.Run(ctx)
	fmt.Println(sum.String())
	if errors.Is(err, assign.ErrCancelled) {
		log.Print("bin assignment cancelled, nothing was moved")
		return nil
	}
	return err
}

func startHTTP(orch *sorter.Orchestrator, journal *db.DB, m serialmux.SerialMuxInterface) *http.Server {
	var history api.History
	if journal != nil {
		history = journal
	}
	mux := api.NewServer(orch, history, m).ServeMux()
	m.AttachAdminRoutes(mux, orch.CheckIdle)
	if journal != nil {
		journal.AttachAdminRoutes(mux)
	}
	debug := tsweb.Debugger(mux)
	debug.KV("platesort", version.String())

	server := &http.Server{
		Addr:              *listen,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()
	log.Printf("serving status on %s", *listen)
	return server
}

func shutdownHTTP(server *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
}
