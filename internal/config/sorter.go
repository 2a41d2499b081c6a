package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/platesort/internal/motion"
	"github.com/banshee-data/platesort/internal/plate"
	"github.com/banshee-data/platesort/internal/push"
	"github.com/banshee-data/platesort/internal/serialmux"
)

// DefaultConfigPath is the path the CLI loads when -config is not given and
// the file exists.
const DefaultConfigPath = "config/platesort.json"

// SorterConfig is the persisted machine configuration. Every field is
// optional; the Get* accessors supply the defaults for the reference rig
// (320x320mm plate, four bins on the right edge).
type SorterConfig struct {
	// Plate geometry
	PlateWidthMM  *float64        `json:"plate_width_mm,omitempty"`
	PlateHeightMM *float64        `json:"plate_height_mm,omitempty"`
	Bins          map[int]float64 `json:"bins,omitempty"` // class -> edge position (mm)
	EdgeXMM       *float64        `json:"edge_x_mm,omitempty"`

	// Scheduling
	CollisionMarginMM *float64 `json:"collision_margin_mm,omitempty"`
	Ranking           *string  `json:"ranking,omitempty"` // "edge_first" or "collision_first"
	RescanEvery       *int     `json:"rescan_every,omitempty"`
	MaxRounds         *int     `json:"max_rounds,omitempty"` // 0 means unlimited

	// Push geometry
	ApproachOffsetMM *float64 `json:"approach_offset_mm,omitempty"`
	SettleRetreatMM  *float64 `json:"settle_retreat_mm,omitempty"`
	AlignThresholdMM *float64 `json:"align_threshold_mm,omitempty"`
	TraverseZMM      *float64 `json:"traverse_z_mm,omitempty"`
	PushZMM          *float64 `json:"push_z_mm,omitempty"`
	ParkZMM          *float64 `json:"park_z_mm,omitempty"`

	// Feed rates (mm/min)
	FeedRapid *int `json:"feed_rapid,omitempty"`
	FeedPush  *int `json:"feed_push,omitempty"`
	FeedZ     *int `json:"feed_z,omitempty"`
	FeedSweep *int `json:"feed_sweep,omitempty"`

	// Timeouts and delays, duration strings like "15s"
	HomeTimeout   *string `json:"home_timeout,omitempty"`
	MoveTimeout   *string `json:"move_timeout,omitempty"`
	SettleTimeout *string `json:"settle_timeout,omitempty"`
	ParkTimeout   *string `json:"park_timeout,omitempty"`
	CaptureSettle *string `json:"capture_settle,omitempty"`
	ConnectSettle *string `json:"connect_settle,omitempty"`
	DrainQuiet    *string `json:"drain_quiet,omitempty"`

	// Transport
	SerialPort *string                `json:"serial_port,omitempty"`
	Serial     *serialmux.PortOptions `json:"serial,omitempty"`

	// Outputs
	JournalPath *string `json:"journal_path,omitempty"`
	PlotDir     *string `json:"plot_dir,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultBins are the bin edge positions of the reference rig.
func DefaultBins() map[int]float64 {
	return map[int]float64{1: 270, 2: 200, 3: 120, 4: 50}
}

// EmptySorterConfig returns a SorterConfig with all fields unset.
func EmptySorterConfig() *SorterConfig {
	return &SorterConfig{}
}

// DefaultSorterConfig returns a config with every field populated from the
// defaults, suitable for writing out as a starting point.
func DefaultSorterConfig() *SorterConfig {
	c := EmptySorterConfig()
	return &SorterConfig{
		PlateWidthMM:      ptrFloat64(c.GetPlateWidth()),
		PlateHeightMM:     ptrFloat64(c.GetPlateHeight()),
		Bins:              DefaultBins(),
		EdgeXMM:           ptrFloat64(c.GetEdgeX()),
		CollisionMarginMM: ptrFloat64(c.GetCollisionMargin()),
		Ranking:           ptrString(c.GetRanking()),
		RescanEvery:       ptrInt(c.GetRescanEvery()),
		MaxRounds:         ptrInt(c.GetMaxRounds()),
		ApproachOffsetMM:  ptrFloat64(c.GetApproachOffset()),
		SettleRetreatMM:   ptrFloat64(c.GetSettleRetreat()),
		AlignThresholdMM:  ptrFloat64(c.GetAlignThreshold()),
		TraverseZMM:       ptrFloat64(c.GetTraverseZ()),
		PushZMM:           ptrFloat64(c.GetPushZ()),
		ParkZMM:           ptrFloat64(c.GetParkZ()),
		FeedRapid:         ptrInt(c.GetFeedRapid()),
		FeedPush:          ptrInt(c.GetFeedPush()),
		FeedZ:             ptrInt(c.GetFeedZ()),
		FeedSweep:         ptrInt(c.GetFeedSweep()),
		HomeTimeout:       ptrString(c.GetHomeTimeout().String()),
		MoveTimeout:       ptrString(c.GetMoveTimeout().String()),
		SettleTimeout:     ptrString(c.GetSettleTimeout().String()),
		ParkTimeout:       ptrString(c.GetParkTimeout().String()),
		CaptureSettle:     ptrString(c.GetCaptureSettle().String()),
		ConnectSettle:     ptrString(c.GetConnectSettle().String()),
		DrainQuiet:        ptrString(c.GetDrainQuiet().String()),
		SerialPort:        ptrString(c.GetSerialPort()),
		Serial:            &serialmux.PortOptions{BaudRate: serialmux.DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"},
		JournalPath:       ptrString(c.GetJournalPath()),
		PlotDir:           ptrString(c.GetPlotDir()),
	}
}

// LoadSorterConfig loads a SorterConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file fall back to their defaults.
func LoadSorterConfig(path string) (*SorterConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySorterConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *SorterConfig) Validate() error {
	if c.PlateWidthMM != nil && *c.PlateWidthMM <= 0 {
		return fmt.Errorf("plate_width_mm must be positive, got %f", *c.PlateWidthMM)
	}
	if c.PlateHeightMM != nil && *c.PlateHeightMM <= 0 {
		return fmt.Errorf("plate_height_mm must be positive, got %f", *c.PlateHeightMM)
	}
	if c.Bins != nil && len(c.Bins) == 0 {
		return fmt.Errorf("bins must not be empty")
	}
	height := c.GetPlateHeight()
	for class, pos := range c.Bins {
		if pos < 0 || pos > height {
			return fmt.Errorf("bin %d edge position %.1f outside plate [0, %.1f]", class, pos, height)
		}
	}
	if c.EdgeXMM != nil && (*c.EdgeXMM <= 0 || *c.EdgeXMM > c.GetPlateWidth()) {
		return fmt.Errorf("edge_x_mm must be in (0, plate_width_mm], got %f", *c.EdgeXMM)
	}
	if c.CollisionMarginMM != nil && *c.CollisionMarginMM < 0 {
		return fmt.Errorf("collision_margin_mm must be non-negative, got %f", *c.CollisionMarginMM)
	}
	if c.Ranking != nil {
		switch *c.Ranking {
		case "edge_first", "collision_first":
		default:
			return fmt.Errorf("unknown ranking %q: expected edge_first or collision_first", *c.Ranking)
		}
	}
	if c.RescanEvery != nil && *c.RescanEvery < 0 {
		return fmt.Errorf("rescan_every must be non-negative, got %d", *c.RescanEvery)
	}
	if c.MaxRounds != nil && *c.MaxRounds < 0 {
		return fmt.Errorf("max_rounds must be non-negative, got %d", *c.MaxRounds)
	}
	for _, f := range []struct {
		name string
		v    *int
	}{{"feed_rapid", c.FeedRapid}, {"feed_push", c.FeedPush}, {"feed_z", c.FeedZ}, {"feed_sweep", c.FeedSweep}} {
		if f.v != nil && *f.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", f.name, *f.v)
		}
	}
	for _, d := range []struct {
		name string
		v    *string
	}{
		{"home_timeout", c.HomeTimeout},
		{"move_timeout", c.MoveTimeout},
		{"settle_timeout", c.SettleTimeout},
		{"park_timeout", c.ParkTimeout},
		{"capture_settle", c.CaptureSettle},
		{"connect_settle", c.ConnectSettle},
		{"drain_quiet", c.DrainQuiet},
	} {
		if d.v == nil || *d.v == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
		if parsed < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", d.name, *d.v)
		}
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalise(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	return nil
}

// Plate builds the plate geometry.
func (c *SorterConfig) Plate() (*plate.Plate, error) {
	return plate.New(c.GetPlateWidth(), c.GetPlateHeight(), c.GetBins())
}

func (c *SorterConfig) GetPlateWidth() float64 {
	if c.PlateWidthMM == nil {
		return 320
	}
	return *c.PlateWidthMM
}

func (c *SorterConfig) GetPlateHeight() float64 {
	if c.PlateHeightMM == nil {
		return 320
	}
	return *c.PlateHeightMM
}

// GetBins returns a copy of the bin edge positions.
func (c *SorterConfig) GetBins() map[int]float64 {
	src := c.Bins
	if src == nil {
		src = DefaultBins()
	}
	out := make(map[int]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// GetEdgeX returns the X the edge push drives to; defaults to the plate width.
func (c *SorterConfig) GetEdgeX() float64 {
	if c.EdgeXMM == nil {
		return c.GetPlateWidth()
	}
	return *c.EdgeXMM
}

func (c *SorterConfig) GetCollisionMargin() float64 {
	if c.CollisionMarginMM == nil {
		return plate.DefaultMargin
	}
	return *c.CollisionMarginMM
}

func (c *SorterConfig) GetRanking() string {
	if c.Ranking == nil {
		return "edge_first"
	}
	return *c.Ranking
}

// GetRescanEvery returns the number of successful pushes between re-scans;
// zero disables periodic re-scans.
func (c *SorterConfig) GetRescanEvery() int {
	if c.RescanEvery == nil {
		return 3
	}
	return *c.RescanEvery
}

// GetMaxRounds bounds the number of detect/schedule/push rounds in one run.
func (c *SorterConfig) GetMaxRounds() int { return intOr(c.MaxRounds, 50) }

func (c *SorterConfig) GetApproachOffset() float64 {
	if c.ApproachOffsetMM == nil {
		return 5
	}
	return *c.ApproachOffsetMM
}

func (c *SorterConfig) GetSettleRetreat() float64 {
	if c.SettleRetreatMM == nil {
		return 10
	}
	return *c.SettleRetreatMM
}

func (c *SorterConfig) GetAlignThreshold() float64 {
	if c.AlignThresholdMM == nil {
		return 1
	}
	return *c.AlignThresholdMM
}

func (c *SorterConfig) GetTraverseZ() float64 {
	if c.TraverseZMM == nil {
		return 15
	}
	return *c.TraverseZMM
}

func (c *SorterConfig) GetPushZ() float64 {
	if c.PushZMM == nil {
		return 0
	}
	return *c.PushZMM
}

func (c *SorterConfig) GetParkZ() float64 {
	if c.ParkZMM == nil {
		return 75
	}
	return *c.ParkZMM
}

func (c *SorterConfig) GetFeedRapid() int { return intOr(c.FeedRapid, 6000) }
func (c *SorterConfig) GetFeedPush() int  { return intOr(c.FeedPush, 6000) }
func (c *SorterConfig) GetFeedZ() int     { return intOr(c.FeedZ, 1500) }
func (c *SorterConfig) GetFeedSweep() int { return intOr(c.FeedSweep, 6000) }

func (c *SorterConfig) GetHomeTimeout() time.Duration {
	return durationOr(c.HomeTimeout, 60*time.Second)
}

func (c *SorterConfig) GetMoveTimeout() time.Duration {
	return durationOr(c.MoveTimeout, 15*time.Second)
}

// GetSettleTimeout bounds the long synchronisation waits: the capture pose
// and the settle sweep.
func (c *SorterConfig) GetSettleTimeout() time.Duration {
	return durationOr(c.SettleTimeout, 60*time.Second)
}

func (c *SorterConfig) GetParkTimeout() time.Duration {
	return durationOr(c.ParkTimeout, 30*time.Second)
}

func (c *SorterConfig) GetCaptureSettle() time.Duration {
	return durationOr(c.CaptureSettle, 500*time.Millisecond)
}

func (c *SorterConfig) GetConnectSettle() time.Duration {
	return durationOr(c.ConnectSettle, 2*time.Second)
}

func (c *SorterConfig) GetDrainQuiet() time.Duration {
	return durationOr(c.DrainQuiet, 100*time.Millisecond)
}

func (c *SorterConfig) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return "/dev/ttyACM0"
	}
	return *c.SerialPort
}

func (c *SorterConfig) GetSerialOptions() serialmux.PortOptions {
	if c.Serial == nil {
		return serialmux.PortOptions{}
	}
	return *c.Serial
}

func (c *SorterConfig) GetJournalPath() string {
	if c.JournalPath == nil || *c.JournalPath == "" {
		return "platesort.db"
	}
	return *c.JournalPath
}

// GetPlotDir returns the plan plot directory; empty disables plotting.
func (c *SorterConfig) GetPlotDir() string {
	if c.PlotDir == nil {
		return ""
	}
	return *c.PlotDir
}

// PushParams assembles the push sequencer parameters.
func (c *SorterConfig) PushParams() push.Params {
	return push.Params{
		ApproachOffset: c.GetApproachOffset(),
		EdgeX:          c.GetEdgeX(),
		SettleRetreat:  c.GetSettleRetreat(),
		AlignThreshold: c.GetAlignThreshold(),
		TraverseZ:      c.GetTraverseZ(),
		PushZ:          c.GetPushZ(),
		FeedRapid:      c.GetFeedRapid(),
		FeedPush:       c.GetFeedPush(),
		FeedZ:          c.GetFeedZ(),
		FeedSweep:      c.GetFeedSweep(),
		MoveTimeout:    c.GetMoveTimeout(),
		SettleTimeout:  c.GetSettleTimeout(),
	}
}

// MotionTimeouts assembles the controller timeouts.
func (c *SorterConfig) MotionTimeouts() motion.Timeouts {
	return motion.Timeouts{
		Ack:  c.GetMoveTimeout(),
		Home: c.GetHomeTimeout(),
		Park: c.GetParkTimeout(),
	}
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}
