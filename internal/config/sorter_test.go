package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestEmptySorterConfig_Defaults(t *testing.T) {
	cfg := EmptySorterConfig()

	assert.Equal(t, 320.0, cfg.GetPlateWidth())
	assert.Equal(t, 320.0, cfg.GetPlateHeight())
	assert.Equal(t, map[int]float64{1: 270, 2: 200, 3: 120, 4: 50}, cfg.GetBins())
	assert.Equal(t, 320.0, cfg.GetEdgeX())
	assert.Equal(t, 20.0, cfg.GetCollisionMargin())
	assert.Equal(t, "edge_first", cfg.GetRanking())
	assert.Equal(t, 3, cfg.GetRescanEvery())
	assert.Equal(t, 5.0, cfg.GetApproachOffset())
	assert.Equal(t, 10.0, cfg.GetSettleRetreat())
	assert.Equal(t, 1.0, cfg.GetAlignThreshold())
	assert.Equal(t, 15.0, cfg.GetTraverseZ())
	assert.Equal(t, 0.0, cfg.GetPushZ())
	assert.Equal(t, 75.0, cfg.GetParkZ())
	assert.Equal(t, 6000, cfg.GetFeedRapid())
	assert.Equal(t, 1500, cfg.GetFeedZ())
	assert.Equal(t, 60*time.Second, cfg.GetHomeTimeout())
	assert.Equal(t, 15*time.Second, cfg.GetMoveTimeout())
	assert.Equal(t, 60*time.Second, cfg.GetSettleTimeout())
	assert.Equal(t, 30*time.Second, cfg.GetParkTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.GetCaptureSettle())
	assert.Equal(t, 2*time.Second, cfg.GetConnectSettle())
	assert.Equal(t, "/dev/ttyACM0", cfg.GetSerialPort())
	assert.Equal(t, "platesort.db", cfg.GetJournalPath())
	assert.Equal(t, "", cfg.GetPlotDir())
}

func TestGetBins_ReturnsCopy(t *testing.T) {
	cfg := EmptySorterConfig()
	bins := cfg.GetBins()
	bins[1] = 0
	assert.Equal(t, 270.0, cfg.GetBins()[1])
}

func TestDefaultSorterConfig_RoundTripsThroughLoad(t *testing.T) {
	data, err := json.MarshalIndent(DefaultSorterConfig(), "", "  ")
	require.NoError(t, err)

	cfg, err := LoadSorterConfig(writeConfig(t, "defaults.json", string(data)))
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.GetHomeTimeout())
	assert.Equal(t, 115200, cfg.GetSerialOptions().BaudRate)
	assert.Equal(t, DefaultBins(), cfg.GetBins())
}

func TestLoadSorterConfig_Partial(t *testing.T) {
	path := writeConfig(t, "rig.json", `{
  "plate_width_mm": 400,
  "bins": {"1": 300, "2": 100},
  "edge_x_mm": 395,
  "rescan_every": 0,
  "move_timeout": "5s",
  "serial_port": "/dev/ttyUSB0"
}`)
	cfg, err := LoadSorterConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 400.0, cfg.GetPlateWidth())
	assert.Equal(t, 320.0, cfg.GetPlateHeight())
	assert.Equal(t, map[int]float64{1: 300, 2: 100}, cfg.GetBins())
	assert.Equal(t, 395.0, cfg.GetEdgeX())
	assert.Equal(t, 0, cfg.GetRescanEvery())
	assert.Equal(t, 5*time.Second, cfg.GetMoveTimeout())
	assert.Equal(t, "/dev/ttyUSB0", cfg.GetSerialPort())

	p, err := cfg.Plate()
	require.NoError(t, err)
	assert.Equal(t, 400.0, p.Width)
	assert.Len(t, p.Bins, 2)
}

func TestLoadSorterConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"extension", "cfg.yaml", `{}`, ".json extension"},
		{"malformed", "cfg.json", `{`, "parse config JSON"},
		{"plate width", "cfg.json", `{"plate_width_mm": 0}`, "plate_width_mm"},
		{"empty bins", "cfg.json", `{"bins": {}}`, "bins must not be empty"},
		{"bin off plate", "cfg.json", `{"bins": {"1": 400}}`, "outside plate"},
		{"edge beyond plate", "cfg.json", `{"edge_x_mm": 330}`, "edge_x_mm"},
		{"ranking", "cfg.json", `{"ranking": "random"}`, "unknown ranking"},
		{"rescan", "cfg.json", `{"rescan_every": -1}`, "rescan_every"},
		{"feed", "cfg.json", `{"feed_push": 0}`, "feed_push"},
		{"duration", "cfg.json", `{"home_timeout": "forever"}`, "home_timeout"},
		{"serial", "cfg.json", `{"serial": {"parity": "Q"}}`, "serial"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadSorterConfig(writeConfig(t, tc.file, tc.body))
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tc.want), "error %q should mention %q", err, tc.want)
		})
	}
}

func TestLoadSorterConfig_MissingFile(t *testing.T) {
	_, err := LoadSorterConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadSorterConfig_RepositoryDefaults(t *testing.T) {
	cfg, err := LoadSorterConfig(filepath.Join("..", "..", DefaultConfigPath))
	require.NoError(t, err)
	assert.Equal(t, EmptySorterConfig().GetBins(), cfg.GetBins())
}

func TestPushParams_FromConfig(t *testing.T) {
	cfg := EmptySorterConfig()
	cfg.EdgeXMM = ptrFloat64(315)

	p := cfg.PushParams()
	assert.Equal(t, 315.0, p.EdgeX)
	assert.Equal(t, 5.0, p.ApproachOffset)
	assert.Equal(t, 1500, p.FeedZ)
	assert.Equal(t, 60*time.Second, p.SettleTimeout)

	mt := cfg.MotionTimeouts()
	assert.Equal(t, 60*time.Second, mt.Home)
	assert.Equal(t, 30*time.Second, mt.Park)
	assert.Equal(t, 50, cfg.GetMaxRounds())
}
