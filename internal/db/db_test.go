package db

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/platesort/internal/plate"
	"github.com/banshee-data/platesort/internal/schedule"
	"github.com/banshee-data/platesort/internal/sorter"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var started = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func startRun(t *testing.T, db *DB, id string, at time.Time) {
	t.Helper()
	require.NoError(t, db.StartRun(context.Background(), sorter.RunInfo{
		ID:          id,
		StartedAt:   at,
		PlateWidth:  320,
		PlateHeight: 320,
		Bins:        map[int]float64{1: 270, 2: 200},
		RescanEvery: 3,
	}))
}

func TestJournal_RunLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	startRun(t, db, "run-a", started)

	require.NoError(t, db.RecordScan(ctx, sorter.ScanRecord{
		RunID: "run-a", Seq: 1, At: started, Source: "cam", CropWidth: 3002, CropHeight: 2918,
		Detections: 3, Objects: 2, Dropped: []plate.Dropped{{Index: 3, Label: "bolt", Reason: "no bin assigned to label"}},
	}))

	obj := plate.Object{ID: 1, X: 300, Y: 260, Class: 1, Label: "screw"}
	require.NoError(t, db.RecordPlan(ctx, "run-a", 1, []schedule.Entry{
		{Rank: 1, Candidate: schedule.Candidate{Object: obj, Collisions: 0, EdgeDistance: 20, Manhattan: 30}, Path: "diag"},
		{Rank: 2, Candidate: schedule.Candidate{Object: plate.Object{ID: 2, X: 100, Y: 100, Class: 2}, Collisions: 1, EdgeDistance: 220, Manhattan: 320}},
	}))
	require.NoError(t, db.RecordPush(ctx, sorter.PushRecord{
		RunID: "run-a", Round: 1, Rank: 1, Object: obj, Bin: plate.Bin{Class: 1, EdgePosition: 270},
		OK: true, Elapsed: 2500 * time.Millisecond, At: started.Add(time.Minute),
	}))
	require.NoError(t, db.RecordPush(ctx, sorter.PushRecord{
		RunID: "run-a", Round: 1, Rank: 2, Object: plate.Object{ID: 2, X: 100, Y: 100, Class: 2},
		Bin: plate.Bin{Class: 2, EdgePosition: 200}, FailedPhase: "edge_push", Error: "timed out", At: started.Add(2 * time.Minute),
	}))
	require.NoError(t, db.FinishRun(ctx, sorter.Summary{
		RunID: "run-a", Outcome: sorter.OutcomeParked, FinishedAt: started.Add(5 * time.Minute),
		Mapping: plate.Mapping{"screw": 1}, Rounds: 2, Scans: 3, Pushed: 1, Failed: 1, Dropped: 1,
		MeanPushSeconds: 2.5,
	}))

	run, err := db.GetRun(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, "parked", run.Outcome)
	assert.Equal(t, map[int]float64{1: 270, 2: 200}, run.Bins)
	assert.Equal(t, plate.Mapping{"screw": 1}, run.Mapping)
	assert.Equal(t, 1, run.Failed)
	assert.WithinDuration(t, started, run.StartedAt, time.Millisecond)
	require.NotNil(t, run.FinishedAt)
	assert.WithinDuration(t, started.Add(5*time.Minute), *run.FinishedAt, time.Millisecond)

	pushes, err := db.Pushes(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, pushes, 2)
	assert.True(t, pushes[0].OK)
	assert.Equal(t, "screw", pushes[0].Label)
	assert.InDelta(t, 2.5, pushes[0].ElapsedSeconds, 1e-9)
	assert.False(t, pushes[1].OK)
	assert.Equal(t, "edge_push", pushes[1].FailedPhase)

	plan, err := db.Plan(ctx, "run-a", 1)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, obj, plan[0].Object)
	assert.Equal(t, "diag", plan[0].Path)
	assert.Equal(t, 1, plan[1].Collisions)
}

func TestJournal_RunsNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	startRun(t, db, "old", started)
	startRun(t, db, "new", started.Add(time.Hour))

	runs, err := db.Runs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Nil(t, runs[0].FinishedAt)

	runs, err = db.Runs(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestJournal_UnknownRun(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetRun(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	err = db.FinishRun(context.Background(), sorter.Summary{RunID: "nope"})
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestJournal_ForeignKeys(t *testing.T) {
	db := setupTestDB(t)
	err := db.RecordPush(context.Background(), sorter.PushRecord{RunID: "ghost"})
	assert.Error(t, err, "pushes must reference a run")
}

func TestMigrations_DownAndUp(t *testing.T) {
	db := setupTestDB(t)
	migFS, err := getMigrationsFS()
	require.NoError(t, err)

	version, dirty, err := db.MigrateVersion(migFS)
	require.NoError(t, err)
	assert.False(t, dirty)
	latest, err := LatestMigrationVersion(migFS)
	require.NoError(t, err)
	assert.Equal(t, latest, version)

	require.NoError(t, db.MigrateDown(migFS))
	version, _, err = db.MigrateVersion(migFS)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	require.NoError(t, db.MigrateUp(migFS))
	require.NoError(t, db.MigrateUp(migFS), "up is idempotent")
	startRun(t, db, "after", started)
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")
	var out bytes.Buffer

	require.NoError(t, RunMigrateCommand(&out, []string{"up"}, path))
	assert.Contains(t, out.String(), "Current version: 1 (latest 1, dirty: false)")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"status"}, path))
	assert.Contains(t, out.String(), "Current version: 1")

	assert.Error(t, RunMigrateCommand(io.Discard, nil, path))
	assert.Error(t, RunMigrateCommand(io.Discard, []string{"sideways"}, path))
	assert.Error(t, RunMigrateCommand(io.Discard, []string{"force"}, path))
	assert.Error(t, RunMigrateCommand(io.Discard, []string{"force", "x"}, path))
}

func TestAttachAdminRoutes_Backup(t *testing.T) {
	db := setupTestDB(t)
	startRun(t, db, "run-b", started)

	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))
	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("SQLite format 3")))
}
