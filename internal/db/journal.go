package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/platesort/internal/plate"
	"github.com/banshee-data/platesort/internal/schedule"
	"github.com/banshee-data/platesort/internal/sorter"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnix(s float64) time.Time {
	return time.Unix(0, int64(s*1e9)).UTC()
}

// StartRun inserts the run header.
func (db *DB) StartRun(ctx context.Context, run sorter.RunInfo) error {
	bins, err := json.Marshal(run.Bins)
	if err != nil {
		return fmt.Errorf("encode bins: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_unix, plate_width, plate_height, bins_json, rescan_every)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, unixSeconds(run.StartedAt), run.PlateWidth, run.PlateHeight, string(bins), run.RescanEvery,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// RecordScan appends a scan record.
func (db *DB) RecordScan(ctx context.Context, scan sorter.ScanRecord) error {
	var dropped []byte
	if len(scan.Dropped) > 0 {
		var err error
		if dropped, err = json.Marshal(scan.Dropped); err != nil {
			return fmt.Errorf("encode dropped: %w", err)
		}
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO scans (run_id, seq, round, at_unix, source, crop_width, crop_height, detections, objects, dropped_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scan.RunID, scan.Seq, scan.Round, unixSeconds(scan.At), scan.Source,
		scan.CropWidth, scan.CropHeight, scan.Detections, scan.Objects, nullString(string(dropped)),
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// RecordPlan stores the scheduled order of a round.
func (db *DB) RecordPlan(ctx context.Context, runID string, round int, plan []schedule.Entry) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO plan_entries (run_id, round, rank, object_id, label, class, x, y, collisions, edge_distance, manhattan, path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range plan {
		if _, err := stmt.ExecContext(ctx, runID, round, e.Rank, e.Object.ID, e.Object.Label, e.Object.Class,
			e.Object.X, e.Object.Y, e.Collisions, e.EdgeDistance, e.Manhattan, e.Path); err != nil {
			return fmt.Errorf("insert plan entry %d: %w", e.Rank, err)
		}
	}
	return tx.Commit()
}

// RecordPush appends a push outcome.
func (db *DB) RecordPush(ctx context.Context, rec sorter.PushRecord) error {
	ok := 0
	if rec.OK {
		ok = 1
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO pushes (run_id, round, rank, object_id, label, class, x, y, bin_edge, ok, failed_phase, error, elapsed_s, at_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Round, rec.Rank, rec.Object.ID, rec.Object.Label, rec.Object.Class, rec.Object.X, rec.Object.Y,
		rec.Bin.EdgePosition, ok, nullString(rec.FailedPhase), nullString(rec.Error), rec.Elapsed.Seconds(), unixSeconds(rec.At),
	)
	if err != nil {
		return fmt.Errorf("insert push: %w", err)
	}
	return nil
}

// FinishRun stores the run outcome and counters.
func (db *DB) FinishRun(ctx context.Context, s sorter.Summary) error {
	var mapping []byte
	if s.Mapping != nil {
		var err error
		if mapping, err = json.Marshal(s.Mapping); err != nil {
			return fmt.Errorf("encode mapping: %w", err)
		}
	}
	res, err := db.ExecContext(ctx,
		`UPDATE runs SET finished_unix = ?, outcome = ?, error = ?, mapping_json = ?,
		 rounds = ?, scans = ?, pushed = ?, failed = ?, dropped = ?, mean_push_s = ?, stddev_push_s = ?
		 WHERE run_id = ?`,
		unixSeconds(s.FinishedAt), string(s.Outcome), nullString(s.Error), nullString(string(mapping)),
		s.Rounds, s.Scans, s.Pushed, s.Failed, s.Dropped, s.MeanPushSeconds, s.StdDevPushSeconds,
		s.RunID,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", s.RunID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, s.RunID)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ sorter.Journal = (*DB)(nil)

// Run is a journalled run.
type Run struct {
	ID                string          `json:"run_id"`
	StartedAt         time.Time       `json:"started_at"`
	FinishedAt        *time.Time      `json:"finished_at,omitempty"`
	PlateWidth        float64         `json:"plate_width"`
	PlateHeight       float64         `json:"plate_height"`
	Bins              map[int]float64 `json:"bins"`
	RescanEvery       int             `json:"rescan_every"`
	Outcome           string          `json:"outcome,omitempty"`
	Error             string          `json:"error,omitempty"`
	Mapping           plate.Mapping   `json:"mapping,omitempty"`
	Rounds            int             `json:"rounds"`
	Scans             int             `json:"scans"`
	Pushed            int             `json:"pushed"`
	Failed            int             `json:"failed"`
	Dropped           int             `json:"dropped"`
	MeanPushSeconds   float64         `json:"mean_push_seconds"`
	StdDevPushSeconds float64         `json:"stddev_push_seconds"`
}

const runColumns = `run_id, started_unix, finished_unix, plate_width, plate_height, bins_json, rescan_every,
	outcome, error, mapping_json, rounds, scans, pushed, failed, dropped, mean_push_s, stddev_push_s`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r                    Run
		started              float64
		finished             sql.NullFloat64
		binsJSON             string
		outcome, errText     sql.NullString
		mappingJSON          sql.NullString
		meanPush, stddevPush sql.NullFloat64
	)
	if err := row.Scan(&r.ID, &started, &finished, &r.PlateWidth, &r.PlateHeight, &binsJSON, &r.RescanEvery,
		&outcome, &errText, &mappingJSON, &r.Rounds, &r.Scans, &r.Pushed, &r.Failed, &r.Dropped,
		&meanPush, &stddevPush); err != nil {
		return Run{}, err
	}
	r.StartedAt = fromUnix(started)
	if finished.Valid {
		t := fromUnix(finished.Float64)
		r.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(binsJSON), &r.Bins); err != nil {
		return Run{}, fmt.Errorf("decode bins: %w", err)
	}
	if mappingJSON.Valid {
		if err := json.Unmarshal([]byte(mappingJSON.String), &r.Mapping); err != nil {
			return Run{}, fmt.Errorf("decode mapping: %w", err)
		}
	}
	r.Outcome, r.Error = outcome.String, errText.String
	r.MeanPushSeconds, r.StdDevPushSeconds = meanPush.Float64, stddevPush.Float64
	return r, nil
}

// Runs lists the most recent runs first.
func (db *DB) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_unix DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run.
func (db *DB) GetRun(ctx context.Context, id string) (Run, error) {
	r, err := scanRun(db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// Push is a journalled push outcome.
type Push struct {
	Round          int       `json:"round"`
	Rank           int       `json:"rank"`
	ObjectID       int       `json:"object_id"`
	Label          string    `json:"label,omitempty"`
	Class          int       `json:"class"`
	X              float64   `json:"x"`
	Y              float64   `json:"y"`
	BinEdge        float64   `json:"bin_edge"`
	OK             bool      `json:"ok"`
	FailedPhase    string    `json:"failed_phase,omitempty"`
	Error          string    `json:"error,omitempty"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	At             time.Time `json:"at"`
}

// Pushes returns the pushes of a run in execution order.
func (db *DB) Pushes(ctx context.Context, runID string) ([]Push, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT round, rank, object_id, label, class, x, y, bin_edge, ok, failed_phase, error, elapsed_s, at_unix
		 FROM pushes WHERE run_id = ? ORDER BY push_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Push
	for rows.Next() {
		var (
			p            Push
			label, phase sql.NullString
			errText      sql.NullString
			ok           int
			at           float64
		)
		if err := rows.Scan(&p.Round, &p.Rank, &p.ObjectID, &label, &p.Class, &p.X, &p.Y, &p.BinEdge,
			&ok, &phase, &errText, &p.ElapsedSeconds, &at); err != nil {
			return nil, err
		}
		p.Label, p.FailedPhase, p.Error = label.String, phase.String, errText.String
		p.OK = ok == 1
		p.At = fromUnix(at)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Plan returns the scheduled order of one round.
func (db *DB) Plan(ctx context.Context, runID string, round int) ([]schedule.Entry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT rank, object_id, label, class, x, y, collisions, edge_distance, manhattan, path
		 FROM plan_entries WHERE run_id = ? AND round = ? ORDER BY rank`, runID, round)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.Entry
	for rows.Next() {
		var (
			e           schedule.Entry
			label, path sql.NullString
		)
		if err := rows.Scan(&e.Rank, &e.Object.ID, &label, &e.Object.Class, &e.Object.X, &e.Object.Y,
			&e.Collisions, &e.EdgeDistance, &e.Manhattan, &path); err != nil {
			return nil, err
		}
		e.Object.Label, e.Path = label.String, path.String
		out = append(out, e)
	}
	return out, rows.Err()
}
