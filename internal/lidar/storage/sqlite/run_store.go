package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("run not found")

// RunStore persists generation runs, their files and tile outcomes.
type RunStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewRunStore creates a RunStore backed by the given database, which must
// already be migrated.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db, now: time.Now}
}

// StartRun inserts a run row. A missing RunID is filled with a new UUID and
// a zero StartedAt with the current time.
func (s *RunStore) StartRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	if run.ConfigJSON == "" {
		run.ConfigJSON = "{}"
	}

	query := `
		INSERT INTO generation_runs (
			run_id, started_at_ns, status, generator,
			working_epsg, output_epsg, config_json
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		run.RunID,
		run.StartedAt.UnixNano(),
		run.Status,
		run.Generator,
		run.WorkingEPSG,
		run.OutputEPSG,
		run.ConfigJSON,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records the terminal status of a run.
func (s *RunStore) FinishRun(runID, status string, objects int, errMsg string, finishedAt time.Time) error {
	res, err := s.db.Exec(`
		UPDATE generation_runs
		SET status = ?, object_count = ?, error_message = ?, finished_at_ns = ?
		WHERE run_id = ?
	`, status, objects, errMsg, finishedAt.UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// RecordFile upserts the outcome of one input file.
func (s *RunStore) RecordFile(rec FileRecord) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO run_files (
			run_id, path, status, epsg, point_count,
			intensity_mean, intensity_std, elevation_min, elevation_max,
			first_return_ratio, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.RunID, rec.Path, rec.Status, rec.EPSG, int64(rec.PointCount),
		rec.IntensityMean, rec.IntensityStd, rec.ElevationMin, rec.ElevationMax,
		rec.FirstReturnRatio, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("record file %s: %w", rec.Path, err)
	}
	return nil
}

// RecordTile upserts the outcome of one tile.
func (s *RunStore) RecordTile(rec TileRecord) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO run_tiles (
			run_id, tile_id, tile_row, tile_col, state,
			point_count, object_count, duration_ms, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.RunID, rec.TileID, rec.Row, rec.Col, rec.State,
		rec.PointCount, rec.ObjectCount, rec.Duration.Milliseconds(), rec.Error,
	)
	if err != nil {
		return fmt.Errorf("record tile %s: %w", rec.TileID, err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *RunStore) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, started_at_ns, finished_at_ns, status, generator,
		       working_epsg, output_epsg, config_json, object_count, error_message
		FROM generation_runs
		WHERE run_id = ?
	`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A non-positive limit returns all.
func (s *RunStore) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT run_id, started_at_ns, finished_at_ns, status, generator,
		       working_epsg, output_epsg, config_json, object_count, error_message
		FROM generation_runs
		ORDER BY started_at_ns DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListTiles returns the tile outcomes of a run in tile id order.
func (s *RunStore) ListTiles(runID string) ([]TileRecord, error) {
	rows, err := s.db.Query(`
		SELECT run_id, tile_id, tile_row, tile_col, state,
		       point_count, object_count, duration_ms, error_message
		FROM run_tiles
		WHERE run_id = ?
		ORDER BY tile_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list tiles: %w", err)
	}
	defer rows.Close()

	var out []TileRecord
	for rows.Next() {
		var rec TileRecord
		var ms int64
		if err := rows.Scan(&rec.RunID, &rec.TileID, &rec.Row, &rec.Col, &rec.State,
			&rec.PointCount, &rec.ObjectCount, &ms, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan tile: %w", err)
		}
		rec.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListFiles returns the file outcomes of a run in path order.
func (s *RunStore) ListFiles(runID string) ([]FileRecord, error) {
	rows, err := s.db.Query(`
		SELECT run_id, path, status, epsg, point_count,
		       intensity_mean, intensity_std, elevation_min, elevation_max,
		       first_return_ratio, error_message
		FROM run_files
		WHERE run_id = ?
		ORDER BY path
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var rec FileRecord
		var points int64
		if err := rows.Scan(&rec.RunID, &rec.Path, &rec.Status, &rec.EPSG, &points,
			&rec.IntensityMean, &rec.IntensityStd, &rec.ElevationMin, &rec.ElevationMax,
			&rec.FirstReturnRatio, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		rec.PointCount = uint64(points)
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var startedNs int64
	var finishedNs sql.NullInt64
	if err := row.Scan(
		&run.RunID,
		&startedNs,
		&finishedNs,
		&run.Status,
		&run.Generator,
		&run.WorkingEPSG,
		&run.OutputEPSG,
		&run.ConfigJSON,
		&run.ObjectCount,
		&run.Error,
	); err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(0, startedNs)
	if finishedNs.Valid {
		t := time.Unix(0, finishedNs.Int64)
		run.FinishedAt = &t
	}
	return &run, nil
}
