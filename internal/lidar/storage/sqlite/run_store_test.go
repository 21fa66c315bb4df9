package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/lidar2map/internal/db"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRunStore opens a migrated database in a temp directory.
func setupRunStore(t *testing.T) *RunStore {
	t.Helper()
	d, err := db.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.MigrateUp(db.MigrationsFS()))
	return NewRunStore(d.DB)
}

func TestStartAndFinishRun(t *testing.T) {
	s := setupRunStore(t)
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return start }

	run := &Run{Generator: "lidar2map/test", WorkingEPSG: 3067, OutputEPSG: 4326}
	require.NoError(t, s.StartRun(run))
	_, err := uuid.Parse(run.RunID)
	require.NoError(t, err, "run id should be a uuid")
	assert.Equal(t, RunRunning, run.Status)

	got, err := s.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, RunRunning, got.Status)
	assert.True(t, got.StartedAt.Equal(start))
	assert.Nil(t, got.FinishedAt)
	assert.Equal(t, "{}", got.ConfigJSON)

	end := start.Add(90 * time.Second)
	require.NoError(t, s.FinishRun(run.RunID, RunCompleted, 42, "", end))
	got, err = s.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, got.Status)
	assert.Equal(t, 42, got.ObjectCount)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(end))
}

func TestRunNotFound(t *testing.T) {
	s := setupRunStore(t)
	_, err := s.GetRun("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.FinishRun("missing", RunFailed, 0, "x", time.Now()), ErrRunNotFound)
}

func TestRecordFilesAndTiles(t *testing.T) {
	s := setupRunStore(t)
	run := &Run{RunID: "run-1"}
	require.NoError(t, s.StartRun(run))

	require.NoError(t, s.RecordFile(FileRecord{RunID: "run-1", Path: "b.xyz", Status: FileSkipped, Error: "unreadable"}))
	require.NoError(t, s.RecordFile(FileRecord{RunID: "run-1", Path: "a.xyz", Status: FileRead, EPSG: 3067, PointCount: 1 << 40, IntensityMean: 120.5}))

	files, err := s.ListFiles("run-1")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.xyz", files[0].Path)
	assert.Equal(t, uint64(1<<40), files[0].PointCount)
	assert.Equal(t, FileSkipped, files[1].Status)

	require.NoError(t, s.RecordTile(TileRecord{RunID: "run-1", TileID: "r000c001", Col: 1, State: "done", ObjectCount: 7, Duration: 1500 * time.Millisecond}))
	require.NoError(t, s.RecordTile(TileRecord{RunID: "run-1", TileID: "r000c000", State: "failed", Error: "no ground points"}))
	// Upsert replaces the earlier outcome.
	require.NoError(t, s.RecordTile(TileRecord{RunID: "run-1", TileID: "r000c001", Col: 1, State: "done", ObjectCount: 8}))

	tiles, err := s.ListTiles("run-1")
	require.NoError(t, err)
	require.Len(t, tiles, 2)
	assert.Equal(t, "r000c000", tiles[0].TileID)
	assert.Equal(t, "failed", tiles[0].State)
	assert.Equal(t, 8, tiles[1].ObjectCount)
}

func TestRecordTileUnknownRun(t *testing.T) {
	s := setupRunStore(t)
	err := s.RecordTile(TileRecord{RunID: "nope", TileID: "r000c000", State: "done"})
	assert.Error(t, err, "foreign key should reject orphan tiles")
}

func TestListRunsOrder(t *testing.T) {
	s := setupRunStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.StartRun(&Run{RunID: string(rune('a' + i)), StartedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	runs, err := s.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].RunID)
	assert.Equal(t, "b", runs[1].RunID)

	all, err := s.ListRuns(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
