package pipeline

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/lidar2map/internal/config"
	"github.com/banshee-data/lidar2map/internal/db"
	"github.com/banshee-data/lidar2map/internal/fsutil"
	"github.com/banshee-data/lidar2map/internal/lidar/l1points"
	"github.com/banshee-data/lidar2map/internal/lidar/l2tiles"
	"github.com/banshee-data/lidar2map/internal/lidar/l6objects"
	"github.com/banshee-data/lidar2map/internal/lidar/storage/sqlite"
	"github.com/banshee-data/lidar2map/internal/monitoring"
	"github.com/banshee-data/lidar2map/internal/testutil"
	"github.com/banshee-data/lidar2map/internal/timeutil"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(p Params) (*Generator, *monitoring.RecordingSink) {
	g := NewGenerator(p)
	sink := &monitoring.RecordingSink{}
	g.Sink = sink
	g.Clock = timeutil.NewSteppingClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), time.Millisecond)
	return g, sink
}

func errorEvents(sink *monitoring.RecordingSink, fatal bool) []monitoring.Event {
	var out []monitoring.Event
	for _, e := range sink.Events() {
		if e.Kind == monitoring.EventError && e.Fatal == fatal {
			out = append(out, e)
		}
	}
	return out
}

func TestGeneratorRunEndToEnd(t *testing.T) {
	p := testParams(t, nil)
	g, sink := newTestGenerator(p)

	res, err := g.Run(context.Background(), []l1points.Opener{
		&l1points.SliceOpener{ID: "block.xyz", EPSG: 3067, Points: blockCloud()},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Document)

	assert.Equal(t, 3067, res.WorkingEPSG)
	assert.Equal(t, 3067, res.OutputEPSG)
	assert.Equal(t, uint64(10000), res.Stats.PointCount())
	require.Len(t, res.Tiles, 4)
	for _, tr := range res.Tiles {
		assert.Equal(t, TileDone, tr.State, "tile %s", tr.Tile.ID())
		assert.Positive(t, tr.Duration)
	}

	doc := res.Document
	assert.True(t, doc.Frozen())
	contours := doc.Objects(l6objects.SymbolContour)
	require.Len(t, contours, 2, "each ring should be merged back across the four tiles")
	for _, obj := range contours {
		line := obj.(*l6objects.LineObject).Line
		assert.Equal(t, line[0], line[len(line)-1])
	}
	assert.Positive(t, res.Merged)

	assert.Empty(t, errorEvents(sink, false))
	assert.Empty(t, errorEvents(sink, true))
	assert.Equal(t, 1, sink.Count(monitoring.EventTaskComplete))
	assert.GreaterOrEqual(t, sink.Count(monitoring.EventProgressIncrement), 4)
	assert.Equal(t, sink.Count(monitoring.EventProgressStart), sink.Count(monitoring.EventProgressFinish))
}

func TestLogWriters(t *testing.T) {
	var ops, diag bytes.Buffer
	SetLogWriters(&ops, &diag, nil)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	g, _ := newTestGenerator(testParams(t, nil))
	_, err := g.Run(context.Background(), []l1points.Opener{
		&l1points.SliceOpener{ID: "block", EPSG: 3067, Points: blockCloud()},
		&l1points.SliceOpener{ID: "broken", EPSG: 3067, FailOpen: true},
	})
	require.NoError(t, err)

	assert.Contains(t, diag.String(), "component=pipeline")
	assert.Contains(t, diag.String(), "4 tiles")
	assert.Contains(t, ops.String(), "broken")
}

func TestGeneratorSkipsUnreadableFiles(t *testing.T) {
	p := testParams(t, nil)
	g, sink := newTestGenerator(p)

	res, err := g.Run(context.Background(), []l1points.Opener{
		&l1points.SliceOpener{ID: "good", EPSG: 3067, Points: blockCloud()},
		&l1points.SliceOpener{ID: "missing", FailOpen: true},
		&l1points.SliceOpener{ID: "truncated", EPSG: 3067, Points: blockCloud(), FailAfter: 100},
	})
	require.NoError(t, err)

	// The truncated file contributes no points at all.
	assert.Equal(t, uint64(10000), res.Stats.PointCount())
	require.Len(t, res.Files, 3)
	failed := 0
	for _, f := range res.Files {
		if f.Err != nil {
			failed++
			assert.ErrorIs(t, f.Err, ErrUnreadableInput)
		}
	}
	assert.Equal(t, 2, failed)
	assert.Len(t, errorEvents(sink, false), 2)
	assert.Equal(t, 2, res.Document.Count(l6objects.SymbolContour))
}

func TestGeneratorNoCRS(t *testing.T) {
	p := testParams(t, func(c *config.MapConfig) { c.DefaultInputEPSG = intp(3067) })
	g, sink := newTestGenerator(p)

	res, err := g.Run(context.Background(), []l1points.Opener{
		&l1points.SliceOpener{ID: "bare", Points: blockCloud()},
	})
	require.NoError(t, err)
	assert.Equal(t, 3067, res.WorkingEPSG)

	warnings := errorEvents(sink, false)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Text, ErrNoCrsDetected.Error())
}

func TestGeneratorNoCRSWithoutDefaultAssumesWorking(t *testing.T) {
	p := testParams(t, nil)
	g, sink := newTestGenerator(p)

	res, err := g.Run(context.Background(), []l1points.Opener{
		&l1points.SliceOpener{ID: "bare", Points: blockCloud()},
		&l1points.SliceOpener{ID: "tagged", EPSG: 3067, Points: blockCloud()},
	})
	require.NoError(t, err)
	assert.Equal(t, 3067, res.WorkingEPSG)
	assert.Equal(t, uint64(20000), res.Stats.PointCount())
	for _, f := range res.Files {
		assert.NoError(t, f.Err, f.Name)
	}

	warnings := errorEvents(sink, false)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Text, ErrNoCrsDetected.Error())
	assert.Contains(t, warnings[0].Text, "assuming the working CRS")
}

func TestGeneratorNoGroundTilesAreSkipped(t *testing.T) {
	p := testParams(t, nil)
	g, sink := newTestGenerator(p)

	// Ground only west of x=100; canopy returns only beyond.
	var points []l1points.Point
	for x := 0.5; x < 300; x++ {
		for y := 0.5; y < 100; y++ {
			class := l1points.ClassGround
			if x > 100 {
				class = l1points.ClassHighVegetation
			}
			points = append(points, l1points.Point{X: x, Y: y, Z: 100, ReturnNumber: 1, Classification: class})
		}
	}

	res, err := g.Run(context.Background(), []l1points.Opener{
		&l1points.SliceOpener{ID: "strip", EPSG: 3067, Points: points},
	})
	require.NoError(t, err)

	skipped := 0
	for _, tr := range res.Tiles {
		if errors.Is(tr.Err, ErrNoGroundPoints) {
			skipped++
			assert.Equal(t, TileFailed, tr.State)
		}
	}
	assert.Equal(t, 4, skipped)
	assert.Len(t, errorEvents(sink, false), skipped)
	assert.Empty(t, errorEvents(sink, true))
}

func TestGeneratorAreaMismatch(t *testing.T) {
	p := testParams(t, func(c *config.MapConfig) {
		c.Area = &config.Area{MinX: 1000, MinY: 1000, MaxX: 1100, MaxY: 1100}
	})
	g, sink := newTestGenerator(p)

	res, err := g.Run(context.Background(), []l1points.Opener{
		&l1points.SliceOpener{ID: "block", EPSG: 3067, Points: blockCloud()},
	})
	assert.ErrorIs(t, err, ErrAreaMismatch)
	assert.True(t, IsFatal(err))
	assert.Nil(t, res)
	assert.Len(t, errorEvents(sink, true), 1)
}

func TestGeneratorNoInputs(t *testing.T) {
	g, _ := newTestGenerator(testParams(t, nil))
	_, err := g.Run(context.Background(), []l1points.Opener{&l1points.SliceOpener{ID: "x", FailOpen: true}})
	assert.ErrorIs(t, err, ErrNoInputs)
	assert.True(t, IsFatal(err))
}

func TestGeneratorProjection(t *testing.T) {
	t.Run("unknown input CRS skips the file", func(t *testing.T) {
		g, sink := newTestGenerator(testParams(t, nil))
		res, err := g.Run(context.Background(), []l1points.Opener{
			&l1points.SliceOpener{ID: "good", EPSG: 3067, Points: blockCloud()},
			&l1points.SliceOpener{ID: "alien", EPSG: 999999, Points: blockCloud()},
		})
		require.NoError(t, err)
		warnings := errorEvents(sink, false)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0].Text, "alien")
		require.Len(t, res.Files, 2)
		assert.ErrorIs(t, res.Files[0].Err, ErrProjectionFailure)
	})

	t.Run("unknown output CRS fails the run", func(t *testing.T) {
		g, _ := newTestGenerator(testParams(t, func(c *config.MapConfig) { c.OutputEPSG = intp(999999) }))
		_, err := g.Run(context.Background(), []l1points.Opener{
			&l1points.SliceOpener{ID: "good", EPSG: 3067, Points: blockCloud()},
		})
		assert.ErrorIs(t, err, ErrProjectionFailure)
	})

	t.Run("output is reprojected", func(t *testing.T) {
		g, _ := newTestGenerator(testParams(t, func(c *config.MapConfig) { c.OutputEPSG = intp(4326) }))
		offset := orb.Point{385000, 6672000}
		points := blockCloud()
		for i := range points {
			points[i].X += offset[0]
			points[i].Y += offset[1]
		}
		res, err := g.Run(context.Background(), []l1points.Opener{
			&l1points.SliceOpener{ID: "helsinki", EPSG: 3067, Points: points},
		})
		require.NoError(t, err)
		assert.Equal(t, 4326, res.OutputEPSG)
		contours := res.Document.Objects(l6objects.SymbolContour)
		require.NotEmpty(t, contours)
		b := contours[0].Geometry().Bound()
		assert.InDelta(t, 24.9, b.Min[0], 0.5)
		assert.InDelta(t, 60.2, b.Min[1], 0.5)
	})
}

func TestGeneratorCancelled(t *testing.T) {
	g, sink := newTestGenerator(testParams(t, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := g.Run(ctx, []l1points.Opener{
		&l1points.SliceOpener{ID: "block", EPSG: 3067, Points: blockCloud()},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
	assert.Len(t, errorEvents(sink, true), 1)
}

func TestProcessTilesStopsDispatchWhenCancelled(t *testing.T) {
	p := testParams(t, nil)
	g, _ := newTestGenerator(p)
	tiles := surveyTiles(t, p)
	buckets := make([][]l1points.Point, len(tiles))
	for i := range buckets {
		buckets[i] = blockCloud()
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := l6objects.NewDocument()
	results, err := g.processTiles(ctx, tiles, buckets, p, doc, "")
	assert.ErrorIs(t, err, context.Canceled)
	for _, r := range results {
		assert.Equal(t, TilePending, r.State)
	}
	assert.Zero(t, doc.Len())
}

type fakeRecorder struct {
	mu       sync.Mutex
	started  int
	files    []sqlite.FileRecord
	tiles    []sqlite.TileRecord
	status   string
	objects  int
	finished bool
}

func (f *fakeRecorder) StartRun(run *sqlite.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	run.RunID = "run-1"
	return nil
}

func (f *fakeRecorder) RecordFile(rec sqlite.FileRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, rec)
	return nil
}

func (f *fakeRecorder) RecordTile(rec sqlite.TileRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tiles = append(f.tiles, rec)
	return nil
}

func (f *fakeRecorder) FinishRun(runID, status string, objects int, errMsg string, finishedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.objects, f.finished = status, objects, true
	return nil
}

type countingPlotter struct {
	mu    sync.Mutex
	tiles map[string]int
}

func (c *countingPlotter) PlotTile(tile l2tiles.Tile, objects []l6objects.Object) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tiles == nil {
		c.tiles = map[string]int{}
	}
	c.tiles[tile.ID()] = len(objects)
	return nil
}

func TestGeneratorCollaborators(t *testing.T) {
	g, _ := newTestGenerator(testParams(t, nil))
	rec := &fakeRecorder{}
	plot := &countingPlotter{}
	g.Recorder = rec
	g.Plotter = plot

	res, err := g.Run(context.Background(), []l1points.Opener{
		&l1points.SliceOpener{ID: "block", EPSG: 3067, Points: blockCloud()},
		&l1points.SliceOpener{ID: "broken", FailOpen: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)

	assert.Equal(t, 1, rec.started)
	assert.Len(t, rec.files, 2)
	assert.Len(t, rec.tiles, 4)
	assert.True(t, rec.finished)
	assert.Equal(t, sqlite.RunCompleted, rec.status)
	assert.Equal(t, res.Document.Len(), rec.objects)
	assert.Len(t, plot.tiles, 4)
}

func TestGeneratorWithRunStore(t *testing.T) {
	d, err := db.OpenDB(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.MigrateUp(db.MigrationsFS()))
	store := sqlite.NewRunStore(d.DB)

	g, _ := newTestGenerator(testParams(t, func(c *config.MapConfig) {
		c.Area = &config.Area{MinX: 1000, MinY: 1000, MaxX: 1100, MaxY: 1100}
	}))
	g.Recorder = store
	_, err = g.Run(context.Background(), []l1points.Opener{
		&l1points.SliceOpener{ID: "block", EPSG: 3067, Points: blockCloud()},
	})
	require.ErrorIs(t, err, ErrAreaMismatch)

	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, sqlite.RunFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "does not intersect")
}

func TestXYZInputThroughGenerator(t *testing.T) {
	fsys := testFS(t)
	g, _ := newTestGenerator(testParams(t, nil))
	res, err := g.Run(context.Background(), []l1points.Opener{l1points.NewXYZOpener(fsys, "/survey/block.xyz")})
	require.NoError(t, err)
	assert.Equal(t, 3067, res.WorkingEPSG)
	assert.Equal(t, 2, res.Document.Count(l6objects.SymbolContour))
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(ErrNoGroundPoints))
	assert.False(t, IsFatal(ErrUnreadableInput))
	assert.True(t, IsFatal(ErrPoisonedSharedState))
	assert.True(t, IsFatal(context.DeadlineExceeded))
}

func TestIntersect(t *testing.T) {
	b, ok := intersect(survey, orb.Bound{Min: orb.Point{50, 50}, Max: orb.Point{200, 200}})
	assert.True(t, ok)
	assert.Equal(t, orb.Bound{Min: orb.Point{50, 50}, Max: orb.Point{100, 100}}, b)

	_, ok = intersect(survey, orb.Bound{Min: orb.Point{100, 0}, Max: orb.Point{200, 100}})
	assert.False(t, ok, "touching edges have no area")
}

func TestTileLocator(t *testing.T) {
	tiles, err := l2tiles.Compute(orb.Bound{Max: orb.Point{300, 100}}, 0, l2tiles.Params{Size: 100, Margin: 10})
	require.NoError(t, err)
	loc := newTileLocator(tiles)
	assert.Equal(t, 2, loc.rows)
	assert.Equal(t, 4, loc.cols)

	var hits []int
	loc.each(orb.Point{5, 5}, func(i int) { hits = append(hits, i) })
	assert.Equal(t, []int{0, 4}, hits, "both rows cover the whole height")

	hits = nil
	loc.each(orb.Point{400, 5}, func(i int) { hits = append(hits, i) })
	assert.Empty(t, hits)
}

func testFS(t *testing.T) *fsutil.MemoryFileSystem {
	t.Helper()
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("/survey/block.xyz", testutil.XYZ(blockCloud(), 3067))
	return fsys
}
