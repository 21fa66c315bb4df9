package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/lidar2map/internal/crs"
	"github.com/banshee-data/lidar2map/internal/lidar/l1points"
	"github.com/banshee-data/lidar2map/internal/lidar/l2tiles"
	"github.com/banshee-data/lidar2map/internal/lidar/l6objects"
	"github.com/banshee-data/lidar2map/internal/lidar/storage/sqlite"
	"github.com/banshee-data/lidar2map/internal/monitoring"
	"github.com/banshee-data/lidar2map/internal/timeutil"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

// reprojectBatch is the number of points reprojected per CRS call while
// streaming a file.
const reprojectBatch = 4096

// Generator runs the whole pipeline for a set of inputs. Recorder and
// Plotter are optional.
type Generator struct {
	Params     Params
	CRS        crs.Reprojector
	Sink       monitoring.Sink
	Recorder   RunRecorder
	Plotter    TilePlotter
	Clock      timeutil.Clock
	ConfigJSON string
}

// NewGenerator returns a Generator with the built-in projection service, a
// no-op sink and the real clock.
func NewGenerator(p Params) *Generator {
	return &Generator{
		Params: p,
		CRS:    crs.NewProjService(),
		Sink:   monitoring.NopSink{},
		Clock:  timeutil.RealClock{},
	}
}

// FileResult is the outcome of reading one input.
type FileResult struct {
	Name   string
	EPSG   int
	Points uint64
	Stats  l1points.LidarStats
	Err    error
}

// Result is everything a successful run produced.
type Result struct {
	RunID       string
	Document    *l6objects.Document
	Params      Params
	Stats       l1points.LidarStats
	WorkingEPSG int
	OutputEPSG  int
	Area        orb.Bound
	Tiles       []TileResult
	Files       []FileResult
	Merged      int
}

// input is a file that survived header resolution.
type input struct {
	opener l1points.Opener
	header l1points.Header
	epsg   int
	bounds orb.Bound // in the working CRS
}

// Run generates a map document from sources. File- and tile-scoped errors
// are reported to the sink and skipped; run-scoped errors, cancellation and
// a failure to reproject the finished document end the run with a nil
// result.
func (g *Generator) Run(ctx context.Context, sources []l1points.Opener) (*Result, error) {
	clock := g.clock()
	res := &Result{Params: g.Params}
	res.RunID = g.startRun()

	err := g.run(ctx, sources, res)

	status := sqlite.RunCompleted
	errMsg := ""
	objects := 0
	switch {
	case err == nil:
		objects = res.Document.Len()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, errMsg = sqlite.RunCancelled, err.Error()
	default:
		status, errMsg = sqlite.RunFailed, err.Error()
	}
	if g.Recorder != nil && res.RunID != "" {
		if rerr := g.Recorder.FinishRun(res.RunID, status, objects, errMsg, clock.Now()); rerr != nil {
			opsf("finish run %s: %v", res.RunID, rerr)
		}
	}
	if err != nil {
		g.sink().Send(monitoring.ErrorEvent(err, true))
		return nil, err
	}
	g.sink().Send(monitoring.TaskComplete("generate"))
	return res, nil
}

func (g *Generator) run(ctx context.Context, sources []l1points.Opener, res *Result) error {
	sink := g.sink()
	p := g.Params

	sink.Send(monitoring.ProgressStart("reading headers"))
	inputs, working := g.resolveInputs(sources, res)
	sink.Send(monitoring.ProgressFinish())
	if len(inputs) == 0 {
		return ErrNoInputs
	}
	res.WorkingEPSG = working
	res.OutputEPSG = p.OutputEPSG
	if res.OutputEPSG == 0 {
		res.OutputEPSG = working
	}

	data := inputs[0].bounds
	for _, in := range inputs[1:] {
		data = data.Union(in.bounds)
	}
	area := data
	if p.Area != nil {
		var ok bool
		if area, ok = intersect(*p.Area, data); !ok {
			return fmt.Errorf("%w: area %v, data %v", ErrAreaMismatch, *p.Area, data)
		}
	}
	res.Area = area

	tiles, err := l2tiles.Compute(area, l2tiles.NeighborhoodOf(area, data), l2tiles.Params{Size: p.TileSize, Margin: p.TileMargin})
	if err != nil {
		return fmt.Errorf("tiling %v: %w", area, err)
	}
	diagf("area %v: %d tiles, working EPSG %d", area, len(tiles), working)

	sink.Send(monitoring.ProgressStart("reading points"))
	buckets, stats, err := g.stream(ctx, inputs, working, tiles, res)
	sink.Send(monitoring.ProgressFinish())
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		return ErrNoInputs
	}
	res.Stats = l1points.CombineAll(stats)
	derived := DeriveParams(p, res.Stats)
	res.Params = derived
	sink.Send(monitoring.LogLine("%d points, intensity mean %.1f σ %.1f", res.Stats.PointCount(), res.Stats.Intensity.Mean, res.Stats.Intensity.StdDev))

	doc := l6objects.NewDocument()
	sink.Send(monitoring.ProgressStart("generating tiles"))
	res.Tiles, err = g.processTiles(ctx, tiles, buckets, derived, doc, res.RunID)
	sink.Send(monitoring.ProgressFinish())
	if err != nil {
		return err
	}

	if err := doc.Freeze(); err != nil {
		return fmt.Errorf("%w: %w", ErrPoisonedSharedState, err)
	}
	merged, err := doc.MergeLines(derived.MergeTolerance)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPoisonedSharedState, err)
	}
	res.Merged = merged
	diagf("merged %d line pairs", merged)

	if res.OutputEPSG != working {
		err := doc.TransformGeometry(func(geom orb.Geometry) (orb.Geometry, error) {
			return crs.ReprojectGeometry(g.CRS, working, res.OutputEPSG, geom)
		})
		if err != nil {
			return fmt.Errorf("%w: output EPSG %d: %w", ErrProjectionFailure, res.OutputEPSG, err)
		}
	}
	res.Document = doc
	return nil
}

// resolveInputs reads every header, assigns each file a CRS and projects
// its bounds into the working CRS. Unusable files are reported and dropped.
func (g *Generator) resolveInputs(sources []l1points.Opener, res *Result) ([]*input, int) {
	p := g.Params
	var candidates []*input
	for _, src := range sources {
		r, err := src.Open()
		if err != nil {
			g.skipFile(res, FileResult{Name: src.Name(), Err: fmt.Errorf("%w: %s: %w", ErrUnreadableInput, src.Name(), err)})
			continue
		}
		h := r.Header()
		r.Close()

		epsg := h.EPSG
		if epsg == 0 {
			epsg = p.DefaultInputEPSG
			if epsg == 0 {
				g.warn(fmt.Errorf("%w: %s: assuming the working CRS", ErrNoCrsDetected, src.Name()))
			} else {
				g.warn(fmt.Errorf("%w: %s: assuming EPSG %d", ErrNoCrsDetected, src.Name(), epsg))
			}
		}
		candidates = append(candidates, &input{opener: src, header: h, epsg: epsg})
	}

	working := p.WorkingEPSG
	if working == 0 {
		for _, c := range candidates {
			if c.epsg != 0 {
				working = c.epsg
				break
			}
		}
	}

	var inputs []*input
	for _, c := range candidates {
		if c.epsg == 0 {
			c.epsg = working
		}
		b, err := crs.ReprojectBound(g.CRS, c.epsg, working, c.header.Bounds)
		if err != nil {
			g.skipFile(res, FileResult{Name: c.opener.Name(), EPSG: c.epsg, Err: fmt.Errorf("%w: %s: %w", ErrProjectionFailure, c.opener.Name(), err)})
			continue
		}
		c.bounds = b
		inputs = append(inputs, c)
	}
	return inputs, working
}

// stream reads every input once, accumulating statistics and distributing
// points into the buckets of every tile whose bounds contain them. A file
// that fails mid-stream contributes nothing.
func (g *Generator) stream(ctx context.Context, inputs []*input, working int, tiles []l2tiles.Tile, res *Result) ([][]l1points.Point, []l1points.LidarStats, error) {
	loc := newTileLocator(tiles)
	buckets := make([][]l1points.Point, len(tiles))
	var all []l1points.LidarStats
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		local, stats, err := g.streamFile(in, working, loc)
		if err != nil {
			if !errors.Is(err, ErrProjectionFailure) {
				err = fmt.Errorf("%w: %s: %w", ErrUnreadableInput, in.opener.Name(), err)
			}
			g.skipFile(res, FileResult{Name: in.opener.Name(), EPSG: in.epsg, Err: err})
			continue
		}
		for i := range local {
			buckets[i] = append(buckets[i], local[i]...)
		}
		all = append(all, stats)
		fr := FileResult{Name: in.opener.Name(), EPSG: in.epsg, Points: stats.PointCount(), Stats: stats}
		res.Files = append(res.Files, fr)
		g.recordFile(res.RunID, fr)
		g.sink().Send(monitoring.ProgressIncrement(1 / float64(len(inputs))))
	}
	return buckets, all, nil
}

func (g *Generator) streamFile(in *input, working int, loc *tileLocator) ([][]l1points.Point, l1points.LidarStats, error) {
	r, err := in.opener.Open()
	if err != nil {
		return nil, l1points.LidarStats{}, err
	}
	defer r.Close()

	local := make([][]l1points.Point, len(loc.tiles))
	acc := l1points.NewStatsAccumulator()
	pending := make([]l1points.Point, 0, reprojectBatch)
	xy := make([]orb.Point, 0, reprojectBatch)

	flush := func() error {
		xy = xy[:0]
		for _, pt := range pending {
			xy = append(xy, pt.XY())
		}
		if err := g.CRS.Reproject(in.epsg, working, xy); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrProjectionFailure, in.opener.Name(), err)
		}
		for i, pt := range pending {
			pt.X, pt.Y = xy[i][0], xy[i][1]
			loc.each(xy[i], func(t int) { local[t] = append(local[t], pt) })
		}
		pending = pending[:0]
		return nil
	}

	for {
		pt, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, l1points.LidarStats{}, err
		}
		acc.Add(pt)
		pending = append(pending, pt)
		if len(pending) == reprojectBatch {
			if err := flush(); err != nil {
				return nil, l1points.LidarStats{}, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, l1points.LidarStats{}, err
	}
	return local, acc.Stats(), nil
}

// processTiles runs ProcessTile on a bounded worker pool. Cancellation is
// checked before each tile starts; tiles already running finish.
func (g *Generator) processTiles(ctx context.Context, tiles []l2tiles.Tile, buckets [][]l1points.Point, p Params, doc *l6objects.Document, runID string) ([]TileResult, error) {
	results := make([]TileResult, len(tiles))
	for i, t := range tiles {
		results[i] = TileResult{Tile: t, State: TilePending, Points: len(buckets[i])}
	}
	if len(tiles) == 0 {
		return results, nil
	}

	clock := g.clock()
	sink := g.sink()
	delta := 1 / float64(len(tiles))
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i := range tiles {
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() (err error) {
			if err := egCtx.Err(); err != nil {
				return err
			}
			points := buckets[i]
			buckets[i] = nil

			start := clock.Now()
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("tile %s: panic: %v", tiles[i].ID(), rec)
					if doc.Poisoned() {
						err = fmt.Errorf("%w: %w", ErrPoisonedSharedState, err)
					}
					results[i] = TileResult{Tile: tiles[i], State: TileFailed, Points: len(points), Err: err}
					if !IsFatal(err) {
						g.warn(err)
						err = nil
					}
				}
			}()

			r, terr := ProcessTile(egCtx, tiles[i], points, p, doc, sink)
			r.Duration = clock.Since(start)
			results[i] = r
			g.recordTile(runID, r)
			sink.Send(monitoring.ProgressIncrement(delta))

			switch {
			case terr == nil:
				if g.Plotter != nil {
					if perr := g.Plotter.PlotTile(tiles[i], r.Objects); perr != nil {
						opsf("plot tile %s: %v", tiles[i].ID(), perr)
					}
				}
				return nil
			case IsFatal(terr):
				return terr
			default:
				g.warn(terr)
				return nil
			}
		})
	}
	if err := eg.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (g *Generator) sink() monitoring.Sink {
	if g.Sink == nil {
		return monitoring.NopSink{}
	}
	return g.Sink
}

func (g *Generator) clock() timeutil.Clock {
	if g.Clock == nil {
		return timeutil.RealClock{}
	}
	return g.Clock
}

func (g *Generator) warn(err error) {
	opsf("%v", err)
	g.sink().Send(monitoring.ErrorEvent(err, false))
}

func (g *Generator) skipFile(res *Result, fr FileResult) {
	g.warn(fr.Err)
	res.Files = append(res.Files, fr)
	g.recordFile(res.RunID, fr)
}

func (g *Generator) startRun() string {
	if g.Recorder == nil {
		return ""
	}
	run := &sqlite.Run{
		StartedAt:   g.clock().Now(),
		Generator:   g.Params.Generator,
		WorkingEPSG: g.Params.WorkingEPSG,
		OutputEPSG:  g.Params.OutputEPSG,
		ConfigJSON:  g.ConfigJSON,
	}
	if err := g.Recorder.StartRun(run); err != nil {
		opsf("start run: %v", err)
		return ""
	}
	return run.RunID
}

func (g *Generator) recordFile(runID string, fr FileResult) {
	if g.Recorder == nil || runID == "" {
		return
	}
	rec := sqlite.FileRecord{
		RunID:            runID,
		Path:             fr.Name,
		Status:           sqlite.FileRead,
		EPSG:             fr.EPSG,
		PointCount:       fr.Points,
		IntensityMean:    fr.Stats.Intensity.Mean,
		IntensityStd:     fr.Stats.Intensity.StdDev,
		ElevationMin:     fr.Stats.Elevation.Min,
		ElevationMax:     fr.Stats.Elevation.Max,
		FirstReturnRatio: fr.Stats.FirstReturnRatio(),
	}
	if fr.Err != nil {
		rec.Status = sqlite.FileSkipped
		rec.Error = fr.Err.Error()
	}
	if err := g.Recorder.RecordFile(rec); err != nil {
		opsf("record file %s: %v", fr.Name, err)
	}
}

func (g *Generator) recordTile(runID string, r TileResult) {
	if g.Recorder == nil || runID == "" {
		return
	}
	rec := sqlite.TileRecord{
		RunID:       runID,
		TileID:      r.Tile.ID(),
		Row:         r.Tile.Row,
		Col:         r.Tile.Col,
		State:       r.State.String(),
		PointCount:  r.Points,
		ObjectCount: len(r.Objects),
		Duration:    r.Duration,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	if err := g.Recorder.RecordTile(rec); err != nil {
		opsf("record tile %s: %v", rec.TileID, err)
	}
}

// intersect returns the overlap of a and b and whether it has positive area.
func intersect(a, b orb.Bound) (orb.Bound, bool) {
	out := orb.Bound{
		Min: orb.Point{max(a.Min[0], b.Min[0]), max(a.Min[1], b.Min[1])},
		Max: orb.Point{min(a.Max[0], b.Max[0]), min(a.Max[1], b.Max[1])},
	}
	return out, out.Max[0] > out.Min[0] && out.Max[1] > out.Min[1]
}

// tileLocator finds the tiles whose bounds contain a point. Tiles form a
// row-major grid, so columns and rows are tested separately.
type tileLocator struct {
	tiles      []l2tiles.Tile
	rows, cols int
}

func newTileLocator(tiles []l2tiles.Tile) *tileLocator {
	cols := 0
	for _, t := range tiles {
		if t.Row == 0 {
			cols++
		}
	}
	l := &tileLocator{tiles: tiles, cols: cols}
	if cols > 0 {
		l.rows = len(tiles) / cols
	}
	return l
}

func (l *tileLocator) each(pt orb.Point, fn func(i int)) {
	for c := 0; c < l.cols; c++ {
		cb := l.tiles[c].Bounds
		if pt[0] < cb.Min[0] || pt[0] > cb.Max[0] {
			continue
		}
		for r := 0; r < l.rows; r++ {
			i := r*l.cols + c
			b := l.tiles[i].Bounds
			if pt[1] >= b.Min[1] && pt[1] <= b.Max[1] {
				fn(i)
			}
		}
	}
}
