package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/banshee-data/lidar2map/internal/lidar/l1points"
	"github.com/banshee-data/lidar2map/internal/lidar/l2tiles"
	"github.com/banshee-data/lidar2map/internal/lidar/l3grid"
	"github.com/banshee-data/lidar2map/internal/lidar/l4contours"
	"github.com/banshee-data/lidar2map/internal/lidar/l5polygons"
	"github.com/banshee-data/lidar2map/internal/lidar/l6objects"
	"github.com/banshee-data/lidar2map/internal/monitoring"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// TileState is the lifecycle of one tile.
type TileState int

const (
	TilePending TileState = iota
	TileRasterizing
	TileContouring
	TileMerging
	TileDone
	TileFailed
)

func (s TileState) String() string {
	switch s {
	case TilePending:
		return "pending"
	case TileRasterizing:
		return "rasterizing"
	case TileContouring:
		return "contouring"
	case TileMerging:
		return "merging"
	case TileDone:
		return "done"
	case TileFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TileResult is the outcome of ProcessTile. Objects holds what the tile
// appended to the document.
type TileResult struct {
	Tile     l2tiles.Tile
	State    TileState
	Points   int
	Objects  []l6objects.Object
	Duration time.Duration
	Err      error
}

// batch is one symbol's output from one feature class.
type batch struct {
	sym  l6objects.Symbol
	objs []l6objects.Object
}

// tileRasters holds the derived fields one tile works from.
type tileRasters struct {
	elevation  *l3grid.Grid
	smoothed   *l3grid.Grid
	vegetation *l3grid.Grid
	intensity  *l3grid.Grid
}

type tileRun struct {
	tile   l2tiles.Tile
	params Params
	sink   monitoring.Sink
	state  TileState
	hull   orb.Ring
	cell   float64
}

func (r *tileRun) advance(s TileState) {
	tracef("tile %s: %s -> %s", r.tile.ID(), r.state, s)
	r.state = s
}

// warn surfaces a recoverable problem without failing the tile.
func (r *tileRun) warn(err error) {
	opsf("tile %s: %v", r.tile.ID(), err)
	r.sink.Send(monitoring.ErrorEvent(fmt.Errorf("tile %s: %w", r.tile.ID(), err), false))
}

func (r *tileRun) tags(extra ...l6objects.Tag) []l6objects.Tag {
	tags := append([]l6objects.Tag(nil), extra...)
	tags = append(tags,
		l6objects.Tag{Key: l6objects.TagGenerator, Value: r.params.Generator},
		l6objects.Tag{Key: l6objects.TagTile, Value: r.tile.ID()},
	)
	return tags
}

// ProcessTile turns the points of one tile into map objects and appends
// them to doc. All raster and vector work happens on tile-local data; the
// document is only locked to reserve and append each symbol batch.
//
// A tile without ground points fails with ErrNoGroundPoints. A poisoned
// document fails with ErrPoisonedSharedState. ctx is checked once, before
// any work starts.
func ProcessTile(ctx context.Context, tile l2tiles.Tile, points []l1points.Point, p Params, doc *l6objects.Document, sink monitoring.Sink) (TileResult, error) {
	if sink == nil {
		sink = monitoring.NopSink{}
	}
	run := &tileRun{tile: tile, params: p, sink: sink, state: TilePending}
	res := TileResult{Tile: tile, State: TilePending, Points: len(points)}
	fail := func(err error) (TileResult, error) {
		run.advance(TileFailed)
		res.State = TileFailed
		res.Err = err
		return res, err
	}

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res, err
	}

	run.advance(TileRasterizing)
	rasters, err := run.rasterize(points)
	if err != nil {
		return fail(err)
	}

	run.advance(TileContouring)
	batches := run.contour(rasters)

	run.advance(TileMerging)
	for _, b := range batches {
		if len(b.objs) == 0 {
			continue
		}
		err := doc.Update(func(w l6objects.Writer) error {
			w.ReserveCapacity(b.sym, len(b.objs))
			for _, obj := range b.objs {
				if err := w.Add(obj); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, l6objects.ErrPoisoned) {
				err = fmt.Errorf("%w: %w", ErrPoisonedSharedState, err)
			}
			return fail(fmt.Errorf("tile %s: append %s: %w", tile.ID(), b.sym, err))
		}
		res.Objects = append(res.Objects, b.objs...)
	}

	run.advance(TileDone)
	res.State = TileDone
	diagf("tile %s: %d points, %d objects", tile.ID(), len(points), len(res.Objects))
	return res, nil
}

func (r *tileRun) rasterize(points []l1points.Point) (*tileRasters, error) {
	p := r.params
	rast, err := l3grid.NewRasterizer(r.tile.Bounds, p.GridSize)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", r.tile.ID(), err)
	}
	rast.AddAll(points)
	if rast.GroundCount() == 0 {
		return nil, fmt.Errorf("tile %s: %w", r.tile.ID(), ErrNoGroundPoints)
	}

	xy := make([]orb.Point, 0, len(points))
	for _, pt := range points {
		if r.tile.Bounds.Contains(pt.XY()) {
			xy = append(xy, pt.XY())
		}
	}
	r.hull = l5polygons.ConvexHull(xy)

	// Fill closes small gaps; larger ones stay NoData and contour lines stop
	// at their rim. Cells past the tile bounds are masked after the fill so
	// nothing is extrapolated into them.
	elev, remaining := l3grid.FillNoData(rast.Grid(l3grid.FieldElevation), p.FillIterations)
	elev = elev.Within(r.tile.Bounds)
	if remaining > 0 {
		tracef("tile %s: %d elevation cells without ground after fill", r.tile.ID(), remaining)
	}
	if r.hull == nil {
		r.hull = l5polygons.BoundRing(elev.Bound())
	}
	r.cell = elev.CellSize

	out := &tileRasters{
		elevation: elev,
		smoothed:  l3grid.Smoothen(elev, p.SmoothingRadius, p.SmoothingIterations),
	}
	if p.EnableGreen || p.EnableOpenLand {
		out.vegetation = l3grid.Smoothen(rast.Grid(l3grid.FieldVegetationRatio).Within(r.tile.Bounds), p.SmoothingRadius, p.SmoothingIterations)
	}
	if p.EnableIntensity && len(p.IntensityBands) > 0 {
		out.intensity = l3grid.Smoothen(rast.Grid(l3grid.FieldIntensity).Within(r.tile.Bounds), p.SmoothingRadius, p.SmoothingIterations)
	}
	return out, nil
}

// contour runs every enabled feature class. Classes are independent; the
// order here only fixes the order batches reach the document.
func (r *tileRun) contour(rs *tileRasters) []batch {
	p := r.params
	var out []batch
	out = append(out, r.contourLadder(rs.smoothed)...)
	if p.EnableBasemap && p.BasemapInterval > 0 {
		out = append(out, r.basemap(rs.elevation))
	}
	if p.EnableCliffs {
		out = append(out, r.cliffs(rs.elevation)...)
	}
	if p.EnableGreen && rs.vegetation != nil {
		out = append(out, r.green(rs.vegetation)...)
	}
	if p.EnableOpenLand && rs.vegetation != nil {
		out = append(out, r.openLand(rs.vegetation))
	}
	if rs.intensity != nil {
		out = append(out, r.intensityBands(rs.intensity)...)
	}
	return out
}

func (r *tileRun) contourLadder(g *l3grid.Grid) []batch {
	min, max, ok := g.MinMax()
	if !ok {
		return nil
	}
	contours := batch{sym: l6objects.SymbolContour}
	index := batch{sym: l6objects.SymbolIndexContour}
	for _, level := range l4contours.Levels(min, max, r.params.ContourInterval) {
		if r.params.IsIndexLevel(level) {
			index.objs = append(index.objs, r.lines(g, level, l6objects.SymbolIndexContour)...)
		} else {
			contours.objs = append(contours.objs, r.lines(g, level, l6objects.SymbolContour)...)
		}
	}
	return []batch{contours, index}
}

func (r *tileRun) basemap(g *l3grid.Grid) batch {
	b := batch{sym: l6objects.SymbolBasemapContour}
	min, max, ok := g.MinMax()
	if !ok {
		return b
	}
	for _, level := range l4contours.Levels(min, max, r.params.BasemapInterval) {
		b.objs = append(b.objs, r.lines(g, level, l6objects.SymbolBasemapContour)...)
	}
	return b
}

// lines contours g at level and returns the clipped, simplified pieces as
// line objects tagged with their elevation. Lines break at NoData.
func (r *tileRun) lines(g *l3grid.Grid, level float64, sym l6objects.Symbol) []l6objects.Object {
	set := l4contours.IsoLines(g, level)
	if set.TouchesNoData {
		tracef("tile %s: level %g broken at missing ground", r.tile.ID(), level)
	}
	elevation := l6objects.Tag{Key: l6objects.TagElevation, Value: strconv.FormatFloat(level, 'f', -1, 64)}
	var out []l6objects.Object
	for _, c := range set.Contours {
		for _, piece := range l5polygons.ClipLine(c.Points, r.tile.Cut) {
			ls := l5polygons.SimplifyLine(piece, r.params.SimplifyTolerance)
			if len(ls) < 2 {
				continue
			}
			out = append(out, l6objects.NewLine(sym, ls, r.tags(elevation)...))
		}
	}
	return out
}

// areas builds the clipped, simplified polygons of the region where g is at
// or above iso.
func (r *tileRun) areas(g *l3grid.Grid, iso, minArea float64) orb.MultiPolygon {
	set := l4contours.ClosedContours(g, iso)
	hint := l5polygons.HintFor(g.Representative(), iso)
	mp, rep, err := l5polygons.FromContours(set.Contours, r.hull, minArea, hint)
	if err != nil {
		r.warn(err)
	}
	tracef("tile %s: iso %g: %d exteriors, %d holes, %d noise, %d orphans", r.tile.ID(), iso, rep.Exteriors, rep.Holes, rep.Noise, rep.Orphans)
	mp = l5polygons.ClipPolygons(mp, r.tile.Cut, minArea)
	return l5polygons.SimplifyPolygons(mp, r.params.SimplifyTolerance, minArea)
}

func (r *tileRun) areaBatch(sym l6objects.Symbol, mp orb.MultiPolygon) batch {
	b := batch{sym: sym, objs: make([]l6objects.Object, 0, len(mp))}
	for _, poly := range mp {
		b.objs = append(b.objs, l6objects.NewArea(sym, poly, r.tags()...))
	}
	return b
}

// cliffs maps steep slope. Steep patches smaller than BoulderMaxArea become
// boulder points at their centroid.
func (r *tileRun) cliffs(elev *l3grid.Grid) []batch {
	p := r.params
	slope := l3grid.Slope(elev, p.SlopeRadius)
	// Two cells is the smallest patch slope can resolve.
	minPatch := 2 * r.cell * r.cell
	cliffs := batch{sym: l6objects.SymbolCliff}
	boulders := batch{sym: l6objects.SymbolBoulder}
	for _, poly := range r.areas(slope, p.CliffSlopeDegrees, minPatch) {
		area := l5polygons.Area(orb.MultiPolygon{poly})
		switch {
		case area < p.BoulderMaxArea:
			c, _ := planar.CentroidArea(poly)
			if !r.tile.Cut.Contains(c) {
				continue
			}
			boulders.objs = append(boulders.objs, l6objects.NewPoint(l6objects.SymbolBoulder, c, r.tags()...))
		case area >= p.MinArea:
			cliffs.objs = append(cliffs.objs, l6objects.NewArea(l6objects.SymbolCliff, poly, r.tags()...))
		}
	}
	return []batch{cliffs, boulders}
}

// green maps vegetation bands. Each band covers [threshold_i, threshold_i+1)
// so bands never overlap.
func (r *tileRun) green(veg *l3grid.Grid) []batch {
	var out []batch
	for i := range r.params.GreenThresholds {
		sym, ok := l6objects.GreenSymbol(i)
		if !ok {
			break
		}
		low, high := r.params.greenBand(i)
		out = append(out, r.areaBatch(sym, r.areas(veg.Indicator(low, high), 0.5, r.params.MinArea)))
	}
	return out
}

// openLand maps cells whose vegetation ratio is at or below the threshold,
// by contouring the negated ratio.
func (r *tileRun) openLand(veg *l3grid.Grid) batch {
	negated := veg.Map(func(v float64) float64 { return -v })
	return r.areaBatch(l6objects.SymbolOpenLand, r.areas(negated, -r.params.OpenLandThreshold, r.params.MinArea))
}

func (r *tileRun) intensityBands(g *l3grid.Grid) []batch {
	var out []batch
	for _, band := range r.params.IntensityBands {
		if !(band.High > band.Low) || math.IsInf(band.Low, 0) {
			continue
		}
		out = append(out, r.areaBatch(band.Symbol, r.areas(g.Indicator(band.Low, band.High), 0.5, r.params.MinArea)))
	}
	return out
}
