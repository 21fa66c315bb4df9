package l3grid

import (
	"fmt"
	"math"

	"github.com/banshee-data/lidar2map/internal/lidar/l1points"
	"github.com/paulmach/orb"
)

// Field selects the per-cell statistic a grid holds.
type Field int

const (
	// FieldElevation is the mean elevation of ground points.
	FieldElevation Field = iota
	// FieldElevationMax is the highest return of any class.
	FieldElevationMax
	// FieldDensity is the number of points in the cell.
	FieldDensity
	// FieldIntensity is the mean return intensity.
	FieldIntensity
	// FieldVegetationRatio is the share of vegetation-class points.
	FieldVegetationRatio
)

func (f Field) String() string {
	switch f {
	case FieldElevation:
		return "elevation"
	case FieldElevationMax:
		return "elevation_max"
	case FieldDensity:
		return "density"
	case FieldIntensity:
		return "intensity"
	case FieldVegetationRatio:
		return "vegetation_ratio"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// cellAcc accumulates the raw sums behind every field for one cell.
type cellAcc struct {
	count      uint32
	ground     uint32
	vegetation uint32
	groundZSum float64
	maxZ       float64
	intensity  float64
}

// Rasterizer accumulates points into cells once and derives any Field from
// the sums. It is owned by a single tile worker.
type Rasterizer struct {
	geom    *Grid
	cells   []cellAcc
	points  int
	grounds int
}

// NewRasterizer prepares a rasterizer covering bounds with size×size cells.
func NewRasterizer(bounds orb.Bound, size int) (*Rasterizer, error) {
	g, err := ForBounds(bounds, size)
	if err != nil {
		return nil, err
	}
	cells := make([]cellAcc, size*size)
	for i := range cells {
		cells[i].maxZ = math.Inf(-1)
	}
	return &Rasterizer{geom: g, cells: cells}, nil
}

// Add records p; points outside the grid are ignored. It reports whether the
// point was kept.
func (r *Rasterizer) Add(p l1points.Point) bool {
	row, col, ok := r.geom.CellOf(p.XY())
	if !ok {
		return false
	}
	c := &r.cells[row*r.geom.Size+col]
	c.count++
	c.intensity += float64(p.Intensity)
	if p.Z > c.maxZ {
		c.maxZ = p.Z
	}
	if p.IsGround() {
		c.ground++
		c.groundZSum += p.Z
		r.grounds++
	}
	if p.IsVegetation() {
		c.vegetation++
	}
	r.points++
	return true
}

// AddAll records every point.
func (r *Rasterizer) AddAll(points []l1points.Point) {
	for _, p := range points {
		r.Add(p)
	}
}

// PointCount is the number of points that landed in the grid.
func (r *Rasterizer) PointCount() int { return r.points }

// GroundCount is the number of ground points that landed in the grid.
func (r *Rasterizer) GroundCount() int { return r.grounds }

// Grid derives a fresh grid for field. Count-type fields (density and
// vegetation ratio) hold 0 for empty cells; the others hold NoData.
func (r *Rasterizer) Grid(field Field) *Grid {
	out := r.geom.emptyLike()
	for i, c := range r.cells {
		switch field {
		case FieldElevation:
			if c.ground > 0 {
				out.Values[i] = c.groundZSum / float64(c.ground)
			}
		case FieldElevationMax:
			if c.count > 0 {
				out.Values[i] = c.maxZ
			}
		case FieldDensity:
			out.Values[i] = float64(c.count)
		case FieldIntensity:
			if c.count > 0 {
				out.Values[i] = c.intensity / float64(c.count)
			}
		case FieldVegetationRatio:
			out.Values[i] = 0
			if c.count > 0 {
				out.Values[i] = float64(c.vegetation) / float64(c.count)
			}
		}
	}
	return out
}

// Rasterize builds a single field grid from points.
func Rasterize(points []l1points.Point, bounds orb.Bound, size int, field Field) (*Grid, error) {
	r, err := NewRasterizer(bounds, size)
	if err != nil {
		return nil, err
	}
	r.AddAll(points)
	return r.Grid(field), nil
}
