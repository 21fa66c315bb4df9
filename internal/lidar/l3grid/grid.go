package l3grid

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// NoData marks a cell without a defined value.
var NoData = math.NaN()

// IsNoData reports whether v is the no-data sentinel.
func IsNoData(v float64) bool { return math.IsNaN(v) }

// Grid is a Size×Size raster of float64 values stored row-major.
type Grid struct {
	Size     int
	Origin   orb.Point
	CellSize float64
	Values   []float64
}

// New returns a grid with every cell set to NoData.
func New(size int, origin orb.Point, cellSize float64) *Grid {
	g := &Grid{Size: size, Origin: origin, CellSize: cellSize, Values: make([]float64, size*size)}
	g.Fill(NoData)
	return g
}

// ForBounds returns an empty grid of the given size whose square extent
// starts at b.Min and covers the longer side of b.
func ForBounds(b orb.Bound, size int) (*Grid, error) {
	if size < 2 {
		return nil, fmt.Errorf("grid size %d: need at least 2", size)
	}
	side := math.Max(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1])
	if !(side > 0) {
		return nil, fmt.Errorf("grid bounds %v have no extent", b)
	}
	return New(size, b.Min, side/float64(size)), nil
}

// Fill sets every cell to v.
func (g *Grid) Fill(v float64) {
	for i := range g.Values {
		g.Values[i] = v
	}
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	out := *g
	out.Values = append([]float64(nil), g.Values...)
	return &out
}

// emptyLike returns a grid with the same geometry and every cell NoData.
func (g *Grid) emptyLike() *Grid { return New(g.Size, g.Origin, g.CellSize) }

// InBounds reports whether (r, c) addresses a cell.
func (g *Grid) InBounds(r, c int) bool { return r >= 0 && c >= 0 && r < g.Size && c < g.Size }

func (g *Grid) At(r, c int) float64     { return g.Values[r*g.Size+c] }
func (g *Grid) Set(r, c int, v float64) { g.Values[r*g.Size+c] = v }

// CellOf returns the cell containing pt. Points on the far edge of the grid
// belong to the last row or column.
func (g *Grid) CellOf(pt orb.Point) (r, c int, ok bool) {
	fc := (pt[0] - g.Origin[0]) / g.CellSize
	fr := (pt[1] - g.Origin[1]) / g.CellSize
	if fc < 0 || fr < 0 || fc > float64(g.Size) || fr > float64(g.Size) {
		return 0, 0, false
	}
	c, r = int(fc), int(fr)
	if c == g.Size {
		c--
	}
	if r == g.Size {
		r--
	}
	return r, c, true
}

// CellCenter returns the world position of the center of cell (r, c).
func (g *Grid) CellCenter(r, c int) orb.Point {
	return orb.Point{
		g.Origin[0] + (float64(c)+0.5)*g.CellSize,
		g.Origin[1] + (float64(r)+0.5)*g.CellSize,
	}
}

// Bound is the world extent of the grid.
func (g *Grid) Bound() orb.Bound {
	side := float64(g.Size) * g.CellSize
	return orb.Bound{Min: g.Origin, Max: orb.Point{g.Origin[0] + side, g.Origin[1] + side}}
}

// ValidCount returns the number of cells holding data.
func (g *Grid) ValidCount() int {
	n := 0
	for _, v := range g.Values {
		if !IsNoData(v) {
			n++
		}
	}
	return n
}

// MinMax returns the range of valid values; ok is false for an all-NoData grid.
func (g *Grid) MinMax() (min, max float64, ok bool) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range g.Values {
		if IsNoData(v) {
			continue
		}
		ok = true
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	return min, max, ok
}

// Sample interpolates bilinearly between the four cell centers around pt.
// If any of them is NoData the nearest cell value is returned instead.
// Points outside the grid sample as NoData.
func (g *Grid) Sample(pt orb.Point) float64 {
	r0, c0, ok := g.CellOf(pt)
	if !ok {
		return NoData
	}
	fx := (pt[0]-g.Origin[0])/g.CellSize - 0.5
	fy := (pt[1]-g.Origin[1])/g.CellSize - 0.5
	cl, rl := int(math.Floor(fx)), int(math.Floor(fy))
	tx, ty := fx-float64(cl), fy-float64(rl)

	clamp := func(i int) int {
		if i < 0 {
			return 0
		}
		if i >= g.Size {
			return g.Size - 1
		}
		return i
	}
	c1, c2, r1, r2 := clamp(cl), clamp(cl+1), clamp(rl), clamp(rl+1)
	v11, v21, v12, v22 := g.At(r1, c1), g.At(r1, c2), g.At(r2, c1), g.At(r2, c2)
	if IsNoData(v11) || IsNoData(v21) || IsNoData(v12) || IsNoData(v22) {
		return g.At(r0, c0)
	}
	bottom := v11*(1-tx) + v21*tx
	top := v12*(1-tx) + v22*tx
	return bottom*(1-ty) + top*ty
}

// Representative returns a deterministic valid sample: the center cell if it
// holds data, otherwise the first valid cell in row-major order. It returns
// NoData for an all-NoData grid.
func (g *Grid) Representative() float64 {
	mid := g.Size / 2
	if v := g.At(mid, mid); !IsNoData(v) {
		return v
	}
	for _, v := range g.Values {
		if !IsNoData(v) {
			return v
		}
	}
	return NoData
}

// Map returns a new grid with fn applied to every valid cell.
func (g *Grid) Map(fn func(float64) float64) *Grid {
	out := g.emptyLike()
	for i, v := range g.Values {
		if !IsNoData(v) {
			out.Values[i] = fn(v)
		}
	}
	return out
}

// Within returns a copy of g with every cell whose centre lies outside b set
// to NoData. ForBounds grids of non-square bounds carry such a strip.
func (g *Grid) Within(b orb.Bound) *Grid {
	out := g.Clone()
	for r := 0; r < g.Size; r++ {
		for c := 0; c < g.Size; c++ {
			if !b.Contains(g.CellCenter(r, c)) {
				out.Set(r, c, NoData)
			}
		}
	}
	return out
}

// Indicator returns a 0/1 grid marking cells with low <= v < high. NoData
// cells become 0 so band polygons never extend over missing data.
func (g *Grid) Indicator(low, high float64) *Grid {
	out := g.emptyLike()
	for i, v := range g.Values {
		if !IsNoData(v) && v >= low && v < high {
			out.Values[i] = 1
		} else {
			out.Values[i] = 0
		}
	}
	return out
}
