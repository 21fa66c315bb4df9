package l2tiles

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Errors returned by Compute for malformed input.
var (
	ErrEmptyBounds   = errors.New("tiling bounds have zero area")
	ErrInvalidSize   = errors.New("tile size must be positive")
	ErrInvalidMargin = errors.New("tile margin must be in [0, tile size)")
)

// Neighborhood records on which sides more survey data exists beyond the
// tiled area. Edge tiles only extend past the area on flagged sides.
type Neighborhood uint8

const (
	NeighborAbove Neighborhood = 1 << iota
	NeighborBelow
	NeighborLeft
	NeighborRight
)

// Has reports whether every flag in f is set.
func (n Neighborhood) Has(f Neighborhood) bool { return n&f == f }

func (n Neighborhood) String() string {
	if n == 0 {
		return "none"
	}
	s := ""
	for _, e := range []struct {
		f    Neighborhood
		name string
	}{{NeighborAbove, "above"}, {NeighborBelow, "below"}, {NeighborLeft, "left"}, {NeighborRight, "right"}} {
		if n.Has(e.f) {
			if s != "" {
				s += "|"
			}
			s += e.name
		}
	}
	return s
}

// NeighborhoodOf flags each side of area past which data still extends.
func NeighborhoodOf(area, data orb.Bound) Neighborhood {
	var n Neighborhood
	if data.Max[1] > area.Max[1] {
		n |= NeighborAbove
	}
	if data.Min[1] < area.Min[1] {
		n |= NeighborBelow
	}
	if data.Min[0] < area.Min[0] {
		n |= NeighborLeft
	}
	if data.Max[0] > area.Max[0] {
		n |= NeighborRight
	}
	return n
}

// Params configures the tiler. Size is the tile side length T and Margin the
// minimum overlap M between adjacent tiles, both in working CRS units.
type Params struct {
	Size   float64
	Margin float64
}

// Tile is one unit of work. Bounds is the overlapping region whose points
// are rasterised; Cut is the exclusive region its output is clipped to.
// Row 0 is the southernmost row and Col 0 the westernmost column.
type Tile struct {
	Index  int
	Row    int
	Col    int
	Bounds orb.Bound
	Cut    orb.Bound
}

// ID is a stable human-readable tile name.
func (t Tile) ID() string { return fmt.Sprintf("r%03dc%03d", t.Row, t.Col) }

// axisSpan is the 1-D tiling of one axis.
type axisSpan struct {
	lo, hi       []float64 // tile extents
	cutLo, cutHi []float64 // cut extents
}

// Count returns the number of tiles along an axis of the given width:
// max(2, ceil((width - M) / (T - M))).
func Count(width float64, p Params) int {
	n := int(math.Ceil((width - p.Margin) / (p.Size - p.Margin)))
	if n < 2 {
		n = 2
	}
	return n
}

// tileAxis lays out n tiles of size T across [min, max]. The step
// (width - T) / (n - 1) spreads the overlap evenly over the interior seams;
// it is negative when the area is narrower than one tile, in which case
// tiles overlap entirely and seams still fall at the overlap midpoints.
// Outer edges extend by the margin only when lowNeighbor/highNeighbor is
// set.
func tileAxis(min, max float64, p Params, lowNeighbor, highNeighbor bool) axisSpan {
	width := max - min
	n := Count(width, p)
	step := (width - p.Size) / float64(n-1)

	a := axisSpan{
		lo:    make([]float64, n),
		hi:    make([]float64, n),
		cutLo: make([]float64, n),
		cutHi: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		start := min + float64(i)*step
		a.lo[i] = start
		a.hi[i] = start + p.Size
	}
	// Clamp to the area; the step may overshoot it in the degenerate case.
	for i := 0; i < n; i++ {
		a.lo[i] = math.Max(a.lo[i], min)
		a.hi[i] = math.Min(a.hi[i], max)
		if a.lo[i] > a.hi[i] {
			a.lo[i], a.hi[i] = min, max
		}
	}
	for i := 0; i < n; i++ {
		if i == 0 {
			a.cutLo[i] = min
		} else {
			a.cutLo[i] = a.cutHi[i-1]
		}
		if i == n-1 {
			a.cutHi[i] = max
		} else {
			a.cutHi[i] = min + width*float64(i+1)/float64(n)
			if step > 0 {
				// Seam at the midpoint of the overlap between tile i and i+1.
				a.cutHi[i] = (a.lo[i+1] + a.hi[i]) / 2
			}
		}
	}
	if lowNeighbor {
		a.lo[0] -= p.Margin
	}
	if highNeighbor {
		a.hi[n-1] += p.Margin
	}
	return a
}

// Compute tiles area with the given parameters and neighbour flags. The cut
// rectangles of the result partition area exactly: their union is area and
// no two overlap with positive area.
func Compute(area orb.Bound, n Neighborhood, p Params) ([]Tile, error) {
	if !(area.Max[0] > area.Min[0]) || !(area.Max[1] > area.Min[1]) {
		return nil, fmt.Errorf("%w: %v", ErrEmptyBounds, area)
	}
	if !(p.Size > 0) {
		return nil, fmt.Errorf("%w: %g", ErrInvalidSize, p.Size)
	}
	if p.Margin < 0 || p.Margin >= p.Size {
		return nil, fmt.Errorf("%w: margin %g, size %g", ErrInvalidMargin, p.Margin, p.Size)
	}

	xs := tileAxis(area.Min[0], area.Max[0], p, n.Has(NeighborLeft), n.Has(NeighborRight))
	ys := tileAxis(area.Min[1], area.Max[1], p, n.Has(NeighborBelow), n.Has(NeighborAbove))

	tiles := make([]Tile, 0, len(xs.lo)*len(ys.lo))
	for r := range ys.lo {
		for c := range xs.lo {
			tiles = append(tiles, Tile{
				Index: len(tiles),
				Row:   r,
				Col:   c,
				Bounds: orb.Bound{
					Min: orb.Point{xs.lo[c], ys.lo[r]},
					Max: orb.Point{xs.hi[c], ys.hi[r]},
				},
				Cut: orb.Bound{
					Min: orb.Point{xs.cutLo[c], ys.cutLo[r]},
					Max: orb.Point{xs.cutHi[c], ys.cutHi[r]},
				},
			})
		}
	}
	return tiles, nil
}
