package l4contours

import (
	"github.com/banshee-data/lidar2map/internal/lidar/l3grid"
	"github.com/paulmach/orb"
)

// Contour is one traced iso-line. Closed contours repeat their first vertex
// at the end.
type Contour struct {
	Points orb.LineString
	Closed bool
}

// ContourSet is the result of tracing one isovalue.
type ContourSet struct {
	Iso      float64
	Contours []Contour
	// TouchesNoData is set when any traced segment borders a NoData cell.
	TouchesNoData bool
}

// Closed returns the closed contours only.
func (s ContourSet) Closed() []Contour {
	var out []Contour
	for _, c := range s.Contours {
		if c.Closed {
			out = append(out, c)
		}
	}
	return out
}

const noEdge = -1

// Square sides.
const (
	sideB = iota
	sideR
	sideT
	sideL
)

type link struct{ from, to int }

// caseLinks lists the oriented (from, to) side pairs for each non-saddle
// marching-squares case. Corner bits are bl=1, br=2, tr=4, tl=8.
var caseLinks = [16][]link{
	1:  {{sideB, sideL}},
	2:  {{sideR, sideB}},
	3:  {{sideR, sideL}},
	4:  {{sideT, sideR}},
	6:  {{sideT, sideB}},
	7:  {{sideT, sideL}},
	8:  {{sideL, sideT}},
	9:  {{sideB, sideT}},
	11: {{sideR, sideT}},
	12: {{sideL, sideR}},
	13: {{sideB, sideR}},
	14: {{sideL, sideB}},
}

// Saddle cases, resolved by whether the square's center is above.
var (
	saddle5Above  = []link{{sideB, sideR}, {sideT, sideL}}
	saddle5Below  = []link{{sideB, sideL}, {sideT, sideR}}
	saddle10Above = []link{{sideL, sideB}, {sideR, sideT}}
	saddle10Below = []link{{sideR, sideB}, {sideL, sideT}}
)

// tracer holds the dense edge adjacency for one grid and isovalue.
type tracer struct {
	g     *l3grid.Grid
	iso   float64
	s     int
	nH    int
	out   []int
	hasIn []bool
}

func above(v, iso float64) bool { return !l3grid.IsNoData(v) && v >= iso }

func (t *tracer) hEdge(r, c int) int { return r*(t.s-1) + c }
func (t *tracer) vEdge(r, c int) int { return t.nH + r*t.s + c }

func (t *tracer) sideEdge(r, c, side int) int {
	switch side {
	case sideB:
		return t.hEdge(r, c)
	case sideT:
		return t.hEdge(r+1, c)
	case sideL:
		return t.vEdge(r, c)
	default:
		return t.vEdge(r, c+1)
	}
}

// endpoints returns the two grid nodes an edge joins.
func (t *tracer) endpoints(e int) (r0, c0, r1, c1 int) {
	if e < t.nH {
		r0, c0 = e/(t.s-1), e%(t.s-1)
		return r0, c0, r0, c0 + 1
	}
	e -= t.nH
	r0, c0 = e/t.s, e%t.s
	return r0, c0, r0 + 1, c0
}

// crossing interpolates the iso crossing on edge e. An edge with a NoData
// end crosses at its midpoint.
func (t *tracer) crossing(e int) orb.Point {
	r0, c0, r1, c1 := t.endpoints(e)
	p0, p1 := t.g.CellCenter(r0, c0), t.g.CellCenter(r1, c1)
	v0, v1 := t.g.At(r0, c0), t.g.At(r1, c1)
	f := 0.5
	if !l3grid.IsNoData(v0) && !l3grid.IsNoData(v1) && v1 != v0 {
		f = (t.iso - v0) / (v1 - v0)
		if f < 0 {
			f = 0
		} else if f > 1 {
			f = 1
		}
	}
	return orb.Point{p0[0] + f*(p1[0]-p0[0]), p0[1] + f*(p1[1]-p0[1])}
}

// MarchingSquares traces every iso-line of g at iso. A value equal to iso
// counts as above; NoData counts as below. Segments are linked through an
// array indexed by grid edge, so the output only depends on the grid.
// Open lines are emitted first, ordered by their starting edge, then closed
// loops ordered by their smallest unvisited edge.
func MarchingSquares(g *l3grid.Grid, iso float64) ContourSet {
	return march(g, iso, false)
}

// IsoLines traces g at iso like MarchingSquares but emits nothing for a
// square with a NoData corner, so lines stop at the rim of a data gap
// instead of circling it. TouchesNoData reports whether any square was
// dropped next to valid data.
func IsoLines(g *l3grid.Grid, iso float64) ContourSet {
	return march(g, iso, true)
}

func march(g *l3grid.Grid, iso float64, skipNoData bool) ContourSet {
	set := ContourSet{Iso: iso}
	if g == nil || g.Size < 2 {
		return set
	}
	s := g.Size
	t := &tracer{g: g, iso: iso, s: s, nH: s * (s - 1)}
	nEdges := 2 * s * (s - 1)
	t.out = make([]int, nEdges)
	t.hasIn = make([]bool, nEdges)
	for i := range t.out {
		t.out[i] = noEdge
	}

	for r := 0; r < s-1; r++ {
		for c := 0; c < s-1; c++ {
			bl, br := g.At(r, c), g.At(r, c+1)
			tr, tl := g.At(r+1, c+1), g.At(r+1, c)
			gap := l3grid.IsNoData(bl) || l3grid.IsNoData(br) || l3grid.IsNoData(tr) || l3grid.IsNoData(tl)
			if gap && skipNoData {
				if !(l3grid.IsNoData(bl) && l3grid.IsNoData(br) && l3grid.IsNoData(tr) && l3grid.IsNoData(tl)) {
					set.TouchesNoData = true
				}
				continue
			}
			idx := 0
			if above(bl, iso) {
				idx |= 1
			}
			if above(br, iso) {
				idx |= 2
			}
			if above(tr, iso) {
				idx |= 4
			}
			if above(tl, iso) {
				idx |= 8
			}
			if idx == 0 || idx == 15 {
				continue
			}

			links := caseLinks[idx]
			if idx == 5 || idx == 10 {
				center := (bl + br + tr + tl) / 4
				centerAbove := above(center, iso)
				switch {
				case idx == 5 && centerAbove:
					links = saddle5Above
				case idx == 5:
					links = saddle5Below
				case centerAbove:
					links = saddle10Above
				default:
					links = saddle10Below
				}
			}
			if gap {
				set.TouchesNoData = true
			}
			for _, l := range links {
				from, to := t.sideEdge(r, c, l.from), t.sideEdge(r, c, l.to)
				t.out[from] = to
				t.hasIn[to] = true
			}
		}
	}

	visited := make([]bool, nEdges)
	for e := 0; e < nEdges; e++ {
		if t.out[e] != noEdge && !t.hasIn[e] {
			set.Contours = append(set.Contours, t.trace(e, visited))
		}
	}
	for e := 0; e < nEdges; e++ {
		if t.out[e] != noEdge && !visited[e] {
			set.Contours = append(set.Contours, t.trace(e, visited))
		}
	}
	return set
}

func (t *tracer) trace(start int, visited []bool) Contour {
	line := orb.LineString{t.crossing(start)}
	visited[start] = true
	e := t.out[start]
	for e != noEdge {
		if e == start {
			line = append(line, line[0])
			return Contour{Points: line, Closed: true}
		}
		line = append(line, t.crossing(e))
		visited[e] = true
		e = t.out[e]
	}
	return Contour{Points: line}
}

// ClosedContours traces g surrounded by one ring of NoData cells, so every
// contour closes. Regions that are above iso at the grid border close
// along the outer edge of the original grid.
func ClosedContours(g *l3grid.Grid, iso float64) ContourSet {
	if g == nil || g.Size < 1 {
		return ContourSet{Iso: iso}
	}
	padded := l3grid.New(g.Size+2, orb.Point{g.Origin[0] - g.CellSize, g.Origin[1] - g.CellSize}, g.CellSize)
	for r := 0; r < g.Size; r++ {
		copy(padded.Values[(r+1)*padded.Size+1:(r+1)*padded.Size+1+g.Size], g.Values[r*g.Size:(r+1)*g.Size])
	}
	return MarchingSquares(padded, iso)
}

// Levels returns the isovalues k·interval (k integer) within [min, max].
func Levels(min, max, interval float64) []float64 {
	if !(interval > 0) || max < min {
		return nil
	}
	var out []float64
	k := int64(min / interval)
	if float64(k)*interval < min {
		k++
	}
	for ; float64(k)*interval <= max; k++ {
		out = append(out, float64(k)*interval)
	}
	return out
}
