package l6objects

import (
	"math"
	"sort"
	"strings"

	"github.com/paulmach/orb"
)

// MergeLines joins line objects of the same symbol whose endpoints lie
// within tolerance of each other, reconnecting features split at tile
// seams. Lines only merge when their tags match (the tile tag aside) and
// the join does not create a new self-intersection. Merging is
// orientation-preserving: a line's end only joins another line's start,
// and pieces that meet start-to-start or end-to-end stay separate. Contour
// pieces traced from one grid always share an orientation, so they join.
// The document must be frozen. The result depends only on the set of lines, not on the order in
// which tiles appended them. It returns the number of joins made.
func (d *Document) MergeLines(tolerance float64) (int, error) {
	merged := 0
	err := d.guard(func() error {
		if !d.frozen {
			return ErrNotFrozen
		}
		for _, sym := range d.sortedSymbolsLocked() {
			if sym.Kind() != KindLine {
				continue
			}
			objs, n := mergeSymbol(d.objects[sym], tolerance)
			d.objects[sym] = objs
			merged += n
		}
		return nil
	})
	return merged, err
}

type mergeLine struct {
	obj  *LineObject
	key  string
	dead bool
}

func (m *mergeLine) start() orb.Point { return m.obj.Line[0] }
func (m *mergeLine) end() orb.Point   { return m.obj.Line[len(m.obj.Line)-1] }

func (m *mergeLine) closed() bool {
	return len(m.obj.Line) > 2 && m.start() == m.end()
}

func mergeSymbol(objs []Object, tol float64) ([]Object, int) {
	lines := make([]*mergeLine, 0, len(objs))
	for _, o := range objs {
		if lo, ok := o.(*LineObject); ok && len(lo.Line) >= 2 {
			lines = append(lines, &mergeLine{obj: lo, key: lo.Tags.key()})
		}
	}
	sort.SliceStable(lines, func(i, j int) bool { return lineLess(lines[i], lines[j]) })

	idx := newEndpointIndex(tol)
	for i, l := range lines {
		idx.insert(l.start(), i)
		idx.insert(l.end(), i)
	}

	joins := 0
	for i, a := range lines {
		for !a.dead && !a.closed() {
			j := findPartner(lines, idx, i, tol)
			if j < 0 {
				break
			}
			b := lines[j]
			if j == i {
				// End meets own start: close the loop.
				a.obj.Line[len(a.obj.Line)-1] = a.obj.Line[0]
				joins++
				break
			}
			a.obj.Line = joinLines(a.obj.Line, b.obj.Line)
			a.obj.Tags = mergeTileTags(a.obj.Tags, b.obj.Tags)
			b.dead = true
			idx.insert(a.end(), i)
			joins++
		}
	}

	out := make([]Object, 0, len(objs))
	for _, o := range objs {
		if _, ok := o.(*LineObject); !ok {
			out = append(out, o)
		}
	}
	for _, l := range lines {
		if !l.dead {
			out = append(out, l.obj)
		}
	}
	return out, joins
}

// findPartner returns the nearest live line whose start lies within tol of
// line i's end, or i itself when the end returns to its own start.
func findPartner(lines []*mergeLine, idx *endpointIndex, i int, tol float64) int {
	a := lines[i]
	end := a.end()
	best, bestDist := -1, math.Inf(1)
	for _, j := range idx.near(end) {
		b := lines[j]
		if b.dead || b.key != a.key {
			continue
		}
		if j == i {
			if dd := dist(end, a.start()); len(a.obj.Line) > 3 && dd <= tol && dd < bestDist {
				best, bestDist = j, dd
			}
			continue
		}
		if b.closed() {
			continue
		}
		if dd := dist(end, b.start()); dd <= tol && dd < bestDist && !createsCrossing(a.obj.Line, b.obj.Line) {
			best, bestDist = j, dd
		}
	}
	return best
}

// joinLines appends b to a. Endpoints that coincide are shared; otherwise
// both are replaced by their midpoint.
func joinLines(a, b orb.LineString) orb.LineString {
	out := make(orb.LineString, 0, len(a)+len(b)-1)
	out = append(out, a[:len(a)-1]...)
	ae, bs := a[len(a)-1], b[0]
	out = append(out, orb.Point{(ae[0] + bs[0]) / 2, (ae[1] + bs[1]) / 2})
	return append(out, b[1:]...)
}

// createsCrossing reports whether joining b after a introduces an
// intersection between a segment of a and a segment of b. The segments
// adjacent to the join are compared through the joined vertex.
func createsCrossing(a, b orb.LineString) bool {
	joined := joinLines(a, b)
	split := len(a) - 1 // index of the join vertex in joined
	ab := a.Bound()
	bb := b.Bound()
	if !ab.Intersects(bb) {
		return false
	}
	for i := 0; i < split; i++ {
		p1, p2 := joined[i], joined[i+1]
		if !segBound(p1, p2).Intersects(bb) {
			continue
		}
		for k := split; k+1 < len(joined); k++ {
			if k == i+1 {
				continue // adjacent at the join vertex
			}
			if i == 0 && k+1 == len(joined)-1 && joined[0] == joined[len(joined)-1] {
				continue // closing a loop
			}
			if segmentsIntersect(p1, p2, joined[k], joined[k+1]) {
				return true
			}
		}
	}
	return false
}

func segBound(p, q orb.Point) orb.Bound {
	return orb.Bound{Min: p, Max: p}.Extend(q)
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

func segmentsIntersect(p1, p2, p3, p4 orb.Point) bool {
	d1 := orient(p3, p4, p1)
	d2 := orient(p3, p4, p2)
	d3 := orient(p1, p2, p3)
	d4 := orient(p1, p2, p4)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(p3, p4, p1)) || (d2 == 0 && onSegment(p3, p4, p2)) ||
		(d3 == 0 && onSegment(p1, p2, p3)) || (d4 == 0 && onSegment(p1, p2, p4))
}

func dist(a, b orb.Point) float64 { return math.Hypot(a[0]-b[0], a[1]-b[1]) }

// mergeTileTags keeps a's tags and records both tiles in the tile tag.
func mergeTileTags(a, b Tags) Tags {
	at, aok := a.Get(TagTile)
	bt, bok := b.Get(TagTile)
	if !aok && !bok {
		return a
	}
	set := map[string]bool{}
	for _, v := range []string{at, bt} {
		for _, part := range strings.Split(v, ";") {
			if part != "" {
				set[part] = true
			}
		}
	}
	parts := make([]string, 0, len(set))
	for p := range set {
		parts = append(parts, p)
	}
	sort.Strings(parts)
	return a.Set(TagTile, strings.Join(parts, ";"))
}

// lineLess is the canonical merge order: tag key, then first vertex, then
// last vertex, then vertex count.
func lineLess(a, b *mergeLine) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	if c := comparePoints(a.start(), b.start()); c != 0 {
		return c < 0
	}
	if c := comparePoints(a.end(), b.end()); c != 0 {
		return c < 0
	}
	return len(a.obj.Line) < len(b.obj.Line)
}

func comparePoints(p, q orb.Point) int {
	switch {
	case p[0] < q[0]:
		return -1
	case p[0] > q[0]:
		return 1
	case p[1] < q[1]:
		return -1
	case p[1] > q[1]:
		return 1
	}
	return 0
}

// endpointIndex is a uniform hash grid over line endpoints with cell size
// equal to the merge tolerance, so a tolerance query touches 3×3 cells.
type endpointIndex struct {
	cell  float64
	cells map[[2]int64][]int
}

func newEndpointIndex(tol float64) *endpointIndex {
	return &endpointIndex{cell: math.Max(tol, 1e-9), cells: make(map[[2]int64][]int)}
}

func (e *endpointIndex) keyOf(p orb.Point) [2]int64 {
	return [2]int64{int64(math.Floor(p[0] / e.cell)), int64(math.Floor(p[1] / e.cell))}
}

func (e *endpointIndex) insert(p orb.Point, id int) {
	k := e.keyOf(p)
	e.cells[k] = append(e.cells[k], id)
}

// near returns the ids stored in the cells around p, ascending and unique.
func (e *endpointIndex) near(p orb.Point) []int {
	k := e.keyOf(p)
	var out []int
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			out = append(out, e.cells[[2]int64{k[0] + dx, k[1] + dy}]...)
		}
	}
	sort.Ints(out)
	uniq := out[:0]
	for i, id := range out {
		if i == 0 || id != out[i-1] {
			uniq = append(uniq, id)
		}
	}
	return uniq
}
