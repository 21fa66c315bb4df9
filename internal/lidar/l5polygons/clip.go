package l5polygons

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/simplify"
)

// ClipPolygons clips mp to cut. Rings that collapse are dropped, exteriors
// whose clipped area falls below minArea are dropped with their holes, and
// winding is restored after clipping.
func ClipPolygons(mp orb.MultiPolygon, cut orb.Bound, minArea float64) orb.MultiPolygon {
	var out orb.MultiPolygon
	for _, p := range mp {
		if len(p) == 0 || !p.Bound().Intersects(cut) {
			continue
		}
		clipped := clip.Polygon(cut, p.Clone())
		if poly := cleanPolygon(clipped, minArea); poly != nil {
			out = append(out, poly)
		}
	}
	return out
}

// ClipLine clips ls to cut, returning the pieces that remain inside.
func ClipLine(ls orb.LineString, cut orb.Bound) orb.MultiLineString {
	if len(ls) < 2 || !ls.Bound().Intersects(cut) {
		return nil
	}
	var out orb.MultiLineString
	for _, part := range clip.LineString(cut, ls.Clone()) {
		if len(part) >= 2 {
			out = append(out, part)
		}
	}
	return out
}

// SimplifyPolygons applies Douglas-Peucker with tolerance to every ring and
// drops rings and polygons that degenerate. Rings are simplified between
// anchor vertices (see simplifyRing), so the result does not depend on
// which vertex a ring starts at.
func SimplifyPolygons(mp orb.MultiPolygon, tolerance, minArea float64) orb.MultiPolygon {
	if tolerance <= 0 {
		return mp
	}
	dp := simplify.DouglasPeucker(tolerance)
	var out orb.MultiPolygon
	for _, p := range mp {
		simplified := make(orb.Polygon, 0, len(p))
		for _, r := range p {
			simplified = append(simplified, simplifyRing(r, dp))
		}
		if poly := cleanPolygon(simplified, minArea); poly != nil {
			out = append(out, poly)
		}
	}
	return out
}

// simplifyRing runs dp on each stretch between consecutive anchors and
// joins the pieces. Anchors always survive, so corners of the ring are
// kept even when they are chamfered by less than the tolerance.
func simplifyRing(r orb.Ring, dp *simplify.DouglasPeuckerSimplifier) orb.Ring {
	ring, _ := CloseRing(r)
	n := len(ring) - 1
	if n < 4 {
		return ring
	}
	anchors := ringAnchors(ring[:n])
	if len(anchors) < 3 {
		return dp.Ring(ring.Clone())
	}
	out := make(orb.Ring, 0, n+1)
	for i, a := range anchors {
		b := anchors[(i+1)%len(anchors)]
		stretch := orb.LineString{ring[a]}
		for k := (a + 1) % n; ; k = (k + 1) % n {
			stretch = append(stretch, ring[k])
			if k == b {
				break
			}
		}
		s := dp.LineString(stretch)
		out = append(out, s[:len(s)-1]...)
	}
	return append(out, out[0])
}

// ringAnchors returns, in ring order, the indexes of the vertices that are
// extreme along x, y and both diagonals. Where several vertices tie for an
// extreme, both ends of the tie (measured across the direction) are kept.
func ringAnchors(pts []orb.Point) []int {
	dirs := [][2]orb.Point{
		{{1, 0}, {0, 1}},
		{{0, 1}, {1, 0}},
		{{1, 1}, {1, -1}},
		{{1, -1}, {1, 1}},
	}
	dot := func(p, d orb.Point) float64 { return p[0]*d[0] + p[1]*d[1] }
	marked := make([]bool, len(pts))
	for _, d := range dirs {
		along, across := d[0], d[1]
		lo, hi := dot(pts[0], along), dot(pts[0], along)
		for _, p := range pts[1:] {
			lo = math.Min(lo, dot(p, along))
			hi = math.Max(hi, dot(p, along))
		}
		eps := 1e-9 * math.Max(1, math.Max(math.Abs(lo), math.Abs(hi)))
		for _, ext := range []float64{lo, hi} {
			first, last := -1, -1
			for i, p := range pts {
				if math.Abs(dot(p, along)-ext) > eps {
					continue
				}
				if first < 0 || dot(p, across) < dot(pts[first], across) {
					first = i
				}
				if last < 0 || dot(p, across) > dot(pts[last], across) {
					last = i
				}
			}
			marked[first] = true
			marked[last] = true
		}
	}
	var out []int
	for i, m := range marked {
		if m {
			out = append(out, i)
		}
	}
	return out
}

// SimplifyLine applies Douglas-Peucker to a line, keeping its endpoints.
func SimplifyLine(ls orb.LineString, tolerance float64) orb.LineString {
	if tolerance <= 0 || len(ls) < 3 {
		return ls
	}
	if s, ok := simplify.DouglasPeucker(tolerance).Simplify(ls.Clone()).(orb.LineString); ok {
		return s
	}
	return ls
}

// cleanPolygon drops collapsed rings and restores winding. It returns nil
// when the exterior is gone or smaller than minArea.
func cleanPolygon(p orb.Polygon, minArea float64) orb.Polygon {
	if len(p) == 0 {
		return nil
	}
	ext, _ := CloseRing(p[0])
	if len(ext) < 4 || math.Abs(SignedArea(ext)) < math.Max(minArea, 1e-12) {
		return nil
	}
	out := orb.Polygon{Orient(ext, true)}
	for _, h := range p[1:] {
		h, _ = CloseRing(h)
		if len(h) < 4 || math.Abs(SignedArea(h)) < 1e-12 {
			continue
		}
		out = append(out, Orient(h, false))
	}
	return out
}

// Area is the exterior area minus the hole areas of a multipolygon.
func Area(mp orb.MultiPolygon) float64 {
	var a float64
	for _, p := range mp {
		for i, r := range p {
			if i == 0 {
				a += math.Abs(SignedArea(r))
			} else {
				a -= math.Abs(SignedArea(r))
			}
		}
	}
	return a
}
