package l5polygons

import (
	"sort"

	"github.com/paulmach/orb"
)

// SignedArea is the shoelace area of r; positive for counter-clockwise
// rings. The ring may or may not repeat its first vertex.
func SignedArea(r orb.Ring) float64 {
	n := len(r)
	if n < 3 {
		return 0
	}
	var a float64
	for i := 0; i < n; i++ {
		p, q := r[i], r[(i+1)%n]
		a += p[0]*q[1] - q[0]*p[1]
	}
	return a / 2
}

// CloseRing returns r with its first vertex repeated at the end, and whether
// it had to be added.
func CloseRing(r orb.Ring) (orb.Ring, bool) {
	if len(r) == 0 || r[0] == r[len(r)-1] {
		return r, false
	}
	return append(r, r[0]), true
}

// Orient returns r with the requested winding; ccw true for exteriors.
func Orient(r orb.Ring, ccw bool) orb.Ring {
	if (SignedArea(r) > 0) != ccw {
		rev := make(orb.Ring, len(r))
		for i, p := range r {
			rev[len(r)-1-i] = p
		}
		return rev
	}
	return r
}

// ConvexHull returns the counter-clockwise closed hull of pts using the
// monotone chain algorithm. Fewer than three distinct non-collinear points
// yield nil.
func ConvexHull(pts []orb.Point) orb.Ring {
	if len(pts) < 3 {
		return nil
	}
	sorted := append([]orb.Point(nil), pts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i][0] != sorted[j][0] {
			return sorted[i][0] < sorted[j][0]
		}
		return sorted[i][1] < sorted[j][1]
	})
	cross := func(o, a, b orb.Point) float64 {
		return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
	}

	hull := make([]orb.Point, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	// The last point repeats the first, closing the ring.
	if len(hull) < 4 {
		return nil
	}
	return orb.Ring(hull)
}

// BoundRing returns the counter-clockwise closed ring of b.
func BoundRing(b orb.Bound) orb.Ring {
	return orb.Ring{
		b.Min,
		{b.Max[0], b.Min[1]},
		b.Max,
		{b.Min[0], b.Max[1]},
		b.Min,
	}
}
