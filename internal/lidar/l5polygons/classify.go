package l5polygons

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/lidar2map/internal/lidar/l4contours"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrOrphanHole reports a hole contour that no exterior contains.
var ErrOrphanHole = errors.New("hole outside every exterior")

// Hint says whether the region is above the isovalue when no contour
// crosses it.
type Hint int

const (
	HintBelow Hint = iota
	HintAbove
)

// HintFor derives a hint from a representative sample. NoData is below.
func HintFor(sample, iso float64) Hint {
	if !math.IsNaN(sample) && sample >= iso {
		return HintAbove
	}
	return HintBelow
}

// Report accounts for every input contour.
type Report struct {
	Exteriors    int
	Holes        int
	Noise        int
	Orphans      int
	ClosedChords int
	HullEmitted  bool
}

// Total is the number of contours the report accounts for.
func (r Report) Total() int { return r.Exteriors + r.Holes + r.Noise + r.Orphans }

type candidate struct {
	ring orb.Ring
	area float64
}

// FromContours classifies contours into a multipolygon:
//
//  1. With no contours the hint decides between the whole hull and nothing.
//  2. Rings with signed area >= minArea become exteriors; rings with
//     |area| < minArea are dropped as noise.
//  3. If holes remain but no exterior was found, the hull is emitted as the
//     background polygon.
//  4. Each hole joins the smallest exterior containing its first vertex.
//
// Open contours are closed with a straight chord. Holes that fit no exterior
// are reported through ErrOrphanHole; the polygons built so far are still
// returned.
func FromContours(contours []l4contours.Contour, hull orb.Ring, minArea float64, hint Hint) (orb.MultiPolygon, Report, error) {
	var rep Report
	if len(contours) == 0 {
		if hint == HintAbove && len(hull) >= 4 {
			rep.HullEmitted = true
			return orb.MultiPolygon{{Orient(hull, true)}}, rep, nil
		}
		return nil, rep, nil
	}

	var exteriors, holes []candidate
	for _, c := range contours {
		ring, chord := CloseRing(orb.Ring(c.Points))
		if chord {
			rep.ClosedChords++
		}
		a := SignedArea(ring)
		switch {
		case math.Abs(a) < minArea || len(ring) < 4:
			rep.Noise++
		case a > 0:
			exteriors = append(exteriors, candidate{ring: ring, area: a})
		default:
			holes = append(holes, candidate{ring: ring, area: -a})
		}
	}

	if len(exteriors) == 0 && len(holes) > 0 && len(hull) >= 4 {
		h := Orient(hull, true)
		exteriors = append(exteriors, candidate{ring: h, area: SignedArea(h)})
		rep.HullEmitted = true
	}

	mp := make(orb.MultiPolygon, len(exteriors))
	for i, e := range exteriors {
		mp[i] = orb.Polygon{e.ring}
	}
	rep.Exteriors = len(exteriors)
	if rep.HullEmitted {
		rep.Exteriors--
	}

	var errs []error
	for _, h := range holes {
		best := -1
		for i, e := range exteriors {
			if e.area <= h.area || !planar.RingContains(e.ring, h.ring[0]) {
				continue
			}
			if best < 0 || e.area < exteriors[best].area {
				best = i
			}
		}
		if best < 0 {
			rep.Orphans++
			errs = append(errs, fmt.Errorf("%w: hole at %v (area %.3g)", ErrOrphanHole, h.ring[0], h.area))
			continue
		}
		mp[best] = append(mp[best], h.ring)
		rep.Holes++
	}
	return mp, rep, errors.Join(errs...)
}
