// Package crs reprojects coordinates between EPSG-coded reference systems.
//
// The pipeline treats coordinate conversion as an external service; this
// package is the adapter. Definitions are proj4 strings parsed with
// github.com/ctessum/geom/proj, and transforms are cached per code pair.
package crs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
)

// ErrUnknownEPSG is returned for codes that have no registered definition.
var ErrUnknownEPSG = errors.New("unknown EPSG code")

// Reprojector converts points between EPSG codes in place.
type Reprojector interface {
	Reproject(from, to int, pts []orb.Point) error
}

// Built-in proj4 definitions. Only codes used for national LiDAR deliveries
// and web output are listed; Register adds more.
var builtin = map[int]string{
	4326:  "+proj=longlat +datum=WGS84 +no_defs",
	3857:  "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs",
	3067:  "+proj=utm +zone=35 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	25832: "+proj=utm +zone=32 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	25833: "+proj=utm +zone=33 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	25835: "+proj=utm +zone=35 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	3006:  "+proj=utm +zone=33 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	32632: "+proj=utm +zone=32 +datum=WGS84 +units=m +no_defs",
	32633: "+proj=utm +zone=33 +datum=WGS84 +units=m +no_defs",
	32635: "+proj=utm +zone=35 +datum=WGS84 +units=m +no_defs",
}

type pair struct{ from, to int }

// ProjService is the default Reprojector. It is safe for concurrent use.
type ProjService struct {
	mu         sync.Mutex
	defs       map[int]string
	srs        map[int]*proj.SR
	transforms map[pair]proj.Transformer
}

// NewProjService returns a service preloaded with the built-in definitions.
func NewProjService() *ProjService {
	s := &ProjService{
		defs:       make(map[int]string, len(builtin)),
		srs:        make(map[int]*proj.SR),
		transforms: make(map[pair]proj.Transformer),
	}
	for code, def := range builtin {
		s.defs[code] = def
	}
	return s
}

// Register adds or replaces the proj4 definition for code.
func (s *ProjService) Register(code int, def string) error {
	sr, err := proj.Parse(def)
	if err != nil {
		return fmt.Errorf("parse EPSG:%d definition: %w", code, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[code] = def
	s.srs[code] = sr
	for k := range s.transforms {
		if k.from == code || k.to == code {
			delete(s.transforms, k)
		}
	}
	return nil
}

// Known reports whether code has a definition.
func (s *ProjService) Known(code int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.defs[code]
	return ok
}

func (s *ProjService) srLocked(code int) (*proj.SR, error) {
	if sr, ok := s.srs[code]; ok {
		return sr, nil
	}
	def, ok := s.defs[code]
	if !ok {
		return nil, fmt.Errorf("EPSG:%d: %w", code, ErrUnknownEPSG)
	}
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("parse EPSG:%d: %w", code, err)
	}
	s.srs[code] = sr
	return sr, nil
}

func (s *ProjService) transform(from, to int) (proj.Transformer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pair{from, to}
	if t, ok := s.transforms[key]; ok {
		return t, nil
	}
	src, err := s.srLocked(from)
	if err != nil {
		return nil, err
	}
	dst, err := s.srLocked(to)
	if err != nil {
		return nil, err
	}
	t, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("transform EPSG:%d to EPSG:%d: %w", from, to, err)
	}
	s.transforms[key] = t
	return t, nil
}

// Reproject converts pts from one EPSG code to another in place. Equal codes
// are a no-op. On error pts may be partially converted and must be discarded.
func (s *ProjService) Reproject(from, to int, pts []orb.Point) error {
	if from == to {
		return nil
	}
	t, err := s.transform(from, to)
	if err != nil {
		return err
	}
	if t == nil {
		// Equivalent definitions have no transform.
		return nil
	}
	for i, p := range pts {
		x, y, err := t(p[0], p[1])
		if err != nil {
			return fmt.Errorf("reproject point %d (%g, %g): %w", i, p[0], p[1], err)
		}
		pts[i] = orb.Point{x, y}
	}
	return nil
}

// ReprojectBound converts a bounding box by transforming its corners and edge
// midpoints, then taking the envelope of the results.
func ReprojectBound(r Reprojector, from, to int, b orb.Bound) (orb.Bound, error) {
	if from == to {
		return b, nil
	}
	c := b.Center()
	pts := []orb.Point{
		b.Min, {b.Max[0], b.Min[1]}, b.Max, {b.Min[0], b.Max[1]},
		{c[0], b.Min[1]}, {b.Max[0], c[1]}, {c[0], b.Max[1]}, {b.Min[0], c[1]},
	}
	if err := r.Reproject(from, to, pts); err != nil {
		return orb.Bound{}, err
	}
	return orb.MultiPoint(pts).Bound(), nil
}

// ReprojectGeometry converts every vertex of g. Slice-backed geometries are
// updated in place; the returned value must be used for points.
func ReprojectGeometry(r Reprojector, from, to int, g orb.Geometry) (orb.Geometry, error) {
	if from == to {
		return g, nil
	}
	switch g := g.(type) {
	case orb.Point:
		pts := []orb.Point{g}
		if err := r.Reproject(from, to, pts); err != nil {
			return nil, err
		}
		return pts[0], nil
	case orb.LineString:
		return g, r.Reproject(from, to, g)
	case orb.Ring:
		return g, r.Reproject(from, to, g)
	case orb.Polygon:
		for _, ring := range g {
			if err := r.Reproject(from, to, ring); err != nil {
				return nil, err
			}
		}
		return g, nil
	case orb.MultiPolygon:
		for _, p := range g {
			if _, err := ReprojectGeometry(r, from, to, p); err != nil {
				return nil, err
			}
		}
		return g, nil
	default:
		return nil, fmt.Errorf("reproject %s: unsupported geometry", g.GeoJSONType())
	}
}
