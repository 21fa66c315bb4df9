package l1points

import (
	"fmt"
	"io"

	"github.com/paulmach/orb"
)

// ASPRS classification codes the pipeline cares about.
const (
	ClassUnclassified   uint8 = 1
	ClassGround         uint8 = 2
	ClassLowVegetation  uint8 = 3
	ClassMedVegetation  uint8 = 4
	ClassHighVegetation uint8 = 5
	ClassBuilding       uint8 = 6
	ClassWater          uint8 = 9
)

// Point is one LiDAR return in the working CRS.
type Point struct {
	X, Y, Z        float64
	Intensity      uint16
	ReturnNumber   uint8
	Classification uint8
}

// XY returns the horizontal position.
func (p Point) XY() orb.Point { return orb.Point{p.X, p.Y} }

// IsGround reports whether the point is classified as ground.
func (p Point) IsGround() bool { return p.Classification == ClassGround }

// IsVegetation reports whether the point is any vegetation class.
func (p Point) IsVegetation() bool {
	return p.Classification >= ClassLowVegetation && p.Classification <= ClassHighVegetation
}

// Header is the file-level metadata a decoder exposes before streaming.
// EPSG is 0 when the file carries no coordinate reference system.
type Header struct {
	Bounds     orb.Bound
	EPSG       int
	PointCount uint64
}

// Reader streams points from one input. Next returns io.EOF after the last point.
type Reader interface {
	Header() Header
	Next() (Point, error)
	Close() error
}

// Opener names an input and opens a fresh Reader on it.
type Opener interface {
	Name() string
	Open() (Reader, error)
}

// ReadAll drains r, calling fn for each point. It stops at the first error
// returned by the reader or by fn; io.EOF ends the stream cleanly.
func ReadAll(r Reader, fn func(Point) error) error {
	for {
		p, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
}

// BoundOf returns the horizontal bounding box of points.
func BoundOf(points []Point) orb.Bound {
	if len(points) == 0 {
		return orb.Bound{}
	}
	b := orb.Bound{Min: points[0].XY(), Max: points[0].XY()}
	for _, p := range points[1:] {
		b = b.Extend(p.XY())
	}
	return b
}

// SliceOpener serves points from memory. FailAfter > 0 makes the reader
// return an error after that many points, which exercises the pipeline's
// unreadable-input handling.
type SliceOpener struct {
	ID        string
	EPSG      int
	Points    []Point
	FailOpen  bool
	FailAfter int
}

func (s *SliceOpener) Name() string { return s.ID }

func (s *SliceOpener) Open() (Reader, error) {
	if s.FailOpen {
		return nil, fmt.Errorf("open %s: simulated failure", s.ID)
	}
	return &sliceReader{
		header: Header{Bounds: BoundOf(s.Points), EPSG: s.EPSG, PointCount: uint64(len(s.Points))},
		points: s.Points,
		fail:   s.FailAfter,
		name:   s.ID,
	}, nil
}

type sliceReader struct {
	header Header
	points []Point
	pos    int
	fail   int
	name   string
}

func (r *sliceReader) Header() Header { return r.header }

func (r *sliceReader) Next() (Point, error) {
	if r.fail > 0 && r.pos >= r.fail {
		return Point{}, fmt.Errorf("read %s: truncated after %d points", r.name, r.pos)
	}
	if r.pos >= len(r.points) {
		return Point{}, io.EOF
	}
	p := r.points[r.pos]
	r.pos++
	return p, nil
}

func (r *sliceReader) Close() error { return nil }
