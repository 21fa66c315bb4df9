// Package testutil provides shared test utilities and fixtures.
//
// This package centralises synthetic point clouds and XYZ fixtures so the
// layer and pipeline tests describe terrain rather than point lists.
package testutil

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/banshee-data/lidar2map/internal/lidar/l1points"
	"github.com/paulmach/orb"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Terrain returns the ground elevation at a horizontal position.
type Terrain func(x, y float64) float64

// Plane is a tilted plane through (0, 0, z0).
func Plane(z0, slopeX, slopeY float64) Terrain {
	return func(x, y float64) float64 { return z0 + slopeX*x + slopeY*y }
}

// Hill is a cone of the given height on a flat base.
func Hill(center orb.Point, radius, base, height float64) Terrain {
	return func(x, y float64) float64 {
		d := math.Hypot(x-center[0], y-center[1])
		if d >= radius {
			return base
		}
		return base + height*(1-d/radius)
	}
}

// Step is flat ground at low with a raised rectangle at high.
func Step(raised orb.Bound, low, high float64) Terrain {
	return func(x, y float64) float64 {
		if raised.Contains(orb.Point{x, y}) {
			return high
		}
		return low
	}
}

// Cloud builds a regular synthetic point cloud. Every lattice position gets
// one ground point; positions inside Vegetation also get a vegetation return
// above the ground.
type Cloud struct {
	Bounds     orb.Bound
	Spacing    float64
	Terrain    Terrain
	Vegetation []orb.Bound
	Intensity  func(x, y float64) uint16
}

// Points samples the cloud. Ground points sit on cell centres of the
// lattice, i.e. at Min + (i+0.5)·Spacing.
func (c Cloud) Points() []l1points.Point {
	terrain := c.Terrain
	if terrain == nil {
		terrain = Plane(0, 0, 0)
	}
	nx := int(math.Round((c.Bounds.Max[0] - c.Bounds.Min[0]) / c.Spacing))
	ny := int(math.Round((c.Bounds.Max[1] - c.Bounds.Min[1]) / c.Spacing))
	pts := make([]l1points.Point, 0, nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			x := c.Bounds.Min[0] + (float64(i)+0.5)*c.Spacing
			y := c.Bounds.Min[1] + (float64(j)+0.5)*c.Spacing
			z := terrain(x, y)
			var intensity uint16 = 100
			if c.Intensity != nil {
				intensity = c.Intensity(x, y)
			}
			pts = append(pts, l1points.Point{
				X: x, Y: y, Z: z,
				Intensity:      intensity,
				ReturnNumber:   2,
				Classification: l1points.ClassGround,
			})
			if c.vegetated(x, y) {
				pts = append(pts, l1points.Point{
					X: x, Y: y, Z: z + 8,
					Intensity:      intensity / 2,
					ReturnNumber:   1,
					Classification: l1points.ClassHighVegetation,
				})
			}
		}
	}
	return pts
}

func (c Cloud) vegetated(x, y float64) bool {
	for _, b := range c.Vegetation {
		if b.Contains(orb.Point{x, y}) {
			return true
		}
	}
	return false
}

// XYZ renders points as an XYZ text file with an optional EPSG comment.
func XYZ(points []l1points.Point, epsg int) []byte {
	var b strings.Builder
	if epsg != 0 {
		fmt.Fprintf(&b, "# epsg:%d\n", epsg)
	}
	for _, p := range points {
		fmt.Fprintf(&b, "%.3f %.3f %.3f %d %d %d\n", p.X, p.Y, p.Z, p.Intensity, p.ReturnNumber, p.Classification)
	}
	return []byte(b.String())
}
