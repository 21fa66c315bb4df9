package l1points

import (
	"io"
	"testing"

	"github.com/banshee-data/lidar2map/internal/fsutil"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXYZOpener(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("/survey/a.xyz", []byte(`# epsg:3067
# x y z intensity return class
100.0 200.0 50.5 120 1 2
110.0,205.0,51.0,90,2,5

104 199 49.5
`))

	r, err := NewXYZOpener(fsys, "/survey/a.xyz").Open()
	require.NoError(t, err)
	defer r.Close()

	h := r.Header()
	assert.Equal(t, 3067, h.EPSG)
	assert.Equal(t, uint64(3), h.PointCount)
	assert.Equal(t, orb.Bound{Min: orb.Point{100, 199}, Max: orb.Point{110, 205}}, h.Bounds)

	var pts []Point
	require.NoError(t, ReadAll(r, func(p Point) error {
		pts = append(pts, p)
		return nil
	}))
	require.Len(t, pts, 3)
	assert.Equal(t, Point{X: 110, Y: 205, Z: 51, Intensity: 90, ReturnNumber: 2, Classification: ClassHighVegetation}, pts[1])
	// Missing columns default to a ground first return.
	assert.True(t, pts[2].IsGround())
	assert.Equal(t, uint8(1), pts[2].ReturnNumber)
	assert.True(t, pts[1].IsVegetation())
}

func TestXYZOpenerErrors(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("/bad.xyz", []byte("1 2\n"))
	fsys.WriteFile("/empty.xyz", []byte("# nothing\n"))

	_, err := NewXYZOpener(fsys, "/missing.xyz").Open()
	assert.Error(t, err)

	_, err = NewXYZOpener(fsys, "/bad.xyz").Open()
	assert.ErrorContains(t, err, "at least 3 columns")

	_, err = NewXYZOpener(fsys, "/empty.xyz").Open()
	assert.ErrorContains(t, err, "no points")
}

func TestSliceOpenerFailures(t *testing.T) {
	pts := []Point{{X: 1}, {X: 2}, {X: 3}}

	_, err := (&SliceOpener{ID: "x", FailOpen: true}).Open()
	assert.Error(t, err)

	r, err := (&SliceOpener{ID: "y", Points: pts, FailAfter: 2}).Open()
	require.NoError(t, err)
	n := 0
	err = ReadAll(r, func(Point) error { n++; return nil })
	assert.Error(t, err)
	assert.Equal(t, 2, n)

	r, err = (&SliceOpener{ID: "z", Points: pts}).Open()
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := r.Next()
		require.NoError(t, err)
	}
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}
