package l4contours

import (
	"testing"

	"github.com/banshee-data/lidar2map/internal/lidar/l3grid"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockGrid is a flat grid at low with a square block at high whose lower
// left cell is (r0, c0).
func blockGrid(size, r0, c0, side int, low, high float64) *l3grid.Grid {
	g := l3grid.New(size, orb.Point{0, 0}, 1)
	g.Fill(low)
	for r := r0; r < r0+side; r++ {
		for c := c0; c < c0+side; c++ {
			g.Set(r, c, high)
		}
	}
	return g
}

func signedArea(r orb.Ring) float64 {
	var a float64
	for i := 0; i+1 < len(r); i++ {
		a += r[i][0]*r[i+1][1] - r[i+1][0]*r[i][1]
	}
	return a / 2
}

func TestMarchingSquaresBlock(t *testing.T) {
	g := blockGrid(128, 54, 54, 20, 100, 200)
	set := MarchingSquares(g, 150)

	require.Len(t, set.Contours, 1)
	c := set.Contours[0]
	assert.True(t, c.Closed)
	assert.Equal(t, c.Points[0], c.Points[len(c.Points)-1])
	assert.False(t, set.TouchesNoData)

	ring := orb.Ring(c.Points)
	// High ground is enclosed counter-clockwise.
	assert.Greater(t, signedArea(ring), 0.0)
	assert.InDelta(t, 400, signedArea(ring), 1)

	b := ring.Bound()
	assert.Equal(t, orb.Bound{Min: orb.Point{54, 54}, Max: orb.Point{74, 74}}, b)
}

func TestMarchingSquaresPit(t *testing.T) {
	g := blockGrid(16, 5, 5, 4, 100, 0)
	set := MarchingSquares(g, 50)
	require.Len(t, set.Contours, 1)
	assert.True(t, set.Contours[0].Closed)
	assert.Less(t, signedArea(orb.Ring(set.Contours[0].Points)), 0.0, "low ground is enclosed clockwise")
}

func TestMarchingSquaresOpenAtBorder(t *testing.T) {
	// West half high, east half low: one line crossing the grid south to north.
	g := l3grid.New(6, orb.Point{0, 0}, 1)
	for r := 0; r < 6; r++ {
		for c := 0; c < 6; c++ {
			if c < 3 {
				g.Set(r, c, 10)
			} else {
				g.Set(r, c, 0)
			}
		}
	}
	set := MarchingSquares(g, 5)
	require.Len(t, set.Contours, 1)
	line := set.Contours[0]
	assert.False(t, line.Closed)
	require.Len(t, line.Points, 6)
	// Above (west) on the left means the line runs north.
	assert.Equal(t, orb.Point{3, 0.5}, line.Points[0])
	assert.Equal(t, orb.Point{3, 5.5}, line.Points[5])
}

func TestContourClosureProperty(t *testing.T) {
	// Two blobs and a pit, all away from the border: every contour closes.
	g := l3grid.New(40, orb.Point{100, 100}, 2)
	g.Fill(0)
	for r := 5; r < 12; r++ {
		for c := 5; c < 15; c++ {
			g.Set(r, c, 10)
		}
	}
	for r := 20; r < 30; r++ {
		for c := 20; c < 34; c++ {
			g.Set(r, c, 10)
		}
	}
	g.Set(25, 25, 0)

	set := MarchingSquares(g, 5)
	require.Len(t, set.Contours, 3)
	for _, c := range set.Contours {
		assert.True(t, c.Closed)
	}
}

func TestTiesCountAsAbove(t *testing.T) {
	g := blockGrid(8, 3, 3, 2, 0, 5)
	set := MarchingSquares(g, 5)
	require.Len(t, set.Contours, 1)
	// With the tie above, the crossing sits on the block cell centers.
	assert.Equal(t, orb.Bound{Min: orb.Point{3.5, 3.5}, Max: orb.Point{4.5, 4.5}}, orb.Ring(set.Contours[0].Points).Bound())
}

func assertLine(t *testing.T, want, got orb.LineString) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i][0], got[i][0], 1e-12, "vertex %d x", i)
		assert.InDelta(t, want[i][1], got[i][1], 1e-12, "vertex %d y", i)
	}
}

func TestSaddleResolution(t *testing.T) {
	g := l3grid.New(2, orb.Point{0, 0}, 1)
	// bl and tr above.
	g.Values = []float64{10, 0, 0, 10}

	set := MarchingSquares(g, 4)
	require.Len(t, set.Contours, 2)
	// Center 5 >= 4: the high corners connect, cutting off br and tl.
	assertLine(t, orb.LineString{{1.1, 0.5}, {1.5, 0.9}}, set.Contours[0].Points)
	assertLine(t, orb.LineString{{0.9, 1.5}, {0.5, 1.1}}, set.Contours[1].Points)

	set = MarchingSquares(g, 6)
	require.Len(t, set.Contours, 2)
	// Center 5 < 6: bl and tr are isolated.
	assertLine(t, orb.LineString{{0.9, 0.5}, {0.5, 0.9}}, set.Contours[0].Points)
	assertLine(t, orb.LineString{{1.1, 1.5}, {1.5, 1.1}}, set.Contours[1].Points)
}

func TestNoDataIsBelowAndFlagged(t *testing.T) {
	g := l3grid.New(6, orb.Point{0, 0}, 1)
	g.Fill(10)
	g.Set(2, 2, l3grid.NoData)
	set := MarchingSquares(g, 5)
	assert.True(t, set.TouchesNoData)
	require.Len(t, set.Contours, 1)
	assert.True(t, set.Contours[0].Closed)
}

// rampWithGap rises by 1 per column and has a 2x2 NoData gap at rows and
// columns 4-5.
func rampWithGap() *l3grid.Grid {
	g := l3grid.New(10, orb.Point{0, 0}, 1)
	for r := 0; r < 10; r++ {
		for c := 0; c < 10; c++ {
			g.Set(r, c, float64(c))
		}
	}
	for r := 4; r < 6; r++ {
		for c := 4; c < 6; c++ {
			g.Set(r, c, l3grid.NoData)
		}
	}
	return g
}

func TestIsoLinesStopAtGaps(t *testing.T) {
	g := rampWithGap()

	// Treated as below, the gap is circled at a level the terrain around it
	// never takes.
	assert.NotEmpty(t, MarchingSquares(g, 1.5).Closed())

	low := IsoLines(g, 1.5)
	require.Len(t, low.Contours, 1)
	assert.False(t, low.Contours[0].Closed)
	for _, p := range low.Contours[0].Points {
		assert.InDelta(t, 2.0, p[0], 1e-9)
	}

	cut := IsoLines(g, 4.5)
	assert.True(t, cut.TouchesNoData)
	require.Len(t, cut.Contours, 2, "the line is split where it crosses the gap")
	for _, c := range cut.Contours {
		assert.False(t, c.Closed)
		for _, p := range c.Points {
			assert.InDelta(t, 5.0, p[0], 1e-9)
			assert.False(t, p[1] > 3.5 && p[1] < 6.5, "point %v inside the gap", p)
		}
	}
}

func TestIsoLinesWithoutGapsMatchMarchingSquares(t *testing.T) {
	g := blockGrid(32, 10, 10, 8, 100, 200)
	assert.Equal(t, MarchingSquares(g, 150), IsoLines(g, 150))

	g.Set(20, 20, l3grid.NoData)
	set := IsoLines(g, 150)
	assert.True(t, set.TouchesNoData)
	require.Len(t, set.Contours, 1)
	assert.True(t, set.Contours[0].Closed)
}

func TestClosedContoursPadsBorder(t *testing.T) {
	g := l3grid.New(6, orb.Point{0, 0}, 1)
	for r := 0; r < 6; r++ {
		for c := 0; c < 6; c++ {
			if c < 3 {
				g.Set(r, c, 10)
			} else {
				g.Set(r, c, 0)
			}
		}
	}
	set := ClosedContours(g, 5)
	require.Len(t, set.Contours, 1)
	ring := orb.Ring(set.Contours[0].Points)
	assert.True(t, set.Contours[0].Closed)
	assert.Greater(t, signedArea(ring), 0.0)
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{3, 6}}, ring.Bound())

	assert.Empty(t, ClosedContours(blockGrid(5, 0, 0, 0, 1, 1), 5).Contours)
}

func TestLevels(t *testing.T) {
	assert.Equal(t, []float64{10, 15, 20}, Levels(7, 22, 5))
	assert.Equal(t, []float64{-5, 0}, Levels(-7, 4, 5))
	assert.Equal(t, []float64{5}, Levels(5, 5, 5))
	assert.Nil(t, Levels(0, 10, 0))
	assert.Nil(t, Levels(10, 0, 1))
}
