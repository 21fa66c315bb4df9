package l2tiles

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bound(x0, y0, x1, y1 float64) orb.Bound {
	return orb.Bound{Min: orb.Point{x0, y0}, Max: orb.Point{x1, y1}}
}

func area(b orb.Bound) float64 {
	return math.Max(0, b.Max[0]-b.Min[0]) * math.Max(0, b.Max[1]-b.Min[1])
}

func intersectionArea(a, b orb.Bound) float64 {
	w := math.Min(a.Max[0], b.Max[0]) - math.Max(a.Min[0], b.Min[0])
	h := math.Min(a.Max[1], b.Max[1]) - math.Max(a.Min[1], b.Min[1])
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func assertPartition(t *testing.T, survey orb.Bound, tiles []Tile) {
	t.Helper()
	var total float64
	for i, a := range tiles {
		require.Greater(t, area(a.Cut), 0.0, "tile %s has empty cut", a.ID())
		assert.True(t, a.Bounds.Contains(a.Cut.Min) && a.Bounds.Contains(a.Cut.Max), "cut of %s escapes its tile", a.ID())
		total += area(a.Cut)
		for _, b := range tiles[i+1:] {
			assert.InDelta(t, 0, intersectionArea(a.Cut, b.Cut), 1e-9, "cuts %s and %s overlap", a.ID(), b.ID())
		}
	}
	assert.InDelta(t, area(survey), total, 1e-6*area(survey))

	var union orb.Bound
	for i, tl := range tiles {
		if i == 0 {
			union = tl.Cut
		} else {
			union = union.Union(tl.Cut)
		}
	}
	assert.Equal(t, survey, union)
}

func TestCount(t *testing.T) {
	p := Params{Size: 100, Margin: 20}
	tests := []struct {
		width float64
		want  int
	}{
		{10, 2},
		{100, 2},
		{180, 2},
		{181, 3},
		{1000, 13},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Count(tt.width, p), "width %g", tt.width)
	}
}

func TestComputeCoverageAndOverlap(t *testing.T) {
	tests := []struct {
		name   string
		survey orb.Bound
		params Params
	}{
		{"square", bound(0, 0, 1000, 1000), Params{Size: 256, Margin: 32}},
		{"wide", bound(385000, 6672000, 387500, 6672600), Params{Size: 300, Margin: 50}},
		{"exact fit", bound(0, 0, 180, 180), Params{Size: 100, Margin: 20}},
		{"zero margin", bound(-50, -50, 450, 250), Params{Size: 100, Margin: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tiles, err := Compute(tt.survey, 0, tt.params)
			require.NoError(t, err)
			assertPartition(t, tt.survey, tiles)

			byPos := map[[2]int]Tile{}
			for _, tl := range tiles {
				byPos[[2]int{tl.Row, tl.Col}] = tl
			}
			for _, tl := range tiles {
				if right, ok := byPos[[2]int{tl.Row, tl.Col + 1}]; ok {
					overlap := tl.Bounds.Max[0] - right.Bounds.Min[0]
					assert.GreaterOrEqual(t, overlap, tt.params.Margin-1e-9, "%s/%s", tl.ID(), right.ID())
				}
				if up, ok := byPos[[2]int{tl.Row + 1, tl.Col}]; ok {
					overlap := tl.Bounds.Max[1] - up.Bounds.Min[1]
					assert.GreaterOrEqual(t, overlap, tt.params.Margin-1e-9, "%s/%s", tl.ID(), up.ID())
				}
				assert.LessOrEqual(t, tl.Bounds.Max[0]-tl.Bounds.Min[0], tt.params.Size+1e-9)
			}
		})
	}
}

func TestComputeDegenerate(t *testing.T) {
	survey := bound(0, 0, 40, 10)
	tiles, err := Compute(survey, 0, Params{Size: 256, Margin: 32})
	require.NoError(t, err)
	require.Len(t, tiles, 4)
	assertPartition(t, survey, tiles)

	want := []orb.Bound{
		bound(0, 0, 20, 5),
		bound(20, 0, 40, 5),
		bound(0, 5, 20, 10),
		bound(20, 5, 40, 10),
	}
	got := make([]orb.Bound, len(tiles))
	for i, tl := range tiles {
		got[i] = tl.Cut
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("cut bounds mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeNeighborMargins(t *testing.T) {
	survey := bound(0, 0, 500, 500)
	p := Params{Size: 200, Margin: 25}

	plain, err := Compute(survey, 0, p)
	require.NoError(t, err)
	withN, err := Compute(survey, NeighborLeft|NeighborAbove, p)
	require.NoError(t, err)
	require.Equal(t, len(plain), len(withN))

	for i := range plain {
		a, b := plain[i], withN[i]
		assert.Equal(t, a.Cut, b.Cut, "cuts do not depend on neighbours")
		wantMinX := a.Bounds.Min[0]
		if a.Col == 0 {
			wantMinX -= p.Margin
		}
		wantMaxY := a.Bounds.Max[1]
		if a.Row == Count(500, p)-1 {
			wantMaxY += p.Margin
		}
		assert.Equal(t, wantMinX, b.Bounds.Min[0])
		assert.Equal(t, wantMaxY, b.Bounds.Max[1])
		assert.Equal(t, a.Bounds.Max[0], b.Bounds.Max[0])
		assert.Equal(t, a.Bounds.Min[1], b.Bounds.Min[1])
	}
}

func TestComputeErrors(t *testing.T) {
	_, err := Compute(bound(0, 0, 0, 10), 0, Params{Size: 10, Margin: 1})
	assert.ErrorIs(t, err, ErrEmptyBounds)
	_, err = Compute(bound(0, 0, 10, 10), 0, Params{Size: 0, Margin: 0})
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = Compute(bound(0, 0, 10, 10), 0, Params{Size: 10, Margin: 10})
	assert.ErrorIs(t, err, ErrInvalidMargin)
	_, err = Compute(bound(0, 0, 10, 10), 0, Params{Size: 10, Margin: -1})
	assert.ErrorIs(t, err, ErrInvalidMargin)
}

func TestNeighborhoodOf(t *testing.T) {
	area := bound(10, 10, 20, 20)
	assert.Equal(t, Neighborhood(0), NeighborhoodOf(area, bound(10, 10, 20, 20)))
	n := NeighborhoodOf(area, bound(0, 10, 30, 25))
	assert.True(t, n.Has(NeighborLeft|NeighborRight|NeighborAbove))
	assert.False(t, n.Has(NeighborBelow))
	assert.Equal(t, "above|left|right", n.String())
	assert.Equal(t, "none", Neighborhood(0).String())
}

func TestTileID(t *testing.T) {
	assert.Equal(t, "r002c011", Tile{Row: 2, Col: 11}.ID())
}
