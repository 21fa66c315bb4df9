package l3grid

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Slope fits a least-squares plane z = a + b·x + c·y through the valid cells
// in a (2·radius+1)² window around each cell and returns the inclination of
// that plane in degrees. Cells whose window has fewer than three valid,
// non-collinear samples are NoData. Every cell reads only the input grid,
// so the result does not depend on evaluation order.
func Slope(g *Grid, radius int) *Grid {
	if radius < 1 {
		radius = 1
	}
	out := g.emptyLike()
	normal := mat.NewDense(3, 3, nil)
	rhs := mat.NewVecDense(3, nil)
	var coef mat.VecDense

	for r := 0; r < g.Size; r++ {
		for c := 0; c < g.Size; c++ {
			z0 := g.At(r, c)
			if IsNoData(z0) {
				continue
			}
			var n, sx, sy, sxx, syy, sxy, sz, sxz, syz float64
			for dr := -radius; dr <= radius; dr++ {
				for dc := -radius; dc <= radius; dc++ {
					rr, cc := r+dr, c+dc
					if !g.InBounds(rr, cc) {
						continue
					}
					z := g.At(rr, cc)
					if IsNoData(z) {
						continue
					}
					x, y := float64(dc)*g.CellSize, float64(dr)*g.CellSize
					z -= z0
					n++
					sx += x
					sy += y
					sxx += x * x
					syy += y * y
					sxy += x * y
					sz += z
					sxz += x * z
					syz += y * z
				}
			}
			if n < 3 {
				continue
			}
			normal.SetRow(0, []float64{n, sx, sy})
			normal.SetRow(1, []float64{sx, sxx, sxy})
			normal.SetRow(2, []float64{sy, sxy, syy})
			rhs.SetVec(0, sz)
			rhs.SetVec(1, sxz)
			rhs.SetVec(2, syz)
			if err := coef.SolveVec(normal, rhs); err != nil {
				continue
			}
			gx, gy := coef.AtVec(1), coef.AtVec(2)
			out.Set(r, c, math.Atan(math.Hypot(gx, gy))*180/math.Pi)
		}
	}
	return out
}

// Smoothen applies iterations of a (2·radius+1)² box mean over valid cells.
// NoData cells stay NoData. Each pass reads the previous buffer only.
func Smoothen(g *Grid, radius, iterations int) *Grid {
	cur := g.Clone()
	if radius < 1 || iterations < 1 {
		return cur
	}
	next := g.emptyLike()
	for it := 0; it < iterations; it++ {
		for r := 0; r < g.Size; r++ {
			for c := 0; c < g.Size; c++ {
				if IsNoData(cur.At(r, c)) {
					next.Set(r, c, NoData)
					continue
				}
				var sum, n float64
				for dr := -radius; dr <= radius; dr++ {
					for dc := -radius; dc <= radius; dc++ {
						rr, cc := r+dr, c+dc
						if !cur.InBounds(rr, cc) {
							continue
						}
						if v := cur.At(rr, cc); !IsNoData(v) {
							sum += v
							n++
						}
					}
				}
				next.Set(r, c, sum/n)
			}
		}
		cur, next = next, cur
	}
	return cur
}

// FillNoData replaces NoData cells with the mean of their valid 8-neighbours,
// growing inward one ring per iteration. It returns the filled grid and the
// number of cells still NoData afterwards.
func FillNoData(g *Grid, maxIterations int) (*Grid, int) {
	cur := g.Clone()
	next := g.Clone()
	remaining := cur.Size*cur.Size - cur.ValidCount()
	for it := 0; it < maxIterations && remaining > 0; it++ {
		filled := 0
		for r := 0; r < cur.Size; r++ {
			for c := 0; c < cur.Size; c++ {
				v := cur.At(r, c)
				next.Set(r, c, v)
				if !IsNoData(v) {
					continue
				}
				var sum, n float64
				for dr := -1; dr <= 1; dr++ {
					for dc := -1; dc <= 1; dc++ {
						rr, cc := r+dr, c+dc
						if (dr == 0 && dc == 0) || !cur.InBounds(rr, cc) {
							continue
						}
						if nv := cur.At(rr, cc); !IsNoData(nv) {
							sum += nv
							n++
						}
					}
				}
				if n > 0 {
					next.Set(r, c, sum/n)
					filled++
				}
			}
		}
		cur, next = next, cur
		remaining -= filled
		if filled == 0 {
			break
		}
	}
	return cur, remaining
}
