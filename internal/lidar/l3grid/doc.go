// Package l3grid owns Layer 3 (Grid) of the map generation model.
//
// Responsibilities: rasterising tile points into square scalar grids
// (digital feature models), deriving slope, smoothing and hole filling,
// and value sampling.
// Key types: Grid, Field, Rasterizer.
//
// Row 0 is the southern row and column 0 the western column. Cell (r, c)
// covers [Origin.X + c*CellSize, Origin.X + (c+1)*CellSize) horizontally
// and the same for rows on Y. Contour extraction in L4 relies on this
// convention.
//
// Dependency rule: L3 may depend on L1-L2, but never on L4+.
package l3grid
