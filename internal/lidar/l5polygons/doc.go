// Package l5polygons owns Layer 5 (Polygons) of the map generation model.
//
// Responsibilities: turning L4 contour sets into oriented multipolygons
// with nested holes, minimum-area pruning, clipping to tile cut bounds,
// and Douglas-Peucker simplification.
// Key types: Hint, Report.
//
// Exterior rings are counter-clockwise (positive signed area) and holes
// clockwise, matching orb and RFC 7946.
//
// Dependency rule: L5 may depend on L1-L4, but never on L6+.
package l5polygons
