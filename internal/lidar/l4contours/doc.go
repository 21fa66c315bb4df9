// Package l4contours owns Layer 4 (Contours) of the map generation model.
//
// Responsibilities: tracing iso-value lines through L3 grids with marching
// squares and linking the per-square segments into maximal polylines.
// Key types: Contour, ContourSet.
//
// Grid values sit at cell centers, so the traced lines run between cell
// centers. Segments are oriented with the above-isovalue side on the left,
// which makes closed contours around high ground counter-clockwise.
//
// Dependency rule: L4 may depend on L1-L3, but never on L5+.
package l4contours
