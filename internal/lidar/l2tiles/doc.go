// Package l2tiles owns Layer 2 (Tiles) of the map generation model.
//
// Responsibilities: partitioning a survey bounding box into overlapping
// work tiles and the matching disjoint cut rectangles, and deriving the
// per-side neighbour flags from the extent of the input data.
// Key types: Tile, Neighborhood, Params.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
package l2tiles
