// Package l1points owns Layer 1 (Points) of the LiDAR mapping model.
//
// Responsibilities: the point sample type, the opaque point stream that
// decoders implement, a plain-text XYZ reader, and per-file distributional
// statistics that combine across files without retaining raw samples.
// Key types: Point, Header, Opener, Reader, LidarStats.
//
// Dependency rule: L1 depends on nothing else in internal/lidar.
package l1points
