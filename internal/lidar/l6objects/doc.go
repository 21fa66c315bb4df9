// Package l6objects owns Layer 6 (Objects) of the map generation model.
//
// Responsibilities: the cartographic symbol set, map objects (point, line,
// area) with ordered tags, and the shared Document every tile worker
// appends to, including the final cross-tile line merge and GeoJSON export.
// Key types: Symbol, Object, Document.
//
// Dependency rule: L6 may depend on L1-L5.
//
// Concurrency: Document is guarded by a single mutex. Critical sections are
// limited to capacity reservation and appends; a panic inside one poisons
// the document and every later call fails with ErrPoisoned.
package l6objects
