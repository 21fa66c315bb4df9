// Package pipeline orchestrates a map generation run.
//
// It wires together the layer packages (L1-L6) into one flow: read input
// headers, resolve coordinate systems, tile the survey, stream points into
// per-tile buckets, process tiles on a bounded worker pool and finish the
// shared document with merging and reprojection. The pipeline does not own
// domain logic; it delegates to layer packages and reports through a
// monitoring.Sink.
package pipeline
