// Package sqlite contains the SQLite repository for generation run
// bookkeeping.
//
// Runs, their input files and their tile outcomes are written here rather
// than in the layer packages (L1-L6). This keeps domain logic free of SQL
// noise and lets the pipeline run without a database at all.
package sqlite
