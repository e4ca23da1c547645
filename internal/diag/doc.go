// Package diag defines the diagnostic model shared by all compiler phases.
//
// Diagnostic is the central record: severity, stable numeric code, message,
// a primary source span, and optional secondary notes. Phases emit through a
// Reporter so production stays decoupled from storage; Bag aggregates
// diagnostics with a capacity limit and supports deterministic sorting and
// deduplication.
//
// The package performs no formatting or IO. Rendering belongs to whatever
// front end consumes the compiler; everything here is plain data so results
// can be serialized, cached, and compared byte for byte.
package diag
