// Package store persists build run artifacts on disk.
//
// Each run owns a directory tree keyed by pipeline stage. Artifacts are
// immutable and versioned by iteration: corrections never edit in place,
// they write the next iteration. Every successful write appends one record
// to an append-only transition log, which is the durable record of build
// history and what makes runs resumable after a crash.
//
// Writes are atomic (temp file + rename) and serialized per (run, kind)
// key, so readers observe either the prior latest artifact or the new one,
// never a partial write.
package store
