// Package storage persists final job outcomes.
//
// The in-memory queues are deliberately volatile; these rows are what
// the reconciliation pass reads on startup to re-derive work lost to a
// crash or a shutdown timeout. Writes are best-effort from the
// dispatcher's point of view: a failed insert is logged, never fatal.
package storage
