// Package types holds the shared data model for the batch summarization
// pipeline: segments, tasks, batches, cancellation tokens, partial results,
// quality grades, progress snapshots, processing errors and merge jobs.
//
// Every type here is a plain data holder; behavior (state transitions,
// validation, scoring) lives in the package that owns the corresponding
// lifecycle (scheduler, cancellation, partial, progress, merge, errs).
package types

// Segment is one ordered, immutable chunk of a pre-segmented document.
// Ordering by Index is canonical throughout the system.
type Segment struct {
	Index   int
	Title   string
	Content string
}
