// Package merge executes merge plans against the remote record store.
//
// # Execution model
//
// Each planned group runs under advisory locks covering every canonical ID
// the plan touches, acquired in canonical ID order, so plans with
// overlapping ID sets serialize and disjoint plans run in parallel under a
// bounded concurrency gate. A rate-limit response from the store halves
// that gate for the rest of the run, flooring at one.
//
// # Safety
//
// Merging is irreversible, so the executor is deliberately paranoid:
//
//   - Both sides of every merge are re-resolved immediately before the
//     call; a pair that now collapses to one record is skipped, not merged.
//   - A forward-reference conflict gets exactly one retry after another
//     re-resolution; a second conflict is recorded as a failure and the run
//     moves on.
//   - Transient store errors retry with exponential backoff; auth and
//     validation errors abort the whole run, since they cannot succeed on
//     retry.
//   - A run-wide consumed set stops a record that was already merged this
//     run from being merged again through another group.
//
// Every decision lands in an append-only outcome log, forwarded row by row
// to an optional Sink, so even an interrupted run leaves a complete record
// of everything it did. Dry-run mode walks the same paths without touching
// the store at all.
package merge
