// Package localqueue durably persists capture submissions attempted while
// offline, surviving process restarts.
//
// The SQLite-backed store is the source of truth: Count always recomputes
// from storage rather than tracking an in-memory counter, and List returns a
// restartable iterator that re-queries in enqueue order so a drain
// interrupted mid-pass resumes from the remaining head. Every mutation is a
// single-row statement, so a foreground drain and a background wake touching
// the store concurrently can interleave but never corrupt it.
//
// When the queue database cannot be opened the package degrades to an
// in-memory queue for the session; callers check Durable to warn the user
// that captures will not survive a restart.
package localqueue
