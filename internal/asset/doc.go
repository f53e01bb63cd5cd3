// Package asset persists media asset metadata in SQLite and owns the
// processing state machine for uploaded bytes.
//
// Every transition is a guarded single-row UPDATE conditioned on the
// expected current status, so an out-of-order worker callback or a stale
// retry loses the race cleanly instead of corrupting the lifecycle.
// Concurrent retries of the same failed asset are deliberately not mutually
// excluded; both may win their guard in sequence and the last status write
// wins, which bounds the damage to a duplicate dispatch.
//
// Treat this package as the single source of truth for asset lifecycle
// semantics; new statuses go here and nowhere else.
package asset
