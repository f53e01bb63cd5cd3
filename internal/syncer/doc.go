// Package syncer drains the local capture queue to the ingest daemon.
//
// A drain pass walks the queue in enqueue order and stops at the first
// failure, leaving every unsubmitted record in place. Records are removed
// only after the server confirms them, so the failure modes are bounded:
// a crash or timeout can duplicate the single in-flight record but can
// never drop one or reorder the rest.
package syncer
