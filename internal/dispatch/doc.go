// Package dispatch runs the background media processing pool. Workers pull
// one-shot tasks off a bounded channel, look up the handler for the file
// type and write the outcome back through the asset store's guarded
// transitions. There is no retry loop here; a failed asset waits for an
// explicit retry and an unsupported one stays in processing.
package dispatch
