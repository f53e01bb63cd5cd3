// Package ingest accepts submitted captures on the server side. A media
// capture is a two-step create: the asset row first, then the capture
// record, with the asset rolled back if the record insert fails. Accepted
// media is handed to the processing pool and the visit scorer is poked on
// a detached goroutine so a slow or dead scorer never delays the submit.
package ingest
