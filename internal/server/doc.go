// Package server hosts the ingest daemon: the HTTP API, the media
// processing pool and the single-instance lock. The API is the only write
// path into the server stores; the CLI and the sync coordinator are both
// plain HTTP clients of it.
package server
