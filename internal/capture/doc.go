// Package capture defines the shared vocabulary for field captures: capture
// types, who recorded them, geotags, and the closed file-type classification
// used by asset processing.
//
// Both the client queue and the server ingest path depend on this package, so
// it stays free of persistence and transport concerns.
package capture
