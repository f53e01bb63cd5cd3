// Command fieldcapture is the field rep CLI. Captures land in a local
// durable queue immediately and sync to the ingest daemon when
// connectivity allows, so the tool stays usable in basements and dead
// zones.
package main
