// Package logging constructs the slog loggers used across fieldcapture and
// standardizes the structured field keys so capture, asset, and visit stop
// identifiers are queryable with a single name everywhere.
package logging
