// Package config loads, normalizes, and validates fieldcapture configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and clamps timing knobs into their documented
// ranges. The Config type centralizes every setting the daemon and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
