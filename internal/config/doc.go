// Package config loads, normalizes, and validates olsync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OLSYNC_ACCESS_KEY and OLSYNC_SECRET_KEY for the dataset store. The Config
// type centralizes every knob the CLI and pipeline need, so sync state paths
// and remote endpoints are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
