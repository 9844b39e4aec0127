// Package logging configures slog output for the CLI and pipeline.
//
// It supports console and JSON formats, optional file outputs alongside
// stdout/stderr, standardized field keys for component/source/stage context,
// and a no-op logger for tests. Obtain loggers through New or NewFromConfig so
// every component emits the same field vocabulary.
package logging
