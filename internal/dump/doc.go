// Package dump describes the bulk export files and parses their contents.
//
// Each dump is a gzip-compressed text file with one record per line in five
// tab-separated columns: type, key, revision, last-modified timestamp, and a
// JSON payload. Reader decompresses and splits lines incrementally so memory
// use stays flat regardless of file size; malformed lines are counted and
// skipped rather than aborting the stream.
package dump
