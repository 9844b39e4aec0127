// Package pipeline orchestrates the sync run: probe each configured dump
// source, download what changed, convert it to columnar segments, publish the
// segments, and commit the manifest.
//
// Sources are isolated from each other. A failure in one source is recorded
// and the run moves on to the next; the process exit status reflects whether
// any source failed. A flock-guarded lock file prevents concurrent runs from
// interleaving partial artifacts.
package pipeline
