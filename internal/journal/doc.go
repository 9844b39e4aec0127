// Package journal persists per-source run history in SQLite for diagnostics
// and the status command. The journal is observational only: sync decisions
// are driven entirely by the manifest, and a lost or deleted journal never
// changes what a run fetches or publishes.
package journal
