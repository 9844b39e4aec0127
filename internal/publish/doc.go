// Package publish uploads columnar segments to the remote dataset store and
// commits the sync manifest once a source's artifact is fully durable.
//
// Uploads go through the ObjectStore interface. The production implementation
// speaks S3 via minio-go; tests use LocalStore, a filesystem stand-in with the
// same semantics. The manifest entry for a source is committed only after
// every segment upload succeeds, so a partially published artifact never
// advances the recorded sync state.
package publish
