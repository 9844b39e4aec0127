// Package manifest persists per-source sync state between runs.
//
// The manifest is a single JSON document mapping dump file names to the
// signature last seen on the remote host, the time the source was last
// published, and the identity of the published artifact. It is read fully at
// run start and rewritten through a temp-file rename on commit so an
// interrupted process can never leave a partially written manifest behind.
//
// An entry is committed if and only if the corresponding artifact has been
// durably published; the publisher owns the commit call.
package manifest
