// Package fetch retrieves remote dump files when the manifest says they are
// stale or absent.
//
// Change detection uses a cheap HEAD probe: the remote's Last-Modified (or
// ETag) header is the signature compared against the manifest entry. Downloads
// stream to a .partial file, resume with range requests after transient
// failures when the server allows it, and are verified against the advertised
// size before being renamed into place. Integrity mismatches discard the
// partial data entirely; partial downloads are never trusted.
//
// The fetcher never touches the manifest. Committing is the publisher's job,
// after the full pipeline has succeeded.
package fetch
