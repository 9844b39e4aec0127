// Package services defines the shared error taxonomy and retry policy used
// across the sync pipeline.
//
// Errors are tagged with sentinel markers (transient, integrity, malformed,
// fatal, configuration, not-found) so stages can classify failures without
// string matching. RetryPolicy expresses bounded exponential backoff as an
// explicit, independently testable value instead of ad hoc loops inside the
// fetcher and publisher.
package services
