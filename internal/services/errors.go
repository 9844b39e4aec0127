package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks failures that are expected to succeed on retry
	// (network timeouts, 5xx responses, temporarily unavailable stores).
	ErrTransient = errors.New("transient failure")
	// ErrIntegrity marks downloads whose size or signature did not match what
	// the remote advertised. The partial data is discarded and the operation
	// restarts from scratch.
	ErrIntegrity = errors.New("integrity failure")
	// ErrMalformed marks per-record problems (bad line, missing required
	// field). These are counted, never fatal for the source.
	ErrMalformed = errors.New("malformed record")
	// ErrFatal marks serialization or upload failures that abort the current
	// source's run and leave the manifest untouched.
	ErrFatal = errors.New("fatal failure")
	// ErrConfiguration marks invalid or missing configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks missing remote or local artifacts.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether the fetcher and publisher retry loops should
// attempt the operation again. Integrity failures are retryable because the
// retry restarts the transfer from scratch with fresh data.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrIntegrity)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
