package testsupport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// DumpLine renders one export line in the five-column tab-separated format.
// The payload is JSON-encoded in place.
func DumpLine(t testing.TB, recordType, key string, revision int, lastModified string, payload map[string]any) string {
	t.Helper()
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return strings.Join([]string{
		recordType,
		key,
		fmt.Sprintf("%d", revision),
		lastModified,
		string(encoded),
	}, "\t")
}

// GzipLines compresses the given lines into an in-memory dump stream.
func GzipLines(t testing.TB, lines []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, line := range lines {
		if _, err := gz.Write([]byte(line + "\n")); err != nil {
			t.Fatalf("write gzip line: %v", err)
		}
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
	return buf.Bytes()
}

// WriteDump writes a gzip-compressed dump fixture to path.
func WriteDump(t testing.TB, path string, lines []string) {
	t.Helper()
	if err := os.WriteFile(path, GzipLines(t, lines), 0o644); err != nil {
		t.Fatalf("write dump fixture: %v", err)
	}
}

// AuthorLine builds a plausible author record line.
func AuthorLine(t testing.TB, key, name string) string {
	t.Helper()
	return DumpLine(t, "/type/author", key, 1, "2026-07-15T02:00:00.000000", map[string]any{
		"key":  key,
		"name": name,
		"type": map[string]any{"key": "/type/author"},
	})
}
