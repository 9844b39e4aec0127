package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"olsync/internal/logging"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "olsync.log")
	logger, err := logging.New(logging.Options{
		Level:       "debug",
		Format:      "json",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("segment flushed", logging.Int("rows", 42), logging.String(logging.FieldCategory, "authors"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "segment flushed") || !strings.Contains(text, `"rows":42`) {
		t.Fatalf("unexpected log contents: %s", text)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	logger.Error("should vanish", logging.Error(os.ErrNotExist))
}

func TestComponentLoggerNilBase(t *testing.T) {
	logger := logging.NewComponentLogger(nil, "fetch")
	if logger == nil {
		t.Fatal("expected logger")
	}
	logger.Info("noop")
}
