package testsupport

import (
	"path/filepath"
	"testing"

	"olsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// Batching thresholds are kept small so flush behavior is observable without
// large fixtures.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.ManifestPath = filepath.Join(base, "manifest.json")
	cfg.Convert.BatchRows = 4
	cfg.Convert.QueueDepth = 8
	cfg.Fetch.MaxAttempts = 2
	cfg.Dataset.MaxAttempts = 2

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithBatchRows overrides the columnar flush threshold.
func WithBatchRows(rows int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Convert.BatchRows = rows
	}
}

// WithBaseURL points the source host at a test server.
func WithBaseURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Source.BaseURL = url
	}
}

// WithCategories restricts the run to the named categories.
func WithCategories(categories ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Source.Categories = categories
	}
}
