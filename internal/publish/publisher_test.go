package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"olsync/internal/columnar"
	"olsync/internal/config"
	"olsync/internal/dump"
	"olsync/internal/manifest"
	"olsync/internal/services"
)

func testPolicy() services.RetryPolicy {
	return services.RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Sleep: func(context.Context, time.Duration) error {
			return nil
		},
	}
}

func writeSegments(t *testing.T, dir string, count int) []columnar.Segment {
	t.Helper()
	segments := make([]columnar.Segment, 0, count)
	for i := 0; i < count; i++ {
		path := filepath.Join(dir, fmt.Sprintf("authors_%d.parquet", i))
		if err := os.WriteFile(path, []byte(fmt.Sprintf("segment-%d", i)), 0o644); err != nil {
			t.Fatalf("write segment: %v", err)
		}
		segments = append(segments, columnar.Segment{Index: i, Path: path, Rows: int64(10 + i)})
	}
	return segments
}

func openManifest(t *testing.T, dir string) *manifest.Store {
	t.Helper()
	man, err := manifest.Open(filepath.Join(dir, "ol_sync_manifest.json"))
	if err != nil {
		t.Fatalf("open manifest: %v", err)
	}
	return man
}

func TestPublishUploadsSegmentsAndCommits(t *testing.T) {
	tmp := t.TempDir()
	store := NewLocalStore(filepath.Join(tmp, "store"))
	man := openManifest(t, tmp)
	cfg := config.Dataset{Bucket: "openlibrary", Prefix: "ol"}
	pub := New(store, cfg, man, testPolicy(), nil)

	desc := dump.NewSourceDescriptor("https://example.org/data", dump.CategoryAuthors)
	segments := writeSegments(t, tmp, 3)

	entry, err := pub.Publish(context.Background(), desc, "sig-1", segments)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if entry.Artifact.Segments != 3 {
		t.Fatalf("expected 3 segments, got %d", entry.Artifact.Segments)
	}
	if entry.Artifact.Rows != 10+11+12 {
		t.Fatalf("unexpected row count %d", entry.Artifact.Rows)
	}
	if entry.Artifact.Prefix != "ol/authors" {
		t.Fatalf("unexpected artifact prefix %q", entry.Artifact.Prefix)
	}

	keys, err := store.ListPrefix(context.Background(), "openlibrary", "ol/authors/")
	if err != nil {
		t.Fatalf("ListPrefix: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 uploaded objects, got %v", keys)
	}

	committed, ok := man.Lookup(desc.Name)
	if !ok {
		t.Fatal("manifest entry missing after publish")
	}
	if committed.Signature != "sig-1" {
		t.Fatalf("unexpected committed signature %q", committed.Signature)
	}
}

type failingStore struct {
	*LocalStore
	failAfter int
	uploads   int
}

func (f *failingStore) UploadFile(ctx context.Context, bucket, key, path string) error {
	f.uploads++
	if f.uploads > f.failAfter {
		return services.Wrap(services.ErrFatal, "publish", "upload", "injected failure", nil)
	}
	return f.LocalStore.UploadFile(ctx, bucket, key, path)
}

func TestPublishFailureLeavesManifestUntouched(t *testing.T) {
	tmp := t.TempDir()
	store := &failingStore{LocalStore: NewLocalStore(filepath.Join(tmp, "store")), failAfter: 1}
	man := openManifest(t, tmp)
	cfg := config.Dataset{Bucket: "openlibrary", Prefix: "ol"}
	pub := New(store, cfg, man, testPolicy(), nil)

	desc := dump.NewSourceDescriptor("https://example.org/data", dump.CategoryAuthors)
	segments := writeSegments(t, tmp, 3)

	_, err := pub.Publish(context.Background(), desc, "sig-1", segments)
	if !errors.Is(err, services.ErrFatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if _, ok := man.Lookup(desc.Name); ok {
		t.Fatal("manifest must not record a partially published artifact")
	}
	if _, statErr := os.Stat(man.Path()); !os.IsNotExist(statErr) {
		t.Fatal("manifest file must not exist when nothing was committed")
	}
}

func TestPublishReplacesPreviousEntry(t *testing.T) {
	tmp := t.TempDir()
	store := NewLocalStore(filepath.Join(tmp, "store"))
	man := openManifest(t, tmp)
	cfg := config.Dataset{Bucket: "openlibrary"}
	pub := New(store, cfg, man, testPolicy(), nil)

	desc := dump.NewSourceDescriptor("https://example.org/data", dump.CategoryWorks)
	if err := man.Commit(desc.Name, manifest.Entry{Signature: "old"}); err != nil {
		t.Fatalf("seed manifest: %v", err)
	}

	segments := writeSegments(t, tmp, 1)
	if _, err := pub.Publish(context.Background(), desc, "new", segments); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	entry, ok := man.Lookup(desc.Name)
	if !ok || entry.Signature != "new" {
		t.Fatalf("expected replaced entry, got %+v ok=%v", entry, ok)
	}
}

func TestRepublishPrunesStaleSegments(t *testing.T) {
	tmp := t.TempDir()
	store := NewLocalStore(filepath.Join(tmp, "store"))
	man := openManifest(t, tmp)
	cfg := config.Dataset{Bucket: "openlibrary", Prefix: "ol"}
	pub := New(store, cfg, man, testPolicy(), nil)

	desc := dump.NewSourceDescriptor("https://example.org/data", dump.CategoryAuthors)
	if _, err := pub.Publish(context.Background(), desc, "sig-1", writeSegments(t, tmp, 3)); err != nil {
		t.Fatalf("first publish: %v", err)
	}

	// The smaller resync must not leave authors_2.parquet behind.
	if _, err := pub.Publish(context.Background(), desc, "sig-2", writeSegments(t, tmp, 2)); err != nil {
		t.Fatalf("second publish: %v", err)
	}
	keys, err := store.ListPrefix(context.Background(), "openlibrary", "ol/authors/")
	if err != nil {
		t.Fatalf("ListPrefix: %v", err)
	}
	want := []string{"ol/authors/authors_0.parquet", "ol/authors/authors_1.parquet"}
	if len(keys) != len(want) || keys[0] != want[0] || keys[1] != want[1] {
		t.Fatalf("expected %v after resync, got %v", want, keys)
	}
}

func TestPublishManifestMirrorsFile(t *testing.T) {
	tmp := t.TempDir()
	store := NewLocalStore(filepath.Join(tmp, "store"))
	man := openManifest(t, tmp)
	if err := man.Commit("ol_dump_authors_latest.txt.gz", manifest.Entry{Signature: "sig"}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	cfg := config.Dataset{Bucket: "openlibrary", Prefix: "ol"}
	pub := New(store, cfg, man, testPolicy(), nil)

	if err := pub.PublishManifest(context.Background()); err != nil {
		t.Fatalf("PublishManifest: %v", err)
	}
	keys, err := store.ListPrefix(context.Background(), "openlibrary", "ol/metadata/")
	if err != nil {
		t.Fatalf("ListPrefix: %v", err)
	}
	if len(keys) != 1 || keys[0] != "ol/metadata/ol_sync_manifest.json" {
		t.Fatalf("unexpected mirrored keys %v", keys)
	}
}

func TestObjectKeyJoinsAndTrims(t *testing.T) {
	if got := ObjectKey("ol/", "", "/authors", "authors_0.parquet"); got != "ol/authors/authors_0.parquet" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := ObjectKey("", "authors"); got != "authors" {
		t.Fatalf("unexpected key %q", got)
	}
}
