package columnar_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"olsync/internal/columnar"
	"olsync/internal/dump"
	"olsync/internal/schema"
)

func authorsSchema(t *testing.T) schema.Schema {
	t.Helper()
	s, err := schema.ForCategory(dump.CategoryAuthors)
	if err != nil {
		t.Fatalf("ForCategory failed: %v", err)
	}
	return s
}

func authorRow(key, name string) schema.Row {
	row := schema.Row{
		"key":             key,
		"revision":        int64(1),
		"last_modified":   "2026-07-15T02:00:00.000000",
		"name":            name,
		"personal_name":   nil,
		"birth_date":      nil,
		"death_date":      nil,
		"bio":             nil,
		"alternate_names": nil,
		"links":           nil,
	}
	return row
}

func TestWriterFlushesAtRowThreshold(t *testing.T) {
	dir := t.TempDir()
	w := columnar.NewWriter(authorsSchema(t), dir, columnar.Options{BatchRows: 3})

	for i := 0; i < 7; i++ {
		if err := w.Append(authorRow(fmt.Sprintf("/authors/OL%dA", i), "Author")); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	segments := w.Segments()
	if len(segments) != 3 {
		t.Fatalf("segments = %d, want 3 (two full batches plus remainder)", len(segments))
	}
	wantRows := []int64{3, 3, 1}
	for i, segment := range segments {
		if segment.Rows != wantRows[i] {
			t.Errorf("segment %d rows = %d, want %d", i, segment.Rows, wantRows[i])
		}
		if segment.Index != i {
			t.Errorf("segment %d index = %d", i, segment.Index)
		}
		wantName := fmt.Sprintf("authors_%d.parquet", i)
		if filepath.Base(segment.Path) != wantName {
			t.Errorf("segment path = %s, want %s", segment.Path, wantName)
		}
		if segment.Bytes <= 0 {
			t.Errorf("segment %d has no bytes", i)
		}
	}
	if w.Rows() != 7 {
		t.Fatalf("Rows = %d, want 7", w.Rows())
	}
}

func TestSegmentsAreIndependentlyReadable(t *testing.T) {
	dir := t.TempDir()
	w := columnar.NewWriter(authorsSchema(t), dir, columnar.Options{BatchRows: 2})

	for i := 0; i < 4; i++ {
		if err := w.Append(authorRow(fmt.Sprintf("/authors/OL%dA", i), "Author")); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Each segment is self-contained: read them one at a time.
	for _, segment := range w.Segments() {
		rows, err := columnar.ReadSegment(segment.Path)
		if err != nil {
			t.Fatalf("ReadSegment(%s) failed: %v", segment.Path, err)
		}
		if int64(len(rows)) != segment.Rows {
			t.Fatalf("segment %d: read %d rows, recorded %d", segment.Index, len(rows), segment.Rows)
		}
	}
}

func TestRoundTripPreservesValuesAndNulls(t *testing.T) {
	dir := t.TempDir()
	w := columnar.NewWriter(authorsSchema(t), dir, columnar.Options{BatchRows: 10})

	row := schema.Row{
		"key":             "/authors/OL1A",
		"revision":        int64(9),
		"last_modified":   "2026-07-15T02:00:00.000000",
		"name":            "Mary Shelley",
		"personal_name":   "Mary Wollstonecraft Shelley",
		"birth_date":      "30 August 1797",
		"death_date":      nil,
		"bio":             nil,
		"alternate_names": `["Mary Wollstonecraft Godwin"]`,
		"links":           nil,
	}
	if err := w.Append(row); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	segments := w.Segments()
	if len(segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(segments))
	}
	rows, err := columnar.ReadSegment(segments[0].Path)
	if err != nil {
		t.Fatalf("ReadSegment failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	got := rows[0]

	for _, field := range []string{"key", "name", "personal_name", "birth_date", "last_modified", "alternate_names"} {
		if got[field] != row[field] {
			t.Errorf("field %q = %v, want %v", field, got[field], row[field])
		}
	}
	// Explicit nulls survive the round trip.
	for _, field := range []string{"death_date", "bio", "links"} {
		value, present := got[field]
		if !present {
			t.Errorf("field %q missing from read row", field)
			continue
		}
		if value != nil {
			t.Errorf("field %q = %v, want null", field, value)
		}
	}
	// INT64 comes back as a JSON number.
	if revision, ok := got["revision"].(float64); !ok || int64(revision) != 9 {
		t.Errorf("revision = %v", got["revision"])
	}
}

func TestCloseWithoutRowsWritesNothing(t *testing.T) {
	dir := t.TempDir()
	w := columnar.NewWriter(authorsSchema(t), dir, columnar.Options{BatchRows: 2})
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if len(w.Segments()) != 0 {
		t.Fatal("expected no segments")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty dir, found %d entries", len(entries))
	}
}

func TestAppendAfterCloseFails(t *testing.T) {
	w := columnar.NewWriter(authorsSchema(t), t.TempDir(), columnar.Options{})
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Append(authorRow("/authors/OL1A", "Author")); err == nil {
		t.Fatal("expected error appending after close")
	}
}
