package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"olsync/internal/config"
	"olsync/internal/fetch"
	"olsync/internal/journal"
	"olsync/internal/manifest"
	"olsync/internal/publish"
	"olsync/internal/services"
	"olsync/internal/testsupport"
)

type dumpServer struct {
	mu        sync.Mutex
	bodies    map[string][]byte
	signature string
	failures  map[string]int
	heads     map[string]int
	gets      map[string]int
}

func newDumpServer(signature string) *dumpServer {
	return &dumpServer{
		bodies:    make(map[string][]byte),
		signature: signature,
		failures:  make(map[string]int),
		heads:     make(map[string]int),
		gets:      make(map[string]int),
	}
}

func (s *dumpServer) setDump(name string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[name] = body
}

func (s *dumpServer) failAlways(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[name] = -1
}

func (s *dumpServer) getCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets[name]
}

func (s *dumpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(r.URL.Path)
	s.mu.Lock()
	body, ok := s.bodies[name]
	failing := s.failures[name] != 0
	if r.Method == http.MethodHead {
		s.heads[name]++
	} else {
		s.gets[name]++
	}
	signature := s.signature
	s.mu.Unlock()

	if failing {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Last-Modified", signature)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if r.Method == http.MethodHead {
		return
	}
	w.Write(body)
}

type testEnv struct {
	cfg      *config.Config
	man      *manifest.Store
	store    *publish.LocalStore
	pipeline *Pipeline
}

func newTestEnv(t *testing.T, server *dumpServer, opts ...testsupport.ConfigOption) *testEnv {
	t.Helper()
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)

	allOpts := append([]testsupport.ConfigOption{testsupport.WithBaseURL(ts.URL)}, opts...)
	cfg := testsupport.NewConfig(t, allOpts...)

	man, err := manifest.Open(cfg.Paths.ManifestPath)
	if err != nil {
		t.Fatalf("open manifest: %v", err)
	}

	policy := services.RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Sleep: func(context.Context, time.Duration) error {
			return nil
		},
	}
	fetcher := fetch.NewClient(policy)
	store := publish.NewLocalStore(filepath.Join(cfg.Paths.WorkDir, "dataset"))
	publisher := publish.New(store, cfg.Dataset, man, policy, nil)

	jrnl, err := journal.OpenPath(filepath.Join(cfg.Paths.LogDir, "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { jrnl.Close() })

	return &testEnv{
		cfg:      cfg,
		man:      man,
		store:    store,
		pipeline: New(cfg, nil, man, fetcher, publisher, jrnl),
	}
}

func authorsDump(t *testing.T, total, malformed int) []byte {
	t.Helper()
	lines := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if malformed > 0 && (i == 3 || i == 7) {
			lines = append(lines, "/type/author\t/authors/BROKEN")
			malformed--
			continue
		}
		lines = append(lines, testsupport.AuthorLine(t, fmt.Sprintf("/authors/OL%dA", i), fmt.Sprintf("Author %d", i)))
	}
	return testsupport.GzipLines(t, lines)
}

func TestRunPublishesAndCommits(t *testing.T) {
	server := newDumpServer("Mon, 06 Jan 2025 00:00:00 GMT")
	server.setDump("ol_dump_authors_latest.txt.gz", authorsDump(t, 10, 2))
	env := newTestEnv(t, server, testsupport.WithCategories("authors"))

	results, err := env.pipeline.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	result := results[0]
	if result.Status != journal.StatusPublished {
		t.Fatalf("unexpected status %q (err %v)", result.Status, result.Err)
	}
	if result.Lines != 10 || result.Rows != 8 || result.Skipped != 2 {
		t.Fatalf("unexpected accounting lines=%d rows=%d skipped=%d", result.Lines, result.Rows, result.Skipped)
	}
	// 8 rows at a batch threshold of 4 means exactly two segments.
	if result.Segments != 2 {
		t.Fatalf("expected 2 segments, got %d", result.Segments)
	}

	entry, ok := env.man.Lookup("ol_dump_authors_latest.txt.gz")
	if !ok {
		t.Fatal("manifest entry missing")
	}
	if entry.Signature != "Mon, 06 Jan 2025 00:00:00 GMT" {
		t.Fatalf("unexpected signature %q", entry.Signature)
	}
	if entry.Artifact.Rows != 8 || entry.Artifact.Segments != 2 {
		t.Fatalf("unexpected artifact %+v", entry.Artifact)
	}

	keys, err := env.store.ListPrefix(context.Background(), env.cfg.Dataset.Bucket, "authors/")
	if err != nil {
		t.Fatalf("ListPrefix: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 published segments, got %v", keys)
	}

	mirrored, err := env.store.ListPrefix(context.Background(), env.cfg.Dataset.Bucket, "metadata/")
	if err != nil {
		t.Fatalf("ListPrefix: %v", err)
	}
	if len(mirrored) != 1 {
		t.Fatalf("expected mirrored manifest, got %v", mirrored)
	}
}

func TestPublishRemovesFetchedDump(t *testing.T) {
	server := newDumpServer("Mon, 06 Jan 2025 00:00:00 GMT")
	server.setDump("ol_dump_authors_latest.txt.gz", authorsDump(t, 5, 0))
	env := newTestEnv(t, server, testsupport.WithCategories("authors"))
	dumpPath := filepath.Join(env.cfg.DumpDir(), "ol_dump_authors_latest.txt.gz")

	results, err := env.pipeline.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Status != journal.StatusPublished {
		t.Fatalf("expected publish, got %q (err %v)", results[0].Status, results[0].Err)
	}
	if _, err := os.Stat(dumpPath); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("published dump should be removed, stat: %v", err)
	}
}

func TestKeepRetainsFetchedDump(t *testing.T) {
	server := newDumpServer("Mon, 06 Jan 2025 00:00:00 GMT")
	server.setDump("ol_dump_authors_latest.txt.gz", authorsDump(t, 5, 0))
	env := newTestEnv(t, server, testsupport.WithCategories("authors"))
	dumpPath := filepath.Join(env.cfg.DumpDir(), "ol_dump_authors_latest.txt.gz")

	results, err := env.pipeline.Run(context.Background(), RunOptions{Keep: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Status != journal.StatusPublished {
		t.Fatalf("expected publish, got %q (err %v)", results[0].Status, results[0].Err)
	}
	if _, err := os.Stat(dumpPath); err != nil {
		t.Fatalf("keep must retain the dump: %v", err)
	}
}

func TestSecondRunIsIdempotent(t *testing.T) {
	server := newDumpServer("Mon, 06 Jan 2025 00:00:00 GMT")
	server.setDump("ol_dump_authors_latest.txt.gz", authorsDump(t, 5, 0))
	env := newTestEnv(t, server, testsupport.WithCategories("authors"))

	if _, err := env.pipeline.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	downloads := server.getCount("ol_dump_authors_latest.txt.gz")
	if downloads != 1 {
		t.Fatalf("expected 1 download after first run, got %d", downloads)
	}

	results, err := env.pipeline.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if results[0].Status != journal.StatusUpToDate {
		t.Fatalf("expected up_to_date, got %q", results[0].Status)
	}
	if got := server.getCount("ol_dump_authors_latest.txt.gz"); got != downloads {
		t.Fatalf("unchanged source must not be downloaded again (got %d)", got)
	}
}

func TestChangedSignatureTriggersResync(t *testing.T) {
	server := newDumpServer("Mon, 06 Jan 2025 00:00:00 GMT")
	server.setDump("ol_dump_authors_latest.txt.gz", authorsDump(t, 5, 0))
	env := newTestEnv(t, server, testsupport.WithCategories("authors"))

	if _, err := env.pipeline.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	server.mu.Lock()
	server.signature = "Tue, 07 Jan 2025 00:00:00 GMT"
	server.mu.Unlock()
	server.setDump("ol_dump_authors_latest.txt.gz", authorsDump(t, 6, 0))

	results, err := env.pipeline.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if results[0].Status != journal.StatusPublished {
		t.Fatalf("expected republish, got %q (err %v)", results[0].Status, results[0].Err)
	}
	entry, _ := env.man.Lookup("ol_dump_authors_latest.txt.gz")
	if entry.Signature != "Tue, 07 Jan 2025 00:00:00 GMT" {
		t.Fatalf("manifest signature not advanced: %q", entry.Signature)
	}
	if entry.Artifact.Rows != 6 {
		t.Fatalf("expected 6 rows after resync, got %d", entry.Artifact.Rows)
	}
}

func TestSourceFailureIsIsolated(t *testing.T) {
	server := newDumpServer("Mon, 06 Jan 2025 00:00:00 GMT")
	server.setDump("ol_dump_authors_latest.txt.gz", authorsDump(t, 5, 0))
	server.failAlways("ol_dump_works_latest.txt.gz")
	env := newTestEnv(t, server, testsupport.WithCategories("authors", "works"))

	results, err := env.pipeline.Run(context.Background(), RunOptions{})
	if !errors.Is(err, ErrSourcesFailed) {
		t.Fatalf("expected ErrSourcesFailed, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	byCategory := map[string]SourceResult{}
	for _, result := range results {
		byCategory[result.Category.String()] = result
	}
	if byCategory["authors"].Status != journal.StatusPublished {
		t.Fatalf("authors should publish despite works failing: %+v", byCategory["authors"])
	}
	if byCategory["works"].Status != journal.StatusFailed {
		t.Fatalf("works should fail: %+v", byCategory["works"])
	}
	if _, ok := env.man.Lookup("ol_dump_works_latest.txt.gz"); ok {
		t.Fatal("failed source must not gain a manifest entry")
	}
	if _, ok := env.man.Lookup("ol_dump_authors_latest.txt.gz"); !ok {
		t.Fatal("healthy source must still be committed")
	}
}

func TestDryRunDownloadsNothing(t *testing.T) {
	server := newDumpServer("Mon, 06 Jan 2025 00:00:00 GMT")
	server.setDump("ol_dump_authors_latest.txt.gz", authorsDump(t, 5, 0))
	env := newTestEnv(t, server, testsupport.WithCategories("authors"))

	results, err := env.pipeline.Run(context.Background(), RunOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Status != journal.StatusPending {
		t.Fatalf("expected pending (needs sync), got %q", results[0].Status)
	}
	if got := server.getCount("ol_dump_authors_latest.txt.gz"); got != 0 {
		t.Fatalf("dry run must not download, saw %d GETs", got)
	}
	if _, ok := env.man.Lookup("ol_dump_authors_latest.txt.gz"); ok {
		t.Fatal("dry run must not commit the manifest")
	}
}

func TestFetchOnlyThenConvertOnly(t *testing.T) {
	server := newDumpServer("Mon, 06 Jan 2025 00:00:00 GMT")
	server.setDump("ol_dump_authors_latest.txt.gz", authorsDump(t, 5, 0))
	env := newTestEnv(t, server, testsupport.WithCategories("authors"))

	results, err := env.pipeline.Run(context.Background(), RunOptions{FetchOnly: true})
	if err != nil {
		t.Fatalf("fetch run: %v", err)
	}
	if results[0].Status != journal.StatusFetching {
		t.Fatalf("expected fetch-only status, got %q (err %v)", results[0].Status, results[0].Err)
	}
	if _, ok := env.man.Lookup("ol_dump_authors_latest.txt.gz"); ok {
		t.Fatal("fetch-only must not commit the manifest")
	}
	downloads := server.getCount("ol_dump_authors_latest.txt.gz")

	results, err = env.pipeline.Run(context.Background(), RunOptions{ConvertOnly: true})
	if err != nil {
		t.Fatalf("convert run: %v", err)
	}
	if results[0].Status != journal.StatusPublished {
		t.Fatalf("expected publish from local dump, got %q (err %v)", results[0].Status, results[0].Err)
	}
	if got := server.getCount("ol_dump_authors_latest.txt.gz"); got != downloads {
		t.Fatalf("convert-only must not download, saw %d GETs", got)
	}
}

func TestConvertOnlyWithoutDumpFails(t *testing.T) {
	server := newDumpServer("Mon, 06 Jan 2025 00:00:00 GMT")
	server.setDump("ol_dump_authors_latest.txt.gz", authorsDump(t, 5, 0))
	env := newTestEnv(t, server, testsupport.WithCategories("authors"))

	results, err := env.pipeline.Run(context.Background(), RunOptions{ConvertOnly: true})
	if !errors.Is(err, ErrSourcesFailed) {
		t.Fatalf("expected ErrSourcesFailed, got %v", err)
	}
	if !errors.Is(results[0].Err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", results[0].Err)
	}
}

func TestRunOnlyRestrictsCategories(t *testing.T) {
	server := newDumpServer("Mon, 06 Jan 2025 00:00:00 GMT")
	server.setDump("ol_dump_works_latest.txt.gz", testsupport.GzipLines(t, []string{
		testsupport.DumpLine(t, "/type/work", "/works/OL1W", 1, "2025-01-06T00:00:00", map[string]any{
			"title": "A Work",
		}),
	}))
	env := newTestEnv(t, server)

	results, err := env.pipeline.Run(context.Background(), RunOptions{Only: []string{"works"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 || results[0].Category.String() != "works" {
		t.Fatalf("expected single works result, got %+v", results)
	}
	if results[0].Status != journal.StatusPublished {
		t.Fatalf("expected publish, got %q (err %v)", results[0].Status, results[0].Err)
	}
}
