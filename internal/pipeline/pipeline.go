package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"olsync/internal/columnar"
	"olsync/internal/config"
	"olsync/internal/dump"
	"olsync/internal/fetch"
	"olsync/internal/journal"
	"olsync/internal/logging"
	"olsync/internal/manifest"
	"olsync/internal/publish"
	"olsync/internal/services"
)

// ErrLocked indicates another run holds the pipeline lock.
var ErrLocked = errors.New("another sync run is in progress")

// ErrSourcesFailed indicates at least one source failed during the run.
var ErrSourcesFailed = errors.New("one or more sources failed")

// Pipeline wires the fetcher, converter, publisher, manifest, and journal
// into a single sync run.
type Pipeline struct {
	cfg       *config.Config
	logger    *slog.Logger
	manifest  *manifest.Store
	fetcher   *fetch.Client
	publisher *publish.Publisher
	journal   *journal.Store
}

// RunOptions controls what a run covers.
type RunOptions struct {
	// Only restricts the run to the named categories. Empty means all
	// configured categories.
	Only []string
	// DryRun probes and reports without downloading or publishing.
	DryRun bool
	// Keep retains the run's intermediate segment directory and the fetched
	// dumps for inspection.
	Keep bool
	// FetchOnly stops after the download stage.
	FetchOnly bool
	// ConvertOnly reuses the locally fetched dump instead of downloading,
	// failing when no dump is present.
	ConvertOnly bool
}

// SourceResult summarizes one source's outcome within a run.
type SourceResult struct {
	Source    string
	Category  dump.Category
	Status    journal.Status
	Signature string
	Lines     int64
	Rows      int64
	Skipped   int64
	Segments  int
	Bytes     int64
	Duration  time.Duration
	Err       error
}

// New constructs a pipeline. The journal may be nil; run history is then not
// recorded.
func New(cfg *config.Config, logger *slog.Logger, man *manifest.Store, fetcher *fetch.Client, publisher *publish.Publisher, jrnl *journal.Store) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
		manifest:  man,
		fetcher:   fetcher,
		publisher: publisher,
		journal:   jrnl,
	}
}

// Run executes a full sync pass over the configured sources. It returns the
// per-source results alongside ErrSourcesFailed when any source failed, so
// callers can both render the summary and exit non-zero.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) ([]SourceResult, error) {
	lock := flock.New(filepath.Join(p.cfg.Paths.WorkDir, "olsync.lock"))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !acquired {
		return nil, ErrLocked
	}
	defer func() { _ = lock.Unlock() }()

	categories := opts.Only
	if len(categories) == 0 {
		categories = p.cfg.Source.Categories
	}
	descriptors, err := dump.Sources(p.cfg.Source.BaseURL, categories)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "resolve sources", "", err)
	}

	runID := uuid.NewString()
	runDir := filepath.Join(p.cfg.Paths.WorkDir, "run-"+runID)
	if !opts.DryRun {
		if err := os.MkdirAll(runDir, 0o755); err != nil {
			return nil, fmt.Errorf("create run directory: %w", err)
		}
		if !opts.Keep {
			defer os.RemoveAll(runDir)
		}
	}

	logger := p.logger.With(logging.String(logging.FieldRunID, runID))
	logger.Info("sync run started",
		logging.Int("sources", len(descriptors)),
		logging.Bool("dry_run", opts.DryRun),
	)

	results := make([]SourceResult, 0, len(descriptors))
	failed := 0
	for _, desc := range descriptors {
		result := p.runSource(ctx, logger, runID, runDir, desc, opts)
		if result.Err != nil {
			failed++
		}
		results = append(results, result)
		if ctx.Err() != nil {
			break
		}
	}

	logger.Info("sync run finished",
		logging.Int("sources", len(results)),
		logging.Int("failed", failed),
	)
	if err := ctx.Err(); err != nil {
		return results, err
	}
	if failed > 0 {
		return results, ErrSourcesFailed
	}
	return results, nil
}

func (p *Pipeline) runSource(ctx context.Context, logger *slog.Logger, runID, runDir string, desc dump.SourceDescriptor, opts RunOptions) SourceResult {
	start := time.Now()
	result := SourceResult{Source: desc.Name, Category: desc.Category, Status: journal.StatusPending}
	sourceLogger := logger.With(
		logging.String(logging.FieldSource, desc.Name),
		logging.String(logging.FieldCategory, desc.Category.String()),
	)

	recID := p.journalBegin(ctx, runID, desc)
	fail := func(stage string, err error) SourceResult {
		result.Status = journal.StatusFailed
		result.Err = err
		result.Duration = time.Since(start)
		sourceLogger.Error("source failed",
			logging.String(logging.FieldStage, stage),
			logging.Error(err),
		)
		p.journalFailed(ctx, recID, stage, err)
		return result
	}

	p.journalStatus(ctx, recID, journal.StatusFetching)
	info, err := p.fetcher.Probe(ctx, desc)
	if err != nil {
		return fail("probe", err)
	}
	result.Signature = info.Signature

	entry, known := p.manifest.Lookup(desc.Name)
	if !fetch.NeedsFetch(entry, known, info) {
		result.Status = journal.StatusUpToDate
		result.Duration = time.Since(start)
		sourceLogger.Info("source up to date", logging.String("signature", info.Signature))
		p.journalUpToDate(ctx, recID, info.Signature)
		return result
	}

	if opts.DryRun {
		result.Status = journal.StatusPending
		result.Duration = time.Since(start)
		sourceLogger.Info("source needs sync", logging.String("signature", info.Signature))
		return result
	}

	var dumpPath string
	if opts.ConvertOnly {
		dumpPath = filepath.Join(p.cfg.DumpDir(), desc.Name)
		if _, statErr := os.Stat(dumpPath); statErr != nil {
			return fail("fetch", services.Wrap(services.ErrNotFound, "pipeline", "locate dump",
				dumpPath+" (run `olsync fetch` first)", statErr))
		}
	} else {
		fetched, err := p.EnsureArtifact(ctx, desc, info)
		if err != nil {
			return fail("fetch", err)
		}
		dumpPath = fetched.Path
		result.Bytes = fetched.Bytes
	}

	if opts.FetchOnly {
		result.Status = journal.StatusFetching
		result.Duration = time.Since(start)
		sourceLogger.Info("dump fetched, conversion skipped")
		return result
	}

	p.journalStatus(ctx, recID, journal.StatusConverting)
	conversion, err := p.Convert(ctx, desc, dumpPath, filepath.Join(runDir, desc.Category.String()))
	if err != nil {
		return fail("convert", err)
	}
	result.Lines = conversion.Lines
	result.Rows = conversion.Rows
	result.Skipped = conversion.Skipped
	result.Segments = len(conversion.Segments)

	p.journalStatus(ctx, recID, journal.StatusPublishing)
	if _, err := p.PublishArtifact(ctx, desc, info.Signature, conversion.Segments); err != nil {
		return fail("publish", err)
	}

	// The published artifact no longer needs its source dump. Failed or
	// fetch-only sources keep theirs so the next run can resume or convert.
	if !opts.Keep {
		if err := os.Remove(dumpPath); err != nil {
			sourceLogger.Warn("remove fetched dump failed", logging.Error(err))
		}
	}

	result.Status = journal.StatusPublished
	result.Duration = time.Since(start)
	sourceLogger.Info("source published",
		logging.Int64("rows", result.Rows),
		logging.Int64("skipped", result.Skipped),
		logging.Int("segments", result.Segments),
		logging.Duration("elapsed", result.Duration),
	)
	p.journalPublished(ctx, recID, info.Signature, result)
	return result
}

// EnsureArtifact downloads the dump for desc into the dump directory using
// the probed remote info. The destination path is stable across runs so an
// interrupted download can resume from its partial file.
func (p *Pipeline) EnsureArtifact(ctx context.Context, desc dump.SourceDescriptor, info fetch.RemoteInfo) (fetch.Result, error) {
	if err := os.MkdirAll(p.cfg.DumpDir(), 0o755); err != nil {
		return fetch.Result{}, services.Wrap(services.ErrFatal, "pipeline", "create dump directory", "", err)
	}
	return p.fetcher.Fetch(ctx, desc, info, filepath.Join(p.cfg.DumpDir(), desc.Name))
}

// PublishArtifact uploads the converted segments and commits the manifest
// entry for desc under the probed signature.
func (p *Pipeline) PublishArtifact(ctx context.Context, desc dump.SourceDescriptor, signature string, segments []columnar.Segment) (manifest.Entry, error) {
	if p.publisher == nil {
		return manifest.Entry{}, services.Wrap(services.ErrConfiguration, "pipeline", "publish", "no dataset store configured", nil)
	}
	return p.publisher.Publish(ctx, desc, signature, segments)
}

func (p *Pipeline) journalBegin(ctx context.Context, runID string, desc dump.SourceDescriptor) int64 {
	if p.journal == nil {
		return 0
	}
	id, err := p.journal.Begin(ctx, runID, desc.Name, desc.Category.String())
	if err != nil {
		p.logger.Warn("journal write failed", logging.Error(err))
		return 0
	}
	return id
}

func (p *Pipeline) journalStatus(ctx context.Context, id int64, status journal.Status) {
	if p.journal == nil || id == 0 {
		return
	}
	if err := p.journal.SetStatus(ctx, id, status); err != nil {
		p.logger.Warn("journal write failed", logging.Error(err))
	}
}

func (p *Pipeline) journalUpToDate(ctx context.Context, id int64, signature string) {
	if p.journal == nil || id == 0 {
		return
	}
	if err := p.journal.MarkUpToDate(ctx, id, signature); err != nil {
		p.logger.Warn("journal write failed", logging.Error(err))
	}
}

func (p *Pipeline) journalPublished(ctx context.Context, id int64, signature string, result SourceResult) {
	if p.journal == nil || id == 0 {
		return
	}
	if err := p.journal.MarkPublished(ctx, id, signature, result.Rows, result.Skipped, result.Segments); err != nil {
		p.logger.Warn("journal write failed", logging.Error(err))
	}
}

func (p *Pipeline) journalFailed(ctx context.Context, id int64, stage string, failure error) {
	if p.journal == nil || id == 0 {
		return
	}
	message := ""
	if failure != nil {
		message = failure.Error()
	}
	if err := p.journal.MarkFailed(ctx, id, stage, message); err != nil {
		p.logger.Warn("journal write failed", logging.Error(err))
	}
}
