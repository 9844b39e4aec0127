package publish

import (
	"context"
	"log/slog"
	"path/filepath"

	"olsync/internal/columnar"
	"olsync/internal/config"
	"olsync/internal/dump"
	"olsync/internal/logging"
	"olsync/internal/manifest"
	"olsync/internal/services"
)

const metadataPrefix = "metadata"

// Publisher uploads segments for a source and commits its manifest entry.
type Publisher struct {
	store          ObjectStore
	bucket         string
	prefix         string
	uploadManifest bool
	manifest       *manifest.Store
	policy         services.RetryPolicy
	logger         *slog.Logger
}

// New constructs a publisher bound to the given object store and manifest.
func New(store ObjectStore, cfg config.Dataset, man *manifest.Store, policy services.RetryPolicy, logger *slog.Logger) *Publisher {
	return &Publisher{
		store:          store,
		bucket:         cfg.Bucket,
		prefix:         cfg.Prefix,
		uploadManifest: cfg.UploadManifest,
		manifest:       man,
		policy:         policy,
		logger:         logging.NewComponentLogger(logger, "publish"),
	}
}

// Publish uploads every segment under <prefix>/<category>/ and, once all of
// them are durable, commits the manifest entry for the source. A failed
// upload aborts without touching the manifest, so the previous sync state
// stays authoritative.
func (p *Publisher) Publish(ctx context.Context, desc dump.SourceDescriptor, signature string, segments []columnar.Segment) (manifest.Entry, error) {
	if err := p.policy.Do(ctx, "ensure bucket "+p.bucket, func(ctx context.Context) error {
		return p.store.EnsureBucket(ctx, p.bucket)
	}); err != nil {
		return manifest.Entry{}, err
	}

	artifactPrefix := ObjectKey(p.prefix, desc.Category.String())
	var rows int64
	for _, segment := range segments {
		key := ObjectKey(artifactPrefix, filepath.Base(segment.Path))
		if err := p.policy.Do(ctx, "upload "+key, func(ctx context.Context) error {
			return p.store.UploadFile(ctx, p.bucket, key, segment.Path)
		}); err != nil {
			return manifest.Entry{}, err
		}
		rows += segment.Rows
		p.logger.Debug("segment uploaded",
			logging.String(logging.FieldSource, desc.Name),
			logging.String("key", key),
			logging.Int64("rows", segment.Rows),
		)
	}

	entry := manifest.Entry{
		Signature: signature,
		Artifact: manifest.Artifact{
			Prefix:   artifactPrefix,
			Segments: len(segments),
			Rows:     rows,
		},
	}
	if err := p.manifest.Commit(desc.Name, entry); err != nil {
		return manifest.Entry{}, services.Wrap(services.ErrFatal, "publish", "commit manifest", desc.Name, err)
	}

	p.logger.Info("artifact published",
		logging.String(logging.FieldSource, desc.Name),
		logging.String(logging.FieldCategory, desc.Category.String()),
		logging.Int("segments", len(segments)),
		logging.Int64("rows", rows),
	)

	// A resync that produced fewer segments leaves the previous signature's
	// higher-index segments behind. They are debris, not state, so a pruning
	// failure is only logged.
	uploaded := make(map[string]struct{}, len(segments))
	for _, segment := range segments {
		uploaded[ObjectKey(artifactPrefix, filepath.Base(segment.Path))] = struct{}{}
	}
	if err := p.pruneStale(ctx, desc, artifactPrefix, uploaded); err != nil {
		p.logger.Warn("stale segment cleanup failed", logging.Error(err))
	}

	if p.uploadManifest {
		if err := p.PublishManifest(ctx); err != nil {
			// The artifact and local manifest are already durable; a failed
			// mirror only ages the remote copy.
			p.logger.Warn("manifest mirror failed", logging.Error(err))
		}
	}
	return entry, nil
}

func (p *Publisher) pruneStale(ctx context.Context, desc dump.SourceDescriptor, artifactPrefix string, uploaded map[string]struct{}) error {
	keys, err := p.store.ListPrefix(ctx, p.bucket, artifactPrefix+"/")
	if err != nil {
		return err
	}
	for _, key := range keys {
		if _, ok := uploaded[key]; ok {
			continue
		}
		if err := p.store.RemoveObject(ctx, p.bucket, key); err != nil {
			return err
		}
		p.logger.Info("stale segment removed",
			logging.String(logging.FieldSource, desc.Name),
			logging.String("key", key),
		)
	}
	return nil
}

// PublishManifest mirrors the local manifest file into the dataset store
// under the metadata prefix.
func (p *Publisher) PublishManifest(ctx context.Context) error {
	key := ObjectKey(p.prefix, metadataPrefix, filepath.Base(p.manifest.Path()))
	return p.policy.Do(ctx, "upload "+key, func(ctx context.Context) error {
		return p.store.UploadFile(ctx, p.bucket, key, p.manifest.Path())
	})
}
