package pipeline

import (
	"context"
	"errors"
	"io"
	"os"

	"olsync/internal/columnar"
	"olsync/internal/dump"
	"olsync/internal/schema"
	"olsync/internal/services"
)

// Conversion summarizes one dump-to-parquet pass.
type Conversion struct {
	Segments []columnar.Segment
	Lines    int64
	Rows     int64
	Skipped  int64
}

// Convert streams the dump file at dumpPath into parquet segments under
// outDir. Records flow through a bounded channel so memory stays proportional
// to the queue depth and the writer's batch size, never to the dump size.
func (p *Pipeline) Convert(ctx context.Context, desc dump.SourceDescriptor, dumpPath, outDir string) (Conversion, error) {
	tableSchema, err := schema.ForCategory(desc.Category)
	if err != nil {
		return Conversion{}, err
	}
	reader, err := dump.Open(dumpPath)
	if err != nil {
		return Conversion{}, err
	}
	defer reader.Close()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Conversion{}, services.Wrap(services.ErrFatal, "convert", "create output dir", outDir, err)
	}

	writer := columnar.NewWriter(tableSchema, outDir, columnar.Options{
		BatchRows:  p.cfg.Convert.BatchRows,
		BatchBytes: int64(p.cfg.Convert.BatchMiB) << 20,
		Logger:     p.logger,
	})
	mapper := schema.NewMapper(tableSchema)

	queueDepth := p.cfg.Convert.QueueDepth
	if queueDepth <= 0 {
		queueDepth = 1
	}
	records := make(chan dump.Record, queueDepth)
	readErr := make(chan error, 1)
	go func() {
		defer close(records)
		for {
			record, err := reader.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					readErr <- nil
				} else {
					readErr <- err
				}
				return
			}
			select {
			case records <- record:
			case <-ctx.Done():
				readErr <- ctx.Err()
				return
			}
		}
	}()

	var appendErr error
	for record := range records {
		if appendErr != nil {
			continue // drain so the producer can exit
		}
		row, ok := mapper.Map(record)
		if !ok {
			continue
		}
		appendErr = writer.Append(row)
	}
	if err := <-readErr; err != nil && appendErr == nil {
		appendErr = err
	}
	if appendErr != nil {
		return Conversion{}, appendErr
	}
	if err := writer.Close(); err != nil {
		return Conversion{}, err
	}

	return Conversion{
		Segments: writer.Segments(),
		Lines:    reader.Lines(),
		Rows:     writer.Rows(),
		Skipped:  reader.Skipped() + mapper.Skipped(),
	}, nil
}
