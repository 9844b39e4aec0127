package columnar

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"olsync/internal/logging"
	"olsync/internal/schema"
	"olsync/internal/services"
)

const (
	defaultBatchRows  = 100000
	defaultBatchBytes = 256 << 20

	parquetConcurrency = 4
)

// Segment describes one flushed parquet file.
type Segment struct {
	Index int
	Path  string
	Rows  int64
	Bytes int64
}

// Options tunes writer batching.
type Options struct {
	BatchRows  int
	BatchBytes int64
	Logger     *slog.Logger
}

// Writer accumulates rows of one category and flushes them into numbered
// parquet segments under dir.
type Writer struct {
	schema    schema.Schema
	dir       string
	batchRows int
	batchMax  int64
	logger    *slog.Logger

	pending      []string
	pendingBytes int64
	segments     []Segment
	rows         int64
	closed       bool
}

// NewWriter constructs a writer that places segments in dir. The directory
// must already exist.
func NewWriter(s schema.Schema, dir string, opts Options) *Writer {
	batchRows := opts.BatchRows
	if batchRows <= 0 {
		batchRows = defaultBatchRows
	}
	batchBytes := opts.BatchBytes
	if batchBytes <= 0 {
		batchBytes = defaultBatchBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Writer{
		schema:    s,
		dir:       dir,
		batchRows: batchRows,
		batchMax:  batchBytes,
		logger:    logging.NewComponentLogger(logger, "columnar"),
	}
}

// Append buffers one row, flushing a segment when a batch threshold is hit.
func (w *Writer) Append(row schema.Row) error {
	if w.closed {
		return services.Wrap(services.ErrFatal, "convert", "append", "writer already closed", nil)
	}
	encoded, err := json.Marshal(row)
	if err != nil {
		return services.Wrap(services.ErrFatal, "convert", "encode row", "", err)
	}
	w.pending = append(w.pending, string(encoded))
	w.pendingBytes += int64(len(encoded))
	w.rows++

	if len(w.pending) >= w.batchRows || w.pendingBytes >= w.batchMax {
		return w.flush()
	}
	return nil
}

// Close flushes any buffered remainder. The writer cannot be reused.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if len(w.pending) == 0 {
		return nil
	}
	return w.flush()
}

// Segments returns the flushed segments in sequence order.
func (w *Writer) Segments() []Segment {
	return w.segments
}

// Rows returns the total number of rows appended.
func (w *Writer) Rows() int64 {
	return w.rows
}

func (w *Writer) flush() error {
	index := len(w.segments)
	path := filepath.Join(w.dir, fmt.Sprintf("%s_%d.parquet", w.schema.Category, index))

	if err := w.writeSegment(path); err != nil {
		os.Remove(path)
		return services.Wrap(services.ErrFatal, "convert", "flush segment", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrFatal, "convert", "stat segment", path, err)
	}

	segment := Segment{
		Index: index,
		Path:  path,
		Rows:  int64(len(w.pending)),
		Bytes: info.Size(),
	}
	w.segments = append(w.segments, segment)
	w.logger.Debug("segment flushed",
		logging.String(logging.FieldCategory, w.schema.Category.String()),
		logging.Int("segment", index),
		logging.Int64("rows", segment.Rows),
		logging.Int64("bytes", segment.Bytes),
	)

	w.pending = w.pending[:0]
	w.pendingBytes = 0
	return nil
}

func (w *Writer) writeSegment(path string) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create segment file: %w", err)
	}

	pw, err := writer.NewJSONWriter(w.schema.ParquetSchema(), fw, parquetConcurrency)
	if err != nil {
		fw.Close()
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, line := range w.pending {
		if err := pw.Write(line); err != nil {
			_ = pw.WriteStop()
			fw.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finalize parquet: %w", err)
	}
	return fw.Close()
}
