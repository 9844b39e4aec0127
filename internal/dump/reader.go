package dump

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const (
	// Some edition payloads run to several megabytes of JSON on one line.
	maxLineBytes     = 64 * 1024 * 1024
	initialLineBytes = 256 * 1024

	recordColumns = 5
)

// Record is one decoded line from a dump file. It is transient: produced by
// Reader, consumed immediately by the schema mapper, never persisted.
type Record struct {
	Type         string
	Key          string
	Revision     int64
	LastModified string
	Payload      map[string]any
}

// Reader yields records from a dump stream in file order. It is forward-only
// and single-pass; restarting means constructing a new Reader.
type Reader struct {
	scanner *bufio.Scanner
	gz      *gzip.Reader
	file    *os.File

	lines   int64
	skipped int64
}

// Open constructs a Reader over a local dump artifact.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dump: %w", err)
	}
	reader, err := NewReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	reader.file = file
	return reader, nil
}

// NewReader constructs a Reader over an already-open gzip stream.
func NewReader(r io.Reader) (*Reader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, initialLineBytes), maxLineBytes)
	return &Reader{scanner: scanner, gz: gz}, nil
}

// Next returns the next well-formed record, skipping and counting malformed
// lines. It returns io.EOF when the stream is exhausted.
func (r *Reader) Next() (Record, error) {
	for r.scanner.Scan() {
		r.lines++
		record, ok := parseLine(r.scanner.Text())
		if !ok {
			r.skipped++
			continue
		}
		return record, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Record{}, fmt.Errorf("read dump line %d: %w", r.lines+1, err)
	}
	return Record{}, io.EOF
}

// Lines returns the number of lines consumed so far.
func (r *Reader) Lines() int64 {
	return r.lines
}

// Skipped returns the number of malformed lines skipped so far.
func (r *Reader) Skipped() int64 {
	return r.skipped
}

// Close releases the decompressor and the underlying file, if any.
func (r *Reader) Close() error {
	gzErr := r.gz.Close()
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return err
		}
	}
	return gzErr
}

func parseLine(line string) (Record, bool) {
	if strings.TrimSpace(line) == "" {
		return Record{}, false
	}
	columns := strings.SplitN(line, "\t", recordColumns)
	if len(columns) != recordColumns {
		return Record{}, false
	}

	revision, err := strconv.ParseInt(columns[2], 10, 64)
	if err != nil {
		return Record{}, false
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(columns[4]), &payload); err != nil {
		return Record{}, false
	}

	return Record{
		Type:         columns[0],
		Key:          columns[1],
		Revision:     revision,
		LastModified: columns[3],
		Payload:      payload,
	}, true
}
