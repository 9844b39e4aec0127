package columnar

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

// ReadSegment loads every row of a segment back into generic maps keyed by
// the lowercased column names. It exists for verification and tests; the
// pipeline itself never reads segments back.
func ReadSegment(path string) ([]map[string]any, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open segment: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, parquetConcurrency)
	if err != nil {
		return nil, fmt.Errorf("open parquet reader: %w", err)
	}
	defer pr.ReadStop()

	raw, err := pr.ReadByNumber(int(pr.GetNumRows()))
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	// Round-trip through JSON to turn the reader's dynamic structs into maps.
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode rows: %w", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal(encoded, &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}

	normalized := make([]map[string]any, len(rows))
	for i, row := range rows {
		out := make(map[string]any, len(row))
		for key, value := range row {
			out[strings.ToLower(key)] = value
		}
		normalized[i] = out
	}
	return normalized, nil
}
