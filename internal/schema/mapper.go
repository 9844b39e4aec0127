package schema

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"olsync/internal/dump"
)

// Row is one mapped record. Every schema field is present; absent values are
// explicit nils so the columnar layer writes real nulls.
type Row map[string]any

// Mapper converts raw dump records into rows of one category's schema.
type Mapper struct {
	schema  Schema
	skipped int64
}

// NewMapper constructs a mapper for the given schema.
func NewMapper(s Schema) *Mapper {
	return &Mapper{schema: s}
}

// Schema returns the mapper's target schema.
func (m *Mapper) Schema() Schema {
	return m.schema
}

// Skipped returns the number of records dropped for missing required fields.
func (m *Mapper) Skipped() int64 {
	return m.skipped
}

// Map converts one record. The second return is false when the record was
// skipped (and counted); exactly one of the two outcomes happens per record.
func (m *Mapper) Map(record dump.Record) (Row, bool) {
	key := strings.TrimSpace(record.Key)
	if key == "" {
		key, _ = stringValue(record.Payload["key"])
	}
	if key == "" {
		m.skipped++
		return nil, false
	}

	row := make(Row, len(m.schema.Fields))
	for _, field := range m.schema.Fields {
		switch field.Name {
		case "key":
			row["key"] = key
		case "revision":
			row["revision"] = record.Revision
		case "last_modified":
			row["last_modified"] = nullableString(record.LastModified)
		default:
			row[field.Name] = coerce(record.Payload[field.Name], field.Type)
		}
	}
	return row, true
}

func coerce(value any, fieldType FieldType) any {
	if value == nil {
		return nil
	}
	switch fieldType {
	case TypeString:
		if text, ok := stringValue(value); ok {
			return text
		}
		return nil
	case TypeInt64:
		if n, ok := int64Value(value); ok {
			return n
		}
		return nil
	case TypeJSON:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil
		}
		return string(encoded)
	default:
		return nil
	}
}

// stringValue extracts text from plain strings and from the export's
// {"type": "/type/text", "value": "..."} wrapper objects.
func stringValue(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case map[string]any:
		if inner, ok := v["value"].(string); ok {
			return inner, true
		}
		return "", false
	case float64:
		return formatFloat(v), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

func int64Value(value any) (int64, bool) {
	switch v := value.(type) {
	case float64:
		if math.Trunc(v) != v || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, false
		}
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func formatFloat(v float64) string {
	if math.Trunc(v) == v && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
