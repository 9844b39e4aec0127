// Package schema maps raw dump records onto the fixed columnar field sets.
//
// Each category (authors, editions, works) has a declared schema; mapping
// produces a row containing every schema field, with explicit nulls for
// anything absent, so the columnar output stays uniform across records.
// Records missing their required key are skipped and counted. Nested payload
// structures are re-serialized as JSON strings so every column is scalar, and
// numeric coercion falls back to null rather than failing the record.
package schema
