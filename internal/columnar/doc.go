// Package columnar buffers mapped rows and serializes them as snappy
// parquet segments.
//
// Rows accumulate until a configured row-count or byte threshold is reached,
// then the batch is flushed as one self-contained segment file named by its
// sequence position. A run interrupted after N flushes leaves N valid,
// independently readable segments. Memory is bounded by the batch thresholds,
// not the input size.
package columnar
