// Package ingest reads tabular sources in bounded-size chunks, narrows
// column types per chunk, and publishes immutable dataset handles.
//
// Sources are pluggable: local files, in-memory uploads, S3 objects and
// MinIO objects all satisfy the same Source interface. The raw bytes read
// from a source are hashed as they stream past, so a dataset's content
// digest never requires buffering the whole file.
package ingest
