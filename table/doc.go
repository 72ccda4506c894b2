// Package table holds the normalized in-memory representation of a loaded
// dataset: typed columns, the narrowing/widening rules that assign each
// column its storage kind, and the immutable DatasetHandle published to
// downstream analysis consumers.
package table
