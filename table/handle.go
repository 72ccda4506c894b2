package table

import (
	"time"

	"github.com/behaviorlab/datakit/fingerprint"
)

// Mode selects how much of a source the ingestor reads.
type Mode string

const (
	// ModeSample reads only a bounded prefix (or reservoir) of the source.
	ModeSample Mode = "sample"
	// ModeFull drains the source into one table.
	ModeFull Mode = "full"
	// ModeChunked exposes the lazy chunk sequence to the caller.
	ModeChunked Mode = "chunked"
)

// DatasetHandle is the published identity of one loaded dataset.
// It is immutable once returned by the ingestor; reloading a source
// produces a fresh handle and never mutates an existing one.
type DatasetHandle struct {
	// Locator is the source descriptor (path, upload id, object URL).
	Locator string
	// Mode the dataset was loaded under.
	Mode Mode
	// Digest is the content digest of the raw bytes read from the source.
	// It, not Locator, determines cache identity downstream.
	Digest fingerprint.Digest
	// RowCount is the number of rows admitted into Table.
	RowCount int
	// SkippedRows counts malformed source rows dropped during parsing.
	SkippedRows int
	// Table holds the normalized columns. Nil for chunked loads, where
	// rows stream through without being retained.
	Table *Table
	// CreatedAt is when the load finished.
	CreatedAt time.Time
}

// Schema returns the handle's column schemas, or nil for chunked loads.
func (h *DatasetHandle) Schema() []ColumnSchema {
	if h.Table == nil {
		return nil
	}
	return h.Table.Schema()
}
