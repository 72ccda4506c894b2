package ingest

import (
	"errors"
	"fmt"
)

// ErrSchemaEmpty is returned when a source yields zero recognized columns.
var ErrSchemaEmpty = errors.New("source has no recognized columns")

// SourceUnavailableError indicates the source could not be opened or read.
// Loads failing with it are not retried automatically.
//
// The underlying error can be accessed via errors.Unwrap.
type SourceUnavailableError struct {
	Locator string
	Err     error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Locator, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// RowError records one malformed source row. Individual row errors are
// recovered locally: the row is skipped and counted, and a bounded sample
// of them is attached to CorruptSourceError when the load fails.
type RowError struct {
	Row int // 1-based data row number, header excluded
	Raw string
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v (%q)", e.Row, e.Err, e.Raw)
}

func (e *RowError) Unwrap() error { return e.Err }

// CorruptSourceError is returned when the skipped-row fraction exceeds the
// configured threshold.
type CorruptSourceError struct {
	Locator   string
	Skipped   int
	Total     int
	Threshold float64
	// Sample holds up to the first few row errors for diagnosis.
	Sample []*RowError
}

func (e *CorruptSourceError) Error() string {
	return fmt.Sprintf("source %s corrupt: %d of %d rows malformed (threshold %.0f%%)",
		e.Locator, e.Skipped, e.Total, e.Threshold*100)
}
