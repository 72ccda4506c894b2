package ingest

import (
	"context"
	"errors"
	"io"

	"github.com/behaviorlab/datakit/table"
)

const infoProbeRows = 100

// SourceInfo describes a source without fully loading it.
type SourceInfo struct {
	Locator string
	// Columns holds the schema inferred from the probe rows. The full
	// load may still widen a kind that the probe never saw evidence for.
	Columns     []table.ColumnSchema
	SampledRows int
	SkippedRows int
	// SourceBytes is the total source size, or -1 when the source
	// cannot report it.
	SourceBytes int64
	// EstimatedRows extrapolates the row count from the probe's bytes
	// per row. -1 when SourceBytes is unknown or the probe was empty.
	EstimatedRows int64
}

// Info probes the first rows of a source to report its schema and, for
// sized sources, an estimated total row count. It reads at most the
// probe prefix.
func (l *Loader) Info(ctx context.Context, src Source) (*SourceInfo, error) {
	opts := Options{
		Mode:       table.ModeSample,
		SampleRows: infoProbeRows,
		// A small buffer keeps the probe from slurping the whole source
		// as readahead.
		ReadBufferBytes: 8 << 10,
	}
	opts.setDefaults()

	it, err := newChunkIter(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	b := table.NewBuilder(it.Header())
	var probeBytes int64
	for b.NumRows() < infoProbeRows {
		c, err := it.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		for _, row := range c.Rows {
			probeBytes += rawRowBytes(row)
		}
		b.Append(c)
	}
	tbl := b.Finish()

	info := &SourceInfo{
		Locator:       src.Locator(),
		Columns:       tbl.Schema(),
		SampledRows:   tbl.NumRows(),
		SkippedRows:   it.RowsSkipped(),
		SourceBytes:   -1,
		EstimatedRows: -1,
	}

	sized, ok := src.(SizedSource)
	if !ok {
		return info, nil
	}
	size, err := sized.Size(ctx)
	if err != nil {
		// Schema is still useful; report it without the size estimate.
		l.logger.WarnContext(ctx, "source size unavailable",
			"locator", src.Locator(), "error", err)
		return info, nil
	}
	info.SourceBytes = size

	if rows := tbl.NumRows(); rows > 0 {
		if perRow := probeBytes / int64(rows); perRow > 0 {
			info.EstimatedRows = size / perRow
		}
	}
	return info, nil
}

// rawRowBytes approximates the source bytes a parsed row occupied:
// its cells plus separators and the line terminator. Quoting overhead
// is ignored; this feeds an estimate, not an accounting.
func rawRowBytes(row []string) int64 {
	n := int64(len(row)) // commas and newline
	for _, v := range row {
		n += int64(len(v))
	}
	return n
}
