package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/behaviorlab/datakit/fingerprint"
	"github.com/behaviorlab/datakit/table"
)

// SamplePolicy selects how sample-mode loads pick their rows.
type SamplePolicy uint8

const (
	// SampleHead reads the first N rows and leaves the rest of the
	// source untouched, bounding both time and memory.
	SampleHead SamplePolicy = iota
	// SampleReservoir keeps a uniform random subsample. It must read
	// the whole source once, so it bounds memory but not time.
	SampleReservoir
)

// Options configure one load.
type Options struct {
	// Mode selects sample, full, or chunked processing.
	Mode table.Mode
	// ChunkRows bounds the rows per chunk. Default 10000.
	ChunkRows int
	// SampleRows bounds sample-mode loads. Default 1000.
	SampleRows int
	// SamplePolicy defaults to SampleHead.
	SamplePolicy SamplePolicy
	// SampleSeed seeds reservoir sampling. 0 picks a random seed.
	SampleSeed int64
	// MaxBadRowRatio is the malformed-row fraction above which the load
	// fails with CorruptSourceError. Default 0.05. Negative disables.
	MaxBadRowRatio float64
	// ReadBufferBytes sizes the source read buffer. Default 64KiB.
	ReadBufferBytes int
}

func (o *Options) setDefaults() {
	if o.Mode == "" {
		o.Mode = table.ModeFull
	}
	if o.ChunkRows <= 0 {
		o.ChunkRows = 10000
	}
	if o.SampleRows <= 0 {
		o.SampleRows = 1000
	}
	if o.MaxBadRowRatio == 0 {
		o.MaxBadRowRatio = 0.05
	}
	if o.ReadBufferBytes <= 0 {
		o.ReadBufferBytes = 64 << 10
	}
	// Head sampling stops at a chunk boundary, so oversized chunks would
	// drag in rows past the sample.
	if o.Mode == table.ModeSample && o.SamplePolicy == SampleHead && o.ChunkRows > o.SampleRows {
		o.ChunkRows = o.SampleRows
	}
}

// minRowsForRatioCheck delays the corrupt-source verdict until enough rows
// have been seen for the fraction to mean something. The final check at
// EOF applies regardless.
const minRowsForRatioCheck = 100

const maxSampledRowErrors = 8

// ChunkIter is the lazy chunk sequence produced by a load. It is finite
// and restartable: calling Loader.Chunks again with the same arguments
// re-reads the source from the start (restart is not resumable).
//
// Not safe for concurrent use.
type ChunkIter struct {
	src    Source
	opts   Options
	rc     io.ReadCloser
	csvr   *csv.Reader
	hasher *fingerprint.Hasher
	header []string

	index   int
	rowNum  int
	kept    int
	skipped int
	sample  []*RowError
	done    bool
	err     error
}

func newChunkIter(ctx context.Context, src Source, opts Options) (*ChunkIter, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}

	it := &ChunkIter{
		src:    src,
		opts:   opts,
		rc:     rc,
		hasher: fingerprint.NewHasher(),
	}

	// The digest taps the stream below the buffer, so it reflects the
	// source's true bytes independent of any parsing decisions.
	br := bufio.NewReaderSize(io.TeeReader(rc, it.hasher), opts.ReadBufferBytes)
	it.csvr = csv.NewReader(br)

	header, err := it.csvr.Read()
	if err != nil {
		rc.Close()
		if errors.Is(err, io.EOF) {
			return nil, ErrSchemaEmpty
		}
		return nil, &SourceUnavailableError{Locator: src.Locator(), Err: err}
	}
	if !hasNamedColumn(header) {
		rc.Close()
		return nil, ErrSchemaEmpty
	}
	it.header = header
	return it, nil
}

func hasNamedColumn(header []string) bool {
	for _, name := range header {
		if strings.TrimSpace(name) != "" {
			return true
		}
	}
	return false
}

// Header returns the source's column names.
func (it *ChunkIter) Header() []string { return it.header }

// Next returns the next chunk with its per-chunk narrowed kinds.
// It returns io.EOF when the sequence is exhausted.
func (it *ChunkIter) Next(ctx context.Context) (*table.Chunk, error) {
	if it.err != nil {
		return nil, it.err
	}
	if it.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows := make([][]string, 0, it.opts.ChunkRows)
	for len(rows) < it.opts.ChunkRows {
		rec, err := it.csvr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				it.done = true
				break
			}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				it.rowNum++
				it.recordBadRow(rec, err)
				continue
			}
			it.err = &SourceUnavailableError{Locator: it.src.Locator(), Err: err}
			return nil, it.err
		}
		it.rowNum++
		it.kept++
		rows = append(rows, rec)
	}

	if err := it.checkRatio(it.done || it.rowNum >= minRowsForRatioCheck); err != nil {
		it.err = err
		return nil, err
	}

	if len(rows) == 0 {
		return nil, io.EOF
	}

	c := &table.Chunk{Index: it.index, Header: it.header, Rows: rows}
	c.NarrowKinds()
	it.index++
	return c, nil
}

func (it *ChunkIter) recordBadRow(rec []string, err error) {
	it.skipped++
	if len(it.sample) < maxSampledRowErrors {
		it.sample = append(it.sample, &RowError{
			Row: it.rowNum,
			Raw: strings.Join(rec, ","),
			Err: err,
		})
	}
}

func (it *ChunkIter) checkRatio(enforce bool) error {
	if !enforce || it.opts.MaxBadRowRatio < 0 {
		return nil
	}
	total := it.kept + it.skipped
	if total == 0 {
		return nil
	}
	if float64(it.skipped)/float64(total) > it.opts.MaxBadRowRatio {
		return &CorruptSourceError{
			Locator:   it.src.Locator(),
			Skipped:   it.skipped,
			Total:     total,
			Threshold: it.opts.MaxBadRowRatio,
			Sample:    it.sample,
		}
	}
	return nil
}

// Digest returns the content digest of all raw bytes consumed so far.
// After the sequence is drained it covers the whole source.
func (it *ChunkIter) Digest() fingerprint.Digest { return it.hasher.Sum() }

// RowsKept returns the parsed row count so far.
func (it *ChunkIter) RowsKept() int { return it.kept }

// RowsSkipped returns the malformed row count so far.
func (it *ChunkIter) RowsSkipped() int { return it.skipped }

// Close releases the underlying source reader.
func (it *ChunkIter) Close() error { return it.rc.Close() }
