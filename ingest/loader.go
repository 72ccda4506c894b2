package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/behaviorlab/datakit/internal/resource"
	"github.com/behaviorlab/datakit/table"
)

// Config wires shared infrastructure into a Loader.
type Config struct {
	// Resources bounds transient load memory. Optional; nil disables
	// admission control.
	Resources *resource.Controller
	// Logger receives load progress and skip warnings.
	// Defaults to a discard logger.
	Logger *slog.Logger
}

// Loader reads tabular sources into normalized datasets.
//
// Safe for concurrent use; each load owns its own iterator state.
type Loader struct {
	res    *resource.Controller
	logger *slog.Logger
}

// NewLoader creates a loader with the given shared infrastructure.
func NewLoader(cfg Config) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{res: cfg.Resources, logger: logger}
}

// Chunks opens the source and returns its lazy chunk sequence. The caller
// owns the iterator and must Close it. Re-invoking Chunks re-reads the
// source from the start.
func (l *Loader) Chunks(ctx context.Context, src Source, opts Options) (*ChunkIter, error) {
	opts.setDefaults()
	return newChunkIter(ctx, src, opts)
}

// Load reads the source under the requested mode and publishes an
// immutable dataset handle. Sample mode with the head policy stops
// reading once the sample is filled; every other mode drains the source
// so the digest covers all of its bytes.
//
// In chunked mode rows are counted but not retained and the handle's
// Table is nil; callers that need the rows use Chunks directly.
func (l *Loader) Load(ctx context.Context, src Source, opts Options) (*table.DatasetHandle, error) {
	opts.setDefaults()
	start := time.Now()

	it, err := newChunkIter(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var reserved int64
	defer func() {
		if reserved > 0 {
			l.res.ReleaseMemory(reserved)
		}
	}()

	b := table.NewBuilder(it.Header())
	switch {
	case opts.Mode == table.ModeChunked:
		err = l.drainCounting(ctx, it)
	case opts.Mode == table.ModeSample && opts.SamplePolicy == SampleReservoir:
		err = l.fillReservoir(ctx, it, b, opts)
	case opts.Mode == table.ModeSample:
		err = l.fillHead(ctx, it, b, opts.SampleRows, &reserved)
	default:
		err = l.drain(ctx, it, b, &reserved)
	}
	if err != nil {
		return nil, err
	}

	h := &table.DatasetHandle{
		Locator:     src.Locator(),
		Mode:        opts.Mode,
		Digest:      it.Digest(),
		SkippedRows: it.RowsSkipped(),
		CreatedAt:   time.Now(),
	}
	if opts.Mode == table.ModeChunked {
		h.RowCount = it.RowsKept()
	} else {
		tbl := b.Finish()
		h.Table = tbl
		h.RowCount = tbl.NumRows()
	}

	l.logger.InfoContext(ctx, "dataset loaded",
		"locator", src.Locator(),
		"mode", string(opts.Mode),
		"rows", h.RowCount,
		"skipped", h.SkippedRows,
		"digest", h.Digest.String(),
		"duration", time.Since(start),
	)
	if h.SkippedRows > 0 {
		l.logger.WarnContext(ctx, "malformed rows skipped",
			"locator", src.Locator(), "skipped", h.SkippedRows)
	}
	return h, nil
}

func (l *Loader) drain(ctx context.Context, it *ChunkIter, b *table.Builder, reserved *int64) error {
	for {
		c, err := it.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		n := chunkBytes(c)
		if err := l.res.AcquireMemory(ctx, n); err != nil {
			return err
		}
		*reserved += n
		b.Append(c)
	}
}

func (l *Loader) drainCounting(ctx context.Context, it *ChunkIter) error {
	for {
		_, err := it.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (l *Loader) fillHead(ctx context.Context, it *ChunkIter, b *table.Builder, limit int, reserved *int64) error {
	for b.NumRows() < limit {
		c, err := it.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		n := chunkBytes(c)
		if err := l.res.AcquireMemory(ctx, n); err != nil {
			return err
		}
		*reserved += n
		b.Append(c)
	}
	b.Truncate(limit)
	return nil
}

func (l *Loader) fillReservoir(ctx context.Context, it *ChunkIter, b *table.Builder, opts Options) error {
	seed := opts.SampleSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	limit := opts.SampleRows
	keep := make([][]string, 0, limit)
	var seen int64
	for {
		c, err := it.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		for _, row := range c.Rows {
			seen++
			if len(keep) < limit {
				keep = append(keep, row)
				continue
			}
			if j := rng.Int63n(seen); j < int64(limit) {
				keep[j] = row
			}
		}
	}

	b.Append(&table.Chunk{Header: it.Header(), Rows: keep})
	return nil
}

// chunkBytes estimates the transient heap held by a chunk's raw rows.
func chunkBytes(c *table.Chunk) int64 {
	var n int64
	for _, row := range c.Rows {
		n += 24 + int64(len(row))*16
		for _, v := range row {
			n += int64(len(v))
		}
	}
	return n
}
