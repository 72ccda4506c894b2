package datakit

import (
	"context"
	"fmt"
	"time"

	"github.com/behaviorlab/datakit/analysis"
	"github.com/behaviorlab/datakit/cachestore"
	"github.com/behaviorlab/datakit/codec"
	"github.com/behaviorlab/datakit/config"
	"github.com/behaviorlab/datakit/fingerprint"
	"github.com/behaviorlab/datakit/gate"
	"github.com/behaviorlab/datakit/ingest"
	"github.com/behaviorlab/datakit/internal/resource"
	"github.com/behaviorlab/datakit/table"
)

// Service is the data core of the analytics dashboard: it loads datasets,
// caches computation results in two tiers, and serves the behavioral
// analyses. One Service is shared by all request handlers.
type Service struct {
	cfg      config.Config
	logger   *Logger
	metrics  MetricsCollector
	res      *resource.Controller
	loader   *ingest.Loader
	store    *cachestore.Store
	gate     *gate.Gate
	analyzer *analysis.Analyzer
}

// Open wires a Service from configuration.
func Open(cfg config.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		metricsCollector: NoopMetricsCollector{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = LoggerFromConfig(cfg.Logging)
	}
	if o.codec == nil {
		if c, ok := codec.ByName(cfg.Cache.Codec); ok {
			o.codec = c
		} else {
			o.codec = codec.Default
		}
	}

	res := resource.NewController(resource.Config{
		MemoryLimitBytes:    cfg.Resources.MemoryLimitBytes,
		MaxConcurrentWrites: cfg.Resources.MaxConcurrentWrites,
		IOLimitBytesPerSec:  cfg.Resources.IOLimitBytesPerSec,
	})

	comp, err := cachestore.CompressorByName(cfg.Cache.Compressor)
	if err != nil {
		return nil, err
	}
	store, err := cachestore.Open(cachestore.Config{
		Dir:               cfg.Cache.Dir,
		MemoryBudgetBytes: cfg.Cache.MemoryBudgetBytes,
		DiskBudgetBytes:   cfg.Cache.DiskBudgetBytes,
		DefaultTTL:        cfg.Cache.TTL,
		Codec:             o.codec,
		Compressor:        comp,
		Resources:         res,
		Logger:            o.logger.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}

	g := gate.New(gate.Config{
		Store:  store,
		Codec:  o.codec,
		Logger: o.logger.Logger,
	})

	s := &Service{
		cfg:     cfg,
		logger:  o.logger,
		metrics: o.metricsCollector,
		res:     res,
		loader:  ingest.NewLoader(ingest.Config{Resources: res, Logger: o.logger.Logger}),
		store:   store,
		gate:    g,
		analyzer: analysis.New(analysis.Config{
			Gate:   g,
			Fields: o.fields,
			Logger: o.logger.Logger,
		}),
	}
	return s, nil
}

// LoadDataset reads a source into an immutable dataset handle. Zero-value
// options fall back to the service configuration.
func (s *Service) LoadDataset(ctx context.Context, src ingest.Source, opts ingest.Options) (*table.DatasetHandle, error) {
	s.applyIngestDefaults(&opts)

	start := time.Now()
	h, err := s.loader.Load(ctx, src, opts)
	rows := 0
	if h != nil {
		rows = h.RowCount
	}
	s.metrics.RecordLoad(string(opts.Mode), rows, time.Since(start), err)
	return h, err
}

// Chunks opens a source as a lazy chunk sequence for streaming consumers.
func (s *Service) Chunks(ctx context.Context, src ingest.Source, opts ingest.Options) (*ingest.ChunkIter, error) {
	s.applyIngestDefaults(&opts)
	return s.loader.Chunks(ctx, src, opts)
}

// Info probes a source's schema and estimated size without loading it.
func (s *Service) Info(ctx context.Context, src ingest.Source) (*ingest.SourceInfo, error) {
	return s.loader.Info(ctx, src)
}

func (s *Service) applyIngestDefaults(opts *ingest.Options) {
	if opts.ChunkRows <= 0 {
		opts.ChunkRows = s.cfg.Ingest.ChunkRows
	}
	if opts.SampleRows <= 0 {
		opts.SampleRows = s.cfg.Ingest.SampleRows
	}
	if opts.MaxBadRowRatio == 0 {
		opts.MaxBadRowRatio = s.cfg.Ingest.MaxBadRowRatio
	}
	if opts.ReadBufferBytes <= 0 {
		opts.ReadBufferBytes = s.cfg.Ingest.ReadBufferBytes
	}
}

// UserStats returns the per-user engagement aggregation, cached by
// dataset content.
func (s *Service) UserStats(ctx context.Context, h *table.DatasetHandle) (analysis.UserStats, error) {
	start := time.Now()
	v, err := s.analyzer.UserStats(ctx, h)
	s.metrics.RecordComputation("user_stats", time.Since(start), err)
	return v, err
}

// ActivityProfile returns the posting-time breakdown, cached by dataset
// content.
func (s *Service) ActivityProfile(ctx context.Context, h *table.DatasetHandle) (analysis.ActivityProfile, error) {
	start := time.Now()
	v, err := s.analyzer.ActivityProfile(ctx, h)
	s.metrics.RecordComputation("activity_profile", time.Since(start), err)
	return v, err
}

// ActivityScores returns the top n users by standardized engagement.
func (s *Service) ActivityScores(ctx context.Context, h *table.DatasetHandle, n int) ([]analysis.ActivityScore, error) {
	start := time.Now()
	v, err := s.analyzer.ActivityScores(ctx, h, n)
	s.metrics.RecordComputation("activity_scores", time.Since(start), err)
	return v, err
}

// Gate exposes the computation gate for callers running their own
// computations; see gate.Do.
func (s *Service) Gate() *gate.Gate { return s.gate }

// CacheStats returns a snapshot of the result cache.
func (s *Service) CacheStats() cachestore.Stats { return s.store.Stats() }

// InvalidateDataset drops every cached result computed from the dataset
// with the given content digest, returning the number removed.
func (s *Service) InvalidateDataset(digest fingerprint.Digest) int {
	return s.store.InvalidateDataset(digest)
}

// ClearCache drops every cached result.
func (s *Service) ClearCache() {
	s.store.InvalidateAll()
}

// Close flushes cache state. The service must not be used afterwards.
func (s *Service) Close() error {
	return s.store.Close()
}
