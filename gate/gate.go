// Package gate memoizes computations over loaded datasets. Each result is
// keyed by the fingerprint of (dataset content, computation id, canonical
// parameters); concurrent requests for the same fingerprint collapse into
// a single execution, and failures propagate to every waiter without ever
// entering the cache.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/behaviorlab/datakit/cachestore"
	"github.com/behaviorlab/datakit/codec"
	"github.com/behaviorlab/datakit/fingerprint"
)

// ErrComputationTimeout is returned by DoWithTimeout when the computation
// does not finish in time. The in-flight computation keeps running and
// its result is still cached for later callers.
var ErrComputationTimeout = errors.New("gate: computation timed out")

// Config wires the gate's dependencies.
type Config struct {
	// Store receives computed results. Required.
	Store *cachestore.Store
	// Codec encodes results for caching. Defaults to codec.Default.
	Codec codec.Codec
	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Gate coordinates cached computations over a shared store.
//
// Safe for concurrent use.
type Gate struct {
	store  *cachestore.Store
	codec  codec.Codec
	logger *slog.Logger
	group  singleflight.Group
}

// New creates a gate over the given store.
func New(cfg Config) *Gate {
	c := cfg.Codec
	if c == nil {
		c = codec.Default
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gate{store: cfg.Store, codec: c, logger: logger}
}

// Request identifies one computation over one dataset.
type Request struct {
	// DatasetDigest is the content digest of the dataset being computed
	// over, from its handle.
	DatasetDigest fingerprint.Digest
	// ComputationID names the computation, e.g. "user_stats".
	ComputationID string
	// Params are the computation's parameters; they participate in the
	// cache key after canonicalization.
	Params fingerprint.Params
	// TTL bounds the cached result's lifetime. Zero uses the store
	// default, negative pins the result.
	TTL time.Duration
}

// Key derives the request's cache fingerprint.
func (r Request) Key() (fingerprint.Fingerprint, error) {
	return fingerprint.New(r.DatasetDigest, r.ComputationID, r.Params)
}

// Do returns the cached result for req, computing and caching it on a
// miss. Concurrent calls with the same fingerprint share one execution of
// compute. A compute error is returned to every caller and nothing is
// cached, so the next request retries.
func Do[T any](ctx context.Context, g *Gate, req Request, compute func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	key, err := req.Key()
	if err != nil {
		return zero, err
	}

	if data, ok := g.store.Get(ctx, key); ok {
		return decode[T](g, data)
	}

	data, err, shared := g.group.Do(key.String(), func() (any, error) {
		return g.runFlight(ctx, key, req, wrapCompute(compute))
	})
	if err != nil {
		return zero, err
	}
	if shared {
		g.logger.DebugContext(ctx, "computation shared with concurrent caller",
			"computation", req.ComputationID)
	}
	return decode[T](g, data.([]byte))
}

// DoWithTimeout is Do with a deadline on waiting. When the deadline
// passes, the caller gets ErrComputationTimeout while the computation
// keeps running; its result is cached for whoever asks next.
func DoWithTimeout[T any](ctx context.Context, g *Gate, req Request, timeout time.Duration, compute func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	key, err := req.Key()
	if err != nil {
		return zero, err
	}

	if data, ok := g.store.Get(ctx, key); ok {
		return decode[T](g, data)
	}

	// The flight runs on a detached context so abandoning waiters do not
	// cancel it mid-computation.
	flightCtx := context.WithoutCancel(ctx)
	ch := g.group.DoChan(key.String(), func() (any, error) {
		return g.runFlight(flightCtx, key, req, wrapCompute(compute))
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return decode[T](g, res.Val.([]byte))
	case <-timer.C:
		return zero, ErrComputationTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// runFlight executes the computation once per fingerprint. It rechecks
// the store first: a caller that lost the race to an earlier flight finds
// the fresh entry here instead of recomputing.
func (g *Gate) runFlight(ctx context.Context, key fingerprint.Fingerprint, req Request, compute func(ctx context.Context) (any, error)) ([]byte, error) {
	if data, ok := g.store.Get(ctx, key); ok {
		return data, nil
	}

	start := time.Now()
	value, err := compute(ctx)
	if err != nil {
		g.logger.WarnContext(ctx, "computation failed",
			"computation", req.ComputationID, "error", err)
		return nil, err
	}

	data, err := g.codec.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode result of %s: %w", req.ComputationID, err)
	}

	if err := g.store.Put(ctx, key, data, cachestore.PutOptions{
		TTL:           req.TTL,
		DatasetDigest: req.DatasetDigest,
	}); err != nil {
		// Serve the result even if caching it failed.
		g.logger.WarnContext(ctx, "failed to cache computation result",
			"computation", req.ComputationID, "error", err)
	}

	g.logger.DebugContext(ctx, "computation completed",
		"computation", req.ComputationID,
		"bytes", len(data),
		"duration", time.Since(start),
	)
	return data, nil
}

func wrapCompute[T any](compute func(ctx context.Context) (T, error)) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		return compute(ctx)
	}
}

// decode gives each caller its own copy of the result, so concurrent
// readers never alias one value.
func decode[T any](g *Gate, data []byte) (T, error) {
	var out T
	if err := g.codec.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode cached result: %w", err)
	}
	return out, nil
}

// Invalidate drops the cached result for req, if any.
func (g *Gate) Invalidate(req Request) error {
	key, err := req.Key()
	if err != nil {
		return err
	}
	g.store.Invalidate(key)
	return nil
}
