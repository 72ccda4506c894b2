package datakit

import (
	"sync/atomic"
	"time"
)

// MetricsCollector receives operational metrics from the service.
// Implement it to feed a monitoring system; the Basic collector below
// covers debugging and tests.
type MetricsCollector interface {
	// RecordLoad is called after each dataset load with the load mode,
	// admitted row count, and elapsed time. err is nil on success.
	RecordLoad(mode string, rows int, duration time.Duration, err error)

	// RecordComputation is called after each gated computation request,
	// cache hits included.
	RecordComputation(id string, duration time.Duration, err error)
}

// NoopMetricsCollector discards all metrics.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLoad(string, int, time.Duration, error)        {}
func (NoopMetricsCollector) RecordComputation(string, time.Duration, error)      {}

// BasicMetricsCollector counts operations in memory.
type BasicMetricsCollector struct {
	LoadCount        atomic.Int64
	LoadErrors       atomic.Int64
	LoadRows         atomic.Int64
	LoadTotalNanos   atomic.Int64
	ComputeCount     atomic.Int64
	ComputeErrors    atomic.Int64
	ComputeTotalNano atomic.Int64
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(mode string, rows int, duration time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadRows.Add(int64(rows))
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordComputation implements MetricsCollector.
func (b *BasicMetricsCollector) RecordComputation(id string, duration time.Duration, err error) {
	b.ComputeCount.Add(1)
	b.ComputeTotalNano.Add(duration.Nanoseconds())
	if err != nil {
		b.ComputeErrors.Add(1)
	}
}
