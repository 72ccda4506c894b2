package datakit

import (
	"github.com/behaviorlab/datakit/analysis"
	"github.com/behaviorlab/datakit/codec"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	codec            codec.Codec
	fields           analysis.FieldMapping
}

// Option configures the service constructor.
type Option func(*options)

// WithLogger sets the logger shared by every component. If nil is passed,
// logging is configured from the config's logging section.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetricsCollector sets the metrics sink. Defaults to a no-op.
func WithMetricsCollector(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsCollector{}
		}
		o.metricsCollector = m
	}
}

// WithCodec sets the codec used for cached results and the cache manifest.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithFieldMapping overrides the dataset column names the analyses read.
func WithFieldMapping(m analysis.FieldMapping) Option {
	return func(o *options) {
		o.fields = m
	}
}
