package near

import (
	"context"
	"time"
)

type instrumentOptions struct {
	logger  *Logger
	metrics MetricsCollector
}

// InstrumentOption configures Instrument.
type InstrumentOption func(*instrumentOptions)

// WithLogger sets the logger used by an instrumented index.
func WithLogger(l *Logger) InstrumentOption {
	return func(o *instrumentOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics collector used by an instrumented index.
func WithMetrics(m MetricsCollector) InstrumentOption {
	return func(o *instrumentOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// Instrument wraps idx so that every operation is logged and measured.
// If idx implements Approximate, so does the returned index.
func Instrument(idx Index, opts ...InstrumentOption) Index {
	o := instrumentOptions{
		logger:  NoopLogger(),
		metrics: NoopMetricsCollector{},
	}
	for _, fn := range opts {
		fn(&o)
	}

	in := &instrumented{
		next:    idx,
		logger:  o.logger.WithIndex(idx.Name()).WithDimension(idx.Space().Dimension()),
		metrics: o.metrics,
	}
	if a, ok := idx.(Approximate); ok {
		return &instrumentedApproximate{instrumented: in, approx: a}
	}
	return in
}

type instrumented struct {
	next    Index
	logger  *Logger
	metrics MetricsCollector
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) Space() Space { return i.next.Space() }

func (i *instrumented) Len() int { return i.next.Len() }

func (i *instrumented) Insert(ctx context.Context, id ID, vector []float32, metadata []byte) error {
	start := time.Now()
	err := i.next.Insert(ctx, id, vector, metadata)
	i.metrics.RecordInsert(time.Since(start), err)
	i.logger.LogInsert(ctx, id, err)
	return err
}

func (i *instrumented) Delete(ctx context.Context, id ID) error {
	start := time.Now()
	err := i.next.Delete(ctx, id)
	i.metrics.RecordDelete(time.Since(start), err)
	i.logger.LogDelete(ctx, id, err)
	return err
}

func (i *instrumented) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	start := time.Now()
	res, err := i.next.Search(ctx, query, k)
	i.metrics.RecordSearch(k, time.Since(start), err)
	i.logger.LogSearch(ctx, k, len(res), err)
	return res, err
}

func (i *instrumented) Rebuild(ctx context.Context) error {
	start := time.Now()
	err := i.next.Rebuild(ctx)
	i.metrics.RecordRebuild(time.Since(start), err)
	i.logger.LogRebuild(ctx, i.next.Len(), err)
	return err
}

func (i *instrumented) Close() error { return i.next.Close() }

// Unwrap returns the wrapped index.
func (i *instrumented) Unwrap() Index { return i.next }

type instrumentedApproximate struct {
	*instrumented
	approx Approximate
}

func (i *instrumentedApproximate) RecallTarget() float64 { return i.approx.RecallTarget() }
