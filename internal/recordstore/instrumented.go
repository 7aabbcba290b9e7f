package recordstore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ryadrakem/mms-V2/internal/metrics"
)

const tracerName = "recordstore"

// Instrumented wraps a Store with a span and latency sample per call.
type Instrumented struct {
	next    Store
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

func Instrument(next Store, m *metrics.Metrics) *Instrumented {
	return &Instrumented{next: next, tracer: otel.Tracer(tracerName), metrics: m}
}

func (s *Instrumented) observe(ctx context.Context, op, model string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "recordstore."+op, trace.WithAttributes(
		attribute.String("model", model),
	))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if s.metrics != nil {
		s.metrics.StoreCalls.WithLabelValues(op, model, status).Inc()
		s.metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	return err
}

func (s *Instrumented) Read(ctx context.Context, model string, ids []int64, fields []string) ([]Record, error) {
	var out []Record
	err := s.observe(ctx, "read", model, func(ctx context.Context) error {
		var err error
		out, err = s.next.Read(ctx, model, ids, fields)
		return err
	})
	return out, err
}

func (s *Instrumented) Write(ctx context.Context, model string, ids []int64, patch Record) error {
	return s.observe(ctx, "write", model, func(ctx context.Context) error {
		return s.next.Write(ctx, model, ids, patch)
	})
}

func (s *Instrumented) Create(ctx context.Context, model string, payload Record) (int64, error) {
	var id int64
	err := s.observe(ctx, "create", model, func(ctx context.Context) error {
		var err error
		id, err = s.next.Create(ctx, model, payload)
		return err
	})
	return id, err
}

func (s *Instrumented) Delete(ctx context.Context, model string, ids []int64) error {
	return s.observe(ctx, "delete", model, func(ctx context.Context) error {
		return s.next.Delete(ctx, model, ids)
	})
}

func (s *Instrumented) Search(ctx context.Context, model string, domain Domain) ([]int64, error) {
	var ids []int64
	err := s.observe(ctx, "search", model, func(ctx context.Context) error {
		var err error
		ids, err = s.next.Search(ctx, model, domain)
		return err
	})
	return ids, err
}

func (s *Instrumented) SearchRead(ctx context.Context, model string, domain Domain, fields []string) ([]Record, error) {
	var out []Record
	err := s.observe(ctx, "search_read", model, func(ctx context.Context) error {
		var err error
		out, err = s.next.SearchRead(ctx, model, domain, fields)
		return err
	})
	return out, err
}

func (s *Instrumented) SearchCount(ctx context.Context, model string, domain Domain) (int, error) {
	var n int
	err := s.observe(ctx, "search_count", model, func(ctx context.Context) error {
		var err error
		n, err = s.next.SearchCount(ctx, model, domain)
		return err
	})
	return n, err
}
