// Package telemetry installs the otel tracer provider used by the backend
// client. Finished spans are written to the application log at DEBUG
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/existflow/promanage/internal/logger"
)

// Provider owns the installed tracer provider
type Provider struct {
	tp   *sdktrace.TracerProvider
	prev trace.TracerProvider
}

// Setup installs a tracer provider that logs spans through log. When
// enabled is false nothing is installed and spans stay no-ops
func Setup(enabled bool, log *logger.Logger, opts ...sdktrace.TracerProviderOption) *Provider {
	if !enabled {
		return &Provider{}
	}
	if log == nil {
		log = logger.Global()
	}

	opts = append([]sdktrace.TracerProviderOption{
		sdktrace.WithSpanProcessor(&logProcessor{log: log}),
	}, opts...)
	tp := sdktrace.NewTracerProvider(opts...)

	p := &Provider{tp: tp, prev: otel.GetTracerProvider()}
	otel.SetTracerProvider(tp)
	return p
}

// Shutdown flushes spans and restores the previous provider
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	otel.SetTracerProvider(p.prev)
	return p.tp.Shutdown(ctx)
}

// logProcessor writes one log line per finished span
type logProcessor struct {
	log *logger.Logger
}

func (p *logProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *logProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	fields := []logger.Field{
		logger.F("span", s.Name()),
		logger.F("trace_id", s.SpanContext().TraceID().String()),
		logger.F("duration_ms", float64(s.EndTime().Sub(s.StartTime()))/float64(time.Millisecond)),
	}
	for _, kv := range s.Attributes() {
		fields = append(fields, logger.F(string(kv.Key), kv.Value.AsInterface()))
	}
	if s.Status().Code == codes.Error {
		fields = append(fields, logger.F("error", s.Status().Description))
	}
	p.log.Debug("span finished", fields...)
}

func (p *logProcessor) Shutdown(context.Context) error   { return nil }
func (p *logProcessor) ForceFlush(context.Context) error { return nil }
