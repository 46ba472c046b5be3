package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const meterName = "github.com/openkcm/session-client/pkg/session"

type metrics struct {
	acquisitions metric.Int64Counter
	duration     metric.Int64Histogram
	tracer       trace.Tracer
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion(otel.Version()))

	acquisitions, err := meter.Int64Counter(
		"session.token_acquisitions",
		metric.WithDescription("Token acquisitions by path and outcome"),
		metric.WithUnit("acquisition"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Int64Histogram(
		"session.token_acquisition.duration",
		metric.WithDescription("Token acquisition end to end duration"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	return &metrics{
		acquisitions: acquisitions,
		duration:     duration,
		tracer:       otel.Tracer(meterName, trace.WithInstrumentationVersion(otel.Version())),
	}, nil
}

func (m *metrics) record(ctx context.Context, path string, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}

	attrs := metric.WithAttributes(
		attribute.String("path", path),
		attribute.String("outcome", outcome),
	)

	m.acquisitions.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Milliseconds(), attrs)
}

func (m *metrics) startSpan(ctx context.Context) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "acquire-token-span", trace.WithSpanKind(trace.SpanKindClient))
}

func endSpan(span trace.Span, path string, err error) {
	span.SetAttributes(attribute.String("path", path))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}
