// Package telemetry provides OpenTelemetry metrics and spans for the governor.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the name used for OTEL instrumentation.
const InstrumentationName = "github.com/danielpatrickdp/solvency-transport/go-governor/internal/governor"

// Metrics records governor decisions. A nil *Metrics is a no-op.
type Metrics struct {
	decisionsTotal      metric.Int64Counter
	bridgesAccepted     metric.Int64Counter
	bridgesRejected     metric.Int64Counter
	finTotal            metric.Int64Counter
	auditorTimeoutTotal metric.Int64Counter

	deviation      metric.Float64Histogram
	budgetCharged  metric.Float64Histogram
	submitDuration metric.Float64Histogram
}

// NewMetrics creates metrics on meter. If meter is nil, uses the global meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	if m.decisionsTotal, err = meter.Int64Counter(
		"stp.decisions.total",
		metric.WithDescription("Decisions returned by submit"),
		metric.WithUnit("{decision}"),
	); err != nil {
		return nil, err
	}
	if m.bridgesAccepted, err = meter.Int64Counter(
		"stp.bridges.accepted.total",
		metric.WithDescription("Reconciliation artifacts accepted"),
		metric.WithUnit("{bridge}"),
	); err != nil {
		return nil, err
	}
	if m.bridgesRejected, err = meter.Int64Counter(
		"stp.bridges.rejected.total",
		metric.WithDescription("Reconciliation attempts rejected or missing"),
		metric.WithUnit("{bridge}"),
	); err != nil {
		return nil, err
	}
	if m.finTotal, err = meter.Int64Counter(
		"stp.sessions.fin.total",
		metric.WithDescription("Sessions terminated"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, err
	}
	if m.auditorTimeoutTotal, err = meter.Int64Counter(
		"stp.auditor.timeout.total",
		metric.WithDescription("Distance auditor calls that timed out"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}

	if m.deviation, err = meter.Float64Histogram(
		"stp.candidate.deviation",
		metric.WithDescription("Deviation score of scored candidates"),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 1.5, 2),
	); err != nil {
		return nil, err
	}
	if m.budgetCharged, err = meter.Float64Histogram(
		"stp.budget.charged",
		metric.WithDescription("Budget charged per transmitted candidate"),
		metric.WithUnit("{unit}"),
		metric.WithExplicitBucketBoundaries(1, 2, 4, 8, 16, 32),
	); err != nil {
		return nil, err
	}
	if m.submitDuration, err = meter.Float64Histogram(
		"stp.submit.duration.seconds",
		metric.WithDescription("Duration of submit calls"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordDecision records one submit outcome.
// Session IDs stay out of metric attributes; correlate through spans and logs.
func (m *Metrics) RecordDecision(ctx context.Context, action, zone string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("zone", zone),
	)
	m.decisionsTotal.Add(ctx, 1, attrs)
	m.submitDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordDeviation records a candidate's score.
func (m *Metrics) RecordDeviation(ctx context.Context, zone string, d float64) {
	if m == nil {
		return
	}
	m.deviation.Record(ctx, d, metric.WithAttributes(attribute.String("zone", zone)))
}

// RecordCharge records a budget debit.
func (m *Metrics) RecordCharge(ctx context.Context, zone string, amount float64) {
	if m == nil {
		return
	}
	m.budgetCharged.Record(ctx, amount, metric.WithAttributes(attribute.String("zone", zone)))
}

// RecordBridge records an accepted or rejected reconciliation attempt.
func (m *Metrics) RecordBridge(ctx context.Context, kind string, accepted bool, reason string) {
	if m == nil {
		return
	}
	if accepted {
		m.bridgesAccepted.Add(ctx, 1, metric.WithAttributes(attribute.String("bridge", kind)))
		return
	}
	m.bridgesRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("bridge", kind),
		attribute.String("reason", reason),
	))
}

// RecordFin records a session termination.
func (m *Metrics) RecordFin(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.finTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordAuditorTimeout records an auditor call that hit its deadline.
func (m *Metrics) RecordAuditorTimeout(ctx context.Context) {
	if m == nil {
		return
	}
	m.auditorTimeoutTotal.Add(ctx, 1)
}

// #region tracing
// StartSpan starts a governor span tagged with the session.
func StartSpan(ctx context.Context, name, sessionID string) (context.Context, trace.Span) {
	return otel.Tracer(InstrumentationName).Start(ctx, name,
		trace.WithAttributes(attribute.String("stp.session_id", sessionID)),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// #endregion tracing
