// Package telemetry records orchestrator counters through OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/codeGROOVE-dev/workflow-orchestrator"

// Recorder implements the guardian and dispatcher Metrics hooks.
type Recorder struct {
	decisions   metric.Int64Counter
	assignments metric.Int64Counter
}

// New creates a Recorder on provider. A nil provider uses the global one.
func New(provider metric.MeterProvider) (*Recorder, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	decisions, err := meter.Int64Counter("orchestrator.guardian.decisions",
		metric.WithDescription("Merge decisions by kind"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision counter: %w", err)
	}
	assignments, err := meter.Int64Counter("orchestrator.dispatcher.assignments",
		metric.WithDescription("Issue assignments by agent and write-back result"),
		metric.WithUnit("{assignment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create assignment counter: %w", err)
	}
	return &Recorder{decisions: decisions, assignments: assignments}, nil
}

// Decision counts one guardian decision.
func (r *Recorder) Decision(ctx context.Context, kind string) {
	r.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// Assignment counts one dispatched issue.
func (r *Recorder) Assignment(ctx context.Context, agent string, applied bool) {
	r.assignments.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.Bool("applied", applied),
	))
}
