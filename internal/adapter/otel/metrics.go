package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "gavel"

// Metrics holds all Gavel metric instruments.
type Metrics struct {
	ReviewsAccepted   metric.Int64Counter
	ReviewsCompleted  metric.Int64Counter
	ReviewsFailed     metric.Int64Counter
	AgentTasks        metric.Int64Counter
	ReviewDuration    metric.Float64Histogram
	AgentTaskDuration metric.Float64Histogram
	TokensUsed        metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ReviewsAccepted, err = meter.Int64Counter("gavel.reviews.accepted",
		metric.WithDescription("Number of review requests accepted"))
	if err != nil {
		return nil, err
	}

	m.ReviewsCompleted, err = meter.Int64Counter("gavel.reviews.completed",
		metric.WithDescription("Number of reviews completed"))
	if err != nil {
		return nil, err
	}

	m.ReviewsFailed, err = meter.Int64Counter("gavel.reviews.failed",
		metric.WithDescription("Number of reviews permanently failed"))
	if err != nil {
		return nil, err
	}

	m.AgentTasks, err = meter.Int64Counter("gavel.agent.tasks",
		metric.WithDescription("Number of agent tasks executed"))
	if err != nil {
		return nil, err
	}

	m.ReviewDuration, err = meter.Float64Histogram("gavel.review.duration_seconds",
		metric.WithDescription("End-to-end review duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.AgentTaskDuration, err = meter.Float64Histogram("gavel.agent.task.duration_seconds",
		metric.WithDescription("Single agent task duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.TokensUsed, err = meter.Int64Counter("gavel.tokens.used",
		metric.WithDescription("Model tokens consumed"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
