package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/docsplain"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Login metrics
	LoginsTotal        metric.Int64Counter
	LoginFailuresTotal metric.Int64Counter

	// Onboarding metrics
	RegistrationsTotal        metric.Int64Counter
	RegistrationFailuresTotal metric.Int64Counter
	KnowledgeBaseSavesTotal   metric.Int64Counter

	// Generation metrics
	GenerationsTotal       metric.Int64Counter
	GenerationErrorsTotal  metric.Int64Counter
	GenerationDuration     metric.Float64Histogram
	DocumentDownloadsTotal metric.Int64Counter

	// Session metrics
	SessionResetsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.LoginsTotal, _ = meter.Int64Counter(
		"docsplain.logins.total",
		metric.WithDescription("Total number of successful identity exchanges"),
		metric.WithUnit("{login}"),
	)

	m.LoginFailuresTotal, _ = meter.Int64Counter(
		"docsplain.logins.failures.total",
		metric.WithDescription("Total number of failed identity exchanges by kind"),
		metric.WithUnit("{error}"),
	)

	m.RegistrationsTotal, _ = meter.Int64Counter(
		"docsplain.registrations.total",
		metric.WithDescription("Total number of organizations provisioned"),
		metric.WithUnit("{organization}"),
	)

	m.RegistrationFailuresTotal, _ = meter.Int64Counter(
		"docsplain.registrations.failures.total",
		metric.WithDescription("Total number of rejected or failed registrations"),
		metric.WithUnit("{error}"),
	)

	m.KnowledgeBaseSavesTotal, _ = meter.Int64Counter(
		"docsplain.knowledge_base.saves.total",
		metric.WithDescription("Total number of knowledge base saves"),
		metric.WithUnit("{save}"),
	)

	m.GenerationsTotal, _ = meter.Int64Counter(
		"docsplain.generations.total",
		metric.WithDescription("Total number of release note generations"),
		metric.WithUnit("{generation}"),
	)

	m.GenerationErrorsTotal, _ = meter.Int64Counter(
		"docsplain.generations.errors.total",
		metric.WithDescription("Total number of failed release note generations"),
		metric.WithUnit("{error}"),
	)

	m.GenerationDuration, _ = meter.Float64Histogram(
		"docsplain.generations.duration",
		metric.WithDescription("Duration of text generation calls"),
		metric.WithUnit("ms"),
	)

	m.DocumentDownloadsTotal, _ = meter.Int64Counter(
		"docsplain.documents.downloads.total",
		metric.WithDescription("Total number of release note documents downloaded"),
		metric.WithUnit("{document}"),
	)

	m.SessionResetsTotal, _ = meter.Int64Counter(
		"docsplain.sessions.resets.total",
		metric.WithDescription("Total number of sessions reset after corruption"),
		metric.WithUnit("{session}"),
	)

	return m
}

// RecordLoginFailure counts a failed identity exchange.
func (m *Metrics) RecordLoginFailure(ctx context.Context, kind string) {
	m.LoginFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordGeneration counts a generation attempt and its duration.
func (m *Metrics) RecordGeneration(ctx context.Context, started time.Time, err error) {
	m.GenerationDuration.Record(ctx, float64(time.Since(started).Milliseconds()))
	if err != nil {
		m.GenerationErrorsTotal.Add(ctx, 1)
		return
	}
	m.GenerationsTotal.Add(ctx, 1)
}
