package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/timax-console"
)

// Result values recorded against login and refresh counters.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the session lifecycle instruments
type Metrics struct {
	LoginsTotal       metric.Int64Counter
	RefreshesTotal    metric.Int64Counter
	TeardownsTotal    metric.Int64Counter
	StaleResultsTotal metric.Int64Counter
	ActivityTotal     metric.Int64Counter
	RejectedTotal     metric.Int64Counter
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

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.LoginsTotal, _ = meter.Int64Counter(
		"timax.session.logins.total",
		metric.WithDescription("Total number of login attempts"),
		metric.WithUnit("{login}"),
	)

	m.RefreshesTotal, _ = meter.Int64Counter(
		"timax.session.refresh.total",
		metric.WithDescription("Total number of identity re-validations"),
		metric.WithUnit("{refresh}"),
	)

	m.TeardownsTotal, _ = meter.Int64Counter(
		"timax.session.teardown.total",
		metric.WithDescription("Total number of session teardowns by reason"),
		metric.WithUnit("{teardown}"),
	)

	m.StaleResultsTotal, _ = meter.Int64Counter(
		"timax.session.stale_results.total",
		metric.WithDescription("Async results discarded because the session generation moved on"),
		metric.WithUnit("{result}"),
	)

	m.ActivityTotal, _ = meter.Int64Counter(
		"timax.session.activity.total",
		metric.WithDescription("Total number of user activity signals observed"),
		metric.WithUnit("{signal}"),
	)

	m.RejectedTotal, _ = meter.Int64Counter(
		"timax.http.rejected.total",
		metric.WithDescription("Backend responses rejected with 401"),
		metric.WithUnit("{response}"),
	)

	return m
}

func (m *Metrics) RecordLogin(ctx context.Context, result string) {
	m.LoginsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) RecordRefresh(ctx context.Context, result string) {
	m.RefreshesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) RecordTeardown(ctx context.Context, reason string) {
	m.TeardownsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordStaleResult(ctx context.Context, operation string) {
	m.StaleResultsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

func (m *Metrics) RecordActivity(ctx context.Context, kind string) {
	m.ActivityTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordRejected(ctx context.Context, path string) {
	m.RejectedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
}
