// Package telemetry sets up the process-wide OpenTelemetry meter used by
// the indexer and cascade matcher. It is a service with an explicit
// lifecycle (New at process start, nothing to tear down for the in-process
// meter provider) passed by reference into callers, rather than a package
// scope singleton — the same discipline the teacher applies to its
// embedding/compaction clients.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics bundles the counters and histograms the TM core emits.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	CascadeTierHits   metric.Int64Counter
	CascadeLatency    metric.Float64Histogram
	IndexBuilds       metric.Int64Counter
	IndexBuildLatency metric.Float64Histogram
	BackendFailovers  metric.Int64Counter
	RemoteRetries     metric.Int64Counter
}

// New constructs a Metrics bundle backed by an in-process meter provider.
// Callers that want an exporter wire one up themselves and pass readers in;
// exporter wiring is out of this core's scope (see SPEC_FULL.md §4).
func New() (*Metrics, error) {
	provider := sdkmetric.NewMeterProvider()
	meter := provider.Meter("github.com/neilvibe/tm-core")

	m := &Metrics{provider: provider, meter: meter}

	var err error
	if m.CascadeTierHits, err = meter.Int64Counter(
		"tmcore.cascade.tier_hits",
		metric.WithDescription("cascade matches produced, labeled by tier"),
	); err != nil {
		return nil, err
	}
	if m.CascadeLatency, err = meter.Float64Histogram(
		"tmcore.cascade.latency_ms",
		metric.WithDescription("cascade search wall-clock latency in milliseconds"),
	); err != nil {
		return nil, err
	}
	if m.IndexBuilds, err = meter.Int64Counter(
		"tmcore.indexer.builds",
		metric.WithDescription("index builds completed, labeled by kind and outcome"),
	); err != nil {
		return nil, err
	}
	if m.IndexBuildLatency, err = meter.Float64Histogram(
		"tmcore.indexer.build_latency_ms",
		metric.WithDescription("index build wall-clock latency in milliseconds"),
	); err != nil {
		return nil, err
	}
	if m.BackendFailovers, err = meter.Int64Counter(
		"tmcore.storage.failovers",
		metric.WithDescription("factory failovers from remote-authoritative to degraded mode"),
	); err != nil {
		return nil, err
	}
	if m.RemoteRetries, err = meter.Int64Counter(
		"tmcore.storage.remote_retries",
		metric.WithDescription("SQL operations retried due to remote backend transient errors"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// Shutdown flushes and releases the underlying meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// TierAttr builds the attribute set recorded alongside a cascade tier hit.
func TierAttr(tier int) attribute.KeyValue {
	return attribute.Int("tier", tier)
}

// BuildKindAttr and BuildOutcomeAttr label index build counters.
func BuildKindAttr(kind string) attribute.KeyValue    { return attribute.String("kind", kind) }
func BuildOutcomeAttr(outcome string) attribute.KeyValue { return attribute.String("outcome", outcome) }
