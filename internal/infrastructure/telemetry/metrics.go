package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "github.com/YoshitsuguKoike/storyrelay"

// Instrument names
const (
	MetricEscalations        = "storyrelay_escalations_total"
	MetricEscalationDuration = "storyrelay_escalation_duration_seconds"
	MetricCacheLookups       = "storyrelay_story_cache_lookups_total"
	MetricStoryOperations    = "storyrelay_story_operations_total"
	MetricMemoryOperations   = "storyrelay_memory_operations_total"
	MetricSessionOperations  = "storyrelay_session_operations_total"
)

// Common attribute keys for metrics.
var (
	AttrOutcome   = attribute.Key("outcome")
	AttrResult    = attribute.Key("result")
	AttrOperation = attribute.Key("operation")
)

// Recorder owns the instruments the managers write to.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	escalations        metric.Int64Counter
	escalationDuration metric.Float64Histogram
	cacheLookups       metric.Int64Counter
	storyOps           metric.Int64Counter
	memoryOps          metric.Int64Counter
	sessionOps         metric.Int64Counter
}

// NewRecorder creates the instruments on the given provider
func NewRecorder(mp metric.MeterProvider) (*Recorder, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	m := mp.Meter(meterName)
	r := &Recorder{}
	var err error

	if r.escalations, err = m.Int64Counter(MetricEscalations, metric.WithDescription("Escalations handled, by outcome")); err != nil {
		return nil, err
	}
	if r.escalationDuration, err = m.Float64Histogram(MetricEscalationDuration, metric.WithDescription("Escalation handling time in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.cacheLookups, err = m.Int64Counter(MetricCacheLookups, metric.WithDescription("Story cache lookups, by hit or miss")); err != nil {
		return nil, err
	}
	if r.storyOps, err = m.Int64Counter(MetricStoryOperations, metric.WithDescription("Persisted story file operations")); err != nil {
		return nil, err
	}
	if r.memoryOps, err = m.Int64Counter(MetricMemoryOperations, metric.WithDescription("Agent memory operations")); err != nil {
		return nil, err
	}
	if r.sessionOps, err = m.Int64Counter(MetricSessionOperations, metric.WithDescription("Agent session operations")); err != nil {
		return nil, err
	}
	return r, nil
}

// RecordEscalation records one escalation and how long it took
func (r *Recorder) RecordEscalation(ctx context.Context, success bool, d time.Duration) {
	if r == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	r.escalations.Add(ctx, 1, metric.WithAttributes(AttrOutcome.String(outcome)))
	r.escalationDuration.Record(ctx, d.Seconds(), metric.WithAttributes(AttrOutcome.String(outcome)))
}

// RecordCacheLookup records a story cache hit or miss
func (r *Recorder) RecordCacheLookup(ctx context.Context, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.Add(ctx, 1, metric.WithAttributes(AttrResult.String(result)))
}

// RecordStoryOp records a persisted story file operation (create, update, handover, ...)
func (r *Recorder) RecordStoryOp(ctx context.Context, op string) {
	if r == nil {
		return
	}
	r.storyOps.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(op)))
}

// RecordMemoryOp records an agent memory operation
func (r *Recorder) RecordMemoryOp(ctx context.Context, op string) {
	if r == nil {
		return
	}
	r.memoryOps.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(op)))
}

// RecordSessionOp records an agent session operation
func (r *Recorder) RecordSessionOp(ctx context.Context, op string) {
	if r == nil {
		return
	}
	r.sessionOps.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(op)))
}

// Provider bundles an SDK meter provider with the manual reader that drains it.
// The CLI has no scrape endpoint, so values are pulled on demand via Snapshot.
type Provider struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

// NewProvider creates an SDK meter provider tagged with the service name
func NewProvider(serviceName string) *Provider {
	if serviceName == "" {
		serviceName = "storyrelay"
	}
	reader := sdkmetric.NewManualReader()
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	return &Provider{
		reader: reader,
		provider: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(reader),
			sdkmetric.WithResource(res),
		),
	}
}

// MeterProvider exposes the SDK provider for NewRecorder
func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.provider
}

// Snapshot collects current values. Counters are summed per instrument and
// attribute set ("name{key=value}"); histograms report their observation count.
func (p *Provider) Snapshot(ctx context.Context) (map[string]float64, error) {
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[seriesName(m.Name, dp.Attributes)] += float64(dp.Value)
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out[seriesName(m.Name, dp.Attributes)] += float64(dp.Count)
				}
			}
		}
	}
	return out, nil
}

// Shutdown flushes and stops the provider
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}

func seriesName(name string, attrs attribute.Set) string {
	if attrs.Len() == 0 {
		return name
	}
	s := name + "{"
	iter := attrs.Iter()
	first := true
	for iter.Next() {
		kv := iter.Attribute()
		if !first {
			s += ","
		}
		first = false
		s += string(kv.Key) + "=" + kv.Value.Emit()
	}
	return s + "}"
}
