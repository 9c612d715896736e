package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	eventsRecorded  metric.Int64Counter
	traitsRecorded  metric.Int64Counter
	batchesFailed   metric.Int64Counter
	namesCreated    metric.Int64Counter
	nameCacheLookup metric.Int64Counter
	samplesRecorded metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "telemetry"
	}
	meter := provider.Meter(name)

	eventsRecorded, err := meter.Int64Counter("telemetry_events_recorded_total")
	if err != nil {
		return nil, err
	}
	traitsRecorded, err := meter.Int64Counter("telemetry_traits_recorded_total")
	if err != nil {
		return nil, err
	}
	batchesFailed, err := meter.Int64Counter("telemetry_event_batches_failed_total")
	if err != nil {
		return nil, err
	}
	namesCreated, err := meter.Int64Counter("telemetry_unique_names_created_total")
	if err != nil {
		return nil, err
	}
	nameCacheLookup, err := meter.Int64Counter("telemetry_name_cache_lookups_total")
	if err != nil {
		return nil, err
	}
	samplesRecorded, err := meter.Int64Counter("telemetry_samples_recorded_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		eventsRecorded:  eventsRecorded,
		traitsRecorded:  traitsRecorded,
		batchesFailed:   batchesFailed,
		namesCreated:    namesCreated,
		nameCacheLookup: nameCacheLookup,
		samplesRecorded: samplesRecorded,
	}, nil
}

// RecordEvents counts a committed batch.
func (m *Metrics) RecordEvents(ctx context.Context, events, traits int) {
	if m == nil {
		return
	}
	m.eventsRecorded.Add(ctx, int64(events))
	m.traitsRecorded.Add(ctx, int64(traits))
}

// RecordBatchFailure counts a rejected or rolled back batch.
func (m *Metrics) RecordBatchFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.batchesFailed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordNameCreated counts a new unique name row.
func (m *Metrics) RecordNameCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.namesCreated.Add(ctx, 1)
}

// RecordNameCacheLookup counts cache hits and misses by tier.
func (m *Metrics) RecordNameCacheLookup(ctx context.Context, tier string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	attrs := FilterAttributes(
		attribute.String("tier", strings.TrimSpace(tier)),
		attribute.String("result", result),
	)
	m.nameCacheLookup.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSample counts a stored meter sample.
func (m *Metrics) RecordSample(ctx context.Context, counterType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("counter_type", strings.TrimSpace(counterType)))
	m.samplesRecorded.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Event and trait names are caller-controlled, so they never become labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"reason":       {},
	"tier":         {},
	"result":       {},
	"counter_type": {},
	"endpoint":     {},
	"status_code":  {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
