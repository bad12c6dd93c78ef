// Package telemetry wires OpenTelemetry metrics to a Prometheus registry.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Telemetry owns the meter provider and the registry scraped at /metrics.
type Telemetry struct {
	mp       *sdkmetric.MeterProvider
	registry *prometheus.Registry
}

// Options configures Setup.
type Options struct {
	Enabled     bool
	ServiceName string
}

// Setup installs a global meter provider backed by a Prometheus exporter.
// When disabled it returns a Telemetry whose handler still serves an empty registry.
func Setup(opts Options) (*Telemetry, error) {
	registry := prometheus.NewRegistry()
	if !opts.Enabled {
		return &Telemetry{registry: registry}, nil
	}
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry), promexporter.WithNamespace(namespaceFor(opts.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("prom exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(mp)
	return &Telemetry{mp: mp, registry: registry}, nil
}

// Handler serves the registry in the Prometheus text format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.mp == nil {
		return nil
	}
	if err := t.mp.Shutdown(ctx); err != nil {
		return fmt.Errorf("metric shutdown: %w", err)
	}
	return nil
}

func namespaceFor(service string) string {
	if service == "" {
		return "sopguard"
	}
	return service
}
