package datasource

import (
	"context"
	"fmt"
	"math"
	"time"

	promapi "github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	prommodel "github.com/prometheus/common/model"
)

// DefaultPrometheusMetrics maps meters to the series names exported by the
// hypervisor exporters.
var DefaultPrometheusMetrics = map[Meter]string{
	MeterCPUUtil:        "instance_cpu_util",
	MeterMemoryResident: "instance_memory_resident_mb",
}

// Prometheus answers queries from Prometheus, Thanos, or Cortex.
type Prometheus struct {
	api      promv1.API
	endpoint string
	flavor   string
	timeout  time.Duration
	metrics  map[Meter]string
	label    string
	now      func() time.Time
}

// PrometheusOption configures the Prometheus datasource.
type PrometheusOption func(*Prometheus)

// WithTimeout sets the query timeout.
func WithTimeout(d time.Duration) PrometheusOption {
	return func(p *Prometheus) { p.timeout = d }
}

// WithMetricNames overrides the series name used for individual meters.
func WithMetricNames(names map[Meter]string) PrometheusOption {
	return func(p *Prometheus) {
		for m, n := range names {
			p.metrics[m] = n
		}
	}
}

// WithResourceLabel sets the label that carries the instance uuid.
func WithResourceLabel(label string) PrometheusOption {
	return func(p *Prometheus) { p.label = label }
}

// NewPrometheus creates a datasource connected to the given endpoint.
func NewPrometheus(endpoint string, opts ...PrometheusOption) (*Prometheus, error) {
	client, err := promapi.NewClient(promapi.Config{
		Address: endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("creating prometheus client: %w", err)
	}

	p := &Prometheus{
		api:      promv1.NewAPI(client),
		endpoint: endpoint,
		flavor:   "prometheus",
		timeout:  60 * time.Second,
		metrics:  make(map[Meter]string, len(DefaultPrometheusMetrics)),
		label:    "resource_id",
		now:      time.Now,
	}
	for m, n := range DefaultPrometheusMetrics {
		p.metrics[m] = n
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Name returns "prometheus".
func (p *Prometheus) Name() string { return "prometheus" }

// Flavor returns the detected server flavor (prometheus, thanos or cortex).
// It is only meaningful after a successful Ping.
func (p *Prometheus) Flavor() string { return p.flavor }

// Supports reports whether a series name is configured for m.
func (p *Prometheus) Supports(m Meter) bool {
	return p.metrics[m] != ""
}

// Ping checks connectivity and detects the server flavor.
func (p *Prometheus) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, _, err := p.api.Query(ctx, "up", p.now()); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBackendUnreachable, p.endpoint, err)
	}

	p.detectFlavor(ctx)
	return nil
}

func (p *Prometheus) detectFlavor(ctx context.Context) {
	for _, probe := range []struct{ flavor, query string }{
		{"thanos", "thanos_store_nodes_total"},
		{"cortex", "cortex_ingester_active_series"},
	} {
		result, _, err := p.api.Query(ctx, probe.query, p.now())
		if err != nil {
			continue
		}
		if vec, ok := result.(prommodel.Vector); ok && len(vec) > 0 {
			p.flavor = probe.flavor
			return
		}
	}
}

// StatisticAggregation evaluates an *_over_time subquery at the window end.
func (p *Prometheus) StatisticAggregation(ctx context.Context, q Query) (float64, error) {
	metric := p.metrics[q.Meter]
	if metric == "" {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedMeter, q.Meter)
	}

	promql, err := queryStatistic(q.Aggregation, metric, p.label, q.ResourceID, q.Dimensions, q.Period, q.Granularity)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, end := q.Window(p.now())
	result, _, err := p.api.Query(ctx, promql, end)
	if err != nil {
		return 0, fmt.Errorf("querying %s for %s: %w", q.Meter, q.ResourceID, err)
	}

	return firstSample(result)
}

// firstSample returns the value of the first vector element.
func firstSample(v prommodel.Value) (float64, error) {
	vec, ok := v.(prommodel.Vector)
	if !ok {
		return 0, fmt.Errorf("unexpected prometheus result type %s", v.Type())
	}
	if len(vec) == 0 {
		return 0, ErrNoData
	}
	val := float64(vec[0].Value)
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, ErrNoData
	}
	return val, nil
}

// formatDuration converts a Go duration to a PromQL duration string.
func formatDuration(d time.Duration) string {
	if d == 0 {
		return ""
	}
	hours := int(d.Hours())
	if hours >= 24 && hours%24 == 0 && d == time.Duration(hours)*time.Hour {
		return fmt.Sprintf("%dd", hours/24)
	}
	if hours > 0 && d == time.Duration(hours)*time.Hour {
		return fmt.Sprintf("%dh", hours)
	}
	minutes := int(d.Minutes())
	if minutes > 0 && d == time.Duration(minutes)*time.Minute {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
