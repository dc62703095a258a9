package health

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	promModel "github.com/prometheus/common/model"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// PrometheusProvider reads per-revision traffic health from a
// Prometheus server. Revisions are distinguished by the track label the
// traffic splitter stamps onto pods.
type PrometheusProvider struct {
	api        v1.API
	trackLabel string
}

// NewPrometheusProvider creates a provider for the given server address.
func NewPrometheusProvider(address, trackLabel string) (*PrometheusProvider, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}
	return &PrometheusProvider{
		api:        v1.NewAPI(client),
		trackLabel: trackLabel,
	}, nil
}

// Sample queries request and latency aggregates for one track of the
// workload over the trailing window.
func (p *PrometheusProvider) Sample(ctx context.Context, target Target, track Track, window time.Duration) (Sample, error) {
	now := time.Now()
	rng := promModel.Duration(window).String()
	matcher := fmt.Sprintf(`namespace=%q,app=%q,%s=%q`, target.Namespace, target.Name, p.trackLabel, track)

	errors, err := p.scalar(ctx, fmt.Sprintf(
		`sum(increase(http_requests_total{%s,code=~"5.."}[%s]))`, matcher, rng), now)
	if err != nil {
		return Sample{}, err
	}

	total, err := p.scalar(ctx, fmt.Sprintf(
		`sum(increase(http_requests_total{%s}[%s]))`, matcher, rng), now)
	if err != nil {
		return Sample{}, err
	}

	p50, err := p.quantile(ctx, matcher, rng, 0.5, now)
	if err != nil {
		return Sample{}, err
	}
	p99, err := p.quantile(ctx, matcher, rng, 0.99, now)
	if err != nil {
		return Sample{}, err
	}

	success := total - errors
	if success < 0 {
		success = 0
	}
	return Sample{
		Track:        track,
		SuccessCount: success,
		ErrorCount:   errors,
		LatencyP50:   p50,
		LatencyP99:   p99,
		Taken:        now,
	}, nil
}

func (p *PrometheusProvider) quantile(ctx context.Context, matcher, rng string, q float64, ts time.Time) (time.Duration, error) {
	seconds, err := p.scalar(ctx, fmt.Sprintf(
		`histogram_quantile(%g, sum(rate(http_request_duration_seconds_bucket{%s}[%s])) by (le))`,
		q, matcher, rng), ts)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// scalar runs an instant query expected to yield a single-element
// vector. An empty result is reported as zero, not an error: a revision
// with no traffic yet simply has nothing to measure.
func (p *PrometheusProvider) scalar(ctx context.Context, query string, ts time.Time) (float64, error) {
	result, warnings, err := p.api.Query(ctx, query, ts)
	if err != nil {
		return 0, fmt.Errorf("failed to query prometheus: %w", err)
	}
	if len(warnings) > 0 {
		logger := log.FromContext(ctx)
		logger.V(1).Info("prometheus query returned warnings", "query", query, "warnings", warnings)
	}

	vector, ok := result.(promModel.Vector)
	if !ok {
		return 0, fmt.Errorf("unexpected result type %T for query %s", result, query)
	}
	if len(vector) == 0 {
		return 0, nil
	}
	value := float64(vector[0].Value)
	if value != value { // NaN from histogram_quantile with no data
		return 0, nil
	}
	return value, nil
}
