package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	rolloutPhaseMetricName  = "stagehand_rollout_phase"
	rolloutWeightMetricName = "stagehand_rollout_candidate_weight"
)

var (
	rolloutPhaseGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: rolloutPhaseMetricName,
		Help: "Current phase of a rollout (the labelled phase is set to 1)",
	}, []string{
		"namespace",
		"rollout",
		"workload",
		"strategy",
		"phase",
	})

	rolloutWeightGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: rolloutWeightMetricName,
		Help: "Traffic weight currently applied to the candidate revision (0-100)",
	}, []string{
		"namespace",
		"rollout",
		"workload",
	})

	metricsRegistered = false
)

func registerMetrics() {
	if !metricsRegistered {
		metrics.Registry.MustRegister(rolloutPhaseGauge, rolloutWeightGauge)
		metricsRegistered = true
	}
}

// recordPhaseMetric replaces any previous phase sample for the rollout
// so only the current phase reads 1.
func recordPhaseMetric(namespace, rollout, workload, strategy, phase string) {
	rolloutPhaseGauge.DeletePartialMatch(map[string]string{
		"namespace": namespace,
		"rollout":   rollout,
	})
	rolloutPhaseGauge.WithLabelValues(namespace, rollout, workload, strategy, phase).Set(1)
}

func recordWeightMetric(namespace, rollout, workload string, weight int32) {
	rolloutWeightGauge.WithLabelValues(namespace, rollout, workload).Set(float64(weight))
}
