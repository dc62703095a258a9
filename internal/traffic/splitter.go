package traffic

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/log"

	rolloutsv1alpha1 "github.com/stagehand-sh/rollouts/api/v1alpha1"
	"github.com/stagehand-sh/rollouts/internal/kube"
)

const (
	// TrackLabel distinguishes stable from candidate pods and Service
	// selectors. The metrics source keys health queries off the same
	// label.
	TrackLabel = "rollouts.stagehand.sh/track"

	TrackStable = "stable"
	TrackCanary = "canary"

	// BackendWeightsAnnotation carries the exact traffic split for
	// routing layers that honor weighted backends.
	BackendWeightsAnnotation = "rollouts.stagehand.sh/backend-weights"

	// CanarySuffix names the candidate Deployment relative to the
	// stable one.
	CanarySuffix = "-canary"
)

// Splitter computes and applies the desired traffic split between the
// stable and candidate revisions. Each strategy maps the abstract
// weight onto a concrete cluster mutation; a SetWeight call either
// fully applies the new split or leaves the previous one standing.
type Splitter struct {
	kube *kube.Client
}

func NewSplitter(c *kube.Client) *Splitter {
	return &Splitter{kube: c}
}

// CanaryName returns the candidate Deployment name for a workload.
func CanaryName(workload string) string {
	return workload + CanarySuffix
}

// SetWeight applies candidateWeight (0-100) for the rollout's strategy.
func (s *Splitter) SetWeight(ctx context.Context, rollout *rolloutsv1alpha1.Rollout, candidateWeight int32) error {
	if candidateWeight < 0 || candidateWeight > 100 {
		return fmt.Errorf("candidate weight %d out of range [0,100]", candidateWeight)
	}

	logger := log.FromContext(ctx)
	logger.Info("Applying traffic weight",
		"workload", rollout.Spec.WorkloadRef.Name,
		"strategy", rollout.Spec.Strategy,
		"candidateWeight", candidateWeight,
	)

	switch rollout.Spec.Strategy {
	case rolloutsv1alpha1.StrategyCanary:
		return s.setCanaryWeight(ctx, rollout, candidateWeight)
	case rolloutsv1alpha1.StrategyBlueGreen:
		return s.setBlueGreenWeight(ctx, rollout, candidateWeight)
	case rolloutsv1alpha1.StrategyRollingUpdate:
		return s.setRollingWeight(ctx, rollout, candidateWeight)
	default:
		return fmt.Errorf("unknown strategy %q", rollout.Spec.Strategy)
	}
}

// StableKey is the object key of the stable Deployment.
func (s *Splitter) StableKey(rollout *rolloutsv1alpha1.Rollout) types.NamespacedName {
	return types.NamespacedName{Namespace: rollout.Namespace, Name: rollout.Spec.WorkloadRef.Name}
}

// CanaryKey is the object key of the candidate Deployment.
func (s *Splitter) CanaryKey(rollout *rolloutsv1alpha1.Rollout) types.NamespacedName {
	return types.NamespacedName{Namespace: rollout.Namespace, Name: CanaryName(rollout.Spec.WorkloadRef.Name)}
}

func (s *Splitter) serviceKey(rollout *rolloutsv1alpha1.Rollout) (types.NamespacedName, error) {
	if rollout.Spec.TrafficRouting == nil || rollout.Spec.TrafficRouting.ServiceName == "" {
		return types.NamespacedName{}, fmt.Errorf("strategy %s requires spec.trafficRouting.serviceName", rollout.Spec.Strategy)
	}
	return types.NamespacedName{Namespace: rollout.Namespace, Name: rollout.Spec.TrafficRouting.ServiceName}, nil
}
