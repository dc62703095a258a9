package traffic

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	rolloutsv1alpha1 "github.com/stagehand-sh/rollouts/api/v1alpha1"
	"github.com/stagehand-sh/rollouts/internal/kube"
)

// setCanaryWeight applies the split either exactly, through the
// Service's backend-weights annotation, or approximately, by dividing
// the replica pool between the stable and candidate Deployments.
func (s *Splitter) setCanaryWeight(ctx context.Context, rollout *rolloutsv1alpha1.Rollout, weight int32) error {
	if rollout.Spec.TrafficRouting != nil && rollout.Spec.TrafficRouting.Weighted {
		return s.setWeightedRouting(ctx, rollout, weight)
	}
	return s.setReplicaRatio(ctx, rollout, weight)
}

// setWeightedRouting writes the split into a single annotation patch,
// which the routing layer picks up atomically.
func (s *Splitter) setWeightedRouting(ctx context.Context, rollout *rolloutsv1alpha1.Rollout, weight int32) error {
	svcKey, err := s.serviceKey(rollout)
	if err != nil {
		return err
	}
	weights, err := json.Marshal(map[string]int32{
		TrackStable: 100 - weight,
		TrackCanary: weight,
	})
	if err != nil {
		return fmt.Errorf("failed to encode backend weights: %w", err)
	}
	return s.kube.PatchServiceAnnotation(ctx, svcKey, BackendWeightsAnnotation, string(weights))
}

// setReplicaRatio approximates the weight by replica counts. The total
// pool size is the sum of both Deployments' desired replicas, which
// stays constant across weight changes. The side gaining replicas is
// scaled first so serving capacity never dips; if the second scale
// fails the caller retries without having recorded the new weight.
func (s *Splitter) setReplicaRatio(ctx context.Context, rollout *rolloutsv1alpha1.Rollout, weight int32) error {
	stable, err := s.kube.GetDeployment(ctx, s.StableKey(rollout))
	if err != nil {
		return err
	}
	canary, err := s.kube.GetDeployment(ctx, s.CanaryKey(rollout))
	if err != nil {
		return err
	}

	total := kube.DesiredReplicas(stable) + kube.DesiredReplicas(canary)
	if total < 1 {
		return fmt.Errorf("workload %s has no replicas to divide", rollout.Spec.WorkloadRef.Name)
	}

	canaryReplicas := CanaryReplicas(total, weight)
	stableReplicas := total - canaryReplicas

	if canaryReplicas >= kube.DesiredReplicas(canary) {
		// Weight increasing: grow the candidate before shrinking stable.
		if err := s.kube.ScaleDeployment(ctx, s.CanaryKey(rollout), canaryReplicas); err != nil {
			return err
		}
		return s.kube.ScaleDeployment(ctx, s.StableKey(rollout), stableReplicas)
	}

	// Weight decreasing: grow stable back before shrinking the candidate.
	if err := s.kube.ScaleDeployment(ctx, s.StableKey(rollout), stableReplicas); err != nil {
		return err
	}
	return s.kube.ScaleDeployment(ctx, s.CanaryKey(rollout), canaryReplicas)
}

// CanaryReplicas converts a weight into a concrete candidate replica
// count: nearest feasible integer, at least one replica whenever any
// traffic is requested, and never the whole pool below weight 100.
func CanaryReplicas(total, weight int32) int32 {
	if weight <= 0 {
		return 0
	}
	if weight >= 100 {
		return total
	}
	n := int32(math.Round(float64(total) * float64(weight) / 100.0))
	if n < 1 {
		n = 1
	}
	if n >= total {
		n = total - 1
	}
	return n
}
