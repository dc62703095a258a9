package traffic

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/util/intstr"

	rolloutsv1alpha1 "github.com/stagehand-sh/rollouts/api/v1alpha1"
)

// setRollingWeight delegates to the orchestrator's native incremental
// replace. There is no intermediate weight: weight 100 introduces the
// candidate image under the configured surge/unavailable bounds and
// weight 0 restores the stable image the same way.
func (s *Splitter) setRollingWeight(ctx context.Context, rollout *rolloutsv1alpha1.Rollout, weight int32) error {
	if weight != 0 && weight != 100 {
		return fmt.Errorf("rolling update weight must be 0 or 100, got %d", weight)
	}

	maxSurge, maxUnavailable, err := RollingBounds(rollout.Spec.RollingUpdate)
	if err != nil {
		return err
	}

	key := s.StableKey(rollout)
	if err := s.kube.SetDeploymentRollingUpdate(ctx, key, maxSurge, maxUnavailable); err != nil {
		return err
	}

	image := rollout.Spec.CandidateRevision.Image
	if weight == 0 {
		image = rollout.Spec.StableRevision.Image
	}
	return s.kube.SetDeploymentImage(ctx, key, "", image)
}

// RollingBounds validates and defaults the surge/unavailable bounds.
// Both must be non-negative and at least one must be nonzero, otherwise
// the update could never make forward progress.
func RollingBounds(spec *rolloutsv1alpha1.RollingUpdateSpec) (maxSurge, maxUnavailable *intstr.IntOrString, err error) {
	surge := intstr.FromInt32(1)
	unavailable := intstr.FromInt32(0)
	if spec != nil {
		if spec.MaxSurge != nil {
			surge = *spec.MaxSurge
		}
		if spec.MaxUnavailable != nil {
			unavailable = *spec.MaxUnavailable
		}
	}

	surgeVal, err := intstr.GetScaledValueFromIntOrPercent(&surge, 100, true)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid maxSurge: %w", err)
	}
	unavailVal, err := intstr.GetScaledValueFromIntOrPercent(&unavailable, 100, false)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid maxUnavailable: %w", err)
	}
	if surgeVal < 0 || unavailVal < 0 {
		return nil, nil, fmt.Errorf("maxSurge and maxUnavailable must be non-negative")
	}
	if surgeVal == 0 && unavailVal == 0 {
		return nil, nil, fmt.Errorf("maxSurge and maxUnavailable cannot both be zero")
	}
	return &surge, &unavailable, nil
}
