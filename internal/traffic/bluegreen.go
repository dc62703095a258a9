package traffic

import (
	"context"
	"fmt"

	rolloutsv1alpha1 "github.com/stagehand-sh/rollouts/api/v1alpha1"
)

// setBlueGreenWeight repoints the Service selector between the two
// environments. The selector is replaced in one patch, so the cutover
// is atomic; intermediate weights are rejected outright.
func (s *Splitter) setBlueGreenWeight(ctx context.Context, rollout *rolloutsv1alpha1.Rollout, weight int32) error {
	if weight != 0 && weight != 100 {
		return fmt.Errorf("blue-green weight must be 0 or 100, got %d", weight)
	}

	svcKey, err := s.serviceKey(rollout)
	if err != nil {
		return err
	}

	track := TrackStable
	if weight == 100 {
		track = TrackCanary
	}
	return s.kube.PatchServiceSelector(ctx, svcKey, map[string]string{
		"app":      rollout.Spec.WorkloadRef.Name,
		TrackLabel: track,
	})
}
