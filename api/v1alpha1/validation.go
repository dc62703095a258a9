/*
Copyright 2024.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1alpha1

import "fmt"

// defaultCanarySteps is the step plan used when a Canary rollout does
// not specify one.
var defaultCanarySteps = []int32{20, 50, 100}

// EffectiveSteps returns the weight checkpoints the rollout will walk.
// BlueGreen and RollingUpdate have a single implicit checkpoint at 100.
func (s *RolloutSpec) EffectiveSteps() []int32 {
	if s.Strategy != StrategyCanary {
		return []int32{100}
	}
	if len(s.Steps) == 0 {
		return defaultCanarySteps
	}
	return s.Steps
}

// Validate checks the spec for configuration errors. Failures here are
// surfaced synchronously to the caller and the rollout never starts.
func (s *RolloutSpec) Validate() error {
	if s.WorkloadRef.Name == "" {
		return fmt.Errorf("spec.workloadRef.name is required")
	}
	if s.CandidateRevision.Image == "" {
		return fmt.Errorf("spec.candidateRevision.image is required")
	}
	if s.StableRevision.Image == "" {
		return fmt.Errorf("spec.stableRevision.image is required")
	}

	switch s.Strategy {
	case StrategyCanary:
		if err := validateSteps(s.EffectiveSteps()); err != nil {
			return err
		}
	case StrategyBlueGreen:
		if s.TrafficRouting == nil || s.TrafficRouting.ServiceName == "" {
			return fmt.Errorf("spec.trafficRouting.serviceName is required for BlueGreen")
		}
		if len(s.Steps) > 0 {
			return fmt.Errorf("spec.steps is not valid for BlueGreen: the switch is atomic")
		}
	case StrategyRollingUpdate:
		if len(s.Steps) > 0 {
			return fmt.Errorf("spec.steps is not valid for RollingUpdate")
		}
	default:
		return fmt.Errorf("unknown strategy %q", s.Strategy)
	}
	return nil
}

func validateSteps(steps []int32) error {
	prev := int32(0)
	for i, w := range steps {
		if w <= prev || w > 100 {
			return fmt.Errorf("spec.steps[%d]=%d: steps must be strictly increasing within (0,100]", i, w)
		}
		prev = w
	}
	if prev != 100 {
		return fmt.Errorf("spec.steps must end at 100, got %d", prev)
	}
	return nil
}
