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

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// Strategy selects how traffic is moved from the stable to the candidate revision.
// +kubebuilder:validation:Enum=Canary;BlueGreen;RollingUpdate
type Strategy string

const (
	// StrategyCanary shifts a growing traffic fraction to the candidate,
	// either by replica ratio or through a weighted routing rule.
	StrategyCanary Strategy = "Canary"
	// StrategyBlueGreen switches all traffic atomically; the weight is
	// only ever 0 or 100.
	StrategyBlueGreen Strategy = "BlueGreen"
	// StrategyRollingUpdate delegates to the native incremental replace
	// under surge/unavailable bounds.
	StrategyRollingUpdate Strategy = "RollingUpdate"
)

// RolloutPhase is the current state of a Rollout's progression.
type RolloutPhase string

const (
	// PhaseInitializing means the candidate revision is being validated
	PhaseInitializing RolloutPhase = "Initializing"
	// PhaseStepping means a weight checkpoint has been applied and the
	// controller is baking at it
	PhaseStepping RolloutPhase = "Stepping"
	// PhaseAborting means a policy violation or abort request was seen
	// and the rollback engine is restoring the stable revision
	PhaseAborting RolloutPhase = "Aborting"
	// PhaseSucceeded means the candidate reached 100% and passed analysis
	PhaseSucceeded RolloutPhase = "Succeeded"
	// PhaseRolledBack means traffic was restored to the stable revision
	PhaseRolledBack RolloutPhase = "RolledBack"
	// PhaseAborted means the rollout was rejected or aborted before any
	// traffic had been shifted
	PhaseAborted RolloutPhase = "Aborted"
)

// Terminal reports whether the phase permits no further transitions.
func (p RolloutPhase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseRolledBack || p == PhaseAborted
}

// WorkloadRef points at the Deployment the rollout operates on. The
// candidate Deployment is expected at "<name>-canary" in the same
// namespace for the Canary and BlueGreen strategies.
type WorkloadRef struct {
	// Name is the name of the stable Deployment
	// +required
	Name string `json:"name"`
}

// Revision is an immutable, addressable version of the workload.
type Revision struct {
	// Image is the container image digest or tag for this revision
	// +required
	Image string `json:"image"`

	// ConfigHash is a hash of the revision's configuration
	// +optional
	ConfigHash string `json:"configHash,omitempty"`
}

// RollingUpdateSpec bounds the native incremental replace.
type RollingUpdateSpec struct {
	// MaxSurge is the maximum number (or percentage) of extra pods
	// allowed above the desired count during the update
	// +optional
	MaxSurge *intstr.IntOrString `json:"maxSurge,omitempty"`

	// MaxUnavailable is the maximum number (or percentage) of pods
	// that may be unavailable during the update
	// +optional
	MaxUnavailable *intstr.IntOrString `json:"maxUnavailable,omitempty"`
}

// AnalysisSpec configures health evaluation during a bake window.
// Thresholds are deltas of the candidate measured against the stable
// revision over the same window.
type AnalysisSpec struct {
	// Interval between health samples
	// +optional
	Interval *metav1.Duration `json:"interval,omitempty"`

	// BakeTime is how long to hold at a checkpoint before advancing
	// +optional
	BakeTime *metav1.Duration `json:"bakeTime,omitempty"`

	// MaxErrorRateDeltaPercent is the tolerated error-rate increase,
	// in percentage points
	// +optional
	MaxErrorRateDeltaPercent *int32 `json:"maxErrorRateDeltaPercent,omitempty"`

	// MaxLatencyDeltaMillis is the tolerated p99 latency increase
	// +optional
	MaxLatencyDeltaMillis *int32 `json:"maxLatencyDeltaMillis,omitempty"`

	// MinRequestVolume is the minimum request count for a sample to be
	// conclusive
	// +optional
	MinRequestVolume *int32 `json:"minRequestVolume,omitempty"`

	// MaxExtensions is how many times an inconclusive bake window may
	// be extended before the rollout fails closed
	// +optional
	MaxExtensions *int32 `json:"maxExtensions,omitempty"`
}

// TrafficRoutingSpec names the Service used to move traffic. For the
// Canary strategy its backend-weights annotation carries the exact
// split; when absent the split is approximated by replica ratio. For
// BlueGreen the Service selector is repointed atomically.
type TrafficRoutingSpec struct {
	// ServiceName is the Service fronting the workload
	// +required
	ServiceName string `json:"serviceName"`

	// Weighted enables exact weighted routing via the Service's
	// backend-weights annotation instead of replica-count ratio
	// +optional
	Weighted bool `json:"weighted,omitempty"`
}

// RolloutSpec defines the desired progressive delivery operation
type RolloutSpec struct {
	// WorkloadRef is the workload being rolled out
	// +required
	WorkloadRef WorkloadRef `json:"workloadRef"`

	// Strategy is the delivery strategy
	// +required
	Strategy Strategy `json:"strategy"`

	// StableRevision is the last known-good revision
	// +required
	StableRevision Revision `json:"stableRevision"`

	// CandidateRevision is the revision being introduced
	// +required
	CandidateRevision Revision `json:"candidateRevision"`

	// Steps is the ordered sequence of candidate weight checkpoints
	// (Canary only; must be strictly increasing and end at 100)
	// +optional
	Steps []int32 `json:"steps,omitempty"`

	// RollingUpdate bounds the RollingUpdate strategy
	// +optional
	RollingUpdate *RollingUpdateSpec `json:"rollingUpdate,omitempty"`

	// Analysis configures the health policy
	// +optional
	Analysis AnalysisSpec `json:"analysis,omitempty"`

	// TrafficRouting configures the Service used for traffic moves
	// +optional
	TrafficRouting *TrafficRoutingSpec `json:"trafficRouting,omitempty"`

	// Abort requests the rollout be abandoned at the next safe point
	// +optional
	Abort bool `json:"abort,omitempty"`
}

// PhaseTransition is one entry of the rollout's append-only history.
type PhaseTransition struct {
	Phase RolloutPhase `json:"phase"`

	// Weight is the candidate weight at the time of the transition
	Weight int32 `json:"weight"`

	Timestamp metav1.Time `json:"timestamp"`

	// +optional
	Message string `json:"message,omitempty"`
}

// RolloutStatus is the durable record of the rollout's progression.
// It is persisted before any externally visible traffic change so a
// restart resumes from the last durable checkpoint.
type RolloutStatus struct {
	// +optional
	Phase RolloutPhase `json:"phase,omitempty"`

	// StepIndex is the index into spec.steps currently being baked
	// +optional
	StepIndex int32 `json:"stepIndex,omitempty"`

	// Weight is the candidate traffic weight currently applied (0-100)
	// +optional
	Weight int32 `json:"weight,omitempty"`

	// StableWeight is always 100 - weight
	// +optional
	StableWeight int32 `json:"stableWeight,omitempty"`

	// BakeStartedAt marks the start of the current bake window
	// +optional
	BakeStartedAt *metav1.Time `json:"bakeStartedAt,omitempty"`

	// Extensions counts inconclusive bake-window extensions at the
	// current checkpoint
	// +optional
	Extensions int32 `json:"extensions,omitempty"`

	// +optional
	LastTransitionTime *metav1.Time `json:"lastTransitionTime,omitempty"`

	// +optional
	Message string `json:"message,omitempty"`

	// History is the append-only record of phase transitions
	// +optional
	History []PhaseTransition `json:"history,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Strategy",type=string,JSONPath=`.spec.strategy`
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Weight",type=integer,JSONPath=`.status.weight`

// Rollout is the Schema for the rollouts API. One Rollout moves traffic
// from a stable to a candidate revision of a single workload; at most
// one Rollout may be active per workload at a time.
type Rollout struct {
	metav1.TypeMeta `json:",inline"`

	// metadata is a standard object metadata
	// +optional
	metav1.ObjectMeta `json:"metadata,omitzero"`

	// spec defines the desired rollout
	// +required
	Spec RolloutSpec `json:"spec"`

	// status is the durable progression record
	// +optional
	Status RolloutStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// RolloutList contains a list of Rollout
type RolloutList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitzero"`
	Items           []Rollout `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Rollout{}, &RolloutList{})
}
