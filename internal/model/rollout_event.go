package model

import (
	"time"

	"github.com/google/uuid"
)

type RolloutEventKind string
type RolloutOutcome string

const (
	RolloutEventKindPhaseTransition RolloutEventKind = "PHASE_TRANSITION"

	RolloutOutcomeSucceeded  RolloutOutcome = "SUCCEEDED"
	RolloutOutcomeRolledBack RolloutOutcome = "ROLLED_BACK"
	RolloutOutcomeAborted    RolloutOutcome = "ABORTED"
)

type SourceMetadata struct {
	ClusterID         string `json:"clusterId"`
	ControllerVersion string `json:"controllerVersion"`
}

type WorkloadRef struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

type Revision struct {
	Candidate string `json:"candidate"`
	Stable    string `json:"stable,omitempty"`
}

type TrafficWeight struct {
	Stable    int32 `json:"stable"`
	Candidate int32 `json:"candidate"`
}

// RolloutEventPayload is the wire format published to the control
// plane and Pub/Sub for every rollout phase transition.
type RolloutEventPayload struct {
	EventID     string            `json:"eventId"`
	OccurredAt  time.Time         `json:"occurredAt"`
	Environment string            `json:"environment,omitempty"`
	Source      SourceMetadata    `json:"source"`
	Workload    WorkloadRef       `json:"workload"`
	Labels      map[string]string `json:"labels"`
	Kind        RolloutEventKind  `json:"kind"`
	Rollout     string            `json:"rollout"`
	Strategy    string            `json:"strategy"`
	Phase       string            `json:"phase"`
	Weight      TrafficWeight     `json:"weight"`
	Revision    Revision          `json:"revision"`
	Outcome     *RolloutOutcome   `json:"outcome,omitempty"`
	Message     string            `json:"message,omitempty"`
}

func NewRolloutEventPayload(update RolloutUpdate, clusterID, environment, controllerVersion string) RolloutEventPayload {
	labels := make(map[string]string)
	for key, value := range update.Labels {
		labels[key] = value
	}
	labels["cluster_name"] = clusterID

	return RolloutEventPayload{
		EventID:     uuid.New().String(),
		OccurredAt:  time.Now().UTC(),
		Environment: environment,
		Source: SourceMetadata{
			ClusterID:         clusterID,
			ControllerVersion: controllerVersion,
		},
		Workload: WorkloadRef{
			Name:      update.Workload,
			Namespace: update.Namespace,
		},
		Labels:   labels,
		Kind:     RolloutEventKindPhaseTransition,
		Rollout:  update.RolloutName,
		Strategy: update.Strategy,
		Phase:    update.Phase,
		Weight: TrafficWeight{
			Stable:    update.StableWeight,
			Candidate: update.Weight,
		},
		Revision: Revision{
			Candidate: update.CandidateRevision,
			Stable:    update.StableRevision,
		},
		Outcome: mapOutcome(update.Phase),
		Message: update.Message,
	}
}

func mapOutcome(phase string) *RolloutOutcome {
	var outcome RolloutOutcome
	switch phase {
	case "Succeeded":
		outcome = RolloutOutcomeSucceeded
	case "RolledBack":
		outcome = RolloutOutcomeRolledBack
	case "Aborted":
		outcome = RolloutOutcomeAborted
	default:
		return nil
	}
	return &outcome
}
