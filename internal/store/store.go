package store

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	rolloutsv1alpha1 "github.com/stagehand-sh/rollouts/api/v1alpha1"
)

// Store is the durable record of every rollout's progression. Records
// live in the Rollout status subresource: the API server is the single
// source of truth, the cluster's traffic state is an effect converged
// toward it. Save is write-ahead: callers persist the intended state
// before any externally visible traffic change, so a crash resumes
// from the last durable phase instead of re-deriving unknown state.
type Store struct {
	client client.Client
}

func NewStore(c client.Client) *Store {
	return &Store{client: c}
}

// Save persists the rollout's status record.
func (s *Store) Save(ctx context.Context, rollout *rolloutsv1alpha1.Rollout) error {
	if err := s.client.Status().Update(ctx, rollout); err != nil {
		return fmt.Errorf("failed to persist rollout %s/%s: %w", rollout.Namespace, rollout.Name, err)
	}
	return nil
}

// Load returns the active (non-terminal) Rollout for the given
// workload, or nil when none is in flight. When several are in flight
// the oldest wins, with the UID breaking creation-time ties, so every
// caller sees the same winner regardless of list order. Terminal
// records are retained for audit and never considered active.
func (s *Store) Load(ctx context.Context, namespace, workload string) (*rolloutsv1alpha1.Rollout, error) {
	list := &rolloutsv1alpha1.RolloutList{}
	if err := s.client.List(ctx, list, client.InNamespace(namespace)); err != nil {
		return nil, fmt.Errorf("failed to list rollouts in %s: %w", namespace, err)
	}
	var active *rolloutsv1alpha1.Rollout
	for i := range list.Items {
		r := &list.Items[i]
		if r.Spec.WorkloadRef.Name != workload {
			continue
		}
		if r.Status.Phase.Terminal() {
			continue
		}
		if active == nil || olderThan(r, active) {
			active = r
		}
	}
	return active, nil
}

// olderThan orders rollouts by creation time, then UID.
func olderThan(a, b *rolloutsv1alpha1.Rollout) bool {
	if !a.CreationTimestamp.Equal(&b.CreationTimestamp) {
		return a.CreationTimestamp.Before(&b.CreationTimestamp)
	}
	return a.UID < b.UID
}

// Transition moves the rollout to a new phase, appending to the
// append-only history, and persists the record. Transitions on a
// terminal rollout are rejected; terminal records are never mutated.
func (s *Store) Transition(ctx context.Context, rollout *rolloutsv1alpha1.Rollout, phase rolloutsv1alpha1.RolloutPhase, message string) error {
	if rollout.Status.Phase.Terminal() {
		return fmt.Errorf("rollout %s/%s is terminal in phase %s", rollout.Namespace, rollout.Name, rollout.Status.Phase)
	}

	now := metav1.Now()
	rollout.Status.Phase = phase
	rollout.Status.Message = message
	rollout.Status.LastTransitionTime = &now
	rollout.Status.History = append(rollout.Status.History, rolloutsv1alpha1.PhaseTransition{
		Phase:     phase,
		Weight:    rollout.Status.Weight,
		Timestamp: now,
		Message:   message,
	})

	if err := s.Save(ctx, rollout); err != nil {
		return err
	}

	log.FromContext(ctx).Info("Rollout phase transition",
		"rollout", rollout.Name,
		"workload", rollout.Spec.WorkloadRef.Name,
		"phase", phase,
		"weight", rollout.Status.Weight,
	)
	return nil
}

// RecordWeight persists a newly applied traffic split. Weights always
// sum to 100 by construction.
func (s *Store) RecordWeight(ctx context.Context, rollout *rolloutsv1alpha1.Rollout, candidateWeight int32) error {
	rollout.Status.Weight = candidateWeight
	rollout.Status.StableWeight = 100 - candidateWeight
	return s.Save(ctx, rollout)
}
