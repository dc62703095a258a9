package service

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	rolloutsv1alpha1 "github.com/stagehand-sh/rollouts/api/v1alpha1"
	"github.com/stagehand-sh/rollouts/internal/filter"
	"github.com/stagehand-sh/rollouts/internal/store"
	"github.com/stagehand-sh/rollouts/internal/traffic"
)

// Rollouts is the operator-facing surface. Starting, inspecting, and
// aborting happen synchronously here; progression itself is owned by
// the controller loop.
type Rollouts struct {
	client client.Client
	store  *store.Store
	filter *filter.RolloutFilter
}

func NewRollouts(c client.Client, rolloutFilter *filter.RolloutFilter) *Rollouts {
	return &Rollouts{
		client: c,
		store:  store.NewStore(c),
		filter: rolloutFilter,
	}
}

// Status is a point-in-time snapshot of a rollout's progress.
type Status struct {
	Name           string
	Namespace      string
	Workload       string
	Strategy       rolloutsv1alpha1.Strategy
	Phase          rolloutsv1alpha1.RolloutPhase
	StepIndex      int32
	Weight         int32
	StableWeight   int32
	Message        string
	History        []rolloutsv1alpha1.PhaseTransition
	LastTransition *metav1.Time
}

// StartRollout validates and admits a new rollout synchronously.
// Configuration errors, policy rejections, and conflicts with an
// already active rollout are reported to the caller; nothing is
// created in those cases. Admitted rollouts are picked up by the
// controller, which drives them from there.
func (r *Rollouts) StartRollout(ctx context.Context, rollout *rolloutsv1alpha1.Rollout) error {
	log := ctrl.LoggerFrom(ctx)

	if r.filter != nil && !r.filter.Allowed(rollout.Namespace, rollout.Labels) {
		return fmt.Errorf("namespace %s: %w", rollout.Namespace, ErrPolicyRejected)
	}
	if err := rollout.Spec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if rollout.Spec.Strategy == rolloutsv1alpha1.StrategyRollingUpdate {
		if _, _, err := traffic.RollingBounds(rollout.Spec.RollingUpdate); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
		}
	}

	active, err := r.store.Load(ctx, rollout.Namespace, rollout.Spec.WorkloadRef.Name)
	if err != nil {
		return err
	}
	if active != nil {
		return fmt.Errorf("workload %s held by rollout %s: %w", rollout.Spec.WorkloadRef.Name, active.Name, ErrConflict)
	}

	if err := r.client.Create(ctx, rollout); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return fmt.Errorf("rollout %s: %w", rollout.Name, ErrConflict)
		}
		return err
	}

	log.Info("Rollout admitted",
		"rollout", rollout.Name,
		"namespace", rollout.Namespace,
		"workload", rollout.Spec.WorkloadRef.Name,
		"strategy", rollout.Spec.Strategy,
	)
	return nil
}

// GetStatus returns the current state of a rollout, including its
// transition history.
func (r *Rollouts) GetStatus(ctx context.Context, namespace, name string) (Status, error) {
	rollout := &rolloutsv1alpha1.Rollout{}
	if err := r.client.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, rollout); err != nil {
		if apierrors.IsNotFound(err) {
			return Status{}, fmt.Errorf("rollout %s/%s: %w", namespace, name, ErrNotFound)
		}
		return Status{}, err
	}
	return Status{
		Name:           rollout.Name,
		Namespace:      rollout.Namespace,
		Workload:       rollout.Spec.WorkloadRef.Name,
		Strategy:       rollout.Spec.Strategy,
		Phase:          rollout.Status.Phase,
		StepIndex:      rollout.Status.StepIndex,
		Weight:         rollout.Status.Weight,
		StableWeight:   rollout.Status.StableWeight,
		Message:        rollout.Status.Message,
		History:        rollout.Status.History,
		LastTransition: rollout.Status.LastTransitionTime,
	}, nil
}

// Abort requests termination of a rollout. The request is accepted for
// any non-terminal rollout and acted on at the next safe point; a
// terminal rollout cannot be aborted.
func (r *Rollouts) Abort(ctx context.Context, namespace, name string) error {
	rollout := &rolloutsv1alpha1.Rollout{}
	if err := r.client.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, rollout); err != nil {
		if apierrors.IsNotFound(err) {
			return fmt.Errorf("rollout %s/%s: %w", namespace, name, ErrNotFound)
		}
		return err
	}
	if rollout.Status.Phase.Terminal() {
		return fmt.Errorf("rollout %s/%s already %s: %w", namespace, name, rollout.Status.Phase, ErrConflict)
	}
	if rollout.Spec.Abort {
		return nil
	}

	patched := rollout.DeepCopy()
	patched.Spec.Abort = true
	if err := r.client.Patch(ctx, patched, client.MergeFrom(rollout)); err != nil {
		return err
	}

	ctrl.LoggerFrom(ctx).Info("Abort requested", "rollout", name, "namespace", namespace)
	return nil
}
