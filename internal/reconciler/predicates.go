package reconciler

import (
	"sigs.k8s.io/controller-runtime/pkg/event"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	rolloutsv1alpha1 "github.com/stagehand-sh/rollouts/api/v1alpha1"
)

// RolloutChangedPredicate allows spec changes (generation bumps, which
// cover the abort flag) and drops the controller's own status writes.
// Progress between spec changes is driven by requeues, not watch
// events, so suppressing status updates avoids a tick storm where every
// persisted transition schedules another tick.
func RolloutChangedPredicate() predicate.Predicate {
	return predicate.Funcs{
		CreateFunc:  func(e event.CreateEvent) bool { return true },
		DeleteFunc:  func(e event.DeleteEvent) bool { return true },
		GenericFunc: func(e event.GenericEvent) bool { return true },
		UpdateFunc: func(e event.UpdateEvent) bool {
			oldObj, okOld := e.ObjectOld.(*rolloutsv1alpha1.Rollout)
			newObj, okNew := e.ObjectNew.(*rolloutsv1alpha1.Rollout)
			if !okOld || !okNew {
				return true
			}
			return oldObj.Generation != newObj.Generation
		},
	}
}
