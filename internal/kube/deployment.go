package kube

import (
	appsv1 "k8s.io/api/apps/v1"
)

// DesiredReplicas returns spec.replicas, defaulting to 1 the way the
// apps controller does.
func DesiredReplicas(d *appsv1.Deployment) int32 {
	if d.Spec.Replicas == nil {
		return 1
	}
	return *d.Spec.Replicas
}

// IsRollingOut reports whether the Deployment still has replicas being
// replaced or waiting to become ready.
func IsRollingOut(d *appsv1.Deployment) bool {
	return d.Status.UpdatedReplicas < d.Status.Replicas ||
		d.Status.ReadyReplicas < d.Status.Replicas
}

// IsAvailable reports whether every desired replica is updated and ready.
func IsAvailable(d *appsv1.Deployment) bool {
	desired := DesiredReplicas(d)
	return d.Status.UpdatedReplicas == desired &&
		d.Status.ReadyReplicas == desired
}

// HasFailed reports whether the Deployment carries an explicit failure
// condition from the apps controller.
func HasFailed(d *appsv1.Deployment) bool {
	for _, condition := range d.Status.Conditions {
		switch condition.Type {
		case appsv1.DeploymentProgressing:
			if condition.Status == "False" {
				return true
			}
			if condition.Reason == "ProgressDeadlineExceeded" {
				return true
			}
		case appsv1.DeploymentReplicaFailure:
			if condition.Status == "True" {
				return true
			}
		}
	}
	return false
}
