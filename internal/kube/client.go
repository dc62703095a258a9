package kube

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Client wraps the controller-runtime client with the handful of
// cluster operations the rollout machinery needs: reading workloads,
// scaling them, repointing Service selectors, and patching weight
// annotations. It is a pure consumer of the API server.
type Client struct {
	client.Client
}

func NewClient(c client.Client) *Client {
	return &Client{Client: c}
}

// GetDeployment fetches the Deployment identified by key.
func (c *Client) GetDeployment(ctx context.Context, key types.NamespacedName) (*appsv1.Deployment, error) {
	deploy := &appsv1.Deployment{}
	if err := c.Get(ctx, key, deploy); err != nil {
		return nil, fmt.Errorf("failed to get deployment %s: %w", key, err)
	}
	return deploy, nil
}

// ScaleDeployment patches spec.replicas of the given Deployment.
func (c *Client) ScaleDeployment(ctx context.Context, key types.NamespacedName, replicas int32) error {
	deploy, err := c.GetDeployment(ctx, key)
	if err != nil {
		return err
	}
	if deploy.Spec.Replicas != nil && *deploy.Spec.Replicas == replicas {
		return nil
	}
	patch := client.MergeFrom(deploy.DeepCopy())
	deploy.Spec.Replicas = &replicas
	if err := c.Patch(ctx, deploy, patch); err != nil {
		return fmt.Errorf("failed to scale deployment %s to %d: %w", key, replicas, err)
	}
	return nil
}

// SetDeploymentImage patches the image of the named container (or the
// first container when name is empty) to introduce a new revision.
func (c *Client) SetDeploymentImage(ctx context.Context, key types.NamespacedName, container, image string) error {
	deploy, err := c.GetDeployment(ctx, key)
	if err != nil {
		return err
	}
	patch := client.MergeFrom(deploy.DeepCopy())
	updated := false
	for i := range deploy.Spec.Template.Spec.Containers {
		if container == "" || deploy.Spec.Template.Spec.Containers[i].Name == container {
			deploy.Spec.Template.Spec.Containers[i].Image = image
			updated = true
			break
		}
	}
	if !updated {
		return fmt.Errorf("container %q not found in deployment %s", container, key)
	}
	if err := c.Patch(ctx, deploy, patch); err != nil {
		return fmt.Errorf("failed to set image on deployment %s: %w", key, err)
	}
	return nil
}

// SetDeploymentRollingUpdate patches the Deployment's update strategy to
// RollingUpdate with the given surge/unavailable bounds.
func (c *Client) SetDeploymentRollingUpdate(ctx context.Context, key types.NamespacedName, maxSurge, maxUnavailable *intstr.IntOrString) error {
	deploy, err := c.GetDeployment(ctx, key)
	if err != nil {
		return err
	}
	patch := client.MergeFrom(deploy.DeepCopy())
	deploy.Spec.Strategy = appsv1.DeploymentStrategy{
		Type: appsv1.RollingUpdateDeploymentStrategyType,
		RollingUpdate: &appsv1.RollingUpdateDeployment{
			MaxSurge:       maxSurge,
			MaxUnavailable: maxUnavailable,
		},
	}
	if err := c.Patch(ctx, deploy, patch); err != nil {
		return fmt.Errorf("failed to patch strategy on deployment %s: %w", key, err)
	}
	return nil
}

// GetService fetches the Service identified by key.
func (c *Client) GetService(ctx context.Context, key types.NamespacedName) (*corev1.Service, error) {
	svc := &corev1.Service{}
	if err := c.Get(ctx, key, svc); err != nil {
		return nil, fmt.Errorf("failed to get service %s: %w", key, err)
	}
	return svc, nil
}

// PatchServiceSelector replaces the Service's selector in a single
// patch, so traffic repoints atomically.
func (c *Client) PatchServiceSelector(ctx context.Context, key types.NamespacedName, selector map[string]string) error {
	svc, err := c.GetService(ctx, key)
	if err != nil {
		return err
	}
	patch := client.MergeFrom(svc.DeepCopy())
	svc.Spec.Selector = selector
	if err := c.Patch(ctx, svc, patch); err != nil {
		return fmt.Errorf("failed to patch selector on service %s: %w", key, err)
	}
	return nil
}

// PatchServiceAnnotation sets a single annotation on the Service.
func (c *Client) PatchServiceAnnotation(ctx context.Context, key types.NamespacedName, annotation, value string) error {
	svc, err := c.GetService(ctx, key)
	if err != nil {
		return err
	}
	patch := client.MergeFrom(svc.DeepCopy())
	if svc.Annotations == nil {
		svc.Annotations = map[string]string{}
	}
	svc.Annotations[annotation] = value
	if err := c.Patch(ctx, svc, patch); err != nil {
		return fmt.Errorf("failed to annotate service %s: %w", key, err)
	}
	return nil
}

// CountReadyPods returns the ready and total pod counts matching the
// label selector in the given namespace.
func (c *Client) CountReadyPods(ctx context.Context, namespace string, selector map[string]string) (ready, total int, err error) {
	pods := &corev1.PodList{}
	if err := c.List(ctx, pods, client.InNamespace(namespace), client.MatchingLabels(selector)); err != nil {
		return 0, 0, fmt.Errorf("failed to list pods in %s: %w", namespace, err)
	}
	for i := range pods.Items {
		total++
		if isPodReady(&pods.Items[i]) {
			ready++
		}
	}
	return ready, total, nil
}

func isPodReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}
