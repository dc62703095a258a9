package controlplane

import (
	"context"
	"fmt"
	"time"

	"github.com/stagehand-sh/rollouts/internal/model"
	"resty.dev/v3"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// HTTPPublisher sends rollout events to the delivery control plane via HTTP
type HTTPPublisher struct {
	client            *resty.Client
	endpoint          string
	clusterID         string
	environment       string
	controllerVersion string
}

// NewHTTPPublisher creates a new HTTP publisher for the control plane
func NewHTTPPublisher(endpoint, clusterID, environment, controllerVersion string) *HTTPPublisher {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second)

	return &HTTPPublisher{
		client:            client,
		endpoint:          endpoint,
		clusterID:         clusterID,
		environment:       environment,
		controllerVersion: controllerVersion,
	}
}

// Publish sends a rollout phase-transition event to the control plane
func (p *HTTPPublisher) Publish(ctx context.Context, update model.RolloutUpdate) error {
	logger := log.FromContext(ctx)

	event := model.NewRolloutEventPayload(update, p.clusterID, p.environment, p.controllerVersion)

	logger.Info("Publishing event to control plane",
		"endpoint", p.endpoint,
		"eventID", event.EventID,
		"namespace", event.Workload.Namespace,
		"workload", event.Workload.Name,
		"rollout", event.Rollout,
		"phase", event.Phase,
	)

	var errorResponse map[string]interface{}
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(event).
		SetError(&errorResponse).
		Post(p.endpoint)

	if err != nil {
		logger.Error(err, "Failed to send event to control plane",
			"endpoint", p.endpoint,
			"eventID", event.EventID,
		)
		return fmt.Errorf("failed to send event to control plane: %w", err)
	}

	if !resp.IsSuccess() {
		logger.Error(nil, "Control plane returned error",
			"statusCode", resp.StatusCode(),
			"status", resp.Status(),
			"error", errorResponse,
			"body", resp.String(),
			"endpoint", p.endpoint,
			"eventID", event.EventID,
		)
		return fmt.Errorf("control plane returned error status %d: %s", resp.StatusCode(), resp.String())
	}

	logger.Info("Event successfully published to control plane",
		"endpoint", p.endpoint,
		"eventID", event.EventID,
		"statusCode", resp.StatusCode(),
	)

	return nil
}

// PublishHeartbeat sends a controller heartbeat to the control plane
func (p *HTTPPublisher) PublishHeartbeat(ctx context.Context, payload model.ControllerHeartbeatPayload) error {
	logger := log.FromContext(ctx)

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(p.endpoint)

	if err != nil {
		return fmt.Errorf("failed to send heartbeat to control plane: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("control plane returned error status %d: %s", resp.StatusCode(), resp.String())
	}

	logger.Info("Heartbeat published to control plane",
		"eventID", payload.EventID,
		"activeRollouts", len(payload.Inventory.Active),
	)
	return nil
}
