package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub/v2"
	"github.com/stagehand-sh/rollouts/internal/model"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// PubSubPublisher sends rollout events to Google Cloud Pub/Sub
type PubSubPublisher struct {
	client            *pubsub.Client
	publisher         *pubsub.Publisher
	topicPath         string
	clusterID         string
	environment       string
	controllerVersion string
}

// ParseTopicPath parses a full Pub/Sub topic path and returns projectID and topicID.
// Expected format: projects/<project>/topics/<topic>
func ParseTopicPath(topicPath string) (projectID, topicID string, err error) {
	parts := strings.Split(topicPath, "/")
	if len(parts) != 4 || parts[0] != "projects" || parts[2] != "topics" {
		return "", "", fmt.Errorf("invalid topic path %q: expected format projects/<project>/topics/<topic>", topicPath)
	}
	return parts[1], parts[3], nil
}

// NewPubSubPublisher creates a new Google Cloud Pub/Sub publisher
//
// Authentication is handled via Application Default Credentials (ADC):
//   - Workload Identity (GKE): Auto-detected from metadata server (recommended)
//   - Service Account JSON key: Set GOOGLE_APPLICATION_CREDENTIALS env var
//   - Default credentials: gcloud auth application-default login
func NewPubSubPublisher(ctx context.Context, topicPath, clusterID, environment, controllerVersion string) (*PubSubPublisher, error) {
	projectID, topicID, err := ParseTopicPath(topicPath)
	if err != nil {
		return nil, err
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	// Enable message ordering to guarantee phase transitions for the
	// same workload are delivered in the order they were published.
	// The subscription must also have message ordering enabled.
	publisher := client.Publisher(topicID)
	publisher.EnableMessageOrdering = true

	return &PubSubPublisher{
		client:            client,
		publisher:         publisher,
		topicPath:         topicPath,
		clusterID:         clusterID,
		environment:       environment,
		controllerVersion: controllerVersion,
	}, nil
}

// Publish sends a rollout phase-transition event to Google Cloud Pub/Sub
func (p *PubSubPublisher) Publish(ctx context.Context, update model.RolloutUpdate) error {
	logger := log.FromContext(ctx)

	event := model.NewRolloutEventPayload(update, p.clusterID, p.environment, p.controllerVersion)

	data, err := json.Marshal(event)
	if err != nil {
		logger.Error(err, "Failed to marshal event",
			"eventID", event.EventID,
			"namespace", update.Namespace,
			"rollout", update.RolloutName,
		)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Ordering key ensures phase transitions for the same workload are
	// delivered in order. Format: cluster/namespace/workload_name
	orderingKey := fmt.Sprintf("%s/%s/%s", p.clusterID, update.Namespace, update.Workload)

	logger.Info("Publishing event to Google Pub/Sub",
		"topic", p.topicPath,
		"eventID", event.EventID,
		"orderingKey", orderingKey,
		"rollout", update.RolloutName,
		"phase", update.Phase,
		"weight", update.Weight,
	)

	attributes := map[string]string{
		"cluster_name":  p.clusterID,
		"namespace":     update.Namespace,
		"workload_name": update.Workload,
		"rollout_name":  update.RolloutName,
		"strategy":      update.Strategy,
		"event_type":    "rollout",
	}
	if p.environment != "" {
		attributes["environment"] = p.environment
	}
	if update.Phase != "" {
		attributes["rollout_phase"] = update.Phase
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attributes,
		OrderingKey: orderingKey,
	})

	msgID, err := result.Get(ctx)
	if err != nil {
		logger.Error(err, "Failed to publish event to Pub/Sub",
			"topic", p.topicPath,
			"eventID", event.EventID,
		)
		return fmt.Errorf("failed to publish event to pubsub: %w", err)
	}

	logger.Info("Event successfully published to Google Pub/Sub",
		"topic", p.topicPath,
		"eventID", event.EventID,
		"messageID", msgID,
		"rollout", update.RolloutName,
	)

	return nil
}

// PublishHeartbeat sends a controller heartbeat to Pub/Sub
func (p *PubSubPublisher) PublishHeartbeat(ctx context.Context, payload model.ControllerHeartbeatPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal heartbeat: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data:        data,
		OrderingKey: p.clusterID,
		Attributes: map[string]string{
			"cluster_name": p.clusterID,
			"event_type":   "heartbeat",
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish heartbeat to pubsub: %w", err)
	}
	return nil
}

// Stop stops the publisher and closes the client
func (p *PubSubPublisher) Stop() {
	if p.publisher != nil {
		p.publisher.Stop()
	}
	if p.client != nil {
		_ = p.client.Close()
	}
}
