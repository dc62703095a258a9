package hooks

import (
	"context"

	"github.com/stagehand-sh/rollouts/internal/model"
)

// EventPublisher delivers rollout phase-transition events to an
// external sink (control plane, Pub/Sub, ...).
type EventPublisher interface {
	Publish(ctx context.Context, update model.RolloutUpdate) error
}

// HeartbeatPublisher delivers periodic controller heartbeats.
type HeartbeatPublisher interface {
	PublishHeartbeat(ctx context.Context, payload model.ControllerHeartbeatPayload) error
}
