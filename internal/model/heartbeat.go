package model

import (
	"time"

	"github.com/google/uuid"
)

// ControllerHeartbeatPayload is sent to the control plane to indicate
// the controller is alive and report the active rollout inventory.
type ControllerHeartbeatPayload struct {
	EventID     string           `json:"eventId"`
	OccurredAt  time.Time        `json:"occurredAt"`
	Source      SourceMetadata   `json:"source"`
	MessageType string           `json:"messageType"`
	Inventory   RolloutInventory `json:"inventory"`
}

// RolloutInventory summarizes the rollouts currently in flight.
type RolloutInventory struct {
	Active []ActiveRollout `json:"active,omitempty"`
}

// ActiveRollout is one in-flight rollout in the inventory.
type ActiveRollout struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Workload  string `json:"workload"`
	Phase     string `json:"phase"`
	Weight    int32  `json:"weight"`
}

// NewControllerHeartbeatPayload creates a new heartbeat payload
func NewControllerHeartbeatPayload(clusterID, controllerVersion string, active []ActiveRollout) ControllerHeartbeatPayload {
	return ControllerHeartbeatPayload{
		EventID:    uuid.New().String(),
		OccurredAt: time.Now().UTC(),
		Source: SourceMetadata{
			ClusterID:         clusterID,
			ControllerVersion: controllerVersion,
		},
		MessageType: "HEARTBEAT",
		Inventory: RolloutInventory{
			Active: active,
		},
	}
}
