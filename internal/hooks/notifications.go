package hooks

import (
	"context"

	"github.com/stagehand-sh/rollouts/internal/model"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// EventPublisherQueue drains phase-transition updates off the channel
// the reconciler writes to and fans them out to every publisher, so a
// slow sink never blocks a rollout's control loop.
type EventPublisherQueue struct {
	UpdateChan <-chan model.RolloutUpdate
	publishers []EventPublisher
}

func NewEventPublisherQueue(updateChan <-chan model.RolloutUpdate, publishers []EventPublisher) *EventPublisherQueue {
	return &EventPublisherQueue{
		UpdateChan: updateChan,
		publishers: publishers,
	}
}

func (eq *EventPublisherQueue) Loop() {
	ctx := context.Background()
	logger := log.FromContext(ctx)

	logger.Info("Event publisher queue started", "publishers", len(eq.publishers))

	for update := range eq.UpdateChan {
		logger.Info("Received rollout update",
			"namespace", update.Namespace,
			"rollout", update.RolloutName,
			"workload", update.Workload,
			"phase", update.Phase,
			"weight", update.Weight,
		)

		for _, publisher := range eq.publishers {
			err := publisher.Publish(ctx, update)
			if err != nil {
				logger.Error(err, "failed to publish event",
					"namespace", update.Namespace,
					"rollout", update.RolloutName,
				)
			}
		}
	}
}
