package heartbeat

import (
	"context"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	rolloutsv1alpha1 "github.com/stagehand-sh/rollouts/api/v1alpha1"
	"github.com/stagehand-sh/rollouts/internal/hooks"
	"github.com/stagehand-sh/rollouts/internal/model"
)

// Config holds configuration for the heartbeat sender
type Config struct {
	Interval          time.Duration
	ClusterID         string
	ControllerVersion string
}

// DefaultConfig returns the default heartbeat configuration
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Minute,
	}
}

// Sender periodically reports the active rollout inventory to the
// control plane
type Sender struct {
	config     Config
	client     client.Client
	publishers []hooks.HeartbeatPublisher
	stopCh     chan struct{}
}

// NewSender creates a new heartbeat sender
func NewSender(
	config Config,
	k8sClient client.Client,
	publishers []hooks.HeartbeatPublisher,
) *Sender {
	return &Sender{
		config:     config,
		client:     k8sClient,
		publishers: publishers,
		stopCh:     make(chan struct{}),
	}
}

// Start starts the heartbeat sender loop
func (s *Sender) Start(ctx context.Context) {
	logger := log.FromContext(ctx).WithName("heartbeat-sender")

	logger.Info("Starting heartbeat sender",
		"interval", s.config.Interval,
		"clusterID", s.config.ClusterID,
		"publishers", len(s.publishers),
	)

	// Send initial heartbeat immediately
	s.sendHeartbeat(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sendHeartbeat(ctx)
		case <-s.stopCh:
			logger.Info("Heartbeat sender stopped")
			return
		case <-ctx.Done():
			logger.Info("Heartbeat sender context cancelled")
			return
		}
	}
}

// Stop stops the heartbeat sender
func (s *Sender) Stop() {
	close(s.stopCh)
}

func (s *Sender) sendHeartbeat(ctx context.Context) {
	logger := log.FromContext(ctx).WithName("heartbeat-sender")

	active, err := s.collectActiveRollouts(ctx)
	if err != nil {
		logger.Error(err, "Failed to collect active rollouts")
	}

	payload := model.NewControllerHeartbeatPayload(
		s.config.ClusterID,
		s.config.ControllerVersion,
		active,
	)

	logger.Info("Sending heartbeat",
		"eventID", payload.EventID,
		"activeRollouts", len(active),
	)

	// Publish to all registered publishers
	for _, publisher := range s.publishers {
		if err := publisher.PublishHeartbeat(ctx, payload); err != nil {
			logger.Error(err, "Failed to publish heartbeat")
		}
	}
}

func (s *Sender) collectActiveRollouts(ctx context.Context) ([]model.ActiveRollout, error) {
	var rolloutList rolloutsv1alpha1.RolloutList
	if err := s.client.List(ctx, &rolloutList); err != nil {
		return nil, err
	}

	active := make([]model.ActiveRollout, 0, len(rolloutList.Items))
	for _, rollout := range rolloutList.Items {
		if rollout.Status.Phase.Terminal() {
			continue
		}
		active = append(active, model.ActiveRollout{
			Name:      rollout.Name,
			Namespace: rollout.Namespace,
			Workload:  rollout.Spec.WorkloadRef.Name,
			Phase:     string(rollout.Status.Phase),
			Weight:    rollout.Status.Weight,
		})
	}

	return active, nil
}
