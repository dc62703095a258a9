package rollback

import (
	"context"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/log"

	rolloutsv1alpha1 "github.com/stagehand-sh/rollouts/api/v1alpha1"
	"github.com/stagehand-sh/rollouts/internal/kube"
	"github.com/stagehand-sh/rollouts/internal/traffic"
)

// defaultBackoff bounds the retry budget for one Rollback invocation.
// If the cluster API stays unreachable past it, the rollout remains in
// Aborting and the next tick tries again.
var defaultBackoff = wait.Backoff{
	Steps:    5,
	Duration: 200 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
}

// Engine reverts a rollout to its last known-good revision: traffic is
// redirected to stable first, and only then is the candidate torn down,
// so draining candidate pods never serve errors.
type Engine struct {
	splitter *traffic.Splitter
	kube     *kube.Client
	backoff  wait.Backoff
}

func NewEngine(splitter *traffic.Splitter, c *kube.Client) *Engine {
	return &Engine{splitter: splitter, kube: c, backoff: defaultBackoff}
}

// Rollback restores the stable revision to 100% weight and scales the
// candidate to zero, in that order. Cluster calls are retried with
// bounded exponential backoff; on exhaustion the error is returned so
// the caller can try again on its next tick.
func (e *Engine) Rollback(ctx context.Context, rollout *rolloutsv1alpha1.Rollout) error {
	logger := log.FromContext(ctx)
	logger.Info("Rolling back",
		"rollout", rollout.Name,
		"workload", rollout.Spec.WorkloadRef.Name,
		"stableRevision", rollout.Spec.StableRevision.Image,
	)

	// Step 1: all traffic back to stable.
	err := retry.OnError(e.backoff, anyError, func() error {
		return e.splitter.SetWeight(ctx, rollout, 0)
	})
	if err != nil {
		return err
	}

	// Step 2: tear down the candidate. RollingUpdate has no separate
	// candidate Deployment; restoring the stable image above was the
	// whole revert.
	if rollout.Spec.Strategy == rolloutsv1alpha1.StrategyRollingUpdate {
		return nil
	}
	canaryKey := e.splitter.CanaryKey(rollout)
	err = retry.OnError(e.backoff, anyError, func() error {
		return e.kube.ScaleDeployment(ctx, canaryKey, 0)
	})
	if err != nil {
		return err
	}

	logger.Info("Rollback complete", "rollout", rollout.Name)
	return nil
}

func anyError(error) bool { return true }
