package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	rolloutsv1alpha1 "github.com/stagehand-sh/rollouts/api/v1alpha1"
	"github.com/stagehand-sh/rollouts/internal/filter"
	"github.com/stagehand-sh/rollouts/internal/health"
	"github.com/stagehand-sh/rollouts/internal/kube"
	"github.com/stagehand-sh/rollouts/internal/model"
	"github.com/stagehand-sh/rollouts/internal/rollback"
	"github.com/stagehand-sh/rollouts/internal/store"
	"github.com/stagehand-sh/rollouts/internal/traffic"
)

// RolloutReconciler drives every active Rollout through its state
// machine. One reconcile is one tick: it evaluates health for the
// current checkpoint, advances, holds, or aborts, and persists the
// outcome before any traffic is moved. Ticks for a terminal Rollout
// are no-ops.
type RolloutReconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Recorder record.EventRecorder

	Store    *store.Store
	Splitter *traffic.Splitter
	Rollback *rollback.Engine
	Health   health.Provider
	Kube     *kube.Client
	Filter   *filter.RolloutFilter

	publisherChan chan<- model.RolloutUpdate

	leases  *workloadLeases
	windows sync.Map // rollout namespace/name -> *health.Window
}

func NewRolloutReconciler(
	c client.Client,
	scheme *runtime.Scheme,
	recorder record.EventRecorder,
	healthProvider health.Provider,
	rolloutFilter *filter.RolloutFilter,
	publisherChan chan<- model.RolloutUpdate,
) *RolloutReconciler {
	registerMetrics()

	kubeClient := kube.NewClient(c)
	splitter := traffic.NewSplitter(kubeClient)
	return &RolloutReconciler{
		Client:        c,
		Scheme:        scheme,
		Recorder:      recorder,
		Store:         store.NewStore(c),
		Splitter:      splitter,
		Rollback:      rollback.NewEngine(splitter, kubeClient),
		Health:        healthProvider,
		Kube:          kubeClient,
		Filter:        rolloutFilter,
		publisherChan: publisherChan,
		leases:        newWorkloadLeases(),
	}
}

// +kubebuilder:rbac:groups=rollouts.stagehand.sh,resources=rollouts,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=rollouts.stagehand.sh,resources=rollouts/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=apps,resources=deployments,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups="",resources=services,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups="",resources=pods,verbs=get;list;watch

func (r *RolloutReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := ctrl.LoggerFrom(ctx)

	rollout := &rolloutsv1alpha1.Rollout{}
	if err := r.Get(ctx, req.NamespacedName, rollout); err != nil {
		if apierrors.IsNotFound(err) {
			// Deleted mid-flight: release its health window too.
			r.windows.Delete(req.NamespacedName.String())
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	// Terminal rollouts are never mutated again; re-ticking one is a
	// no-op and emits nothing.
	if rollout.Status.Phase.Terminal() {
		r.windows.Delete(req.NamespacedName.String())
		return ctrl.Result{}, nil
	}

	// Per-workload lease for the duration of the tick.
	release := r.leases.acquire(rollout.Namespace + "/" + rollout.Spec.WorkloadRef.Name)
	defer release()

	log.Info("Reconciling Rollout",
		"workload", rollout.Spec.WorkloadRef.Name,
		"strategy", rollout.Spec.Strategy,
		"phase", rollout.Status.Phase,
		"weight", rollout.Status.Weight,
	)

	policy := health.PolicyFrom(rollout.Spec.Analysis)

	switch rollout.Status.Phase {
	case "":
		return r.reconcileNew(ctx, rollout)
	case rolloutsv1alpha1.PhaseInitializing:
		return r.reconcileInitializing(ctx, rollout)
	case rolloutsv1alpha1.PhaseStepping:
		return r.reconcileStepping(ctx, rollout, policy)
	case rolloutsv1alpha1.PhaseAborting:
		return r.reconcileAborting(ctx, rollout)
	default:
		return ctrl.Result{}, fmt.Errorf("rollout %s in unknown phase %q", rollout.Name, rollout.Status.Phase)
	}
}

// reconcileNew admits a freshly created Rollout: configuration errors
// and conflicts stop it here, before any state is touched.
func (r *RolloutReconciler) reconcileNew(ctx context.Context, rollout *rolloutsv1alpha1.Rollout) (ctrl.Result, error) {
	if r.Filter != nil && !r.Filter.Allowed(rollout.Namespace, rollout.Labels) {
		return r.abortEarly(ctx, rollout, "namespace or labels excluded by controller policy")
	}

	if err := rollout.Spec.Validate(); err != nil {
		return r.abortEarly(ctx, rollout, fmt.Sprintf("invalid spec: %v", err))
	}
	if rollout.Spec.Strategy == rolloutsv1alpha1.StrategyRollingUpdate {
		if _, _, err := traffic.RollingBounds(rollout.Spec.RollingUpdate); err != nil {
			return r.abortEarly(ctx, rollout, fmt.Sprintf("invalid spec: %v", err))
		}
	}

	// Exactly one Rollout may be active per workload. Load returns the
	// oldest active record, so any other rollout coming back here means
	// the workload is already owned and the newcomer is rejected
	// without mutating any state.
	active, err := r.Store.Load(ctx, rollout.Namespace, rollout.Spec.WorkloadRef.Name)
	if err != nil {
		return ctrl.Result{}, err
	}
	if active != nil && active.UID != rollout.UID {
		return r.abortEarly(ctx, rollout, fmt.Sprintf("rollout %s is already active for workload %s", active.Name, rollout.Spec.WorkloadRef.Name))
	}

	rollout.Status.Weight = 0
	rollout.Status.StableWeight = 100
	if err := r.transition(ctx, rollout, rolloutsv1alpha1.PhaseInitializing, "validating candidate revision"); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{Requeue: true}, nil
}

// reconcileInitializing validates that the candidate revision is
// deployable before the first checkpoint is applied.
func (r *RolloutReconciler) reconcileInitializing(ctx context.Context, rollout *rolloutsv1alpha1.Rollout) (ctrl.Result, error) {
	if rollout.Spec.Abort {
		// Nothing has been applied yet, so there is nothing to roll back.
		return r.abortEarly(ctx, rollout, "abort requested before any traffic was shifted")
	}

	if _, err := r.Kube.GetDeployment(ctx, r.Splitter.StableKey(rollout)); err != nil {
		if apierrors.IsNotFound(err) {
			return r.abortEarly(ctx, rollout, fmt.Sprintf("stable workload %s not found", rollout.Spec.WorkloadRef.Name))
		}
		return ctrl.Result{}, err
	}

	if rollout.Spec.Strategy != rolloutsv1alpha1.StrategyRollingUpdate {
		canary, err := r.Kube.GetDeployment(ctx, r.Splitter.CanaryKey(rollout))
		if err != nil {
			if apierrors.IsNotFound(err) {
				return r.abortEarly(ctx, rollout, fmt.Sprintf("candidate workload %s not found", traffic.CanaryName(rollout.Spec.WorkloadRef.Name)))
			}
			return ctrl.Result{}, err
		}
		if !candidateMatchesRevision(canary.Spec.Template.Spec.Containers, rollout.Spec.CandidateRevision.Image) {
			return r.abortEarly(ctx, rollout, fmt.Sprintf("candidate workload does not run revision %s", rollout.Spec.CandidateRevision.Image))
		}
	}

	// Write-ahead: the Stepping record is durable before any weight is
	// applied, so a crash here resumes at the first checkpoint.
	rollout.Status.StepIndex = 0
	rollout.Status.BakeStartedAt = nil
	rollout.Status.Extensions = 0
	if err := r.transition(ctx, rollout, rolloutsv1alpha1.PhaseStepping, "candidate validated"); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{Requeue: true}, nil
}

// reconcileStepping applies the current checkpoint's weight and bakes
// at it, sampling health every tick.
func (r *RolloutReconciler) reconcileStepping(ctx context.Context, rollout *rolloutsv1alpha1.Rollout, policy health.Policy) (ctrl.Result, error) {
	log := ctrl.LoggerFrom(ctx)

	if rollout.Spec.Abort {
		// Safe point: no SetWeight is in flight between ticks.
		if err := r.transition(ctx, rollout, rolloutsv1alpha1.PhaseAborting, "abort requested"); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil
	}

	steps := rollout.Spec.EffectiveSteps()
	idx := int(rollout.Status.StepIndex)
	if idx >= len(steps) {
		idx = len(steps) - 1
	}
	target := steps[idx]

	// Apply the checkpoint's weight if it is not in effect yet. The
	// phase and step index are already durable, so a crash between the
	// weight change and the record below replays the same SetWeight.
	if rollout.Status.Weight != target {
		// BlueGreen routes by pod label, so the cutover waits until the
		// candidate environment's pods are ready to take the traffic.
		if rollout.Spec.Strategy == rolloutsv1alpha1.StrategyBlueGreen && target == 100 {
			ready, total, err := r.Kube.CountReadyPods(ctx, rollout.Namespace, map[string]string{
				"app":              rollout.Spec.WorkloadRef.Name,
				traffic.TrackLabel: traffic.TrackCanary,
			})
			if err != nil {
				return ctrl.Result{}, err
			}
			if total == 0 || ready < total {
				log.Info("Waiting for candidate pods before cutover", "ready", ready, "total", total)
				return ctrl.Result{RequeueAfter: policy.Interval}, nil
			}
		}
		if err := r.Splitter.SetWeight(ctx, rollout, target); err != nil {
			return ctrl.Result{}, err
		}
		rollout.Status.BakeStartedAt = nowPtr()
		if err := r.Store.RecordWeight(ctx, rollout, target); err != nil {
			return ctrl.Result{}, err
		}
		r.window(rollout, policy).Reset()
		recordWeightMetric(rollout.Namespace, rollout.Name, rollout.Spec.WorkloadRef.Name, target)
		r.Recorder.Eventf(rollout, corev1.EventTypeNormal, "WeightApplied", "candidate weight set to %d", target)
		log.Info("Checkpoint weight applied", "step", idx, "weight", target)
		return ctrl.Result{RequeueAfter: policy.Interval}, nil
	}

	// The orchestrator's own verdict on the candidate workload comes
	// before traffic metrics: a Deployment that cannot converge is a
	// breach no matter what the request counters say.
	candidateKey := r.Splitter.CanaryKey(rollout)
	if rollout.Spec.Strategy == rolloutsv1alpha1.StrategyRollingUpdate {
		candidateKey = r.Splitter.StableKey(rollout)
	}
	candidateDeploy, err := r.Kube.GetDeployment(ctx, candidateKey)
	if err != nil {
		return ctrl.Result{}, err
	}
	if kube.HasFailed(candidateDeploy) {
		r.Recorder.Event(rollout, corev1.EventTypeWarning, "CandidateFailed", "candidate deployment reported a failure condition")
		if err := r.transition(ctx, rollout, rolloutsv1alpha1.PhaseAborting, "candidate deployment failed to converge"); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil
	}
	if kube.IsRollingOut(candidateDeploy) {
		// Pods are still being replaced; their metrics would mix
		// revisions, so no verdict is taken this tick.
		return ctrl.Result{RequeueAfter: policy.Interval}, nil
	}

	window := r.window(rollout, policy)
	r.observeHealth(ctx, rollout, policy, window)

	if window.Decide() == health.DecisionBreach {
		r.Recorder.Eventf(rollout, corev1.EventTypeWarning, "PolicyViolation", "health breach at weight %d", target)
		if err := r.transition(ctx, rollout, rolloutsv1alpha1.PhaseAborting, fmt.Sprintf("health breach at weight %d", target)); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil
	}

	if rollout.Status.BakeStartedAt == nil || time.Since(rollout.Status.BakeStartedAt.Time) < policy.BakeTime {
		return ctrl.Result{RequeueAfter: policy.Interval}, nil
	}

	switch window.Decide() {
	case health.DecisionHealthy:
		if idx == len(steps)-1 {
			r.windows.Delete(windowKey(rollout))
			if err := r.transition(ctx, rollout, rolloutsv1alpha1.PhaseSucceeded, "candidate promoted at full weight"); err != nil {
				return ctrl.Result{}, err
			}
			return ctrl.Result{}, nil
		}
		rollout.Status.StepIndex = int32(idx + 1)
		rollout.Status.BakeStartedAt = nil
		rollout.Status.Extensions = 0
		if err := r.Store.Save(ctx, rollout); err != nil {
			return ctrl.Result{}, err
		}
		log.Info("Checkpoint passed", "step", idx, "nextWeight", steps[idx+1])
		return ctrl.Result{Requeue: true}, nil

	default:
		// Inconclusive at the end of the bake: extend a bounded number
		// of times, then fail closed.
		rollout.Status.Extensions++
		if rollout.Status.Extensions > policy.MaxExtensions {
			r.Recorder.Event(rollout, corev1.EventTypeWarning, "InconclusiveHealth", "no conclusive health signal, failing closed")
			if err := r.transition(ctx, rollout, rolloutsv1alpha1.PhaseAborting, "no conclusive health signal within retry budget"); err != nil {
				return ctrl.Result{}, err
			}
			return ctrl.Result{Requeue: true}, nil
		}
		rollout.Status.BakeStartedAt = nowPtr()
		if err := r.Store.Save(ctx, rollout); err != nil {
			return ctrl.Result{}, err
		}
		log.Info("Bake extended on inconclusive signal", "step", idx, "extensions", rollout.Status.Extensions)
		return ctrl.Result{RequeueAfter: policy.Interval}, nil
	}
}

// reconcileAborting keeps invoking the rollback engine until it
// succeeds; while the cluster API is unreachable the rollout stays in
// Aborting and is retried on the next tick.
func (r *RolloutReconciler) reconcileAborting(ctx context.Context, rollout *rolloutsv1alpha1.Rollout) (ctrl.Result, error) {
	if err := r.Rollback.Rollback(ctx, rollout); err != nil {
		return ctrl.Result{}, err
	}

	if err := r.Store.RecordWeight(ctx, rollout, 0); err != nil {
		return ctrl.Result{}, err
	}
	r.windows.Delete(windowKey(rollout))
	recordWeightMetric(rollout.Namespace, rollout.Name, rollout.Spec.WorkloadRef.Name, 0)
	if err := r.transition(ctx, rollout, rolloutsv1alpha1.PhaseRolledBack, "stable revision restored"); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{}, nil
}

// observeHealth samples both tracks and records the verdict. A failing
// metrics backend yields an inconclusive verdict, never a pass: with no
// signal the rollout eventually fails closed instead of advancing.
func (r *RolloutReconciler) observeHealth(ctx context.Context, rollout *rolloutsv1alpha1.Rollout, policy health.Policy, window *health.Window) {
	log := ctrl.LoggerFrom(ctx)
	target := health.Target{Namespace: rollout.Namespace, Name: rollout.Spec.WorkloadRef.Name}

	// RollingUpdate replaces pods inside a single Deployment, so the
	// candidate is judged on the workload as a whole against absolute
	// thresholds.
	candidateTrack := health.TrackCanary
	sampleStable := true
	if rollout.Spec.Strategy == rolloutsv1alpha1.StrategyRollingUpdate {
		candidateTrack = health.TrackStable
		sampleStable = false
	}

	candidate, err := r.Health.Sample(ctx, target, candidateTrack, policy.Interval)
	if err != nil {
		log.Error(err, "Failed to sample candidate health")
		window.Observe(health.VerdictInconclusive)
		return
	}

	var stable health.Sample
	if sampleStable {
		stable, err = r.Health.Sample(ctx, target, health.TrackStable, policy.Interval)
		if err != nil {
			log.Error(err, "Failed to sample stable health")
			window.Observe(health.VerdictInconclusive)
			return
		}
	}

	window.Observe(policy.Thresholds.Compare(candidate, stable))
}

// abortEarly terminates a rollout that never shifted traffic. No
// rollback is needed; the record is kept for audit.
func (r *RolloutReconciler) abortEarly(ctx context.Context, rollout *rolloutsv1alpha1.Rollout, reason string) (ctrl.Result, error) {
	r.Recorder.Event(rollout, corev1.EventTypeWarning, "RolloutRejected", reason)
	if err := r.transition(ctx, rollout, rolloutsv1alpha1.PhaseAborted, reason); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{}, nil
}

// transition persists the phase change and emits it to every sink:
// status history, Kubernetes events, metrics, and the publisher queue.
func (r *RolloutReconciler) transition(ctx context.Context, rollout *rolloutsv1alpha1.Rollout, phase rolloutsv1alpha1.RolloutPhase, message string) error {
	if err := r.Store.Transition(ctx, rollout, phase, message); err != nil {
		return err
	}

	eventType := corev1.EventTypeNormal
	if phase == rolloutsv1alpha1.PhaseAborting || phase == rolloutsv1alpha1.PhaseRolledBack || phase == rolloutsv1alpha1.PhaseAborted {
		eventType = corev1.EventTypeWarning
	}
	r.Recorder.Event(rollout, eventType, string(phase), message)

	recordPhaseMetric(rollout.Namespace, rollout.Name, rollout.Spec.WorkloadRef.Name, string(rollout.Spec.Strategy), string(phase))

	if r.publisherChan != nil {
		r.publisherChan <- model.RolloutUpdate{
			RolloutName:       rollout.Name,
			Namespace:         rollout.Namespace,
			Workload:          rollout.Spec.WorkloadRef.Name,
			Strategy:          string(rollout.Spec.Strategy),
			Phase:             string(phase),
			Weight:            rollout.Status.Weight,
			StableWeight:      rollout.Status.StableWeight,
			StableRevision:    rollout.Spec.StableRevision.Image,
			CandidateRevision: rollout.Spec.CandidateRevision.Image,
			Message:           message,
			Labels:            rollout.Labels,
		}
	}
	return nil
}

// window returns the rollout's bake window, creating it sized to the
// policy on first use.
func (r *RolloutReconciler) window(rollout *rolloutsv1alpha1.Rollout, policy health.Policy) *health.Window {
	w, _ := r.windows.LoadOrStore(windowKey(rollout), health.NewWindow(policy.WindowCapacity()))
	return w.(*health.Window)
}

// windowKey matches req.NamespacedName.String(), so window entries can
// be cleared even after the object itself is gone.
func windowKey(rollout *rolloutsv1alpha1.Rollout) string {
	return rollout.Namespace + "/" + rollout.Name
}

func nowPtr() *metav1.Time {
	now := metav1.Now()
	return &now
}

func candidateMatchesRevision(containers []corev1.Container, image string) bool {
	for _, c := range containers {
		if c.Image == image {
			return true
		}
	}
	return false
}

// SetupWithManager sets up the controller with the Manager.
func (r *RolloutReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&rolloutsv1alpha1.Rollout{}).
		WithEventFilter(RolloutChangedPredicate()).
		Complete(r)
}
