package store

import (
	"context"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	rolloutsv1alpha1 "github.com/stagehand-sh/rollouts/api/v1alpha1"
)

func newScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		t.Fatalf("failed to add client-go scheme: %v", err)
	}
	if err := rolloutsv1alpha1.AddToScheme(scheme); err != nil {
		t.Fatalf("failed to add rollouts scheme: %v", err)
	}
	return scheme
}

func newClient(t *testing.T, objs ...client.Object) client.Client {
	t.Helper()
	return fake.NewClientBuilder().
		WithScheme(newScheme(t)).
		WithObjects(objs...).
		WithStatusSubresource(&rolloutsv1alpha1.Rollout{}).
		Build()
}

func testRollout(name, workload string, phase rolloutsv1alpha1.RolloutPhase) *rolloutsv1alpha1.Rollout {
	return &rolloutsv1alpha1.Rollout{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "prod"},
		Spec: rolloutsv1alpha1.RolloutSpec{
			WorkloadRef:       rolloutsv1alpha1.WorkloadRef{Name: workload},
			Strategy:          rolloutsv1alpha1.StrategyCanary,
			StableRevision:    rolloutsv1alpha1.Revision{Image: "app:v1"},
			CandidateRevision: rolloutsv1alpha1.Revision{Image: "app:v2"},
		},
		Status: rolloutsv1alpha1.RolloutStatus{Phase: phase},
	}
}

func TestTransitionAppendsHistory(t *testing.T) {
	rollout := testRollout("checkout-v2", "checkout", "")
	c := newClient(t, rollout)
	s := NewStore(c)
	ctx := context.Background()

	if err := s.Transition(ctx, rollout, rolloutsv1alpha1.PhaseInitializing, "validating"); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if err := s.Transition(ctx, rollout, rolloutsv1alpha1.PhaseStepping, "first checkpoint"); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}

	persisted := &rolloutsv1alpha1.Rollout{}
	if err := c.Get(ctx, types.NamespacedName{Namespace: "prod", Name: "checkout-v2"}, persisted); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if persisted.Status.Phase != rolloutsv1alpha1.PhaseStepping {
		t.Errorf("Phase = %s, want %s", persisted.Status.Phase, rolloutsv1alpha1.PhaseStepping)
	}
	if persisted.Status.Message != "first checkpoint" {
		t.Errorf("Message = %q, want %q", persisted.Status.Message, "first checkpoint")
	}
	if persisted.Status.LastTransitionTime == nil {
		t.Error("LastTransitionTime not set")
	}
	if len(persisted.Status.History) != 2 {
		t.Fatalf("History length = %d, want 2", len(persisted.Status.History))
	}
	if persisted.Status.History[0].Phase != rolloutsv1alpha1.PhaseInitializing {
		t.Errorf("History[0].Phase = %s, want %s", persisted.Status.History[0].Phase, rolloutsv1alpha1.PhaseInitializing)
	}
	if persisted.Status.History[1].Phase != rolloutsv1alpha1.PhaseStepping {
		t.Errorf("History[1].Phase = %s, want %s", persisted.Status.History[1].Phase, rolloutsv1alpha1.PhaseStepping)
	}
}

func TestTransitionRejectsTerminal(t *testing.T) {
	for _, phase := range []rolloutsv1alpha1.RolloutPhase{
		rolloutsv1alpha1.PhaseSucceeded,
		rolloutsv1alpha1.PhaseRolledBack,
		rolloutsv1alpha1.PhaseAborted,
	} {
		rollout := testRollout("checkout-v2", "checkout", phase)
		s := NewStore(newClient(t, rollout))

		if err := s.Transition(context.Background(), rollout, rolloutsv1alpha1.PhaseStepping, "resurrect"); err == nil {
			t.Errorf("Transition() from %s should fail", phase)
		}
		if len(rollout.Status.History) != 0 {
			t.Errorf("Transition() from %s mutated history", phase)
		}
	}
}

func TestRecordWeight(t *testing.T) {
	rollout := testRollout("checkout-v2", "checkout", rolloutsv1alpha1.PhaseStepping)
	c := newClient(t, rollout)
	s := NewStore(c)
	ctx := context.Background()

	if err := s.RecordWeight(ctx, rollout, 30); err != nil {
		t.Fatalf("RecordWeight() error = %v", err)
	}

	persisted := &rolloutsv1alpha1.Rollout{}
	if err := c.Get(ctx, types.NamespacedName{Namespace: "prod", Name: "checkout-v2"}, persisted); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if persisted.Status.Weight != 30 {
		t.Errorf("Weight = %d, want 30", persisted.Status.Weight)
	}
	if persisted.Status.StableWeight != 70 {
		t.Errorf("StableWeight = %d, want 70", persisted.Status.StableWeight)
	}
	if persisted.Status.Weight+persisted.Status.StableWeight != 100 {
		t.Error("weights do not sum to 100")
	}
}

func TestLoadReturnsActiveRollout(t *testing.T) {
	active := testRollout("checkout-v3", "checkout", rolloutsv1alpha1.PhaseStepping)
	finished := testRollout("checkout-v2", "checkout", rolloutsv1alpha1.PhaseSucceeded)
	other := testRollout("billing-v5", "billing", rolloutsv1alpha1.PhaseStepping)
	s := NewStore(newClient(t, active, finished, other))

	got, err := s.Load(context.Background(), "prod", "checkout")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil || got.Name != "checkout-v3" {
		t.Errorf("Load() = %v, want checkout-v3", got)
	}
}

func TestLoadReturnsOldestActiveRollout(t *testing.T) {
	now := metav1.Now()

	// The newer rollout's name sorts first; age decides, not list order.
	newer := testRollout("aa-checkout-v3", "checkout", rolloutsv1alpha1.RolloutPhase(""))
	newer.UID = "uid-new"
	newer.CreationTimestamp = now

	older := testRollout("zz-checkout-v2", "checkout", rolloutsv1alpha1.PhaseStepping)
	older.UID = "uid-old"
	older.CreationTimestamp = metav1.NewTime(now.Add(-time.Hour))

	s := NewStore(newClient(t, newer, older))

	got, err := s.Load(context.Background(), "prod", "checkout")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil || got.Name != "zz-checkout-v2" {
		t.Errorf("Load() = %v, want zz-checkout-v2", got)
	}
}

func TestLoadBreaksCreationTieByUID(t *testing.T) {
	now := metav1.Now()

	a := testRollout("checkout-v3", "checkout", rolloutsv1alpha1.RolloutPhase(""))
	a.UID = "uid-b"
	a.CreationTimestamp = now

	b := testRollout("checkout-v4", "checkout", rolloutsv1alpha1.RolloutPhase(""))
	b.UID = "uid-a"
	b.CreationTimestamp = now

	s := NewStore(newClient(t, a, b))

	got, err := s.Load(context.Background(), "prod", "checkout")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil || got.UID != "uid-a" {
		t.Errorf("Load() UID = %v, want uid-a", got)
	}
}

func TestLoadIgnoresTerminalRollouts(t *testing.T) {
	finished := testRollout("checkout-v2", "checkout", rolloutsv1alpha1.PhaseRolledBack)
	s := NewStore(newClient(t, finished))

	got, err := s.Load(context.Background(), "prod", "checkout")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != nil {
		t.Errorf("Load() = %v, want nil", got)
	}
}
