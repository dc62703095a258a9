package traffic

import (
	"context"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/intstr"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	rolloutsv1alpha1 "github.com/stagehand-sh/rollouts/api/v1alpha1"
	"github.com/stagehand-sh/rollouts/internal/kube"
)

func newScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	Expect(clientgoscheme.AddToScheme(scheme)).To(Succeed())
	Expect(rolloutsv1alpha1.AddToScheme(scheme)).To(Succeed())
	return scheme
}

func deployment(name string, replicas int32) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "prod"},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{Name: "app", Image: "registry.example.com/checkout:v1"}},
				},
			},
		},
	}
}

func service(name string) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "prod"},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{"app": "checkout"},
		},
	}
}

func rolloutFor(strategy rolloutsv1alpha1.Strategy) *rolloutsv1alpha1.Rollout {
	return &rolloutsv1alpha1.Rollout{
		ObjectMeta: metav1.ObjectMeta{Name: "checkout-v2", Namespace: "prod"},
		Spec: rolloutsv1alpha1.RolloutSpec{
			WorkloadRef:       rolloutsv1alpha1.WorkloadRef{Name: "checkout"},
			Strategy:          strategy,
			StableRevision:    rolloutsv1alpha1.Revision{Image: "registry.example.com/checkout:v1"},
			CandidateRevision: rolloutsv1alpha1.Revision{Image: "registry.example.com/checkout:v2"},
		},
	}
}

var _ = Describe("Splitter", func() {
	var (
		ctx      context.Context
		c        client.Client
		splitter *Splitter
	)

	BeforeEach(func() {
		ctx = context.Background()
	})

	newSplitter := func(objs ...client.Object) {
		c = fake.NewClientBuilder().WithScheme(newScheme()).WithObjects(objs...).Build()
		splitter = NewSplitter(kube.NewClient(c))
	}

	Describe("weight range", func() {
		It("rejects weights outside [0,100]", func() {
			newSplitter()
			rollout := rolloutFor(rolloutsv1alpha1.StrategyCanary)
			Expect(splitter.SetWeight(ctx, rollout, -1)).NotTo(Succeed())
			Expect(splitter.SetWeight(ctx, rollout, 101)).NotTo(Succeed())
		})
	})

	Describe("Canary with replica ratio", func() {
		It("divides the replica pool to match the weight", func() {
			newSplitter(deployment("checkout", 10), deployment("checkout-canary", 0))
			rollout := rolloutFor(rolloutsv1alpha1.StrategyCanary)

			Expect(splitter.SetWeight(ctx, rollout, 20)).To(Succeed())

			stable := &appsv1.Deployment{}
			canary := &appsv1.Deployment{}
			Expect(c.Get(ctx, types.NamespacedName{Namespace: "prod", Name: "checkout"}, stable)).To(Succeed())
			Expect(c.Get(ctx, types.NamespacedName{Namespace: "prod", Name: "checkout-canary"}, canary)).To(Succeed())
			Expect(*canary.Spec.Replicas).To(Equal(int32(2)))
			Expect(*stable.Spec.Replicas).To(Equal(int32(8)))
			// The pool size is preserved across the change.
			Expect(*stable.Spec.Replicas + *canary.Spec.Replicas).To(Equal(int32(10)))
		})

		It("hands the whole pool to the candidate at weight 100", func() {
			newSplitter(deployment("checkout", 5), deployment("checkout-canary", 5))
			rollout := rolloutFor(rolloutsv1alpha1.StrategyCanary)

			Expect(splitter.SetWeight(ctx, rollout, 100)).To(Succeed())

			stable := &appsv1.Deployment{}
			canary := &appsv1.Deployment{}
			Expect(c.Get(ctx, types.NamespacedName{Namespace: "prod", Name: "checkout"}, stable)).To(Succeed())
			Expect(c.Get(ctx, types.NamespacedName{Namespace: "prod", Name: "checkout-canary"}, canary)).To(Succeed())
			Expect(*canary.Spec.Replicas).To(Equal(int32(10)))
			Expect(*stable.Spec.Replicas).To(Equal(int32(0)))
		})

		It("fails when the candidate Deployment is missing", func() {
			newSplitter(deployment("checkout", 10))
			rollout := rolloutFor(rolloutsv1alpha1.StrategyCanary)
			Expect(splitter.SetWeight(ctx, rollout, 20)).NotTo(Succeed())
		})
	})

	Describe("Canary with weighted routing", func() {
		It("writes the exact split into the backend-weights annotation", func() {
			newSplitter(service("checkout"))
			rollout := rolloutFor(rolloutsv1alpha1.StrategyCanary)
			rollout.Spec.TrafficRouting = &rolloutsv1alpha1.TrafficRoutingSpec{ServiceName: "checkout", Weighted: true}

			Expect(splitter.SetWeight(ctx, rollout, 30)).To(Succeed())

			svc := &corev1.Service{}
			Expect(c.Get(ctx, types.NamespacedName{Namespace: "prod", Name: "checkout"}, svc)).To(Succeed())

			var weights map[string]int32
			Expect(json.Unmarshal([]byte(svc.Annotations[BackendWeightsAnnotation]), &weights)).To(Succeed())
			Expect(weights[TrackStable]).To(Equal(int32(70)))
			Expect(weights[TrackCanary]).To(Equal(int32(30)))
			Expect(weights[TrackStable] + weights[TrackCanary]).To(Equal(int32(100)))
		})

		It("fails without a service name", func() {
			newSplitter()
			rollout := rolloutFor(rolloutsv1alpha1.StrategyCanary)
			rollout.Spec.TrafficRouting = &rolloutsv1alpha1.TrafficRoutingSpec{Weighted: true}
			Expect(splitter.SetWeight(ctx, rollout, 30)).NotTo(Succeed())
		})
	})

	Describe("BlueGreen", func() {
		It("rejects intermediate weights", func() {
			newSplitter(service("checkout"))
			rollout := rolloutFor(rolloutsv1alpha1.StrategyBlueGreen)
			rollout.Spec.TrafficRouting = &rolloutsv1alpha1.TrafficRoutingSpec{ServiceName: "checkout"}
			Expect(splitter.SetWeight(ctx, rollout, 50)).NotTo(Succeed())
		})

		It("repoints the Service selector to the candidate at 100", func() {
			newSplitter(service("checkout"))
			rollout := rolloutFor(rolloutsv1alpha1.StrategyBlueGreen)
			rollout.Spec.TrafficRouting = &rolloutsv1alpha1.TrafficRoutingSpec{ServiceName: "checkout"}

			Expect(splitter.SetWeight(ctx, rollout, 100)).To(Succeed())

			svc := &corev1.Service{}
			Expect(c.Get(ctx, types.NamespacedName{Namespace: "prod", Name: "checkout"}, svc)).To(Succeed())
			Expect(svc.Spec.Selector[TrackLabel]).To(Equal(TrackCanary))
			Expect(svc.Spec.Selector["app"]).To(Equal("checkout"))
		})

		It("repoints the Service selector back to stable at 0", func() {
			newSplitter(service("checkout"))
			rollout := rolloutFor(rolloutsv1alpha1.StrategyBlueGreen)
			rollout.Spec.TrafficRouting = &rolloutsv1alpha1.TrafficRoutingSpec{ServiceName: "checkout"}

			Expect(splitter.SetWeight(ctx, rollout, 100)).To(Succeed())
			Expect(splitter.SetWeight(ctx, rollout, 0)).To(Succeed())

			svc := &corev1.Service{}
			Expect(c.Get(ctx, types.NamespacedName{Namespace: "prod", Name: "checkout"}, svc)).To(Succeed())
			Expect(svc.Spec.Selector[TrackLabel]).To(Equal(TrackStable))
		})
	})

	Describe("RollingUpdate", func() {
		It("sets the candidate image and the update strategy at 100", func() {
			newSplitter(deployment("checkout", 5))
			rollout := rolloutFor(rolloutsv1alpha1.StrategyRollingUpdate)

			Expect(splitter.SetWeight(ctx, rollout, 100)).To(Succeed())

			deploy := &appsv1.Deployment{}
			Expect(c.Get(ctx, types.NamespacedName{Namespace: "prod", Name: "checkout"}, deploy)).To(Succeed())
			Expect(deploy.Spec.Template.Spec.Containers[0].Image).To(Equal("registry.example.com/checkout:v2"))
			Expect(deploy.Spec.Strategy.Type).To(Equal(appsv1.RollingUpdateDeploymentStrategyType))
			Expect(deploy.Spec.Strategy.RollingUpdate.MaxSurge.IntValue()).To(Equal(1))
			Expect(deploy.Spec.Strategy.RollingUpdate.MaxUnavailable.IntValue()).To(Equal(0))
		})

		It("restores the stable image at 0", func() {
			newSplitter(deployment("checkout", 5))
			rollout := rolloutFor(rolloutsv1alpha1.StrategyRollingUpdate)

			Expect(splitter.SetWeight(ctx, rollout, 100)).To(Succeed())
			Expect(splitter.SetWeight(ctx, rollout, 0)).To(Succeed())

			deploy := &appsv1.Deployment{}
			Expect(c.Get(ctx, types.NamespacedName{Namespace: "prod", Name: "checkout"}, deploy)).To(Succeed())
			Expect(deploy.Spec.Template.Spec.Containers[0].Image).To(Equal("registry.example.com/checkout:v1"))
		})

		It("rejects intermediate weights", func() {
			newSplitter(deployment("checkout", 5))
			rollout := rolloutFor(rolloutsv1alpha1.StrategyRollingUpdate)
			Expect(splitter.SetWeight(ctx, rollout, 40)).NotTo(Succeed())
		})
	})
})

var _ = DescribeTable("CanaryReplicas",
	func(total, weight, want int32) {
		Expect(CanaryReplicas(total, weight)).To(Equal(want))
	},
	Entry("zero weight", int32(10), int32(0), int32(0)),
	Entry("full weight", int32(10), int32(100), int32(10)),
	Entry("even split", int32(10), int32(50), int32(5)),
	Entry("rounds to nearest", int32(3), int32(50), int32(2)),
	Entry("small weight keeps at least one replica", int32(10), int32(1), int32(1)),
	Entry("large weight leaves stable one replica", int32(10), int32(99), int32(9)),
	Entry("single replica pool below 100 stays stable", int32(1), int32(50), int32(0)),
)

var _ = DescribeTable("RollingBounds",
	func(spec *rolloutsv1alpha1.RollingUpdateSpec, wantErr bool) {
		_, _, err := RollingBounds(spec)
		if wantErr {
			Expect(err).To(HaveOccurred())
		} else {
			Expect(err).NotTo(HaveOccurred())
		}
	},
	Entry("nil spec uses defaults", nil, false),
	Entry("surge and unavailable both zero", &rolloutsv1alpha1.RollingUpdateSpec{
		MaxSurge:       ptrIntOrString(intstr.FromInt32(0)),
		MaxUnavailable: ptrIntOrString(intstr.FromInt32(0)),
	}, true),
	Entry("negative surge", &rolloutsv1alpha1.RollingUpdateSpec{
		MaxSurge: ptrIntOrString(intstr.FromInt32(-1)),
	}, true),
	Entry("percentage bounds", &rolloutsv1alpha1.RollingUpdateSpec{
		MaxSurge:       ptrIntOrString(intstr.FromString("25%")),
		MaxUnavailable: ptrIntOrString(intstr.FromString("0%")),
	}, false),
	Entry("malformed percentage", &rolloutsv1alpha1.RollingUpdateSpec{
		MaxSurge: ptrIntOrString(intstr.FromString("abc")),
	}, true),
)

func ptrIntOrString(v intstr.IntOrString) *intstr.IntOrString { return &v }
