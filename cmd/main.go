/*
Copyright 2024.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/stagehand-sh/rollouts/internal/buildinfo"
	"github.com/stagehand-sh/rollouts/internal/cluster"
	"github.com/stagehand-sh/rollouts/internal/filter"
	"github.com/stagehand-sh/rollouts/internal/health"
	"github.com/stagehand-sh/rollouts/internal/heartbeat"
	"github.com/stagehand-sh/rollouts/internal/hooks"
	"github.com/stagehand-sh/rollouts/internal/hooks/controlplane"
	"github.com/stagehand-sh/rollouts/internal/hooks/pubsub"
	"github.com/stagehand-sh/rollouts/internal/model"
	"github.com/stagehand-sh/rollouts/internal/reconciler"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	// to ensure that exec-entrypoint and run can make use of them.
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	"sigs.k8s.io/controller-runtime/pkg/metrics/filters"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
	"sigs.k8s.io/controller-runtime/pkg/webhook"

	rolloutsv1alpha1 "github.com/stagehand-sh/rollouts/api/v1alpha1"
	// +kubebuilder:scaffold:imports
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

// config holds all command-line configuration
type config struct {
	metricsAddr          string
	enableLeaderElection bool
	probeAddr            string
	secureMetrics        bool
	enableHTTP2          bool
	prometheusURL        string
	trackMetricLabel     string
	controlPlaneURL      string
	clusterID            string
	environment          string
	pubsubTopic          string
	heartbeatInterval    time.Duration
	watchNamespaces      string
	excludeNamespaces    string
	requireLabels        string
	excludeLabels        string
}

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(rolloutsv1alpha1.AddToScheme(scheme))
	// +kubebuilder:scaffold:scheme
}

func main() {
	cfg := parseFlags()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&zap.Options{Development: true})))

	resolveClusterID(&cfg)

	mgr := setupManager(cfg)
	controllerVersion := buildinfo.ControllerVersion()

	// Channel between the reconcilers and the publisher queue
	publisherChan := make(chan model.RolloutUpdate, 100)

	publishers, heartbeatPublishers := setupPublishers(cfg, controllerVersion)
	publisherQueue := hooks.NewEventPublisherQueue(publisherChan, publishers)
	go publisherQueue.Loop()

	rolloutFilter := filter.NewRolloutFilter(filter.Config{
		WatchNamespaces:   splitAndTrim(cfg.watchNamespaces),
		ExcludeNamespaces: splitAndTrim(cfg.excludeNamespaces),
		RequireLabels:     splitAndTrim(cfg.requireLabels),
		ExcludeLabels:     splitAndTrim(cfg.excludeLabels),
	})

	setupRolloutReconciler(mgr, cfg, rolloutFilter, publisherChan)
	setupHeartbeat(mgr, cfg, controllerVersion, heartbeatPublishers)

	// +kubebuilder:scaffold:builder

	setupHealthChecks(mgr)

	setupLog.Info("starting manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}

func parseFlags() config {
	var cfg config

	flag.StringVar(&cfg.metricsAddr, "metrics-bind-address", ":8080", "The address the metrics endpoint binds to. "+
		"Use :8443 for HTTPS or :8080 for HTTP, or leave as 0 to disable the metrics service.")
	flag.StringVar(&cfg.probeAddr, "health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
	flag.BoolVar(&cfg.enableLeaderElection, "leader-elect", false,
		"Enable leader election for controller manager. "+
			"Enabling this will ensure there is only one active controller manager.")
	flag.BoolVar(&cfg.secureMetrics, "metrics-secure", false,
		"If set, the metrics endpoint is served securely via HTTPS. Use --metrics-secure=false to use HTTP instead.")
	flag.BoolVar(&cfg.enableHTTP2, "enable-http2", false,
		"If set, HTTP/2 will be enabled for the metrics and webhook servers")
	flag.StringVar(&cfg.prometheusURL, "prometheus-url", os.Getenv("PROMETHEUS_URL"),
		"The URL of the Prometheus server used for rollout health analysis (e.g., http://prometheus:9090)")
	flag.StringVar(&cfg.trackMetricLabel, "track-metric-label", "track",
		"The Prometheus label that distinguishes stable from canary traffic")
	flag.StringVar(&cfg.controlPlaneURL, "controlplane-url", "",
		"The URL of the Stagehand Control Plane (e.g., http://controlplane:3000/ingest/v1/rollouts/events)")
	flag.StringVar(&cfg.clusterID, "cluster-id", os.Getenv("CLUSTER_ID"),
		"Unique identifier for this cluster (e.g., staging.stg01). Auto-resolved from cloud metadata when empty.")
	flag.StringVar(&cfg.environment, "environment", os.Getenv("ENVIRONMENT"),
		"Deployment environment reported on rollout events (e.g., staging, production)")
	flag.StringVar(&cfg.pubsubTopic, "pubsub-topic", os.Getenv("PUBSUB_TOPIC"),
		"Google Cloud Pub/Sub topic path (projects/<project>/topics/<topic>)")
	flag.DurationVar(&cfg.heartbeatInterval, "heartbeat-interval", heartbeat.DefaultConfig().Interval,
		"Interval between controller heartbeats to the control plane")
	flag.StringVar(&cfg.watchNamespaces, "watch-namespaces", "",
		"Comma-separated list of namespace patterns to manage (e.g., 'production-*,staging-*')")
	flag.StringVar(&cfg.excludeNamespaces, "exclude-namespaces", strings.Join(filter.DefaultExcludedNamespaces(), ","),
		"Comma-separated list of namespace patterns to exclude")
	flag.StringVar(&cfg.requireLabels, "require-labels", "",
		"Comma-separated list of label keys a Rollout must carry (e.g., 'app.kubernetes.io/managed-by')")
	flag.StringVar(&cfg.excludeLabels, "exclude-labels", "",
		"Comma-separated list of label key=value pairs that cause rejection (e.g., 'internal.stagehand.sh/ignore=true')")

	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	return cfg
}

// resolveClusterID fills in the cluster ID from cloud metadata when it
// was not provided explicitly.
func resolveClusterID(cfg *config) {
	if cfg.clusterID != "" {
		return
	}

	resolver := cluster.NewResolver(cluster.DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info, err := resolver.Resolve(ctx)
	if err != nil {
		setupLog.Info("Cluster ID not resolved from cloud metadata, events will carry an empty cluster ID",
			"reason", err.Error())
		return
	}

	cfg.clusterID = info.ClusterID
	setupLog.Info("Cluster ID resolved from cloud metadata",
		"clusterID", info.ClusterID,
		"provider", info.Provider,
		"region", info.Region)
}

func setupManager(cfg config) ctrl.Manager {
	var tlsOpts []func(*tls.Config)

	if !cfg.enableHTTP2 {
		disableHTTP2 := func(c *tls.Config) {
			setupLog.Info("disabling http/2")
			c.NextProtos = []string{"http/1.1"}
		}
		tlsOpts = append(tlsOpts, disableHTTP2)
	}

	webhookServer := webhook.NewServer(webhook.Options{
		TLSOpts: tlsOpts,
	})

	metricsServerOptions := metricsserver.Options{
		BindAddress:   cfg.metricsAddr,
		SecureServing: cfg.secureMetrics,
		TLSOpts:       tlsOpts,
	}

	if cfg.secureMetrics {
		metricsServerOptions.FilterProvider = filters.WithAuthenticationAndAuthorization
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsServerOptions,
		WebhookServer:          webhookServer,
		HealthProbeBindAddress: cfg.probeAddr,
		LeaderElection:         cfg.enableLeaderElection,
		LeaderElectionID:       "ce02bd06.stagehand.sh",
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		os.Exit(1)
	}

	return mgr
}

func setupPublishers(cfg config, controllerVersion string) ([]hooks.EventPublisher, []hooks.HeartbeatPublisher) {
	var publishers []hooks.EventPublisher
	var heartbeatPublishers []hooks.HeartbeatPublisher

	if cfg.controlPlaneURL != "" {
		if cfg.clusterID == "" {
			setupLog.Error(nil, "cluster-id is required when controlplane-url is set")
			os.Exit(1)
		}
		cpPublisher := controlplane.NewHTTPPublisher(cfg.controlPlaneURL, cfg.clusterID, cfg.environment, controllerVersion)
		publishers = append(publishers, cpPublisher)
		heartbeatPublishers = append(heartbeatPublishers, cpPublisher)
		setupLog.Info("Control Plane publisher enabled",
			"endpoint", cfg.controlPlaneURL,
			"clusterID", cfg.clusterID)
	}

	if cfg.pubsubTopic != "" {
		if cfg.clusterID == "" {
			setupLog.Error(nil, "cluster-id is required when pubsub is enabled")
			os.Exit(1)
		}
		ctx := context.Background()
		pubsubPublisher, err := pubsub.NewPubSubPublisher(ctx, cfg.pubsubTopic, cfg.clusterID, cfg.environment, controllerVersion)
		if err != nil {
			setupLog.Error(err, "unable to create Pub/Sub publisher",
				"hint", "Ensure valid credentials via Workload Identity, GOOGLE_APPLICATION_CREDENTIALS, or gcloud auth")
			os.Exit(1)
		}
		publishers = append(publishers, pubsubPublisher)
		heartbeatPublishers = append(heartbeatPublishers, pubsubPublisher)
		setupLog.Info("Google Pub/Sub publisher enabled",
			"topic", cfg.pubsubTopic,
			"clusterID", cfg.clusterID)
	}

	if len(publishers) == 0 {
		setupLog.Info("No event publishers configured, transitions will only be exported as metrics and Kubernetes events")
	}

	return publishers, heartbeatPublishers
}

func setupRolloutReconciler(
	mgr ctrl.Manager,
	cfg config,
	rolloutFilter *filter.RolloutFilter,
	publisherChan chan<- model.RolloutUpdate,
) {
	if cfg.prometheusURL == "" {
		setupLog.Error(nil, "prometheus-url is required: rollout progression is health-gated and fails closed without it")
		os.Exit(1)
	}

	healthProvider, err := health.NewPrometheusProvider(cfg.prometheusURL, cfg.trackMetricLabel)
	if err != nil {
		setupLog.Error(err, "unable to create Prometheus health provider", "url", cfg.prometheusURL)
		os.Exit(1)
	}

	rolloutReconciler := reconciler.NewRolloutReconciler(
		mgr.GetClient(),
		mgr.GetScheme(),
		mgr.GetEventRecorderFor("stagehand-rollouts"),
		healthProvider,
		rolloutFilter,
		publisherChan,
	)

	if err := rolloutReconciler.SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "Rollout")
		os.Exit(1)
	}
}

func setupHeartbeat(
	mgr ctrl.Manager,
	cfg config,
	controllerVersion string,
	heartbeatPublishers []hooks.HeartbeatPublisher,
) {
	if len(heartbeatPublishers) == 0 {
		return
	}

	heartbeatConfig := heartbeat.DefaultConfig()
	heartbeatConfig.Interval = cfg.heartbeatInterval
	heartbeatConfig.ClusterID = cfg.clusterID
	heartbeatConfig.ControllerVersion = controllerVersion

	sender := heartbeat.NewSender(heartbeatConfig, mgr.GetClient(), heartbeatPublishers)
	if err := mgr.Add(manager.RunnableFunc(func(ctx context.Context) error {
		sender.Start(ctx)
		return nil
	})); err != nil {
		setupLog.Error(err, "unable to add heartbeat sender")
		os.Exit(1)
	}
}

func setupHealthChecks(mgr ctrl.Manager) {
	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}
}

// splitAndTrim splits a comma-separated string and trims whitespace from each element
func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
