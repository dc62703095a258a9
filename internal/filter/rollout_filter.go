package filter

import (
	"path/filepath"
	"strings"
)

// Config holds the namespace and label gating for the controller
type Config struct {
	// Namespace filtering
	WatchNamespaces   []string // Glob patterns for namespaces to manage (e.g., "production-*")
	ExcludeNamespaces []string // Glob patterns for namespaces to refuse (e.g., "kube-system")

	// Label filtering
	RequireLabels []string // Label keys a Rollout must carry (e.g., "app.kubernetes.io/managed-by")
	ExcludeLabels []string // Label key=value pairs that cause rejection (e.g., "internal.stagehand.sh/ignore=true")
}

// RolloutFilter decides which Rollouts the controller manages. A
// rejected Rollout is terminated as Aborted before any state changes.
type RolloutFilter struct {
	config Config
}

// NewRolloutFilter creates a new rollout filter
func NewRolloutFilter(config Config) *RolloutFilter {
	return &RolloutFilter{config: config}
}

// Allowed returns true if a Rollout in the given namespace with the
// given labels may be managed.
func (f *RolloutFilter) Allowed(namespace string, labels map[string]string) bool {
	return f.allowedNamespace(namespace) && f.allowedLabels(labels)
}

func (f *RolloutFilter) allowedNamespace(namespace string) bool {
	// Check exclusions first
	for _, pattern := range f.config.ExcludeNamespaces {
		if matchGlob(pattern, namespace) {
			return false
		}
	}

	// If no watch patterns specified, manage all (that aren't excluded)
	if len(f.config.WatchNamespaces) == 0 {
		return true
	}

	for _, pattern := range f.config.WatchNamespaces {
		if matchGlob(pattern, namespace) {
			return true
		}
	}

	return false
}

func (f *RolloutFilter) allowedLabels(labels map[string]string) bool {
	// Check required labels
	for _, requiredKey := range f.config.RequireLabels {
		if _, exists := labels[requiredKey]; !exists {
			return false
		}
	}

	// Check exclusion labels
	for _, exclusion := range f.config.ExcludeLabels {
		key, value := parseKeyValue(exclusion)
		if labelValue, exists := labels[key]; exists {
			if value == "" || labelValue == value {
				return false
			}
		}
	}

	return true
}

// matchGlob performs a simple glob match (supports * wildcard)
func matchGlob(pattern, s string) bool {
	matched, err := filepath.Match(pattern, s)
	if err != nil {
		return false
	}
	return matched
}

// parseKeyValue parses a "key=value" or "key" string
func parseKeyValue(s string) (key, value string) {
	parts := strings.SplitN(s, "=", 2)
	key = parts[0]
	if len(parts) > 1 {
		value = parts[1]
	}
	return
}

// DefaultExcludedNamespaces returns the default list of namespaces the
// controller refuses to manage
func DefaultExcludedNamespaces() []string {
	return []string{
		"kube-system",
		"kube-public",
		"kube-node-lease",
	}
}
