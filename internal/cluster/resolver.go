package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"
)

const (
	metadataBase   = "http://metadata.google.internal/computeMetadata/v1"
	metadataFlavor = "Google"
)

// Identity names the cluster the controller runs in. The ID is stamped
// onto every published rollout event and heartbeat so the control
// plane can attribute transitions to a cluster.
type Identity struct {
	ClusterID string
	Provider  string
	Region    string
}

// ErrNoMetadata is returned when the metadata service is not
// reachable. Outside GKE the operator supplies the cluster ID by flag.
var ErrNoMetadata = errors.New("cluster metadata service not reachable")

// Config holds configuration for the resolver
type Config struct {
	// Timeout for metadata requests
	Timeout time.Duration
}

// DefaultConfig returns the default resolver configuration
func DefaultConfig() Config {
	return Config{Timeout: 3 * time.Second}
}

// Resolver derives the cluster identity from the GKE metadata service.
type Resolver struct {
	client *http.Client
	base   string
}

func NewResolver(cfg Config) *Resolver {
	return &Resolver{
		client: &http.Client{Timeout: cfg.Timeout},
		base:   metadataBase,
	}
}

// NewResolverWithURL points the resolver at a custom metadata endpoint
// (for testing)
func NewResolverWithURL(cfg Config, baseURL string) *Resolver {
	r := NewResolver(cfg)
	r.base = baseURL
	return r
}

// Resolve builds the cluster identity (gcp/<project>/<region>/<name>)
// from GKE instance metadata.
func (r *Resolver) Resolve(ctx context.Context) (*Identity, error) {
	if !r.detect(ctx) {
		return nil, ErrNoMetadata
	}

	clusterName, err := r.get(ctx, "/instance/attributes/cluster-name")
	if err != nil {
		return nil, fmt.Errorf("failed to get cluster-name: %w", err)
	}
	projectID, err := r.get(ctx, "/project/project-id")
	if err != nil {
		return nil, fmt.Errorf("failed to get project-id: %w", err)
	}
	zone, err := r.get(ctx, "/instance/zone")
	if err != nil {
		return nil, fmt.Errorf("failed to get zone: %w", err)
	}

	// Zone metadata is returned as projects/<number>/zones/<zone>.
	region := regionFromZone(path.Base(zone))

	return &Identity{
		ClusterID: fmt.Sprintf("gcp/%s/%s/%s", projectID, region, clusterName),
		Provider:  "gcp",
		Region:    region,
	}, nil
}

// detect probes the metadata server; it answers 200 with the
// Metadata-Flavor: Google header only on GCP.
func (r *Resolver) detect(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", metadataFlavor)

	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK &&
		resp.Header.Get("Metadata-Flavor") == metadataFlavor
}

// get fetches a single value from the metadata server
func (r *Resolver) get(ctx context.Context, p string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+p, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Metadata-Flavor", metadataFlavor)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// regionFromZone extracts the region (e.g. us-central1-a -> us-central1)
func regionFromZone(zone string) string {
	lastDash := strings.LastIndex(zone, "-")
	if lastDash == -1 {
		return zone
	}
	return zone[:lastDash]
}
