package health

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// promVector renders a single-element instant vector response.
func promVector(value string) string {
	return fmt.Sprintf(`{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1693400000,%q]}]}}`, value)
}

const promEmptyVector = `{"status":"success","data":{"resultType":"vector","result":[]}}`

func newPromServer(t *testing.T, handler func(query string) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse query form: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, handler(r.Form.Get("query")))
	}))
}

func TestPrometheusProviderSample(t *testing.T) {
	var queries []string
	server := newPromServer(t, func(query string) string {
		queries = append(queries, query)
		switch {
		case strings.Contains(query, `code=~"5.."`):
			return promVector("12")
		case strings.Contains(query, "histogram_quantile(0.5"):
			return promVector("0.080")
		case strings.Contains(query, "histogram_quantile(0.99"):
			return promVector("0.450")
		default:
			return promVector("412")
		}
	})
	defer server.Close()

	provider, err := NewPrometheusProvider(server.URL, "track")
	if err != nil {
		t.Fatalf("NewPrometheusProvider() error = %v", err)
	}

	sample, err := provider.Sample(context.Background(), Target{Namespace: "prod", Name: "checkout"}, TrackCanary, time.Minute)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}

	if sample.ErrorCount != 12 {
		t.Errorf("ErrorCount = %v, want 12", sample.ErrorCount)
	}
	if sample.SuccessCount != 400 {
		t.Errorf("SuccessCount = %v, want 400", sample.SuccessCount)
	}
	if sample.LatencyP50 != 80*time.Millisecond {
		t.Errorf("LatencyP50 = %v, want 80ms", sample.LatencyP50)
	}
	if sample.LatencyP99 != 450*time.Millisecond {
		t.Errorf("LatencyP99 = %v, want 450ms", sample.LatencyP99)
	}
	if sample.Track != TrackCanary {
		t.Errorf("Track = %v, want %v", sample.Track, TrackCanary)
	}

	// Every query carries the workload and track matchers.
	for _, q := range queries {
		for _, matcher := range []string{`namespace="prod"`, `app="checkout"`, `track="canary"`} {
			if !strings.Contains(q, matcher) {
				t.Errorf("query %q missing matcher %s", q, matcher)
			}
		}
	}
}

func TestPrometheusProviderNoTraffic(t *testing.T) {
	server := newPromServer(t, func(query string) string {
		if strings.Contains(query, "histogram_quantile") {
			// histogram_quantile over an empty range yields NaN.
			return promVector("NaN")
		}
		return promEmptyVector
	})
	defer server.Close()

	provider, err := NewPrometheusProvider(server.URL, "track")
	if err != nil {
		t.Fatalf("NewPrometheusProvider() error = %v", err)
	}

	sample, err := provider.Sample(context.Background(), Target{Namespace: "prod", Name: "checkout"}, TrackCanary, time.Minute)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if sample.Volume() != 0 {
		t.Errorf("Volume() = %v, want 0", sample.Volume())
	}
	if sample.LatencyP99 != 0 {
		t.Errorf("LatencyP99 = %v, want 0", sample.LatencyP99)
	}
	if sample.ErrorRate() != 0 {
		t.Errorf("ErrorRate() = %v, want 0", sample.ErrorRate())
	}
}

func TestPrometheusProviderServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	provider, err := NewPrometheusProvider(server.URL, "track")
	if err != nil {
		t.Fatalf("NewPrometheusProvider() error = %v", err)
	}

	if _, err := provider.Sample(context.Background(), Target{Namespace: "prod", Name: "checkout"}, TrackStable, time.Minute); err == nil {
		t.Error("Sample() should fail when the server errors")
	}
}
