package health

import (
	"context"
	"time"
)

// Track identifies which side of a rollout a measurement belongs to.
type Track string

const (
	TrackStable Track = "stable"
	TrackCanary Track = "canary"
)

// Target identifies the workload a sample is taken for.
type Target struct {
	Namespace string
	Name      string
}

// Sample is one timestamped health measurement for a single revision,
// aggregated over the sampling window. Samples are ephemeral; they live
// only inside the evaluation window and are discarded afterwards.
type Sample struct {
	Track        Track
	SuccessCount float64
	ErrorCount   float64
	LatencyP50   time.Duration
	LatencyP99   time.Duration
	Taken        time.Time
}

// Volume is the total request count covered by the sample.
func (s Sample) Volume() float64 {
	return s.SuccessCount + s.ErrorCount
}

// ErrorRate is the fraction of requests that failed, in [0, 1].
// A sample with no traffic has an error rate of zero.
func (s Sample) ErrorRate() float64 {
	v := s.Volume()
	if v == 0 {
		return 0
	}
	return s.ErrorCount / v
}

// Provider supplies aggregate success/error/latency measurements for a
// workload revision over a time window.
type Provider interface {
	Sample(ctx context.Context, target Target, track Track, window time.Duration) (Sample, error)
}
