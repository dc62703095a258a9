package health

import (
	"time"

	rolloutsv1alpha1 "github.com/stagehand-sh/rollouts/api/v1alpha1"
)

// Defaults applied when the Rollout spec leaves the analysis block
// empty. Thresholds are always configuration, never hard-coded policy:
// these only fill the gaps.
const (
	DefaultInterval         = 10 * time.Second
	DefaultBakeTime         = 60 * time.Second
	DefaultErrorRateDelta   = 0.05
	DefaultLatencyDelta     = 500 * time.Millisecond
	DefaultMinRequestVolume = 20
	DefaultMaxExtensions    = 3
)

// Policy is the fully resolved health policy for one rollout.
type Policy struct {
	Interval      time.Duration
	BakeTime      time.Duration
	Thresholds    Thresholds
	MaxExtensions int32
}

// PolicyFrom resolves an AnalysisSpec against the defaults.
func PolicyFrom(spec rolloutsv1alpha1.AnalysisSpec) Policy {
	p := Policy{
		Interval: DefaultInterval,
		BakeTime: DefaultBakeTime,
		Thresholds: Thresholds{
			MaxErrorRateDelta: DefaultErrorRateDelta,
			MaxLatencyDelta:   DefaultLatencyDelta,
			MinRequestVolume:  DefaultMinRequestVolume,
		},
		MaxExtensions: DefaultMaxExtensions,
	}
	if spec.Interval != nil && spec.Interval.Duration > 0 {
		p.Interval = spec.Interval.Duration
	}
	if spec.BakeTime != nil && spec.BakeTime.Duration > 0 {
		p.BakeTime = spec.BakeTime.Duration
	}
	if spec.MaxErrorRateDeltaPercent != nil {
		p.Thresholds.MaxErrorRateDelta = float64(*spec.MaxErrorRateDeltaPercent) / 100
	}
	if spec.MaxLatencyDeltaMillis != nil {
		p.Thresholds.MaxLatencyDelta = time.Duration(*spec.MaxLatencyDeltaMillis) * time.Millisecond
	}
	if spec.MinRequestVolume != nil {
		p.Thresholds.MinRequestVolume = float64(*spec.MinRequestVolume)
	}
	if spec.MaxExtensions != nil {
		p.MaxExtensions = *spec.MaxExtensions
	}
	return p
}

// WindowCapacity is the number of samples one bake period can hold.
func (p Policy) WindowCapacity() int {
	if p.Interval <= 0 {
		return 1
	}
	n := int(p.BakeTime / p.Interval)
	if n < 1 {
		n = 1
	}
	return n
}
