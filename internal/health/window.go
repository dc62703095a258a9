package health

import (
	"sync"
	"time"
)

// Thresholds bound how far the candidate may drift from the stable
// revision before a rollout is considered unhealthy.
type Thresholds struct {
	// MaxErrorRateDelta is the tolerated error-rate increase over the
	// stable revision, as a fraction in [0, 1].
	MaxErrorRateDelta float64
	// MaxLatencyDelta is the tolerated p99 latency increase.
	MaxLatencyDelta time.Duration
	// MinRequestVolume is the minimum candidate request count for a
	// comparison to be conclusive.
	MinRequestVolume float64
}

// Verdict is the outcome of comparing one candidate sample against the
// stable baseline.
type Verdict int

const (
	// VerdictInconclusive means the sample carried too little traffic
	// to judge.
	VerdictInconclusive Verdict = iota
	VerdictPass
	VerdictFail
)

// Compare judges a candidate sample against the stable baseline taken
// over the same window. When the stable side has no meaningful traffic
// (e.g. the candidate already holds 100% of it) the candidate is
// compared against a zero baseline, which reduces the deltas to
// absolute thresholds.
func (t Thresholds) Compare(candidate, stable Sample) Verdict {
	if candidate.Volume() < t.MinRequestVolume {
		return VerdictInconclusive
	}

	baseRate := 0.0
	baseLatency := time.Duration(0)
	if stable.Volume() >= t.MinRequestVolume {
		baseRate = stable.ErrorRate()
		baseLatency = stable.LatencyP99
	}

	if candidate.ErrorRate()-baseRate > t.MaxErrorRateDelta {
		return VerdictFail
	}
	if candidate.LatencyP99-baseLatency > t.MaxLatencyDelta {
		return VerdictFail
	}
	return VerdictPass
}

// Decision is the aggregate judgement over a bake window.
type Decision int

const (
	// DecisionInconclusive means the window has not produced a clear
	// signal yet.
	DecisionInconclusive Decision = iota
	// DecisionHealthy means a strict majority of conclusive samples
	// passed and the most recent one passed too.
	DecisionHealthy
	// DecisionBreach means a strict majority of conclusive samples
	// failed, or every conclusive sample did.
	DecisionBreach
)

// Window collects verdicts over one bake period. It is bounded: only
// the most recent capacity verdicts are retained, so a long-extended
// bake cannot let stale history mask a fresh regression.
//
// Safe for concurrent use; rollout loops for different workloads share
// one window set keyed by rollout UID.
type Window struct {
	mu       sync.Mutex
	capacity int
	verdicts []Verdict
}

// NewWindow creates a window retaining at most capacity verdicts.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{capacity: capacity}
}

// Observe appends a verdict, evicting the oldest once full.
func (w *Window) Observe(v Verdict) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.verdicts = append(w.verdicts, v)
	if len(w.verdicts) > w.capacity {
		w.verdicts = w.verdicts[len(w.verdicts)-w.capacity:]
	}
}

// Len returns the number of retained verdicts.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.verdicts)
}

// Reset discards all verdicts; called when a new checkpoint is applied.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.verdicts = nil
}

// Decide applies the most-recent-contiguous-majority rule: the window
// is healthy only when strictly more than half of the conclusive
// verdicts passed and the latest conclusive verdict passed as well, so
// a brief but real regression at the tail is never averaged away. The
// mirror-image rule yields a breach. Anything else is inconclusive.
func (w *Window) Decide() Decision {
	w.mu.Lock()
	defer w.mu.Unlock()

	var pass, fail int
	latest := VerdictInconclusive
	for _, v := range w.verdicts {
		switch v {
		case VerdictPass:
			pass++
			latest = VerdictPass
		case VerdictFail:
			fail++
			latest = VerdictFail
		}
	}
	conclusive := pass + fail
	if conclusive == 0 {
		return DecisionInconclusive
	}

	if fail*2 > conclusive || (latest == VerdictFail && pass == 0) {
		return DecisionBreach
	}
	if pass*2 > conclusive && latest == VerdictPass {
		return DecisionHealthy
	}
	return DecisionInconclusive
}
