package reconciler

import "sync"

// workloadLeases serializes control loops that target the same
// workload. controller-runtime already guarantees a single in-flight
// reconcile per Rollout object; this extends the exclusion to the
// workload key, so two Rollout objects naming the same workload can
// never mutate its traffic split concurrently. The lease is held for
// the duration of one reconcile.
type workloadLeases struct {
	mu     sync.Mutex
	leases map[string]*sync.Mutex
}

func newWorkloadLeases() *workloadLeases {
	return &workloadLeases{leases: make(map[string]*sync.Mutex)}
}

// acquire blocks until the lease for key is free and returns the
// release function.
func (l *workloadLeases) acquire(key string) func() {
	l.mu.Lock()
	lease, ok := l.leases[key]
	if !ok {
		lease = &sync.Mutex{}
		l.leases[key] = lease
	}
	l.mu.Unlock()

	lease.Lock()
	return lease.Unlock
}
