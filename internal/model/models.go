package model

// RolloutUpdate is the in-process notification emitted for every phase
// transition of a rollout. It feeds the publisher queue.
type RolloutUpdate struct {
	RolloutName       string
	Namespace         string
	Workload          string
	Strategy          string
	Phase             string
	Weight            int32
	StableWeight      int32
	StableRevision    string
	CandidateRevision string
	Message           string
	Labels            map[string]string // Kubernetes labels from the Rollout object
}
