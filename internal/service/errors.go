package service

import "errors"

var (
	// ErrNotFound is returned when no rollout matches the request.
	ErrNotFound = errors.New("rollout not found")
	// ErrConflict is returned when another rollout is already active
	// for the same workload.
	ErrConflict = errors.New("rollout already active for workload")
	// ErrPolicyRejected is returned when controller policy refuses to
	// manage the rollout's namespace or labels.
	ErrPolicyRejected = errors.New("rollout rejected by controller policy")
	// ErrInvalidSpec is returned when the rollout spec fails validation.
	ErrInvalidSpec = errors.New("invalid rollout spec")
)
