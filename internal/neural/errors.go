package neural

import (
	"errors"
	"fmt"
)

// ErrNoViableConfig is returned by Tune when every sampled trial failed.
var ErrNoViableConfig = errors.New("no viable configuration found")

// ModelLoadError means the artifact is missing, corrupt, or structurally
// incompatible. The runtime updater treats it as "run heuristic-only"; it never
// reaches a learning-event caller.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// PredictionError is a per-pair inference failure. The updater catches it and
// falls back to the heuristic for that pair only.
type PredictionError struct {
	Err error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("predict strength: %v", e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }

// InsufficientDataError reports a failed readiness gate with actual vs.
// required example counts.
type InsufficientDataError struct {
	Count    int
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient training data: %d examples, need %d", e.Count, e.Required)
}

// TrialError wraps a single failed hyperparameter trial. The search logs it
// and continues.
type TrialError struct {
	Trial int
	Err   error
}

func (e *TrialError) Error() string {
	return fmt.Sprintf("trial %d failed: %v", e.Trial, e.Err)
}

func (e *TrialError) Unwrap() error { return e.Err }
