package orchestrator

import (
	"errors"
	"fmt"
)

// ErrContextBudget is returned when the cascade outgrows the configured
// maximum before a stage is invoked.
var ErrContextBudget = errors.New("orchestrator: cascade exceeds context budget")

// ErrCancelled wraps the cause when a run stops before completion because its
// context ended.
var ErrCancelled = errors.New("orchestrator: run cancelled")

// ProviderError is the run-fatal failure of one stage's backend call. Its
// message is what the error event carries.
type ProviderError struct {
	Stage int
	Role  string
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s (stage %d) failed: %v", e.Role, e.Stage, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
