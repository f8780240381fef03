// Package batch runs one batch of simulation samples at a time: it
// dispatches requests to an Executor, polls for completed slots, and
// finalizes the batch as completed, cancelled, timed out or aborted.
package batch

import (
	"context"

	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

// State is the lifecycle state of a batch job
type State string

const (
	StateIdle      State = "idle"
	StateSubmitted State = "submitted"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateTimedOut  State = "timed_out"
	StateAborted   State = "aborted"
)

// Terminal reports whether no further results will be recorded
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateTimedOut, StateAborted:
		return true
	}
	return false
}

// SlotResult is one completed slot handed back by an Execution
type SlotResult struct {
	Slot   int
	Result *models.SampleResult
}

// ExecutionStatus is a snapshot of an execution's counters. Fatal is set
// when the backend as a whole has failed and the run must abort.
type ExecutionStatus struct {
	Total    int
	Finished int
	Errors   int
	Fatal    error
}

// Execution is the handle of one dispatched batch. Results must be
// available to Drain before IsRunning reports false.
type Execution interface {
	IsRunning() bool
	Status() ExecutionStatus
	// Drain returns slots completed since the previous call
	Drain() []SlotResult
	// Terminate asks the backend to stop; it does not wait
	Terminate()
}

// Executor dispatches a batch of sample requests. Submit must not block
// past dispatch.
type Executor interface {
	Submit(ctx context.Context, batchID string, reqs []models.SampleRequest) (Execution, error)
}

// Simulator runs one sample with fully bound physical inputs
type Simulator interface {
	Simulate(ctx context.Context, inputs map[string]float64) (*models.SampleResult, error)
}

// SimulatorFunc adapts a function to Simulator
type SimulatorFunc func(ctx context.Context, inputs map[string]float64) (*models.SampleResult, error)

// Simulate calls f(ctx, inputs)
func (f SimulatorFunc) Simulate(ctx context.Context, inputs map[string]float64) (*models.SampleResult, error) {
	return f(ctx, inputs)
}
