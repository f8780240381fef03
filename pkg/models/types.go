package models

import (
	"time"
)

// Computation error codes reported by a simulator for a single sample.
// Zero means the sample finished normally.
const (
	ErrCodeNone        = 0
	ErrCodeNotFinished = -1
	ErrCodeException   = -2
	ErrCodeNoOutput    = -3
	ErrCodeTimeout     = -4
)

// Bindings holds the named input and output values of one simulation sample.
// For an ensemble evaluation Members carries the individual samples and
// Inputs/Outputs hold their aggregate.
type Bindings struct {
	Inputs  map[string]float64 `json:"inputs"`
	Outputs map[string]float64 `json:"outputs"`
	Members []Bindings         `json:"members,omitempty"`
}

// SampleStatus is the execution status of a single sample
type SampleStatus string

const (
	SampleOK      SampleStatus = "ok"
	SampleError   SampleStatus = "error"
	SampleTimeout SampleStatus = "timeout"
)

func (s SampleStatus) String() string {
	return string(s)
}

// SampleRequest is one simulation to run: a decision vector in both scales
// plus the complete physical input binding handed to the simulator.
type SampleRequest struct {
	Iteration int                `json:"iteration"`
	Slot      int                `json:"slot"`
	Group     int                `json:"group"`
	Member    int                `json:"member"`
	Scaled    []float64          `json:"scaled"`
	Unscaled  []float64          `json:"unscaled"`
	Inputs    map[string]float64 `json:"inputs"`
}

// SampleResult is the outcome of one simulation. A nil *SampleResult marks a
// slot that never finished or was discarded.
type SampleResult struct {
	Inputs    map[string]float64 `json:"inputs"`
	Outputs   map[string]float64 `json:"outputs"`
	Status    SampleStatus       `json:"status"`
	ErrorCode int                `json:"error_code"`
	Message   string             `json:"message,omitempty"`
	Attempts  int                `json:"attempts,omitempty"`
	Duration  time.Duration      `json:"duration,omitempty"`
}

// Failed reports whether the sample cannot be scored: it is nil, lacks input
// or output bindings, carries a nonzero error code or a non-ok status.
func (r *SampleResult) Failed() bool {
	if r == nil {
		return true
	}
	if r.Inputs == nil || r.Outputs == nil {
		return true
	}
	if r.ErrorCode != ErrCodeNone {
		return true
	}
	return r.Status != SampleOK
}

// Bindings returns the sample's inputs and outputs as a binding context
func (r *SampleResult) Bindings() Bindings {
	if r == nil {
		return Bindings{}
	}
	return Bindings{Inputs: r.Inputs, Outputs: r.Outputs}
}

// EvaluationResult is the scored form of one logical evaluation.
// Objectives has one value per configured objective, Constraints one penalty
// per configured constraint.
type EvaluationResult struct {
	Objectives  []float64 `json:"objectives"`
	Constraints []float64 `json:"constraints"`
	Penalty     float64   `json:"penalty"`
	Failed      bool      `json:"failed"`
}

// Objective returns the first objective value, which strategies minimize
func (e EvaluationResult) Objective() float64 {
	if len(e.Objectives) == 0 {
		return 0
	}
	return e.Objectives[0]
}

// IterationRecord captures best-so-far state at the end of an iteration
type IterationRecord struct {
	Iteration int           `json:"iteration"`
	Best      float64       `json:"best"`
	BestX     []float64     `json:"best_x"`
	Elapsed   time.Duration `json:"elapsed"`
}

// RunStatus represents the status of an optimization run
type RunStatus string

const (
	RunStatusPending               RunStatus = "pending"
	RunStatusRunning               RunStatus = "running"
	RunStatusSuccess               RunStatus = "success"
	RunStatusUserCancellation      RunStatus = "user_cancellation"
	RunStatusTimeoutExceeded       RunStatus = "timeout_exceeded"
	RunStatusStrategyInternalError RunStatus = "strategy_internal_error"
	RunStatusExecutionError        RunStatus = "execution_error"
	RunStatusConfigurationError    RunStatus = "configuration_error"
)

// Terminal reports whether the status ends a run
func (s RunStatus) Terminal() bool {
	return s != RunStatusPending && s != RunStatusRunning
}
