package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestSampleResultFailed(t *testing.T) {
	ok := func() *SampleResult {
		return &SampleResult{
			Inputs:  map[string]float64{"x0": 1},
			Outputs: map[string]float64{"y": 2},
			Status:  SampleOK,
		}
	}

	tests := []struct {
		name   string
		result *SampleResult
		failed bool
	}{
		{"nil result", nil, true},
		{"ok result", ok(), false},
		{"missing inputs", func() *SampleResult { r := ok(); r.Inputs = nil; return r }(), true},
		{"missing outputs", func() *SampleResult { r := ok(); r.Outputs = nil; return r }(), true},
		{"nonzero error code", func() *SampleResult { r := ok(); r.ErrorCode = ErrCodeException; return r }(), true},
		{"timeout status", func() *SampleResult { r := ok(); r.Status = SampleTimeout; return r }(), true},
		{"empty outputs map is bound", func() *SampleResult { r := ok(); r.Outputs = map[string]float64{}; return r }(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Failed(); got != tt.failed {
				t.Fatalf("Failed() = %v, want %v", got, tt.failed)
			}
		})
	}
}

func TestNilSampleResultBindings(t *testing.T) {
	var r *SampleResult
	b := r.Bindings()
	if b.Inputs != nil || b.Outputs != nil {
		t.Fatalf("expected empty bindings for nil result, got %+v", b)
	}
}

func TestRunErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("iteration 3: %w", NewRunError(ErrExecution, cause))

	if !errors.Is(err, ErrExecution) {
		t.Fatalf("expected errors.Is(err, ErrExecution)")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is(err, cause)")
	}
	if errors.Is(err, ErrTimeout) {
		t.Fatalf("did not expect errors.Is(err, ErrTimeout)")
	}

	var re *RunError
	if !errors.As(err, &re) || re.Kind != ErrExecution {
		t.Fatalf("expected RunError with execution kind, got %v", err)
	}
}

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		err  error
		want RunStatus
	}{
		{nil, RunStatusSuccess},
		{NewConfigurationError("bad %s", "x"), RunStatusConfigurationError},
		{NewRunError(ErrCancelled, nil), RunStatusUserCancellation},
		{NewRunError(ErrTimeout, nil), RunStatusTimeoutExceeded},
		{NewRunError(ErrExecution, errors.New("lost")), RunStatusExecutionError},
		{NewStrategyError("singular"), RunStatusStrategyInternalError},
		{errors.New("unclassified"), RunStatusStrategyInternalError},
	}

	for _, tt := range tests {
		if got := StatusFromError(tt.err); got != tt.want {
			t.Errorf("StatusFromError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestRunStatusTerminal(t *testing.T) {
	if RunStatusRunning.Terminal() || RunStatusPending.Terminal() {
		t.Fatalf("running/pending must not be terminal")
	}
	if !RunStatusSuccess.Terminal() || !RunStatusTimeoutExceeded.Terminal() {
		t.Fatalf("success/timeout must be terminal")
	}
}
