package policy

import (
	"time"

	"github.com/GoSim-25-26J-441/optimization-driver/pkg/config"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

// Policy represents a generic policy interface
type Policy interface {
	// Enabled returns whether the policy is enabled
	Enabled() bool
	// Name returns the policy name for identification
	Name() string
}

// RetryPolicy decides whether a failed simulation sample is resubmitted
type RetryPolicy interface {
	Policy
	// ShouldRetry determines if a sample should be run again after the given
	// number of completed attempts
	ShouldRetry(attempt int, res *models.SampleResult, err error) bool
	// GetBackoffDuration calculates the wait before retry attempt (1-indexed)
	GetBackoffDuration(attempt int) time.Duration
	// GetMaxRetries returns the maximum number of retries allowed
	GetMaxRetries() int
}

// CircuitBreakerPolicy trips when the simulation backend looks broken as a
// whole rather than failing on individual samples
type CircuitBreakerPolicy interface {
	Policy
	// RecordSuccess records a finished sample
	RecordSuccess()
	// RecordFailure records a failed sample
	RecordFailure()
	// GetState returns the current circuit breaker state
	GetState() CircuitState
	// Reset closes the circuit and clears the counters
	Reset()
}

// CircuitState represents the state of a circuit breaker
type CircuitState string

const (
	CircuitStateClosed CircuitState = "closed" // Normal operation
	CircuitStateOpen   CircuitState = "open"   // Backend considered down
)

// Manager holds the policies applied by the batch runner
type Manager struct {
	retry          RetryPolicy
	circuitBreaker CircuitBreakerPolicy
}

// NewPolicyManager creates a policy manager from runner configuration
func NewPolicyManager(runner config.Runner) *Manager {
	pm := &Manager{}

	if runner.Retries > 0 {
		pm.retry = NewRetryPolicyFromConfig(runner)
	}
	if runner.FailureThreshold > 0 {
		pm.circuitBreaker = NewCircuitBreakerPolicy(true, runner.FailureThreshold)
	}

	return pm
}

// GetRetry returns the retry policy if enabled
func (pm *Manager) GetRetry() RetryPolicy {
	return pm.retry
}

// GetCircuitBreaker returns the circuit breaker policy if enabled
func (pm *Manager) GetCircuitBreaker() CircuitBreakerPolicy {
	return pm.circuitBreaker
}
