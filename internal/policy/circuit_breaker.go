package policy

import (
	"sync"
	"time"
)

// circuitBreakerPolicy implements CircuitBreakerPolicy over consecutive
// sample failures. Once open it stays open until Reset.
type circuitBreakerPolicy struct {
	enabled bool
	// failureThreshold is the number of consecutive failures before opening the circuit
	failureThreshold int

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	lastFailureTime time.Time
	lastStateChange time.Time
}

// NewCircuitBreakerPolicy creates a new circuit breaker policy
func NewCircuitBreakerPolicy(enabled bool, failureThreshold int) CircuitBreakerPolicy {
	return &circuitBreakerPolicy{
		enabled:          enabled && failureThreshold > 0,
		failureThreshold: failureThreshold,
		state:            CircuitStateClosed,
		lastStateChange:  time.Now(),
	}
}

func (p *circuitBreakerPolicy) Enabled() bool {
	return p.enabled
}

func (p *circuitBreakerPolicy) Name() string {
	return "circuit_breaker"
}

func (p *circuitBreakerPolicy) RecordSuccess() {
	if !p.enabled {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == CircuitStateClosed {
		// Reset failure count on success
		p.failureCount = 0
	}
}

func (p *circuitBreakerPolicy) RecordFailure() {
	if !p.enabled {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.failureCount++
	p.lastFailureTime = time.Now()

	if p.state == CircuitStateClosed && p.failureCount >= p.failureThreshold {
		p.state = CircuitStateOpen
		p.lastStateChange = time.Now()
	}
}

func (p *circuitBreakerPolicy) GetState() CircuitState {
	if !p.enabled {
		return CircuitStateClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *circuitBreakerPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = CircuitStateClosed
	p.failureCount = 0
	p.lastStateChange = time.Now()
}
