package policy

import (
	"time"

	"github.com/GoSim-25-26J-441/optimization-driver/pkg/config"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/utils"
)

// retryPolicy implements RetryPolicy
type retryPolicy struct {
	enabled    bool
	maxRetries int
	backoff    utils.BackoffStrategy
}

// NewRetryPolicyFromConfig creates a retry policy from runner config
func NewRetryPolicyFromConfig(cfg config.Runner) RetryPolicy {
	return NewRetryPolicy(cfg.Retries > 0, cfg.Retries, cfg.RetryBackoff, cfg.GetRetryBase())
}

// NewRetryPolicy creates a retry policy with explicit parameters
func NewRetryPolicy(enabled bool, maxRetries int, backoff string, base time.Duration) RetryPolicy {
	return &retryPolicy{
		enabled:    enabled,
		maxRetries: maxRetries,
		backoff:    utils.NewBackoff(backoff, base, 0),
	}
}

func (p *retryPolicy) Enabled() bool {
	return p.enabled
}

func (p *retryPolicy) Name() string {
	return "retry"
}

// ShouldRetry retries transport errors and failed samples. Samples that ran
// out of time are not retried since the same budget would apply again.
func (p *retryPolicy) ShouldRetry(attempt int, res *models.SampleResult, err error) bool {
	if !p.enabled {
		return false
	}
	if attempt > p.maxRetries {
		return false
	}
	if err != nil {
		return true
	}
	if res != nil && (res.Status == models.SampleTimeout || res.ErrorCode == models.ErrCodeTimeout) {
		return false
	}
	return res.Failed()
}

func (p *retryPolicy) GetBackoffDuration(attempt int) time.Duration {
	if !p.enabled || attempt <= 0 {
		return 0
	}
	return p.backoff.NextDelay(attempt)
}

func (p *retryPolicy) GetMaxRetries() int {
	return p.maxRetries
}
