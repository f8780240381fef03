package config

import (
	"fmt"
	"time"
)

// RunFile represents one optimization run request
type RunFile struct {
	LogLevel  string    `yaml:"log_level"`
	Problem   Problem   `yaml:"problem"`
	Strategy  Strategy  `yaml:"strategy"`
	Runner    Runner    `yaml:"runner"`
	Simulator Simulator `yaml:"simulator"`
	RestartIn string    `yaml:"restart_in,omitempty"`
	Notify    Notify    `yaml:"notify,omitempty"`
}

// Problem describes decision variables, objectives and constraints
type Problem struct {
	Variables   []Variable           `yaml:"variables"`
	Objectives  []Objective          `yaml:"objectives"`
	Constraints []Constraint         `yaml:"constraints,omitempty"`
	Fixed       map[string]float64   `yaml:"fixed,omitempty"`
	Samples     map[string][]float64 `yaml:"samples,omitempty"` // ensemble sample table, one column per input
	Outputs     []string             `yaml:"outputs,omitempty"` // declared simulator outputs; enables f.* checks
}

// Variable represents a decision variable in physical units
type Variable struct {
	Name    string   `yaml:"name"`
	Min     float64  `yaml:"min"`
	Max     float64  `yaml:"max"`
	Default *float64 `yaml:"default,omitempty"`
	Scaling string   `yaml:"scaling,omitempty"` // none, linear, log, power, log2, power2
}

// Objective represents one minimized objective. Exactly one of Expr or Func is set.
type Objective struct {
	Name         string   `yaml:"name"`
	Expr         string   `yaml:"expr,omitempty"`
	Func         string   `yaml:"func,omitempty"`
	Fail         *float64 `yaml:"fail,omitempty"`
	PenaltyScale *float64 `yaml:"penalty_scale,omitempty"`
}

// Constraint represents an inequality constraint g(x) <= 0
type Constraint struct {
	Name    string   `yaml:"name"`
	Expr    string   `yaml:"expr,omitempty"`
	Func    string   `yaml:"func,omitempty"`
	Penalty *float64 `yaml:"penalty,omitempty"`
	Form    string   `yaml:"form,omitempty"` // linear, quadratic, step
}

// Strategy names the solver and carries its option map
type Strategy struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options,omitempty"`
}

// Runner configures the sample batch runner and its worker pool
type Runner struct {
	Workers          int     `yaml:"workers"`
	PollInterval     string  `yaml:"poll_interval"` // e.g., "2s"
	DispatchRate     float64 `yaml:"dispatch_rate,omitempty"`
	SlotTimeout      string  `yaml:"slot_timeout,omitempty"`
	Retries          int     `yaml:"retries,omitempty"`
	RetryBackoff     string  `yaml:"retry_backoff,omitempty"` // exponential, linear, constant
	RetryBaseMs      int     `yaml:"retry_base_ms,omitempty"`
	FailureThreshold int     `yaml:"failure_threshold,omitempty"`
	ProgressBuffer   int     `yaml:"progress_buffer,omitempty"`
}

// Simulator selects how samples are executed: a local command or a remote worker
type Simulator struct {
	Command []string `yaml:"command,omitempty"`
	Dir     string   `yaml:"dir,omitempty"`
	Env     []string `yaml:"env,omitempty"` // KEY=VALUE entries added to the environment
	// OutputPaths maps output names to JSON paths in the command's stdout.
	// Empty reads every number of the top-level "outputs" object.
	OutputPaths map[string]string `yaml:"output_paths,omitempty"`
	Remote      string            `yaml:"remote,omitempty"`
	CallTimeout string            `yaml:"call_timeout,omitempty"`
}

// Notify configures the run completion callback
type Notify struct {
	URL        string `yaml:"url,omitempty"` // {run_id} is replaced by the run id
	Secret     string `yaml:"secret,omitempty"`
	MaxRetries *int   `yaml:"max_retries,omitempty"`
	Timeout    string `yaml:"timeout,omitempty"`
}

// GetMaxRetries returns the number of callback retries
func (n *Notify) GetMaxRetries() int {
	if n.MaxRetries == nil {
		return DefaultNotifyRetries
	}
	return *n.MaxRetries
}

// GetTimeout parses the per-request callback timeout
func (n *Notify) GetTimeout() (time.Duration, error) {
	if n.Timeout == "" {
		return DefaultNotifyTimeout, nil
	}
	return parsePositiveDuration("timeout", n.Timeout)
}

// Defaults applied when a field is omitted
const (
	DefaultFailValue      = 1000.0
	DefaultPenaltyScale   = 1.0
	DefaultPenaltyWeight  = 100.0
	DefaultPenaltyForm    = "linear"
	DefaultPollInterval   = 2 * time.Second
	DefaultProgressBuffer = 64
	DefaultNotifyRetries  = 3
	DefaultNotifyTimeout  = 10 * time.Second
)

// GetPollInterval parses the poll interval, falling back to DefaultPollInterval
func (r *Runner) GetPollInterval() (time.Duration, error) {
	if r.PollInterval == "" {
		return DefaultPollInterval, nil
	}
	return parsePositiveDuration("poll_interval", r.PollInterval)
}

// GetSlotTimeout parses the per-slot timeout; zero disables it
func (r *Runner) GetSlotTimeout() (time.Duration, error) {
	if r.SlotTimeout == "" {
		return 0, nil
	}
	return parsePositiveDuration("slot_timeout", r.SlotTimeout)
}

// GetRetryBase returns the base retry delay
func (r *Runner) GetRetryBase() time.Duration {
	return time.Duration(r.RetryBaseMs) * time.Millisecond
}

// GetProgressBuffer returns the progress channel capacity
func (r *Runner) GetProgressBuffer() int {
	if r.ProgressBuffer <= 0 {
		return DefaultProgressBuffer
	}
	return r.ProgressBuffer
}

// GetFail returns the objective fail value
func (o *Objective) GetFail() float64 {
	if o.Fail == nil {
		return DefaultFailValue
	}
	return *o.Fail
}

// GetPenaltyScale returns the multiplier applied to the constraint penalty total
func (o *Objective) GetPenaltyScale() float64 {
	if o.PenaltyScale == nil {
		return DefaultPenaltyScale
	}
	return *o.PenaltyScale
}

// GetPenalty returns the constraint penalty weight
func (c *Constraint) GetPenalty() float64 {
	if c.Penalty == nil {
		return DefaultPenaltyWeight
	}
	return *c.Penalty
}

// GetForm returns the penalty form
func (c *Constraint) GetForm() string {
	if c.Form == "" {
		return DefaultPenaltyForm
	}
	return c.Form
}

// GetCallTimeout parses the remote call timeout; zero uses the client default
func (s *Simulator) GetCallTimeout() (time.Duration, error) {
	if s.CallTimeout == "" {
		return 0, nil
	}
	return parsePositiveDuration("call_timeout", s.CallTimeout)
}

func parsePositiveDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return d, nil
}
