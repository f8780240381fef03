package config

import (
	"fmt"
	"os"
	"strings"
)

// LoadRunFile loads and parses a run file
func LoadRunFile(path string) (*RunFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run file %s: %w", path, err)
	}
	rf, err := ParseRunFileYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse run file %s: %w", path, err)
	}
	return rf, nil
}

// validateRunFile performs validation on the run file
func validateRunFile(rf *RunFile) error {
	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[rf.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", rf.LogLevel)
	}

	if err := validateProblem(&rf.Problem); err != nil {
		return fmt.Errorf("problem validation failed: %w", err)
	}

	if strings.TrimSpace(rf.Strategy.Name) == "" {
		return fmt.Errorf("strategy name cannot be empty")
	}

	if err := validateRunner(&rf.Runner); err != nil {
		return fmt.Errorf("runner validation failed: %w", err)
	}

	if err := validateSimulator(&rf.Simulator); err != nil {
		return fmt.Errorf("simulator validation failed: %w", err)
	}

	if err := validateNotify(&rf.Notify); err != nil {
		return fmt.Errorf("notify validation failed: %w", err)
	}

	return nil
}

// validateProblem checks names and option values. Numeric bound checks and
// expression resolution happen when the problem spec is built.
func validateProblem(p *Problem) error {
	if len(p.Variables) == 0 {
		return fmt.Errorf("at least one variable must be defined")
	}

	validScalings := map[string]bool{
		"":       true,
		"none":   true,
		"linear": true,
		"log":    true,
		"power":  true,
		"log2":   true,
		"power2": true,
	}
	names := make(map[string]bool)
	for _, v := range p.Variables {
		if v.Name == "" {
			return fmt.Errorf("variable name cannot be empty")
		}
		if names[v.Name] {
			return fmt.Errorf("duplicate variable name: %s", v.Name)
		}
		names[v.Name] = true
		if !validScalings[strings.ToLower(v.Scaling)] {
			return fmt.Errorf("variable %s: invalid scaling %q", v.Name, v.Scaling)
		}
	}
	for name := range p.Fixed {
		if names[name] {
			return fmt.Errorf("fixed input %s shadows a decision variable", name)
		}
	}

	if len(p.Objectives) == 0 {
		return fmt.Errorf("at least one objective must be defined")
	}
	for i, o := range p.Objectives {
		if err := checkFormula("objective", o.Name, i, o.Expr, o.Func); err != nil {
			return err
		}
		if o.PenaltyScale != nil && *o.PenaltyScale < 0 {
			return fmt.Errorf("objective %s: penalty_scale cannot be negative", o.Name)
		}
	}

	validForms := map[string]bool{
		"linear":    true,
		"quadratic": true,
		"step":      true,
	}
	for i, c := range p.Constraints {
		if err := checkFormula("constraint", c.Name, i, c.Expr, c.Func); err != nil {
			return err
		}
		if !validForms[c.GetForm()] {
			return fmt.Errorf("constraint %s: invalid form %q (must be linear, quadratic, or step)", c.Name, c.Form)
		}
		if c.GetPenalty() < 0 {
			return fmt.Errorf("constraint %s: penalty cannot be negative", c.Name)
		}
	}

	if len(p.Samples) > 0 {
		rows := -1
		for name, col := range p.Samples {
			if len(col) == 0 {
				return fmt.Errorf("sample column %s is empty", name)
			}
			if names[name] {
				return fmt.Errorf("sample column %s shadows a decision variable", name)
			}
			if rows >= 0 && len(col) != rows {
				return fmt.Errorf("sample column %s has %d rows, expected %d", name, len(col), rows)
			}
			rows = len(col)
		}
	}

	return nil
}

func checkFormula(kind, name string, index int, expr, fn string) error {
	if name == "" {
		name = fmt.Sprintf("#%d", index)
	}
	if expr == "" && fn == "" {
		return fmt.Errorf("%s %s: one of expr or func is required", kind, name)
	}
	if expr != "" && fn != "" {
		return fmt.Errorf("%s %s: expr and func are mutually exclusive", kind, name)
	}
	return nil
}

// validateRunner validates pool and polling settings
func validateRunner(r *Runner) error {
	if r.Workers < 0 {
		return fmt.Errorf("workers cannot be negative")
	}
	if _, err := r.GetPollInterval(); err != nil {
		return err
	}
	if _, err := r.GetSlotTimeout(); err != nil {
		return err
	}
	if r.DispatchRate < 0 {
		return fmt.Errorf("dispatch_rate cannot be negative")
	}
	if r.Retries < 0 {
		return fmt.Errorf("retries cannot be negative")
	}
	if r.RetryBackoff != "" {
		validBackoffs := map[string]bool{
			"exponential":        true,
			"exponential-jitter": true,
			"linear":             true,
			"constant":           true,
		}
		if !validBackoffs[r.RetryBackoff] {
			return fmt.Errorf("invalid retry_backoff: %s", r.RetryBackoff)
		}
	}
	if r.RetryBaseMs < 0 {
		return fmt.Errorf("retry_base_ms cannot be negative")
	}
	if r.FailureThreshold < 0 {
		return fmt.Errorf("failure_threshold cannot be negative")
	}
	return nil
}

// validateSimulator ensures exactly one execution backend is configured
func validateSimulator(s *Simulator) error {
	hasCommand := len(s.Command) > 0
	hasRemote := s.Remote != ""
	if hasCommand == hasRemote {
		return fmt.Errorf("exactly one of command or remote must be set")
	}
	if hasCommand && strings.TrimSpace(s.Command[0]) == "" {
		return fmt.Errorf("command program cannot be empty")
	}
	for _, kv := range s.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("env entry %q must be KEY=VALUE", kv)
		}
	}
	for name, path := range s.OutputPaths {
		if name == "" || path == "" {
			return fmt.Errorf("output_paths entries need a name and a path")
		}
	}
	if _, err := s.GetCallTimeout(); err != nil {
		return err
	}
	return nil
}

// validateNotify checks the callback settings when a URL is configured
func validateNotify(n *Notify) error {
	if n.URL == "" {
		return nil
	}
	if !strings.HasPrefix(n.URL, "http://") && !strings.HasPrefix(n.URL, "https://") {
		return fmt.Errorf("url must be http or https: %s", n.URL)
	}
	if n.GetMaxRetries() < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}
	if _, err := n.GetTimeout(); err != nil {
		return err
	}
	return nil
}
