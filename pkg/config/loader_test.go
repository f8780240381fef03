package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadRunFile(t *testing.T) {
	rf, err := LoadRunFile("../../config/run.yaml")
	if err != nil {
		t.Fatalf("Failed to load run file: %v", err)
	}

	if rf.LogLevel != "info" {
		t.Errorf("Expected log level 'info', got '%s'", rf.LogLevel)
	}
	if len(rf.Problem.Variables) != 2 {
		t.Fatalf("Expected 2 variables, got %d", len(rf.Problem.Variables))
	}
	if rf.Problem.Variables[0].Default == nil || *rf.Problem.Variables[0].Default != 8 {
		t.Errorf("Expected default 8 for x0")
	}
	if rf.Strategy.Name != "pattern-search" {
		t.Errorf("Expected strategy pattern-search, got %s", rf.Strategy.Name)
	}
	if rf.Strategy.Options["itmax"] != 50 {
		t.Errorf("Expected itmax option 50, got %v", rf.Strategy.Options["itmax"])
	}
	if rf.Runner.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", rf.Runner.Workers)
	}
	poll, err := rf.Runner.GetPollInterval()
	if err != nil || poll != 500*time.Millisecond {
		t.Errorf("Expected poll interval 500ms, got %v (%v)", poll, err)
	}
	timeout, err := rf.Runner.GetSlotTimeout()
	if err != nil || timeout != 30*time.Second {
		t.Errorf("Expected slot timeout 30s, got %v (%v)", timeout, err)
	}
	if rf.Runner.GetRetryBase() != 100*time.Millisecond {
		t.Errorf("Expected retry base 100ms, got %v", rf.Runner.GetRetryBase())
	}
	if len(rf.Simulator.Command) != 2 {
		t.Errorf("Expected simulator command, got %v", rf.Simulator.Command)
	}
}

func TestLoadRunFileMissing(t *testing.T) {
	_, err := LoadRunFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read run file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestLoadRunFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("strategy: {name: bfgs}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := LoadRunFile(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse run file") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestSimulatorValidation(t *testing.T) {
	tests := []struct {
		name    string
		sim     Simulator
		wantErr string
	}{
		{name: "command", sim: Simulator{Command: []string{"sim"}, Env: []string{"MODE=fast"}}},
		{name: "remote", sim: Simulator{Remote: "localhost:50052", CallTimeout: "5s"}},
		{name: "bad env", sim: Simulator{Command: []string{"sim"}, Env: []string{"MODE"}}, wantErr: "KEY=VALUE"},
		{name: "empty output path", sim: Simulator{Command: []string{"sim"}, OutputPaths: map[string]string{"y": ""}}, wantErr: "output_paths"},
		{name: "bad call timeout", sim: Simulator{Remote: "x:1", CallTimeout: "soon"}, wantErr: "invalid call_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSimulator(&tt.sim)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNotifyValidation(t *testing.T) {
	negative := -1
	tests := []struct {
		name    string
		notify  Notify
		wantErr string
	}{
		{name: "disabled", notify: Notify{}},
		{name: "valid", notify: Notify{URL: "https://example.com/runs/{run_id}", Timeout: "2s"}},
		{name: "bad scheme", notify: Notify{URL: "ftp://example.com"}, wantErr: "http or https"},
		{name: "negative retries", notify: Notify{URL: "http://localhost", MaxRetries: &negative}, wantErr: "max_retries"},
		{name: "bad timeout", notify: Notify{URL: "http://localhost", Timeout: "0s"}, wantErr: "timeout must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateNotify(&tt.notify)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
