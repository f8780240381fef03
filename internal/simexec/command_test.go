package simexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/batch"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/config"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/logger"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

// TestHelperProcess is the simulated program. It only runs when started by
// helperCommand.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("SIMEXEC_HELPER") != "1" {
		return
	}
	mode := os.Args[len(os.Args)-1]

	var req struct {
		Inputs map[string]float64 `json:"inputs"`
	}
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		fmt.Fprintln(os.Stderr, "bad stdin:", err)
		os.Exit(3)
	}
	x := req.Inputs["x"]

	switch mode {
	case "square":
		fmt.Printf(`{"outputs": {"y": %g, "x": %g}}`, x*x, x)
	case "nested":
		fmt.Printf(`{"result": {"cost": %g}, "runs": [{"t": 4.5}]}`, 2*x)
	case "failcode":
		fmt.Print(`{"outputs": null, "error_code": 3, "message": "did not converge"}`)
	case "text":
		fmt.Print(`{"outputs": {"y": "high"}}`)
	case "garbage":
		fmt.Print("not json")
	case "crash":
		fmt.Fprint(os.Stderr, "segfault in solver")
		os.Exit(2)
	case "env":
		fmt.Printf(`{"outputs": {"mode": %s}}`, os.Getenv("SIM_MODE"))
	case "hang":
		time.Sleep(time.Minute)
	}
	os.Exit(0)
}

func helperCommand(mode string) *Command {
	return &Command{
		Program: os.Args[0],
		Args:    []string{"-test.run=TestHelperProcess", "--", mode},
		Env:     []string{"SIMEXEC_HELPER=1"},
	}
}

func TestCommandReadsOutputsObject(t *testing.T) {
	res, err := helperCommand("square").Simulate(context.Background(), map[string]float64{"x": 3})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if res.ErrorCode != models.ErrCodeNone || res.Outputs["y"] != 9 || res.Outputs["x"] != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCommandOutputPaths(t *testing.T) {
	cmd := helperCommand("nested")
	cmd.OutputPaths = map[string]string{"cost": "$.result.cost", "t": "$.runs[0].t"}

	res, err := cmd.Simulate(context.Background(), map[string]float64{"x": 1.5})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if res.Outputs["cost"] != 3 || res.Outputs["t"] != 4.5 {
		t.Fatalf("unexpected outputs %v", res.Outputs)
	}

	cmd.OutputPaths = map[string]string{"missing": "result.nope"}
	if _, err := cmd.Simulate(context.Background(), map[string]float64{"x": 1}); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected missing path error, got %v", err)
	}
}

func TestCommandReportedFailure(t *testing.T) {
	res, err := helperCommand("failcode").Simulate(context.Background(), map[string]float64{"x": 1})
	if err != nil {
		t.Fatalf("a reported error code is a result, not an error: %v", err)
	}
	if res.ErrorCode != 3 || res.Message != "did not converge" || res.Outputs != nil {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		mode    string
		wantErr string
	}{
		{mode: "garbage", wantErr: "not valid JSON"},
		{mode: "text", wantErr: "not a number"},
		{mode: "crash", wantErr: "segfault in solver"},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			_, err := helperCommand(tt.mode).Simulate(context.Background(), map[string]float64{"x": 1})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCommandEnvironment(t *testing.T) {
	cmd := helperCommand("env")
	cmd.Env = append(cmd.Env, "SIM_MODE=7")
	res, err := cmd.Simulate(context.Background(), map[string]float64{"x": 1})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if res.Outputs["mode"] != 7 {
		t.Fatalf("expected mode 7, got %v", res.Outputs)
	}
}

func TestCommandHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := helperCommand("hang").Simulate(ctx, map[string]float64{"x": 1})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("killed program took %s to return", elapsed)
	}
}

func TestCommandInLocalExecutor(t *testing.T) {
	exec := batch.NewLocalExecutor(helperCommand("square"), batch.LocalConfig{Workers: 2, Log: logger.Discard()})
	r := batch.NewRunner(exec, batch.Config{PollInterval: 5 * time.Millisecond, Log: logger.Discard()})

	reqs := make([]models.SampleRequest, 3)
	for i := range reqs {
		reqs[i] = models.SampleRequest{Slot: i, Inputs: map[string]float64{"x": float64(i + 1)}}
	}
	job, err := r.Run(context.Background(), 1, reqs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, res := range job.Results() {
		want := float64((i + 1) * (i + 1))
		if res.Failed() || res.Outputs["y"] != want {
			t.Fatalf("slot %d: expected y=%g, got %+v", i, want, res)
		}
	}
}

func TestFromConfig(t *testing.T) {
	if _, err := FromConfig(config.Simulator{Remote: "x:1"}); err == nil {
		t.Fatal("expected error without a command")
	}
	cmd, err := FromConfig(config.Simulator{Command: []string{"python3", "sim.py", "--fast"}, Dir: "/tmp"})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if cmd.Program != "python3" || len(cmd.Args) != 2 || cmd.Dir != "/tmp" {
		t.Fatalf("unexpected command %+v", cmd)
	}
}
