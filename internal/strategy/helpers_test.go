package strategy

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/batch"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/evaluator"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/expr"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/problem"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/progress"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/logger"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

// shiftedBowl is minimized at (3, 7) with value 0
func shiftedBowl(x0, x1 float64) float64 {
	return (x0-3)*(x0-3) + (x1-7)*(x1-7)
}

func bowlSpec() *problem.Spec {
	return &problem.Spec{
		Variables: []problem.DecisionVariable{
			{Name: "x0", Min: 0, Max: 10, Default: 5, Scaling: problem.ScaleLinear},
			{Name: "x1", Min: 0, Max: 10, Default: 5, Scaling: problem.ScaleLinear},
		},
		Objectives: []problem.Objective{{
			Name:         "y",
			Expr:         expr.MustCompile("f.y", []string{"x0", "x1"}, []string{"y"}),
			Fail:         1000,
			PenaltyScale: 1,
		}},
	}
}

func bowlSimulator() batch.SimulatorFunc {
	return func(_ context.Context, in map[string]float64) (*models.SampleResult, error) {
		return &models.SampleResult{Outputs: map[string]float64{"y": shiftedBowl(in["x0"], in["x1"])}}, nil
	}
}

// harness wires a strategy to a real runner over a local executor and
// collects every published event
type harness struct {
	rc     *RunContext
	ch     *progress.Channel
	wg     sync.WaitGroup
	mu     sync.Mutex
	events []progress.Event
}

func newHarness(t *testing.T, spec *problem.Spec, sim batch.Simulator) *harness {
	t.Helper()
	h := &harness{ch: progress.NewChannel(context.Background(), 16)}
	exec := batch.NewLocalExecutor(sim, batch.LocalConfig{Workers: 4, Log: logger.Discard()})
	runner := batch.NewRunner(exec, batch.Config{
		RunID:        "run-test",
		PollInterval: time.Millisecond,
		Progress:     h.ch,
		Log:          logger.Discard(),
	})
	h.rc = &RunContext{
		RunID:     "run-test",
		Spec:      spec,
		Evaluator: evaluator.New(spec, logger.Discard()),
		Runner:    runner,
		Progress:  h.ch,
		Log:       logger.Discard(),
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for ev := range h.ch.Events() {
			h.mu.Lock()
			h.events = append(h.events, ev)
			h.mu.Unlock()
		}
	}()
	t.Cleanup(h.close)
	return h
}

func (h *harness) close() {
	h.ch.Close()
	h.wg.Wait()
}

func (h *harness) run(t *testing.T, s Strategy, opts Options) (*Outcome, error) {
	t.Helper()
	if err := s.Configure(opts); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return s.Run(context.Background(), h.rc)
}

// collected closes the channel and returns all events in publish order
func (h *harness) collected() []progress.Event {
	h.close()
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events
}

func iterationUpdates(events []progress.Event) []progress.IterationUpdate {
	var out []progress.IterationUpdate
	for _, ev := range events {
		if it, ok := ev.(progress.IterationUpdate); ok {
			out = append(out, it)
		}
	}
	return out
}

func bestUpdates(events []progress.Event) []progress.BestUpdate {
	var out []progress.BestUpdate
	for _, ev := range events {
		if b, ok := ev.(progress.BestUpdate); ok {
			out = append(out, b)
		}
	}
	return out
}

// assertMonotone checks best-so-far never increases and iterations count up
func assertMonotone(t *testing.T, its []progress.IterationUpdate) {
	t.Helper()
	for i := 1; i < len(its); i++ {
		if its[i].Best > its[i-1].Best {
			t.Fatalf("best-so-far increased at iteration %d: %g -> %g", its[i].Iteration, its[i-1].Best, its[i].Best)
		}
		if its[i].Iteration != its[i-1].Iteration+1 {
			t.Fatalf("iterations out of order: %d after %d", its[i].Iteration, its[i-1].Iteration)
		}
	}
}

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func simFunc(f func(context.Context, map[string]float64) (*models.SampleResult, error)) batch.Simulator {
	return batch.SimulatorFunc(f)
}
