// Package coordinator starts and supervises optimization runs. A
// Coordinator owns at most one active run, executed on its own goroutine.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/batch"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/evaluator"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/metrics"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/policy"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/problem"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/progress"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/strategy"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/config"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/logger"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/utils"
)

var (
	ErrRunActive = errors.New("an optimization run is already active")
	ErrNoRun     = errors.New("no optimization run has been started")
)

// Config wires a Coordinator to its collaborators
type Config struct {
	// Registry resolves strategy names; nil uses strategy.DefaultRegistry
	Registry *strategy.Registry
	Executor batch.Executor
	Runner   config.Runner
	Metrics  *metrics.Recorder
	Clock    utils.Clock
	Log      *slog.Logger
}

// Request describes one run
type Request struct {
	Strategy string
	Problem  *problem.Spec
	Options  strategy.Options
	// RestartIn resumes from a checkpoint written by a previous run
	RestartIn string
	// Initial is the starting point in physical units; empty uses the
	// variable defaults
	Initial []float64
}

// Result is the final report of a run. Best-so-far, the iteration count and
// the status are always set, also when the run failed.
type Result struct {
	RunID      string
	Strategy   string
	Status     models.RunStatus
	Best       float64
	BestX      []float64
	BestScaled []float64
	Objectives []float64
	Iterations int
	Samples    int
	Errors     int
	Converged  bool
	Reason     string
	Elapsed    time.Duration
	Err        error
}

// Run is the handle of a started run
type Run struct {
	ID       string
	progress *progress.Channel
	cancel   context.CancelFunc
	done     chan struct{}
	result   *Result
}

// Events streams the run's progress. The stream is closed when the run
// ends. Callers that do not consume events must call Detach.
func (r *Run) Events() <-chan progress.Event {
	return r.progress.Events()
}

// Detach declares that nobody reads Events
func (r *Run) Detach() {
	r.progress.Detach()
}

// Stop requests cooperative cancellation
func (r *Run) Stop() {
	r.cancel()
}

// Done is closed once the result is available
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run has ended or ctx is done
func (r *Run) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-r.done:
		return r.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Coordinator runs one optimization at a time
type Coordinator struct {
	cfg Config

	mu     sync.Mutex
	active *Run
	last   *Run
}

// New creates a coordinator
func New(cfg Config) *Coordinator {
	if cfg.Registry == nil {
		cfg.Registry = strategy.DefaultRegistry()
	}
	if cfg.Clock == nil {
		cfg.Clock = utils.RealClock{}
	}
	if cfg.Log == nil {
		cfg.Log = logger.Default
	}
	return &Coordinator{cfg: cfg}
}

// Start validates req and launches the run on a dedicated goroutine.
// Validation failures are configuration errors and leave no run behind.
func (c *Coordinator) Start(req Request) (*Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil, ErrRunActive
	}
	if c.cfg.Executor == nil {
		return nil, models.NewConfigurationError("no simulation executor configured")
	}
	if req.Problem == nil {
		return nil, models.NewConfigurationError("problem is required")
	}

	strat, err := c.cfg.Registry.New(req.Strategy)
	if err != nil {
		return nil, err
	}
	if err := req.Problem.Validate(strat.MinVars(), strat.MaxVars(), false); err != nil {
		return nil, err
	}
	if len(req.Initial) > 0 && len(req.Initial) != req.Problem.Dim() {
		return nil, models.NewConfigurationError("initial point has %d values, problem has %d variables", len(req.Initial), req.Problem.Dim())
	}

	opts := strategy.Options{}
	for k, v := range req.Options {
		opts[k] = v
	}
	if req.RestartIn != "" {
		opts["restart_in"] = req.RestartIn
	}
	if err := strat.Configure(opts); err != nil {
		return nil, err
	}

	pollInterval, err := c.cfg.Runner.GetPollInterval()
	if err != nil {
		return nil, models.NewRunError(models.ErrConfiguration, err)
	}

	runID := utils.GenerateRunID()
	log := c.cfg.Log.With("run_id", runID)
	ctx, cancel := context.WithCancel(context.Background())
	ch := progress.NewChannel(ctx, c.cfg.Runner.GetProgressBuffer())
	runner := batch.NewRunner(c.cfg.Executor, batch.Config{
		RunID:        runID,
		PollInterval: pollInterval,
		Clock:        c.cfg.Clock,
		Breaker:      policy.NewPolicyManager(c.cfg.Runner).GetCircuitBreaker(),
		Metrics:      c.cfg.Metrics,
		Progress:     ch,
		Log:          log,
	})

	initial := req.Problem.InitialPoint()
	if len(req.Initial) > 0 {
		initial = req.Problem.ScaleVector(req.Initial)
	}

	run := &Run{ID: runID, progress: ch, cancel: cancel, done: make(chan struct{})}
	rc := &strategy.RunContext{
		RunID:     runID,
		Spec:      req.Problem,
		Initial:   initial,
		Evaluator: evaluator.New(req.Problem, log),
		Runner:    runner,
		Progress:  ch,
		Metrics:   c.cfg.Metrics,
		Log:       log,
	}

	c.active = run
	c.last = run
	log.Info("run started", "strategy", strat.Name(), "variables", req.Problem.Dim(), "ensemble", req.Problem.EnsembleSize())
	go c.execute(ctx, run, strat, rc)
	return run, nil
}

// Stop requests cooperative cancellation of the active run. The worker is
// never interrupted; it notices the stop at its next check point.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	run := c.active
	c.mu.Unlock()
	if run != nil {
		run.Stop()
	}
}

// Active reports whether a run is in progress
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Progress returns the event stream of the active or most recent run
func (c *Coordinator) Progress() <-chan progress.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	return c.last.Events()
}

// Wait blocks until the active or most recent run has ended
func (c *Coordinator) Wait(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	run := c.last
	c.mu.Unlock()
	if run == nil {
		return nil, ErrNoRun
	}
	return run.Wait(ctx)
}

func (c *Coordinator) execute(ctx context.Context, run *Run, strat strategy.Strategy, rc *strategy.RunContext) {
	started := c.cfg.Clock.Now()
	var (
		outcome *strategy.Outcome
		err     error
	)

	defer func() {
		if r := recover(); r != nil {
			rc.Log.Error("strategy panicked", "panic", r, "stack", string(debug.Stack()))
			err = models.NewStrategyError("panic: %v", r)
		}
		res := c.result(run.ID, strat.Name(), rc, outcome, err)
		res.Elapsed = c.cfg.Clock.Since(started)
		c.finish(run, res, rc.Log)
	}()

	outcome, err = strat.Run(ctx, rc)
}

func (c *Coordinator) result(runID, name string, rc *strategy.RunContext, outcome *strategy.Outcome, err error) *Result {
	res := &Result{
		RunID:    runID,
		Strategy: name,
		Status:   models.StatusFromError(err),
		Best:     math.Inf(1),
		Err:      err,
	}
	res.Samples, res.Errors = rc.Runner.Totals()
	if outcome == nil {
		return res
	}

	res.Best = outcome.Best
	res.Objectives = outcome.Objectives
	res.Iterations = outcome.Iterations
	res.Converged = outcome.Converged
	res.Reason = outcome.Reason
	if len(outcome.BestX) == rc.Spec.Dim() {
		res.BestScaled = outcome.BestX
		res.BestX = rc.Spec.UnscaleVector(outcome.BestX)
	}
	return res
}

func (c *Coordinator) finish(run *Run, res *Result, log *slog.Logger) {
	run.result = res
	run.progress.Close()
	run.cancel()

	c.mu.Lock()
	if c.active == run {
		c.active = nil
	}
	c.mu.Unlock()
	close(run.done)

	attrs := []any{
		"status", res.Status, "best", res.Best, "iterations", res.Iterations,
		"samples", res.Samples, "errors", res.Errors, "elapsed", res.Elapsed,
	}
	if res.Err != nil {
		log.Warn("run ended", append(attrs, "error", res.Err)...)
		return
	}
	log.Info("run finished", append(attrs, "reason", res.Reason)...)
}

// String renders a one-line summary for terminal output
func (r *Result) String() string {
	return fmt.Sprintf("run %s: %s after %d iteration(s), best %g at %v", r.RunID, r.Status, r.Iterations, r.Best, r.BestX)
}
