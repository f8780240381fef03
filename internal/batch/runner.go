package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/metrics"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/policy"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/progress"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/logger"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/utils"
)

var (
	// ErrBatchActive is returned when a batch is submitted while another is running
	ErrBatchActive = errors.New("a batch is already active")
	// ErrBackendDown is the cause reported when the circuit breaker opens
	ErrBackendDown = errors.New("simulation backend failure threshold reached")
	// ErrBatchFinished is returned when waiting on a batch that already ended
	ErrBatchFinished = errors.New("batch already finished")
)

// DefaultPollInterval matches the interval between status checks of the
// execution backend
const DefaultPollInterval = 2 * time.Second

// Config configures a Runner
type Config struct {
	RunID        string
	PollInterval time.Duration
	// TimeBudget bounds the cumulative wall-clock time of all batches of the
	// run. Zero disables the budget.
	TimeBudget time.Duration
	Clock      utils.Clock
	Breaker    policy.CircuitBreakerPolicy
	Metrics    *metrics.Recorder
	Progress   *progress.Channel
	Log        *slog.Logger
}

// Runner executes batches one at a time on behalf of a single run worker.
// It is not safe for concurrent use.
type Runner struct {
	exec Executor
	cfg  Config

	active      *Job
	elapsed     time.Duration
	cumFinished int
	cumErrors   int
	batches     int
}

// NewRunner creates a runner over exec
func NewRunner(exec Executor, cfg Config) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = utils.RealClock{}
	}
	if cfg.Log == nil {
		cfg.Log = logger.Default
	}
	return &Runner{exec: exec, cfg: cfg}
}

// SetTimeBudget replaces the cumulative time budget. Zero disables it.
func (r *Runner) SetTimeBudget(d time.Duration) {
	r.cfg.TimeBudget = d
}

// Elapsed returns the cumulative time spent in batches so far
func (r *Runner) Elapsed() time.Duration {
	return r.elapsed
}

// Totals returns the cumulative finished and failed sample counts
func (r *Runner) Totals() (finished, errs int) {
	return r.cumFinished, r.cumErrors
}

// Handle tracks one dispatched batch
type Handle struct {
	job  *Job
	exec Execution
	last int
}

// Job returns the batch job behind the handle
func (h *Handle) Job() *Job {
	return h.job
}

// Run submits reqs and waits for the batch to reach a terminal state. The
// returned job is non-nil whenever the batch was dispatched, including when
// the error reports cancellation, timeout or a backend failure.
func (r *Runner) Run(ctx context.Context, iteration int, reqs []models.SampleRequest) (*Job, error) {
	h, err := r.Submit(ctx, iteration, reqs)
	if err != nil {
		return nil, err
	}
	return h.job, r.Wait(ctx, h)
}

// Submit dispatches a batch and returns without waiting for results. Stop
// and timeout are checked before anything is dispatched.
func (r *Runner) Submit(ctx context.Context, iteration int, reqs []models.SampleRequest) (*Handle, error) {
	if r.active != nil {
		return nil, ErrBatchActive
	}
	if err := ctx.Err(); err != nil {
		return nil, models.NewRunError(models.ErrCancelled, err)
	}
	if r.budgetExhausted(0) {
		return nil, models.NewRunError(models.ErrTimeout, fmt.Errorf("spent %s of %s", r.elapsed, r.cfg.TimeBudget))
	}

	r.batches++
	job := NewJob(utils.GenerateBatchID(r.cfg.RunID, r.batches), iteration, reqs)
	job.state = StateSubmitted
	job.started = r.cfg.Clock.Now()

	exec, err := r.exec.Submit(ctx, job.ID, reqs)
	if err != nil {
		job.state = StateAborted
		job.ended = r.cfg.Clock.Now()
		return nil, models.NewRunError(models.ErrExecution, fmt.Errorf("submit batch %s: %w", job.ID, err))
	}

	job.state = StateRunning
	r.active = job
	r.cfg.Log.Debug("batch submitted", "batch_id", job.ID, "iteration", iteration, "samples", len(reqs))
	return &Handle{job: job, exec: exec, last: -1}, nil
}

// Poll drains newly completed slots into the job and emits a progress
// update when the finished count changed.
func (r *Runner) Poll(h *Handle) {
	for _, sr := range h.exec.Drain() {
		if !h.job.record(sr.Slot, sr.Result) {
			continue
		}
		r.observeSlot(h.job, sr)
	}
	if h.job.finished != h.last {
		h.last = h.job.finished
		r.publish(h.job)
	}
}

// Wait polls h at the configured interval until the batch finishes, the
// context is cancelled, the time budget runs out or the backend fails.
func (r *Runner) Wait(ctx context.Context, h *Handle) error {
	if h.job.state.Terminal() {
		return ErrBatchFinished
	}
	for {
		running := h.exec.IsRunning()
		r.Poll(h)

		if fatal := h.exec.Status().Fatal; fatal != nil {
			r.finalize(h, StateAborted)
			return models.NewRunError(models.ErrExecution, fatal)
		}
		if r.cfg.Breaker != nil && r.cfg.Breaker.GetState() == policy.CircuitStateOpen {
			r.finalize(h, StateAborted)
			return models.NewRunError(models.ErrExecution, ErrBackendDown)
		}
		if !running {
			r.finalize(h, StateCompleted)
			return nil
		}
		if err := ctx.Err(); err != nil {
			r.finalize(h, StateCancelled)
			return models.NewRunError(models.ErrCancelled, err)
		}
		if r.budgetExhausted(r.cfg.Clock.Since(h.job.started)) {
			r.finalize(h, StateTimedOut)
			return models.NewRunError(models.ErrTimeout, fmt.Errorf("batch %s exceeded cumulative budget %s", h.job.ID, r.cfg.TimeBudget))
		}

		select {
		case <-ctx.Done():
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

// finalize moves the job to a terminal state. Non-completed batches are
// terminated and their unfinished slots left nil.
func (r *Runner) finalize(h *Handle, state State) {
	job := h.job
	if state != StateCompleted {
		h.exec.Terminate()
		r.Poll(h)
	}
	unfinished := job.seal()

	job.state = state
	job.ended = r.cfg.Clock.Now()
	r.elapsed += job.ended.Sub(job.started)
	r.cumFinished += job.finished
	r.cumErrors += job.errors
	r.active = nil

	r.publishTotals(job)
	r.cfg.Metrics.ObserveBatch(string(state), job.Duration())

	log := r.cfg.Log.With("batch_id", job.ID, "iteration", job.Iteration)
	if state == StateCompleted {
		log.Debug("batch completed", "finished", job.finished, "errors", job.errors, "duration", job.Duration())
		return
	}
	log.Warn("batch ended early", "state", state, "finished", job.finished, "errors", job.errors, "unfinished", unfinished)
}

func (r *Runner) observeSlot(job *Job, sr SlotResult) {
	status := "missing"
	var d time.Duration
	if sr.Result != nil {
		status = string(sr.Result.Status)
		d = sr.Result.Duration
	}
	r.cfg.Metrics.ObserveSample(status, d)

	if sr.Result.Failed() {
		if r.cfg.Breaker != nil {
			r.cfg.Breaker.RecordFailure()
		}
		attrs := []any{"batch_id", job.ID, "slot", sr.Slot}
		if sr.Result != nil {
			attrs = append(attrs, "error_code", sr.Result.ErrorCode, "message", sr.Result.Message)
		}
		r.cfg.Log.Warn("sample failed", attrs...)
		return
	}
	if r.cfg.Breaker != nil {
		r.cfg.Breaker.RecordSuccess()
	}
}

func (r *Runner) publish(job *Job) {
	r.emit(job, r.cumFinished+job.finished, r.cumErrors+job.errors)
}

func (r *Runner) publishTotals(job *Job) {
	r.emit(job, r.cumFinished, r.cumErrors)
}

func (r *Runner) emit(job *Job, cumFinished, cumErrors int) {
	if r.cfg.Progress == nil {
		return
	}
	r.cfg.Progress.Publish(progress.ProgressUpdate{
		Finished:           job.finished,
		Total:              len(job.Requests),
		Errors:             job.errors,
		Iteration:          job.Iteration,
		CumulativeFinished: cumFinished,
		CumulativeErrors:   cumErrors,
	})
}

// budgetExhausted reports whether the cumulative budget is spent once the
// running batch's time is added
func (r *Runner) budgetExhausted(running time.Duration) bool {
	if r.cfg.TimeBudget <= 0 {
		return false
	}
	return r.elapsed+running > r.cfg.TimeBudget
}
