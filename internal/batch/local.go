package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/metrics"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/policy"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/logger"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

// LocalConfig configures a LocalExecutor
type LocalConfig struct {
	// Workers bounds concurrently running simulations; zero uses GOMAXPROCS
	Workers int
	// DispatchRate limits sample starts per second; zero is unlimited
	DispatchRate float64
	// SlotTimeout bounds one simulation attempt; zero disables it
	SlotTimeout time.Duration
	Retry       policy.RetryPolicy
	Metrics     *metrics.Recorder
	Log         *slog.Logger
}

// LocalExecutor runs samples in-process on a bounded worker pool
type LocalExecutor struct {
	sim Simulator
	cfg LocalConfig
}

// NewLocalExecutor creates an executor that runs sim for every sample
func NewLocalExecutor(sim Simulator, cfg LocalConfig) *LocalExecutor {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Log == nil {
		cfg.Log = logger.Default
	}
	return &LocalExecutor{sim: sim, cfg: cfg}
}

// Submit starts the batch in the background. The execution does not inherit
// ctx: it runs until it finishes or Terminate is called.
func (e *LocalExecutor) Submit(ctx context.Context, batchID string, reqs []models.SampleRequest) (Execution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithCancel(context.Background())
	x := &localExecution{
		total:   len(reqs),
		running: true,
		cancel:  cancel,
	}

	var limiter *rate.Limiter
	if e.cfg.DispatchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(e.cfg.DispatchRate), 1)
	}

	log := e.cfg.Log.With("batch_id", batchID)
	go func() {
		defer cancel()

		p := pool.New().WithMaxGoroutines(e.cfg.Workers)
		for i := range reqs {
			if limiter != nil {
				if err := limiter.Wait(execCtx); err != nil {
					break
				}
			}
			if execCtx.Err() != nil {
				break
			}
			slot, req := i, reqs[i]
			p.Go(func() {
				x.complete(slot, e.runSlot(execCtx, log, slot, req))
			})
		}
		p.Wait()
		x.markDone()
	}()

	return x, nil
}

// runSlot runs one sample with retries. It returns nil when the execution
// was terminated before the sample finished.
func (e *LocalExecutor) runSlot(ctx context.Context, log *slog.Logger, slot int, req models.SampleRequest) *models.SampleResult {
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return nil
		}

		res, err := e.attempt(ctx, req)
		if ctx.Err() != nil {
			return nil
		}
		res.Attempts = attempt

		if e.cfg.Retry != nil && e.cfg.Retry.ShouldRetry(attempt, res, err) {
			delay := e.cfg.Retry.GetBackoffDuration(attempt)
			log.Warn("resubmitting sample", "slot", slot, "attempt", attempt, "delay", delay, "error_code", res.ErrorCode, "message", res.Message)
			e.cfg.Metrics.ObserveRetry()
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		return res
	}
}

// attempt runs the simulator once and normalizes its outcome into a result
func (e *LocalExecutor) attempt(ctx context.Context, req models.SampleRequest) (*models.SampleResult, error) {
	slotCtx := ctx
	if e.cfg.SlotTimeout > 0 {
		var cancel context.CancelFunc
		slotCtx, cancel = context.WithTimeout(ctx, e.cfg.SlotTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := e.sim.Simulate(slotCtx, req.Inputs)
	elapsed := time.Since(start)

	switch {
	case errors.Is(slotCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res = &models.SampleResult{
			Status:    models.SampleTimeout,
			ErrorCode: models.ErrCodeTimeout,
			Message:   fmt.Sprintf("sample exceeded %s", e.cfg.SlotTimeout),
		}
	case err != nil:
		res = &models.SampleResult{
			Status:    models.SampleError,
			ErrorCode: models.ErrCodeException,
			Message:   err.Error(),
		}
	case res == nil:
		res = &models.SampleResult{
			Status:    models.SampleError,
			ErrorCode: models.ErrCodeNoOutput,
			Message:   "simulator returned no result",
		}
	default:
		out := *res
		res = &out
		if res.Status == "" {
			res.Status = models.SampleOK
			if res.ErrorCode != models.ErrCodeNone {
				res.Status = models.SampleError
			}
		}
	}

	if res.Inputs == nil {
		res.Inputs = req.Inputs
	}
	res.Duration = elapsed
	return res, err
}

type localExecution struct {
	mu         sync.Mutex
	total      int
	finished   int
	errors     int
	pending    []SlotResult
	running    bool
	terminated bool
	cancel     context.CancelFunc
}

func (x *localExecution) complete(slot int, res *models.SampleResult) {
	if res == nil {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.terminated {
		return
	}
	x.pending = append(x.pending, SlotResult{Slot: slot, Result: res})
	x.finished++
	if res.Failed() {
		x.errors++
	}
}

func (x *localExecution) markDone() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.running = false
}

func (x *localExecution) IsRunning() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.running
}

func (x *localExecution) Status() ExecutionStatus {
	x.mu.Lock()
	defer x.mu.Unlock()
	return ExecutionStatus{Total: x.total, Finished: x.finished, Errors: x.errors}
}

func (x *localExecution) Drain() []SlotResult {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := x.pending
	x.pending = nil
	return out
}

func (x *localExecution) Terminate() {
	x.mu.Lock()
	x.terminated = true
	x.mu.Unlock()
	x.cancel()
}
