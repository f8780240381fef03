package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/progress"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/problem"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/logger"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/utils"
)

// Session is the ask-evaluate-tell machinery shared by all strategies. It
// is owned by the run worker and not safe for concurrent use.
type Session struct {
	rc     *RunContext
	name   string
	common CommonOptions
	log    *slog.Logger

	lower []float64
	upper []float64

	iteration int
	best      float64
	bestX     []float64
	bestObjs  []float64
	iterMin   float64
	iterMax   float64
	history   []models.IterationRecord

	start          time.Time
	lastCheckpoint time.Time
	objLog         *os.File
}

// NewSession prepares a session for strategy name. It applies the time
// budget to the runner and opens the objective log when configured.
func NewSession(rc *RunContext, name string, common CommonOptions) (*Session, error) {
	log := rc.Log
	if log == nil {
		log = logger.Default
	}
	s := &Session{
		rc:        rc,
		name:      name,
		common:    common,
		log:       log.With("strategy", name),
		iteration: 1,
		best:      math.Inf(1),
		start:     time.Now(),
	}
	s.lastCheckpoint = s.start
	s.resetIteration()

	s.lower, s.upper = rc.Spec.Bounds()
	for i, v := range rc.Spec.Variables {
		if v.Scaling == problem.ScaleNone {
			continue
		}
		s.lower[i] = math.Max(s.lower[i], common.Lower)
		s.upper[i] = math.Min(s.upper[i], common.Upper)
	}

	rc.Runner.SetTimeBudget(common.MaxTime)

	if common.LogObjective != "" {
		f, err := os.OpenFile(common.LogObjective, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, models.NewConfigurationError("open objective log: %v", err)
		}
		s.objLog = f
	}
	return s, nil
}

// Close releases the objective log
func (s *Session) Close() {
	if s.objLog != nil {
		s.objLog.Close()
		s.objLog = nil
	}
}

// Resume continues numbering and best-so-far from a checkpoint
func (s *Session) Resume(cp *Checkpoint) {
	s.iteration = cp.Iteration + 1
	if len(cp.BestX) == s.Dim() && cp.Best < s.best {
		s.best = cp.Best
		s.bestX = utils.CopyVector(cp.BestX)
	}
	s.log.Info("resuming from checkpoint", "iteration", cp.Iteration, "best", cp.Best)
}

// Dim returns the problem dimension
func (s *Session) Dim() int {
	return s.rc.Spec.Dim()
}

// Bounds returns the search box in normalized space
func (s *Session) Bounds() (lower, upper []float64) {
	return s.lower, s.upper
}

// Clamp projects x into the search box
func (s *Session) Clamp(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = utils.Clamp(v, s.lower[i], s.upper[i])
	}
	return out
}

// Initial returns the clamped starting point of the run
func (s *Session) Initial() []float64 {
	if len(s.rc.Initial) == s.Dim() {
		return s.Clamp(s.rc.Initial)
	}
	return s.Clamp(s.rc.Spec.InitialPoint())
}

// Iteration returns the number of the iteration in progress
func (s *Session) Iteration() int {
	return s.iteration
}

// Best returns best-so-far and its normalized position
func (s *Session) Best() (float64, []float64) {
	return s.best, s.bestX
}

// History returns the records of the iterations completed by this session
func (s *Session) History() []models.IterationRecord {
	return s.history
}

// Evaluate scores the candidates xs as one batch and returns the minimized
// objective per candidate. Candidates are clamped into the search box
// first. When the batch ended early the scores of the finished slots are
// still returned together with the run error.
func (s *Session) Evaluate(ctx context.Context, xs [][]float64) ([]float64, error) {
	if len(xs) == 0 {
		return nil, nil
	}
	points := make([][]float64, len(xs))
	for i, x := range xs {
		points[i] = s.Clamp(x)
	}

	reqs := s.rc.Spec.Requests(s.iteration, points)
	job, runErr := s.rc.Runner.Run(ctx, s.iteration, reqs)
	if job == nil {
		return nil, runErr
	}

	scores, err := s.rc.Evaluator.Score(job.Results())
	if err != nil {
		return nil, models.NewRunError(models.ErrStrategyInternal, err)
	}
	values := make([]float64, len(scores))
	for i, sc := range scores {
		values[i] = sc.Objective()
		s.observe(points[i], sc)
	}
	return values, runErr
}

func (s *Session) observe(x []float64, sc models.EvaluationResult) {
	v := sc.Objective()
	s.iterMin = math.Min(s.iterMin, v)
	s.iterMax = math.Max(s.iterMax, v)
	if sc.Failed || math.IsNaN(v) || !(v < s.best) {
		return
	}
	s.best = v
	s.bestX = utils.CopyVector(x)
	s.bestObjs = append([]float64(nil), sc.Objectives...)
	s.publish(progress.BestUpdate{Best: append([]float64(nil), sc.Objectives...), X: utils.CopyVector(x)})
}

// EndIteration records the iteration, emits IT and writes the objective log
// and a checkpoint when due. state is only called when a checkpoint is
// written.
func (s *Session) EndIteration(state func() map[string]any) {
	rec := models.IterationRecord{
		Iteration: s.iteration,
		Best:      s.best,
		BestX:     utils.CopyVector(s.bestX),
		Elapsed:   time.Since(s.start),
	}
	s.history = append(s.history, rec)
	s.publish(progress.IterationUpdate{Iteration: rec.Iteration, Best: rec.Best})
	s.rc.Metrics.ObserveIteration(rec.Best)
	s.log.Debug("iteration finished", "iteration", rec.Iteration, "best", rec.Best, "min", s.iterMin, "max", s.iterMax)

	if s.objLog != nil {
		if _, err := fmt.Fprintf(s.objLog, "%d, %g, %g, %g, %.3f\n",
			rec.Iteration, rec.Best, s.iterMin, s.iterMax, rec.Elapsed.Seconds()); err != nil {
			s.log.Warn("failed to append objective log", "error", err)
		}
	}

	if s.checkpointDue(rec.Iteration) {
		s.checkpoint(rec.Iteration, state)
	}

	s.iteration++
	s.resetIteration()
}

// LimitReached reports whether itmax has been reached
func (s *Session) LimitReached() bool {
	return s.common.MaxIterations > 0 && s.iteration > s.common.MaxIterations
}

// Outcome summarizes the session
func (s *Session) Outcome(converged bool, reason string) *Outcome {
	samples, errs := s.rc.Runner.Totals()
	return &Outcome{
		Best:       s.best,
		BestX:      utils.CopyVector(s.bestX),
		Objectives: append([]float64(nil), s.bestObjs...),
		Iterations: len(s.history),
		Samples:    samples,
		Errors:     errs,
		Converged:  converged,
		Reason:     reason,
		History:    s.history,
	}
}

func (s *Session) checkpointDue(iteration int) bool {
	if !s.common.CheckpointsEnabled() {
		return false
	}
	if s.common.RestartEvery >= 1 && iteration%s.common.RestartEvery == 0 {
		return true
	}
	return s.common.RestartInterval > 0 && time.Since(s.lastCheckpoint) >= s.common.RestartInterval
}

func (s *Session) checkpoint(iteration int, state func() map[string]any) {
	cp := &Checkpoint{
		Strategy:  s.name,
		Iteration: iteration,
		Best:      s.best,
		BestX:     s.bestX,
	}
	if state != nil {
		cp.State = state()
	}
	path := s.common.RestartPath(iteration)
	if err := SaveCheckpoint(path, cp); err != nil {
		s.log.Error("failed to write checkpoint", "path", path, "error", err)
		return
	}
	s.lastCheckpoint = time.Now()
	s.log.Debug("checkpoint written", "path", path, "iteration", iteration)
}

func (s *Session) resetIteration() {
	s.iterMin = math.Inf(1)
	s.iterMax = math.Inf(-1)
}

func (s *Session) publish(ev progress.Event) {
	if s.rc.Progress != nil {
		s.rc.Progress.Publish(ev)
	}
}
