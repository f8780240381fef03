// Package evaluator scores raw simulation results as penalized objective
// values. Evaluation failures never surface as errors: they become fail
// values and zero penalties so the strategy loop keeps running.
package evaluator

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/problem"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/logger"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

// Evaluator converts SampleResults into EvaluationResults for one problem
type Evaluator struct {
	spec *problem.Spec
	log  *slog.Logger
}

// New creates an evaluator. A nil logger uses the package default.
func New(spec *problem.Spec, log *slog.Logger) *Evaluator {
	if log == nil {
		log = logger.Default
	}
	return &Evaluator{spec: spec, log: log}
}

// Score evaluates a batch. results must hold EnsembleSize consecutive slots
// per logical evaluation; one EvaluationResult is returned per group, in order.
// The only error is a batch whose length does not divide into groups.
func (e *Evaluator) Score(results []*models.SampleResult) ([]models.EvaluationResult, error) {
	m := e.spec.EnsembleSize()
	if len(results)%m != 0 {
		return nil, fmt.Errorf("batch of %d results does not divide into ensembles of %d", len(results), m)
	}

	out := make([]models.EvaluationResult, 0, len(results)/m)
	for g := 0; g < len(results); g += m {
		out = append(out, e.ScoreGroup(g/m, results[g:g+m]))
	}
	return out, nil
}

// ScoreGroup evaluates one logical evaluation backed by one or more samples
func (e *Evaluator) ScoreGroup(group int, samples []*models.SampleResult) models.EvaluationResult {
	res := models.EvaluationResult{
		Objectives:  make([]float64, len(e.spec.Objectives)),
		Constraints: make([]float64, len(e.spec.Constraints)),
	}

	for _, s := range samples {
		if s.Failed() {
			res.Failed = true
			for i, obj := range e.spec.Objectives {
				res.Objectives[i] = obj.Fail
			}
			return res
		}
	}

	b := aggregate(samples)

	for i, c := range e.spec.Constraints {
		margin, err := c.Expr.Eval(b)
		if err != nil {
			e.log.Error("constraint evaluation failed", "constraint", c.Name, "group", group, "error", err)
			continue
		}
		if math.IsNaN(margin) || math.IsInf(margin, 0) {
			e.log.Error("constraint evaluation is not finite", "constraint", c.Name, "group", group, "margin", margin)
			continue
		}
		res.Constraints[i] = problem.Penalty(c.Form, margin, c.Weight)
		res.Penalty += res.Constraints[i]
	}

	for i, obj := range e.spec.Objectives {
		raw, err := obj.Expr.Eval(b)
		if err == nil && math.IsNaN(raw) {
			err = fmt.Errorf("objective is NaN")
		}
		if err != nil {
			e.log.Error("objective evaluation failed", "objective", obj.Name, "group", group, "error", err)
			res.Objectives[i] = obj.Fail
			continue
		}
		res.Objectives[i] = raw + res.Penalty*obj.PenaltyScale
	}

	return res
}

// aggregate averages the bindings of an ensemble. A single sample is passed
// through unchanged.
func aggregate(samples []*models.SampleResult) models.Bindings {
	if len(samples) == 1 {
		return samples[0].Bindings()
	}

	b := models.Bindings{
		Inputs:  meanOf(samples, func(s *models.SampleResult) map[string]float64 { return s.Inputs }),
		Outputs: meanOf(samples, func(s *models.SampleResult) map[string]float64 { return s.Outputs }),
		Members: make([]models.Bindings, len(samples)),
	}
	for i, s := range samples {
		b.Members[i] = s.Bindings()
	}
	return b
}

// meanOf averages each key over the samples that bind it
func meanOf(samples []*models.SampleResult, pick func(*models.SampleResult) map[string]float64) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, s := range samples {
		for k, v := range pick(s) {
			sums[k] += v
			counts[k]++
		}
	}
	for k := range sums {
		sums[k] /= float64(counts[k])
	}
	return sums
}
