package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/utils"
)

// PatternSearchName is the registry name of the pattern search strategy
const PatternSearchName = "pattern-search"

// PatternSearch is a batched Hooke-Jeeves search. Every iteration polls the
// 2n compass neighbours of each start, plus the pattern move of starts that
// improved last time, in a single batch. Several independent starts may be
// run side by side; the best of them wins.
type PatternSearch struct {
	common      CommonOptions
	convergence *ConvergenceConfig

	step    float64
	minStep float64
	shrink  float64
	expand  float64
	starts  int

	resume *Checkpoint
}

// NewPatternSearch creates an unconfigured pattern search
func NewPatternSearch() *PatternSearch {
	return &PatternSearch{}
}

func (p *PatternSearch) Name() string { return PatternSearchName }
func (p *PatternSearch) MinVars() int { return 1 }
func (p *PatternSearch) MaxVars() int { return 0 }

// Configure validates the pattern search options
func (p *PatternSearch) Configure(opts Options) error {
	if err := opts.CheckKnown(append([]string{"step", "min_step", "shrink", "expand", "starts"}, convergenceKeys...)...); err != nil {
		return err
	}
	var err error
	if p.common, err = ParseCommon(opts); err != nil {
		return err
	}
	if p.convergence, err = convergenceFromOptions(opts); err != nil {
		return err
	}
	if p.step, err = opts.Float("step", 1); err != nil {
		return err
	}
	if p.minStep, err = opts.Float("min_step", 1e-3); err != nil {
		return err
	}
	if p.shrink, err = opts.Float("shrink", 0.5); err != nil {
		return err
	}
	if p.expand, err = opts.Float("expand", 1); err != nil {
		return err
	}
	if p.starts, err = opts.Int("starts", 1); err != nil {
		return err
	}

	switch {
	case p.step <= 0:
		return models.NewConfigurationError("step must be positive")
	case p.minStep <= 0 || p.minStep > p.step:
		return models.NewConfigurationError("min_step must be in (0, step]")
	case p.shrink <= 0 || p.shrink >= 1:
		return models.NewConfigurationError("shrink must be in (0, 1)")
	case p.expand < 1:
		return models.NewConfigurationError("expand must be at least 1")
	case p.starts < 1:
		return models.NewConfigurationError("starts must be at least 1")
	}

	if p.common.RestartIn != "" {
		if p.resume, err = loadResume(p.common.RestartIn, PatternSearchName); err != nil {
			return err
		}
	}
	return nil
}

// patternStart is one independent search of a multi-start run
type patternStart struct {
	center []float64
	value  float64
	step   float64
	// move is the last successful displacement, nil when the last poll failed
	move []float64
}

func (ps *patternStart) active(minStep float64) bool {
	return ps.step >= minStep
}

// Run executes the search
func (p *PatternSearch) Run(ctx context.Context, rc *RunContext) (*Outcome, error) {
	s, err := NewSession(rc, PatternSearchName, p.common)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var starts []*patternStart
	if p.resume != nil {
		if starts, err = p.restore(p.resume, s.Dim()); err != nil {
			return s.Outcome(false, ""), err
		}
		s.Resume(p.resume)
	} else {
		rng := utils.NewRandSource(p.common.Seed)
		lower, upper := s.Bounds()
		centers := [][]float64{s.Initial()}
		for i := 1; i < p.starts; i++ {
			centers = append(centers, rng.UniformVector(lower, upper))
		}

		values, err := s.Evaluate(ctx, centers)
		if err != nil {
			return s.Outcome(false, ""), err
		}
		for i, c := range centers {
			starts = append(starts, &patternStart{center: s.Clamp(c), value: values[i], step: p.step})
		}
		s.EndIteration(p.state(starts))
	}

	detector := NewCombinedDetector(p.convergence)
	for {
		if s.LimitReached() {
			return s.Outcome(false, "iteration limit reached"), nil
		}
		if ok, reason := detector.CheckConvergence(s.History()); ok {
			return s.Outcome(true, reason), nil
		}

		var points [][]float64
		var owner []int
		for k, st := range starts {
			if !st.active(p.minStep) {
				continue
			}
			if st.move != nil {
				x := make([]float64, len(st.center))
				for i := range x {
					x[i] = st.center[i] + st.move[i]
				}
				points = append(points, x)
				owner = append(owner, k)
			}
			for i := range st.center {
				for _, sign := range []float64{1, -1} {
					x := utils.CopyVector(st.center)
					x[i] += sign * st.step
					points = append(points, x)
					owner = append(owner, k)
				}
			}
		}
		if len(points) == 0 {
			return s.Outcome(true, fmt.Sprintf("step below %g", p.minStep)), nil
		}

		values, err := s.Evaluate(ctx, points)
		if err != nil {
			return s.Outcome(false, ""), err
		}

		bestIdx := make(map[int]int)
		for i, v := range values {
			k := owner[i]
			if j, ok := bestIdx[k]; !ok || v < values[j] {
				bestIdx[k] = i
			}
		}
		for k, st := range starts {
			i, ok := bestIdx[k]
			if !ok {
				continue
			}
			if values[i] < st.value {
				next := s.Clamp(points[i])
				move := make([]float64, len(next))
				for j := range next {
					move[j] = next[j] - st.center[j]
				}
				st.center, st.value, st.move = next, values[i], move
				st.step *= p.expand
				continue
			}
			st.move = nil
			st.step *= p.shrink
		}
		s.EndIteration(p.state(starts))
	}
}

func (p *PatternSearch) state(starts []*patternStart) func() map[string]any {
	return func() map[string]any {
		list := make([]any, len(starts))
		for i, st := range starts {
			m := map[string]any{
				"center": FloatsToList(st.center),
				"value":  st.value,
				"step":   st.step,
			}
			if st.move != nil {
				m["move"] = FloatsToList(st.move)
			}
			list[i] = m
		}
		return map[string]any{"starts": list}
	}
}

func (p *PatternSearch) restore(cp *Checkpoint, dim int) ([]*patternStart, error) {
	list, ok := cp.State["starts"].([]any)
	if !ok || len(list) == 0 {
		return nil, models.NewConfigurationError("restart file: no pattern search starts")
	}
	starts := make([]*patternStart, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, models.NewConfigurationError("restart file: start %d malformed", i)
		}
		center, err := ListToFloats(m["center"])
		if err != nil || len(center) != dim {
			return nil, models.NewConfigurationError("restart file: start %d has a bad center", i)
		}
		move, err := ListToFloats(m["move"])
		if err != nil || (move != nil && len(move) != dim) {
			return nil, models.NewConfigurationError("restart file: start %d has a bad move", i)
		}
		value, ok := decodeNumber(m["value"])
		if !ok || math.IsNaN(value) {
			return nil, models.NewConfigurationError("restart file: start %d has a bad value", i)
		}
		step, ok := decodeNumber(m["step"])
		if !ok || math.IsNaN(step) || math.IsInf(step, 0) || step < 0 {
			return nil, models.NewConfigurationError("restart file: start %d has a bad step", i)
		}
		starts = append(starts, &patternStart{center: center, value: value, step: step, move: move})
	}
	return starts, nil
}
