package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/utils"
)

// BFGSName is the registry name of the quasi-Newton strategy
const BFGSName = "bfgs"

const armijo = 1e-4

// BFGS is a quasi-Newton method on finite-difference gradients. Iterations
// alternate between a gradient batch (n perturbed points) and a line search
// batch (several step lengths along the search direction at once).
type BFGS struct {
	common      CommonOptions
	convergence *ConvergenceConfig

	fdStep    float64
	gtol      float64
	maxStep   float64
	lineSteps int
}

// NewBFGS creates an unconfigured BFGS strategy
func NewBFGS() *BFGS {
	return &BFGS{}
}

func (b *BFGS) Name() string { return BFGSName }
func (b *BFGS) MinVars() int { return 1 }
func (b *BFGS) MaxVars() int { return 0 }

// Configure validates the options. BFGS cannot resume from a checkpoint.
func (b *BFGS) Configure(opts Options) error {
	if err := opts.CheckKnown(append([]string{"fd_step", "gtol", "max_step", "line_steps"}, convergenceKeys...)...); err != nil {
		return err
	}
	var err error
	if b.common, err = ParseCommon(opts); err != nil {
		return err
	}
	if b.common.RestartIn != "" {
		return models.NewConfigurationError("%s does not support restart_in", BFGSName)
	}
	if b.convergence, err = convergenceFromOptions(opts); err != nil {
		return err
	}
	if b.fdStep, err = opts.Float("fd_step", 1e-2); err != nil {
		return err
	}
	if b.gtol, err = opts.Float("gtol", 1e-5); err != nil {
		return err
	}
	if b.maxStep, err = opts.Float("max_step", 2); err != nil {
		return err
	}
	if b.lineSteps, err = opts.Int("line_steps", 4); err != nil {
		return err
	}
	switch {
	case b.fdStep <= 0:
		return models.NewConfigurationError("fd_step must be positive")
	case b.gtol < 0:
		return models.NewConfigurationError("gtol must not be negative")
	case b.maxStep <= 0:
		return models.NewConfigurationError("max_step must be positive")
	case b.lineSteps < 1:
		return models.NewConfigurationError("line_steps must be at least 1")
	}
	return nil
}

// Run iterates until the gradient vanishes, the line search stalls, a
// limit is hit or the run is stopped
func (b *BFGS) Run(ctx context.Context, rc *RunContext) (*Outcome, error) {
	s, err := NewSession(rc, BFGSName, b.common)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	n := s.Dim()
	x := s.Initial()
	f := math.NaN()
	var g, prevG, step []float64
	h := identity(n)
	fresh := true
	needGradient := true
	detector := NewCombinedDetector(b.convergence)

	for {
		if s.LimitReached() {
			return s.Outcome(false, "iteration limit reached"), nil
		}
		if ok, reason := detector.CheckConvergence(s.History()); ok {
			return s.Outcome(true, reason), nil
		}

		if needGradient {
			pts := b.gradientPoints(s, x, math.IsNaN(f))
			values, err := s.Evaluate(ctx, pts)
			if err != nil {
				return s.Outcome(false, ""), err
			}
			if math.IsNaN(f) {
				f = values[0]
				pts, values = pts[1:], values[1:]
			}
			prevG, g = g, make([]float64, n)
			for i := range g {
				if d := pts[i][i] - x[i]; d != 0 {
					g[i] = (values[i] - f) / d
				}
			}
			if !utils.AllFinite(g) {
				return s.Outcome(false, ""), models.NewStrategyError("bfgs: non-finite gradient at iteration %d", s.Iteration())
			}
			if step != nil && prevG != nil {
				if err := updateInverseHessian(h, step, prevG, g); err != nil {
					return s.Outcome(false, ""), err
				}
				fresh = false
			}
			s.EndIteration(nil)

			if utils.Norm2(g) <= b.gtol {
				return s.Outcome(true, fmt.Sprintf("gradient norm below %g", b.gtol)), nil
			}
			if s.LimitReached() {
				return s.Outcome(false, "iteration limit reached"), nil
			}
		}

		d := matVec(h, g)
		for i := range d {
			d[i] = -d[i]
		}
		if utils.Dot(d, g) >= 0 {
			h, fresh = identity(n), true
			for i := range d {
				d[i] = -g[i]
			}
		}
		if norm := utils.Norm2(d); norm > b.maxStep {
			for i := range d {
				d[i] *= b.maxStep / norm
			}
		}

		trials := make([][]float64, b.lineSteps)
		alpha := 1.0
		for k := range trials {
			t := make([]float64, n)
			for i := range t {
				t[i] = x[i] + alpha*d[i]
			}
			trials[k] = s.Clamp(t)
			alpha /= 2
		}
		values, err := s.Evaluate(ctx, trials)
		if err != nil {
			return s.Outcome(false, ""), err
		}
		s.EndIteration(nil)

		chosen := -1
		for k, t := range trials {
			move := sub(t, x)
			if values[k] <= f+armijo*utils.Dot(g, move) && values[k] < f {
				chosen = k
				break
			}
		}
		if chosen < 0 {
			if k := utils.ArgMin(values); k >= 0 && values[k] < f {
				chosen = k
			}
		}
		if chosen < 0 {
			if fresh {
				return s.Outcome(true, "line search made no progress"), nil
			}
			// curvature model is stale; retry steepest descent from x
			h, fresh = identity(n), true
			step = nil
			needGradient = false
			continue
		}

		step = sub(trials[chosen], x)
		x, f = trials[chosen], values[chosen]
		needGradient = true
	}
}

// gradientPoints returns forward-difference points around x, stepping
// backwards where the upper bound is in the way. withCenter prepends x.
func (b *BFGS) gradientPoints(s *Session, x []float64, withCenter bool) [][]float64 {
	_, upper := s.Bounds()
	var pts [][]float64
	if withCenter {
		pts = append(pts, utils.CopyVector(x))
	}
	for i := range x {
		p := utils.CopyVector(x)
		if x[i]+b.fdStep <= upper[i] {
			p[i] += b.fdStep
		} else {
			p[i] -= b.fdStep
		}
		pts = append(pts, s.Clamp(p))
	}
	return pts
}

// updateInverseHessian applies the BFGS update to h in place. Steps with
// non-positive curvature are skipped.
func updateInverseHessian(h [][]float64, step, prevG, g []float64) error {
	y := sub(g, prevG)
	sy := utils.Dot(step, y)
	if sy <= 1e-12 {
		return nil
	}
	rho := 1 / sy
	hy := matVec(h, y)
	yhy := utils.Dot(y, hy)
	for i := range h {
		for j := range h[i] {
			h[i][j] += -rho*(step[i]*hy[j]+hy[i]*step[j]) + (rho*rho*yhy+rho)*step[i]*step[j]
			if math.IsNaN(h[i][j]) || math.IsInf(h[i][j], 0) {
				return models.NewStrategyError("bfgs: inverse Hessian update produced %g", h[i][j])
			}
		}
	}
	return nil
}

func identity(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}

func matVec(m [][]float64, v []float64) []float64 {
	out := make([]float64, len(m))
	for i, row := range m {
		out[i] = utils.Dot(row, v)
	}
	return out
}

func sub(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}
