package strategy

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/utils"
)

// EvolutionName is the registry name of the evolution strategy
const EvolutionName = "evolution"

// Evolution is a (mu/mu_w, lambda) evolution strategy with a diagonal
// covariance model (separable CMA-ES). One generation is one batch.
type Evolution struct {
	common      CommonOptions
	convergence *ConvergenceConfig

	popsize int
	sigma0  float64
	tolX    float64

	resume *Checkpoint
}

// NewEvolution creates an unconfigured evolution strategy
func NewEvolution() *Evolution {
	return &Evolution{}
}

func (e *Evolution) Name() string { return EvolutionName }
func (e *Evolution) MinVars() int { return 1 }
func (e *Evolution) MaxVars() int { return 0 }

// Configure validates the evolution options. popsize 0 selects the usual
// 4 + 3 ln(n) at run time.
func (e *Evolution) Configure(opts Options) error {
	if err := opts.CheckKnown(append([]string{"popsize", "sigma", "tolx"}, convergenceKeys...)...); err != nil {
		return err
	}
	var err error
	if e.common, err = ParseCommon(opts); err != nil {
		return err
	}
	if e.convergence, err = convergenceFromOptions(opts); err != nil {
		return err
	}
	if e.popsize, err = opts.Int("popsize", 0); err != nil {
		return err
	}
	if e.sigma0, err = opts.Float("sigma", 2); err != nil {
		return err
	}
	if e.tolX, err = opts.Float("tolx", 1e-4); err != nil {
		return err
	}
	switch {
	case e.popsize != 0 && e.popsize < 4:
		return models.NewConfigurationError("popsize must be at least 4")
	case e.sigma0 <= 0:
		return models.NewConfigurationError("sigma must be positive")
	case e.tolX <= 0:
		return models.NewConfigurationError("tolx must be positive")
	}

	if e.common.RestartIn != "" {
		if e.resume, err = loadResume(e.common.RestartIn, EvolutionName); err != nil {
			return err
		}
	}
	return nil
}

// esState is the adapted distribution of the search
type esState struct {
	mean       []float64
	sigma      float64
	cov        []float64
	ps         []float64
	pc         []float64
	generation int
}

// esParams are the strategy constants derived from n and lambda
type esParams struct {
	n       int
	lambda  int
	mu      int
	weights []float64
	mueff   float64
	cs      float64
	ds      float64
	cc      float64
	c1      float64
	cmu     float64
	chiN    float64
}

func newESParams(n, lambda int) esParams {
	if lambda == 0 {
		lambda = 4 + int(3*math.Log(float64(n)))
	}
	p := esParams{n: n, lambda: lambda, mu: lambda / 2}

	p.weights = make([]float64, p.mu)
	sum, sumSq := 0.0, 0.0
	for i := range p.weights {
		p.weights[i] = math.Log(float64(p.mu)+0.5) - math.Log(float64(i+1))
		sum += p.weights[i]
	}
	for i := range p.weights {
		p.weights[i] /= sum
		sumSq += p.weights[i] * p.weights[i]
	}
	p.mueff = 1 / sumSq

	nf := float64(n)
	p.cs = (p.mueff + 2) / (nf + p.mueff + 5)
	p.ds = 1 + 2*math.Max(0, math.Sqrt((p.mueff-1)/(nf+1))-1) + p.cs
	p.cc = (4 + p.mueff/nf) / (nf + 4 + 2*p.mueff/nf)
	// separable variant: learning rates scaled up by (n+2)/3
	sep := (nf + 2) / 3
	p.c1 = math.Min(1, sep*2/((nf+1.3)*(nf+1.3)+p.mueff))
	p.cmu = math.Min(1-p.c1, sep*2*(p.mueff-2+1/p.mueff)/((nf+2)*(nf+2)+p.mueff))
	p.chiN = math.Sqrt(nf) * (1 - 1/(4*nf) + 1/(21*nf*nf))
	return p
}

// Run executes generations until convergence, a limit or a stop
func (e *Evolution) Run(ctx context.Context, rc *RunContext) (*Outcome, error) {
	s, err := NewSession(rc, EvolutionName, e.common)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	n := s.Dim()
	params := newESParams(n, e.popsize)
	var st *esState
	if e.resume != nil {
		if st, err = e.restore(e.resume, n); err != nil {
			return s.Outcome(false, ""), err
		}
		s.Resume(e.resume)
	} else {
		st = &esState{
			mean:  s.Initial(),
			sigma: e.sigma0,
			cov:   filled(n, 1),
			ps:    make([]float64, n),
			pc:    make([]float64, n),
		}
	}
	rng := utils.NewRandSource(e.common.Seed + int64(st.generation))
	detector := NewCombinedDetector(e.convergence)

	s.log.Info("evolution started", "lambda", params.lambda, "mu", params.mu, "sigma", st.sigma)
	for {
		if s.LimitReached() {
			return s.Outcome(false, "iteration limit reached"), nil
		}
		if ok, reason := detector.CheckConvergence(s.History()); ok {
			return s.Outcome(true, reason), nil
		}
		if spread := st.sigma * math.Sqrt(maxOf(st.cov)); spread < e.tolX {
			return s.Outcome(true, fmt.Sprintf("step size %g below tolx", spread)), nil
		}

		xs := make([][]float64, params.lambda)
		for k := range xs {
			z := rng.StandardNormalVector(n)
			x := make([]float64, n)
			for j := range x {
				x[j] = st.mean[j] + st.sigma*math.Sqrt(st.cov[j])*z[j]
			}
			xs[k] = s.Clamp(x)
		}

		values, err := s.Evaluate(ctx, xs)
		if err != nil {
			return s.Outcome(false, ""), err
		}
		if err := e.tell(st, params, xs, values); err != nil {
			return s.Outcome(false, ""), err
		}
		s.EndIteration(e.state(st))
	}
}

// tell updates the distribution from one scored generation
func (e *Evolution) tell(st *esState, p esParams, xs [][]float64, values []float64) error {
	order := make([]int, len(xs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] < values[order[b]] })

	n := p.n
	yw := make([]float64, n)
	steps := make([][]float64, p.mu)
	for i := 0; i < p.mu; i++ {
		x := xs[order[i]]
		y := make([]float64, n)
		for j := range y {
			y[j] = (x[j] - st.mean[j]) / st.sigma
			yw[j] += p.weights[i] * y[j]
		}
		steps[i] = y
	}

	for j := range st.mean {
		st.mean[j] += st.sigma * yw[j]
	}

	csn := math.Sqrt(p.cs * (2 - p.cs) * p.mueff)
	for j := range st.ps {
		st.ps[j] = (1-p.cs)*st.ps[j] + csn*yw[j]/math.Sqrt(st.cov[j])
	}
	psNorm := utils.Norm2(st.ps)
	st.generation++
	hsig := 0.0
	if psNorm/math.Sqrt(1-math.Pow(1-p.cs, 2*float64(st.generation)))/p.chiN < 1.4+2/float64(n+1) {
		hsig = 1
	}

	ccn := math.Sqrt(p.cc * (2 - p.cc) * p.mueff)
	for j := range st.pc {
		st.pc[j] = (1-p.cc)*st.pc[j] + hsig*ccn*yw[j]
	}
	for j := range st.cov {
		rankMu := 0.0
		for i, y := range steps {
			rankMu += p.weights[i] * y[j] * y[j]
		}
		st.cov[j] = (1-p.c1-p.cmu)*st.cov[j] +
			p.c1*(st.pc[j]*st.pc[j]+(1-hsig)*p.cc*(2-p.cc)*st.cov[j]) +
			p.cmu*rankMu
	}
	st.sigma *= math.Exp((p.cs / p.ds) * (psNorm/p.chiN - 1))

	if !utils.AllFinite(st.mean) || !utils.AllFinite(st.cov) || math.IsNaN(st.sigma) || math.IsInf(st.sigma, 0) || st.sigma <= 0 {
		return models.NewStrategyError("evolution: distribution diverged at generation %d (sigma %g)", st.generation, st.sigma)
	}
	for j, c := range st.cov {
		if c <= 0 {
			return models.NewStrategyError("evolution: covariance entry %d collapsed to %g", j, c)
		}
	}
	return nil
}

func (e *Evolution) state(st *esState) func() map[string]any {
	return func() map[string]any {
		return map[string]any{
			"mean":       FloatsToList(st.mean),
			"sigma":      st.sigma,
			"cov":        FloatsToList(st.cov),
			"ps":         FloatsToList(st.ps),
			"pc":         FloatsToList(st.pc),
			"generation": st.generation,
		}
	}
}

func (e *Evolution) restore(cp *Checkpoint, n int) (*esState, error) {
	st := &esState{}
	vectors := map[string]*[]float64{"mean": &st.mean, "cov": &st.cov, "ps": &st.ps, "pc": &st.pc}
	for key, dst := range vectors {
		v, err := ListToFloats(cp.State[key])
		if err != nil || len(v) != n {
			return nil, models.NewConfigurationError("restart file: bad %s vector", key)
		}
		*dst = v
	}
	var ok bool
	if st.sigma, ok = decodeNumber(cp.State["sigma"]); !ok || math.IsInf(st.sigma, 0) || !(st.sigma > 0) {
		return nil, models.NewConfigurationError("restart file: bad sigma")
	}
	g, ok := decodeNumber(cp.State["generation"])
	if !ok || !(g >= 0) || math.IsInf(g, 0) {
		return nil, models.NewConfigurationError("restart file: bad generation")
	}
	st.generation = int(g)
	return st, nil
}

func filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func maxOf(x []float64) float64 {
	m := math.Inf(-1)
	for _, v := range x {
		m = math.Max(m, v)
	}
	return m
}
