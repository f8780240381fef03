package problem

import (
	"errors"
	"strings"
	"testing"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/expr"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/config"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

func constant(v float64) expr.Expression {
	return expr.Func(func(models.Bindings) (float64, error) { return v, nil })
}

func bowlSpec() *Spec {
	return &Spec{
		Variables: []DecisionVariable{
			{Name: "x0", Min: 0, Max: 10, Default: 3, Scaling: ScaleLinear},
			{Name: "x1", Min: 0, Max: 10, Default: 4, Scaling: ScaleLinear},
		},
		Objectives: []Objective{{Name: "f", Expr: constant(0), Fail: 1000, PenaltyScale: 1}},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Spec)
		minVars int
		maxVars int
		scale   bool
		wantErr string
	}{
		{"valid", func(*Spec) {}, 1, 0, true, ""},
		{"too few variables", func(*Spec) {}, 3, 0, false, "at least 3"},
		{"too many variables", func(*Spec) {}, 1, 1, false, "at most 1"},
		{"no objectives", func(s *Spec) { s.Objectives = nil }, 1, 0, false, "at least one objective"},
		{"degenerate bounds", func(s *Spec) { s.Variables[0].Max = s.Variables[0].Min + 1e-11 }, 1, 0, false, "must exceed"},
		{"default outside bounds", func(s *Spec) { s.Variables[1].Default = 11 }, 1, 0, false, "outside"},
		{"unscaled variable", func(s *Spec) { s.Variables[0].Scaling = ScaleNone }, 1, 0, true, "requires scaled"},
		{"nil objective callback", func(s *Spec) { s.Objectives[0].Expr = nil }, 1, 0, false, "no callback"},
		{"nil constraint callback", func(s *Spec) {
			s.Constraints = []Constraint{{Name: "g", Weight: 1, Form: PenaltyLinear}}
		}, 1, 0, false, "no callback"},
		{"log scaling with zero bound", func(s *Spec) { s.Variables[0].Scaling = ScaleLog }, 1, 0, false, "positive lower bound"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := bowlSpec()
			tt.mutate(s)
			err := s.Validate(tt.minVars, tt.maxVars, tt.scale)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
			if !errors.Is(err, models.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestInitialPointIsScaledDefault(t *testing.T) {
	s := bowlSpec()
	s.Variables[0].Min, s.Variables[0].Max = 0, 20
	x := s.InitialPoint()
	if x[0] != 1.5 || x[1] != 4 {
		t.Fatalf("InitialPoint() = %v, want [1.5 4]", x)
	}
}

func TestRequestsWithoutEnsemble(t *testing.T) {
	s := bowlSpec()
	s.Fixed = map[string]float64{"pressure": 2}

	reqs := s.Requests(7, [][]float64{{3, 4}, {5, 6}})
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	for i, r := range reqs {
		if r.Slot != i || r.Group != i || r.Member != 0 || r.Iteration != 7 {
			t.Fatalf("request %d has wrong indices: %+v", i, r)
		}
		if r.Inputs["pressure"] != 2 {
			t.Fatalf("fixed input missing from request %d", i)
		}
	}
	if reqs[1].Inputs["x0"] != 5 || reqs[1].Inputs["x1"] != 6 {
		t.Fatalf("unexpected inputs %v", reqs[1].Inputs)
	}
}

func TestRequestsEnsembleExpansion(t *testing.T) {
	s := bowlSpec()
	table, err := NewSampleTable(map[string][]float64{"noise": {0.1, 0.2, 0.3}})
	if err != nil {
		t.Fatalf("NewSampleTable: %v", err)
	}
	s.Samples = table

	if s.EnsembleSize() != 3 {
		t.Fatalf("EnsembleSize() = %d, want 3", s.EnsembleSize())
	}

	reqs := s.Requests(1, [][]float64{{1, 1}, {2, 2}})
	if len(reqs) != 6 {
		t.Fatalf("expected 6 requests, got %d", len(reqs))
	}
	for i, r := range reqs {
		if r.Slot != i {
			t.Fatalf("slot order broken at %d", i)
		}
		if r.Group != i/3 || r.Member != i%3 {
			t.Fatalf("request %d: group %d member %d", i, r.Group, r.Member)
		}
		want := []float64{0.1, 0.2, 0.3}[i%3]
		if r.Inputs["noise"] != want {
			t.Fatalf("request %d: noise %v, want %v", i, r.Inputs["noise"], want)
		}
	}
}

func TestNewSampleTableRagged(t *testing.T) {
	_, err := NewSampleTable(map[string][]float64{"a": {1, 2}, "b": {1}})
	if err == nil {
		t.Fatalf("expected error for ragged columns")
	}
}

func TestFromConfig(t *testing.T) {
	fail := 500.0
	def := 2.0
	reg := expr.NewRegistry()
	reg.MustRegister("capacity", func(b models.Bindings) (float64, error) {
		return b.Inputs["x0"] - 5, nil
	})

	cfg := config.Problem{
		Variables: []config.Variable{
			{Name: "x0", Min: 0, Max: 10, Default: &def},
			{Name: "x1", Min: 1, Max: 100, Scaling: "log"},
		},
		Objectives: []config.Objective{
			{Name: "bowl", Expr: "x.x0 * x.x0 + f.y", Fail: &fail},
		},
		Constraints: []config.Constraint{
			{Name: "cap", Func: "capacity", Form: "quadratic"},
		},
		Fixed:   map[string]float64{"temp": 300},
		Outputs: []string{"y"},
	}

	spec, err := FromConfig(cfg, reg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if spec.Variables[0].Default != 2 || spec.Variables[1].Default != 50.5 {
		t.Fatalf("unexpected defaults: %+v", spec.Variables)
	}
	if spec.Variables[1].Scaling != ScaleLog {
		t.Fatalf("expected log scaling")
	}
	if spec.Objectives[0].Fail != 500 || spec.Objectives[0].PenaltyScale != 1 {
		t.Fatalf("unexpected objective settings: %+v", spec.Objectives[0])
	}
	if spec.Constraints[0].Weight != 100 || spec.Constraints[0].Form != PenaltyQuadratic {
		t.Fatalf("unexpected constraint settings: %+v", spec.Constraints[0])
	}
	if err := spec.Validate(1, 0, true); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	got, err := spec.Objectives[0].Expr.Eval(models.Bindings{
		Inputs:  map[string]float64{"x0": 3},
		Outputs: map[string]float64{"y": 1},
	})
	if err != nil || got != 10 {
		t.Fatalf("objective eval = %v, %v", got, err)
	}
}

func TestFromConfigUnresolvedFormulas(t *testing.T) {
	base := func() config.Problem {
		return config.Problem{
			Variables:  []config.Variable{{Name: "x0", Min: 0, Max: 1}},
			Objectives: []config.Objective{{Name: "f", Expr: "x.x0"}},
		}
	}

	cfg := base()
	cfg.Objectives[0].Expr = "x.missing"
	if _, err := FromConfig(cfg, nil); !errors.Is(err, models.ErrConfiguration) {
		t.Fatalf("expected configuration error for unresolved input, got %v", err)
	}

	cfg = base()
	cfg.Constraints = []config.Constraint{{Name: "g", Func: "nope"}}
	if _, err := FromConfig(cfg, expr.NewRegistry()); err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("expected unresolved callback error, got %v", err)
	}
}
