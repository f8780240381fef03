package evaluator

import (
	"errors"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/expr"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/problem"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/logger"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

func okResult(x0, x1 float64) *models.SampleResult {
	return &models.SampleResult{
		Inputs:  map[string]float64{"x0": x0, "x1": x1},
		Outputs: map[string]float64{"y": x0*x0 + x1*x1},
		Status:  models.SampleOK,
	}
}

func bowlSpec(calls *int64) *problem.Spec {
	return &problem.Spec{
		Variables: []problem.DecisionVariable{
			{Name: "x0", Min: 0, Max: 10, Scaling: problem.ScaleLinear},
			{Name: "x1", Min: 0, Max: 10, Scaling: problem.ScaleLinear},
		},
		Objectives: []problem.Objective{{
			Name: "bowl",
			Expr: expr.Func(func(b models.Bindings) (float64, error) {
				if calls != nil {
					atomic.AddInt64(calls, 1)
				}
				return b.Inputs["x0"]*b.Inputs["x0"] + b.Inputs["x1"]*b.Inputs["x1"], nil
			}),
			Fail:         1000,
			PenaltyScale: 1,
		}},
	}
}

func TestScoreBowl(t *testing.T) {
	ev := New(bowlSpec(nil), logger.Discard())

	got, err := ev.Score([]*models.SampleResult{okResult(3, 4)})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(got) != 1 || got[0].Objectives[0] != 25 {
		t.Fatalf("expected objective 25, got %+v", got)
	}
	if got[0].Failed || got[0].Penalty != 0 {
		t.Fatalf("unexpected failure/penalty: %+v", got[0])
	}
}

func TestFailedSamplesGetFailValueWithoutCallback(t *testing.T) {
	var calls int64
	ev := New(bowlSpec(&calls), logger.Discard())

	bad := okResult(3, 4)
	bad.ErrorCode = models.ErrCodeException
	noOutputs := okResult(3, 4)
	noOutputs.Outputs = nil

	results := []*models.SampleResult{nil, bad, noOutputs}
	got, err := ev.Score(results)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	for i, r := range got {
		if !r.Failed || r.Objectives[0] != 1000 {
			t.Fatalf("result %d: expected fail value 1000, got %+v", i, r)
		}
		if r.Penalty != 0 {
			t.Fatalf("result %d: expected zero penalty, got %v", i, r.Penalty)
		}
	}
	if calls != 0 {
		t.Fatalf("objective callback invoked %d times for failed samples", calls)
	}
}

func TestLinearConstraintPenalty(t *testing.T) {
	spec := bowlSpec(nil)
	spec.Constraints = []problem.Constraint{{
		Name:   "x0_cap",
		Expr:   expr.MustCompile("x.x0 - 5", []string{"x0", "x1"}, nil),
		Weight: 100,
		Form:   problem.PenaltyLinear,
	}}
	ev := New(spec, logger.Discard())

	got, err := ev.Score([]*models.SampleResult{okResult(7, 0), okResult(5, 0), okResult(3, 0)})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	if got[0].Constraints[0] != 200 || got[0].Penalty != 200 {
		t.Fatalf("x0=7: expected penalty 200, got %+v", got[0])
	}
	if got[0].Objectives[0] != 49+200 {
		t.Fatalf("x0=7: expected objective 249, got %v", got[0].Objectives[0])
	}
	if got[1].Penalty != 0 || got[1].Objectives[0] != 25 {
		t.Fatalf("x0=5 (boundary): expected no penalty, got %+v", got[1])
	}
	if got[2].Penalty != 0 || got[2].Objectives[0] != 9 {
		t.Fatalf("x0=3: expected no penalty, got %+v", got[2])
	}
}

func TestPenaltyScaleAndForms(t *testing.T) {
	spec := bowlSpec(nil)
	spec.Objectives[0].PenaltyScale = 0.5
	margin := expr.MustCompile("x.x0 - 5", []string{"x0", "x1"}, nil)
	spec.Constraints = []problem.Constraint{
		{Name: "quad", Expr: margin, Weight: 10, Form: problem.PenaltyQuadratic},
		{Name: "step", Expr: margin, Weight: 7, Form: problem.PenaltyStep},
	}
	ev := New(spec, logger.Discard())

	got, err := ev.Score([]*models.SampleResult{okResult(8, 0)})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	want := []float64{90, 7}
	if !reflect.DeepEqual(got[0].Constraints, want) {
		t.Fatalf("constraint penalties = %v, want %v", got[0].Constraints, want)
	}
	if got[0].Objectives[0] != 64+0.5*97 {
		t.Fatalf("objective = %v, want %v", got[0].Objectives[0], 64+0.5*97)
	}
}

func TestEvaluationErrorsAreRecovered(t *testing.T) {
	spec := bowlSpec(nil)
	spec.Objectives = append(spec.Objectives, problem.Objective{
		Name: "broken",
		Expr: expr.Func(func(models.Bindings) (float64, error) { return 0, errors.New("division by zero") }),
		Fail: 42,
	})
	spec.Constraints = []problem.Constraint{{
		Name:   "broken",
		Expr:   expr.Func(func(models.Bindings) (float64, error) { return 0, errors.New("missing output") }),
		Weight: 100,
		Form:   problem.PenaltyLinear,
	}}
	ev := New(spec, logger.Discard())

	got, err := ev.Score([]*models.SampleResult{okResult(3, 4)})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got[0].Penalty != 0 {
		t.Fatalf("failed constraint must contribute zero penalty, got %v", got[0].Penalty)
	}
	if got[0].Objectives[0] != 25 || got[0].Objectives[1] != 42 {
		t.Fatalf("objectives = %v, want [25 42]", got[0].Objectives)
	}
	if got[0].Failed {
		t.Fatalf("an expression error is not a failed sample")
	}
}

func TestScoreIsIdempotent(t *testing.T) {
	spec := bowlSpec(nil)
	spec.Constraints = []problem.Constraint{{
		Name:   "cap",
		Expr:   expr.MustCompile("x.x0 - 5", []string{"x0", "x1"}, nil),
		Weight: 100,
		Form:   problem.PenaltyQuadratic,
	}}
	ev := New(spec, logger.Discard())
	batch := []*models.SampleResult{okResult(7, 1), nil, okResult(2, 2)}

	first, err := ev.Score(batch)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	second, err := ev.Score(batch)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Score is not idempotent: %v vs %v", first, second)
	}
}

func TestEnsembleGroups(t *testing.T) {
	spec := bowlSpec(nil)
	spec.Objectives[0].Expr = expr.MustCompile("f.y", nil, []string{"y"})
	table, err := problem.NewSampleTable(map[string][]float64{"noise": {1, 2}})
	if err != nil {
		t.Fatalf("NewSampleTable: %v", err)
	}
	spec.Samples = table
	ev := New(spec, logger.Discard())

	a := &models.SampleResult{Inputs: map[string]float64{"x0": 1}, Outputs: map[string]float64{"y": 10}, Status: models.SampleOK}
	b := &models.SampleResult{Inputs: map[string]float64{"x0": 1}, Outputs: map[string]float64{"y": 20}, Status: models.SampleOK}

	got, err := ev.Score([]*models.SampleResult{a, b, a, nil})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(got))
	}
	if got[0].Objectives[0] != 15 {
		t.Fatalf("ensemble mean = %v, want 15", got[0].Objectives[0])
	}
	if !got[1].Failed || got[1].Objectives[0] != 1000 {
		t.Fatalf("group with a failed member must fail, got %+v", got[1])
	}

	if _, err := ev.Score([]*models.SampleResult{a, b, a}); err == nil {
		t.Fatalf("expected error for a partial ensemble")
	}
}
