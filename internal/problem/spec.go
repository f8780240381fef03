// Package problem holds the immutable description of an optimization run:
// decision variables with their scaling, objectives and penalized
// inequality constraints, fixed inputs and the ensemble sample table.
package problem

import (
	"fmt"
	"sort"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/expr"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

// Bindings is the variable context handed to objective and constraint callbacks
type Bindings = models.Bindings

// Objective is one minimized quantity
type Objective struct {
	Name         string
	Expr         expr.Expression
	Fail         float64
	PenaltyScale float64
}

// Constraint is an inequality g(x) <= 0 handled by penalty
type Constraint struct {
	Name   string
	Expr   expr.Expression
	Weight float64
	Form   PenaltyForm
}

// SampleTable expands every logical evaluation into one simulation per row.
// Columns are input names; every row binds one value per column.
type SampleTable struct {
	Columns []string
	Rows    [][]float64
}

// NewSampleTable builds a table from named columns of equal length
func NewSampleTable(columns map[string][]float64) (*SampleTable, error) {
	if len(columns) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	n := len(columns[names[0]])
	if n == 0 {
		return nil, fmt.Errorf("sample column %s is empty", names[0])
	}
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, len(names))
	}
	for j, name := range names {
		col := columns[name]
		if len(col) != n {
			return nil, fmt.Errorf("sample column %s has %d rows, expected %d", name, len(col), n)
		}
		for i, v := range col {
			rows[i][j] = v
		}
	}
	return &SampleTable{Columns: names, Rows: rows}, nil
}

// Spec is the problem description for one run. It must not be modified
// once a run has started.
type Spec struct {
	Variables   []DecisionVariable
	Objectives  []Objective
	Constraints []Constraint
	Fixed       map[string]float64
	Samples     *SampleTable
}

// Dim returns the number of decision variables
func (s *Spec) Dim() int {
	return len(s.Variables)
}

// EnsembleSize returns how many simulations back one logical evaluation
func (s *Spec) EnsembleSize() int {
	if s.Samples == nil || len(s.Samples.Rows) == 0 {
		return 1
	}
	return len(s.Samples.Rows)
}

// Validate checks the spec against a strategy's requirements. maxVars <= 0
// means unbounded. All failures are configuration errors.
func (s *Spec) Validate(minVars, maxVars int, mustScale bool) error {
	if len(s.Variables) < minVars {
		return models.NewConfigurationError("strategy needs at least %d decision variable(s), got %d", minVars, len(s.Variables))
	}
	if maxVars > 0 && len(s.Variables) > maxVars {
		return models.NewConfigurationError("strategy supports at most %d decision variables, got %d", maxVars, len(s.Variables))
	}
	if len(s.Objectives) == 0 {
		return models.NewConfigurationError("at least one objective is required")
	}

	for _, v := range s.Variables {
		if err := v.Check(); err != nil {
			return models.NewRunError(models.ErrConfiguration, err)
		}
		if mustScale && v.Scaling == ScaleNone {
			return models.NewConfigurationError("variable %s: strategy requires scaled variables", v.Name)
		}
	}
	for i, o := range s.Objectives {
		if o.Expr == nil {
			return models.NewConfigurationError("objective %d (%s) has no callback", i, o.Name)
		}
	}
	for i, c := range s.Constraints {
		if c.Expr == nil {
			return models.NewConfigurationError("constraint %d (%s) has no callback", i, c.Name)
		}
		if c.Weight < 0 {
			return models.NewConfigurationError("constraint %s: negative penalty weight", c.Name)
		}
	}
	return nil
}

// Bounds returns the per-variable box in normalized space
func (s *Spec) Bounds() (lower, upper []float64) {
	lower = make([]float64, len(s.Variables))
	upper = make([]float64, len(s.Variables))
	for i, v := range s.Variables {
		lower[i], upper[i] = v.Bounds()
	}
	return lower, upper
}

// ScaleVector maps physical values into normalized space
func (s *Spec) ScaleVector(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range s.Variables {
		out[i] = v.Scale(x[i])
	}
	return out
}

// UnscaleVector maps normalized values back to physical units
func (s *Spec) UnscaleVector(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range s.Variables {
		out[i] = v.Unscale(x[i])
	}
	return out
}

// InitialPoint returns the scaled variable defaults
func (s *Spec) InitialPoint() []float64 {
	x := make([]float64, len(s.Variables))
	for i, v := range s.Variables {
		x[i] = v.Default
	}
	return s.ScaleVector(x)
}

// InputNames lists every name a formula may reference under x.*
func (s *Spec) InputNames() []string {
	names := make([]string, 0, len(s.Variables)+len(s.Fixed))
	for _, v := range s.Variables {
		names = append(names, v.Name)
	}
	for name := range s.Fixed {
		names = append(names, name)
	}
	if s.Samples != nil {
		names = append(names, s.Samples.Columns...)
	}
	sort.Strings(names)
	return names
}

// Requests turns normalized candidate vectors into simulation requests,
// expanding each candidate into EnsembleSize consecutive slots.
func (s *Spec) Requests(iteration int, xs [][]float64) []models.SampleRequest {
	m := s.EnsembleSize()
	reqs := make([]models.SampleRequest, 0, len(xs)*m)
	for g, x := range xs {
		scaled := append([]float64(nil), x...)
		unscaled := s.UnscaleVector(x)
		for member := 0; member < m; member++ {
			inputs := make(map[string]float64, len(s.Fixed)+len(s.Variables))
			for name, v := range s.Fixed {
				inputs[name] = v
			}
			for i, v := range s.Variables {
				inputs[v.Name] = unscaled[i]
			}
			if s.Samples != nil {
				for j, col := range s.Samples.Columns {
					inputs[col] = s.Samples.Rows[member][j]
				}
			}
			reqs = append(reqs, models.SampleRequest{
				Iteration: iteration,
				Slot:      len(reqs),
				Group:     g,
				Member:    member,
				Scaled:    scaled,
				Unscaled:  unscaled,
				Inputs:    inputs,
			})
		}
	}
	return reqs
}
