package problem

import (
	"fmt"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/expr"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/config"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

// FromConfig builds a Spec from a run file's problem section. Formulas are
// compiled against the declared inputs; func references are resolved in reg.
func FromConfig(cfg config.Problem, reg *expr.Registry) (*Spec, error) {
	spec := &Spec{Fixed: make(map[string]float64, len(cfg.Fixed))}
	for name, v := range cfg.Fixed {
		spec.Fixed[name] = v
	}

	for _, cv := range cfg.Variables {
		scaling, err := ParseScaling(cv.Scaling)
		if err != nil {
			return nil, models.NewConfigurationError("variable %s: %v", cv.Name, err)
		}
		v := DecisionVariable{
			Name:    cv.Name,
			Min:     cv.Min,
			Max:     cv.Max,
			Scaling: scaling,
			Default: (cv.Min + cv.Max) / 2,
		}
		if cv.Default != nil {
			v.Default = *cv.Default
		}
		spec.Variables = append(spec.Variables, v)
	}

	samples, err := NewSampleTable(cfg.Samples)
	if err != nil {
		return nil, models.NewRunError(models.ErrConfiguration, err)
	}
	spec.Samples = samples

	inputs := spec.InputNames()
	resolve := func(kind, name, src, fn string) (expr.Expression, error) {
		switch {
		case src != "":
			f, err := expr.Compile(src, inputs, cfg.Outputs)
			if err != nil {
				return nil, models.NewConfigurationError("%s %s: %v", kind, name, err)
			}
			return f, nil
		case fn != "":
			if reg == nil {
				return nil, models.NewConfigurationError("%s %s: no callback registry for func %s", kind, name, fn)
			}
			e, err := reg.Resolve(fn)
			if err != nil {
				return nil, models.NewConfigurationError("%s %s: %v", kind, name, err)
			}
			return e, nil
		default:
			return nil, models.NewConfigurationError("%s %s: no formula", kind, name)
		}
	}

	for i, co := range cfg.Objectives {
		name := co.Name
		if name == "" {
			name = fmt.Sprintf("objective%d", i)
		}
		e, err := resolve("objective", name, co.Expr, co.Func)
		if err != nil {
			return nil, err
		}
		spec.Objectives = append(spec.Objectives, Objective{
			Name:         name,
			Expr:         e,
			Fail:         co.GetFail(),
			PenaltyScale: co.GetPenaltyScale(),
		})
	}

	for i, cc := range cfg.Constraints {
		name := cc.Name
		if name == "" {
			name = fmt.Sprintf("constraint%d", i)
		}
		form, err := ParsePenaltyForm(cc.GetForm())
		if err != nil {
			return nil, models.NewConfigurationError("constraint %s: %v", name, err)
		}
		e, err := resolve("constraint", name, cc.Expr, cc.Func)
		if err != nil {
			return nil, err
		}
		spec.Constraints = append(spec.Constraints, Constraint{
			Name:   name,
			Expr:   e,
			Weight: cc.GetPenalty(),
			Form:   form,
		})
	}

	return spec, nil
}
