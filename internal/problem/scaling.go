package problem

import (
	"fmt"
	"math"
	"strings"
)

// Scaling selects the map between a variable's physical range and the
// normalized range [ScaledMin, ScaledMax] that strategies work in.
type Scaling string

const (
	ScaleNone   Scaling = "none"
	ScaleLinear Scaling = "linear"
	ScaleLog    Scaling = "log"
	ScalePower  Scaling = "power"
	ScaleLog2   Scaling = "log2"
	ScalePower2 Scaling = "power2"
)

// Normalized range shared by all strategies
const (
	ScaledMin = 0.0
	ScaledMax = 10.0

	// BoundEpsilon is the smallest allowed physical range of a variable
	BoundEpsilon = 1e-10
)

// ParseScaling maps a config value to a Scaling. Empty means linear.
func ParseScaling(s string) (Scaling, error) {
	switch Scaling(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScaleLinear:
		return ScaleLinear, nil
	case ScaleNone:
		return ScaleNone, nil
	case ScaleLog:
		return ScaleLog, nil
	case ScalePower:
		return ScalePower, nil
	case ScaleLog2:
		return ScaleLog2, nil
	case ScalePower2:
		return ScalePower2, nil
	default:
		return "", fmt.Errorf("unknown scaling %q", s)
	}
}

// DecisionVariable is one optimized input in physical units
type DecisionVariable struct {
	Name    string
	Min     float64
	Max     float64
	Default float64
	Scaling Scaling
}

// Check validates the bounds, the default and the scaling domain
func (v DecisionVariable) Check() error {
	if v.Max-v.Min <= BoundEpsilon {
		return fmt.Errorf("variable %s: upper bound %g must exceed lower bound %g", v.Name, v.Max, v.Min)
	}
	if v.Default < v.Min || v.Default > v.Max {
		return fmt.Errorf("variable %s: default %g outside [%g, %g]", v.Name, v.Default, v.Min, v.Max)
	}
	if v.Scaling == ScaleLog && v.Min <= 0 {
		return fmt.Errorf("variable %s: log scaling requires a positive lower bound", v.Name)
	}
	return nil
}

// Bounds returns the normalized-space box of the variable. Unscaled
// variables keep their physical bounds.
func (v DecisionVariable) Bounds() (float64, float64) {
	if v.Scaling == ScaleNone {
		return v.Min, v.Max
	}
	return ScaledMin, ScaledMax
}

// Scale maps a physical value into normalized space
func (v DecisionVariable) Scale(x float64) float64 {
	lo, hi := v.Min, v.Max
	switch v.Scaling {
	case ScaleNone:
		return x
	case ScaleLog:
		return 10 * (math.Log10(x) - math.Log10(lo)) / (math.Log10(hi) - math.Log10(lo))
	case ScalePower:
		return 10 * (math.Pow(10, x) - math.Pow(10, lo)) / (math.Pow(10, hi) - math.Pow(10, lo))
	case ScaleLog2:
		return 10 * math.Log10(9*(x-lo)/(hi-lo)+1)
	case ScalePower2:
		return 10.0 / 9.0 * (math.Pow(10, (x-lo)/(hi-lo)) - 1)
	default:
		return 10 * (x - lo) / (hi - lo)
	}
}

// Unscale maps a normalized value back to physical units
func (v DecisionVariable) Unscale(s float64) float64 {
	lo, hi := v.Min, v.Max
	switch v.Scaling {
	case ScaleNone:
		return s
	case ScaleLog:
		return lo * math.Pow(hi/lo, s/10)
	case ScalePower:
		return math.Log10((s/10)*(math.Pow(10, hi)-math.Pow(10, lo)) + math.Pow(10, lo))
	case ScaleLog2:
		return (math.Pow(10, s/10)-1)*(hi-lo)/9 + lo
	case ScalePower2:
		return math.Log10(9*s/10+1)*(hi-lo) + lo
	default:
		return s*(hi-lo)/10 + lo
	}
}
