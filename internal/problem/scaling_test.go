package problem

import (
	"math"
	"testing"
)

func TestScaleEndpoints(t *testing.T) {
	for _, sc := range []Scaling{ScaleLinear, ScaleLog, ScalePower, ScaleLog2, ScalePower2} {
		v := DecisionVariable{Name: "v", Min: 1, Max: 3, Default: 2, Scaling: sc}
		if got := v.Scale(1); math.Abs(got-ScaledMin) > 1e-9 {
			t.Errorf("%s: Scale(min) = %v, want %v", sc, got, ScaledMin)
		}
		if got := v.Scale(3); math.Abs(got-ScaledMax) > 1e-9 {
			t.Errorf("%s: Scale(max) = %v, want %v", sc, got, ScaledMax)
		}
	}
}

func TestScaleRoundTrip(t *testing.T) {
	for _, sc := range []Scaling{ScaleNone, ScaleLinear, ScaleLog, ScalePower, ScaleLog2, ScalePower2} {
		v := DecisionVariable{Name: "v", Min: 0.5, Max: 2.5, Default: 1, Scaling: sc}
		for _, x := range []float64{0.5, 0.75, 1.3, 2.0, 2.5} {
			if got := v.Unscale(v.Scale(x)); math.Abs(got-x) > 1e-9 {
				t.Errorf("%s: Unscale(Scale(%v)) = %v", sc, x, got)
			}
		}
	}
}

func TestLinearScaleValues(t *testing.T) {
	v := DecisionVariable{Name: "v", Min: 100, Max: 200, Scaling: ScaleLinear}
	if got := v.Scale(150); got != 5 {
		t.Fatalf("Scale(150) = %v, want 5", got)
	}
	if got := v.Unscale(2); got != 120 {
		t.Fatalf("Unscale(2) = %v, want 120", got)
	}
}

func TestLogScaleMidpoint(t *testing.T) {
	v := DecisionVariable{Name: "v", Min: 1, Max: 100, Scaling: ScaleLog}
	if got := v.Scale(10); math.Abs(got-5) > 1e-12 {
		t.Fatalf("Scale(10) = %v, want 5", got)
	}
}

func TestBoundsNoneScaling(t *testing.T) {
	v := DecisionVariable{Name: "v", Min: -3, Max: 7, Scaling: ScaleNone}
	lo, hi := v.Bounds()
	if lo != -3 || hi != 7 {
		t.Fatalf("Bounds() = (%v, %v), want physical bounds", lo, hi)
	}
	v.Scaling = ScaleLinear
	lo, hi = v.Bounds()
	if lo != ScaledMin || hi != ScaledMax {
		t.Fatalf("Bounds() = (%v, %v), want normalized bounds", lo, hi)
	}
}

func TestParseScaling(t *testing.T) {
	if s, err := ParseScaling(""); err != nil || s != ScaleLinear {
		t.Fatalf("empty scaling should be linear, got %v %v", s, err)
	}
	if s, err := ParseScaling("Log2"); err != nil || s != ScaleLog2 {
		t.Fatalf("expected log2, got %v %v", s, err)
	}
	if _, err := ParseScaling("cubic"); err == nil {
		t.Fatalf("expected error for unknown scaling")
	}
}

func TestPenaltyForms(t *testing.T) {
	tests := []struct {
		form   PenaltyForm
		margin float64
		weight float64
		want   float64
	}{
		{PenaltyLinear, 2, 100, 200},
		{PenaltyLinear, 0, 100, 0},
		{PenaltyLinear, -1, 100, 0},
		{PenaltyQuadratic, 3, 10, 90},
		{PenaltyQuadratic, 0, 10, 0},
		{PenaltyStep, 0.001, 50, 50},
		{PenaltyStep, 0, 50, 0},
		{PenaltyLinear, math.NaN(), 100, 0},
	}
	for _, tt := range tests {
		if got := Penalty(tt.form, tt.margin, tt.weight); got != tt.want {
			t.Errorf("Penalty(%s, %v, %v) = %v, want %v", tt.form, tt.margin, tt.weight, got, tt.want)
		}
	}
}
