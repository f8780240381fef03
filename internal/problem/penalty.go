package problem

import (
	"fmt"
	"strings"
)

// PenaltyForm selects how a positive constraint violation is penalized
type PenaltyForm string

const (
	PenaltyLinear    PenaltyForm = "linear"
	PenaltyQuadratic PenaltyForm = "quadratic"
	PenaltyStep      PenaltyForm = "step"
)

// ParsePenaltyForm maps a config value to a PenaltyForm. Empty means linear.
func ParsePenaltyForm(s string) (PenaltyForm, error) {
	switch PenaltyForm(strings.ToLower(strings.TrimSpace(s))) {
	case "", PenaltyLinear:
		return PenaltyLinear, nil
	case PenaltyQuadratic:
		return PenaltyQuadratic, nil
	case PenaltyStep:
		return PenaltyStep, nil
	default:
		return "", fmt.Errorf("unknown penalty form %q", s)
	}
}

// Penalty returns the penalty for a violation margin. Margins at or below
// zero are satisfied and cost nothing.
func Penalty(form PenaltyForm, margin, weight float64) float64 {
	if !(margin > 0) {
		return 0
	}
	switch form {
	case PenaltyQuadratic:
		return margin * margin * weight
	case PenaltyStep:
		return weight
	default:
		return margin * weight
	}
}
