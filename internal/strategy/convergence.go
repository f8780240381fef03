package strategy

import (
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

// ConvergenceDetector decides from the iteration history whether a run has
// stopped making progress
type ConvergenceDetector interface {
	CheckConvergence(history []models.IterationRecord) (bool, string)
	Name() string
}

// ConvergenceConfig holds the thresholds shared by the detectors
type ConvergenceConfig struct {
	// NoImprovementIterations is how many iterations may pass without a
	// significant improvement of best-so-far. Zero disables the check.
	NoImprovementIterations int
	// ImprovementThreshold is the relative improvement counted as significant
	ImprovementThreshold float64
	// ScoreTolerance is the absolute range below which scores are equal
	ScoreTolerance float64
	// MinIterations must pass before any detector fires
	MinIterations int
	// PlateauIterations is the window of the plateau check. Zero disables it.
	PlateauIterations int
}

// DefaultConvergenceConfig returns the defaults used when a strategy is not
// given stall options
func DefaultConvergenceConfig() *ConvergenceConfig {
	return &ConvergenceConfig{
		NoImprovementIterations: 20,
		ImprovementThreshold:    1e-6,
		ScoreTolerance:          1e-9,
		MinIterations:           3,
		PlateauIterations:       0,
	}
}

// convergenceFromOptions reads stall_iterations, stall_tolerance and
// plateau_iterations on top of the defaults
func convergenceFromOptions(o Options) (*ConvergenceConfig, error) {
	cfg := DefaultConvergenceConfig()
	var err error
	if cfg.NoImprovementIterations, err = o.Int("stall_iterations", cfg.NoImprovementIterations); err != nil {
		return nil, err
	}
	if cfg.ImprovementThreshold, err = o.Float("stall_tolerance", cfg.ImprovementThreshold); err != nil {
		return nil, err
	}
	if cfg.PlateauIterations, err = o.Int("plateau_iterations", cfg.PlateauIterations); err != nil {
		return nil, err
	}
	if cfg.NoImprovementIterations < 0 || cfg.PlateauIterations < 0 || cfg.ImprovementThreshold < 0 {
		return nil, models.NewConfigurationError("stall options must not be negative")
	}
	return cfg, nil
}

var convergenceKeys = []string{"stall_iterations", "stall_tolerance", "plateau_iterations"}

// NoImprovementDetector fires when best-so-far has not improved
// significantly for N iterations
type NoImprovementDetector struct {
	config *ConvergenceConfig
}

// NewNoImprovementDetector creates a no-improvement detector
func NewNoImprovementDetector(config *ConvergenceConfig) *NoImprovementDetector {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &NoImprovementDetector{config: config}
}

func (d *NoImprovementDetector) Name() string {
	return "no_improvement"
}

func (d *NoImprovementDetector) CheckConvergence(history []models.IterationRecord) (bool, string) {
	n := d.config.NoImprovementIterations
	if n <= 0 || len(history) < d.config.MinIterations || len(history) <= n {
		return false, ""
	}

	last := history[len(history)-1].Best
	ref := history[len(history)-1-n].Best
	if math.IsInf(ref, 1) {
		return false, ""
	}
	if ref-last > d.config.ImprovementThreshold*math.Max(1, math.Abs(ref)) {
		return false, ""
	}
	return true, fmt.Sprintf("no improvement for %d iterations (best %g)", n, last)
}

// PlateauDetector fires when the last N best values lie within the score
// tolerance of each other
type PlateauDetector struct {
	config *ConvergenceConfig
}

// NewPlateauDetector creates a plateau detector
func NewPlateauDetector(config *ConvergenceConfig) *PlateauDetector {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &PlateauDetector{config: config}
}

func (d *PlateauDetector) Name() string {
	return "plateau"
}

func (d *PlateauDetector) CheckConvergence(history []models.IterationRecord) (bool, string) {
	n := d.config.PlateauIterations
	if n <= 0 || len(history) < d.config.MinIterations || len(history) < n {
		return false, ""
	}

	recent := history[len(history)-n:]
	lo, hi := recent[0].Best, recent[0].Best
	for _, rec := range recent {
		lo = math.Min(lo, rec.Best)
		hi = math.Max(hi, rec.Best)
	}
	if math.IsInf(hi, 1) {
		return false, ""
	}
	if hi-lo <= d.config.ScoreTolerance {
		return true, fmt.Sprintf("best plateaued for %d iterations (range %g)", n, hi-lo)
	}
	return false, ""
}

// CombinedDetector fires as soon as any of its detectors does
type CombinedDetector struct {
	detectors []ConvergenceDetector
}

// NewCombinedDetector combines the no-improvement and plateau detectors
func NewCombinedDetector(config *ConvergenceConfig) *CombinedDetector {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &CombinedDetector{
		detectors: []ConvergenceDetector{
			NewNoImprovementDetector(config),
			NewPlateauDetector(config),
		},
	}
}

func (d *CombinedDetector) Name() string {
	return "combined"
}

func (d *CombinedDetector) CheckConvergence(history []models.IterationRecord) (bool, string) {
	for _, det := range d.detectors {
		if ok, reason := det.CheckConvergence(history); ok {
			return true, fmt.Sprintf("%s: %s", det.Name(), reason)
		}
	}
	return false, ""
}

// AddDetector appends a custom detector
func (d *CombinedDetector) AddDetector(det ConvergenceDetector) {
	d.detectors = append(d.detectors, det)
}
