// Package strategy holds the optimization algorithms that drive a run.
//
// Every strategy works in the normalized decision space of the problem and
// minimizes the first objective. Candidates are turned into simulation
// requests, dispatched as one batch per iteration and scored through a
// Session, which also owns best-so-far tracking, progress events and
// checkpoints.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/batch"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/evaluator"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/metrics"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/problem"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/progress"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

// Strategy is one optimization algorithm. A Strategy value serves a single
// run: Configure is called once before Run.
type Strategy interface {
	Name() string
	// MinVars and MaxVars bound the supported problem dimension. MaxVars
	// <= 0 means unbounded.
	MinVars() int
	MaxVars() int
	// Configure validates opts before any batch is submitted. Strategies
	// that support resuming load restart_in here.
	Configure(opts Options) error
	// Run blocks until the strategy converges, hits a limit or ctx is done.
	Run(ctx context.Context, rc *RunContext) (*Outcome, error)
}

// RunContext carries the collaborators of one run
type RunContext struct {
	RunID     string
	Spec      *problem.Spec
	Initial   []float64
	Evaluator *evaluator.Evaluator
	Runner    *batch.Runner
	Progress  *progress.Channel
	Metrics   *metrics.Recorder
	Log       *slog.Logger
}

// Outcome is what a strategy reports when Run returns. It is filled in even
// when Run returns an error so the best point found is never lost.
type Outcome struct {
	Best       float64
	BestX      []float64
	Objectives []float64
	Iterations int
	Samples    int
	Errors     int
	Converged  bool
	Reason     string
	History    []models.IterationRecord
}

// Factory creates a fresh strategy instance
type Factory func() Strategy

// Registry maps strategy names to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("strategy name is required")
	}
	if f == nil {
		return fmt.Errorf("strategy %s: nil factory", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("strategy %s already registered", name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is Register that panics on error
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// New instantiates the named strategy
func (r *Registry) New(name string) (Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, models.NewConfigurationError("unknown strategy %q", name)
	}
	return f(), nil
}

// Names lists the registered strategies in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry with the built-in strategies
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(PatternSearchName, func() Strategy { return NewPatternSearch() })
	r.MustRegister(EvolutionName, func() Strategy { return NewEvolution() })
	r.MustRegister(BFGSName, func() Strategy { return NewBFGS() })
	return r
}
