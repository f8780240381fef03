// Package expr turns objective and constraint formulas into evaluable
// callbacks. A formula is either a Go function registered by id or a
// restricted HCL arithmetic expression over the sample bindings.
package expr

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

// Expression computes a scalar from one sample's bindings
type Expression interface {
	Eval(b models.Bindings) (float64, error)
}

// Func adapts a plain Go function to Expression
type Func func(b models.Bindings) (float64, error)

// Eval calls f(b)
func (f Func) Eval(b models.Bindings) (float64, error) {
	return f(b)
}

// Registry maps callback ids to registered functions
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds fn under id. Registering an id twice is an error.
func (r *Registry) Register(id string, fn Func) error {
	if id == "" {
		return fmt.Errorf("callback id cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("callback %s is nil", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[id]; exists {
		return fmt.Errorf("callback %s already registered", id)
	}
	r.funcs[id] = fn
	return nil
}

// MustRegister is like Register but panics on error. Intended for init-time wiring.
func (r *Registry) MustRegister(id string, fn Func) {
	if err := r.Register(id, fn); err != nil {
		panic(err)
	}
}

// Resolve looks up a registered callback
func (r *Registry) Resolve(id string) (Expression, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[id]
	if !ok {
		if len(r.funcs) == 0 {
			return nil, fmt.Errorf("callback %s is not registered (no callbacks registered)", id)
		}
		return nil, fmt.Errorf("callback %s is not registered (have %s)", id, strings.Join(r.ids(), ", "))
	}
	return fn, nil
}

// IDs returns the registered ids in sorted order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ids()
}

func (r *Registry) ids() []string {
	ids := make([]string, 0, len(r.funcs))
	for id := range r.funcs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
