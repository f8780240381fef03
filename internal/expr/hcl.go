package expr

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

// Roots of the binding namespace inside a formula
const (
	InputRoot  = "x"
	OutputRoot = "f"
)

// Formula is a compiled HCL expression such as `f.cost + 2 * x.flow.rate`.
// It has no access to anything except the two binding roots and the math
// functions below.
type Formula struct {
	src  string
	expr hcl.Expression
}

var functions = map[string]function.Function{
	"abs":    stdlib.AbsoluteFunc,
	"ceil":   stdlib.CeilFunc,
	"floor":  stdlib.FloorFunc,
	"log":    stdlib.LogFunc,
	"max":    stdlib.MaxFunc,
	"min":    stdlib.MinFunc,
	"pow":    stdlib.PowFunc,
	"signum": stdlib.SignumFunc,
	"sqrt":   unaryMathFunc(math.Sqrt),
	"exp":    unaryMathFunc(math.Exp),
	"log10":  unaryMathFunc(math.Log10),
}

func unaryMathFunc(fn func(float64) float64) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "num", Type: cty.Number},
		},
		Type: function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			in, _ := args[0].AsBigFloat().Float64()
			out := fn(in)
			if math.IsNaN(out) {
				return cty.UnknownVal(cty.Number), fmt.Errorf("result is not a number for argument %g", in)
			}
			return cty.NumberFloatVal(out), nil
		},
	})
}

// Compile parses src and checks every variable reference against the known
// input and output names. A nil outputs slice disables checking of f.*
// references, which are then resolved at evaluation time.
func Compile(src string, inputs, outputs []string) (*Formula, error) {
	parsed, diags := hclsyntax.ParseExpression([]byte(src), "formula", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %q: %s", src, diags.Error())
	}

	for _, traversal := range parsed.Variables() {
		if err := checkTraversal(traversal, inputs, outputs); err != nil {
			return nil, fmt.Errorf("formula %q: %w", src, err)
		}
	}

	var unknown []string
	hclsyntax.VisitAll(parsed, func(n hclsyntax.Node) hcl.Diagnostics {
		if call, ok := n.(*hclsyntax.FunctionCallExpr); ok {
			if _, known := functions[call.Name]; !known {
				unknown = append(unknown, call.Name)
			}
		}
		return nil
	})
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("formula %q: unknown function(s) %s", src, strings.Join(unknown, ", "))
	}

	return &Formula{src: src, expr: parsed}, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// formulas known at build time.
func MustCompile(src string, inputs, outputs []string) *Formula {
	f, err := Compile(src, inputs, outputs)
	if err != nil {
		panic(err)
	}
	return f
}

// String returns the formula source
func (f *Formula) String() string {
	return f.src
}

// Eval evaluates the formula over b. Any evaluation problem, including a
// missing binding or a non-numeric result, is returned as an error.
func (f *Formula) Eval(b models.Bindings) (result float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("formula %q panicked: %v", f.src, r)
		}
	}()

	inputs, err := bindingObject(b.Inputs)
	if err != nil {
		return 0, fmt.Errorf("formula %q inputs: %w", f.src, err)
	}
	outputs, err := bindingObject(b.Outputs)
	if err != nil {
		return 0, fmt.Errorf("formula %q outputs: %w", f.src, err)
	}

	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			InputRoot:  inputs,
			OutputRoot: outputs,
		},
		Functions: functions,
	}

	val, diags := f.expr.Value(ctx)
	if diags.HasErrors() {
		return 0, fmt.Errorf("formula %q: %s", f.src, diags.Error())
	}
	if val.IsNull() || !val.IsKnown() {
		return 0, fmt.Errorf("formula %q produced no value", f.src)
	}

	num, convErr := convert.Convert(val, cty.Number)
	if convErr != nil {
		return 0, fmt.Errorf("formula %q result is %s, not a number", f.src, val.Type().FriendlyName())
	}
	out, _ := num.AsBigFloat().Float64()
	return out, nil
}

// checkTraversal validates that a reference points at a root we bind and,
// when names are known, at a binding that exists.
func checkTraversal(t hcl.Traversal, inputs, outputs []string) error {
	root := t.RootName()
	var known []string
	switch root {
	case InputRoot:
		known = inputs
	case OutputRoot:
		if outputs == nil {
			return nil
		}
		known = outputs
	default:
		return fmt.Errorf("unknown reference %q (use %s.<input> or %s.<output>)", root, InputRoot, OutputRoot)
	}

	var parts []string
	for _, step := range t[1:] {
		switch s := step.(type) {
		case hcl.TraverseAttr:
			parts = append(parts, s.Name)
		case hcl.TraverseIndex:
			if s.Key.Type() != cty.String {
				return fmt.Errorf("%s: only named references are allowed", root)
			}
			parts = append(parts, s.Key.AsString())
		}
	}
	if len(parts) == 0 {
		return fmt.Errorf("%s must be followed by a variable name", root)
	}

	path := strings.Join(parts, ".")
	for _, name := range known {
		if name == path || strings.HasPrefix(name, path+".") {
			return nil
		}
	}
	return fmt.Errorf("unresolved reference %s.%s", root, path)
}

// bindingObject turns flat dotted names ("flash.temp") into nested cty objects
// so that `x.flash.temp` resolves.
func bindingObject(values map[string]float64) (cty.Value, error) {
	tree := make(map[string]any)
	for name, v := range values {
		if math.IsNaN(v) {
			return cty.NilVal, fmt.Errorf("%s is NaN", name)
		}
		parts := strings.Split(name, ".")
		node := tree
		for i, part := range parts {
			if i == len(parts)-1 {
				if _, exists := node[part]; exists {
					return cty.NilVal, fmt.Errorf("binding %s conflicts with a nested name", name)
				}
				node[part] = v
				break
			}
			next, exists := node[part]
			if !exists {
				child := make(map[string]any)
				node[part] = child
				node = child
				continue
			}
			child, ok := next.(map[string]any)
			if !ok {
				return cty.NilVal, fmt.Errorf("binding %s conflicts with scalar %s", name, part)
			}
			node = child
		}
	}
	return treeToValue(tree), nil
}

func treeToValue(tree map[string]any) cty.Value {
	if len(tree) == 0 {
		return cty.EmptyObjectVal
	}
	attrs := make(map[string]cty.Value, len(tree))
	for k, v := range tree {
		switch val := v.(type) {
		case float64:
			attrs[k] = cty.NumberFloatVal(val)
		case map[string]any:
			attrs[k] = treeToValue(val)
		}
	}
	return cty.ObjectVal(attrs)
}
