// Package simexec adapts external simulation programs to batch.Simulator.
//
// A Command runs the program once per sample. The physical inputs are
// written to its stdin as {"inputs": {...}}; stdout must hold one JSON
// document of the form
//
//	{"outputs": {"y": 1.5}, "error_code": 0, "message": ""}
//
// Output values can instead be picked from arbitrary paths of the document
// with OutputPaths.
package simexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/batch"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/config"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

// DefaultWaitDelay bounds how long a killed program may keep its pipes open
const DefaultWaitDelay = 2 * time.Second

// Command runs an external program per sample
type Command struct {
	Program string
	Args    []string
	Dir     string
	// Env is appended to the current environment
	Env []string
	// OutputPaths maps output names to gjson paths; "$." prefixes are accepted
	OutputPaths map[string]string
	WaitDelay   time.Duration
}

var _ batch.Simulator = (*Command)(nil)

// FromConfig builds a command simulator from the run file's simulator section
func FromConfig(cfg config.Simulator) (*Command, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("simulator command is not configured")
	}
	return &Command{
		Program:     cfg.Command[0],
		Args:        cfg.Command[1:],
		Dir:         cfg.Dir,
		Env:         cfg.Env,
		OutputPaths: cfg.OutputPaths,
	}, nil
}

// Simulate runs the program with inputs on stdin. The process is killed when
// ctx is done.
func (c *Command) Simulate(ctx context.Context, inputs map[string]float64) (*models.SampleResult, error) {
	payload, err := json.Marshal(struct {
		Inputs map[string]float64 `json:"inputs"`
	}{Inputs: inputs})
	if err != nil {
		return nil, fmt.Errorf("encode inputs: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Program, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.WaitDelay = c.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", c.Program, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", c.Program, err)
	}
	return c.parse(stdout.Bytes())
}

func (c *Command) parse(out []byte) (*models.SampleResult, error) {
	if !gjson.ValidBytes(out) {
		return nil, fmt.Errorf("%s: stdout is not valid JSON", c.Program)
	}
	res := &models.SampleResult{
		ErrorCode: int(gjson.GetBytes(out, "error_code").Int()),
		Message:   gjson.GetBytes(out, "message").String(),
	}

	var (
		outputs map[string]float64
		err     error
	)
	if len(c.OutputPaths) > 0 {
		outputs, err = extract(out, c.OutputPaths)
	} else {
		outputs, err = outputsObject(out)
	}
	// a program reporting its own failure may omit outputs
	if err != nil && res.ErrorCode == models.ErrCodeNone {
		return nil, fmt.Errorf("%s: %w", c.Program, err)
	}
	res.Outputs = outputs
	return res, nil
}

func outputsObject(out []byte) (map[string]float64, error) {
	obj := gjson.GetBytes(out, "outputs")
	if !obj.IsObject() {
		return nil, fmt.Errorf("missing outputs object")
	}
	outputs := make(map[string]float64)
	var errs []error
	obj.ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.Number {
			errs = append(errs, fmt.Errorf("output %s is not a number", key.String()))
			return true
		}
		outputs[key.String()] = value.Float()
		return true
	})
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return outputs, nil
}

func extract(out []byte, paths map[string]string) (map[string]float64, error) {
	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	sort.Strings(names)

	outputs := make(map[string]float64, len(paths))
	var errs []error
	for _, name := range names {
		value := gjson.GetBytes(out, convertPath(paths[name]))
		switch {
		case !value.Exists():
			errs = append(errs, fmt.Errorf("path %q not found for output %s", paths[name], name))
		case value.Type != gjson.Number:
			errs = append(errs, fmt.Errorf("path %q for output %s is not a number", paths[name], name))
		default:
			outputs[name] = value.Float()
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return outputs, nil
}

// convertPath accepts JSONPath-style paths:
// $.result.y -> result.y, $.runs[0].y -> runs.0.y
func convertPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	r := strings.NewReplacer("[", ".", "]", "")
	return r.Replace(path)
}
