package strategy

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/problem"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/utils"
)

// MaxTimeThreshold is the smallest max_time (in hours) that enables the
// run's time budget
const MaxTimeThreshold = 0.0002

// Options is the raw option map of a strategy, as decoded from the run file
type Options map[string]any

// Has reports whether key was set
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// Float returns key as a float64, or def when unset
func (o Options) Float(key string, def float64) (float64, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, models.NewConfigurationError("option %s: expected a number, got %T", key, v)
	}
}

// Int returns key as an int, or def when unset. Integral floats are accepted.
func (o Options) Int(key string, def int) (int, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, models.NewConfigurationError("option %s: expected an integer, got %v", key, n)
		}
		return int(n), nil
	default:
		return 0, models.NewConfigurationError("option %s: expected an integer, got %T", key, v)
	}
}

// String returns key as a string, or def when unset
func (o Options) String(key, def string) (string, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", models.NewConfigurationError("option %s: expected a string, got %T", key, v)
	}
	return s, nil
}

// CheckKnown rejects keys outside the common options and known
func (o Options) CheckKnown(known ...string) error {
	allowed := make(map[string]struct{}, len(commonKeys)+len(known))
	for _, k := range commonKeys {
		allowed[k] = struct{}{}
	}
	for _, k := range known {
		allowed[k] = struct{}{}
	}
	var unknown []string
	for k := range o {
		if _, ok := allowed[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return models.NewConfigurationError("unknown option(s): %s", strings.Join(unknown, ", "))
	}
	return nil
}

var commonKeys = []string{
	"lower", "upper", "itmax", "max_time",
	"restart_in", "restart_out", "restart_every", "restart_interval",
	"seed", "log_objective",
}

// CommonOptions are understood by every strategy
type CommonOptions struct {
	// Lower and Upper narrow the normalized box of scaled variables
	Lower float64
	Upper float64
	// MaxIterations stops the run after that many iterations. Zero means
	// the strategy's own convergence criteria decide.
	MaxIterations int
	// MaxTime is the cumulative simulation time budget. Zero disables it.
	MaxTime time.Duration

	RestartIn  string
	RestartOut string
	// RestartEvery writes a checkpoint every n iterations; below 1 disables
	RestartEvery int
	// RestartInterval writes a checkpoint once this much time passed since
	// the last one; below one second disables
	RestartInterval time.Duration

	Seed         int64
	LogObjective string
}

// ParseCommon reads and validates the common options
func ParseCommon(o Options) (CommonOptions, error) {
	var c CommonOptions
	var err error

	if c.Lower, err = o.Float("lower", problem.ScaledMin); err != nil {
		return c, err
	}
	if c.Upper, err = o.Float("upper", problem.ScaledMax); err != nil {
		return c, err
	}
	if c.Lower < problem.ScaledMin || c.Upper > problem.ScaledMax || c.Lower >= c.Upper {
		return c, models.NewConfigurationError("lower/upper must satisfy %g <= lower < upper <= %g, got %g/%g",
			problem.ScaledMin, problem.ScaledMax, c.Lower, c.Upper)
	}

	if c.MaxIterations, err = o.Int("itmax", 0); err != nil {
		return c, err
	}
	if c.MaxIterations < 0 {
		return c, models.NewConfigurationError("itmax must not be negative")
	}

	hours, err := o.Float("max_time", 0)
	if err != nil {
		return c, err
	}
	c.MaxTime = utils.HoursToDuration(hours, MaxTimeThreshold)

	if c.RestartIn, err = o.String("restart_in", ""); err != nil {
		return c, err
	}
	if c.RestartOut, err = o.String("restart_out", ""); err != nil {
		return c, err
	}
	if c.RestartEvery, err = o.Int("restart_every", 0); err != nil {
		return c, err
	}
	seconds, err := o.Float("restart_interval", 0)
	if err != nil {
		return c, err
	}
	if seconds >= 1 {
		c.RestartInterval = time.Duration(seconds * float64(time.Second))
	}

	seed, err := o.Int("seed", 0)
	if err != nil {
		return c, err
	}
	c.Seed = int64(seed)

	if c.LogObjective, err = o.String("log_objective", ""); err != nil {
		return c, err
	}
	if c.RestartOut == "" && (o.Has("restart_every") || o.Has("restart_interval")) {
		return c, models.NewConfigurationError("restart_every and restart_interval require restart_out")
	}
	return c, nil
}

// CheckpointsEnabled reports whether any checkpoint cadence is active
func (c CommonOptions) CheckpointsEnabled() bool {
	return c.RestartOut != "" && (c.RestartEvery >= 1 || c.RestartInterval > 0)
}

// RestartPath expands the {n} placeholder of restart_out
func (c CommonOptions) RestartPath(iteration int) string {
	return strings.ReplaceAll(c.RestartOut, "{n}", fmt.Sprintf("%05d", iteration))
}
