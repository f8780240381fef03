package strategy

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

// Checkpoint is the restart artifact of a run. State is strategy specific
// and must hold only values structpb can represent.
type Checkpoint struct {
	Strategy  string
	Iteration int
	Best      float64
	BestX     []float64
	State     map[string]any
}

// SaveCheckpoint writes cp to path, replacing any previous file atomically
func SaveCheckpoint(path string, cp *Checkpoint) error {
	state := cp.State
	if state == nil {
		state = map[string]any{}
	}
	s, err := structpb.NewStruct(map[string]any{
		"strategy":  cp.Strategy,
		"iteration": cp.Iteration,
		"best":      cp.Best,
		"best_x":    FloatsToList(cp.BestX),
		"state":     state,
	})
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename checkpoint %s: %w", path, err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint written by SaveCheckpoint. Failures are
// configuration errors since the path comes from the run request.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, models.NewConfigurationError("read restart file %s: %v", path, err)
	}
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, models.NewConfigurationError("decode restart file %s: %v", path, err)
	}
	m := s.AsMap()

	cp := &Checkpoint{}
	var ok bool
	if cp.Strategy, ok = m["strategy"].(string); !ok {
		return nil, models.NewConfigurationError("restart file %s: missing strategy", path)
	}
	it, ok := decodeNumber(m["iteration"])
	if !ok || !(it >= 0) || math.IsInf(it, 0) {
		return nil, models.NewConfigurationError("restart file %s: invalid iteration %v", path, m["iteration"])
	}
	cp.Iteration = int(it)
	if cp.Best, ok = decodeNumber(m["best"]); !ok {
		return nil, models.NewConfigurationError("restart file %s: invalid best %v", path, m["best"])
	}
	if cp.BestX, err = ListToFloats(m["best_x"]); err != nil {
		return nil, models.NewConfigurationError("restart file %s: best_x: %v", path, err)
	}
	switch state := m["state"].(type) {
	case nil:
		cp.State = map[string]any{}
	case map[string]any:
		cp.State = state
	default:
		return nil, models.NewConfigurationError("restart file %s: state must be a struct, got %T", path, state)
	}
	return cp, nil
}

// decodeNumber reads a number decoded by structpb. AsMap spells the
// non-finite values as "Infinity", "-Infinity" and "NaN".
func decodeNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		switch n {
		case "Infinity":
			return math.Inf(1), true
		case "-Infinity":
			return math.Inf(-1), true
		case "NaN":
			return math.NaN(), true
		}
	}
	return 0, false
}

// FloatsToList converts a vector into a structpb compatible list
func FloatsToList(x []float64) []any {
	out := make([]any, len(x))
	for i, v := range x {
		out[i] = v
	}
	return out
}

// ListToFloats converts a decoded list back into a vector
func ListToFloats(v any) ([]float64, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]float64, len(list))
	for i, item := range list {
		f, ok := decodeNumber(item)
		if !ok {
			return nil, fmt.Errorf("element %d: expected a number, got %T", i, item)
		}
		out[i] = f
	}
	return out, nil
}

// loadResume loads path and checks it was written by the named strategy
func loadResume(path, strategy string) (*Checkpoint, error) {
	cp, err := LoadCheckpoint(path)
	if err != nil {
		return nil, err
	}
	if cp.Strategy != strategy {
		return nil, models.NewConfigurationError("restart file %s was written by %s, not %s", path, cp.Strategy, strategy)
	}
	return cp, nil
}
