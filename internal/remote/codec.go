package remote

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/batch"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

// encodeSubmit builds {batch_id, requests: [{slot, iteration, group,
// member, inputs}]}
func encodeSubmit(batchID string, reqs []models.SampleRequest) (*structpb.Struct, error) {
	list := make([]any, len(reqs))
	for i, r := range reqs {
		list[i] = map[string]any{
			"slot":      r.Slot,
			"iteration": r.Iteration,
			"group":     r.Group,
			"member":    r.Member,
			"inputs":    floatMap(r.Inputs),
		}
	}
	return structpb.NewStruct(map[string]any{"batch_id": batchID, "requests": list})
}

func decodeSubmit(s *structpb.Struct) (string, []models.SampleRequest, error) {
	m := s.AsMap()
	batchID, _ := m["batch_id"].(string)
	list, ok := m["requests"].([]any)
	if !ok {
		return "", nil, fmt.Errorf("requests: expected a list")
	}
	reqs := make([]models.SampleRequest, len(list))
	for i, item := range list {
		rm, ok := item.(map[string]any)
		if !ok {
			return "", nil, fmt.Errorf("request %d: expected an object", i)
		}
		inputs, err := toFloatMap(rm["inputs"])
		if err != nil {
			return "", nil, fmt.Errorf("request %d: inputs: %w", i, err)
		}
		reqs[i] = models.SampleRequest{
			Slot:      intField(rm, "slot"),
			Iteration: intField(rm, "iteration"),
			Group:     intField(rm, "group"),
			Member:    intField(rm, "member"),
			Inputs:    inputs,
		}
		if reqs[i].Slot != i {
			return "", nil, fmt.Errorf("request %d: slot %d out of order", i, reqs[i].Slot)
		}
	}
	return batchID, reqs, nil
}

// encodeStatus builds {running, total, finished, errors}
func encodeStatus(running bool, st batch.ExecutionStatus) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"running":  structpb.NewBoolValue(running),
		"total":    structpb.NewNumberValue(float64(st.Total)),
		"finished": structpb.NewNumberValue(float64(st.Finished)),
		"errors":   structpb.NewNumberValue(float64(st.Errors)),
	}}
}

func decodeStatus(s *structpb.Struct) (bool, batch.ExecutionStatus) {
	m := s.AsMap()
	running, _ := m["running"].(bool)
	return running, batch.ExecutionStatus{
		Total:    intField(m, "total"),
		Finished: intField(m, "finished"),
		Errors:   intField(m, "errors"),
	}
}

// encodeResults builds {results: [{slot, result}]} where result is null for
// a slot that finished without a result. The server adds done.
func encodeResults(results []batch.SlotResult) (*structpb.Struct, error) {
	list := make([]any, len(results))
	for i, sr := range results {
		var res any
		if sr.Result != nil {
			res = map[string]any{
				"inputs":      floatMap(sr.Result.Inputs),
				"outputs":     floatMap(sr.Result.Outputs),
				"status":      string(sr.Result.Status),
				"error_code":  sr.Result.ErrorCode,
				"message":     sr.Result.Message,
				"attempts":    sr.Result.Attempts,
				"duration_ms": float64(sr.Result.Duration) / float64(time.Millisecond),
			}
		}
		list[i] = map[string]any{"slot": sr.Slot, "result": res}
	}
	return structpb.NewStruct(map[string]any{"results": list})
}

func decodeResults(s *structpb.Struct) ([]batch.SlotResult, error) {
	list, _ := s.AsMap()["results"].([]any)
	out := make([]batch.SlotResult, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("result %d: expected an object", i)
		}
		sr := batch.SlotResult{Slot: intField(m, "slot")}
		if rm, ok := m["result"].(map[string]any); ok {
			inputs, err := toFloatMap(rm["inputs"])
			if err != nil {
				return nil, fmt.Errorf("result %d: inputs: %w", i, err)
			}
			outputs, err := toFloatMap(rm["outputs"])
			if err != nil {
				return nil, fmt.Errorf("result %d: outputs: %w", i, err)
			}
			status, _ := rm["status"].(string)
			message, _ := rm["message"].(string)
			ms, _ := rm["duration_ms"].(float64)
			sr.Result = &models.SampleResult{
				Inputs:    inputs,
				Outputs:   outputs,
				Status:    models.SampleStatus(status),
				ErrorCode: intField(rm, "error_code"),
				Message:   message,
				Attempts:  intField(rm, "attempts"),
				Duration:  time.Duration(ms * float64(time.Millisecond)),
			}
		}
		out = append(out, sr)
	}
	return out, nil
}

func executionRequest(id string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{"execution_id": structpb.NewStringValue(id)}}
}

func executionID(s *structpb.Struct) string {
	if v, ok := s.GetFields()["execution_id"]; ok {
		return v.GetStringValue()
	}
	return ""
}

// floatMap converts a binding map for structpb. A nil map stays null so
// that missing bindings survive the round trip.
func floatMap(m map[string]float64) any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toFloatMap(v any) (map[string]float64, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", v)
	}
	out := make(map[string]float64, len(m))
	for k, item := range m {
		f, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("%s: expected a number, got %T", k, item)
		}
		out[k] = f
	}
	return out, nil
}

func intField(m map[string]any, key string) int {
	f, _ := m[key].(float64)
	return int(f)
}
