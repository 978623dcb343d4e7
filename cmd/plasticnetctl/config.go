package main

import (
	"encoding/json"
	"fmt"
	"os"

	"plasticnet/internal/model"
)

// loadNetworkSpec reads a declarative network description from a JSON file.
// Unknown keys are ignored so spec files can carry annotations.
func loadNetworkSpec(path string) (model.NetworkSpec, error) {
	if path == "" {
		return model.NetworkSpec{}, usageError("missing -spec")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.NetworkSpec{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.NetworkSpec{}, fmt.Errorf("parse %s: %w", path, err)
	}

	var spec model.NetworkSpec
	layersRaw, ok := raw["layers"].([]any)
	if !ok || len(layersRaw) == 0 {
		return model.NetworkSpec{}, fmt.Errorf("%s: spec has no layers", path)
	}
	for i, entry := range layersRaw {
		m, ok := entry.(map[string]any)
		if !ok {
			return model.NetworkSpec{}, fmt.Errorf("%s: layer %d is not an object", path, i)
		}
		layer := model.LayerSpec{Kind: model.Unconstrained}
		if v, ok := asString(m["name"]); ok {
			layer.Name = v
		}
		if v, ok := asInt(m["units"]); ok {
			layer.Units = v
		}
		if v, ok := asString(m["kind"]); ok {
			layer.Kind = model.LayerKind(v)
		}
		if v, ok := asString(m["rule"]); ok {
			layer.Rule = v
		}
		if layer.Name == "" {
			return model.NetworkSpec{}, fmt.Errorf("%s: layer %d has no name", path, i)
		}
		spec.Layers = append(spec.Layers, layer)
	}

	connsRaw, _ := raw["connections"].([]any)
	for i, entry := range connsRaw {
		m, ok := entry.(map[string]any)
		if !ok {
			return model.NetworkSpec{}, fmt.Errorf("%s: connection %d is not an object", path, i)
		}
		var conn model.ConnectionSpec
		if v, ok := asString(m["from"]); ok {
			conn.From = v
		}
		if v, ok := asString(m["to"]); ok {
			conn.To = v
		}
		if v, ok := asString(m["rule"]); ok {
			conn.Rule = v
		}
		if v, ok := asFloat64(m["learning_rate"]); ok {
			conn.LearningRate = v
		}
		if conn.From == "" || conn.To == "" {
			return model.NetworkSpec{}, fmt.Errorf("%s: connection %d needs from and to", path, i)
		}
		spec.Connections = append(spec.Connections, conn)
	}

	if paramsRaw, ok := raw["params"].(map[string]any); ok {
		spec.Params = paramsFromMap(paramsRaw)
	}
	return spec, nil
}

// paramsFromMap overlays spec-file values on the defaults, so partial
// parameter blocks stay valid.
func paramsFromMap(m map[string]any) model.Params {
	p := model.DefaultParams()
	if v, ok := asInt(m["presentations"]); ok {
		p.Presentations = v
	}
	if v, ok := asInt(m["stimuli_per_epoch"]); ok {
		p.StimuliPerEpoch = v
	}
	if v, ok := asFloat64(m["baseline_firing_rate"]); ok {
		p.BaselineFiringRate = v
	}
	if v, ok := asFloat64(m["bias_learning_rate"]); ok {
		p.BiasLearningRate = v
	}
	if v, ok := asFloat64(m["weight_learning_rate"]); ok {
		p.WeightLearningRate = v
	}
	if v, ok := asInt(m["layer_history_length"]); ok {
		p.LayerHistoryLength = v
	}
	if v, ok := asBool(m["async"]); ok {
		p.Async = v
	}
	if v, ok := asBool(m["display"]); ok {
		p.Display = v
	}
	if v, ok := asFloat64(m["update_cap"]); ok {
		p.UpdateCap = v
	}
	if v, ok := asFloat64(m["timestep"]); ok {
		p.Timestep = v
	}
	if v, ok := asFloat64(m["steps_per_fr_time"]); ok {
		p.StepsPerFRTime = v
	}
	if v, ok := asFloat64(m["lfr_char_time"]); ok {
		p.LFRCharTime = v
	}
	return p
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
