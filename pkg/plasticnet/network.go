package plasticnet

import (
	"fmt"
	"math/rand"

	"plasticnet/internal/model"
	"plasticnet/internal/nn"
)

// BuildNetwork assembles a runnable network from a declarative spec. The
// first layer must use the "input" rule and every connection must reference
// declared layer names.
func BuildNetwork(spec model.NetworkSpec, rng *rand.Rand) (*nn.Network, error) {
	if len(spec.Layers) < 2 {
		return nil, fmt.Errorf("network spec needs at least 2 layers, got %d", len(spec.Layers))
	}
	if spec.Layers[0].Rule != "input" {
		return nil, fmt.Errorf("first layer %s must use the input rule, got %q", spec.Layers[0].Name, spec.Layers[0].Rule)
	}

	layers := make([]*nn.Layer, 0, len(spec.Layers))
	byName := make(map[string]*nn.Layer, len(spec.Layers))
	for i, ls := range spec.Layers {
		if _, dup := byName[ls.Name]; dup {
			return nil, fmt.Errorf("duplicate layer name %s", ls.Name)
		}
		var l *nn.Layer
		var err error
		if i == 0 {
			l, err = nn.NewInputLayer(ls.Name, ls.Units, ls.Kind)
		} else {
			var rule nn.UnitRule
			rule, err = unitRule(ls.Rule, rng)
			if err != nil {
				return nil, fmt.Errorf("layer %s: %w", ls.Name, err)
			}
			l, err = nn.NewLayer(ls.Name, ls.Units, ls.Kind, rule, rng)
		}
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
		byName[ls.Name] = l
	}

	if len(spec.Connections) == 0 {
		return nil, fmt.Errorf("network spec needs at least one connection")
	}
	for _, cs := range spec.Connections {
		pre, ok := byName[cs.From]
		if !ok {
			return nil, fmt.Errorf("connection references unknown layer %s", cs.From)
		}
		post, ok := byName[cs.To]
		if !ok {
			return nil, fmt.Errorf("connection references unknown layer %s", cs.To)
		}
		rule, err := learningRule(cs.Rule)
		if err != nil {
			return nil, fmt.Errorf("connection %s->%s: %w", cs.From, cs.To, err)
		}
		if _, err := nn.NewConnection(pre, post, rule, cs.LearningRate, rng); err != nil {
			return nil, err
		}
	}

	params := spec.Params
	if params == (model.Params{}) {
		params = model.DefaultParams()
	}
	return nn.New(layers, params)
}

func unitRule(name string, rng *rand.Rand) (nn.UnitRule, error) {
	switch name {
	case "perceptron":
		return nn.Perceptron{}, nil
	case "boltzmann":
		return nn.Boltzmann{Rand: rng}, nil
	case "input":
		return nil, fmt.Errorf("only the first layer may use the input rule")
	default:
		return nil, fmt.Errorf("unsupported unit rule: %s", name)
	}
}

func learningRule(name string) (nn.LearningRule, error) {
	switch name {
	case "oja":
		return nn.Oja{}, nil
	case "foldiak":
		return nn.Foldiak{}, nil
	case "cm":
		return nn.CM{}, nil
	case "identity":
		return nn.Identity{}, nil
	default:
		return nil, fmt.Errorf("unsupported learning rule: %s", name)
	}
}
