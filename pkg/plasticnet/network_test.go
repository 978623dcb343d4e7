package plasticnet

import (
	"math/rand"
	"testing"

	"plasticnet/internal/model"
)

func smallSpec() model.NetworkSpec {
	p := model.DefaultParams()
	p.Presentations = 1
	p.StimuliPerEpoch = 10
	return model.NetworkSpec{
		Layers: []model.LayerSpec{
			{Name: "retina", Units: 4, Kind: model.Unconstrained, Rule: "input"},
			{Name: "v1", Units: 2, Kind: model.Unconstrained, Rule: "perceptron"},
		},
		Connections: []model.ConnectionSpec{
			{From: "retina", To: "v1", Rule: "oja"},
		},
		Params: p,
	}
}

func TestBuildNetwork(t *testing.T) {
	net, err := BuildNetwork(smallSpec(), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("build network: %v", err)
	}
	if len(net.Layers) != 2 {
		t.Fatalf("layers: got=%d want=2", len(net.Layers))
	}
	if !net.Layers[0].IsInput() || net.Layers[1].IsInput() {
		t.Fatal("input rule not mapped to the first layer only")
	}
	if len(net.Connections) != 1 {
		t.Fatalf("connections: got=%d want=1", len(net.Connections))
	}
}

func TestBuildNetworkDefaultsParams(t *testing.T) {
	spec := smallSpec()
	spec.Params = model.Params{}
	net, err := BuildNetwork(spec, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("build network: %v", err)
	}
	if net.Params.Presentations != model.DefaultParams().Presentations {
		t.Fatalf("zero params not defaulted: %+v", net.Params)
	}
}

func TestBuildNetworkBoltzmann(t *testing.T) {
	spec := smallSpec()
	spec.Layers[1].Rule = "boltzmann"
	if _, err := BuildNetwork(spec, rand.New(rand.NewSource(1))); err != nil {
		t.Fatalf("build boltzmann network: %v", err)
	}
}

func TestBuildNetworkValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(spec *model.NetworkSpec)
	}{
		{
			name:   "too few layers",
			mutate: func(spec *model.NetworkSpec) { spec.Layers = spec.Layers[:1] },
		},
		{
			name:   "first layer not input",
			mutate: func(spec *model.NetworkSpec) { spec.Layers[0].Rule = "perceptron" },
		},
		{
			name:   "second input layer",
			mutate: func(spec *model.NetworkSpec) { spec.Layers[1].Rule = "input" },
		},
		{
			name:   "unknown unit rule",
			mutate: func(spec *model.NetworkSpec) { spec.Layers[1].Rule = "hopfield" },
		},
		{
			name:   "unknown learning rule",
			mutate: func(spec *model.NetworkSpec) { spec.Connections[0].Rule = "hebb" },
		},
		{
			name:   "unknown connection endpoint",
			mutate: func(spec *model.NetworkSpec) { spec.Connections[0].To = "v9" },
		},
		{
			name: "duplicate layer name",
			mutate: func(spec *model.NetworkSpec) {
				spec.Layers = append(spec.Layers, model.LayerSpec{Name: "v1", Units: 2, Kind: model.Unconstrained, Rule: "perceptron"})
			},
		},
		{
			name:   "no connections",
			mutate: func(spec *model.NetworkSpec) { spec.Connections = nil },
		},
		{
			name:   "bad layer kind",
			mutate: func(spec *model.NetworkSpec) { spec.Layers[1].Kind = "psychic" },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			spec := smallSpec()
			tc.mutate(&spec)
			if _, err := BuildNetwork(spec, rand.New(rand.NewSource(1))); err == nil {
				t.Fatal("expected build error")
			}
		})
	}
}
