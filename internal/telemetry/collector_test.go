package telemetry

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"plasticnet/internal/model"
	"plasticnet/internal/nn"
	"plasticnet/internal/stimulus"
)

func trainedNetwork(t *testing.T, c *Collector, epochs int) *nn.Network {
	t.Helper()
	rng := rand.New(rand.NewSource(5))

	in, err := nn.NewInputLayer("retina", 4, model.Unconstrained)
	if err != nil {
		t.Fatalf("new input layer: %v", err)
	}
	out, err := nn.NewLayer("v1", 2, model.Unconstrained, nn.Perceptron{}, rng)
	if err != nil {
		t.Fatalf("new layer: %v", err)
	}
	if _, err := nn.NewConnection(in, out, nn.Oja{}, 0, rng); err != nil {
		t.Fatalf("connect: %v", err)
	}

	p := model.DefaultParams()
	p.Presentations = 2
	p.StimuliPerEpoch = 5
	n, err := nn.New([]*nn.Layer{in, out}, p)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	n.Monitor = c

	src := stimulus.Repeat([]float64{1, -1, 1, -1}, epochs*p.StimuliPerEpoch)
	if err := n.Train(context.Background(), src); err != nil {
		t.Fatalf("train: %v", err)
	}
	return n
}

func TestCollectorRecordsEpochStats(t *testing.T) {
	c := &Collector{}
	trainedNetwork(t, c, 3)

	if c.Epochs() != 3 {
		t.Fatalf("epochs: got=%d want=3", c.Epochs())
	}
	stats := c.EpochStats()
	if len(stats) != 3 {
		t.Fatalf("epoch stats: got=%d want=3", len(stats))
	}
	for i, s := range stats {
		if s.Timesteps != (i+1)*5 {
			t.Fatalf("epoch %d timesteps: got=%d want=%d", i, s.Timesteps, (i+1)*5)
		}
		if _, ok := s.FiringRates["v1"]; !ok {
			t.Fatalf("epoch %d missing v1 firing rate", i)
		}
		if _, ok := s.FiringRates["retina"]; ok {
			t.Fatalf("epoch %d reports a rate for the input layer", i)
		}
	}
}

func TestCollectorCapturesWeightHistograms(t *testing.T) {
	c := &Collector{WeightInterval: 5}
	trainedNetwork(t, c, 2)

	weights := c.WeightStats()
	if len(weights) != 2 {
		t.Fatalf("weight histograms: got=%d want=2", len(weights))
	}
	for _, w := range weights {
		if len(w.Dividers) != len(w.Counts)+1 {
			t.Fatalf("histogram shape: %d dividers, %d counts", len(w.Dividers), len(w.Counts))
		}
		total := 0.0
		for _, count := range w.Counts {
			total += count
		}
		// 4x2 weight matrix.
		if total != 8 {
			t.Fatalf("histogram total: got=%f want=8", total)
		}
	}
}

func TestCollectorSkipsHistogramsBelowInterval(t *testing.T) {
	c := &Collector{WeightInterval: 100}
	trainedNetwork(t, c, 2)

	if got := len(c.WeightStats()); got != 0 {
		t.Fatalf("weight histograms before interval: got=%d want=0", got)
	}
}

type failingReporter struct{}

func (failingReporter) Report(Snapshot) error { return fmt.Errorf("sink unavailable") }

func TestCollectorPropagatesReporterError(t *testing.T) {
	c := &Collector{Reporters: []Reporter{failingReporter{}}}
	rng := rand.New(rand.NewSource(6))

	in, err := nn.NewInputLayer("in", 2, model.Unconstrained)
	if err != nil {
		t.Fatalf("new input layer: %v", err)
	}
	out, err := nn.NewLayer("out", 2, model.Unconstrained, nn.Perceptron{}, rng)
	if err != nil {
		t.Fatalf("new layer: %v", err)
	}
	if _, err := nn.NewConnection(in, out, nn.Oja{}, 0, rng); err != nil {
		t.Fatalf("connect: %v", err)
	}

	p := model.DefaultParams()
	p.Presentations = 1
	p.StimuliPerEpoch = 2
	n, err := nn.New([]*nn.Layer{in, out}, p)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	n.Monitor = c

	if err := n.Train(context.Background(), stimulus.Repeat([]float64{1, 1}, 2)); err == nil {
		t.Fatal("expected reporter error to abort training")
	}
}
