package nn

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"plasticnet/internal/model"
	"plasticnet/internal/stimulus"
)

func mustInputLayer(t *testing.T, name string, n int) *Layer {
	t.Helper()
	l, err := NewInputLayer(name, n, model.Unconstrained)
	if err != nil {
		t.Fatalf("new input layer %s: %v", name, err)
	}
	return l
}

func mustLayer(t *testing.T, name string, n int, rng *rand.Rand) *Layer {
	t.Helper()
	l, err := NewLayer(name, n, model.Unconstrained, Perceptron{}, rng)
	if err != nil {
		t.Fatalf("new layer %s: %v", name, err)
	}
	return l
}

func mustConnect(t *testing.T, pre, post *Layer, rule LearningRule, rng *rand.Rand) *Connection {
	t.Helper()
	c, err := NewConnection(pre, post, rule, 0, rng)
	if err != nil {
		t.Fatalf("connect %s->%s: %v", pre.Name, post.Name, err)
	}
	return c
}

func TestNewValidation(t *testing.T) {
	rng := rand.New(rand.NewSource(21))

	tests := []struct {
		name   string
		layers func(t *testing.T) []*Layer
		params func() model.Params
	}{
		{
			name: "too few layers",
			layers: func(t *testing.T) []*Layer {
				return []*Layer{mustInputLayer(t, "in", 2)}
			},
		},
		{
			name: "first layer not input",
			layers: func(t *testing.T) []*Layer {
				return []*Layer{mustLayer(t, "a", 2, rng), mustLayer(t, "b", 2, rng)}
			},
		},
		{
			name: "second input layer",
			layers: func(t *testing.T) []*Layer {
				return []*Layer{mustInputLayer(t, "in", 2), mustInputLayer(t, "in2", 2)}
			},
		},
		{
			name: "duplicate layer",
			layers: func(t *testing.T) []*Layer {
				l := mustLayer(t, "out", 2, rng)
				return []*Layer{mustInputLayer(t, "in", 2), l, l}
			},
		},
		{
			name: "invalid params",
			layers: func(t *testing.T) []*Layer {
				return []*Layer{mustInputLayer(t, "in", 2), mustLayer(t, "out", 2, rng)}
			},
			params: func() model.Params {
				p := model.DefaultParams()
				p.Presentations = 0
				return p
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := model.DefaultParams()
			if tc.params != nil {
				p = tc.params()
			}
			if _, err := New(tc.layers(t), p); err == nil {
				t.Fatal("expected construction error")
			}
		})
	}
}

func TestNewRejectsAsyncMode(t *testing.T) {
	rng := rand.New(rand.NewSource(22))
	in := mustInputLayer(t, "in", 2)
	out := mustLayer(t, "out", 2, rng)
	mustConnect(t, in, out, Oja{}, rng)

	p := model.DefaultParams()
	p.Async = true
	if _, err := New([]*Layer{in, out}, p); !errors.Is(err, ErrAsyncUnsupported) {
		t.Fatalf("got err=%v, want ErrAsyncUnsupported", err)
	}
}

func TestConnectionDiscovery(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	in := mustInputLayer(t, "in", 4)
	hidden := mustLayer(t, "hidden", 3, rng)
	out := mustLayer(t, "out", 2, rng)

	// Each connection is listed by both endpoint layers; discovery must
	// dedup by identity, not collapse distinct parallel connections.
	a := mustConnect(t, in, hidden, Oja{}, rng)
	b := mustConnect(t, hidden, out, Foldiak{}, rng)
	c := mustConnect(t, in, hidden, Oja{}, rng)

	n, err := New([]*Layer{in, hidden, out}, model.DefaultParams())
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	if got := len(n.Connections); got != 3 {
		t.Fatalf("discovered connections: got=%d want=3", got)
	}
	for _, want := range []*Connection{a, b, c} {
		if n.Connections[want.Key()] != want {
			t.Fatalf("connection %s missing from network", want.Key())
		}
	}
}

func TestNewRejectsForeignConnection(t *testing.T) {
	rng := rand.New(rand.NewSource(24))
	in := mustInputLayer(t, "in", 2)
	out := mustLayer(t, "out", 2, rng)
	stray := mustLayer(t, "stray", 2, rng)
	mustConnect(t, in, out, Oja{}, rng)
	mustConnect(t, out, stray, Oja{}, rng)

	if _, err := New([]*Layer{in, out}, model.DefaultParams()); err == nil {
		t.Fatal("expected error for connection leaving the network")
	}
}

func TestUpdateNetworkRecordsHistory(t *testing.T) {
	rng := rand.New(rand.NewSource(25))
	in := mustInputLayer(t, "in", 3)
	out := mustLayer(t, "out", 2, rng)
	mustConnect(t, in, out, Oja{}, rng)

	p := model.DefaultParams()
	p.Presentations = 4
	p.StimuliPerEpoch = 5
	n, err := New([]*Layer{in, out}, p)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}

	batch := [][]float64{{1, 0, -1}, {0, 1, 0}}
	if err := n.UpdateNetwork(batch); err != nil {
		t.Fatalf("update network: %v", err)
	}

	// One history entry per presentation sweep per stimulus, for every
	// layer including the input.
	want := len(batch) * p.Presentations
	for _, l := range n.Layers {
		if got := len(l.History()); got != want {
			t.Fatalf("layer %s history: got=%d want=%d", l.Name, got, want)
		}
	}

	// A second epoch starts from a clean history.
	if err := n.UpdateNetwork(batch[:1]); err != nil {
		t.Fatalf("second update: %v", err)
	}
	if got := len(in.History()); got != p.Presentations {
		t.Fatalf("history not reset between epochs: got=%d", got)
	}
}

func TestUpdateNetworkRejectsEmptyBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(26))
	in := mustInputLayer(t, "in", 2)
	out := mustLayer(t, "out", 2, rng)
	mustConnect(t, in, out, Oja{}, rng)

	n, err := New([]*Layer{in, out}, model.DefaultParams())
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	if err := n.UpdateNetwork(nil); err == nil {
		t.Fatal("expected error for empty batch")
	}
}

type epochCounter struct {
	epochs int
	fail   error
}

func (m *epochCounter) Epoch(*Network) error {
	m.epochs++
	return m.fail
}

func TestTrainPerceptronOja(t *testing.T) {
	rng := rand.New(rand.NewSource(27))
	in := mustInputLayer(t, "retina", 4)
	out := mustLayer(t, "v1", 2, rng)
	conn := mustConnect(t, in, out, Oja{}, rng)

	p := model.DefaultParams()
	p.Presentations = 1
	p.StimuliPerEpoch = 100
	n, err := New([]*Layer{in, out}, p)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	monitor := &epochCounter{}
	n.Monitor = monitor

	src := stimulus.Repeat([]float64{1, 1, 1, 1}, 100)
	if err := n.Train(context.Background(), src); err != nil {
		t.Fatalf("train: %v", err)
	}

	if n.Timesteps != 100 {
		t.Fatalf("timesteps: got=%d want=100", n.Timesteps)
	}
	if monitor.epochs != 1 {
		t.Fatalf("epochs: got=%d want=1", monitor.epochs)
	}
	rows, cols := conn.Weights.Dims()
	if rows != 4 || cols != 2 {
		t.Fatalf("weight shape: got=%dx%d want=4x2", rows, cols)
	}
	if err := checkFiniteDense(conn.Weights); err != nil {
		t.Fatalf("weights after training: %v", err)
	}
	for _, s := range out.State {
		if s != 1 && s != -1 {
			t.Fatalf("non-binary output state: %f", s)
		}
	}
}

func TestTrainPartialFinalBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(28))
	in := mustInputLayer(t, "in", 2)
	out := mustLayer(t, "out", 2, rng)
	mustConnect(t, in, out, Oja{}, rng)

	p := model.DefaultParams()
	p.Presentations = 1
	p.StimuliPerEpoch = 10
	n, err := New([]*Layer{in, out}, p)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	monitor := &epochCounter{}
	n.Monitor = monitor

	src := stimulus.Repeat([]float64{1, -1}, 25)
	if err := n.Train(context.Background(), src); err != nil {
		t.Fatalf("train: %v", err)
	}
	if n.Timesteps != 25 {
		t.Fatalf("timesteps: got=%d want=25", n.Timesteps)
	}
	if monitor.epochs != 3 {
		t.Fatalf("epochs: got=%d want=3", monitor.epochs)
	}
}

func TestTrainHonorsContextCancel(t *testing.T) {
	rng := rand.New(rand.NewSource(29))
	in := mustInputLayer(t, "in", 2)
	out := mustLayer(t, "out", 2, rng)
	mustConnect(t, in, out, Oja{}, rng)

	n, err := New([]*Layer{in, out}, model.DefaultParams())
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := stimulus.Repeat([]float64{1, 1}, 10)
	if err := n.Train(ctx, src); !errors.Is(err, context.Canceled) {
		t.Fatalf("got err=%v, want context.Canceled", err)
	}
}

func TestTrainPropagatesMonitorError(t *testing.T) {
	rng := rand.New(rand.NewSource(30))
	in := mustInputLayer(t, "in", 2)
	out := mustLayer(t, "out", 2, rng)
	mustConnect(t, in, out, Oja{}, rng)

	p := model.DefaultParams()
	p.Presentations = 1
	p.StimuliPerEpoch = 5
	n, err := New([]*Layer{in, out}, p)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	boom := fmt.Errorf("reporter backend down")
	n.Monitor = &epochCounter{fail: boom}

	src := stimulus.Repeat([]float64{1, 1}, 5)
	if err := n.Train(context.Background(), src); !errors.Is(err, boom) {
		t.Fatalf("got err=%v, want wrapped monitor error", err)
	}
}

func TestTrainBatches(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	in := mustInputLayer(t, "in", 2)
	out := mustLayer(t, "out", 2, rng)
	mustConnect(t, in, out, Oja{}, rng)

	p := model.DefaultParams()
	p.Presentations = 2
	p.StimuliPerEpoch = 2
	n, err := New([]*Layer{in, out}, p)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	batches := [][][]float64{
		{{1, 1}, {1, -1}},
		{{-1, 1}},
	}
	if err := n.TrainBatches(context.Background(), batches); err != nil {
		t.Fatalf("train batches: %v", err)
	}
	if n.Timesteps != 3 {
		t.Fatalf("timesteps: got=%d want=3", n.Timesteps)
	}
}
