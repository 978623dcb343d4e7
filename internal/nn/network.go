package nn

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"plasticnet/internal/model"
	"plasticnet/internal/stimulus"
)

// ErrAsyncUnsupported rejects the reserved randomized-unit-order update
// mode, which has no specified semantics yet.
var ErrAsyncUnsupported = errors.New("asynchronous update mode is not implemented")

// BiasRule updates a layer's biases once per training iteration. The
// homeostatic threshold rule is a planned implementation; NoBias is the
// default.
type BiasRule interface {
	Update(l *Layer) error
}

// NoBias leaves biases untouched.
type NoBias struct{}

func (NoBias) Update(*Layer) error { return nil }

// Monitor observes the network after each completed epoch. Implementations
// must treat the network as read-only.
type Monitor interface {
	Epoch(n *Network) error
}

// Network owns an ordered layer stack (first layer is the input) and the
// connections between them, and drives the synchronous simulation loop.
// The network has exclusive mutable access to its layers and connections
// while Train or UpdateNetwork runs.
type Network struct {
	Layers      []*Layer
	Connections map[string]*Connection
	Params      model.Params

	// Bias is the per-layer bias update strategy, NoBias by default.
	Bias BiasRule
	// Monitor, when set, receives an end-of-epoch callback.
	Monitor Monitor

	// Timesteps counts presented stimuli across the life of the network.
	Timesteps int
}

// New assembles a network from already-wired layers. Connections are
// discovered by scanning every layer's input and output lists, deduplicated
// by object identity. Both endpoints of every connection must be members of
// the layer stack.
func New(layers []*Layer, params model.Params) (*Network, error) {
	if len(layers) < 2 {
		return nil, fmt.Errorf("a network needs an input layer and at least one trainable layer, got %d layers", len(layers))
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.Async {
		return nil, ErrAsyncUnsupported
	}
	if !layers[0].IsInput() {
		return nil, fmt.Errorf("first layer %s must be an input layer", layers[0].Name)
	}
	for _, l := range layers[1:] {
		if l.IsInput() {
			return nil, fmt.Errorf("layer %s: only the first layer may be an input layer", l.Name)
		}
	}

	members := make(map[*Layer]bool, len(layers))
	for _, l := range layers {
		if members[l] {
			return nil, fmt.Errorf("layer %s appears twice in the layer stack", l.Name)
		}
		members[l] = true
	}

	connections, err := findConnections(layers, members)
	if err != nil {
		return nil, err
	}

	n := &Network{
		Layers:      layers,
		Connections: connections,
		Params:      params,
		Bias:        NoBias{},
	}
	for _, l := range layers {
		l.setUp(params)
	}
	for _, c := range connections {
		c.setUp(params)
	}
	return n, nil
}

func findConnections(layers []*Layer, members map[*Layer]bool) (map[string]*Connection, error) {
	seen := make(map[*Connection]bool)
	connections := make(map[string]*Connection)
	for _, l := range layers {
		for _, c := range append(append([]*Connection(nil), l.inputs...), l.outputs...) {
			if seen[c] {
				continue
			}
			seen[c] = true
			if !members[c.Pre] || !members[c.Post] {
				return nil, fmt.Errorf("connection %s references a layer outside the network", c.key)
			}
			if _, dup := connections[c.key]; dup {
				return nil, fmt.Errorf("duplicate connection key %s", c.key)
			}
			connections[c.key] = c
		}
	}
	return connections, nil
}

// UpdateNetwork presents one epoch batch of stimuli. Every layer's history
// is reset, then each stimulus is loaded into the input layer and every
// unit of every non-input layer is updated Presentations times, in layer
// order and unit index order. Later layers observe the just-updated states
// of earlier layers within the same sweep (Gauss-Seidel, not a snapshot).
// After each sweep the state of every layer, input included, is appended to
// its history.
func (n *Network) UpdateNetwork(batch [][]float64) error {
	if len(batch) == 0 {
		return fmt.Errorf("empty stimulus batch")
	}
	for _, l := range n.Layers {
		l.ResetHistory()
	}
	input := n.Layers[0]
	for _, stim := range batch {
		if err := input.SetState(stim); err != nil {
			return err
		}
		for p := 0; p < n.Params.Presentations; p++ {
			for _, l := range n.Layers[1:] {
				for idx := 0; idx < l.N; idx++ {
					if err := l.Update(idx); err != nil {
						return err
					}
				}
			}
			for _, l := range n.Layers {
				l.UpdateHistory()
			}
		}
	}
	return nil
}

// TrainingIteration runs the per-epoch learning pass: a weight update on
// every connection, then the bias rule on every non-input layer. Firing
// rate estimates are implicit in the history the presentation loop just
// recorded.
func (n *Network) TrainingIteration() error {
	for _, key := range n.connectionKeys() {
		if err := n.Connections[key].WeightUpdate(); err != nil {
			return err
		}
	}
	for _, l := range n.Layers[1:] {
		if err := n.Bias.Update(l); err != nil {
			return fmt.Errorf("layer %s bias update: %w", l.Name, err)
		}
	}
	return nil
}

// Train consumes stimuli from src, batching them into epochs of
// StimuliPerEpoch, and runs the presentation and learning cycle for each
// epoch until the source is exhausted or the context is canceled. A partial
// final batch is still presented.
func (n *Network) Train(ctx context.Context, src stimulus.Stream) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := stimulus.Roll(ctx, src, n.Params.StimuliPerEpoch, n.Layers[0].N)
		done := errors.Is(err, stimulus.ErrDone)
		if err != nil && !done {
			return err
		}
		if len(batch) > 0 {
			if err := n.runEpoch(batch); err != nil {
				return err
			}
		}
		if done {
			return nil
		}
	}
}

// TrainBatches runs the epoch cycle over pre-rolled stimulus batches.
func (n *Network) TrainBatches(ctx context.Context, batches [][][]float64) error {
	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.runEpoch(batch); err != nil {
			return err
		}
	}
	return nil
}

func (n *Network) runEpoch(batch [][]float64) error {
	if err := n.UpdateNetwork(batch); err != nil {
		return err
	}
	n.Timesteps += len(batch)
	if err := n.TrainingIteration(); err != nil {
		return err
	}
	if n.Monitor != nil {
		if err := n.Monitor.Epoch(n); err != nil {
			return fmt.Errorf("epoch monitor: %w", err)
		}
	}
	return nil
}

func (n *Network) connectionKeys() []string {
	keys := make([]string, 0, len(n.Connections))
	for key := range n.Connections {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
