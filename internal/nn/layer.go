package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"plasticnet/internal/model"
)

// maxHistoryLength is the post-truncation history size. The buffer is
// allowed to grow to twice this before being cut back in one step.
const maxHistoryLength = 500

// HistoryWindow is the largest number of consecutive state snapshots a
// layer is guaranteed to retain without truncation.
const HistoryWindow = 2 * maxHistoryLength

// Layer holds the per-unit state, bias and bounded state history of one
// network layer. Non-input layers carry a UnitRule that maps input energy
// to the next unit state; the input layer has none and is driven externally
// through SetState.
//
// Layers are shared between the owning Network and the Connections that
// reference them; neither owns the other's lifetime.
type Layer struct {
	Name string
	N    int
	Kind model.LayerKind

	// State holds the current unit states, in {-1, +1} for non-input
	// layers and continuous for the input layer.
	State []float64
	Bias  []float64

	// TargetFiringRate is the kind-scaled baseline rate, set when the
	// layer is attached to a network.
	TargetFiringRate float64

	rule     UnitRule
	traits   model.KindTraits
	inputs   []*Connection
	outputs  []*Connection
	history  [][]float64
	kernel   []float64
	attached bool
}

// NewLayer builds a trainable layer of n units with the given unit rule.
// Biases start from N(0, 1); states start at +1.
func NewLayer(name string, n int, kind model.LayerKind, rule UnitRule, rng *rand.Rand) (*Layer, error) {
	if rule == nil {
		return nil, fmt.Errorf("layer %s: unit rule is required", name)
	}
	l, err := newLayer(name, n, kind)
	if err != nil {
		return nil, err
	}
	l.rule = rule
	for i := range l.Bias {
		l.Bias[i] = normal(rng)
	}
	return l, nil
}

// NewInputLayer builds the externally driven stimulus layer. It has no unit
// rule and a zero bias.
func NewInputLayer(name string, n int, kind model.LayerKind) (*Layer, error) {
	return newLayer(name, n, kind)
}

func newLayer(name string, n int, kind model.LayerKind) (*Layer, error) {
	if name == "" {
		return nil, fmt.Errorf("layer name is required")
	}
	if n <= 0 {
		return nil, fmt.Errorf("layer %s: unit count must be > 0, got %d", name, n)
	}
	traits, err := kind.Traits()
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", name, err)
	}
	state := make([]float64, n)
	for i := range state {
		state[i] = 1
	}
	return &Layer{
		Name:   name,
		N:      n,
		Kind:   kind,
		State:  state,
		Bias:   make([]float64, n),
		traits: traits,
	}, nil
}

// IsInput reports whether this layer is driven externally rather than by a
// unit rule.
func (l *Layer) IsInput() bool { return l.rule == nil }

// SetState loads a stimulus vector as the input layer's current state.
func (l *Layer) SetState(state []float64) error {
	if !l.IsInput() {
		return fmt.Errorf("layer %s: only input layers accept external state", l.Name)
	}
	if len(state) != l.N {
		return fmt.Errorf("layer %s: state size mismatch: got=%d want=%d", l.Name, len(state), l.N)
	}
	if err := checkFinite(state); err != nil {
		return fmt.Errorf("layer %s: %w", l.Name, err)
	}
	copy(l.State, state)
	return nil
}

// Update recomputes the state of the unit at idx through the layer's unit
// rule. It mutates only that one state entry.
func (l *Layer) Update(idx int) error {
	if l.rule == nil {
		return fmt.Errorf("layer %s: input layers have no unit update", l.Name)
	}
	if idx < 0 || idx >= l.N {
		return fmt.Errorf("layer %s: unit index %d out of range [0,%d)", l.Name, idx, l.N)
	}
	return l.rule.Update(l, idx)
}

// InputEnergy is the total energy fed into the unit at idx by all incoming
// connections.
func (l *Layer) InputEnergy(idx int) float64 {
	energy := 0.0
	for _, c := range l.inputs {
		energy += c.FeedforwardEnergy(idx)
	}
	return energy
}

// OutputEnergy is the energy the unit at idx feeds into downstream layers,
// used by stochastic rules to price a state flip.
func (l *Layer) OutputEnergy(idx int) float64 {
	energy := 0.0
	for _, c := range l.outputs {
		energy += c.EnergyShadow(idx)
	}
	return energy
}

// UpdateHistory prepends a snapshot of the current state. When the buffer
// grows past twice maxHistoryLength it is cut back to the newest
// maxHistoryLength entries in one step.
func (l *Layer) UpdateHistory() {
	snapshot := make([]float64, l.N)
	copy(snapshot, l.State)
	l.history = append([][]float64{snapshot}, l.history...)
	if len(l.history) > 2*maxHistoryLength {
		l.history = l.history[:maxHistoryLength]
	}
}

// ResetHistory drops all recorded state snapshots.
func (l *Layer) ResetHistory() {
	l.history = nil
}

// History exposes the state snapshots, most recent first. Callers must not
// mutate the returned slices.
func (l *Layer) History() [][]float64 {
	return l.history
}

// LatestState returns the newest history entry.
func (l *Layer) LatestState() ([]float64, error) {
	if len(l.history) == 0 {
		return nil, fmt.Errorf("layer %s: no state history", l.Name)
	}
	return l.history[0], nil
}

// FiringRates estimates per-unit firing rates as the history mean weighted
// by the layer's exponential decay kernel. An empty history yields a zero
// vector.
func (l *Layer) FiringRates() ([]float64, error) {
	rates := make([]float64, l.N)
	if len(l.history) == 0 {
		return rates, nil
	}
	if !l.attached {
		return nil, fmt.Errorf("layer %s: not attached to a network", l.Name)
	}
	for h, state := range l.history {
		w := l.kernel[h]
		for i, s := range state {
			rates[i] += w * s
		}
	}
	if err := checkFinite(rates); err != nil {
		return nil, fmt.Errorf("layer %s firing rates: %w", l.Name, err)
	}
	return rates, nil
}

// MeanFiringRate averages FiringRates over units, for progress reporting.
func (l *Layer) MeanFiringRate() (float64, error) {
	rates, err := l.FiringRates()
	if err != nil {
		return 0, err
	}
	return floats.Sum(rates) / float64(l.N), nil
}

// setUp binds the layer to its owning network's parameters. The decay
// kernel depends on the presentation count, so it can only be computed
// here.
func (l *Layer) setUp(p model.Params) {
	timeConstant := 1 / float64(p.Presentations)
	l.kernel = DecayKernel(2*maxHistoryLength, timeConstant)
	l.TargetFiringRate = l.traits.FiringRateMultiplier * p.BaselineFiringRate
	l.attached = true
}

func normal(rng *rand.Rand) float64 {
	if rng != nil {
		return rng.NormFloat64()
	}
	return rand.NormFloat64()
}
