package nn

import (
	"fmt"
	"math/rand"
)

// UnitRule sets the state of single units from their input energy. Update
// computes the total energy for one unit and writes the new state through
// Activation.
type UnitRule interface {
	Name() string
	Activation(energy float64) float64
	Update(l *Layer, idx int) error
}

// Perceptron is the deterministic hard-threshold rule. Units see only their
// feed-forward input energy.
type Perceptron struct{}

func (Perceptron) Name() string { return "perceptron" }

func (Perceptron) Activation(energy float64) float64 {
	if energy > 0 {
		return 1
	}
	return -1
}

func (p Perceptron) Update(l *Layer, idx int) error {
	energy := l.Bias[idx] + l.InputEnergy(idx)
	if !isFinite(energy) {
		return fmt.Errorf("layer %s unit %d: non-finite energy %f", l.Name, idx, energy)
	}
	l.State[idx] = p.Activation(energy)
	return nil
}

// Boltzmann is the stochastic rule: a unit turns on with probability
// sigmoid of its energy difference, which includes the energy the unit
// feeds into downstream layers (symmetric-connection semantics).
type Boltzmann struct {
	// Rand supplies the sampling source; nil falls back to the shared
	// global source.
	Rand *rand.Rand
}

func (Boltzmann) Name() string { return "boltzmann" }

func (b Boltzmann) Activation(energy float64) float64 {
	pOn := Sigmoid(energy)
	if b.uniform() < pOn {
		return 1
	}
	return -1
}

func (b Boltzmann) Update(l *Layer, idx int) error {
	energy := l.Bias[idx] + l.InputEnergy(idx) + l.OutputEnergy(idx)
	if !isFinite(energy) {
		return fmt.Errorf("layer %s unit %d: non-finite energy %f", l.Name, idx, energy)
	}
	l.State[idx] = b.Activation(energy)
	return nil
}

func (b Boltzmann) uniform() float64 {
	if b.Rand != nil {
		return b.Rand.Float64()
	}
	return rand.Float64()
}
