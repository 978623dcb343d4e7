package model

import (
	"fmt"
	"math"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// LayerKind selects the sign and constraint behavior of a layer's outgoing
// weights and the scaling of its target firing rate.
type LayerKind string

const (
	Unconstrained LayerKind = "unconstrained"
	Excitatory    LayerKind = "excitatory"
	Inhibitory    LayerKind = "inhibitory"
)

// KindTraits holds the scalars attached to a LayerKind.
type KindTraits struct {
	FiringRateMultiplier float64
	WeightMultiplier     float64
	ConstrainWeights     bool
}

// Traits resolves the scalars for a layer kind. The set is closed; anything
// else is a configuration error.
func (k LayerKind) Traits() (KindTraits, error) {
	switch k {
	case Unconstrained:
		return KindTraits{FiringRateMultiplier: 1, WeightMultiplier: 1, ConstrainWeights: false}, nil
	case Excitatory:
		return KindTraits{FiringRateMultiplier: 1, WeightMultiplier: 1, ConstrainWeights: true}, nil
	case Inhibitory:
		return KindTraits{FiringRateMultiplier: 2, WeightMultiplier: -1, ConstrainWeights: true}, nil
	default:
		return KindTraits{}, fmt.Errorf("unsupported layer kind: %s", k)
	}
}

// Params is the global simulation configuration propagated from a network to
// its layers and connections. Construct via DefaultParams so every network
// gets a fresh value; shared mutable parameter objects are a bug.
type Params struct {
	// Presentations is the number of synchronous update sweeps run for each
	// stimulus presented to the network.
	Presentations int `json:"presentations"`
	// StimuliPerEpoch is the number of stimuli batched into one epoch.
	StimuliPerEpoch int `json:"stimuli_per_epoch"`

	BaselineFiringRate float64 `json:"baseline_firing_rate"`
	BiasLearningRate   float64 `json:"bias_learning_rate"`
	WeightLearningRate float64 `json:"weight_learning_rate"`

	// LayerHistoryLength is how many state snapshots feed the firing-rate
	// average. Zero means the update batch size.
	LayerHistoryLength int `json:"layer_history_length"`

	// Async selects per-unit randomized update order. The mode is reserved
	// and not implemented; setting it is rejected at network construction.
	Async bool `json:"async"`

	Display   bool    `json:"display"`
	UpdateCap float64 `json:"update_cap"`

	// Simulation time constants.
	Timestep       float64 `json:"timestep"`          // timeunit / timestep
	StepsPerFRTime float64 `json:"steps_per_fr_time"` // timesteps
	LFRCharTime    float64 `json:"lfr_char_time"`     // epochs
}

// DefaultParams returns the reference parameter values.
func DefaultParams() Params {
	return Params{
		Presentations:      50,
		StimuliPerEpoch:    100,
		BaselineFiringRate: 0.02,
		BiasLearningRate:   0.1,
		WeightLearningRate: 0.1,
		UpdateCap:          1,
		Timestep:           0.1,
		StepsPerFRTime:     10,
		LFRCharTime:        1,
	}
}

func (p Params) Validate() error {
	if p.Presentations <= 0 {
		return fmt.Errorf("presentations must be > 0, got %d", p.Presentations)
	}
	if p.StimuliPerEpoch <= 0 {
		return fmt.Errorf("stimuli per epoch must be > 0, got %d", p.StimuliPerEpoch)
	}
	if p.Timestep <= 0 {
		return fmt.Errorf("timestep must be > 0, got %f", p.Timestep)
	}
	return nil
}

// UpdateBatchSize is the number of pending weight deltas accumulated before
// a connection applies their mean. Unit: timesteps per epoch.
func (p Params) UpdateBatchSize() int {
	return p.Presentations * p.StimuliPerEpoch
}

// HistoryLength resolves LayerHistoryLength, defaulting to the update batch
// size.
func (p Params) HistoryLength() int {
	if p.LayerHistoryLength > 0 {
		return p.LayerHistoryLength
	}
	return p.UpdateBatchSize()
}

// StepsPerRCTime is the number of simulation steps per membrane RC time
// constant. Unit: timesteps.
func (p Params) StepsPerRCTime() float64 {
	return 1 / p.Timestep
}

// EMALifetime is the decay coefficient of the lifetime firing-rate moving
// average, 1 - exp(-1/charTime) with charTime in epochs.
func (p Params) EMALifetime() float64 {
	return 1 - math.Exp(-1/p.LFRCharTime)
}

// EMACurrent is the decay coefficient of the short-term firing-rate moving
// average, 1 - exp(-1/charTime) with charTime in timesteps.
func (p Params) EMACurrent() float64 {
	return 1 - math.Exp(-1/p.StepsPerFRTime)
}

// LayerSpec describes one layer of a network for construction and storage.
type LayerSpec struct {
	Name  string    `json:"name"`
	Units int       `json:"units"`
	Kind  LayerKind `json:"kind"`
	// Rule is the unit update rule: "input", "perceptron" or "boltzmann".
	Rule string `json:"rule"`
}

// ConnectionSpec describes one connection between named layers.
type ConnectionSpec struct {
	From string `json:"from"`
	To   string `json:"to"`
	// Rule is the weight learning rule: "oja", "foldiak", "cm" or "identity".
	Rule string `json:"rule"`
	// LearningRate overrides the network default when nonzero.
	LearningRate float64 `json:"learning_rate,omitempty"`
}

// NetworkSpec is a complete declarative network description.
type NetworkSpec struct {
	Layers      []LayerSpec      `json:"layers"`
	Connections []ConnectionSpec `json:"connections"`
	Params      Params           `json:"params"`
}

// Run records one completed training run.
type Run struct {
	VersionedRecord
	ID               string             `json:"id"`
	CreatedAtUTC     string             `json:"created_at_utc"`
	Spec             NetworkSpec        `json:"spec"`
	Seed             int64              `json:"seed"`
	Epochs           int                `json:"epochs"`
	Timesteps        int                `json:"timesteps"`
	FinalFiringRates map[string]float64 `json:"final_firing_rates,omitempty"`
}

// EpochStats is the per-epoch telemetry snapshot persisted for a run.
type EpochStats struct {
	Timesteps   int                `json:"timesteps"`
	FiringRates map[string]float64 `json:"firing_rates"`
}

// WeightStats is a histogram of one connection's weight distribution at a
// point in the run.
type WeightStats struct {
	Timesteps  int       `json:"timesteps"`
	Connection string    `json:"connection"`
	Dividers   []float64 `json:"dividers"`
	Counts     []float64 `json:"counts"`
}
