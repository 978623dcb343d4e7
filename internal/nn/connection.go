package nn

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"plasticnet/internal/model"
)

// LearningRule computes one pending weight delta for a connection from the
// most recent state history of its endpoint layers.
type LearningRule interface {
	Name() string
	Delta(c *Connection) (*mat.Dense, error)
}

// weightInitializer is an optional LearningRule capability that replaces
// the default small-random weight initialization.
type weightInitializer interface {
	initWeights(preN, postN int) (*mat.Dense, error)
}

// Connection holds the dense weight matrix between a presynaptic and a
// postsynaptic layer, of shape (pre.N, post.N). It does not own either
// layer; the Network owns both layers and the connection.
type Connection struct {
	Pre  *Layer
	Post *Layer

	Weights *mat.Dense

	rule             LearningRule
	key              string
	learningRate     float64
	weightMultiplier float64
	constrain        bool
	batchSize        int
	pending          []*mat.Dense
}

// NewConnection wires pre to post under the given learning rule and
// registers itself in both layers' connection lists. A zero learningRate is
// filled from the network defaults on attachment. The weight-sign
// multiplier and non-negativity requirement come from the presynaptic
// layer's kind and are captured once here.
func NewConnection(pre, post *Layer, rule LearningRule, learningRate float64, rng *rand.Rand) (*Connection, error) {
	if pre == nil || post == nil {
		return nil, fmt.Errorf("connection endpoints are required")
	}
	if rule == nil {
		return nil, fmt.Errorf("connection %s->%s: learning rule is required", pre.Name, post.Name)
	}

	var weights *mat.Dense
	if init, ok := rule.(weightInitializer); ok {
		var err error
		weights, err = init.initWeights(pre.N, post.N)
		if err != nil {
			return nil, fmt.Errorf("connection %s->%s: %w", pre.Name, post.Name, err)
		}
	} else {
		weights = mat.NewDense(pre.N, post.N, nil)
		weights.Apply(func(_, _ int, _ float64) float64 {
			return 0.01 * normal(rng)
		}, weights)
	}

	c := &Connection{
		Pre:              pre,
		Post:             post,
		Weights:          weights,
		rule:             rule,
		key:              fmt.Sprintf("%s:%s->%s#%.8s", rule.Name(), pre.Name, post.Name, uuid.NewString()),
		learningRate:     learningRate,
		weightMultiplier: pre.traits.WeightMultiplier,
		constrain:        pre.traits.ConstrainWeights,
	}
	c.clampNegatives()
	post.inputs = append(post.inputs, c)
	pre.outputs = append(pre.outputs, c)
	return c, nil
}

// Key is the connection's unique identifier: a descriptive label plus a
// random suffix so structurally identical connections never collide.
func (c *Connection) Key() string { return c.key }

// Rule returns the learning rule's name.
func (c *Connection) Rule() string { return c.rule.Name() }

// FeedforwardEnergy is the input this connection contributes to the
// postsynaptic unit at idx.
func (c *Connection) FeedforwardEnergy(idx int) float64 {
	col := mat.Col(nil, idx, c.Weights)
	return c.weightMultiplier * floats.Dot(col, c.Pre.State)
}

// EnergyShadow is the energy of the postsynaptic states "shadowed" by the
// presynaptic unit at idx, the symmetric counterpart of FeedforwardEnergy
// used by stochastic update rules.
func (c *Connection) EnergyShadow(idx int) float64 {
	row := mat.Row(nil, idx, c.Weights)
	return c.weightMultiplier * floats.Dot(row, c.Post.State)
}

// WeightUpdate accumulates one pending delta and, once the pending buffer
// reaches the update batch size, applies the mean of the buffered deltas in
// one shot, clamping negative weights when the presynaptic kind requires
// non-negativity.
func (c *Connection) WeightUpdate() error {
	delta, err := c.rule.Delta(c)
	if err != nil {
		return fmt.Errorf("connection %s: %w", c.key, err)
	}
	if delta != nil {
		if err := checkFiniteDense(delta); err != nil {
			return fmt.Errorf("connection %s delta: %w", c.key, err)
		}
		c.pending = append(c.pending, delta)
	}
	if c.batchSize == 0 || len(c.pending) < c.batchSize {
		return nil
	}

	rows, cols := c.Weights.Dims()
	mean := mat.NewDense(rows, cols, nil)
	for _, d := range c.pending {
		mean.Add(mean, d)
	}
	mean.Scale(1/float64(len(c.pending)), mean)
	c.Weights.Add(c.Weights, mean)
	c.pending = c.pending[:0]
	if c.constrain {
		c.clampNegatives()
	}
	if err := checkFiniteDense(c.Weights); err != nil {
		return fmt.Errorf("connection %s weights: %w", c.key, err)
	}
	return nil
}

// PendingUpdates reports the number of accumulated, unapplied deltas.
func (c *Connection) PendingUpdates() int { return len(c.pending) }

func (c *Connection) clampNegatives() {
	c.Weights.Apply(func(_, _ int, v float64) float64 {
		if v < 0 {
			return 0
		}
		return v
	}, c.Weights)
}

func (c *Connection) setUp(p model.Params) {
	if c.learningRate == 0 {
		c.learningRate = p.WeightLearningRate
	}
	c.batchSize = p.UpdateBatchSize()
}

func (c *Connection) endpointStates() (pre, post []float64, err error) {
	pre, err = c.Pre.LatestState()
	if err != nil {
		return nil, nil, err
	}
	post, err = c.Post.LatestState()
	if err != nil {
		return nil, nil, err
	}
	return pre, post, nil
}

// Oja implements Oja's rule: the Hebbian outer product with a decay scaled
// by the squared postsynaptic activity, which normalizes weight growth.
type Oja struct{}

func (Oja) Name() string { return "oja" }

func (Oja) Delta(c *Connection) (*mat.Dense, error) {
	pre, post, err := c.endpointStates()
	if err != nil {
		return nil, err
	}
	d := mat.NewDense(c.Pre.N, c.Post.N, nil)
	d.Outer(c.learningRate, mat.NewVecDense(len(pre), pre), mat.NewVecDense(len(post), post))
	d.Apply(func(i, j int, v float64) float64 {
		return v - c.learningRate*post[j]*post[j]*c.Weights.At(i, j)
	}, d)
	return d, nil
}

// Foldiak implements Foldiak's rule: the Hebbian outer product minus the
// outer product of the smoothed firing-rate estimates, decorrelating units
// from their average activity rather than their instantaneous state.
type Foldiak struct{}

func (Foldiak) Name() string { return "foldiak" }

func (Foldiak) Delta(c *Connection) (*mat.Dense, error) {
	pre, post, err := c.endpointStates()
	if err != nil {
		return nil, err
	}
	preRates, err := c.Pre.FiringRates()
	if err != nil {
		return nil, err
	}
	postRates, err := c.Post.FiringRates()
	if err != nil {
		return nil, err
	}
	d := mat.NewDense(c.Pre.N, c.Post.N, nil)
	d.Outer(1, mat.NewVecDense(len(pre), pre), mat.NewVecDense(len(post), post))
	d.Apply(func(i, j int, v float64) float64 {
		return c.learningRate * (v - preRates[i]*postRates[j])
	}, d)
	return d, nil
}

// CM implements the correlation-measuring rule: Foldiak's rule with the
// rate term additionally scaled by (1 + weight), giving a weight-dependent
// decay.
type CM struct{}

func (CM) Name() string { return "cm" }

func (CM) Delta(c *Connection) (*mat.Dense, error) {
	pre, post, err := c.endpointStates()
	if err != nil {
		return nil, err
	}
	preRates, err := c.Pre.FiringRates()
	if err != nil {
		return nil, err
	}
	postRates, err := c.Post.FiringRates()
	if err != nil {
		return nil, err
	}
	d := mat.NewDense(c.Pre.N, c.Post.N, nil)
	d.Outer(1, mat.NewVecDense(len(pre), pre), mat.NewVecDense(len(post), post))
	d.Apply(func(i, j int, v float64) float64 {
		return c.learningRate * (v - preRates[i]*postRates[j]*(1+c.Weights.At(i, j)))
	}, d)
	return d, nil
}

// Identity is the constant pass-through wiring from raw input to the first
// trainable layer: square identity weights and no learning.
type Identity struct{}

func (Identity) Name() string { return "identity" }

func (Identity) Delta(*Connection) (*mat.Dense, error) { return nil, nil }

func (Identity) initWeights(preN, postN int) (*mat.Dense, error) {
	if preN != postN {
		return nil, fmt.Errorf("identity connection requires square dimensions, got %dx%d", preN, postN)
	}
	w := mat.NewDense(preN, postN, nil)
	for i := 0; i < preN; i++ {
		w.Set(i, i, 1)
	}
	return w, nil
}
