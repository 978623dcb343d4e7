package telemetry

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"plasticnet/internal/model"
	"plasticnet/internal/nn"
)

// defaultWeightInterval is the minimum number of timesteps between weight
// histogram captures.
const defaultWeightInterval = 1000

// defaultWeightBins is the histogram resolution for weight snapshots.
const defaultWeightBins = 20

// Snapshot is one end-of-epoch view of a training network, handed to
// reporters.
type Snapshot struct {
	Epoch       int
	Timesteps   int
	FiringRates map[string]float64
	Weights     []model.WeightStats
}

// Reporter consumes end-of-epoch snapshots.
type Reporter interface {
	Report(s Snapshot) error
}

// Collector is an nn.Monitor that records per-epoch firing rates and
// periodic weight histograms, forwarding each snapshot to an optional
// reporter chain.
type Collector struct {
	// WeightInterval is the minimum timestep gap between weight histogram
	// captures. Zero means defaultWeightInterval.
	WeightInterval int
	// Reporters receive every snapshot in order.
	Reporters []Reporter

	epochs      int
	lastWeights int
	epochStats  []model.EpochStats
	weightStats []model.WeightStats
}

// Epoch implements nn.Monitor.
func (c *Collector) Epoch(n *nn.Network) error {
	c.epochs++

	rates, err := meanFiringRates(n)
	if err != nil {
		return err
	}
	c.epochStats = append(c.epochStats, model.EpochStats{
		Timesteps:   n.Timesteps,
		FiringRates: rates,
	})

	snapshot := Snapshot{
		Epoch:       c.epochs,
		Timesteps:   n.Timesteps,
		FiringRates: rates,
	}

	interval := c.WeightInterval
	if interval <= 0 {
		interval = defaultWeightInterval
	}
	if n.Timesteps-c.lastWeights >= interval {
		c.lastWeights = n.Timesteps
		weights := weightHistograms(n)
		c.weightStats = append(c.weightStats, weights...)
		snapshot.Weights = weights
	}

	for _, r := range c.Reporters {
		if err := r.Report(snapshot); err != nil {
			return fmt.Errorf("telemetry reporter: %w", err)
		}
	}
	return nil
}

// Epochs is the number of completed epochs observed so far.
func (c *Collector) Epochs() int { return c.epochs }

// EpochStats returns the recorded per-epoch telemetry.
func (c *Collector) EpochStats() []model.EpochStats { return c.epochStats }

// WeightStats returns the recorded weight histograms.
func (c *Collector) WeightStats() []model.WeightStats { return c.weightStats }

func meanFiringRates(n *nn.Network) (map[string]float64, error) {
	rates := make(map[string]float64, len(n.Layers)-1)
	for _, l := range n.Layers[1:] {
		rate, err := l.MeanFiringRate()
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", l.Name, err)
		}
		rates[l.Name] = rate
	}
	return rates, nil
}

func weightHistograms(n *nn.Network) []model.WeightStats {
	keys := make([]string, 0, len(n.Connections))
	for key := range n.Connections {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]model.WeightStats, 0, len(keys))
	for _, key := range keys {
		c := n.Connections[key]
		raw := c.Weights.RawMatrix()
		weights := append([]float64(nil), raw.Data...)
		sort.Float64s(weights)

		lo, hi := weights[0], weights[len(weights)-1]
		if lo == hi {
			// Degenerate distribution, widen to a single usable bin.
			hi = lo + 1
		}
		dividers := make([]float64, defaultWeightBins+1)
		width := (hi - lo) / defaultWeightBins
		for i := range dividers {
			dividers[i] = lo + width*float64(i)
		}
		dividers[len(dividers)-1] = hi
		counts := stat.Histogram(nil, dividers, weights, nil)

		out = append(out, model.WeightStats{
			Timesteps:  n.Timesteps,
			Connection: key,
			Dividers:   dividers,
			Counts:     counts,
		})
	}
	return out
}
