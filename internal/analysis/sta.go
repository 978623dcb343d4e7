// Package analysis computes receptive-field estimates for trained networks
// by spike-triggered averaging of probe stimuli.
package analysis

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"plasticnet/internal/nn"
)

// UnitKey addresses one unit of one named layer.
type UnitKey struct {
	Layer string
	Unit  int
}

// RecordResponses presents probe stimuli to a trained network and records,
// per unit, the indices of the stimuli that unit fired for. Stimuli are
// presented in epochs of StimuliPerEpoch; a unit counts as responding to a
// stimulus when its state is positive at the end of that stimulus's
// presentation window. Only the endpoint of the window is sampled, so
// spikes earlier in the window are not counted.
//
// layers selects which non-input layers to record; empty means all of them.
func RecordResponses(net *nn.Network, stimuli [][]float64, layers ...string) (map[UnitKey][]int, error) {
	if len(stimuli) == 0 {
		return nil, fmt.Errorf("at least one probe stimulus is required")
	}

	selected, err := selectLayers(net, layers)
	if err != nil {
		return nil, err
	}

	responses := make(map[UnitKey][]int)
	for _, l := range selected {
		for unit := 0; unit < l.N; unit++ {
			responses[UnitKey{Layer: l.Name, Unit: unit}] = nil
		}
	}

	presentations := net.Params.Presentations
	if presentations > nn.HistoryWindow {
		return nil, fmt.Errorf("presentation window of %d sweeps exceeds the %d-entry history layers retain", presentations, nn.HistoryWindow)
	}
	// Cap the probe batch so every presentation sweep survives in the
	// bounded layer history.
	epochSize := net.Params.StimuliPerEpoch
	if epochSize*presentations > nn.HistoryWindow {
		epochSize = nn.HistoryWindow / presentations
	}
	for offset := 0; offset < len(stimuli); offset += epochSize {
		end := offset + epochSize
		if end > len(stimuli) {
			end = len(stimuli)
		}
		batch := stimuli[offset:end]
		if err := net.UpdateNetwork(batch); err != nil {
			return nil, err
		}

		for _, l := range selected {
			history := l.History()
			if len(history) != len(batch)*presentations {
				return nil, fmt.Errorf("layer %s: history window holds %d of %d presentation sweeps; reduce stimuli per epoch or presentations",
					l.Name, len(history), len(batch)*presentations)
			}
			for j := range batch {
				// History is newest first; the endpoint of stimulus j's
				// window is its last recorded sweep.
				endpoint := history[len(history)-(j+1)*presentations]
				for unit, state := range endpoint {
					if state > 0 {
						key := UnitKey{Layer: l.Name, Unit: unit}
						responses[key] = append(responses[key], offset+j)
					}
				}
			}
		}
	}
	return responses, nil
}

// Average computes the spike-triggered average for every unit: the mean of
// the probe stimuli the unit responded to. Units that never fired map to
// nil.
func Average(responses map[UnitKey][]int, stimuli [][]float64) (map[UnitKey][]float64, error) {
	out := make(map[UnitKey][]float64, len(responses))
	for key, indices := range responses {
		if len(indices) == 0 {
			out[key] = nil
			continue
		}
		sum := make([]float64, len(stimuli[0]))
		for _, idx := range indices {
			if idx < 0 || idx >= len(stimuli) {
				return nil, fmt.Errorf("unit %s/%d: stimulus index %d out of range", key.Layer, key.Unit, idx)
			}
			floats.Add(sum, stimuli[idx])
		}
		floats.Scale(1/float64(len(indices)), sum)
		out[key] = sum
	}
	return out, nil
}

// GaussianBlob fills a vector of the given length with a gaussian bump
// centered on mean, with variance drawn uniformly from [varLo, varHi).
func GaussianBlob(length int, mean, varLo, varHi float64, rng *rand.Rand) []float64 {
	variance := varLo + (varHi-varLo)*rng.Float64()
	out := make([]float64, length)
	for i := range out {
		d := float64(i) - mean
		out[i] = math.Exp(-d * d / (2 * variance))
	}
	return out
}

// BlobStimuli generates count random two-dimensional gaussian-blob probe
// images for a flat input of dim units, factored into the most even
// height x width grid. Each image is returned flattened row-major.
func BlobStimuli(dim, count int, rng *rand.Rand) ([][]float64, error) {
	h, w, err := Factor(dim)
	if err != nil {
		return nil, err
	}

	stimuli := make([][]float64, count)
	for i := range stimuli {
		xMean := -1 + (float64(h)+1)*rng.Float64()
		yMean := -1 + (float64(w)+1)*rng.Float64()
		x := GaussianBlob(h, xMean, 0.5, 1.5, rng)
		y := GaussianBlob(w, yMean, 0.5, 1.5, rng)
		img := mat.NewDense(h, w, nil)
		img.Outer(1, mat.NewVecDense(h, x), mat.NewVecDense(w, y))
		stimuli[i] = append([]float64(nil), img.RawMatrix().Data...)
	}
	return stimuli, nil
}

// Factor splits n into its two most even factors, largest-first ratio
// closest to square.
func Factor(n int) (int, int, error) {
	if n <= 0 {
		return 0, 0, fmt.Errorf("cannot factor non-positive size %d", n)
	}
	for q := int(math.Sqrt(float64(n))) + 1; q > 0; q-- {
		if n%q == 0 {
			return q, n / q, nil
		}
	}
	return 0, 0, fmt.Errorf("cannot factor size %d", n)
}

func selectLayers(net *nn.Network, names []string) ([]*nn.Layer, error) {
	if len(names) == 0 {
		return net.Layers[1:], nil
	}
	byName := make(map[string]*nn.Layer, len(net.Layers))
	for _, l := range net.Layers {
		byName[l.Name] = l
	}
	selected := make([]*nn.Layer, 0, len(names))
	for _, name := range names {
		l, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown layer %s", name)
		}
		if l.IsInput() {
			return nil, fmt.Errorf("layer %s: cannot record responses from the input layer", name)
		}
		selected = append(selected, l)
	}
	return selected, nil
}
