package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Sigmoid is the logistic function, the on-probability of a stochastic unit
// with the given energy difference.
func Sigmoid(energy float64) float64 {
	return 1 / (1 + math.Exp(-energy))
}

// DecayKernel returns the exponential weighting used for firing-rate
// estimation: norm * exp(-tc * i) for i in [0, length), with
// norm = sqrt(pi) / (2 * tc). Index 0 weights the most recent sample.
func DecayKernel(length int, timeConstant float64) []float64 {
	norm := math.Sqrt(math.Pi) / (2 * timeConstant)
	kernel := make([]float64, length)
	for i := range kernel {
		kernel[i] = norm * math.Exp(-timeConstant*float64(i))
	}
	return kernel
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func checkFinite(values []float64) error {
	for i, v := range values {
		if !isFinite(v) {
			return fmt.Errorf("non-finite value %f at index %d", v, i)
		}
	}
	return nil
}

func checkFiniteDense(m *mat.Dense) error {
	raw := m.RawMatrix()
	for i, v := range raw.Data {
		if !isFinite(v) {
			return fmt.Errorf("non-finite value %f at flat index %d", v, i)
		}
	}
	return nil
}
