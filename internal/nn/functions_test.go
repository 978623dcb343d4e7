package nn

import (
	"math"
	"testing"
)

func TestDecayKernel(t *testing.T) {
	tc := 0.5
	kernel := DecayKernel(4, tc)
	if len(kernel) != 4 {
		t.Fatalf("kernel length: got=%d want=4", len(kernel))
	}
	norm := math.Sqrt(math.Pi) / (2 * tc)
	for i, got := range kernel {
		want := norm * math.Exp(-tc*float64(i))
		if math.Abs(got-want) > 1e-12 {
			t.Fatalf("kernel[%d]: got=%f want=%f", i, got, want)
		}
	}
	for i := 1; i < len(kernel); i++ {
		if kernel[i] >= kernel[i-1] {
			t.Fatalf("kernel not strictly decreasing at %d: %f >= %f", i, kernel[i], kernel[i-1])
		}
	}
}

func TestCheckFinite(t *testing.T) {
	if err := checkFinite([]float64{0, -1, 2.5}); err != nil {
		t.Fatalf("finite slice rejected: %v", err)
	}
	if err := checkFinite([]float64{0, math.NaN()}); err == nil {
		t.Fatal("NaN accepted")
	}
	if err := checkFinite([]float64{math.Inf(-1)}); err == nil {
		t.Fatal("-Inf accepted")
	}
}
