package telemetry

import (
	"bytes"
	"strings"
	"testing"

	"plasticnet/internal/model"
)

func TestWriterReport(t *testing.T) {
	var buf bytes.Buffer
	w := Writer{Out: &buf}

	err := w.Report(Snapshot{
		Epoch:     2,
		Timesteps: 1200,
		FiringRates: map[string]float64{
			"v1":  0.0213,
			"lgn": 0.0197,
		},
		Weights: []model.WeightStats{{Connection: "oja:in->v1#0"}},
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	line := buf.String()
	for _, want := range []string{"2nd epoch", "1,200 timesteps", "lgn rate 0.0197", "v1 rate 0.0213", "1 weight histograms"} {
		if !strings.Contains(line, want) {
			t.Fatalf("report line missing %q: %s", want, line)
		}
	}
	// Layer names come out sorted.
	if strings.Index(line, "lgn") > strings.Index(line, "v1") {
		t.Fatalf("rates not sorted by layer name: %s", line)
	}
}

type countingReporter struct{ calls int }

func (r *countingReporter) Report(Snapshot) error {
	r.calls++
	return nil
}

func TestMultiReport(t *testing.T) {
	a := &countingReporter{}
	b := &countingReporter{}
	if err := (Multi{a, b}).Report(Snapshot{Epoch: 1}); err != nil {
		t.Fatalf("multi report: %v", err)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("reporter calls: a=%d b=%d", a.calls, b.calls)
	}
}
