package telemetry

import (
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
)

// Writer prints a one-line progress report per epoch.
type Writer struct {
	Out io.Writer
}

func (w Writer) Report(s Snapshot) error {
	names := make([]string, 0, len(s.FiringRates))
	for name := range s.FiringRates {
		names = append(names, name)
	}
	sort.Strings(names)

	if _, err := fmt.Fprintf(w.Out, "%s epoch, %s timesteps",
		humanize.Ordinal(s.Epoch), humanize.Comma(int64(s.Timesteps))); err != nil {
		return err
	}
	for _, name := range names {
		if _, err := fmt.Fprintf(w.Out, " | %s rate %.4f", name, s.FiringRates[name]); err != nil {
			return err
		}
	}
	if len(s.Weights) > 0 {
		if _, err := fmt.Fprintf(w.Out, " | %d weight histograms", len(s.Weights)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w.Out)
	return err
}

// Multi fans a snapshot out to several reporters, stopping at the first
// failure.
type Multi []Reporter

func (m Multi) Report(s Snapshot) error {
	for _, r := range m {
		if err := r.Report(s); err != nil {
			return err
		}
	}
	return nil
}
