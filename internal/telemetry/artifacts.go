package telemetry

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"plasticnet/internal/model"
)

// WriteRunArtifacts materializes a completed run under baseDir/<runID>:
// run.json with the full run record, firing_rates.csv with the per-epoch
// rate series and weight_stats.json with the captured histograms.
func WriteRunArtifacts(baseDir string, run model.Run, epochs []model.EpochStats, weights []model.WeightStats) (string, error) {
	if run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "run.json"), run); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "weight_stats.json"), weights); err != nil {
		return "", err
	}
	if err := writeFiringRatesCSV(filepath.Join(runDir, "firing_rates.csv"), epochs); err != nil {
		return "", err
	}
	return runDir, nil
}

// ReadRun loads the run record written by WriteRunArtifacts.
func ReadRun(baseDir, runID string) (model.Run, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, "run.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return model.Run{}, false, nil
		}
		return model.Run{}, false, err
	}
	var run model.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return model.Run{}, false, err
	}
	return run, true, nil
}

func writeFiringRatesCSV(path string, epochs []model.EpochStats) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	names := make([]string, 0)
	seen := make(map[string]bool)
	for _, e := range epochs {
		for name := range e.FiringRates {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)

	writer := csv.NewWriter(file)
	header := append([]string{"epoch", "timesteps"}, names...)
	if err := writer.Write(header); err != nil {
		return err
	}
	for i, e := range epochs {
		record := []string{strconv.Itoa(i + 1), strconv.Itoa(e.Timesteps)}
		for _, name := range names {
			record = append(record, strconv.FormatFloat(e.FiringRates[name], 'f', -1, 64))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
