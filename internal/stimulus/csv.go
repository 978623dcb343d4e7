package stimulus

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LoadCSV reads a stimulus set from a CSV file with one stimulus vector per
// row. Rows whose first field does not parse as a number (headers) are
// skipped before any data row has been seen. Every data row must have dim
// numeric fields.
func LoadCSV(path string, dim int) (*Slice, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("stimulus csv path is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("stimulus dimension must be > 0, got %d", dim)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stimulus csv %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	stimuli := make([][]float64, 0, 128)
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read stimulus csv row %d: %w", row+1, err)
		}
		row++

		if len(record) == 0 {
			continue
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64); err != nil {
			if len(stimuli) == 0 {
				continue
			}
			return nil, fmt.Errorf("parse stimulus csv row %d: %w", row, err)
		}
		if len(record) != dim {
			return nil, fmt.Errorf("stimulus csv row %d has %d fields, want %d", row, len(record), dim)
		}
		v := make([]float64, dim)
		for i, field := range record {
			x, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("parse stimulus csv row %d field %d: %w", row, i+1, err)
			}
			v[i] = x
		}
		stimuli = append(stimuli, v)
	}
	if len(stimuli) == 0 {
		return nil, fmt.Errorf("stimulus csv %s contains no data rows", path)
	}
	return NewSlice(stimuli), nil
}
