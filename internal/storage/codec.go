package storage

import (
	"encoding/json"
	"errors"

	"plasticnet/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeRun(r model.Run) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.Run, error) {
	var run model.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return model.Run{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.Run{}, err
	}
	return run, nil
}

func EncodeEpochStats(stats []model.EpochStats) ([]byte, error) {
	return json.Marshal(stats)
}

func DecodeEpochStats(data []byte) ([]model.EpochStats, error) {
	var stats []model.EpochStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func EncodeWeightStats(stats []model.WeightStats) ([]byte, error) {
	return json.Marshal(stats)
}

func DecodeWeightStats(data []byte) ([]model.WeightStats, error) {
	var stats []model.WeightStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
