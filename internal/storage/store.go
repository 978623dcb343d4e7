package storage

import (
	"context"

	"plasticnet/internal/model"
)

// Store defines persistence operations for completed runs and the telemetry
// gathered while they trained.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, id string) (model.Run, bool, error)
	ListRuns(ctx context.Context) ([]model.Run, error)
	SaveEpochStats(ctx context.Context, runID string, stats []model.EpochStats) error
	GetEpochStats(ctx context.Context, runID string) ([]model.EpochStats, bool, error)
	SaveWeightStats(ctx context.Context, runID string, stats []model.WeightStats) error
	GetWeightStats(ctx context.Context, runID string) ([]model.WeightStats, bool, error)
}
