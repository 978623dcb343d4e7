// Package plasticnet is the embedding API for training biologically
// inspired networks with local plasticity rules and inspecting the results.
package plasticnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"time"

	"plasticnet/internal/analysis"
	"plasticnet/internal/model"
	"plasticnet/internal/nn"
	"plasticnet/internal/stimulus"
	"plasticnet/internal/storage"
	"plasticnet/internal/telemetry"
)

const (
	defaultArtifactsDir = "artifacts"
	defaultDBPath       = "plasticnet.db"
	defaultEpochs       = 10
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
}

type Client struct {
	store       storage.Store
	initialized bool

	artifactsDir string
}

// RunRequest configures one training run. Spec is required; everything else
// has usable defaults.
type RunRequest struct {
	Spec   model.NetworkSpec
	Epochs int
	Seed   int64

	// StimulusCSV loads probe stimuli from a file; when empty, stimuli are
	// drawn uniformly from [StimulusLow, StimulusHigh).
	StimulusCSV  string
	StimulusLow  float64
	StimulusHigh float64

	// Progress, when set, receives a one-line report per epoch.
	Progress io.Writer

	// WeightInterval overrides the timestep gap between weight histogram
	// captures.
	WeightInterval int
}

type RunSummary struct {
	RunID            string
	ArtifactsDir     string
	Epochs           int
	Timesteps        int
	FinalFiringRates map[string]float64
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Seed         int64
	Epochs       int
	Timesteps    int
}

// STARequest trains a network and then probes it with gaussian-blob images
// to estimate per-unit receptive fields.
type STARequest struct {
	Run     RunRequest
	Samples int
	Layers  []string
}

type STASummary struct {
	RunID        string
	ArtifactsDir string
	Samples      int
	// ActiveUnits counts units that responded to at least one probe.
	ActiveUnits int
	Fields      map[analysis.UnitKey][]float64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		artifactsDir: artifactsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Run trains a network from the requested spec and persists the run record,
// telemetry and artifacts.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	net, collector, req, err := c.trainNetwork(ctx, req)
	if err != nil {
		return RunSummary{}, err
	}

	run, err := c.persistRun(ctx, req, net, collector)
	if err != nil {
		return RunSummary{}, err
	}

	runDir, err := telemetry.WriteRunArtifacts(c.artifactsDir, run, collector.EpochStats(), collector.WeightStats())
	if err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:            run.ID,
		ArtifactsDir:     filepath.Clean(runDir),
		Epochs:           run.Epochs,
		Timesteps:        run.Timesteps,
		FinalFiringRates: run.FinalFiringRates,
	}, nil
}

// Runs lists persisted runs, oldest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) > req.Limit {
		runs = runs[len(runs)-req.Limit:]
	}

	out := make([]RunItem, 0, len(runs))
	for _, r := range runs {
		out = append(out, RunItem{
			RunID:        r.ID,
			CreatedAtUTC: r.CreatedAtUTC,
			Seed:         r.Seed,
			Epochs:       r.Epochs,
			Timesteps:    r.Timesteps,
		})
	}
	return out, nil
}

// EpochStats returns the persisted per-epoch telemetry of a run.
func (c *Client) EpochStats(ctx context.Context, runID string) ([]model.EpochStats, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	stats, ok, err := c.store.GetEpochStats(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("epoch stats not found for run id: %s", runID)
	}
	return stats, nil
}

// WeightStats returns the persisted weight histograms of a run.
func (c *Client) WeightStats(ctx context.Context, runID string) ([]model.WeightStats, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	stats, ok, err := c.store.GetWeightStats(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("weight stats not found for run id: %s", runID)
	}
	return stats, nil
}

// STA trains a network, probes it with gaussian-blob stimuli and writes the
// estimated receptive fields alongside the run artifacts.
func (c *Client) STA(ctx context.Context, req STARequest) (STASummary, error) {
	if req.Samples <= 0 {
		req.Samples = 1000
	}

	net, collector, runReq, err := c.trainNetwork(ctx, req.Run)
	if err != nil {
		return STASummary{}, err
	}

	run, err := c.persistRun(ctx, runReq, net, collector)
	if err != nil {
		return STASummary{}, err
	}
	runDir, err := telemetry.WriteRunArtifacts(c.artifactsDir, run, collector.EpochStats(), collector.WeightStats())
	if err != nil {
		return STASummary{}, err
	}

	rng := rand.New(rand.NewSource(run.Seed + 5000))
	probes, err := analysis.BlobStimuli(net.Layers[0].N, req.Samples, rng)
	if err != nil {
		return STASummary{}, err
	}
	responses, err := analysis.RecordResponses(net, probes, req.Layers...)
	if err != nil {
		return STASummary{}, err
	}
	fields, err := analysis.Average(responses, probes)
	if err != nil {
		return STASummary{}, err
	}

	active := 0
	for _, field := range fields {
		if field != nil {
			active++
		}
	}
	return STASummary{
		RunID:        run.ID,
		ArtifactsDir: filepath.Clean(runDir),
		Samples:      req.Samples,
		ActiveUnits:  active,
		Fields:       fields,
	}, nil
}

func (c *Client) trainNetwork(ctx context.Context, req RunRequest) (*nn.Network, *telemetry.Collector, RunRequest, error) {
	if req.Epochs <= 0 {
		req.Epochs = defaultEpochs
	}
	if req.StimulusLow == 0 && req.StimulusHigh == 0 {
		req.StimulusLow, req.StimulusHigh = -1, 1
	}
	if req.StimulusHigh <= req.StimulusLow {
		return nil, nil, req, fmt.Errorf("stimulus range [%f, %f) is empty", req.StimulusLow, req.StimulusHigh)
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, nil, req, err
	}

	rng := rand.New(rand.NewSource(req.Seed))
	net, err := BuildNetwork(req.Spec, rng)
	if err != nil {
		return nil, nil, req, err
	}
	req.Spec.Params = net.Params

	collector := &telemetry.Collector{WeightInterval: req.WeightInterval}
	if req.Progress != nil {
		collector.Reporters = append(collector.Reporters, telemetry.Writer{Out: req.Progress})
	}
	net.Monitor = collector

	src, err := c.stimulusSource(req, net)
	if err != nil {
		return nil, nil, req, err
	}
	if err := net.Train(ctx, src); err != nil {
		return nil, nil, req, err
	}
	return net, collector, req, nil
}

func (c *Client) stimulusSource(req RunRequest, net *nn.Network) (stimulus.Stream, error) {
	dim := net.Layers[0].N
	if req.StimulusCSV != "" {
		return stimulus.LoadCSV(req.StimulusCSV, dim)
	}
	count := req.Epochs * net.Params.StimuliPerEpoch
	return stimulus.Uniform(dim, count, req.StimulusLow, req.StimulusHigh, rand.New(rand.NewSource(req.Seed+1))), nil
}

func (c *Client) persistRun(ctx context.Context, req RunRequest, net *nn.Network, collector *telemetry.Collector) (model.Run, error) {
	rates := make(map[string]float64, len(net.Layers)-1)
	for _, l := range net.Layers[1:] {
		rate, err := l.MeanFiringRate()
		if err != nil {
			return model.Run{}, fmt.Errorf("layer %s: %w", l.Name, err)
		}
		rates[l.Name] = rate
	}

	now := time.Now().UTC()
	run := model.Run{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:               fmt.Sprintf("%s-%d-%d", net.Layers[len(net.Layers)-1].Name, req.Seed, now.Unix()),
		CreatedAtUTC:     now.Format(time.RFC3339Nano),
		Spec:             req.Spec,
		Seed:             req.Seed,
		Epochs:           collector.Epochs(),
		Timesteps:        net.Timesteps,
		FinalFiringRates: rates,
	}

	if err := c.store.SaveRun(ctx, run); err != nil {
		return model.Run{}, err
	}
	if err := c.store.SaveEpochStats(ctx, run.ID, collector.EpochStats()); err != nil {
		return model.Run{}, err
	}
	if err := c.store.SaveWeightStats(ctx, run.ID, collector.WeightStats()); err != nil {
		return model.Run{}, err
	}
	return run, nil
}

func (c *Client) ensureStore(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}
