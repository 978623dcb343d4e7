package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"plasticnet/internal/storage"
	"plasticnet/pkg/plasticnet"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "stats":
		return runStats(ctx, args[1:])
	case "sta":
		return runSTA(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type storeFlags struct {
	kind         *string
	dbPath       *string
	artifactsDir *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		kind:         fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath:       fs.String("db-path", "plasticnet.db", "sqlite database path"),
		artifactsDir: fs.String("artifacts", "artifacts", "run artifacts directory"),
	}
}

func (f storeFlags) client() (*plasticnet.Client, error) {
	return plasticnet.New(plasticnet.Options{
		StoreKind:    *f.kind,
		DBPath:       *f.dbPath,
		ArtifactsDir: *f.artifactsDir,
	})
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	specPath := fs.String("spec", "", "network spec JSON path (required)")
	epochs := fs.Int("epochs", 0, "training epochs")
	seed := fs.Int64("seed", 0, "random seed")
	stimuliCSV := fs.String("stimuli", "", "stimulus CSV path; random uniform stimuli when empty")
	stimLow := fs.Float64("stim-low", -1, "lower bound of generated stimuli")
	stimHigh := fs.Float64("stim-high", 1, "upper bound of generated stimuli")
	weightInterval := fs.Int("weight-interval", 0, "timesteps between weight histogram captures")
	quiet := fs.Bool("quiet", false, "suppress per-epoch progress")
	if err := fs.Parse(args); err != nil {
		return err
	}

	spec, err := loadNetworkSpec(*specPath)
	if err != nil {
		return err
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	req := plasticnet.RunRequest{
		Spec:           spec,
		Epochs:         *epochs,
		Seed:           *seed,
		StimulusCSV:    *stimuliCSV,
		StimulusLow:    *stimLow,
		StimulusHigh:   *stimHigh,
		WeightInterval: *weightInterval,
	}
	if !*quiet {
		req.Progress = os.Stdout
	}

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("run %s finished: %d epochs, %d timesteps\n", summary.RunID, summary.Epochs, summary.Timesteps)
	names := make([]string, 0, len(summary.FinalFiringRates))
	for name := range summary.FinalFiringRates {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s mean firing rate %.4f\n", name, summary.FinalFiringRates[name])
	}
	fmt.Printf("artifacts: %s\n", summary.ArtifactsDir)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	limit := fs.Int("limit", 20, "maximum runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, plasticnet.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, item := range items {
		fmt.Printf("%s  created=%s seed=%d epochs=%d timesteps=%d\n",
			item.RunID, item.CreatedAtUTC, item.Seed, item.Epochs, item.Timesteps)
	}
	return nil
}

func runStats(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run", "", "run id (required)")
	weights := fs.Bool("weights", false, "show weight histograms instead of firing rates")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return usageError("stats requires -run")
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if *weights {
		stats, err := client.WeightStats(ctx, *runID)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(stats)
	}
	stats, err := client.EpochStats(ctx, *runID)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(stats)
}

func runSTA(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sta", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	specPath := fs.String("spec", "", "network spec JSON path (required)")
	epochs := fs.Int("epochs", 0, "training epochs before probing")
	seed := fs.Int64("seed", 0, "random seed")
	samples := fs.Int("samples", 1000, "number of probe stimuli")
	layerList := fs.String("layers", "", "comma-separated layer names to probe; all non-input layers when empty")
	out := fs.String("out", "", "write receptive fields JSON to this path instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	spec, err := loadNetworkSpec(*specPath)
	if err != nil {
		return err
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	var layers []string
	if *layerList != "" {
		layers = strings.Split(*layerList, ",")
	}
	summary, err := client.STA(ctx, plasticnet.STARequest{
		Run: plasticnet.RunRequest{
			Spec:   spec,
			Epochs: *epochs,
			Seed:   *seed,
		},
		Samples: *samples,
		Layers:  layers,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "run %s probed with %d samples, %d active units\n",
		summary.RunID, summary.Samples, summary.ActiveUnits)

	fields := make(map[string][]float64, len(summary.Fields))
	for key, field := range summary.Fields {
		fields[fmt.Sprintf("%s/%d", key.Layer, key.Unit)] = field
	}
	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if *out != "" {
		return os.WriteFile(*out, data, 0o644)
	}
	_, err = os.Stdout.Write(data)
	return err
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: plasticnetctl <run|runs|stats|sta> [flags]", msg)
}
