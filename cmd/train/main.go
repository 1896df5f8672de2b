// Command train builds the obesity-level classifier from a raw
// questionnaire table and writes the model bundle and metrics reports.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mimir-aip/obesity-tc/internal/cli"
	"github.com/mimir-aip/obesity-tc/pkg/config"
	"github.com/mimir-aip/obesity-tc/pkg/evaluation"
	"github.com/mimir-aip/obesity-tc/pkg/logger"
	"github.com/mimir-aip/obesity-tc/pkg/runstore"
	"github.com/mimir-aip/obesity-tc/pkg/training"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("train", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "", "YAML config file (default $OBESITY_CONFIG)")
	data := flags.String("data", "", "raw questionnaire CSV")
	target := flags.String("target", "", "label column in the raw CSV")
	modelOut := flags.String("model-out", "", "model bundle output path")
	reportsDir := flags.String("reports-dir", "", "directory for metrics.json and classification_report.txt")
	processedOut := flags.String("processed-out", "", "also write the preprocessed table to this CSV")
	testSize := flags.Float64("test-size", 0, "held-out fraction")
	seed := flags.Int64("seed", 0, "random seed")
	minAccuracy := flags.Float64("min-accuracy", 0, "accuracy gate; below it the run exits with code 2")
	trees := flags.Int("trees", 0, "number of trees")
	runDB := flags.String("run-db", "", "SQLite run registry path")
	noRegistry := flags.Bool("no-registry", false, "do not record the run")
	if err := flags.Parse(args); err != nil {
		return cli.ExitFailure
	}

	cfg, log, err := cli.Bootstrap(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return cli.ExitFailure
	}
	defer logger.Sync()

	set := cli.Visited(flags)
	if set["data"] {
		cfg.Data.RawPath = *data
	}
	if set["target"] {
		cfg.Training.TargetColumn = *target
	}
	if set["model-out"] {
		cfg.Training.ModelPath = *modelOut
	}
	if set["reports-dir"] {
		cfg.Training.ReportsDir = *reportsDir
	}
	if set["test-size"] {
		cfg.Training.TestFraction = *testSize
	}
	if set["seed"] {
		cfg.Training.Seed = *seed
	}
	if set["min-accuracy"] {
		cfg.Training.MinAccuracy = *minAccuracy
	}
	if set["trees"] {
		cfg.Training.NumTrees = *trees
	}
	if set["run-db"] {
		cfg.Data.RunDBPath = *runDB
	}
	if err := cfg.Validate(); err != nil {
		log.Errorw("Invalid configuration", "error", err)
		return cli.ExitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := train(ctx, cfg, log, *processedOut, !*noRegistry)
	if result != nil {
		fmt.Fprint(stdout, evaluation.ClassificationReport(result.Report, 4))
		fmt.Fprintf(stdout, "\nmodel:   %s\nmetrics: %s\nreport:  %s\n", result.ModelPath, result.MetricsPath, result.ReportPath)
	}
	switch {
	case err == nil:
		return cli.ExitOK
	case training.IsGateFailure(err):
		fmt.Fprintf(stderr, "Accuracy gate failed: %v\n", err)
		return cli.ExitGateFailed
	default:
		fmt.Fprintf(stderr, "Training failed: %v\n", err)
		return cli.ExitFailure
	}
}

func train(ctx context.Context, cfg *config.Config, log *logger.Logger, processedOut string, record bool) (*training.Result, error) {
	opts := training.OptionsFromConfig(cfg)
	opts.ProcessedOut = processedOut

	orch := training.NewOrchestrator(opts, log)
	if record && cfg.Data.RunDBPath != "" {
		store, err := runstore.NewSQLiteStore(cfg.Data.RunDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open run registry: %w", err)
		}
		defer store.Close()
		orch.WithRecorder(store)
	}
	return orch.Run(ctx)
}
