// Package training runs the end-to-end model build: load, preprocess,
// split, fit, evaluate and persist.
package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mimir-aip/obesity-tc/pkg/balance"
	"github.com/mimir-aip/obesity-tc/pkg/bundle"
	"github.com/mimir-aip/obesity-tc/pkg/config"
	"github.com/mimir-aip/obesity-tc/pkg/dataset"
	"github.com/mimir-aip/obesity-tc/pkg/evaluation"
	"github.com/mimir-aip/obesity-tc/pkg/features"
	"github.com/mimir-aip/obesity-tc/pkg/forest"
	"github.com/mimir-aip/obesity-tc/pkg/logger"
	"github.com/mimir-aip/obesity-tc/pkg/metrics"
	"github.com/mimir-aip/obesity-tc/pkg/models"
	"github.com/mimir-aip/obesity-tc/pkg/storage"
)

// Artifact names written to the reports directory
const (
	MetricsFile = "metrics.json"
	ReportFile  = "classification_report.txt"
)

// Options configures a training run
type Options struct {
	SourcePath   string
	TargetColumn string // raw label column in the source table
	ModelPath    string
	ReportsDir   string
	ProcessedOut string // optional export of the preprocessed table

	TestFraction float64
	Seed         int64
	MinAccuracy  float64
	Neighbors    int
	ClipScaled   bool

	Forest forest.Options
}

// OptionsFromConfig maps the training section of cfg onto run options
func OptionsFromConfig(cfg *config.Config) Options {
	t := cfg.Training
	return Options{
		SourcePath:   cfg.Data.RawPath,
		TargetColumn: t.TargetColumn,
		ModelPath:    t.ModelPath,
		ReportsDir:   t.ReportsDir,
		TestFraction: t.TestFraction,
		Seed:         t.Seed,
		MinAccuracy:  t.MinAccuracy,
		Neighbors:    t.Neighbors,
		ClipScaled:   t.ClipScaled,
		Forest: forest.Options{
			NumTrees:        t.NumTrees,
			MaxDepth:        t.MaxDepth,
			MinSamplesSplit: t.MinSamplesSplit,
			Seed:            t.Seed,
			Workers:         t.Workers,
		},
	}
}

// RunRecorder persists training run records
type RunRecorder interface {
	SaveRun(ctx context.Context, run *models.TrainingRun) error
}

// Result is everything a finished run produced
type Result struct {
	Run         *models.TrainingRun
	Report      *models.MetricsReport
	Bundle      *bundle.Bundle
	ModelPath   string
	MetricsPath string
	ReportPath  string
}

// Orchestrator drives one training run through its states
type Orchestrator struct {
	opts     Options
	log      *logger.Logger
	recorder RunRecorder
	metrics  *metrics.Metrics
}

// NewOrchestrator creates an orchestrator. log may be nil.
func NewOrchestrator(opts Options, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Get()
	}
	return &Orchestrator{opts: opts, log: log}
}

// WithRecorder makes the orchestrator record every run it executes
func (o *Orchestrator) WithRecorder(r RunRecorder) *Orchestrator {
	o.recorder = r
	return o
}

// WithMetrics exports run outcomes to m
func (o *Orchestrator) WithMetrics(m *metrics.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// run carries the intermediate products between states
type run struct {
	record *models.TrainingRun
	log    *logger.Logger

	frame  *dataset.Frame
	schema *models.Schema
	labels []string
	train  []int
	test   []int

	transformer *features.ColumnTransformer
	forest      *forest.RandomForest
	balanced    int
	neighbors   int

	report *models.MetricsReport
	result *Result
}

// Run executes the pipeline. When the run completes but accuracy is below
// the configured minimum, the artifacts are written and both the Result and
// an error wrapping ErrBelowAccuracyThreshold are returned.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	r := &run{
		record: &models.TrainingRun{
			ID:          uuid.NewString(),
			Status:      models.RunStatusRunning,
			SourcePath:  o.opts.SourcePath,
			ModelPath:   o.opts.ModelPath,
			Seed:        o.opts.Seed,
			MinAccuracy: o.opts.MinAccuracy,
			StartedAt:   started.UTC(),
		},
	}
	r.log = o.log.With("run_id", r.record.ID)
	r.log.Infow("Starting training run", "source", o.opts.SourcePath, "model_path", o.opts.ModelPath, "seed", o.opts.Seed)

	steps := []struct {
		state models.RunState
		fn    func(context.Context, *run) error
	}{
		{models.StateLoaded, o.load},
		{models.StatePreprocessed, o.preprocess},
		{models.StateSplit, o.split},
		{models.StateFitted, o.fit},
		{models.StateEvaluated, o.evaluate},
		{models.StatePersisted, o.persist},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, o.fail(ctx, r, started, err)
		}
		if err := step.fn(ctx, r); err != nil {
			return nil, o.fail(ctx, r, started, err)
		}
		o.transition(ctx, r, step.state)
	}

	finished := time.Now().UTC()
	r.record.FinishedAt = &finished
	r.record.GatePassed = r.report.GatePassed
	if r.report.GatePassed {
		r.record.Status = models.RunStatusSucceeded
	} else {
		r.record.Status = models.RunStatusGateFailed
	}
	o.save(ctx, r)
	o.metrics.TrainingFinished(string(r.record.Status), r.report.Accuracy, true, time.Since(started))

	if !r.report.GatePassed {
		r.log.Warnw("Accuracy below minimum, artifacts kept for inspection",
			"accuracy", r.report.Accuracy, "min_accuracy", o.opts.MinAccuracy)
		return r.result, fmt.Errorf("%w: accuracy %.4f < %.4f",
			models.ErrBelowAccuracyThreshold, r.report.Accuracy, o.opts.MinAccuracy)
	}
	r.log.Infow("Training run succeeded", "accuracy", r.report.Accuracy, "duration", time.Since(started))
	return r.result, nil
}

func (o *Orchestrator) transition(ctx context.Context, r *run, state models.RunState) {
	r.log.Infow("Training state changed", "from", r.record.State, "to", state)
	r.record.State = state
	o.save(ctx, r)
}

func (o *Orchestrator) fail(ctx context.Context, r *run, started time.Time, err error) error {
	finished := time.Now().UTC()
	r.record.FinishedAt = &finished
	r.record.Status = models.RunStatusFailed
	r.record.Error = err.Error()
	r.log.Errorw("Training run failed", "state", r.record.State, "error", err)
	r.record.State = models.StateFailed
	o.save(ctx, r)
	o.metrics.TrainingFinished(string(models.RunStatusFailed), 0, false, time.Since(started))
	return err
}

// save records the run; registry errors never fail training
func (o *Orchestrator) save(ctx context.Context, r *run) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.SaveRun(context.WithoutCancel(ctx), r.record); err != nil {
		r.log.Warnw("Failed to record training run", "error", err)
	}
}

func (o *Orchestrator) load(_ context.Context, r *run) error {
	frame, err := dataset.ReadCSVFile(o.opts.SourcePath)
	if err != nil {
		return err
	}
	if frame.Len() == 0 {
		return fmt.Errorf("%w: source table %s has no rows", models.ErrMissingInput, o.opts.SourcePath)
	}
	r.frame = frame
	r.log.Infow("Loaded source table", "rows", frame.Len(), "columns", len(frame.Columns()))
	return nil
}

func (o *Orchestrator) preprocess(_ context.Context, r *run) error {
	frame, err := dataset.NewPreprocessor(o.opts.TargetColumn).Apply(r.frame)
	if err != nil {
		return err
	}
	if !frame.Has(models.TargetColumn) {
		return fmt.Errorf("%w: target column %q not found in %s",
			models.ErrSchemaMismatch, o.opts.TargetColumn, o.opts.SourcePath)
	}

	if o.opts.ProcessedOut != "" {
		if err := dataset.SaveCSVFile(o.opts.ProcessedOut, frame); err != nil {
			return fmt.Errorf("failed to export processed table: %w", err)
		}
		r.log.Infow("Exported processed table", "path", o.opts.ProcessedOut)
	}

	schema, err := dataset.InferSchema(frame, models.TargetColumn)
	if err != nil {
		return err
	}
	if err := dataset.Coerce(frame, schema); err != nil {
		return err
	}
	labels, err := frame.Labels(models.TargetColumn)
	if err != nil {
		return err
	}
	for i, l := range labels {
		if l == "" {
			return fmt.Errorf("%w: row %d has an empty %s", models.ErrSchemaMismatch, i+1, o.opts.TargetColumn)
		}
	}

	r.frame, r.schema, r.labels = frame, schema, labels
	r.log.Infow("Preprocessed table",
		"numeric_columns", len(schema.Numeric),
		"categorical_columns", len(schema.Categorical),
		"classes", len(models.SortedLabels(labels)))
	return nil
}

func (o *Orchestrator) split(_ context.Context, r *run) error {
	train, test, err := StratifiedSplit(r.labels, o.opts.TestFraction, o.opts.Seed)
	if err != nil {
		return err
	}
	r.train, r.test = train, test
	r.record.TrainSize, r.record.TestSize = len(train), len(test)
	r.log.Infow("Split dataset", "n_train", len(train), "n_test", len(test))
	return nil
}

func (o *Orchestrator) fit(_ context.Context, r *run) error {
	yTrain := selectLabels(r.labels, r.train)

	smote := balance.NewSMOTE(o.opts.Neighbors, o.opts.Seed)
	if err := smote.CheckClassCounts(yTrain); err != nil {
		return err
	}

	r.transformer = features.NewColumnTransformer(r.schema, o.opts.ClipScaled)
	XTrain, err := r.transformer.FitTransform(r.frame.Select(r.train))
	if err != nil {
		return fmt.Errorf("failed to fit encoder: %w", err)
	}

	XBal, yBal, err := smote.Resample(XTrain, yTrain)
	if err != nil {
		return fmt.Errorf("failed to balance training data: %w", err)
	}
	r.balanced, r.neighbors = len(yBal), smote.K
	r.log.Infow("Balanced training partition", "before", len(yTrain), "after", len(yBal))

	forestOpts := o.opts.Forest
	forestOpts.Seed = o.opts.Seed
	r.forest = forest.New(forestOpts)
	if err := r.forest.Fit(XBal, yBal, r.transformer.FeatureNames()); err != nil {
		return fmt.Errorf("failed to fit classifier: %w", err)
	}
	r.log.Infow("Fitted classifier", "trees", r.forest.NumTrees, "features", len(r.forest.FeatureNames))
	return nil
}

func (o *Orchestrator) evaluate(_ context.Context, r *run) error {
	XTest, err := r.transformer.Transform(r.frame.Select(r.test))
	if err != nil {
		return fmt.Errorf("failed to encode test partition: %w", err)
	}
	yPred, err := r.forest.PredictBatch(XTest)
	if err != nil {
		return err
	}

	report, err := evaluation.Evaluate(selectLabels(r.labels, r.test), yPred, models.SortedLabels(r.labels))
	if err != nil {
		return err
	}
	report.TrainSize = len(r.train)
	report.BalancedTrainSize = r.balanced
	report.FeatureImportance = r.forest.Importance()
	report.MinAccuracy = o.opts.MinAccuracy
	report.GatePassed = report.Accuracy >= o.opts.MinAccuracy
	if err := report.Validate(); err != nil {
		return fmt.Errorf("inconsistent metrics report: %w", err)
	}

	r.report = report
	r.record.Accuracy = report.Accuracy
	r.log.Infow("Evaluated classifier", "accuracy", report.Accuracy, "macro_f1", report.MacroAvg.F1Score)
	return nil
}

func (o *Orchestrator) persist(_ context.Context, r *run) error {
	b := bundle.New(r.record.ID, *r.schema, r.transformer, bundle.BalancerInfo{
		Method:    "smote",
		Neighbors: r.neighbors,
		Seed:      o.opts.Seed,
	}, r.forest)
	if err := bundle.Save(o.opts.ModelPath, b); err != nil {
		return err
	}

	fs, err := storage.NewFileStore(o.opts.ReportsDir)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrSerializationFailure, err)
	}
	metricsPath, err := fs.SaveJSON(MetricsFile, r.report)
	if err != nil {
		return err
	}
	text := evaluation.ClassificationReport(r.report, 4) + "\n" + evaluation.ConfusionTable(r.report)
	reportPath, err := fs.SaveText(ReportFile, text)
	if err != nil {
		return err
	}

	r.record.MetricsPath, r.record.ReportPath = metricsPath, reportPath
	r.result = &Result{
		Run:         r.record,
		Report:      r.report,
		Bundle:      b,
		ModelPath:   o.opts.ModelPath,
		MetricsPath: metricsPath,
		ReportPath:  reportPath,
	}
	r.log.Infow("Persisted artifacts", "model", o.opts.ModelPath, "metrics", metricsPath, "report", reportPath)
	return nil
}

// IsGateFailure reports whether err only signals a failed accuracy gate
func IsGateFailure(err error) bool {
	return errors.Is(err, models.ErrBelowAccuracyThreshold)
}
