// Command server serves predictions over HTTP and keeps the processed
// dataset (and optionally the model) fresh on a cron schedule.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mimir-aip/obesity-tc/internal/cli"
	"github.com/mimir-aip/obesity-tc/pkg/api"
	"github.com/mimir-aip/obesity-tc/pkg/config"
	"github.com/mimir-aip/obesity-tc/pkg/inference"
	"github.com/mimir-aip/obesity-tc/pkg/logger"
	"github.com/mimir-aip/obesity-tc/pkg/metrics"
	"github.com/mimir-aip/obesity-tc/pkg/models"
	"github.com/mimir-aip/obesity-tc/pkg/runstore"
	"github.com/mimir-aip/obesity-tc/pkg/scheduler"
	"github.com/mimir-aip/obesity-tc/pkg/training"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (default $OBESITY_CONFIG)")
	addr := flag.String("addr", "", "listen address")
	flag.Parse()

	cfg, log, err := cli.Bootstrap(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(cli.ExitFailure)
	}
	defer logger.Sync()
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	if err := serve(cfg, log); err != nil {
		log.Errorw("Server failed", "error", err)
		logger.Sync()
		os.Exit(cli.ExitFailure)
	}
}

func serve(cfg *config.Config, log *logger.Logger) error {
	log.Infow("Starting obesity classifier server", "environment", cfg.Environment, "addr", cfg.Server.Addr)

	m := metrics.New()

	store, err := runstore.NewSQLiteStore(cfg.Data.RunDBPath)
	if err != nil {
		return fmt.Errorf("failed to open run registry: %w", err)
	}
	defer store.Close()
	if err := m.Register(metrics.NewRunCollector(log, store)); err != nil {
		return fmt.Errorf("failed to register run collector: %w", err)
	}

	sched := scheduler.NewService(log, m)
	server := api.NewServer(api.Options{
		Addr:      cfg.Server.Addr,
		Logger:    log,
		Metrics:   m,
		Runs:      store,
		Scheduler: sched,
	})

	svc, err := inference.Load(cfg.Training.ModelPath, cfg.Training.TargetColumn)
	switch {
	case err == nil:
		server.SetModel(svc)
	case errors.Is(err, models.ErrMissingInput):
		log.Warnw("No model bundle yet, /api/predict unavailable until one is trained", "path", cfg.Training.ModelPath)
	default:
		return fmt.Errorf("failed to load model: %w", err)
	}

	if cfg.Server.RefreshCron != "" {
		sched.SetRetrainer(func(ctx context.Context) error {
			_, err := training.NewOrchestrator(training.OptionsFromConfig(cfg), log).WithRecorder(store).WithMetrics(m).Run(ctx)
			if err != nil {
				// keep serving the previous model when the gate fails
				return err
			}
			svc, err := inference.Load(cfg.Training.ModelPath, cfg.Training.TargetColumn)
			if err != nil {
				return err
			}
			server.SetModel(svc)
			return nil
		})
		_, err := sched.Create(&models.RefreshJobCreateRequest{
			Name:       "processed-dataset",
			Schedule:   cfg.Server.RefreshCron,
			SourcePath: cfg.Data.RawPath,
			OutputPath: cfg.Data.ProcessedPath,
			RawTarget:  cfg.Training.TargetColumn,
			Retrain:    cfg.Server.RetrainOnRefresh,
			Enabled:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to schedule dataset refresh: %w", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Infow("Shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
