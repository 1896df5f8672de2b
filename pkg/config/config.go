package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/mimir-aip/obesity-tc/pkg/models"
)

// EnvPrefix is prepended to every environment override, e.g. OBESITY_TRAINING_SEED.
const EnvPrefix = "OBESITY"

// ConfigPathEnv names the variable holding the YAML config path
const ConfigPathEnv = "OBESITY_CONFIG"

// Config holds the application configuration
type Config struct {
	Environment string         `yaml:"environment" envconfig:"ENV"`
	LogLevel    string         `yaml:"log_level" envconfig:"LOG_LEVEL"`
	Data        DataConfig     `yaml:"data" envconfig:"DATA"`
	Training    TrainingConfig `yaml:"training" envconfig:"TRAINING"`
	Server      ServerConfig   `yaml:"server" envconfig:"SERVER"`
}

// DataConfig locates the datasets and the run registry
type DataConfig struct {
	RawPath       string `yaml:"raw_path" envconfig:"RAW_PATH"`
	ProcessedPath string `yaml:"processed_path" envconfig:"PROCESSED_PATH"`
	RunDBPath     string `yaml:"run_db_path" envconfig:"RUN_DB_PATH"`
}

// TrainingConfig holds the pipeline hyperparameters and output locations
type TrainingConfig struct {
	TargetColumn    string  `yaml:"target_column" envconfig:"TARGET_COLUMN"`
	TestFraction    float64 `yaml:"test_fraction" envconfig:"TEST_FRACTION"`
	Seed            int64   `yaml:"seed" envconfig:"SEED"`
	MinAccuracy     float64 `yaml:"min_accuracy" envconfig:"MIN_ACCURACY"`
	NumTrees        int     `yaml:"num_trees" envconfig:"NUM_TREES"`
	MaxDepth        int     `yaml:"max_depth" envconfig:"MAX_DEPTH"` // 0 grows trees until pure
	MinSamplesSplit int     `yaml:"min_samples_split" envconfig:"MIN_SAMPLES_SPLIT"`
	Neighbors       int     `yaml:"smote_neighbors" envconfig:"SMOTE_NEIGHBORS"`
	Workers         int     `yaml:"workers" envconfig:"WORKERS"` // 0 uses GOMAXPROCS
	ClipScaled      bool    `yaml:"clip_scaled" envconfig:"CLIP_SCALED"`
	ModelPath       string  `yaml:"model_path" envconfig:"MODEL_PATH"`
	ReportsDir      string  `yaml:"reports_dir" envconfig:"REPORTS_DIR"`
}

// ServerConfig configures the inference HTTP server and the refresh job
type ServerConfig struct {
	Addr             string `yaml:"addr" envconfig:"ADDR"`
	RefreshCron      string `yaml:"refresh_cron" envconfig:"REFRESH_CRON"`
	RetrainOnRefresh bool   `yaml:"retrain_on_refresh" envconfig:"RETRAIN_ON_REFRESH"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		Data: DataConfig{
			RawPath:       "data/raw/Obesity.csv",
			ProcessedPath: "data/processed/obesity_processed.csv",
			RunDBPath:     "data/runs.db",
		},
		Training: TrainingConfig{
			TargetColumn:    models.DefaultRawTarget,
			TestFraction:    0.2,
			Seed:            42,
			MinAccuracy:     0.75,
			NumTrees:        500,
			MinSamplesSplit: 2,
			Neighbors:       5,
			ModelPath:       "models/obesity_model.json",
			ReportsDir:      "reports",
		},
		Server: ServerConfig{
			Addr:        ":8080",
			RefreshCron: "@every 1h",
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// and OBESITY_* environment variables, in that order. An empty path falls
// back to OBESITY_CONFIG; a missing file is only an error when a path was
// given explicitly.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(ConfigPathEnv)
		explicit = path != ""
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	t := c.Training
	if t.TargetColumn == "" {
		return fmt.Errorf("training.target_column is required")
	}
	if t.TestFraction <= 0 || t.TestFraction >= 1 {
		return fmt.Errorf("training.test_fraction must be in (0, 1), got %v", t.TestFraction)
	}
	if t.MinAccuracy < 0 || t.MinAccuracy > 1 {
		return fmt.Errorf("training.min_accuracy must be in [0, 1], got %v", t.MinAccuracy)
	}
	if t.NumTrees <= 0 {
		return fmt.Errorf("training.num_trees must be positive, got %d", t.NumTrees)
	}
	if t.MaxDepth < 0 {
		return fmt.Errorf("training.max_depth must be non-negative, got %d", t.MaxDepth)
	}
	if t.MinSamplesSplit < 2 {
		return fmt.Errorf("training.min_samples_split must be at least 2, got %d", t.MinSamplesSplit)
	}
	if t.Neighbors <= 0 {
		return fmt.Errorf("training.smote_neighbors must be positive, got %d", t.Neighbors)
	}
	if t.Workers < 0 {
		return fmt.Errorf("training.workers must be non-negative, got %d", t.Workers)
	}
	if t.ModelPath == "" {
		return fmt.Errorf("training.model_path is required")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}
