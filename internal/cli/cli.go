// Package cli holds the bootstrapping shared by the command binaries.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"

	"github.com/mimir-aip/obesity-tc/pkg/config"
	"github.com/mimir-aip/obesity-tc/pkg/logger"
)

// Process exit codes
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitGateFailed = 2
)

// Bootstrap loads an optional .env file, the layered configuration and
// initializes the global logger
func Bootstrap(configPath string) (*config.Config, *logger.Logger, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.Get(), nil
}

// Visited returns the names of the flags explicitly set on the command line
func Visited(flags *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	flags.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}
