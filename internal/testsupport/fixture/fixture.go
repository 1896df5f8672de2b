// Package fixture trains small models for tests that need a real bundle.
package fixture

import (
	"context"
	"os"
	"path/filepath"

	"github.com/mimir-aip/obesity-tc/internal/testsupport"
	"github.com/mimir-aip/obesity-tc/pkg/forest"
	"github.com/mimir-aip/obesity-tc/pkg/logger"
	"github.com/mimir-aip/obesity-tc/pkg/models"
	"github.com/mimir-aip/obesity-tc/pkg/training"
)

// TrainModel writes a reference-sized synthetic dataset into dir, trains a
// small forest on it and returns the bundle path
func TrainModel(dir string, seed int64) (string, error) {
	records, labels := testsupport.Generate(testsupport.Options{Seed: seed})
	source := filepath.Join(dir, "obesity.csv")
	if err := os.WriteFile(source, []byte(testsupport.CSV(records, labels, models.DefaultRawTarget)), 0644); err != nil {
		return "", err
	}
	opts := training.Options{
		SourcePath:   source,
		TargetColumn: models.DefaultRawTarget,
		ModelPath:    filepath.Join(dir, "models", "model.json"),
		ReportsDir:   filepath.Join(dir, "reports"),
		TestFraction: 0.2,
		Seed:         42,
		MinAccuracy:  0.75,
		Neighbors:    5,
		Forest:       forest.Options{NumTrees: 15},
	}
	result, err := training.NewOrchestrator(opts, logger.Nop()).Run(context.Background())
	if err != nil {
		return "", err
	}
	return result.ModelPath, nil
}
