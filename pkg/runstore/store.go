// Package runstore records training runs in a SQLite registry.
package runstore

import (
	"context"
	"errors"

	"github.com/mimir-aip/obesity-tc/pkg/models"
)

// ErrRunNotFound is returned when a run ID is unknown
var ErrRunNotFound = errors.New("training run not found")

// RunStore is the interface for training run persistence
type RunStore interface {
	SaveRun(ctx context.Context, run *models.TrainingRun) error
	GetRun(ctx context.Context, id string) (*models.TrainingRun, error)
	ListRuns(ctx context.Context, limit int) ([]*models.TrainingRun, error)
	LatestSuccessful(ctx context.Context) (*models.TrainingRun, error)
	CountByStatus(ctx context.Context) (map[models.RunStatus]int, error)
	Close() error
}
