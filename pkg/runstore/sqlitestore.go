package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mimir-aip/obesity-tc/pkg/models"
)

// SQLiteStore provides SQLite-based persistence for training runs
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the registry at dbPath.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writes are serialized by SQLite; an in-memory database must stay on
	// one connection or each connection sees its own empty database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// retryOnBusy retries an operation that failed with SQLITE_BUSY, on top of
// the busy_timeout pragma
func (s *SQLiteStore) retryOnBusy(ctx context.Context, operation func() error, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil || !strings.Contains(err.Error(), "SQLITE_BUSY") {
			return err
		}
		backoff := time.Duration(10*(1<<uint(i))) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, err)
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS training_runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		state TEXT NOT NULL,
		accuracy REAL NOT NULL,
		gate_passed INTEGER NOT NULL,
		model_path TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		data TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_training_runs_status ON training_runs(status);
	CREATE INDEX IF NOT EXISTS idx_training_runs_started_at ON training_runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun inserts or replaces a run
func (s *SQLiteStore) SaveRun(ctx context.Context, run *models.TrainingRun) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	var finished sql.NullInt64
	if run.FinishedAt != nil {
		finished = sql.NullInt64{Int64: run.FinishedAt.UnixNano(), Valid: true}
	}

	query := `
		INSERT OR REPLACE INTO training_runs (id, status, state, accuracy, gate_passed, model_path, started_at, finished_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err = s.retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query,
			run.ID,
			string(run.Status),
			string(run.State),
			run.Accuracy,
			run.GatePassed,
			run.ModelPath,
			run.StartedAt.UnixNano(),
			finished,
			string(data),
		)
		return err
	}, 5)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.TrainingRun, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM training_runs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return decodeRun(data)
}

// ListRuns returns the most recent runs first; limit <= 0 returns all
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*models.TrainingRun, error) {
	query := `SELECT data FROM training_runs ORDER BY started_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*models.TrainingRun, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run, err := decodeRun(data)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestSuccessful returns the newest run that passed the accuracy gate
func (s *SQLiteStore) LatestSuccessful(ctx context.Context) (*models.TrainingRun, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM training_runs WHERE status = ? ORDER BY started_at DESC LIMIT 1`,
		string(models.RunStatusSucceeded),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no successful run", ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return decodeRun(data)
}

// CountByStatus tallies runs per status
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[models.RunStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM training_runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.RunStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan run count: %w", err)
		}
		counts[models.RunStatus(status)] = n
	}
	return counts, rows.Err()
}

func decodeRun(data string) (*models.TrainingRun, error) {
	var run models.TrainingRun
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}
