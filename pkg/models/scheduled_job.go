package models

import (
	"fmt"
	"time"
)

// RefreshOutcome is the result of one dataset refresh execution
type RefreshOutcome string

const (
	RefreshRebuilt RefreshOutcome = "rebuilt" // processed table was stale and got rebuilt
	RefreshFresh   RefreshOutcome = "fresh"   // nothing to do
	RefreshError   RefreshOutcome = "error"
)

// RefreshJob keeps a processed dataset in step with its raw source on a
// cron schedule, optionally retraining when the dataset changed
type RefreshJob struct {
	ID          string         `json:"id" yaml:"-"`
	Name        string         `json:"name" yaml:"name"`
	Schedule    string         `json:"schedule" yaml:"schedule"` // Cron expression
	SourcePath  string         `json:"source_path" yaml:"source_path"`
	OutputPath  string         `json:"output_path" yaml:"output_path"`
	RawTarget   string         `json:"raw_target" yaml:"raw_target"`
	Retrain     bool           `json:"retrain" yaml:"retrain"`
	Enabled     bool           `json:"enabled" yaml:"enabled"`
	CreatedAt   time.Time      `json:"created_at" yaml:"-"`
	LastRun     *time.Time     `json:"last_run,omitempty" yaml:"-"`
	NextRun     *time.Time     `json:"next_run,omitempty" yaml:"-"`
	LastOutcome RefreshOutcome `json:"last_outcome,omitempty" yaml:"-"`
	LastError   string         `json:"last_error,omitempty" yaml:"-"`
}

// RefreshJobCreateRequest represents a request to create a refresh job
type RefreshJobCreateRequest struct {
	Name       string `json:"name" yaml:"name"`
	Schedule   string `json:"schedule" yaml:"schedule"`
	SourcePath string `json:"source_path" yaml:"source_path"`
	OutputPath string `json:"output_path" yaml:"output_path"`
	RawTarget  string `json:"raw_target" yaml:"raw_target"`
	Retrain    bool   `json:"retrain" yaml:"retrain"`
	Enabled    bool   `json:"enabled" yaml:"enabled"`
}

// Validate checks the request fields that do not need a cron parser
func (r *RefreshJobCreateRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if r.Schedule == "" {
		return fmt.Errorf("job schedule is required")
	}
	if r.SourcePath == "" || r.OutputPath == "" {
		return fmt.Errorf("source and output paths are required")
	}
	if r.SourcePath == r.OutputPath {
		return fmt.Errorf("output path must differ from source path")
	}
	return nil
}

// RefreshExecution records a single run of a refresh job
type RefreshExecution struct {
	ID          string         `json:"id"`
	JobID       string         `json:"job_id"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Outcome     RefreshOutcome `json:"outcome"`
	Retrained   bool           `json:"retrained"`
	Error       string         `json:"error,omitempty"`
}
