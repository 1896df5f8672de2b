// Package scheduler runs dataset refresh jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/mimir-aip/obesity-tc/pkg/dataset"
	"github.com/mimir-aip/obesity-tc/pkg/logger"
	"github.com/mimir-aip/obesity-tc/pkg/metrics"
	"github.com/mimir-aip/obesity-tc/pkg/models"
)

// RetrainFunc retrains the model after a refresh rebuilt the dataset
type RetrainFunc func(ctx context.Context) error

// Service provides refresh job scheduling
type Service struct {
	log     *logger.Logger
	metrics *metrics.Metrics
	retrain RetrainFunc
	cron    *cron.Cron

	mu      sync.Mutex
	jobs    map[string]*models.RefreshJob
	entries map[string]cron.EntryID // Maps job ID to cron entry ID
	running map[string]bool
}

// NewService creates a new scheduler service. m may be nil.
func NewService(log *logger.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = logger.Get()
	}
	return &Service{
		log:     log,
		metrics: m,
		cron:    cron.New(),
		jobs:    make(map[string]*models.RefreshJob),
		entries: make(map[string]cron.EntryID),
		running: make(map[string]bool),
	}
}

// SetRetrainer installs the hook run for jobs with Retrain set
func (s *Service) SetRetrainer(fn RetrainFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retrain = fn
}

// Start starts the scheduler
func (s *Service) Start() {
	s.cron.Start()
	s.log.Infow("Refresh scheduler started", "jobs", len(s.List()))
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Refresh scheduler stopped")
}

// Create validates and registers a refresh job, scheduling it when enabled
func (s *Service) Create(req *models.RefreshJobCreateRequest) (*models.RefreshJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	schedule, err := cron.ParseStandard(req.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	job := &models.RefreshJob{
		ID:         uuid.New().String(),
		Name:       req.Name,
		Schedule:   req.Schedule,
		SourcePath: req.SourcePath,
		OutputPath: req.OutputPath,
		RawTarget:  req.RawTarget,
		Retrain:    req.Retrain,
		Enabled:    req.Enabled,
		CreatedAt:  time.Now().UTC(),
	}
	if job.RawTarget == "" {
		job.RawTarget = models.DefaultRawTarget
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	if job.Enabled {
		next := schedule.Next(time.Now())
		job.NextRun = &next
		id := job.ID
		s.entries[id] = s.cron.Schedule(schedule, cron.FuncJob(func() {
			if _, err := s.RunNow(context.Background(), id); err != nil {
				s.log.Errorw("Scheduled refresh failed", "job_id", id, "error", err)
			}
		}))
		s.log.Infow("Scheduled refresh job", "job_id", job.ID, "name", job.Name, "schedule", job.Schedule)
	}
	return copyJob(job), nil
}

// Get retrieves a job by ID
func (s *Service) Get(id string) (*models.RefreshJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("refresh job not found: %s", id)
	}
	return copyJob(job), nil
}

// List lists all jobs ordered by creation time
func (s *Service) List() []*models.RefreshJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.RefreshJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, copyJob(job))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Delete unschedules and forgets a job
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return fmt.Errorf("refresh job not found: %s", id)
	}
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	delete(s.jobs, id)
	return nil
}

// RunNow executes a job immediately. Overlapping executions of the same job
// are skipped.
func (s *Service) RunNow(ctx context.Context, id string) (*models.RefreshExecution, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("refresh job not found: %s", id)
	}
	if s.running[id] {
		s.mu.Unlock()
		s.log.Warnw("Refresh job still running, skipping", "job_id", id)
		return nil, fmt.Errorf("refresh job %s is already running", id)
	}
	s.running[id] = true
	snapshot := copyJob(job)
	retrain := s.retrain
	s.mu.Unlock()

	exec := s.executeJob(ctx, snapshot, retrain)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
	if job, ok := s.jobs[id]; ok {
		job.LastRun = exec.CompletedAt
		job.LastOutcome = exec.Outcome
		job.LastError = exec.Error
		if entryID, ok := s.entries[id]; ok {
			next := s.cron.Entry(entryID).Next
			if !next.IsZero() {
				job.NextRun = &next
			}
		}
	}
	if exec.Error != "" {
		return exec, fmt.Errorf("refresh job %s: %s", id, exec.Error)
	}
	return exec, nil
}

// executeJob rebuilds the processed dataset if stale and retrains when asked
func (s *Service) executeJob(ctx context.Context, job *models.RefreshJob, retrain RetrainFunc) *models.RefreshExecution {
	exec := &models.RefreshExecution{
		ID:        uuid.New().String(),
		JobID:     job.ID,
		StartedAt: time.Now().UTC(),
	}
	log := s.log.With("job_id", job.ID, "execution_id", exec.ID)
	log.Infow("Executing refresh job", "name", job.Name, "source", job.SourcePath)

	rebuilt, err := dataset.EnsureFresh(job.SourcePath, job.OutputPath, job.RawTarget)
	switch {
	case err != nil:
		exec.Outcome = models.RefreshError
		exec.Error = err.Error()
		log.Errorw("Dataset refresh failed", "error", err)
	case rebuilt:
		exec.Outcome = models.RefreshRebuilt
		log.Infow("Processed dataset rebuilt", "output", job.OutputPath)
	default:
		exec.Outcome = models.RefreshFresh
		log.Debugw("Processed dataset is fresh", "output", job.OutputPath)
	}
	s.metrics.DatasetRefreshed(string(exec.Outcome))

	if rebuilt && job.Retrain && retrain != nil {
		exec.Retrained = true
		if err := retrain(ctx); err != nil {
			exec.Error = fmt.Sprintf("retrain failed: %v", err)
			log.Errorw("Retrain after refresh failed", "error", err)
		} else {
			log.Info("Retrained model after refresh")
		}
	}

	done := time.Now().UTC()
	exec.CompletedAt = &done
	return exec
}

func copyJob(job *models.RefreshJob) *models.RefreshJob {
	c := *job
	return &c
}
