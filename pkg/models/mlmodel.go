package models

import (
	"fmt"
	"time"
)

// RunState is a stage of the training state machine
type RunState string

const (
	StateLoaded       RunState = "loaded"
	StatePreprocessed RunState = "preprocessed"
	StateSplit        RunState = "split"
	StateFitted       RunState = "fitted"
	StateEvaluated    RunState = "evaluated"
	StatePersisted    RunState = "persisted"
	StateFailed       RunState = "failed"
)

// RunStatus is the final outcome of a training run
type RunStatus string

const (
	RunStatusRunning    RunStatus = "running"
	RunStatusSucceeded  RunStatus = "succeeded"
	RunStatusGateFailed RunStatus = "gate_failed" // artifacts written, accuracy below minimum
	RunStatusFailed     RunStatus = "failed"
)

// TrainingRun records one invocation of the training pipeline
type TrainingRun struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	State       RunState   `json:"state"`
	SourcePath  string     `json:"source_path"`
	ModelPath   string     `json:"model_path"`
	MetricsPath string     `json:"metrics_path,omitempty"`
	ReportPath  string     `json:"report_path,omitempty"`
	Seed        int64      `json:"seed"`
	TestSize    int        `json:"n_test"`
	TrainSize   int        `json:"n_train"`
	Accuracy    float64    `json:"accuracy"`
	MinAccuracy float64    `json:"min_accuracy"`
	GatePassed  bool       `json:"gate_passed"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Prediction is the output of the inference service for one record
type Prediction struct {
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	BMI           *float64           `json:"bmi,omitempty"` // nil when height is zero
}

// PredictionRequest wraps a questionnaire submitted for inference
type PredictionRequest struct {
	Record *Questionnaire `json:"record"`
}

// Validate checks if the PredictionRequest is valid
func (r *PredictionRequest) Validate() error {
	if r.Record == nil {
		return fmt.Errorf("%w: record is required", ErrSchemaMismatch)
	}
	return r.Record.Validate()
}
