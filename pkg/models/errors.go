package models

import "errors"

// Pipeline error taxonomy. Call sites wrap these with the offending path,
// column or class; callers branch with errors.Is.
var (
	// ErrMissingInput indicates a source table or model artifact is absent
	ErrMissingInput = errors.New("missing input")

	// ErrSchemaMismatch indicates record columns disagree with the fit-time schema
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrInsufficientClassData indicates a class is too small to split or oversample
	ErrInsufficientClassData = errors.New("insufficient class data")

	// ErrBelowAccuracyThreshold indicates the release gate failed; artifacts were still written
	ErrBelowAccuracyThreshold = errors.New("accuracy below threshold")

	// ErrSerializationFailure indicates a partial or corrupt artifact write or read
	ErrSerializationFailure = errors.New("serialization failure")
)
