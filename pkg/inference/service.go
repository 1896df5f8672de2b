// Package inference predicts obesity levels with a persisted model bundle.
package inference

import (
	"fmt"
	"math"

	"github.com/mimir-aip/obesity-tc/pkg/bundle"
	"github.com/mimir-aip/obesity-tc/pkg/dataset"
	"github.com/mimir-aip/obesity-tc/pkg/models"
)

// Service serves predictions from one loaded bundle. The bundle is never
// mutated after construction, so a Service is safe for concurrent use.
type Service struct {
	bundle       *bundle.Bundle
	preprocessor *dataset.Preprocessor
}

// NewService wraps a bundle. rawTarget names a label column that batch
// inputs may carry; it is dropped before prediction.
func NewService(b *bundle.Bundle, rawTarget string) (*Service, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil bundle", models.ErrSerializationFailure)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSerializationFailure, err)
	}
	return &Service{
		bundle:       b,
		preprocessor: dataset.NewPreprocessor(rawTarget),
	}, nil
}

// Load reads the bundle at path and wraps it in a Service
func Load(path, rawTarget string) (*Service, error) {
	b, err := bundle.Load(path)
	if err != nil {
		return nil, err
	}
	return NewService(b, rawTarget)
}

// Bundle returns the loaded bundle. Callers must not modify it.
func (s *Service) Bundle() *bundle.Bundle {
	return s.bundle
}

// Predict classifies one questionnaire
func (s *Service) Predict(q models.Questionnaire) (*models.Prediction, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	preds, err := s.PredictFrame(dataset.FromQuestionnaires([]models.Questionnaire{q}))
	if err != nil {
		return nil, err
	}
	return &preds[0], nil
}

// PredictFrame classifies every row of a raw table. The table's feature
// columns, after preprocessing, must match the bundle's schema exactly.
func (s *Service) PredictFrame(raw *dataset.Frame) ([]models.Prediction, error) {
	frame, err := s.preprocessor.Apply(raw)
	if err != nil {
		return nil, err
	}
	frame.Drop(models.TargetColumn)

	if err := dataset.Coerce(frame, &s.bundle.Schema); err != nil {
		return nil, err
	}
	X, err := s.bundle.Transformer.Transform(frame)
	if err != nil {
		return nil, err
	}
	bmi, _ := frame.Column(models.ColBMI)

	classes := s.bundle.Forest.Classes
	preds := make([]models.Prediction, len(X))
	for i, x := range X {
		proba, err := s.bundle.Forest.PredictProba(x)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		p := models.Prediction{Probabilities: make(map[string]float64, len(classes))}
		best := 0
		for c, v := range proba {
			p.Probabilities[classes[c]] = v
			if v > proba[best] {
				best = c
			}
		}
		p.Label = classes[best]
		p.Confidence = proba[best]
		if bmi != nil && !math.IsNaN(bmi.Floats[i]) {
			v := bmi.Floats[i]
			p.BMI = &v
		}
		preds[i] = p
	}
	return preds, nil
}
