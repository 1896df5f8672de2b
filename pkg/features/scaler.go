// Package features implements the encoding pipeline: min-max scaling of
// numeric columns and one-hot expansion of categorical columns.
package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MinMaxScaler rescales each column to [0, 1] using the range seen at fit
// time. Missing values (NaN) are replaced with the fit-time column mean
// before scaling.
type MinMaxScaler struct {
	Min  []float64 `json:"min"`
	Max  []float64 `json:"max"`
	Mean []float64 `json:"mean"`
	// Clip bounds transformed values to [0, 1]; otherwise out-of-range
	// inputs extrapolate linearly.
	Clip bool `json:"clip"`
}

// Fit captures per-column min, max and mean, ignoring NaN.
func (s *MinMaxScaler) Fit(columns [][]float64) {
	s.Min = make([]float64, len(columns))
	s.Max = make([]float64, len(columns))
	s.Mean = make([]float64, len(columns))
	for j, col := range columns {
		present := make([]float64, 0, len(col))
		for _, v := range col {
			if !math.IsNaN(v) {
				present = append(present, v)
			}
		}
		if len(present) == 0 {
			s.Min[j], s.Max[j], s.Mean[j] = 0, 1, 0
			continue
		}
		s.Min[j] = floats.Min(present)
		s.Max[j] = floats.Max(present)
		s.Mean[j] = stat.Mean(present, nil)
	}
}

// Width returns the number of fitted columns
func (s *MinMaxScaler) Width() int { return len(s.Min) }

// Scale transforms value v of column j.
func (s *MinMaxScaler) Scale(j int, v float64) float64 {
	if math.IsNaN(v) {
		v = s.Mean[j]
	}
	span := s.Max[j] - s.Min[j]
	if span == 0 {
		span = 1
	}
	out := (v - s.Min[j]) / span
	if s.Clip {
		out = math.Max(0, math.Min(1, out))
	}
	return out
}

func (s *MinMaxScaler) validate() error {
	if len(s.Max) != len(s.Min) || len(s.Mean) != len(s.Min) {
		return fmt.Errorf("scaler parameters have inconsistent lengths")
	}
	for j := range s.Min {
		if math.IsNaN(s.Min[j]) || math.IsNaN(s.Max[j]) || math.IsNaN(s.Mean[j]) {
			return fmt.Errorf("scaler column %d has NaN parameters", j)
		}
		if s.Max[j] < s.Min[j] {
			return fmt.Errorf("scaler column %d has max < min", j)
		}
	}
	return nil
}
