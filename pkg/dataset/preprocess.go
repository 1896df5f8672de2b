package dataset

import (
	"fmt"
	"math"
	"strings"

	"github.com/mimir-aip/obesity-tc/pkg/models"
)

// BMI returns weight / height². A zero or missing height yields NaN.
func BMI(height, weight float64) float64 {
	if height == 0 || math.IsNaN(height) || math.IsNaN(weight) {
		return math.NaN()
	}
	return weight / (height * height)
}

// Preprocessor normalizes raw questionnaire tables into the canonical
// layout used by both training and inference.
type Preprocessor struct {
	// RawTarget is the label column name in the source table
	RawTarget string
}

// NewPreprocessor returns a preprocessor renaming rawTarget to the
// canonical target column
func NewPreprocessor(rawTarget string) *Preprocessor {
	if rawTarget == "" {
		rawTarget = models.DefaultRawTarget
	}
	return &Preprocessor{RawTarget: rawTarget}
}

// Apply returns a preprocessed copy of f:
//   - text cells are trimmed
//   - counters are rounded half-to-even; cells that fail coercion become missing
//   - BMI is (re)computed from Height and Weight
//   - the raw target column, when present, is renamed to the canonical name
//
// A table without the target column is treated as feature-only.
func (p *Preprocessor) Apply(f *Frame) (*Frame, error) {
	out := f.Clone()

	for _, c := range out.cols {
		if c.Numeric {
			continue
		}
		for i, s := range c.Strings {
			c.Strings[i] = strings.TrimSpace(s)
		}
	}

	for _, name := range models.CounterColumns {
		if !out.Has(name) {
			continue
		}
		if err := out.toNumeric(name, true); err != nil {
			return nil, err
		}
		c, _ := out.Column(name)
		for i, v := range c.Floats {
			c.Floats[i] = math.RoundToEven(v)
		}
	}

	if err := DeriveBMI(out); err != nil {
		return nil, err
	}

	if p.RawTarget != models.TargetColumn && out.Has(p.RawTarget) {
		if out.Has(models.TargetColumn) {
			return nil, fmt.Errorf("%w: both %q and %q present", models.ErrSchemaMismatch, p.RawTarget, models.TargetColumn)
		}
		if err := out.Rename(p.RawTarget, models.TargetColumn); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DeriveBMI sets the BMI column from Height and Weight, replacing any BMI
// already in the table. Height and Weight are coerced to numeric.
func DeriveBMI(f *Frame) error {
	for _, name := range []string{models.ColHeight, models.ColWeight} {
		if !f.Has(name) {
			return fmt.Errorf("%w: column %q is required to derive BMI", models.ErrSchemaMismatch, name)
		}
		if err := f.toNumeric(name, false); err != nil {
			return err
		}
	}
	height, _ := f.Column(models.ColHeight)
	weight, _ := f.Column(models.ColWeight)

	bmi := make([]float64, f.rows)
	for i := range bmi {
		bmi[i] = BMI(height.Floats[i], weight.Floats[i])
	}
	return f.SetNumeric(models.ColBMI, bmi)
}

// FromQuestionnaires builds a raw frame from typed records, with columns in
// source order.
func FromQuestionnaires(records []models.Questionnaire) *Frame {
	numeric := make([]map[string]float64, len(records))
	text := make([]map[string]string, len(records))
	for i := range records {
		numeric[i] = records[i].Numeric()
		text[i] = records[i].Text()
	}

	var zero models.Questionnaire
	numericCols := zero.Numeric()

	f := NewFrame(len(records))
	for _, name := range models.InputColumns {
		if _, ok := numericCols[name]; ok {
			values := make([]float64, len(records))
			for i := range records {
				values[i] = numeric[i][name]
			}
			f.SetNumeric(name, values)
			continue
		}
		values := make([]string, len(records))
		for i := range records {
			values[i] = text[i][name]
		}
		f.SetText(name, values)
	}
	return f
}
