package features

import (
	"errors"
	"fmt"

	"github.com/mimir-aip/obesity-tc/pkg/dataset"
	"github.com/mimir-aip/obesity-tc/pkg/models"
)

// ErrNotFitted is returned when transforming with an unfitted pipeline
var ErrNotFitted = errors.New("transformer is not fitted")

// ColumnTransformer scales the numeric columns and one-hot encodes the
// categorical columns of a frame, in that order. Columns in neither list
// are dropped. It is fit once; Transform is a pure function of the fitted
// parameters.
type ColumnTransformer struct {
	Numeric     []string      `json:"numeric_columns"`
	Categorical []string      `json:"categorical_columns"`
	Scaler      MinMaxScaler  `json:"scaler"`
	Encoder     OneHotEncoder `json:"encoder"`
	Fitted      bool          `json:"fitted"`
}

// NewColumnTransformer creates an unfitted transformer for schema
func NewColumnTransformer(schema *models.Schema, clip bool) *ColumnTransformer {
	return &ColumnTransformer{
		Numeric:     append([]string(nil), schema.Numeric...),
		Categorical: append([]string(nil), schema.Categorical...),
		Scaler:      MinMaxScaler{Clip: clip},
	}
}

// Fit learns scaling ranges and category sets from f. Fitting an already
// fitted transformer is an error.
func (t *ColumnTransformer) Fit(f *dataset.Frame) error {
	if t.Fitted {
		return fmt.Errorf("transformer is already fitted")
	}
	if f.Len() == 0 {
		return fmt.Errorf("cannot fit on an empty frame")
	}
	num, err := t.numericColumns(f)
	if err != nil {
		return err
	}
	cat, err := t.categoricalColumns(f)
	if err != nil {
		return err
	}
	t.Scaler.Fit(num)
	t.Encoder.Fit(cat)
	t.Fitted = true
	return nil
}

// Transform encodes every row of f into a dense feature vector
func (t *ColumnTransformer) Transform(f *dataset.Frame) ([][]float64, error) {
	if !t.Fitted || len(t.Encoder.lookup) != len(t.Encoder.Categories) {
		return nil, ErrNotFitted
	}
	num, err := t.numericColumns(f)
	if err != nil {
		return nil, err
	}
	cat, err := t.categoricalColumns(f)
	if err != nil {
		return nil, err
	}

	width := t.Width()
	out := make([][]float64, f.Len())
	for i := range out {
		row := make([]float64, width)
		for j, col := range num {
			row[j] = t.Scaler.Scale(j, col[i])
		}
		offset := len(num)
		for j, col := range cat {
			n := len(t.Encoder.Categories[j])
			t.Encoder.Encode(j, col[i], row[offset:offset+n])
			offset += n
		}
		out[i] = row
	}
	return out, nil
}

// FitTransform fits on f and returns its encoding
func (t *ColumnTransformer) FitTransform(f *dataset.Frame) ([][]float64, error) {
	if err := t.Fit(f); err != nil {
		return nil, err
	}
	return t.Transform(f)
}

// Width returns the encoded feature count
func (t *ColumnTransformer) Width() int {
	return len(t.Numeric) + t.Encoder.Width()
}

// FeatureNames names each encoded feature: numeric columns as-is,
// indicators as column_category.
func (t *ColumnTransformer) FeatureNames() []string {
	names := make([]string, 0, t.Width())
	names = append(names, t.Numeric...)
	for j, col := range t.Categorical {
		if j >= len(t.Encoder.Categories) {
			break
		}
		for _, c := range t.Encoder.Categories[j] {
			names = append(names, col+"_"+c)
		}
	}
	return names
}

// Validate checks a deserialized transformer and prepares it for use
func (t *ColumnTransformer) Validate() error {
	if !t.Fitted {
		return ErrNotFitted
	}
	if t.Scaler.Width() != len(t.Numeric) {
		return fmt.Errorf("scaler has %d columns, expected %d", t.Scaler.Width(), len(t.Numeric))
	}
	if err := t.Scaler.validate(); err != nil {
		return err
	}
	if len(t.Encoder.Categories) != len(t.Categorical) {
		return fmt.Errorf("encoder has %d columns, expected %d", len(t.Encoder.Categories), len(t.Categorical))
	}
	return t.Encoder.validate()
}

func (t *ColumnTransformer) numericColumns(f *dataset.Frame) ([][]float64, error) {
	out := make([][]float64, len(t.Numeric))
	for j, name := range t.Numeric {
		c, ok := f.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: numeric column %q missing", models.ErrSchemaMismatch, name)
		}
		if !c.Numeric {
			return nil, fmt.Errorf("%w: column %q is not numeric", models.ErrSchemaMismatch, name)
		}
		out[j] = c.Floats
	}
	return out, nil
}

func (t *ColumnTransformer) categoricalColumns(f *dataset.Frame) ([][]string, error) {
	out := make([][]string, len(t.Categorical))
	for j, name := range t.Categorical {
		c, ok := f.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: categorical column %q missing", models.ErrSchemaMismatch, name)
		}
		if c.Numeric {
			return nil, fmt.Errorf("%w: column %q is not categorical", models.ErrSchemaMismatch, name)
		}
		out[j] = c.Strings
	}
	return out, nil
}
