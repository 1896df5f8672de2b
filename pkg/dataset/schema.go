package dataset

import (
	"fmt"
	"math"

	"github.com/mimir-aip/obesity-tc/pkg/models"
)

// InferSchema derives the column layout of a preprocessed training table.
// A column is numeric when it already is, or when every non-empty cell
// parses as a number; everything else except the target is categorical.
// Only training calls this; inference coerces by the persisted schema.
func InferSchema(f *Frame, target string) (*models.Schema, error) {
	if !f.Has(target) {
		return nil, fmt.Errorf("%w: target column %q not found", models.ErrSchemaMismatch, target)
	}
	schema := &models.Schema{Target: target}
	for _, c := range f.cols {
		if c.Name == target {
			continue
		}
		if c.Numeric || allNumeric(c.Strings) {
			schema.Numeric = append(schema.Numeric, c.Name)
		} else {
			schema.Categorical = append(schema.Categorical, c.Name)
		}
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return schema, nil
}

func allNumeric(values []string) bool {
	seen := false
	for _, s := range values {
		v, err := parseCell(s)
		if err != nil {
			return false
		}
		if !math.IsNaN(v) {
			seen = true
		}
	}
	return seen
}

// Coerce checks f against schema and converts columns to the schema's
// kinds in place. The feature set must match exactly; a numeric column
// with a non-numeric cell is ErrSchemaMismatch.
func Coerce(f *Frame, schema *models.Schema) error {
	if err := schema.CheckColumns(f.Columns()); err != nil {
		return err
	}
	for _, name := range schema.Numeric {
		if err := f.toNumeric(name, false); err != nil {
			return err
		}
	}
	for _, name := range schema.Categorical {
		c, _ := f.Column(name)
		if !c.Numeric {
			continue
		}
		values := make([]string, len(c.Floats))
		for i := range values {
			values[i] = c.Cell(i)
		}
		if err := f.SetText(name, values); err != nil {
			return err
		}
	}
	return nil
}
