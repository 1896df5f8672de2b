package models

import (
	"fmt"
	"sort"
	"strings"
)

// Canonical column names of the questionnaire table.
const (
	ColGender        = "Gender"
	ColAge           = "Age"
	ColHeight        = "Height"
	ColWeight        = "Weight"
	ColFamilyHistory = "family_history"
	ColFAVC          = "FAVC"
	ColFCVC          = "FCVC"
	ColNCP           = "NCP"
	ColCAEC          = "CAEC"
	ColSMOKE         = "SMOKE"
	ColCH2O          = "CH2O"
	ColSCC           = "SCC"
	ColFAF           = "FAF"
	ColTUE           = "TUE"
	ColCALC          = "CALC"
	ColMTRANS        = "MTRANS"
	ColBMI           = "BMI"

	// DefaultRawTarget is the label column name in the source dataset
	DefaultRawTarget = "Obesity"
	// TargetColumn is the internal name the label column is renamed to
	TargetColumn = "Obesity_level"
)

// InputColumns lists the 16 questionnaire fields in source order.
var InputColumns = []string{
	ColGender, ColAge, ColHeight, ColWeight, ColFamilyHistory, ColFAVC,
	ColFCVC, ColNCP, ColCAEC, ColSMOKE, ColCH2O, ColSCC, ColFAF, ColTUE,
	ColCALC, ColMTRANS,
}

// CounterColumns are the ordinal-but-noisy fields rounded during preprocessing.
var CounterColumns = []string{ColFCVC, ColNCP, ColCH2O, ColFAF, ColTUE}

// ColumnKind classifies a feature column for encoding
type ColumnKind string

const (
	KindNumeric     ColumnKind = "numeric"
	KindCategorical ColumnKind = "categorical"
)

// Schema is the column layout captured at fit time and persisted with the model.
type Schema struct {
	Numeric     []string `json:"numeric_columns"`
	Categorical []string `json:"categorical_columns"`
	Target      string   `json:"target_column"`
}

// Validate checks that the schema is usable for encoding
func (s *Schema) Validate() error {
	if s.Target == "" {
		return fmt.Errorf("%w: target column is required", ErrSchemaMismatch)
	}
	if len(s.Numeric)+len(s.Categorical) == 0 {
		return fmt.Errorf("%w: schema has no feature columns", ErrSchemaMismatch)
	}
	seen := make(map[string]bool, len(s.Numeric)+len(s.Categorical))
	for _, name := range s.Features() {
		if name == "" {
			return fmt.Errorf("%w: empty column name", ErrSchemaMismatch)
		}
		if name == s.Target {
			return fmt.Errorf("%w: target column %q listed as a feature", ErrSchemaMismatch, name)
		}
		if seen[name] {
			return fmt.Errorf("%w: column %q listed twice", ErrSchemaMismatch, name)
		}
		seen[name] = true
	}
	return nil
}

// Features returns numeric columns followed by categorical columns.
func (s *Schema) Features() []string {
	out := make([]string, 0, len(s.Numeric)+len(s.Categorical))
	out = append(out, s.Numeric...)
	return append(out, s.Categorical...)
}

// KindOf reports the kind of a feature column.
func (s *Schema) KindOf(name string) (ColumnKind, bool) {
	for _, n := range s.Numeric {
		if n == name {
			return KindNumeric, true
		}
	}
	for _, c := range s.Categorical {
		if c == name {
			return KindCategorical, true
		}
	}
	return "", false
}

// CheckColumns verifies that the given feature columns are exactly the
// schema's feature set. The target column is ignored when present.
func (s *Schema) CheckColumns(columns []string) error {
	have := make(map[string]bool, len(columns))
	var extra []string
	for _, c := range columns {
		if c == s.Target {
			continue
		}
		have[c] = true
		if _, ok := s.KindOf(c); !ok {
			extra = append(extra, c)
		}
	}
	var missing []string
	for _, f := range s.Features() {
		if !have[f] {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(extra)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing columns ["+strings.Join(missing, ", ")+"]")
	}
	if len(extra) > 0 {
		parts = append(parts, "unexpected columns ["+strings.Join(extra, ", ")+"]")
	}
	return fmt.Errorf("%w: %s", ErrSchemaMismatch, strings.Join(parts, "; "))
}
