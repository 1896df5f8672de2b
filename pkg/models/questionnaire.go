package models

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
)

// Questionnaire is one raw survey response. JSON names match the canonical
// column names so a record posted over HTTP maps straight onto the table.
type Questionnaire struct {
	Gender        string  `json:"Gender"`
	Age           float64 `json:"Age"`
	Height        float64 `json:"Height"` // metres; 0 means unknown
	Weight        float64 `json:"Weight"` // kilograms
	FamilyHistory string  `json:"family_history"`
	FAVC          string  `json:"FAVC"`
	FCVC          float64 `json:"FCVC"`
	NCP           float64 `json:"NCP"`
	CAEC          string  `json:"CAEC"`
	SMOKE         string  `json:"SMOKE"`
	CH2O          float64 `json:"CH2O"`
	SCC           string  `json:"SCC"`
	FAF           float64 `json:"FAF"`
	TUE           float64 `json:"TUE"`
	CALC          string  `json:"CALC"`
	MTRANS        string  `json:"MTRANS"`
}

// UnmarshalJSON decodes a record that names every input column exactly
// once. Absent or null fields and unknown keys are ErrSchemaMismatch, so a
// partial record never reaches the model with zero-valued answers.
func (q *Questionnaire) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: record must be a JSON object: %v", ErrSchemaMismatch, err)
	}

	var missing, unknown []string
	for _, col := range InputColumns {
		if raw, ok := fields[col]; !ok || string(raw) == "null" {
			missing = append(missing, col)
		}
	}
	for name := range fields {
		if !slices.Contains(InputColumns, name) {
			unknown = append(unknown, name)
		}
	}
	if len(missing) > 0 || len(unknown) > 0 {
		sort.Strings(unknown)
		var parts []string
		if len(missing) > 0 {
			parts = append(parts, "missing fields ["+strings.Join(missing, ", ")+"]")
		}
		if len(unknown) > 0 {
			parts = append(parts, "unknown fields ["+strings.Join(unknown, ", ")+"]")
		}
		return fmt.Errorf("%w: record has %s", ErrSchemaMismatch, strings.Join(parts, "; "))
	}

	type plain Questionnaire
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	*q = Questionnaire(p)
	return nil
}

// Validate checks the record can be fed to the pipeline
func (q *Questionnaire) Validate() error {
	for name, v := range q.Numeric() {
		if math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is infinite", ErrSchemaMismatch, name)
		}
		if v < 0 {
			return fmt.Errorf("%w: %s must be non-negative, got %v", ErrSchemaMismatch, name, v)
		}
	}
	for name, v := range q.Text() {
		if v == "" {
			return fmt.Errorf("%w: %s is required", ErrSchemaMismatch, name)
		}
	}
	return nil
}

// Numeric returns the numeric fields keyed by column name.
func (q *Questionnaire) Numeric() map[string]float64 {
	return map[string]float64{
		ColAge:    q.Age,
		ColHeight: q.Height,
		ColWeight: q.Weight,
		ColFCVC:   q.FCVC,
		ColNCP:    q.NCP,
		ColCH2O:   q.CH2O,
		ColFAF:    q.FAF,
		ColTUE:    q.TUE,
	}
}

// Text returns the free-text fields keyed by column name.
func (q *Questionnaire) Text() map[string]string {
	return map[string]string{
		ColGender:        q.Gender,
		ColFamilyHistory: q.FamilyHistory,
		ColFAVC:          q.FAVC,
		ColCAEC:          q.CAEC,
		ColSMOKE:         q.SMOKE,
		ColSCC:           q.SCC,
		ColCALC:          q.CALC,
		ColMTRANS:        q.MTRANS,
	}
}
