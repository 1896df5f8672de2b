package models

import "sort"

// ObesityLevel is one of the seven target classes. The classifier treats
// them as nominal labels.
type ObesityLevel string

const (
	InsufficientWeight ObesityLevel = "Insufficient_Weight"
	NormalWeight       ObesityLevel = "Normal_Weight"
	OverweightLevelI   ObesityLevel = "Overweight_Level_I"
	OverweightLevelII  ObesityLevel = "Overweight_Level_II"
	ObesityTypeI       ObesityLevel = "Obesity_Type_I"
	ObesityTypeII      ObesityLevel = "Obesity_Type_II"
	ObesityTypeIII     ObesityLevel = "Obesity_Type_III"
)

// SeverityOrder lists the levels from least to most severe.
var SeverityOrder = []ObesityLevel{
	InsufficientWeight, NormalWeight, OverweightLevelI, OverweightLevelII,
	ObesityTypeI, ObesityTypeII, ObesityTypeIII,
}

// IsValid reports whether l is one of the seven known levels
func (l ObesityLevel) IsValid() bool {
	for _, v := range SeverityOrder {
		if l == v {
			return true
		}
	}
	return false
}

// SortedLabels returns the distinct labels in lexicographic order, the
// ordering used for confusion matrices and reports.
func SortedLabels(labels []string) []string {
	set := make(map[string]struct{}, 8)
	for _, l := range labels {
		set[l] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
