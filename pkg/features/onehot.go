package features

import (
	"fmt"
	"sort"
)

// OneHotEncoder expands each categorical column into one indicator per
// category seen at fit time. Categories are kept sorted; an unseen value
// encodes as all zeros.
type OneHotEncoder struct {
	Categories [][]string `json:"categories"`

	lookup []map[string]int
}

// Fit captures the sorted distinct values of each column
func (e *OneHotEncoder) Fit(columns [][]string) {
	e.Categories = make([][]string, len(columns))
	for j, col := range columns {
		set := make(map[string]struct{})
		for _, v := range col {
			set[v] = struct{}{}
		}
		cats := make([]string, 0, len(set))
		for v := range set {
			cats = append(cats, v)
		}
		sort.Strings(cats)
		e.Categories[j] = cats
	}
	e.buildLookup()
}

func (e *OneHotEncoder) buildLookup() {
	e.lookup = make([]map[string]int, len(e.Categories))
	for j, cats := range e.Categories {
		m := make(map[string]int, len(cats))
		for i, c := range cats {
			m[c] = i
		}
		e.lookup[j] = m
	}
}

// Width returns the total number of indicator columns
func (e *OneHotEncoder) Width() int {
	n := 0
	for _, cats := range e.Categories {
		n += len(cats)
	}
	return n
}

// Encode writes the indicators for value v of column j into dst, which
// must be exactly len(Categories[j]) long and zeroed.
func (e *OneHotEncoder) Encode(j int, v string, dst []float64) {
	if i, ok := e.lookup[j][v]; ok {
		dst[i] = 1
	}
}

func (e *OneHotEncoder) validate() error {
	for j, cats := range e.Categories {
		if len(cats) == 0 {
			return fmt.Errorf("encoder column %d has no categories", j)
		}
		if !sort.StringsAreSorted(cats) {
			return fmt.Errorf("encoder column %d categories are not sorted", j)
		}
	}
	if len(e.lookup) != len(e.Categories) {
		e.buildLookup()
	}
	return nil
}
