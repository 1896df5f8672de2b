// Package dataset holds the questionnaire table, its CSV I/O, record
// preprocessing, BMI derivation and schema coercion.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mimir-aip/obesity-tc/pkg/models"
)

// Column is one named column of a Frame. Numeric columns store float64 with
// NaN marking a missing value; text columns store raw strings.
type Column struct {
	Name    string
	Numeric bool
	Floats  []float64
	Strings []string
}

// Len returns the number of cells in the column
func (c *Column) Len() int {
	if c.Numeric {
		return len(c.Floats)
	}
	return len(c.Strings)
}

// Cell renders row i as text; missing numeric values render empty.
func (c *Column) Cell(i int) string {
	if !c.Numeric {
		return c.Strings[i]
	}
	return FormatFloat(c.Floats[i])
}

// FormatFloat renders v the way cells are written to CSV
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Frame is a column-oriented table with a fixed row count
type Frame struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// NewFrame creates an empty frame with the given row count
func NewFrame(rows int) *Frame {
	return &Frame{index: make(map[string]int), rows: rows}
}

// Len returns the number of rows
func (f *Frame) Len() int { return f.rows }

// Columns returns the column names in order
func (f *Frame) Columns() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name
func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.cols[i], true
}

// Has reports whether the frame contains the named column
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// SetText adds or replaces a text column, keeping its position on replace.
func (f *Frame) SetText(name string, values []string) error {
	return f.set(&Column{Name: name, Strings: values})
}

// SetNumeric adds or replaces a numeric column, keeping its position on replace.
func (f *Frame) SetNumeric(name string, values []float64) error {
	return f.set(&Column{Name: name, Numeric: true, Floats: values})
}

func (f *Frame) set(c *Column) error {
	if c.Len() != f.rows {
		return fmt.Errorf("column %s has %d values, frame has %d rows", c.Name, c.Len(), f.rows)
	}
	if i, ok := f.index[c.Name]; ok {
		f.cols[i] = c
		return nil
	}
	f.index[c.Name] = len(f.cols)
	f.cols = append(f.cols, c)
	return nil
}

// Rename changes a column name in place
func (f *Frame) Rename(from, to string) error {
	if from == to {
		return nil
	}
	i, ok := f.index[from]
	if !ok {
		return fmt.Errorf("%w: column %q not found", models.ErrSchemaMismatch, from)
	}
	if _, clash := f.index[to]; clash {
		return fmt.Errorf("%w: column %q already exists", models.ErrSchemaMismatch, to)
	}
	delete(f.index, from)
	f.index[to] = i
	f.cols[i].Name = to
	return nil
}

// Drop removes a column if present
func (f *Frame) Drop(name string) {
	i, ok := f.index[name]
	if !ok {
		return
	}
	f.cols = append(f.cols[:i], f.cols[i+1:]...)
	delete(f.index, name)
	for j := i; j < len(f.cols); j++ {
		f.index[f.cols[j].Name] = j
	}
}

// Labels returns the text values of the target column
func (f *Frame) Labels(target string) ([]string, error) {
	c, ok := f.Column(target)
	if !ok {
		return nil, fmt.Errorf("%w: target column %q not found", models.ErrSchemaMismatch, target)
	}
	labels := make([]string, f.rows)
	for i := range labels {
		labels[i] = c.Cell(i)
	}
	return labels, nil
}

// Select returns a new frame holding the given rows in the given order
func (f *Frame) Select(indices []int) *Frame {
	out := NewFrame(len(indices))
	for _, c := range f.cols {
		nc := &Column{Name: c.Name, Numeric: c.Numeric}
		if c.Numeric {
			nc.Floats = make([]float64, len(indices))
			for i, idx := range indices {
				nc.Floats[i] = c.Floats[idx]
			}
		} else {
			nc.Strings = make([]string, len(indices))
			for i, idx := range indices {
				nc.Strings[i] = c.Strings[idx]
			}
		}
		out.index[nc.Name] = len(out.cols)
		out.cols = append(out.cols, nc)
	}
	return out
}

// Clone returns a deep copy of the frame
func (f *Frame) Clone() *Frame {
	idx := make([]int, f.rows)
	for i := range idx {
		idx[i] = i
	}
	return f.Select(idx)
}

// Row renders row i as a map of column name to cell text
func (f *Frame) Row(i int) map[string]string {
	row := make(map[string]string, len(f.cols))
	for _, c := range f.cols {
		row[c.Name] = c.Cell(i)
	}
	return row
}

// toNumeric converts a text column to numeric. Empty cells become NaN;
// unparseable cells become NaN when lenient, otherwise they fail.
func (f *Frame) toNumeric(name string, lenient bool) error {
	c, ok := f.Column(name)
	if !ok {
		return fmt.Errorf("%w: column %q not found", models.ErrSchemaMismatch, name)
	}
	if c.Numeric {
		return nil
	}
	values := make([]float64, len(c.Strings))
	for i, s := range c.Strings {
		v, err := parseCell(s)
		if err != nil {
			if !lenient {
				return fmt.Errorf("%w: column %q row %d: %q is not numeric", models.ErrSchemaMismatch, name, i, s)
			}
			v = math.NaN()
		}
		values[i] = v
	}
	return f.SetNumeric(name, values)
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
