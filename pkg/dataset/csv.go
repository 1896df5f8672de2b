package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mimir-aip/obesity-tc/pkg/models"
	"github.com/mimir-aip/obesity-tc/pkg/storage"
)

// ReadCSVFile loads a CSV file with a header row into a frame of text
// columns. A missing file is ErrMissingInput.
func ReadCSVFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: source table %s", models.ErrMissingInput, path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	frame, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return frame, nil
}

// ReadCSV parses CSV data with a header row. Every column is loaded as text;
// numeric kinds are assigned later by preprocessing and schema coercion.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("CSV has no header row")
	}

	header := records[0]
	rows := records[1:]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	frame := NewFrame(len(rows))
	for j, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("header column %d is empty", j)
		}
		if frame.Has(name) {
			return nil, fmt.Errorf("duplicate header column %q", name)
		}
		values := make([]string, len(rows))
		for i, row := range rows {
			if j < len(row) {
				values[i] = row[j]
			}
		}
		if err := frame.SetText(name, values); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

// WriteCSV writes the frame with a header row
func WriteCSV(w io.Writer, f *Frame) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(f.Columns()); err != nil {
		return err
	}
	record := make([]string, len(f.cols))
	for i := 0; i < f.rows; i++ {
		for j, c := range f.cols {
			record[j] = c.Cell(i)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// SaveCSVFile atomically writes the frame to path
func SaveCSVFile(path string, f *Frame) error {
	return storage.WriteFileAtomic(path, func(w io.Writer) error {
		return WriteCSV(w, f)
	})
}
